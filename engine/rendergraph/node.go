package rendergraph

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// BackbufferNode is the reserved node name a pass references to draw into the
// presentation surface. The graph never allocates an image for it; the
// swapchain images are injected through InsertBackbufferImages instead.
const BackbufferNode = "backbuffer"

// BackbufferName returns the deterministic storage key for the injected
// presentation image at the given swapchain index.
//
// Parameters:
//   - index: the swapchain image index.
//
// Returns:
//   - string: the indexed node name, such as "backbuffer_0".
func BackbufferName(index int) string {
	return fmt.Sprintf("%s_%d", BackbufferNode, index)
}

// ImageNode declares a graph-owned image attachment. Nodes are pure
// declarations; the graph allocates and owns the backing image when it is
// built and releases it when it is destroyed or rebuilt.
type ImageNode struct {
	// Name is the unique key passes reference the node by.
	Name string
	// Width is the attachment width in pixels.
	Width uint32
	// Height is the attachment height in pixels.
	Height uint32
	// Format is the attachment pixel format.
	Format vk.Format
	// Samples is the multisample count, zero means single-sampled.
	Samples vk.SampleCountFlagBits
	// ClearValue is the value the attachment is cleared to at pass start.
	ClearValue vk.ClearValue
	// ForceStore keeps the attachment contents after the pass even when no
	// later pass reads them.
	ForceStore bool
	// ForceShaderRead leaves the attachment in a sampleable layout after the
	// pass.
	ForceShaderRead bool
}

// boundNode is a declared node plus its backing image. Exactly one of owned
// and external is set: owned nodes carry a graph-allocated image, external
// nodes wrap an injected swapchain image the graph does not own.
type boundNode struct {
	decl     ImageNode
	owned    attachmentImage
	external vk.Image
	view     vk.ImageView
}

func (n *boundNode) image() vk.Image {
	if n.owned != nil {
		return n.owned.Handle()
	}
	return n.external
}

func isDepthFormat(format vk.Format) bool {
	switch format {
	case vk.FormatD16Unorm, vk.FormatD32Sfloat, vk.FormatD16UnormS8Uint,
		vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint, vk.FormatX8D24UnormPack32:
		return true
	}
	return false
}

func imageAspect(format vk.Format) vk.ImageAspectFlags {
	if isDepthFormat(format) {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}
