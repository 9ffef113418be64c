package rendergraph

import (
	vk "github.com/goki/vulkan"
)

// AttachmentRole describes how a pass uses an attachment.
type AttachmentRole int

const (
	// RoleColor marks a color render target.
	RoleColor AttachmentRole = iota
	// RoleDepth marks the depth-stencil target. A pass has at most one.
	RoleDepth
	// RoleInput marks an attachment read as a subpass input.
	RoleInput
)

// Attachment references a declared node by name with the role the pass uses
// it in.
type Attachment struct {
	// Node is the name of the referenced ImageNode, or BackbufferNode for the
	// presentation surface.
	Node string
	// Role is how the pass uses the attachment.
	Role AttachmentRole
}

// PassDecl declares a named render stage and its ordered attachments.
type PassDecl struct {
	// Name is the unique key the pass is looked up by.
	Name string
	// Attachments is the ordered attachment list.
	Attachments []Attachment
}

// Pass is a built render stage: the render-pass object, one framebuffer per
// compatible image set, and the resolved extent and clear values.
type Pass struct {
	name             string
	decl             PassDecl
	renderPass       vk.RenderPass
	framebuffers     []vk.Framebuffer
	extent           vk.Extent2D
	clearValues      []vk.ClearValue
	usesBackbuffer   bool
	colorAttachCount int
}

// Name returns the pass's declared name.
func (p *Pass) Name() string {
	return p.name
}

// RenderPass returns the underlying render-pass object, needed to create
// pipelines compatible with the pass. It becomes stale when the graph is
// rebuilt.
func (p *Pass) RenderPass() vk.RenderPass {
	return p.renderPass
}

// Extent returns the pass's viewport and scissor extent.
func (p *Pass) Extent() vk.Extent2D {
	return p.extent
}

// Framebuffer returns the framebuffer for the given image index, or false
// when the index is out of range. Passes that do not draw to the backbuffer
// hold exactly one framebuffer at index zero.
func (p *Pass) Framebuffer(imageIndex int) (vk.Framebuffer, bool) {
	if imageIndex < 0 || imageIndex >= len(p.framebuffers) {
		return vk.NullFramebuffer, false
	}
	return p.framebuffers[imageIndex], true
}

// FramebufferCount returns how many framebuffers the pass holds.
func (p *Pass) FramebufferCount() int {
	return len(p.framebuffers)
}

// ColorAttachmentCount returns the number of color attachments, needed for
// pipeline blend state.
func (p *Pass) ColorAttachmentCount() int {
	return p.colorAttachCount
}

// UsesBackbuffer reports whether the pass draws into the presentation
// surface.
func (p *Pass) UsesBackbuffer() bool {
	return p.usesBackbuffer
}

// describeAttachment derives the load/store ops and layouts for one node in
// this pass. The declaration flags are authoritative for the final layout:
// contents are left sampleable only when asked for, except the backbuffer
// which always stores and finishes in the present layout. Contents are
// stored when flagged or when another pass consumes the node as an input
// attachment.
func describeAttachment(node ImageNode, backbuffer, readLater bool) vk.AttachmentDescription {
	samples := node.Samples
	if samples == 0 {
		samples = vk.SampleCount1Bit
	}
	desc := vk.AttachmentDescription{
		Format:         node.Format,
		Samples:        samples,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpDontCare,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
	}
	switch {
	case backbuffer:
		desc.StoreOp = vk.AttachmentStoreOpStore
		desc.FinalLayout = vk.ImageLayoutPresentSrc
	case node.ForceShaderRead:
		desc.StoreOp = vk.AttachmentStoreOpStore
		desc.FinalLayout = vk.ImageLayoutShaderReadOnlyOptimal
	case isDepthFormat(node.Format):
		if node.ForceStore || readLater {
			desc.StoreOp = vk.AttachmentStoreOpStore
		}
		desc.FinalLayout = vk.ImageLayoutDepthStencilAttachmentOptimal
	default:
		if node.ForceStore || readLater {
			desc.StoreOp = vk.AttachmentStoreOpStore
		}
		desc.FinalLayout = vk.ImageLayoutColorAttachmentOptimal
	}
	return desc
}
