package frame

import (
	"fmt"
	"log/slog"

	flux "github.com/Carmen-Shannon/flux-go"
	"github.com/Carmen-Shannon/flux-go/engine/device"
	vk "github.com/goki/vulkan"
)

// swapchain owns the presentation image set and the parameters it was built
// with. It is rebuilt wholesale whenever the surface is invalidated.
type swapchain struct {
	device device.Device
	handle vk.Swapchain
	images []vk.Image
	format vk.Format
	extent vk.Extent2D
}

// newSwapchain builds a swapchain sized to the given framebuffer dimensions,
// optionally handing the previous swapchain to the driver for resource reuse.
func newSwapchain(dev device.Device, width, height uint32, preferredMode vk.PresentMode, old vk.Swapchain) (*swapchain, error) {
	caps, err := dev.SurfaceCapabilities()
	if err != nil {
		return nil, err
	}
	formats, err := dev.SurfaceFormats()
	if err != nil {
		return nil, err
	}
	modes, err := dev.PresentModes()
	if err != nil {
		return nil, err
	}
	surfaceFormat := chooseSurfaceFormat(formats)
	presentMode := choosePresentMode(modes, preferredMode)
	extent := chooseExtent(caps, width, height)
	imageCount := chooseImageCount(caps)

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          dev.Surface(),
		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	families := dev.QueueFamilies()
	if families.Aliased() {
		info.ImageSharingMode = vk.SharingModeExclusive
	} else {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{families.Graphics, families.Present}
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(dev.Handle(), &info, nil, &handle); res != vk.Success {
		return nil, fmt.Errorf("failed to create swapchain: %w", vk.Error(res))
	}
	var count uint32
	if res := vk.GetSwapchainImages(dev.Handle(), handle, &count, nil); res != vk.Success {
		vk.DestroySwapchain(dev.Handle(), handle, nil)
		return nil, fmt.Errorf("failed to query swapchain images: %w", vk.Error(res))
	}
	images := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(dev.Handle(), handle, &count, images); res != vk.Success {
		vk.DestroySwapchain(dev.Handle(), handle, nil)
		return nil, fmt.Errorf("failed to query swapchain images: %w", vk.Error(res))
	}
	flux.Logger().Debug("created swapchain",
		slog.Int("images", int(count)),
		slog.Int("width", int(extent.Width)),
		slog.Int("height", int(extent.Height)))
	return &swapchain{
		device: dev,
		handle: handle,
		images: images,
		format: surfaceFormat.Format,
		extent: extent,
	}, nil
}

func (s *swapchain) Destroy() {
	if s == nil || s.handle == vk.NullSwapchain {
		return
	}
	vk.DestroySwapchain(s.device.Handle(), s.handle, nil)
	s.handle = vk.NullSwapchain
}

// chooseSurfaceFormat prefers 8-bit BGRA with sRGB encoding and falls back to
// the first advertised format.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Srgb && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

// choosePresentMode picks the caller's preferred mode when the surface
// supports it, otherwise prefers mailbox (triple-buffered, low latency) and
// falls back to FIFO, which every conforming driver must support.
func choosePresentMode(modes []vk.PresentMode, preferred vk.PresentMode) vk.PresentMode {
	for _, m := range modes {
		if m == preferred {
			return m
		}
	}
	for _, m := range modes {
		if m == vk.PresentModeMailbox {
			return m
		}
	}
	return vk.PresentModeFifo
}

// chooseExtent uses the surface's fixed extent when the driver reports one
// and otherwise clamps the framebuffer size into the supported range.
func chooseExtent(caps vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	// MaxUint32 in CurrentExtent means the surface size is up to us.
	if caps.CurrentExtent.Width != ^uint32(0) {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  min(max(width, caps.MinImageExtent.Width), caps.MaxImageExtent.Width),
		Height: min(max(height, caps.MinImageExtent.Height), caps.MaxImageExtent.Height),
	}
}

// chooseImageCount requests one image past the driver minimum so acquisition
// rarely blocks, honoring the maximum when one is reported.
func chooseImageCount(caps vk.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}
