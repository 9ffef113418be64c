package frame

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
)

func TestChooseSurfaceFormat(t *testing.T) {
	preferred := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	other := vk.SurfaceFormat{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}

	assert.Equal(t, preferred, chooseSurfaceFormat([]vk.SurfaceFormat{other, preferred}))
	assert.Equal(t, other, chooseSurfaceFormat([]vk.SurfaceFormat{other}))
}

func TestChoosePresentMode(t *testing.T) {
	assert.Equal(t, vk.PresentModeMailbox,
		choosePresentMode([]vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox}, vk.PresentModeMailbox))
	assert.Equal(t, vk.PresentModeFifo,
		choosePresentMode([]vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeFifo}, vk.PresentModeMailbox))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(nil, vk.PresentModeMailbox))

	// An available preferred mode wins over mailbox.
	assert.Equal(t, vk.PresentModeImmediate,
		choosePresentMode([]vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeMailbox, vk.PresentModeFifo}, vk.PresentModeImmediate))
	// An unavailable preference falls back to the default order.
	assert.Equal(t, vk.PresentModeMailbox,
		choosePresentMode([]vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeFifo}, vk.PresentModeImmediate))
}

func TestChooseExtent(t *testing.T) {
	fixed := vk.SurfaceCapabilities{
		CurrentExtent: vk.Extent2D{Width: 1024, Height: 768},
	}
	assert.Equal(t, vk.Extent2D{Width: 1024, Height: 768}, chooseExtent(fixed, 800, 600))

	flexible := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: ^uint32(0), Height: ^uint32(0)},
		MinImageExtent: vk.Extent2D{Width: 64, Height: 64},
		MaxImageExtent: vk.Extent2D{Width: 2048, Height: 2048},
	}
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, chooseExtent(flexible, 800, 600))
	assert.Equal(t, vk.Extent2D{Width: 64, Height: 64}, chooseExtent(flexible, 10, 10))
	assert.Equal(t, vk.Extent2D{Width: 2048, Height: 2048}, chooseExtent(flexible, 5000, 5000))
}

func TestChooseImageCount(t *testing.T) {
	assert.Equal(t, uint32(3), chooseImageCount(vk.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 8}))
	assert.Equal(t, uint32(3), chooseImageCount(vk.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 3}))
	assert.Equal(t, uint32(2), chooseImageCount(vk.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 2}))
	// A zero maximum means unbounded.
	assert.Equal(t, uint32(4), chooseImageCount(vk.SurfaceCapabilities{MinImageCount: 3, MaxImageCount: 0}))
}
