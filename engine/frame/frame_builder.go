package frame

import (
	vk "github.com/goki/vulkan"
)

// config holds frame ring settings resolved before the backend is created.
type config struct {
	presentMode vk.PresentMode
}

type BuilderOption func(*config)

// WithPresentMode sets the preferred presentation mode. The swapchain uses
// it when the surface supports it and otherwise falls back to mailbox, then
// FIFO.
//
// Parameters:
//   - mode: the preferred present mode
//
// Returns:
//   - BuilderOption: a function that sets the preferred present mode
func WithPresentMode(mode vk.PresentMode) BuilderOption {
	return func(c *config) {
		c.presentMode = mode
	}
}
