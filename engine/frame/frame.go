package frame

import (
	"errors"
	"log/slog"

	flux "github.com/Carmen-Shannon/flux-go"
	"github.com/Carmen-Shannon/flux-go/engine/device"
	vk "github.com/goki/vulkan"
)

// MaxFramesInFlight bounds how many frames the CPU may run ahead of the GPU.
// Double buffering is fixed by configuration, not discovered at runtime.
const MaxFramesInFlight = 2

// SurfaceState is handed to the frame recording callback each frame.
type SurfaceState struct {
	// Extent is the current swapchain extent.
	Extent vk.Extent2D
	// ImageIndex is the acquired presentation image index for this frame.
	ImageIndex uint32
	// RecreatedSwapchain is true for exactly one frame after the swapchain
	// was rebuilt. The callback must rebuild its render graph and recreate
	// any pipelines bound to the old surface before recording.
	RecreatedSwapchain bool
}

// Frames paces the acquire/record/submit/present cycle across a fixed ring
// of in-flight slots. A single goroutine drives it; the only blocking point
// is the per-slot fence wait at the start of each acquire.
type Frames struct {
	backend   backend
	index     int
	recreated bool
}

// New creates the frame ring and its swapchain over an initialized device.
//
// Parameters:
//   - dev: the logical device with its surface and queues.
//   - width: the framebuffer width in pixels.
//   - height: the framebuffer height in pixels.
//   - options: functional options such as the preferred present mode.
//
// Returns:
//   - *Frames: the frame ring.
//   - error: an error if swapchain or primitive creation fails, otherwise
//     nil.
func New(dev device.Device, width, height uint32, options ...BuilderOption) (*Frames, error) {
	cfg := config{presentMode: vk.PresentModeMailbox}
	for _, opt := range options {
		opt(&cfg)
	}
	b, err := newVulkanBackend(dev, width, height, cfg.presentMode)
	if err != nil {
		return nil, err
	}
	return &Frames{backend: b}, nil
}

// newWithBackend wires the ring over an arbitrary backend.
func newWithBackend(b backend) *Frames {
	return &Frames{backend: b}
}

// Render runs one frame: wait on the current slot's fence, acquire an image,
// record and submit through the callback, present, then advance the slot.
// When acquisition finds the surface out of date the frame is skipped, the
// swapchain is rebuilt and the next frame's SurfaceState reports
// RecreatedSwapchain. When presentation reports it instead, the frame counts
// as submitted and recreation happens before the next acquire.
//
// Parameters:
//   - width: the current framebuffer width, used if recreation is needed.
//   - height: the current framebuffer height, used if recreation is needed.
//   - record: records the frame's commands given the surface state.
//
// Returns:
//   - error: any unrecoverable device error, or the callback's error.
//     ErrSurfaceOutOfDate is always handled internally and never returned.
func (f *Frames) Render(width, height uint32, record func(cmd vk.CommandBuffer, state SurfaceState) error) error {
	state := SurfaceState{
		Extent:             f.backend.SurfaceExtent(),
		RecreatedSwapchain: f.recreated,
	}
	f.recreated = false

	imageIndex, err := f.backend.Acquire(f.index)
	if errors.Is(err, ErrSurfaceOutOfDate) {
		return f.recreate(width, height)
	}
	if err != nil {
		return err
	}
	state.ImageIndex = imageIndex

	if err := f.backend.Submit(f.index, imageIndex, func(cmd vk.CommandBuffer) error {
		return record(cmd, state)
	}); err != nil {
		return err
	}

	err = f.backend.Present(f.index, imageIndex)
	// The frame is already submitted either way, so the slot advances and
	// recreation waits for the next acquire.
	f.index = (f.index + 1) % MaxFramesInFlight
	if errors.Is(err, ErrSurfaceOutOfDate) {
		return f.recreate(width, height)
	}
	return err
}

func (f *Frames) recreate(width, height uint32) error {
	if err := f.backend.Recreate(width, height); err != nil {
		return err
	}
	f.recreated = true
	flux.Logger().Debug("recreated swapchain",
		slog.Int("width", int(width)),
		slog.Int("height", int(height)))
	return nil
}

// SurfaceExtent returns the current swapchain extent.
func (f *Frames) SurfaceExtent() vk.Extent2D {
	return f.backend.SurfaceExtent()
}

// SurfaceFormat returns the current swapchain image format.
func (f *Frames) SurfaceFormat() vk.Format {
	return f.backend.SurfaceFormat()
}

// Images returns the current presentation images, for injection into a
// render graph. The slice becomes stale after a recreation.
func (f *Frames) Images() []vk.Image {
	return f.backend.Images()
}

// Destroy releases the swapchain and every synchronization primitive. The
// caller must ensure the device is idle first.
func (f *Frames) Destroy() {
	if f == nil || f.backend == nil {
		return
	}
	f.backend.Destroy()
	f.backend = nil
}
