package frame

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/flux-go/engine/device"
	vk "github.com/goki/vulkan"
)

// backend is the GPU-facing side of the frame ring: image acquisition,
// command submission, presentation and swapchain recreation. Tests substitute
// a scripted implementation to drive the ring without a GPU.
type backend interface {
	// Acquire blocks on the slot's fence, then requests the next presentable
	// image. It returns ErrSurfaceOutOfDate when the surface must be rebuilt.
	Acquire(slot int) (uint32, error)
	// Submit records the frame through the callback and submits it to the
	// graphics queue, signaling the slot's semaphore and fence on completion.
	Submit(slot int, imageIndex uint32, record func(cmd vk.CommandBuffer) error) error
	// Present queues the image for presentation gated on the slot's
	// render-finished semaphore. It returns ErrSurfaceOutOfDate when the
	// surface must be rebuilt before the next acquire.
	Present(slot int, imageIndex uint32) error
	// Recreate waits for the device to go idle and rebuilds the swapchain at
	// the given framebuffer size.
	Recreate(width, height uint32) error
	// SurfaceExtent returns the current swapchain extent.
	SurfaceExtent() vk.Extent2D
	// SurfaceFormat returns the current swapchain image format.
	SurfaceFormat() vk.Format
	// Images returns the current presentation images.
	Images() []vk.Image
	// Destroy releases the swapchain and every per-slot primitive.
	Destroy()
}

var _ backend = &vulkanBackend{}

// vulkanBackend owns the swapchain and the per-slot synchronization
// primitives: one image-available semaphore, one render-finished semaphore,
// one fence and one command buffer per in-flight slot.
type vulkanBackend struct {
	device         device.Device
	swapchain      *swapchain
	presentMode    vk.PresentMode
	commandPool    vk.CommandPool
	commandBuffers []vk.CommandBuffer
	imageAvailable []vk.Semaphore
	renderFinished []vk.Semaphore
	inFlight       []vk.Fence
}

func newVulkanBackend(dev device.Device, width, height uint32, presentMode vk.PresentMode) (*vulkanBackend, error) {
	sc, err := newSwapchain(dev, width, height, presentMode, vk.NullSwapchain)
	if err != nil {
		return nil, err
	}
	b := &vulkanBackend{device: dev, swapchain: sc, presentMode: presentMode}

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: dev.QueueFamilies().Graphics,
	}
	if res := vk.CreateCommandPool(dev.Handle(), &poolInfo, nil, &b.commandPool); res != vk.Success {
		b.Destroy()
		return nil, fmt.Errorf("failed to create frame command pool: %w", vk.Error(res))
	}
	b.commandBuffers = make([]vk.CommandBuffer, MaxFramesInFlight)
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: MaxFramesInFlight,
	}
	if res := vk.AllocateCommandBuffers(dev.Handle(), &allocInfo, b.commandBuffers); res != vk.Success {
		b.Destroy()
		return nil, fmt.Errorf("failed to allocate frame command buffers: %w", vk.Error(res))
	}

	semInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	// Fences start signaled so the first wait on each slot passes.
	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}
	for i := 0; i < MaxFramesInFlight; i++ {
		var imageAvailable, renderFinished vk.Semaphore
		var fence vk.Fence
		if res := vk.CreateSemaphore(dev.Handle(), &semInfo, nil, &imageAvailable); res != vk.Success {
			b.Destroy()
			return nil, fmt.Errorf("failed to create semaphore: %w", vk.Error(res))
		}
		b.imageAvailable = append(b.imageAvailable, imageAvailable)
		if res := vk.CreateSemaphore(dev.Handle(), &semInfo, nil, &renderFinished); res != vk.Success {
			b.Destroy()
			return nil, fmt.Errorf("failed to create semaphore: %w", vk.Error(res))
		}
		b.renderFinished = append(b.renderFinished, renderFinished)
		if res := vk.CreateFence(dev.Handle(), &fenceInfo, nil, &fence); res != vk.Success {
			b.Destroy()
			return nil, fmt.Errorf("failed to create fence: %w", vk.Error(res))
		}
		b.inFlight = append(b.inFlight, fence)
	}
	return b, nil
}

func (b *vulkanBackend) Acquire(slot int) (uint32, error) {
	vk.WaitForFences(b.device.Handle(), 1, []vk.Fence{b.inFlight[slot]}, vk.True, math.MaxUint64)
	var imageIndex uint32
	res := vk.AcquireNextImage(b.device.Handle(), b.swapchain.handle, math.MaxUint64,
		b.imageAvailable[slot], vk.NullFence, &imageIndex)
	switch res {
	case vk.Success, vk.Suboptimal:
		// A suboptimal acquire still yields a usable image; present will
		// report it again and trigger recreation after this frame.
		return imageIndex, nil
	case vk.ErrorOutOfDate:
		return 0, ErrSurfaceOutOfDate
	default:
		return 0, fmt.Errorf("failed to acquire swapchain image: %w", vk.Error(res))
	}
}

func (b *vulkanBackend) Submit(slot int, imageIndex uint32, record func(cmd vk.CommandBuffer) error) error {
	cmd := b.commandBuffers[slot]
	if res := vk.ResetCommandBuffer(cmd, 0); res != vk.Success {
		return fmt.Errorf("failed to reset command buffer: %w", vk.Error(res))
	}
	beginInfo := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if res := vk.BeginCommandBuffer(cmd, &beginInfo); res != vk.Success {
		return fmt.Errorf("failed to begin command buffer: %w", vk.Error(res))
	}
	if err := record(cmd); err != nil {
		return err
	}
	if res := vk.EndCommandBuffer(cmd); res != vk.Success {
		return fmt.Errorf("failed to end command buffer: %w", vk.Error(res))
	}

	// The fence is reset only once submission is certain, so a skipped frame
	// can never leave it unsignaled for the next wait.
	if res := vk.ResetFences(b.device.Handle(), 1, []vk.Fence{b.inFlight[slot]}); res != vk.Success {
		return fmt.Errorf("failed to reset frame fence: %w", vk.Error(res))
	}
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{b.imageAvailable[slot]},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cmd},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{b.renderFinished[slot]},
	}
	if res := vk.QueueSubmit(b.device.GraphicsQueue(), 1, []vk.SubmitInfo{submitInfo}, b.inFlight[slot]); res != vk.Success {
		return fmt.Errorf("failed to submit frame: %w", vk.Error(res))
	}
	return nil
}

func (b *vulkanBackend) Present(slot int, imageIndex uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{b.renderFinished[slot]},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{b.swapchain.handle},
		PImageIndices:      []uint32{imageIndex},
	}
	res := vk.QueuePresent(b.device.PresentQueue(), &presentInfo)
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return ErrSurfaceOutOfDate
	default:
		return fmt.Errorf("failed to present swapchain image: %w", vk.Error(res))
	}
}

func (b *vulkanBackend) Recreate(width, height uint32) error {
	if err := b.device.WaitIdle(); err != nil {
		return err
	}
	old := b.swapchain
	sc, err := newSwapchain(b.device, width, height, b.presentMode, old.handle)
	old.Destroy()
	if err != nil {
		return err
	}
	b.swapchain = sc
	return nil
}

func (b *vulkanBackend) SurfaceExtent() vk.Extent2D {
	return b.swapchain.extent
}

func (b *vulkanBackend) SurfaceFormat() vk.Format {
	return b.swapchain.format
}

func (b *vulkanBackend) Images() []vk.Image {
	return b.swapchain.images
}

func (b *vulkanBackend) Destroy() {
	dev := b.device.Handle()
	for _, sem := range b.imageAvailable {
		vk.DestroySemaphore(dev, sem, nil)
	}
	for _, sem := range b.renderFinished {
		vk.DestroySemaphore(dev, sem, nil)
	}
	for _, fence := range b.inFlight {
		vk.DestroyFence(dev, fence, nil)
	}
	b.imageAvailable, b.renderFinished, b.inFlight = nil, nil, nil
	if b.commandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(dev, b.commandPool, nil)
		b.commandPool = vk.NullCommandPool
	}
	b.swapchain.Destroy()
}
