package device

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// CommandPool wraps a transient Vulkan command pool on the graphics queue.
// It exists for one-shot setup work (uploads, layout transitions, blits):
// SingleTimeSubmit blocks the calling thread until the GPU finishes the
// recorded commands, trading throughput for simplicity. The steady-state
// per-frame path never goes through this pool.
type CommandPool struct {
	device Device
	queue  vk.Queue
	pool   vk.CommandPool
}

// NewCommandPool creates a transient command pool on the device's graphics queue.
//
// Parameters:
//   - device: the device to create the pool on
//
// Returns:
//   - *CommandPool: the created pool
//   - error: error if pool creation fails
func NewCommandPool(device Device) (*CommandPool, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
		QueueFamilyIndex: device.QueueFamilies().Graphics,
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(device.Handle(), &info, nil, &pool); res != vk.Success {
		return nil, fmt.Errorf("failed to create command pool: %w", vk.Error(res))
	}
	return &CommandPool{
		device: device,
		queue:  device.GraphicsQueue(),
		pool:   pool,
	}, nil
}

// SingleTimeSubmit allocates a one-shot command buffer, invokes record with it,
// submits to the graphics queue, and blocks until the queue has finished the
// work. The command buffer is freed before returning on all paths.
//
// Parameters:
//   - record: closure that records commands into the provided buffer
//
// Returns:
//   - error: error from recording, submission, or the queue wait
func (p *CommandPool) SingleTimeSubmit(record func(cmd vk.CommandBuffer) error) error {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        p.pool,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(p.device.Handle(), &allocInfo, commandBuffers); res != vk.Success {
		return fmt.Errorf("failed to allocate command buffer: %w", vk.Error(res))
	}
	cmd := commandBuffers[0]
	defer vk.FreeCommandBuffers(p.device.Handle(), p.pool, 1, commandBuffers)

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cmd, &beginInfo); res != vk.Success {
		return fmt.Errorf("failed to begin command buffer: %w", vk.Error(res))
	}

	if err := record(cmd); err != nil {
		return err
	}

	if res := vk.EndCommandBuffer(cmd); res != vk.Success {
		return fmt.Errorf("failed to end command buffer: %w", vk.Error(res))
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    commandBuffers,
	}
	if res := vk.QueueSubmit(p.queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
		return fmt.Errorf("failed to submit command buffer: %w", vk.Error(res))
	}
	if res := vk.QueueWaitIdle(p.queue); res != vk.Success {
		return fmt.Errorf("failed to wait for queue idle: %w", vk.Error(res))
	}
	return nil
}

// Destroy releases the command pool. Any buffers allocated from it must no
// longer be in flight.
func (p *CommandPool) Destroy() {
	if p.pool != nil {
		vk.DestroyCommandPool(p.device.Handle(), p.pool, nil)
		p.pool = nil
	}
}
