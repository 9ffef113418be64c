package device

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/flux-go"
	vk "github.com/goki/vulkan"
)

// AllocationError reports that the GPU memory allocator could not satisfy a
// request. It is fatal to the requested operation but not necessarily to the
// process; the caller may free resources and retry, or abort. The allocator
// itself never retries.
type AllocationError struct {
	// Op names the allocation that failed (e.g. "image", "buffer").
	Op string
	// Err is the underlying cause, usually a wrapped vk.Error.
	Err error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("gpu allocation failed for %s: %v", e.Op, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// Allocator is the GPU memory allocator handle shared across all resource
// allocations. Resources hold a reference to one Allocator and release their
// allocation through it exactly once; the Allocator must not outlive its
// Device, and no resource may outlive the Allocator.
//
// Allocation strategy is deliberately simple: one vk.DeviceMemory per
// resource, selected by memory-type filter. The live allocation count is
// tracked so teardown can verify nothing leaked.
type Allocator struct {
	mu     sync.Mutex
	device Device
	live   int
}

// NewAllocator creates a GPU memory allocator bound to the device.
//
// Parameters:
//   - device: the device to allocate from
//
// Returns:
//   - *Allocator: the shared allocator handle
func NewAllocator(device Device) *Allocator {
	return &Allocator{device: device}
}

// Device returns the device this allocator allocates from.
func (a *Allocator) Device() Device { return a.device }

// LiveAllocations returns the number of allocations not yet freed.
func (a *Allocator) LiveAllocations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// AllocateImage creates an image and binds fresh device memory to it.
//
// Parameters:
//   - info: the image create info
//   - memProps: required memory property flags (usually device-local)
//
// Returns:
//   - vk.Image: the created image handle
//   - vk.DeviceMemory: the backing allocation
//   - error: *AllocationError if the allocator cannot satisfy the request
func (a *Allocator) AllocateImage(info vk.ImageCreateInfo, memProps vk.MemoryPropertyFlags) (vk.Image, vk.DeviceMemory, error) {
	var image vk.Image
	if res := vk.CreateImage(a.device.Handle(), &info, nil, &image); res != vk.Success {
		return nil, nil, &AllocationError{Op: "image", Err: vk.Error(res)}
	}

	var memReq vk.MemoryRequirements
	vk.GetImageMemoryRequirements(a.device.Handle(), image, &memReq)
	memReq.Deref()

	memory, err := a.allocate(memReq, memProps)
	if err != nil {
		vk.DestroyImage(a.device.Handle(), image, nil)
		return nil, nil, &AllocationError{Op: "image", Err: err}
	}
	if res := vk.BindImageMemory(a.device.Handle(), image, memory, 0); res != vk.Success {
		vk.FreeMemory(a.device.Handle(), memory, nil)
		vk.DestroyImage(a.device.Handle(), image, nil)
		return nil, nil, &AllocationError{Op: "image", Err: vk.Error(res)}
	}

	a.track(1)
	flux.Logger().Debug("allocated image memory", "bytes", memReq.Size)
	return image, memory, nil
}

// AllocateBuffer creates a buffer and binds fresh device memory to it.
//
// Parameters:
//   - size: buffer size in bytes
//   - usage: buffer usage flags
//   - memProps: required memory property flags
//
// Returns:
//   - vk.Buffer: the created buffer handle
//   - vk.DeviceMemory: the backing allocation
//   - error: *AllocationError if the allocator cannot satisfy the request
func (a *Allocator) AllocateBuffer(size vk.DeviceSize, usage vk.BufferUsageFlags, memProps vk.MemoryPropertyFlags) (vk.Buffer, vk.DeviceMemory, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if res := vk.CreateBuffer(a.device.Handle(), &info, nil, &buffer); res != vk.Success {
		return nil, nil, &AllocationError{Op: "buffer", Err: vk.Error(res)}
	}

	var memReq vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(a.device.Handle(), buffer, &memReq)
	memReq.Deref()

	memory, err := a.allocate(memReq, memProps)
	if err != nil {
		vk.DestroyBuffer(a.device.Handle(), buffer, nil)
		return nil, nil, &AllocationError{Op: "buffer", Err: err}
	}
	if res := vk.BindBufferMemory(a.device.Handle(), buffer, memory, 0); res != vk.Success {
		vk.FreeMemory(a.device.Handle(), memory, nil)
		vk.DestroyBuffer(a.device.Handle(), buffer, nil)
		return nil, nil, &AllocationError{Op: "buffer", Err: vk.Error(res)}
	}

	a.track(1)
	return buffer, memory, nil
}

// FreeImage destroys an image and releases its backing allocation.
// Must be called exactly once per successful AllocateImage.
func (a *Allocator) FreeImage(image vk.Image, memory vk.DeviceMemory) {
	vk.DestroyImage(a.device.Handle(), image, nil)
	vk.FreeMemory(a.device.Handle(), memory, nil)
	a.track(-1)
}

// FreeBuffer destroys a buffer and releases its backing allocation.
// Must be called exactly once per successful AllocateBuffer.
func (a *Allocator) FreeBuffer(buffer vk.Buffer, memory vk.DeviceMemory) {
	vk.DestroyBuffer(a.device.Handle(), buffer, nil)
	vk.FreeMemory(a.device.Handle(), memory, nil)
	a.track(-1)
}

func (a *Allocator) allocate(memReq vk.MemoryRequirements, memProps vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	typeIndex, err := a.findMemoryType(memReq.MemoryTypeBits, memProps)
	if err != nil {
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReq.Size,
		MemoryTypeIndex: typeIndex,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(a.device.Handle(), &allocInfo, nil, &memory); res != vk.Success {
		return nil, vk.Error(res)
	}
	return memory, nil
}

func (a *Allocator) findMemoryType(typeFilter uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(a.device.PhysicalDevice(), &memProps)
	memProps.Deref()

	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		memType := memProps.MemoryTypes[i]
		memType.Deref()

		if typeFilter&(1<<i) == 0 {
			continue
		}
		if memType.PropertyFlags&properties != properties {
			continue
		}
		return i, nil
	}
	return 0, fmt.Errorf("no suitable memory type for filter %#x", typeFilter)
}

func (a *Allocator) track(delta int) {
	a.mu.Lock()
	a.live += delta
	a.mu.Unlock()
}
