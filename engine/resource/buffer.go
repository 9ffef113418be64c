package resource

import (
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/flux-go/engine/device"
	vk "github.com/goki/vulkan"
)

// AllocatedBuffer pairs a buffer handle with the memory backing it so the two
// are always freed together.
type AllocatedBuffer struct {
	handle    vk.Buffer
	memory    vk.DeviceMemory
	size      vk.DeviceSize
	allocator *device.Allocator
	destroyed bool
}

// NewStagingBuffer allocates a host-visible, host-coherent buffer suitable as
// a transfer source.
//
// Parameters:
//   - allocator: the allocator to create the buffer through.
//   - size: the buffer size in bytes.
//
// Returns:
//   - *AllocatedBuffer: the staging buffer.
//   - error: an error if allocation fails, otherwise nil.
func NewStagingBuffer(allocator *device.Allocator, size vk.DeviceSize) (*AllocatedBuffer, error) {
	return newBuffer(allocator, size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
}

// NewDeviceLocalBuffer allocates a device-local buffer that can additionally
// serve as a transfer destination, to be filled through a staging buffer.
//
// Parameters:
//   - allocator: the allocator to create the buffer through.
//   - size: the buffer size in bytes.
//   - usage: the intended usage, transfer-destination is added automatically.
//
// Returns:
//   - *AllocatedBuffer: the device-local buffer.
//   - error: an error if allocation fails, otherwise nil.
func NewDeviceLocalBuffer(allocator *device.Allocator, size vk.DeviceSize, usage vk.BufferUsageFlags) (*AllocatedBuffer, error) {
	return newBuffer(allocator, size,
		usage|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
}

func newBuffer(allocator *device.Allocator, size vk.DeviceSize, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) (*AllocatedBuffer, error) {
	handle, memory, err := allocator.AllocateBuffer(size, usage, props)
	if err != nil {
		return nil, err
	}
	return &AllocatedBuffer{
		handle:    handle,
		memory:    memory,
		size:      size,
		allocator: allocator,
	}, nil
}

// Handle returns the underlying buffer handle.
func (b *AllocatedBuffer) Handle() vk.Buffer {
	return b.handle
}

// Size returns the buffer size in bytes.
func (b *AllocatedBuffer) Size() vk.DeviceSize {
	return b.size
}

// UploadData maps the buffer's memory and copies data into it at the given
// offset. The buffer must be host-visible.
//
// Parameters:
//   - data: the bytes to copy.
//   - offset: the byte offset to copy to.
//
// Returns:
//   - error: an error if the write would overflow or mapping fails,
//     otherwise nil.
func (b *AllocatedBuffer) UploadData(data []byte, offset vk.DeviceSize) error {
	if offset+vk.DeviceSize(len(data)) > b.size {
		return fmt.Errorf("upload of %d bytes at offset %d overflows buffer of %d bytes", len(data), offset, b.size)
	}
	var mapped unsafe.Pointer
	if res := vk.MapMemory(b.allocator.Device().Handle(), b.memory, offset, vk.DeviceSize(len(data)), 0, &mapped); res != vk.Success {
		return fmt.Errorf("failed to map buffer memory: %w", vk.Error(res))
	}
	vk.Memcopy(mapped, data)
	vk.UnmapMemory(b.allocator.Device().Handle(), b.memory)
	return nil
}

// Destroy releases the buffer and its memory. It is safe to call more than
// once.
func (b *AllocatedBuffer) Destroy() {
	if b == nil || b.destroyed {
		return
	}
	b.allocator.FreeBuffer(b.handle, b.memory)
	b.destroyed = true
}

// GeometryBuffer owns the vertex and index buffers of one mesh and binds them
// together.
type GeometryBuffer struct {
	vertexBuffer *AllocatedBuffer
	indexBuffer  *AllocatedBuffer
	indexCount   uint32
}

// NewGeometryBuffer stages vertex and index data into device-local buffers.
//
// Parameters:
//   - allocator: the allocator to create the buffers through.
//   - cmds: the transfer surface used to copy out of the staging buffer.
//   - vertices: raw vertex bytes.
//   - indices: the index list.
//
// Returns:
//   - *GeometryBuffer: the uploaded geometry.
//   - error: an error if allocation or upload fails, otherwise nil.
func NewGeometryBuffer(allocator *device.Allocator, cmds Commands, vertices []byte, indices []uint32) (*GeometryBuffer, error) {
	vb, err := stageToDeviceLocal(allocator, cmds, vertices, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))
	if err != nil {
		return nil, fmt.Errorf("failed to upload vertex buffer: %w", err)
	}
	indexBytes := make([]byte, 0, len(indices)*4)
	for _, idx := range indices {
		indexBytes = append(indexBytes, byte(idx), byte(idx>>8), byte(idx>>16), byte(idx>>24))
	}
	ib, err := stageToDeviceLocal(allocator, cmds, indexBytes, vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit))
	if err != nil {
		vb.Destroy()
		return nil, fmt.Errorf("failed to upload index buffer: %w", err)
	}
	return &GeometryBuffer{
		vertexBuffer: vb,
		indexBuffer:  ib,
		indexCount:   uint32(len(indices)),
	}, nil
}

func stageToDeviceLocal(allocator *device.Allocator, cmds Commands, data []byte, usage vk.BufferUsageFlags) (*AllocatedBuffer, error) {
	size := vk.DeviceSize(len(data))
	staging, err := NewStagingBuffer(allocator, size)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()
	if err := staging.UploadData(data, 0); err != nil {
		return nil, err
	}
	dst, err := NewDeviceLocalBuffer(allocator, size, usage)
	if err != nil {
		return nil, err
	}
	if err := cmds.CopyBuffer(staging.handle, dst.handle, size); err != nil {
		dst.Destroy()
		return nil, err
	}
	return dst, nil
}

// IndexCount returns the number of indices in the geometry.
func (g *GeometryBuffer) IndexCount() uint32 {
	return g.indexCount
}

// Bind records the vertex and index buffer bindings into a command buffer.
//
// Parameters:
//   - cmd: the command buffer being recorded.
func (g *GeometryBuffer) Bind(cmd vk.CommandBuffer) {
	vk.CmdBindVertexBuffers(cmd, 0, 1, []vk.Buffer{g.vertexBuffer.handle}, []vk.DeviceSize{0})
	vk.CmdBindIndexBuffer(cmd, g.indexBuffer.handle, 0, vk.IndexTypeUint32)
}

// Destroy releases both buffers.
func (g *GeometryBuffer) Destroy() {
	if g == nil {
		return
	}
	g.vertexBuffer.Destroy()
	g.indexBuffer.Destroy()
}
