package resource

import (
	"github.com/Carmen-Shannon/flux-go/engine/device"
	vk "github.com/goki/vulkan"
)

// Commands is the transfer-side surface images and buffers record against.
// The production implementation submits one-shot command buffers through a
// device command pool; tests substitute a recorder to verify sequencing.
type Commands interface {
	// SupportsLinearBlit reports whether the device can blit the given format
	// with linear filtering.
	//
	// Parameters:
	//   - format: the pixel format to query.
	//
	// Returns:
	//   - bool: true when linear-filtered blits are supported.
	SupportsLinearBlit(format vk.Format) bool

	// TransitionImageLayout records and submits a pipeline barrier that moves
	// a range of an image's mip levels between layouts.
	//
	// Parameters:
	//   - image: the image to transition.
	//   - transition: the range, layouts and synchronization scopes to apply.
	//
	// Returns:
	//   - error: an error if submission fails, otherwise nil.
	TransitionImageLayout(image vk.Image, transition ImageLayoutTransition) error

	// CopyBufferToImage records and submits a copy of packed pixel data from a
	// buffer into the base mip level of an image. The image must be in the
	// transfer-destination layout.
	//
	// Parameters:
	//   - buffer: the source buffer holding tightly packed pixels.
	//   - image: the destination image.
	//   - region: the buffer offset and image extent to copy.
	//
	// Returns:
	//   - error: an error if submission fails, otherwise nil.
	CopyBufferToImage(buffer vk.Buffer, image vk.Image, region vk.BufferImageCopy) error

	// BlitImage records and submits a single-region blit within one image,
	// used to downsample one mip level into the next.
	//
	// Parameters:
	//   - image: the image to blit within.
	//   - blit: the source and destination subresources and offsets.
	//   - filter: the sampling filter to downscale with.
	//
	// Returns:
	//   - error: an error if submission fails, otherwise nil.
	BlitImage(image vk.Image, blit vk.ImageBlit, filter vk.Filter) error

	// CopyBuffer records and submits a buffer-to-buffer copy, used to move
	// staged data into device-local memory.
	//
	// Parameters:
	//   - src: the source buffer.
	//   - dst: the destination buffer.
	//   - size: the number of bytes to copy from offset zero.
	//
	// Returns:
	//   - error: an error if submission fails, otherwise nil.
	CopyBuffer(src, dst vk.Buffer, size vk.DeviceSize) error
}

var _ Commands = &vulkanCommands{}

type vulkanCommands struct {
	device device.Device
	pool   *device.CommandPool
}

// NewCommands wraps a device and command pool in the transfer surface used by
// images and buffers.
//
// Parameters:
//   - dev: the logical device the pool was created from.
//   - pool: the transient command pool to submit through.
//
// Returns:
//   - Commands: the transfer surface.
func NewCommands(dev device.Device, pool *device.CommandPool) Commands {
	return &vulkanCommands{device: dev, pool: pool}
}

func (c *vulkanCommands) SupportsLinearBlit(format vk.Format) bool {
	return c.device.SupportsLinearBlit(format)
}

func (c *vulkanCommands) TransitionImageLayout(image vk.Image, transition ImageLayoutTransition) error {
	return c.pool.SingleTimeSubmit(func(cmd vk.CommandBuffer) error {
		barrier := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			OldLayout:           transition.OldLayout,
			NewLayout:           transition.NewLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               image,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   transition.BaseMipLevel,
				LevelCount:     transition.LevelCount,
				BaseArrayLayer: 0,
				LayerCount:     transition.LayerCount,
			},
			SrcAccessMask: transition.SrcAccessMask,
			DstAccessMask: transition.DstAccessMask,
		}
		vk.CmdPipelineBarrier(cmd, transition.SrcStageMask, transition.DstStageMask, 0,
			0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
		return nil
	})
}

func (c *vulkanCommands) CopyBufferToImage(buffer vk.Buffer, image vk.Image, region vk.BufferImageCopy) error {
	return c.pool.SingleTimeSubmit(func(cmd vk.CommandBuffer) error {
		vk.CmdCopyBufferToImage(cmd, buffer, image, vk.ImageLayoutTransferDstOptimal,
			1, []vk.BufferImageCopy{region})
		return nil
	})
}

func (c *vulkanCommands) BlitImage(image vk.Image, blit vk.ImageBlit, filter vk.Filter) error {
	return c.pool.SingleTimeSubmit(func(cmd vk.CommandBuffer) error {
		vk.CmdBlitImage(cmd,
			image, vk.ImageLayoutTransferSrcOptimal,
			image, vk.ImageLayoutTransferDstOptimal,
			1, []vk.ImageBlit{blit}, filter)
		return nil
	})
}

func (c *vulkanCommands) CopyBuffer(src, dst vk.Buffer, size vk.DeviceSize) error {
	return c.pool.SingleTimeSubmit(func(cmd vk.CommandBuffer) error {
		vk.CmdCopyBuffer(cmd, src, dst, 1, []vk.BufferCopy{{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		}})
		return nil
	})
}
