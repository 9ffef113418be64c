package resource

import (
	"fmt"

	"github.com/Carmen-Shannon/flux-go/common"
	"github.com/Carmen-Shannon/flux-go/engine/device"
	vk "github.com/goki/vulkan"
)

// ImageSpec describes an image to allocate.
type ImageSpec struct {
	// Width is the base mip level width in pixels.
	Width uint32
	// Height is the base mip level height in pixels.
	Height uint32
	// Format is the pixel format.
	Format vk.Format
	// MipLevels is the number of mip levels, at least 1.
	MipLevels uint32
	// LayerCount is the number of array layers, at least 1. Cubemaps use 6.
	LayerCount uint32
	// Samples is the sample count, zero means single-sampled.
	Samples vk.SampleCountFlagBits
	// Usage is the intended usage of the image.
	Usage vk.ImageUsageFlags
	// Flags carries creation flags, such as the cube-compatible bit.
	Flags vk.ImageCreateFlags
}

// AllocatedImage pairs an image handle with the memory backing it and the
// dimensions needed to drive uploads and mip generation.
type AllocatedImage struct {
	handle     vk.Image
	memory     vk.DeviceMemory
	allocator  *device.Allocator
	format     vk.Format
	width      uint32
	height     uint32
	mipLevels  uint32
	layerCount uint32
	destroyed  bool
}

// AllocateImage creates an image and binds fresh device-local memory to it.
//
// Parameters:
//   - allocator: the allocator to create the image through.
//   - spec: the image dimensions, format and usage.
//
// Returns:
//   - *AllocatedImage: the allocated image.
//   - error: an error if creation or allocation fails, otherwise nil.
func AllocateImage(allocator *device.Allocator, spec ImageSpec) (*AllocatedImage, error) {
	mipLevels := max(spec.MipLevels, 1)
	layerCount := max(spec.LayerCount, 1)
	samples := spec.Samples
	if samples == 0 {
		samples = vk.SampleCount1Bit
	}
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     spec.Flags,
		ImageType: vk.ImageType2d,
		Format:    spec.Format,
		Extent: vk.Extent3D{
			Width:  spec.Width,
			Height: spec.Height,
			Depth:  1,
		},
		MipLevels:     mipLevels,
		ArrayLayers:   layerCount,
		Samples:       samples,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         spec.Usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	handle, memory, err := allocator.AllocateImage(info, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}
	return &AllocatedImage{
		handle:     handle,
		memory:     memory,
		allocator:  allocator,
		format:     spec.Format,
		width:      spec.Width,
		height:     spec.Height,
		mipLevels:  mipLevels,
		layerCount: layerCount,
	}, nil
}

// Handle returns the underlying image handle.
func (img *AllocatedImage) Handle() vk.Image {
	return img.handle
}

// Format returns the image's pixel format.
func (img *AllocatedImage) Format() vk.Format {
	return img.format
}

// Extent returns the base mip level dimensions.
func (img *AllocatedImage) Extent() (uint32, uint32) {
	return img.width, img.height
}

// MipLevels returns the number of mip levels.
func (img *AllocatedImage) MipLevels() uint32 {
	return img.mipLevels
}

// Upload stages pixel data into the image, copies it into the base mip level
// and generates the remaining levels by repeated half-size blits. On return
// every level is in the shader-read-only layout.
//
// Parameters:
//   - cmds: the transfer surface to record through.
//   - data: the pixel data, already format-converted.
//
// Returns:
//   - error: an UnsupportedFormatError when mip generation needs a blit the
//     device cannot filter, any other error if a transfer fails, otherwise
//     nil.
func (img *AllocatedImage) Upload(cmds Commands, data *common.ImageData) error {
	if img.mipLevels > 1 && !cmds.SupportsLinearBlit(img.format) {
		return &UnsupportedFormatError{Format: img.format}
	}
	staging, err := NewStagingBuffer(img.allocator, vk.DeviceSize(len(data.Pixels)))
	if err != nil {
		return fmt.Errorf("failed to create staging buffer: %w", err)
	}
	defer staging.Destroy()
	if err := staging.UploadData(data.Pixels, 0); err != nil {
		return err
	}
	return img.transferFrom(cmds, staging.Handle())
}

// transferFrom records the full transition, copy and mip chain against an
// already filled staging buffer.
func (img *AllocatedImage) transferFrom(cmds Commands, staging vk.Buffer) error {
	if err := cmds.TransitionImageLayout(img.handle, undefinedToTransferDst(img.mipLevels, img.layerCount)); err != nil {
		return err
	}
	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     img.layerCount,
		},
		ImageExtent: vk.Extent3D{Width: img.width, Height: img.height, Depth: 1},
	}
	if err := cmds.CopyBufferToImage(staging, img.handle, region); err != nil {
		return err
	}
	if img.mipLevels > 1 {
		return img.generateMipmaps(cmds)
	}
	return cmds.TransitionImageLayout(img.handle, transferDstToShaderRead(0, 1, img.layerCount))
}

// generateMipmaps downsamples each level into the next with linear blits.
// Level zero holds the uploaded pixels; every produced level is retired to
// the shader-read-only layout as soon as it has been read from, and the last
// level is retired directly since nothing reads it.
func (img *AllocatedImage) generateMipmaps(cmds Commands) error {
	srcWidth, srcHeight := img.width, img.height
	for level := uint32(1); level < img.mipLevels; level++ {
		if err := cmds.TransitionImageLayout(img.handle, transferDstToSrc(level-1, img.layerCount)); err != nil {
			return err
		}
		dstWidth, dstHeight := common.NextMipExtent(srcWidth, srcHeight)
		blit := vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       level - 1,
				BaseArrayLayer: 0,
				LayerCount:     img.layerCount,
			},
			SrcOffsets: [2]vk.Offset3D{
				{},
				{X: int32(srcWidth), Y: int32(srcHeight), Z: 1},
			},
			DstSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       level,
				BaseArrayLayer: 0,
				LayerCount:     img.layerCount,
			},
			DstOffsets: [2]vk.Offset3D{
				{},
				{X: int32(dstWidth), Y: int32(dstHeight), Z: 1},
			},
		}
		if err := cmds.BlitImage(img.handle, blit, vk.FilterLinear); err != nil {
			return err
		}
		if err := cmds.TransitionImageLayout(img.handle, transferSrcToShaderRead(level-1, img.layerCount)); err != nil {
			return err
		}
		srcWidth, srcHeight = dstWidth, dstHeight
	}
	return cmds.TransitionImageLayout(img.handle, transferDstToShaderRead(img.mipLevels-1, 1, img.layerCount))
}

// Destroy releases the image and its memory. It is safe to call more than
// once.
func (img *AllocatedImage) Destroy() {
	if img == nil || img.destroyed {
		return
	}
	img.allocator.FreeImage(img.handle, img.memory)
	img.destroyed = true
}
