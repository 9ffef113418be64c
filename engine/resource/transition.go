package resource

import (
	vk "github.com/goki/vulkan"
)

// ImageLayoutTransition describes a pipeline barrier that moves a range of an
// image's mip levels from one layout to another. Transitions are plain values
// so that a recorded sequence can be inspected without touching the GPU.
type ImageLayoutTransition struct {
	// BaseMipLevel is the first mip level the barrier covers.
	BaseMipLevel uint32
	// LevelCount is the number of mip levels the barrier covers.
	LevelCount uint32
	// LayerCount is the number of array layers the barrier covers.
	LayerCount uint32
	// OldLayout is the layout the covered range is currently in.
	OldLayout vk.ImageLayout
	// NewLayout is the layout the covered range moves to.
	NewLayout vk.ImageLayout
	// SrcAccessMask gates writes that must complete before the transition.
	SrcAccessMask vk.AccessFlags
	// DstAccessMask gates accesses that must wait for the transition.
	DstAccessMask vk.AccessFlags
	// SrcStageMask is the pipeline stage the transition waits on.
	SrcStageMask vk.PipelineStageFlags
	// DstStageMask is the pipeline stage the transition blocks.
	DstStageMask vk.PipelineStageFlags
}

// undefinedToTransferDst prepares every mip level of a freshly allocated image
// to receive transfer writes.
func undefinedToTransferDst(levelCount, layerCount uint32) ImageLayoutTransition {
	return ImageLayoutTransition{
		BaseMipLevel:  0,
		LevelCount:    levelCount,
		LayerCount:    layerCount,
		OldLayout:     vk.ImageLayoutUndefined,
		NewLayout:     vk.ImageLayoutTransferDstOptimal,
		SrcAccessMask: 0,
		DstAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
	}
}

// transferDstToSrc flips a single mip level from transfer destination to
// transfer source so the next level can be blitted from it.
func transferDstToSrc(mipLevel, layerCount uint32) ImageLayoutTransition {
	return ImageLayoutTransition{
		BaseMipLevel:  mipLevel,
		LevelCount:    1,
		LayerCount:    layerCount,
		OldLayout:     vk.ImageLayoutTransferDstOptimal,
		NewLayout:     vk.ImageLayoutTransferSrcOptimal,
		SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessTransferReadBit),
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
	}
}

// transferSrcToShaderRead retires a mip level that has been blitted from into
// its final sampleable layout.
func transferSrcToShaderRead(mipLevel, layerCount uint32) ImageLayoutTransition {
	return ImageLayoutTransition{
		BaseMipLevel:  mipLevel,
		LevelCount:    1,
		LayerCount:    layerCount,
		OldLayout:     vk.ImageLayoutTransferSrcOptimal,
		NewLayout:     vk.ImageLayoutShaderReadOnlyOptimal,
		SrcAccessMask: vk.AccessFlags(vk.AccessTransferReadBit),
		DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
	}
}

// transferDstToShaderRead retires a mip level that was written but never read
// during generation, which is always the last level in the chain.
func transferDstToShaderRead(mipLevel, levelCount, layerCount uint32) ImageLayoutTransition {
	return ImageLayoutTransition{
		BaseMipLevel:  mipLevel,
		LevelCount:    levelCount,
		LayerCount:    layerCount,
		OldLayout:     vk.ImageLayoutTransferDstOptimal,
		NewLayout:     vk.ImageLayoutShaderReadOnlyOptimal,
		SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
	}
}
