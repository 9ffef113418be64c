package resource

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedOp struct {
	kind       string
	transition ImageLayoutTransition
	blit       vk.ImageBlit
	filter     vk.Filter
}

// recordingCommands captures every transfer operation in order so tests can
// assert sequencing without a GPU.
type recordingCommands struct {
	linearBlit bool
	ops        []recordedOp
	failOn     string
	failErr    error
}

var _ Commands = &recordingCommands{}

func (r *recordingCommands) SupportsLinearBlit(format vk.Format) bool {
	return r.linearBlit
}

func (r *recordingCommands) TransitionImageLayout(image vk.Image, transition ImageLayoutTransition) error {
	if r.failOn == "transition" {
		return r.failErr
	}
	r.ops = append(r.ops, recordedOp{kind: "transition", transition: transition})
	return nil
}

func (r *recordingCommands) CopyBufferToImage(buffer vk.Buffer, image vk.Image, region vk.BufferImageCopy) error {
	if r.failOn == "copy" {
		return r.failErr
	}
	r.ops = append(r.ops, recordedOp{kind: "copy"})
	return nil
}

func (r *recordingCommands) BlitImage(image vk.Image, blit vk.ImageBlit, filter vk.Filter) error {
	if r.failOn == "blit" {
		return r.failErr
	}
	r.ops = append(r.ops, recordedOp{kind: "blit", blit: blit, filter: filter})
	return nil
}

func (r *recordingCommands) CopyBuffer(src, dst vk.Buffer, size vk.DeviceSize) error {
	r.ops = append(r.ops, recordedOp{kind: "copybuffer"})
	return nil
}

func testImage(width, height, mipLevels uint32) *AllocatedImage {
	return &AllocatedImage{
		format:     vk.FormatR8g8b8a8Unorm,
		width:      width,
		height:     height,
		mipLevels:  mipLevels,
		layerCount: 1,
	}
}

func TestTransferFromSingleLevel(t *testing.T) {
	cmds := &recordingCommands{linearBlit: true}
	img := testImage(64, 64, 1)

	require.NoError(t, img.transferFrom(cmds, vk.NullBuffer))
	require.Len(t, cmds.ops, 3)

	assert.Equal(t, "transition", cmds.ops[0].kind)
	assert.Equal(t, vk.ImageLayoutUndefined, cmds.ops[0].transition.OldLayout)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, cmds.ops[0].transition.NewLayout)
	assert.Equal(t, uint32(1), cmds.ops[0].transition.LevelCount)

	assert.Equal(t, "copy", cmds.ops[1].kind)

	assert.Equal(t, "transition", cmds.ops[2].kind)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, cmds.ops[2].transition.OldLayout)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, cmds.ops[2].transition.NewLayout)
}

func TestTransferFromMipChain(t *testing.T) {
	cmds := &recordingCommands{linearBlit: true}
	img := testImage(4, 4, 3)

	require.NoError(t, img.transferFrom(cmds, vk.NullBuffer))

	// Whole-range preparation covers all levels before the copy.
	require.Equal(t, "transition", cmds.ops[0].kind)
	assert.Equal(t, uint32(3), cmds.ops[0].transition.LevelCount)
	require.Equal(t, "copy", cmds.ops[1].kind)

	// Each produced level reads its parent: dst->src, blit, src->shader.
	var kinds []string
	for _, op := range cmds.ops[2:] {
		kinds = append(kinds, op.kind)
	}
	assert.Equal(t, []string{
		"transition", "blit", "transition",
		"transition", "blit", "transition",
		"transition",
	}, kinds)

	firstBlit := cmds.ops[3].blit
	assert.Equal(t, uint32(0), firstBlit.SrcSubresource.MipLevel)
	assert.Equal(t, uint32(1), firstBlit.DstSubresource.MipLevel)
	assert.Equal(t, vk.Offset3D{X: 4, Y: 4, Z: 1}, firstBlit.SrcOffsets[1])
	assert.Equal(t, vk.Offset3D{X: 2, Y: 2, Z: 1}, firstBlit.DstOffsets[1])
	assert.Equal(t, vk.FilterLinear, cmds.ops[3].filter)

	secondBlit := cmds.ops[6].blit
	assert.Equal(t, vk.Offset3D{X: 2, Y: 2, Z: 1}, secondBlit.SrcOffsets[1])
	assert.Equal(t, vk.Offset3D{X: 1, Y: 1, Z: 1}, secondBlit.DstOffsets[1])

	// The last level was only ever written, so it retires from transfer-dst.
	last := cmds.ops[len(cmds.ops)-1].transition
	assert.Equal(t, uint32(2), last.BaseMipLevel)
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, last.OldLayout)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, last.NewLayout)
}

func TestTransferFromNonSquareChain(t *testing.T) {
	cmds := &recordingCommands{linearBlit: true}
	img := testImage(300, 200, 8)

	require.NoError(t, img.transferFrom(cmds, vk.NullBuffer))

	// The shorter axis clamps at one while the longer keeps halving.
	var lastBlit vk.ImageBlit
	for _, op := range cmds.ops {
		if op.kind == "blit" {
			lastBlit = op.blit
		}
	}
	assert.Equal(t, vk.Offset3D{X: 2, Y: 1, Z: 1}, lastBlit.DstOffsets[1])
}

func TestUploadRejectsUnblittableFormat(t *testing.T) {
	cmds := &recordingCommands{linearBlit: false}
	img := testImage(64, 64, 7)

	err := img.Upload(cmds, nil)
	var formatErr *UnsupportedFormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, formatErr.Format)
	assert.Empty(t, cmds.ops, "no transfer work should be recorded after rejection")
}

func TestTransferFromStopsOnFailure(t *testing.T) {
	boom := errors.New("queue submit failed")
	cmds := &recordingCommands{linearBlit: true, failOn: "blit", failErr: boom}
	img := testImage(8, 8, 4)

	err := img.transferFrom(cmds, vk.NullBuffer)
	require.ErrorIs(t, err, boom)

	// Preparation transition, copy, then the first dst->src transition ran
	// before the blit failed.
	var kinds []string
	for _, op := range cmds.ops {
		kinds = append(kinds, op.kind)
	}
	assert.Equal(t, []string{"transition", "copy", "transition"}, kinds)
}

func TestTransitionConstructors(t *testing.T) {
	prep := undefinedToTransferDst(5, 1)
	assert.Equal(t, uint32(0), prep.BaseMipLevel)
	assert.Equal(t, uint32(5), prep.LevelCount)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), prep.DstAccessMask)

	flip := transferDstToSrc(3, 1)
	assert.Equal(t, uint32(3), flip.BaseMipLevel)
	assert.Equal(t, uint32(1), flip.LevelCount)
	assert.Equal(t, vk.ImageLayoutTransferSrcOptimal, flip.NewLayout)

	retire := transferSrcToShaderRead(3, 1)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), retire.DstStageMask)
}
