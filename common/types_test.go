package common

import (
	"image"
	"image/color"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateMipLevels(t *testing.T) {
	tests := []struct {
		name          string
		width, height uint32
		want          uint32
	}{
		{"square 512", 512, 512, 10},
		{"one by one", 1, 1, 1},
		{"non square", 300, 200, 8},
		{"wide", 1024, 1, 1},
		{"tall", 1, 1024, 1},
		{"square 256", 256, 256, 9},
		{"odd", 3, 3, 2},
		{"zero", 0, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateMipLevels(tt.width, tt.height))
		})
	}
}

func TestNextMipExtentFloorsAtOne(t *testing.T) {
	w, h := NextMipExtent(3, 3)
	assert.Equal(t, uint32(1), w)
	assert.Equal(t, uint32(1), h)

	w, h = NextMipExtent(w, h)
	assert.Equal(t, uint32(1), w)
	assert.Equal(t, uint32(1), h)
}

func TestNextMipExtentHalving(t *testing.T) {
	widths := []uint32{}
	for w := uint32(300); ; {
		w, _ = NextMipExtent(w, w)
		widths = append(widths, w)
		if w == 1 {
			break
		}
	}
	assert.Equal(t, []uint32{150, 75, 37, 18, 9, 4, 2, 1}, widths)
}

func TestNewImageDataConverts24BitFormats(t *testing.T) {
	// Two RGB8 pixels.
	src := []byte{10, 20, 30, 40, 50, 60}
	d := NewImageData(vk.FormatR8g8b8Unorm, 2, 1, src)

	assert.Equal(t, vk.FormatR8g8b8a8Unorm, d.Format)
	require.Len(t, d.Pixels, len(src)*4/3)
	assert.Equal(t, []byte{10, 20, 30, 0xFF, 40, 50, 60, 0xFF}, d.Pixels)
}

func TestNewImageDataConverts48BitFormats(t *testing.T) {
	// One RGB16 pixel (6 bytes) gains a 16-bit opaque alpha.
	src := []byte{1, 2, 3, 4, 5, 6}
	d := NewImageData(vk.FormatR16g16b16Unorm, 1, 1, src)

	assert.Equal(t, vk.FormatR16g16b16a16Unorm, d.Format)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 0xFF, 0xFF}, d.Pixels)
}

func TestNewImageDataLeavesFourChannelFormatsAlone(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	d := NewImageData(vk.FormatR8g8b8a8Unorm, 1, 1, src)

	assert.Equal(t, vk.FormatR8g8b8a8Unorm, d.Format)
	assert.Equal(t, src, d.Pixels)
}

func TestEmptyImageData(t *testing.T) {
	d := EmptyImageData(800, 600, vk.FormatB8g8r8a8Unorm)
	assert.Empty(t, d.Pixels)
	assert.Equal(t, uint32(10), d.MipLevels)
	assert.Equal(t, vk.FormatB8g8r8a8Unorm, d.Format)
}

func TestImageDataFromImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 7, A: 255})
		}
	}

	d := ImageDataFromImage(img)
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, d.Format)
	assert.Equal(t, uint32(4), d.Width)
	assert.Equal(t, uint32(2), d.Height)
	assert.Len(t, d.Pixels, 4*2*4)
	assert.Equal(t, uint32(2), d.MipLevels)
}
