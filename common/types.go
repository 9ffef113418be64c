// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"os"

	vk "github.com/goki/vulkan"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageData holds CPU-side pixel data for an image pending GPU upload, along with the
// metadata required to create and fill the GPU image (format, extent, mip chain length).
// This is the staging form consumed by the resource layer; it never touches the GPU itself.
type ImageData struct {
	// Format is the Vulkan pixel format of Pixels. 24-bit (3-channel) formats are
	// converted to their 4-channel variants on construction; see NewImageData.
	Format vk.Format
	// Width is the base level width in pixels.
	Width uint32
	// Height is the base level height in pixels.
	Height uint32
	// Pixels is the raw pixel byte data for mip level 0. May be empty for images that
	// are rendered into rather than uploaded.
	Pixels []byte
	// MipLevels is the length of the full mip chain for the extent, as computed by
	// CalculateMipLevels.
	MipLevels uint32
}

// NewImageData builds an ImageData from raw pixel bytes in the given format.
// If the format is a 3-channel (24/48-bit) format, the pixel data is expanded with an
// opaque alpha channel and the format is reinterpreted as the corresponding 4-channel
// variant. Vulkan implementations are not required to support sampling 24-bit formats,
// so this conversion is unconditional.
//
// Parameters:
//   - format: the Vulkan format describing the pixel bytes
//   - width: base level width in pixels
//   - height: base level height in pixels
//   - pixels: raw pixel bytes, tightly packed, row-major
//
// Returns:
//   - *ImageData: the staging data with the mip chain length pre-computed
func NewImageData(format vk.Format, width, height uint32, pixels []byte) *ImageData {
	d := &ImageData{
		Format:    format,
		Width:     width,
		Height:    height,
		Pixels:    pixels,
		MipLevels: CalculateMipLevels(width, height),
	}
	d.convert24BitFormat()
	return d
}

// EmptyImageData builds an ImageData with no pixel bytes, describing an image that will
// be rendered into or filled by other GPU work rather than uploaded from the CPU.
//
// Parameters:
//   - width: base level width in pixels
//   - height: base level height in pixels
//   - format: the Vulkan format of the image
//
// Returns:
//   - *ImageData: the staging data with an empty pixel slice
func EmptyImageData(width, height uint32, format vk.Format) *ImageData {
	return &ImageData{
		Format:    format,
		Width:     width,
		Height:    height,
		MipLevels: CalculateMipLevels(width, height),
	}
}

// ImageDataFromImage converts a decoded Go image into RGBA8 ImageData.
// All source image kinds are drawn into an RGBA buffer, so the result is always
// 4-channel and never needs the 24-bit conversion path.
//
// Parameters:
//   - img: the decoded source image
//
// Returns:
//   - *ImageData: RGBA8 staging data (4 bytes per pixel, row-major order)
func ImageDataFromImage(img image.Image) *ImageData {
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	return NewImageData(
		vk.FormatR8g8b8a8Unorm,
		uint32(bounds.Dx()),
		uint32(bounds.Dy()),
		rgba.Pix,
	)
}

// ImageDataFromFile decodes an image file into RGBA8 ImageData. PNG, JPEG,
// BMP, TIFF and WebP are supported.
// Reference: https://pkg.go.dev/image
//
// Parameters:
//   - path: filesystem path of the image file
//
// Returns:
//   - *ImageData: RGBA8 staging data
//   - error: error if the file cannot be opened or decoded
func ImageDataFromFile(path string) (*ImageData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image file %s: %w", path, err)
	}
	return ImageDataFromImage(img), nil
}

// ImageDataFromBytes decodes embedded image bytes into RGBA8 ImageData. The
// same formats as ImageDataFromFile are supported.
//
// Parameters:
//   - data: encoded image bytes
//
// Returns:
//   - *ImageData: RGBA8 staging data
//   - error: error if decoding fails
func ImageDataFromBytes(data []byte) (*ImageData, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode embedded image: %w", err)
	}
	return ImageDataFromImage(img), nil
}

// CalculateMipLevels returns the full mip chain length for an extent:
// floor(log2(min(width, height))) + 1. A 512x512 image has 10 levels, a 1x1 image has 1.
//
// Parameters:
//   - width: base level width in pixels
//   - height: base level height in pixels
//
// Returns:
//   - uint32: the mip chain length, or 0 if either dimension is 0
func CalculateMipLevels(width, height uint32) uint32 {
	m := min(width, height)
	// bits.Len32(m) == floor(log2(m)) + 1 for m > 0.
	return uint32(bits.Len32(m))
}

// NextMipExtent returns the extent of the mip level below the given one. Each axis
// halves with a floor of 1, so the chain terminates correctly at 1x1.
//
// Parameters:
//   - width: current level width in pixels
//   - height: current level height in pixels
//
// Returns:
//   - uint32: next level width
//   - uint32: next level height
func NextMipExtent(width, height uint32) (uint32, uint32) {
	return max(width/2, 1), max(height/2, 1)
}

// fourChannelVariant maps a 3-channel format to its 4-channel counterpart and the byte
// width of one channel. ok is false for formats that need no conversion.
func fourChannelVariant(format vk.Format) (converted vk.Format, channelBytes int, ok bool) {
	switch format {
	case vk.FormatR8g8b8Unorm:
		return vk.FormatR8g8b8a8Unorm, 1, true
	case vk.FormatB8g8r8Unorm:
		return vk.FormatB8g8r8a8Unorm, 1, true
	case vk.FormatR16g16b16Unorm:
		return vk.FormatR16g16b16a16Unorm, 2, true
	default:
		return format, 0, false
	}
}

func (d *ImageData) convert24BitFormat() {
	converted, channelBytes, ok := fourChannelVariant(d.Format)
	if !ok {
		return
	}
	d.Format = converted
	d.Pixels = attachAlphaChannel(d.Pixels, channelBytes)
}

// attachAlphaChannel expands 3-channel pixel bytes to 4-channel by appending a
// full-intensity alpha channel after every pixel.
func attachAlphaChannel(pixels []byte, channelBytes int) []byte {
	if len(pixels) == 0 {
		return pixels
	}
	pixelBytes := 3 * channelBytes
	out := make([]byte, 0, len(pixels)/pixelBytes*(pixelBytes+channelBytes))
	for i := 0; i+pixelBytes <= len(pixels); i += pixelBytes {
		out = append(out, pixels[i:i+pixelBytes]...)
		for c := 0; c < channelBytes; c++ {
			out = append(out, 0xFF)
		}
	}
	return out
}
