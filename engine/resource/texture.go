package resource

import (
	"fmt"

	"github.com/Carmen-Shannon/flux-go/common"
	"github.com/Carmen-Shannon/flux-go/engine/device"
	vk "github.com/goki/vulkan"
)

// Texture is a sampled 2D image with its view and sampler, fully uploaded and
// mipmapped.
type Texture struct {
	image   *AllocatedImage
	view    vk.ImageView
	sampler vk.Sampler
	device  device.Device
}

// NewTexture allocates a 2D image, uploads the pixel data with a full mip
// chain and wraps it in a view and linear sampler.
//
// Parameters:
//   - dev: the logical device.
//   - allocator: the allocator to create the image through.
//   - cmds: the transfer surface to upload through.
//   - data: the pixel data, already format-converted.
//
// Returns:
//   - *Texture: the ready-to-sample texture.
//   - error: an error if allocation or upload fails, otherwise nil.
func NewTexture(dev device.Device, allocator *device.Allocator, cmds Commands, data *common.ImageData) (*Texture, error) {
	mipLevels := data.MipLevels
	if mipLevels > 1 && !cmds.SupportsLinearBlit(data.Format) {
		mipLevels = 1
	}
	usage := vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit)
	if mipLevels > 1 {
		usage |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	img, err := AllocateImage(allocator, ImageSpec{
		Width:      data.Width,
		Height:     data.Height,
		Format:     data.Format,
		MipLevels:  mipLevels,
		LayerCount: 1,
		Usage:      usage,
	})
	if err != nil {
		return nil, err
	}
	if err := img.Upload(cmds, data); err != nil {
		img.Destroy()
		return nil, err
	}
	view, err := dev.CreateImageView(vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle(),
		ViewType: vk.ImageViewType2d,
		Format:   img.Format(),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: img.MipLevels(),
			LayerCount: 1,
		},
	})
	if err != nil {
		img.Destroy()
		return nil, err
	}
	sampler, err := newLinearSampler(dev, float32(img.MipLevels()))
	if err != nil {
		dev.DestroyImageView(view)
		img.Destroy()
		return nil, err
	}
	return &Texture{image: img, view: view, sampler: sampler, device: dev}, nil
}

// View returns the texture's image view.
func (t *Texture) View() vk.ImageView {
	return t.view
}

// Sampler returns the texture's sampler.
func (t *Texture) Sampler() vk.Sampler {
	return t.sampler
}

// Image returns the underlying allocated image.
func (t *Texture) Image() *AllocatedImage {
	return t.image
}

// Destroy releases the sampler, view and image in that order.
func (t *Texture) Destroy() {
	if t == nil {
		return
	}
	vk.DestroySampler(t.device.Handle(), t.sampler, nil)
	t.device.DestroyImageView(t.view)
	t.image.Destroy()
}

// Cubemap is a sampled six-layer cube image with its view and sampler.
type Cubemap struct {
	image   *AllocatedImage
	view    vk.ImageView
	sampler vk.Sampler
	device  device.Device
}

// NewCubemap allocates a cube-compatible image from six equally sized faces
// and uploads them as array layers. Faces are ordered +X, -X, +Y, -Y, +Z, -Z.
//
// Parameters:
//   - dev: the logical device.
//   - allocator: the allocator to create the image through.
//   - cmds: the transfer surface to upload through.
//   - faces: exactly six faces with matching dimensions and format.
//
// Returns:
//   - *Cubemap: the ready-to-sample cubemap.
//   - error: an error if the faces mismatch or the upload fails, otherwise
//     nil.
func NewCubemap(dev device.Device, allocator *device.Allocator, cmds Commands, faces []*common.ImageData) (*Cubemap, error) {
	if len(faces) != 6 {
		return nil, fmt.Errorf("cubemap requires 6 faces, got %d", len(faces))
	}
	first := faces[0]
	pixels := make([]byte, 0, len(first.Pixels)*6)
	for i, face := range faces {
		if face.Width != first.Width || face.Height != first.Height || face.Format != first.Format {
			return nil, fmt.Errorf("cubemap face %d does not match face 0 dimensions or format", i)
		}
		pixels = append(pixels, face.Pixels...)
	}
	img, err := AllocateImage(allocator, ImageSpec{
		Width:      first.Width,
		Height:     first.Height,
		Format:     first.Format,
		MipLevels:  1,
		LayerCount: 6,
		Usage:      vk.ImageUsageFlags(vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit),
		Flags:      vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit),
	})
	if err != nil {
		return nil, err
	}
	combined := &common.ImageData{
		Format:    first.Format,
		Width:     first.Width,
		Height:    first.Height,
		Pixels:    pixels,
		MipLevels: 1,
	}
	if err := img.Upload(cmds, combined); err != nil {
		img.Destroy()
		return nil, err
	}
	view, err := dev.CreateImageView(vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle(),
		ViewType: vk.ImageViewTypeCube,
		Format:   img.Format(),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 6,
		},
	})
	if err != nil {
		img.Destroy()
		return nil, err
	}
	sampler, err := newLinearSampler(dev, 1)
	if err != nil {
		dev.DestroyImageView(view)
		img.Destroy()
		return nil, err
	}
	return &Cubemap{image: img, view: view, sampler: sampler, device: dev}, nil
}

// View returns the cubemap's image view.
func (c *Cubemap) View() vk.ImageView {
	return c.view
}

// Sampler returns the cubemap's sampler.
func (c *Cubemap) Sampler() vk.Sampler {
	return c.sampler
}

// Destroy releases the sampler, view and image in that order.
func (c *Cubemap) Destroy() {
	if c == nil {
		return
	}
	vk.DestroySampler(c.device.Handle(), c.sampler, nil)
	c.device.DestroyImageView(c.view)
	c.image.Destroy()
}

func newLinearSampler(dev device.Device, maxLod float32) (vk.Sampler, error) {
	var sampler vk.Sampler
	info := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    vk.FilterLinear,
		MinFilter:    vk.FilterLinear,
		MipmapMode:   vk.SamplerMipmapModeLinear,
		AddressModeU: vk.SamplerAddressModeRepeat,
		AddressModeV: vk.SamplerAddressModeRepeat,
		AddressModeW: vk.SamplerAddressModeRepeat,
		MaxLod:       maxLod,
		BorderColor:  vk.BorderColorIntOpaqueBlack,
	}
	if res := vk.CreateSampler(dev.Handle(), &info, nil, &sampler); res != vk.Success {
		return vk.NullSampler, fmt.Errorf("failed to create sampler: %w", vk.Error(res))
	}
	return sampler, nil
}
