package resource

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// UnsupportedFormatError reports that the device cannot linear-filter blit the
// given format, which mipmap generation requires. The caller must choose a
// different format or upload with a single mip level.
type UnsupportedFormatError struct {
	// Format is the rejected pixel format.
	Format vk.Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("format %d does not support linear-filtered blits required for mipmap generation", e.Format)
}
