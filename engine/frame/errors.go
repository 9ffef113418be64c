package frame

import "errors"

// ErrSurfaceOutOfDate reports that the presentation surface no longer matches
// the swapchain, typically after a resize. It is recoverable: the frame
// engine recreates the swapchain and signals the caller to rebuild anything
// bound to the old surface images. It is never propagated out of Render.
var ErrSurfaceOutOfDate = errors.New("presentation surface is out of date")
