package engine

import (
	"github.com/Carmen-Shannon/flux-go/engine/device"
	"github.com/Carmen-Shannon/flux-go/engine/frame"
	"github.com/Carmen-Shannon/flux-go/engine/profiler"
	"github.com/Carmen-Shannon/flux-go/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithWindowOptions forwards options to the window the engine creates.
//
// Parameters:
//   - options: window configuration such as title and initial size
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindowOptions(options ...window.WindowBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.windowOptions = append(e.windowOptions, options...)
	}
}

// WithDeviceOptions forwards options to the device the engine creates.
//
// Parameters:
//   - options: device configuration such as the app name and validation layers
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithDeviceOptions(options ...device.DeviceBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.deviceOptions = append(e.deviceOptions, options...)
	}
}

// WithFrameOptions forwards options to the frame ring the engine creates,
// such as the preferred present mode.
//
// Parameters:
//   - options: frame ring configuration
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithFrameOptions(options ...frame.BuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.frameOptions = append(e.frameOptions, options...)
	}
}

// WithProfiling enables per-second frame rate and memory statistics through
// the flux logger.
//
// Parameters:
//   - enabled: whether to collect and emit frame statistics
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		if enabled {
			e.profiler = profiler.NewProfiler()
		} else {
			e.profiler = nil
		}
	}
}

// WithValidation enables the standard validation layer, useful during
// development.
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithValidation() EngineBuilderOption {
	return func(e *engine) {
		e.deviceOptions = append(e.deviceOptions,
			device.WithValidationLayers("VK_LAYER_KHRONOS_validation"))
	}
}
