package device

// DeviceBuilderOption is a functional option applied to a device during construction via NewDevice.
type DeviceBuilderOption func(*vulkanDevice)

// WithAppName sets the application name reported to the Vulkan driver.
//
// Parameters:
//   - name: the application name
//
// Returns:
//   - DeviceBuilderOption: option function to apply
func WithAppName(name string) DeviceBuilderOption {
	return func(d *vulkanDevice) {
		d.appName = name
	}
}

// WithValidationLayers enables the given instance/device validation layers.
// Typically "VK_LAYER_KHRONOS_validation" during development.
//
// Parameters:
//   - layers: the layer names to enable
//
// Returns:
//   - DeviceBuilderOption: option function to apply
func WithValidationLayers(layers ...string) DeviceBuilderOption {
	return func(d *vulkanDevice) {
		d.validationLayers = layers
	}
}
