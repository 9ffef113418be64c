package device

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/flux-go"
	vk "github.com/goki/vulkan"
)

// requiredDeviceExtensions are the device extensions the engine cannot run without.
// Only the swapchain extension is required; everything else is core Vulkan 1.0.
var requiredDeviceExtensions = []string{"VK_KHR_swapchain"}

// SurfaceProvider supplies the platform pieces needed to bootstrap a Vulkan device
// against a presentation surface. The window package implements this; tests and
// offscreen tools can provide their own.
type SurfaceProvider interface {
	// RequiredInstanceExtensions returns the instance extensions the platform
	// surface needs (e.g. VK_KHR_surface plus the platform-specific extension).
	RequiredInstanceExtensions() []string

	// CreateSurface creates the platform presentation surface on the given instance.
	//
	// Parameters:
	//   - instance: the Vulkan instance to create the surface on
	//
	// Returns:
	//   - vk.Surface: the created surface
	//   - error: error if surface creation fails
	CreateSurface(instance vk.Instance) (vk.Surface, error)
}

// Device owns the Vulkan instance, surface, physical and logical device, and the
// graphics and present queues. It is the root of the teardown order: every other
// GPU object in the engine is destroyed before the Device, and the Device itself
// waits for the GPU to go idle before releasing anything.
type Device interface {
	// Handle returns the logical device handle.
	Handle() vk.Device

	// PhysicalDevice returns the selected physical device.
	PhysicalDevice() vk.PhysicalDevice

	// Instance returns the Vulkan instance.
	Instance() vk.Instance

	// Surface returns the presentation surface.
	Surface() vk.Surface

	// GraphicsQueue returns the graphics queue handle.
	GraphicsQueue() vk.Queue

	// PresentQueue returns the presentation queue handle. May alias the
	// graphics queue when one family serves both.
	PresentQueue() vk.Queue

	// QueueFamilies returns the resolved queue family indices.
	QueueFamilies() QueueFamilyIndices

	// SurfaceCapabilities queries the current surface capabilities. The result
	// reflects the window size at call time, so it is re-queried on every
	// swapchain (re)build rather than cached.
	//
	// Returns:
	//   - vk.SurfaceCapabilities: the dereferenced capabilities
	//   - error: error if the query fails
	SurfaceCapabilities() (vk.SurfaceCapabilities, error)

	// SurfaceFormats queries the supported surface formats.
	//
	// Returns:
	//   - []vk.SurfaceFormat: the dereferenced formats
	//   - error: error if the query fails
	SurfaceFormats() ([]vk.SurfaceFormat, error)

	// PresentModes queries the supported presentation modes.
	//
	// Returns:
	//   - []vk.PresentMode: the supported modes
	//   - error: error if the query fails
	PresentModes() ([]vk.PresentMode, error)

	// SupportsLinearBlit reports whether the device can blit the given format
	// with linear filtering under optimal tiling. Mipmap generation requires this.
	//
	// Parameters:
	//   - format: the format to check
	//
	// Returns:
	//   - bool: true if linear-filtered blits are supported
	SupportsLinearBlit(format vk.Format) bool

	// WaitIdle blocks until the device has finished all submitted work.
	//
	// Returns:
	//   - error: error if the wait fails
	WaitIdle() error

	// CreateRenderPass creates a render pass object.
	CreateRenderPass(info vk.RenderPassCreateInfo) (vk.RenderPass, error)

	// DestroyRenderPass destroys a render pass object.
	DestroyRenderPass(rp vk.RenderPass)

	// CreateFramebuffer creates a framebuffer object.
	CreateFramebuffer(info vk.FramebufferCreateInfo) (vk.Framebuffer, error)

	// DestroyFramebuffer destroys a framebuffer object.
	DestroyFramebuffer(fb vk.Framebuffer)

	// CreateImageView creates an image view.
	CreateImageView(info vk.ImageViewCreateInfo) (vk.ImageView, error)

	// DestroyImageView destroys an image view.
	DestroyImageView(view vk.ImageView)

	// BeginRenderPass records a render pass begin into the command buffer with
	// inline subpass contents.
	BeginRenderPass(cmd vk.CommandBuffer, info vk.RenderPassBeginInfo)

	// EndRenderPass records the end of the current render pass.
	EndRenderPass(cmd vk.CommandBuffer)

	// Destroy waits for the device to go idle, then destroys the logical device,
	// surface, and instance. Every object created from this device must already
	// be destroyed.
	Destroy()
}

// QueueFamilyIndices holds the resolved queue family indices for the device.
type QueueFamilyIndices struct {
	// Graphics is the graphics-capable queue family index.
	Graphics uint32
	// Present is the presentation-capable queue family index. May equal Graphics.
	Present uint32
}

// Aliased reports whether graphics and present share one queue family.
func (q QueueFamilyIndices) Aliased() bool {
	return q.Graphics == q.Present
}

// vulkanDevice is the implementation of the Device interface.
type vulkanDevice struct {
	appName          string
	validationLayers []string

	instance       vk.Instance
	surface        vk.Surface
	physicalDevice vk.PhysicalDevice
	device         vk.Device
	graphicsQueue  vk.Queue
	presentQueue   vk.Queue
	families       QueueFamilyIndices
}

var _ Device = &vulkanDevice{}

// NewDevice bootstraps the full Vulkan context: instance, surface, physical device
// selection, logical device, and queue handles. The Vulkan loader must already be
// initialized (vk.Init) by the window package before calling this.
//
// Parameters:
//   - provider: platform surface source (usually the engine window)
//   - options: variadic list of DeviceBuilderOption functions
//
// Returns:
//   - Device: the initialized device
//   - error: error if any bootstrap stage fails
func NewDevice(provider SurfaceProvider, options ...DeviceBuilderOption) (Device, error) {
	d := &vulkanDevice{
		appName: "flux",
	}
	for _, opt := range options {
		opt(d)
	}

	if err := d.createInstance(provider.RequiredInstanceExtensions()); err != nil {
		return nil, err
	}

	surface, err := provider.CreateSurface(d.instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create presentation surface: %w", err)
	}
	d.surface = surface

	if err := d.selectPhysicalDevice(); err != nil {
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		return nil, err
	}

	flux.Logger().Info("vulkan device initialized",
		"graphicsFamily", d.families.Graphics,
		"presentFamily", d.families.Present,
	)
	return d, nil
}

func (d *vulkanDevice) createInstance(extensions []string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeString(d.appName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        safeString("flux"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}

	createInfo := &vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	if len(d.validationLayers) > 0 {
		createInfo.EnabledLayerCount = uint32(len(d.validationLayers))
		createInfo.PpEnabledLayerNames = safeStrings(d.validationLayers)
	}

	var instance vk.Instance
	if res := vk.CreateInstance(createInfo, nil, &instance); res != vk.Success {
		return fmt.Errorf("failed to create vulkan instance: %w", vk.Error(res))
	}
	if err := vk.InitInstance(instance); err != nil {
		return fmt.Errorf("failed to load instance procedures: %w", err)
	}
	d.instance = instance
	return nil
}

func (d *vulkanDevice) selectPhysicalDevice() error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(d.instance, &count, nil); res != vk.Success {
		return fmt.Errorf("failed to enumerate physical devices: %w", vk.Error(res))
	}
	if count == 0 {
		return errors.New("no vulkan-capable physical device found")
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(d.instance, &count, devices); res != vk.Success {
		return fmt.Errorf("failed to enumerate physical devices: %w", vk.Error(res))
	}

	// Prefer a discrete GPU but fall back to anything that satisfies the
	// queue, extension, and swapchain requirements.
	var fallback vk.PhysicalDevice
	var fallbackFamilies QueueFamilyIndices
	for _, pd := range devices {
		families, ok := findQueueFamilies(pd, d.surface)
		if !ok || !supportsExtensions(pd, requiredDeviceExtensions) || !swapchainAdequate(pd, d.surface) {
			continue
		}

		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()

		if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			d.physicalDevice = pd
			d.families = families
			return nil
		}
		if fallback == nil {
			fallback = pd
			fallbackFamilies = families
		}
	}
	if fallback == nil {
		return errors.New("no suitable physical device found")
	}
	d.physicalDevice = fallback
	d.families = fallbackFamilies
	return nil
}

// findQueueFamilies locates a graphics-capable family and a present-capable family,
// preferring a single family that serves both.
func findQueueFamilies(pd vk.PhysicalDevice, surface vk.Surface) (QueueFamilyIndices, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, props)

	var graphics, present *uint32
	for i := range props {
		props[i].Deref()
		idx := uint32(i)

		if props[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 && graphics == nil {
			graphics = &idx
		}

		var supported vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, idx, surface, &supported)
		if supported == vk.True {
			if graphics != nil && *graphics == idx {
				// One family for both; stop looking.
				present = &idx
				break
			}
			if present == nil {
				present = &idx
			}
		}
	}
	if graphics == nil || present == nil {
		return QueueFamilyIndices{}, false
	}
	return QueueFamilyIndices{Graphics: *graphics, Present: *present}, true
}

func supportsExtensions(pd vk.PhysicalDevice, required []string) bool {
	var count uint32
	vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil)
	props := make([]vk.ExtensionProperties, count)
	vk.EnumerateDeviceExtensionProperties(pd, "", &count, props)

	available := make(map[string]struct{}, count)
	for i := range props {
		props[i].Deref()
		available[vk.ToString(props[i].ExtensionName[:])] = struct{}{}
	}
	for _, ext := range required {
		if _, ok := available[ext]; !ok {
			return false
		}
	}
	return true
}

// swapchainAdequate reports whether the surface exposes at least one format and
// one present mode on this device.
func swapchainAdequate(pd vk.PhysicalDevice, surface vk.Surface) bool {
	var formatCount, modeCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, nil)
	vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, nil)
	return formatCount > 0 && modeCount > 0
}

func (d *vulkanDevice) createLogicalDevice() error {
	priority := []float32{1.0}
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.families.Graphics,
		QueueCount:       1,
		PQueuePriorities: priority,
	}}
	if !d.families.Aliased() {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.families.Present,
			QueueCount:       1,
			PQueuePriorities: priority,
		})
	}

	createInfo := &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(requiredDeviceExtensions)),
		PpEnabledExtensionNames: safeStrings(requiredDeviceExtensions),
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
	}
	if len(d.validationLayers) > 0 {
		createInfo.EnabledLayerCount = uint32(len(d.validationLayers))
		createInfo.PpEnabledLayerNames = safeStrings(d.validationLayers)
	}

	var device vk.Device
	if res := vk.CreateDevice(d.physicalDevice, createInfo, nil, &device); res != vk.Success {
		return fmt.Errorf("failed to create logical device: %w", vk.Error(res))
	}
	d.device = device

	vk.GetDeviceQueue(d.device, d.families.Graphics, 0, &d.graphicsQueue)
	vk.GetDeviceQueue(d.device, d.families.Present, 0, &d.presentQueue)
	return nil
}

func (d *vulkanDevice) Handle() vk.Device                 { return d.device }
func (d *vulkanDevice) PhysicalDevice() vk.PhysicalDevice { return d.physicalDevice }
func (d *vulkanDevice) Instance() vk.Instance             { return d.instance }
func (d *vulkanDevice) Surface() vk.Surface               { return d.surface }
func (d *vulkanDevice) GraphicsQueue() vk.Queue           { return d.graphicsQueue }
func (d *vulkanDevice) PresentQueue() vk.Queue            { return d.presentQueue }
func (d *vulkanDevice) QueueFamilies() QueueFamilyIndices { return d.families }

func (d *vulkanDevice) SurfaceCapabilities() (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(d.physicalDevice, d.surface, &caps); res != vk.Success {
		return vk.SurfaceCapabilities{}, fmt.Errorf("failed to query surface capabilities: %w", vk.Error(res))
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

func (d *vulkanDevice) SurfaceFormats() ([]vk.SurfaceFormat, error) {
	var count uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(d.physicalDevice, d.surface, &count, nil); res != vk.Success {
		return nil, fmt.Errorf("failed to query surface formats: %w", vk.Error(res))
	}
	formats := make([]vk.SurfaceFormat, count)
	if res := vk.GetPhysicalDeviceSurfaceFormats(d.physicalDevice, d.surface, &count, formats); res != vk.Success {
		return nil, fmt.Errorf("failed to query surface formats: %w", vk.Error(res))
	}
	for i := range formats {
		formats[i].Deref()
	}
	return formats, nil
}

func (d *vulkanDevice) PresentModes() ([]vk.PresentMode, error) {
	var count uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(d.physicalDevice, d.surface, &count, nil); res != vk.Success {
		return nil, fmt.Errorf("failed to query present modes: %w", vk.Error(res))
	}
	modes := make([]vk.PresentMode, count)
	if res := vk.GetPhysicalDeviceSurfacePresentModes(d.physicalDevice, d.surface, &count, modes); res != vk.Success {
		return nil, fmt.Errorf("failed to query present modes: %w", vk.Error(res))
	}
	return modes, nil
}

func (d *vulkanDevice) SupportsLinearBlit(format vk.Format) bool {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.physicalDevice, format, &props)
	props.Deref()
	return props.OptimalTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureSampledImageFilterLinearBit) != 0
}

func (d *vulkanDevice) WaitIdle() error {
	if res := vk.DeviceWaitIdle(d.device); res != vk.Success {
		return fmt.Errorf("failed to wait for device idle: %w", vk.Error(res))
	}
	return nil
}

func (d *vulkanDevice) CreateRenderPass(info vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	var rp vk.RenderPass
	if res := vk.CreateRenderPass(d.device, &info, nil, &rp); res != vk.Success {
		return nil, fmt.Errorf("failed to create render pass: %w", vk.Error(res))
	}
	return rp, nil
}

func (d *vulkanDevice) DestroyRenderPass(rp vk.RenderPass) {
	vk.DestroyRenderPass(d.device, rp, nil)
}

func (d *vulkanDevice) CreateFramebuffer(info vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	var fb vk.Framebuffer
	if res := vk.CreateFramebuffer(d.device, &info, nil, &fb); res != vk.Success {
		return nil, fmt.Errorf("failed to create framebuffer: %w", vk.Error(res))
	}
	return fb, nil
}

func (d *vulkanDevice) DestroyFramebuffer(fb vk.Framebuffer) {
	vk.DestroyFramebuffer(d.device, fb, nil)
}

func (d *vulkanDevice) CreateImageView(info vk.ImageViewCreateInfo) (vk.ImageView, error) {
	var view vk.ImageView
	if res := vk.CreateImageView(d.device, &info, nil, &view); res != vk.Success {
		return nil, fmt.Errorf("failed to create image view: %w", vk.Error(res))
	}
	return view, nil
}

func (d *vulkanDevice) DestroyImageView(view vk.ImageView) {
	vk.DestroyImageView(d.device, view, nil)
}

func (d *vulkanDevice) BeginRenderPass(cmd vk.CommandBuffer, info vk.RenderPassBeginInfo) {
	vk.CmdBeginRenderPass(cmd, &info, vk.SubpassContentsInline)
}

func (d *vulkanDevice) EndRenderPass(cmd vk.CommandBuffer) {
	vk.CmdEndRenderPass(cmd)
}

func (d *vulkanDevice) Destroy() {
	if d.device != nil {
		if err := d.WaitIdle(); err != nil {
			flux.Logger().Warn("device idle wait failed during teardown", "error", err)
		}
		vk.DestroyDevice(d.device, nil)
		d.device = nil
	}
	if d.surface != nil {
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = nil
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
}

// safeString null-terminates a string for handoff to the C API.
func safeString(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\x00' {
		return s
	}
	return s + "\x00"
}

// safeStrings null-terminates every string in a slice for handoff to the C API.
func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}
