// Package vkng implements the gpu handle model on vkngwrapper, with memory
// managed by the arsenal allocator and the surface provided by SDL2.
package vkng

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/arsenal/vam"
	"github.com/vkngwrapper/core/v2"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v2/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v2/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v2"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/tutorial-engine/gpu"
	"github.com/vkngwrapper/tutorial-engine/logging"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

// Options control instance and device creation.
type Options struct {
	AppName    string
	Validation bool
	// WideLines enables line widths other than 1 when the device has them.
	WideLines bool
}

// Context owns the instance, surface, logical device and allocator. It
// implements gpu.Device.
type Context struct {
	logger *slog.Logger
	window *sdl.Window

	loader         core.Loader
	instance       core1_0.Instance
	debugMessenger ext_debug_utils.DebugUtilsMessenger
	surfaceExt     khr_surface.Extension
	surface        khr_surface.Surface
	physicalDevice core1_0.PhysicalDevice
	device         core1_0.Device
	swapchainExt   khr_swapchain.Extension
	allocator      *vam.Allocator

	families      queueFamilies
	graphicsQueue *queue
	presentQueue  *queue

	depthFormat   gpu.Format
	wideLines     bool
	maxAnisotropy float32

	scope *gpu.Scope
}

var _ gpu.Device = (*Context)(nil)

// Bootstrap brings up Vulkan for window. Nothing is left alive on failure.
func Bootstrap(window *sdl.Window, opts Options, logger *slog.Logger) (*Context, error) {
	c := &Context{
		logger: logging.Component(logger, "vulkan"),
		window: window,
		scope:  &gpu.Scope{},
	}
	defer c.scope.Release()

	var err error
	c.loader, err = core.CreateLoaderFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "create loader")
	}

	steps := []struct {
		name string
		fn   func(Options) error
	}{
		{"create instance", c.createInstance},
		{"setup debug messenger", c.setupDebugMessenger},
		{"create surface", func(Options) error { return c.createSurface() }},
		{"pick physical device", func(Options) error { return c.pickPhysicalDevice() }},
		{"create logical device", c.createLogicalDevice},
		{"create allocator", func(Options) error { return c.createAllocator() }},
	}
	for _, step := range steps {
		if err := step.fn(opts); err != nil {
			return nil, errors.Wrap(err, step.name)
		}
	}

	c.scope = c.scope.Dismiss()
	return c, nil
}

func (c *Context) createInstance(opts Options) error {
	appName := opts.AppName
	if appName == "" {
		appName = "Vulkan"
	}
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    appName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "tutorial-engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := c.window.VulkanGetInstanceExtensions()
	extensions, _, err := c.loader.AvailableExtensions()
	if err != nil {
		return err
	}
	for _, ext := range sdlExtensions {
		if _, ok := extensions[ext]; !ok {
			return errors.Newf("missing instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if opts.Validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	if _, ok := extensions[khr_portability_enumeration.ExtensionName]; ok {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if opts.Validation {
		layers, _, err := c.loader.AvailableLayers()
		if err != nil {
			return err
		}
		for _, layer := range validationLayers {
			if _, ok := layers[layer]; !ok {
				return errors.WithHintf(errors.Newf("validation layer %s not available", layer),
					"install the LunarG Vulkan SDK or run without validation")
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		// Covers messages from instance creation and destruction.
		instanceOptions.Next = c.debugMessengerOptions()
	}

	c.instance, _, err = c.loader.CreateInstance(nil, instanceOptions)
	if err != nil {
		return err
	}
	c.scope.Defer(func() { c.instance.Destroy(nil) })
	return nil
}

func (c *Context) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    c.logDebug,
	}
}

func (c *Context) setupDebugMessenger(opts Options) error {
	if !opts.Validation {
		return nil
	}

	var err error
	debugLoader := ext_debug_utils.CreateExtensionFromInstance(c.instance)
	c.debugMessenger, _, err = debugLoader.CreateDebugUtilsMessenger(c.instance, nil, c.debugMessengerOptions())
	if err != nil {
		return err
	}
	c.scope.Defer(func() { c.debugMessenger.Destroy(nil) })
	return nil
}

func (c *Context) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	level := slog.LevelWarn
	if severity&ext_debug_utils.SeverityError != 0 {
		level = slog.LevelError
	}
	c.logger.Log(context.Background(), level, data.Message, slog.String("type", msgType.String()))
	return false
}

func (c *Context) createSurface() error {
	c.surfaceExt = khr_surface.CreateExtensionFromInstance(c.instance)

	surface, err := vkng_sdl2.CreateSurface(c.instance, c.surfaceExt, c.window)
	if err != nil {
		return err
	}
	c.surface = surface
	c.scope.Defer(func() { c.surface.Destroy(nil) })
	return nil
}

func (c *Context) pickPhysicalDevice() error {
	physicalDevices, _, err := c.instance.EnumeratePhysicalDevices()
	if err != nil {
		return err
	}

	for _, device := range physicalDevices {
		families, ok := c.isDeviceSuitable(device)
		if ok {
			c.physicalDevice = device
			c.families = families
			break
		}
	}
	if c.physicalDevice == nil {
		return errors.New("no suitable GPU")
	}

	properties, err := c.physicalDevice.Properties()
	if err != nil {
		return err
	}
	c.maxAnisotropy = properties.Limits.MaxSamplerAnisotropy
	c.logger.Info("selected GPU",
		slog.String("name", properties.DeviceName),
		slog.Int("graphics_family", c.families.graphics),
		slog.Int("present_family", c.families.present))

	c.depthFormat, err = pickDepthFormat(func(f core1_0.Format) core1_0.FormatFeatureFlags {
		return c.physicalDevice.FormatProperties(f).OptimalTilingFeatures
	})
	return err
}

func (c *Context) isDeviceSuitable(device core1_0.PhysicalDevice) (queueFamilies, bool) {
	var flags []core1_0.QueueFlags
	for _, family := range device.QueueFamilyProperties() {
		flags = append(flags, family.QueueFlags)
	}
	families, err := pickQueueFamilies(flags, func(idx int) (bool, error) {
		supported, _, err := c.surface.PhysicalDeviceSurfaceSupport(device, idx)
		return supported, err
	})
	if err != nil {
		return families, false
	}

	extensions, _, err := device.EnumerateDeviceExtensionProperties()
	if err != nil {
		return families, false
	}
	for _, extension := range deviceExtensions {
		if _, ok := extensions[extension]; !ok {
			return families, false
		}
	}

	formats, _, err := c.surface.PhysicalDeviceSurfaceFormats(device)
	if err != nil || len(formats) == 0 {
		return families, false
	}
	modes, _, err := c.surface.PhysicalDeviceSurfacePresentModes(device)
	if err != nil || len(modes) == 0 {
		return families, false
	}

	return families, device.Features().SamplerAnisotropy
}

func (c *Context) createLogicalDevice(opts Options) error {
	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	for _, family := range c.families.unique() {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensionNames := append([]string{}, deviceExtensions...)
	extensions, _, err := c.physicalDevice.EnumerateDeviceExtensionProperties()
	if err != nil {
		return err
	}
	if _, ok := extensions[khr_portability_subset.ExtensionName]; ok {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	if opts.WideLines {
		c.wideLines = c.physicalDevice.Features().WideLines
		if !c.wideLines {
			c.logger.Warn("wide lines requested but not supported; lines stay 1px")
		}
	}

	c.device, _, err = c.physicalDevice.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
			WideLines:         c.wideLines,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return err
	}
	c.scope.Defer(func() { c.device.Destroy(nil) })

	c.graphicsQueue = &queue{ctx: c, handle: c.device.GetQueue(c.families.graphics, 0)}
	c.presentQueue = &queue{ctx: c, handle: c.device.GetQueue(c.families.present, 0)}
	c.swapchainExt = khr_swapchain.CreateExtensionFromDevice(c.device)
	return nil
}

func (c *Context) createAllocator() error {
	allocator, err := vam.New(c.logger, c.instance, c.physicalDevice, c.device, vam.CreateOptions{})
	if err != nil {
		return err
	}
	c.allocator = allocator
	c.scope.Defer(func() { c.allocator.Destroy() })
	return nil
}

// Destroy waits for the device and releases everything Bootstrap created.
// Objects created through the context must be destroyed first.
func (c *Context) Destroy() {
	if c.scope.Len() == 0 {
		return
	}
	if err := c.WaitIdle(); err != nil {
		c.logger.Error("wait idle before destroy", slog.Any("err", err))
	}
	c.scope.Release()
}

func (c *Context) WaitIdle() error {
	_, err := c.device.WaitIdle()
	return errors.Wrap(err, "device wait idle")
}

func (c *Context) GraphicsQueue() gpu.Queue { return c.graphicsQueue }
func (c *Context) PresentQueue() gpu.Queue  { return c.presentQueue }
func (c *Context) WideLines() bool          { return c.wideLines }
func (c *Context) DepthFormat() gpu.Format  { return c.depthFormat }
