package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

type swapchain struct {
	handle khr_swapchain.Swapchain
	images []gpu.Image
	format gpu.Format
	extent gpu.Extent
}

// swapchainImage is owned by its swapchain and never destroyed directly.
type swapchainImage struct {
	handle core1_0.Image
	format gpu.Format
	extent gpu.Extent
}

func (i *swapchainImage) Extent() gpu.Extent { return i.extent }
func (i *swapchainImage) Format() gpu.Format { return i.format }
func (i *swapchainImage) vk() core1_0.Image  { return i.handle }

func (c *Context) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	capabilities, _, err := c.surface.PhysicalDeviceSurfaceCapabilities(c.physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "query surface capabilities")
	}
	formats, _, err := c.surface.PhysicalDeviceSurfaceFormats(c.physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "query surface formats")
	}
	modes, _, err := c.surface.PhysicalDeviceSurfacePresentModes(c.physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "query present modes")
	}

	surfaceFormat, err := chooseSurfaceFormat(formats)
	if err != nil {
		return nil, err
	}
	if fromFormat(surfaceFormat.Format) == gpu.FormatUndefined {
		return nil, errors.Newf("unsupported surface format %v", surfaceFormat.Format)
	}
	mode := choosePresentMode(modes, info.PresentMode)
	extent := chooseExtent(capabilities, info.Extent)
	if extent.Width == 0 || extent.Height == 0 {
		return nil, errors.Newf("surface extent %dx%d", extent.Width, extent.Height)
	}

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if c.families.graphics != c.families.present {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = c.families.unique()
	}

	createInfo := khr_swapchain.SwapchainCreateInfo{
		Surface: c.surface,

		MinImageCount:    imageCount(capabilities),
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    mode,
		Clipped:        true,
	}
	if old, ok := info.Old.(*swapchain); ok && old.handle != nil {
		createInfo.OldSwapchain = old.handle
	}

	handle, _, err := c.swapchainExt.CreateSwapchain(c.device, nil, createInfo)
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}

	vkImages, _, err := handle.SwapchainImages()
	if err != nil {
		handle.Destroy(nil)
		return nil, errors.Wrap(err, "get swapchain images")
	}

	sc := &swapchain{
		handle: handle,
		format: fromFormat(surfaceFormat.Format),
		extent: gpu.Extent{Width: extent.Width, Height: extent.Height},
	}
	for _, img := range vkImages {
		sc.images = append(sc.images, &swapchainImage{handle: img, format: sc.format, extent: sc.extent})
	}

	c.logger.Debug("swapchain created",
		slog.Int("images", len(sc.images)),
		slog.Int("width", extent.Width),
		slog.Int("height", extent.Height),
		slog.Any("present_mode", mode))
	return sc, nil
}

func (s *swapchain) Images() []gpu.Image { return s.images }
func (s *swapchain) Format() gpu.Format  { return s.format }
func (s *swapchain) Extent() gpu.Extent  { return s.extent }

func (s *swapchain) AcquireNextImage(signal gpu.Semaphore) (int, gpu.PresentResult, error) {
	idx, res, err := s.handle.AcquireNextImage(common.NoTimeout, signal.(*semaphore).handle, nil)
	result, err := presentResult(res, err)
	if err != nil {
		return 0, result, errors.Wrap(err, "acquire next image")
	}
	return idx, result, nil
}

func (s *swapchain) Destroy() {
	if s.handle == nil {
		return
	}
	s.handle.Destroy(nil)
	s.handle = nil
}
