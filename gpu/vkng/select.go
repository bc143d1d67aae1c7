package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

type queueFamilies struct {
	graphics int
	present  int
}

// pickQueueFamilies finds a graphics family and a family that can present to
// the surface, preferring a single family that does both.
func pickQueueFamilies(flags []core1_0.QueueFlags, canPresent func(int) (bool, error)) (queueFamilies, error) {
	families := queueFamilies{graphics: -1, present: -1}
	for idx, f := range flags {
		graphics := f&core1_0.QueueGraphics != 0
		present, err := canPresent(idx)
		if err != nil {
			return families, err
		}

		if graphics && present {
			return queueFamilies{graphics: idx, present: idx}, nil
		}
		if graphics && families.graphics < 0 {
			families.graphics = idx
		}
		if present && families.present < 0 {
			families.present = idx
		}
	}

	if families.graphics < 0 || families.present < 0 {
		return families, errors.New("no queue family for graphics and present")
	}
	return families, nil
}

func (f queueFamilies) unique() []int {
	if f.graphics == f.present {
		return []int{f.graphics}
	}
	return []int{f.graphics, f.present}
}

func chooseSurfaceFormat(available []khr_surface.SurfaceFormat) (khr_surface.SurfaceFormat, error) {
	if len(available) == 0 {
		return khr_surface.SurfaceFormat{}, errors.New("surface reports no formats")
	}
	for _, format := range available {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format, nil
		}
	}
	return available[0], nil
}

// choosePresentMode returns the requested mode when the surface offers it.
// FIFO is always available.
func choosePresentMode(available []khr_surface.PresentMode, requested gpu.PresentMode) khr_surface.PresentMode {
	want := presentMode(requested)
	for _, mode := range available {
		if mode == want {
			return mode
		}
	}
	return khr_surface.PresentModeFIFO
}

func chooseExtent(capabilities *khr_surface.SurfaceCapabilities, drawable gpu.Extent) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	width := clamp(drawable.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width)
	height := clamp(drawable.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height)
	return core1_0.Extent2D{Width: width, Height: height}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func imageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	count := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < count {
		count = capabilities.MaxImageCount
	}
	return count
}

var depthCandidates = []gpu.Format{
	gpu.FormatD32Float,
	gpu.FormatD32FloatS8,
	gpu.FormatD24S8,
}

// pickDepthFormat returns the first candidate whose optimal tiling supports
// depth attachments.
func pickDepthFormat(features func(core1_0.Format) core1_0.FormatFeatureFlags) (gpu.Format, error) {
	for _, f := range depthCandidates {
		if features(toFormat(f))&core1_0.FormatFeatureDepthStencilAttachment != 0 {
			return f, nil
		}
	}
	return gpu.FormatUndefined, errors.New("no supported depth format")
}

// spirvWords reinterprets little-endian SPIR-V bytes as 32-bit words.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		at := i * 4
		words[i] = uint32(b[at]) |
			uint32(b[at+1])<<8 |
			uint32(b[at+2])<<16 |
			uint32(b[at+3])<<24
	}
	return words
}
