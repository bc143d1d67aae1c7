package vkng

import (
	"errors"
	"testing"

	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

func presentOn(families ...int) func(int) (bool, error) {
	return func(idx int) (bool, error) {
		for _, f := range families {
			if f == idx {
				return true, nil
			}
		}
		return false, nil
	}
}

func TestPickQueueFamilies(t *testing.T) {
	cases := []struct {
		name     string
		flags    []core1_0.QueueFlags
		present  []int
		graphics int
		presents int
	}{
		{"shared", []core1_0.QueueFlags{core1_0.QueueGraphics}, []int{0}, 0, 0},
		{"prefers shared family", []core1_0.QueueFlags{core1_0.QueueGraphics, core1_0.QueueTransfer, core1_0.QueueGraphics}, []int{1, 2}, 2, 2},
		{"split", []core1_0.QueueFlags{core1_0.QueueTransfer, core1_0.QueueGraphics}, []int{0}, 1, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := pickQueueFamilies(c.flags, presentOn(c.present...))
			if err != nil {
				t.Fatal(err)
			}
			if got.graphics != c.graphics || got.present != c.presents {
				t.Fatalf("got %+v", got)
			}
		})
	}

	if _, err := pickQueueFamilies([]core1_0.QueueFlags{core1_0.QueueCompute}, presentOn(0)); err == nil {
		t.Error("device without graphics accepted")
	}
	failing := func(int) (bool, error) { return false, errors.New("surface lost") }
	if _, err := pickQueueFamilies([]core1_0.QueueFlags{core1_0.QueueGraphics}, failing); err == nil {
		t.Error("surface query error swallowed")
	}
}

func TestUniqueFamilies(t *testing.T) {
	if got := (queueFamilies{graphics: 1, present: 1}).unique(); len(got) != 1 {
		t.Errorf("shared family = %v", got)
	}
	if got := (queueFamilies{graphics: 0, present: 2}).unique(); len(got) != 2 {
		t.Errorf("split families = %v", got)
	}
}

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
	unorm := khr_surface.SurfaceFormat{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}

	got, err := chooseSurfaceFormat([]khr_surface.SurfaceFormat{unorm, srgb})
	if err != nil || got != srgb {
		t.Errorf("got %v, %v", got, err)
	}
	got, err = chooseSurfaceFormat([]khr_surface.SurfaceFormat{unorm})
	if err != nil || got != unorm {
		t.Errorf("fallback = %v, %v", got, err)
	}
	if _, err := chooseSurfaceFormat(nil); err == nil {
		t.Error("empty format list accepted")
	}
}

func TestChoosePresentMode(t *testing.T) {
	available := []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox}
	if got := choosePresentMode(available, gpu.PresentModeMailbox); got != khr_surface.PresentModeMailbox {
		t.Errorf("mailbox = %v", got)
	}
	if got := choosePresentMode(available, gpu.PresentModeImmediate); got != khr_surface.PresentModeFIFO {
		t.Errorf("unsupported immediate = %v", got)
	}
}

func TestChooseExtent(t *testing.T) {
	fixed := &khr_surface.SurfaceCapabilities{CurrentExtent: core1_0.Extent2D{Width: 640, Height: 480}}
	if got := chooseExtent(fixed, gpu.Extent{Width: 800, Height: 600}); got.Width != 640 || got.Height != 480 {
		t.Errorf("fixed extent = %v", got)
	}

	free := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
		MinImageExtent: core1_0.Extent2D{Width: 100, Height: 100},
		MaxImageExtent: core1_0.Extent2D{Width: 1000, Height: 1000},
	}
	if got := chooseExtent(free, gpu.Extent{Width: 4000, Height: 50}); got.Width != 1000 || got.Height != 100 {
		t.Errorf("clamped extent = %v", got)
	}
}

func TestImageCount(t *testing.T) {
	if got := imageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2}); got != 3 {
		t.Errorf("unbounded = %d", got)
	}
	if got := imageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 2}); got != 2 {
		t.Errorf("bounded = %d", got)
	}
}

func TestPickDepthFormat(t *testing.T) {
	only24 := func(f core1_0.Format) core1_0.FormatFeatureFlags {
		if f == core1_0.FormatD24UnsignedNormalizedS8UnsignedInt {
			return core1_0.FormatFeatureDepthStencilAttachment
		}
		return 0
	}
	got, err := pickDepthFormat(only24)
	if err != nil || got != gpu.FormatD24S8 {
		t.Errorf("got %v, %v", got, err)
	}
	if _, err := pickDepthFormat(func(core1_0.Format) core1_0.FormatFeatureFlags { return 0 }); err == nil {
		t.Error("device without depth formats accepted")
	}
}

func TestBarrierMasks(t *testing.T) {
	masks, err := barrierMasks(gpu.LayoutTransferDst, gpu.LayoutShaderReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	if masks.dstStage != core1_0.PipelineStageFragmentShader {
		t.Errorf("dst stage = %v", masks.dstStage)
	}
	if _, err := barrierMasks(gpu.LayoutShaderReadOnly, gpu.LayoutPresentSrc); err == nil {
		t.Error("unsupported transition accepted")
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for f := range formats {
		if got := fromFormat(toFormat(f)); got != f {
			t.Errorf("%v came back as %v", f, got)
		}
	}
	if toFormat(gpu.FormatUndefined) != core1_0.FormatUndefined {
		t.Error("undefined format mapped")
	}
}

func TestSPIRVWords(t *testing.T) {
	words := spirvWords([]byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00})
	if len(words) != 2 || words[0] != 0x07230203 || words[1] != 0x00010000 {
		t.Fatalf("words = %#x", words)
	}
}

func TestPresentResult(t *testing.T) {
	cases := []struct {
		res  common.VkResult
		err  error
		want gpu.PresentResult
		fail bool
	}{
		{core1_0.VKSuccess, nil, gpu.ResultSuccess, false},
		{khr_swapchain.VKSuboptimal, nil, gpu.ResultSuboptimal, false},
		{khr_swapchain.VKErrorOutOfDate, errors.New("out of date"), gpu.ResultOutOfDate, false},
		{core1_0.VKErrorDeviceLost, errors.New("device lost"), gpu.ResultSuccess, true},
	}
	for _, c := range cases {
		got, err := presentResult(c.res, c.err)
		if got != c.want || (err != nil) != c.fail {
			t.Errorf("presentResult(%v) = %v, %v", c.res, got, err)
		}
	}
}
