package swapchain

import (
	"errors"
	"testing"

	"github.com/vkngwrapper/tutorial-engine/gpu"
	"github.com/vkngwrapper/tutorial-engine/gpu/gputest"
)

// scriptedWindow reports one size per DrawableSize call and repeats the last.
type scriptedWindow struct {
	sizes  []gpu.Extent
	waits  int
	onWait func()
}

func (w *scriptedWindow) DrawableSize() gpu.Extent {
	size := w.sizes[0]
	if len(w.sizes) > 1 {
		w.sizes = w.sizes[1:]
	}
	return size
}

func (w *scriptedWindow) WaitEvents() {
	w.waits++
	if w.onWait != nil {
		w.onWait()
	}
}

func sizes(list ...gpu.Extent) *scriptedWindow {
	return &scriptedWindow{sizes: list}
}

func newManager(t *testing.T, device *gputest.Device, window Window) (*Manager, gpu.RenderPass) {
	t.Helper()
	m := New(device, window, gpu.PresentModeFIFO, nil)
	if err := m.Create(); err != nil {
		t.Fatal(err)
	}
	pass, err := device.CreateRenderPass(gpu.RenderPassInfo{ColorFormat: m.Format(), DepthFormat: m.DepthFormat()})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.BuildFramebuffers(pass); err != nil {
		t.Fatal(err)
	}
	return m, pass
}

func assertParity(t *testing.T, m *Manager) {
	t.Helper()
	if m.FramebufferCount() != m.ImageCount() || m.ViewCount() != m.ImageCount() {
		t.Fatalf("framebuffers=%d views=%d images=%d", m.FramebufferCount(), m.ViewCount(), m.ImageCount())
	}
}

func TestFramebufferParity(t *testing.T) {
	for _, count := range []int{2, 3, 4} {
		device := gputest.NewDevice()
		device.SwapchainImageCount = count
		m, pass := newManager(t, device, sizes(gpu.Extent{Width: 800, Height: 600}))
		assertParity(t, m)
		if m.ImageCount() != count {
			t.Fatalf("image count = %d, want %d", m.ImageCount(), count)
		}

		device.SwapchainImageCount = count + 1
		if err := m.Recreate(); err != nil {
			t.Fatal(err)
		}
		assertParity(t, m)
		if m.ImageCount() != count+1 {
			t.Fatalf("image count after recreate = %d, want %d", m.ImageCount(), count+1)
		}
		m.Destroy()
		pass.Destroy()
	}
}

func TestRecreateWaitsThroughMinimize(t *testing.T) {
	device := gputest.NewDevice()
	window := sizes(
		gpu.Extent{Width: 800, Height: 600},
		gpu.Extent{},
		gpu.Extent{},
		gpu.Extent{Width: 640, Height: 480},
	)
	m, pass := newManager(t, device, window)
	defer pass.Destroy()
	defer m.Destroy()

	window.onWait = func() {
		if device.Created(gputest.KindSwapchain) != 1 {
			t.Error("swapchain rebuilt while the window was minimized")
		}
		if device.WaitIdleCalls != 0 {
			t.Error("device idled before a usable size was observed")
		}
	}
	if err := m.Recreate(); err != nil {
		t.Fatal(err)
	}

	if window.waits != 2 {
		t.Fatalf("waited for events %d times, want 2", window.waits)
	}
	if got := m.Extent(); got != (gpu.Extent{Width: 640, Height: 480}) {
		t.Fatalf("extent = %+v, want 640x480", got)
	}
	if m.Generation() != 2 {
		t.Fatalf("generation = %d, want 2", m.Generation())
	}
	assertParity(t, m)
}

func TestRecreateOrder(t *testing.T) {
	device := gputest.NewDevice()
	device.SwapchainImageCount = 1
	m, pass := newManager(t, device, sizes(gpu.Extent{Width: 800, Height: 600}))
	defer pass.Destroy()
	defer m.Destroy()

	mark := len(device.Events())
	if err := m.Recreate(); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"wait-idle",
		"-framebuffer",
		"-image-view", // depth view
		"-image",      // depth image
		"-image-view", // swapchain image view
		"+swapchain",
		"-swapchain", // old chain, only after its successor exists
		"+image-view",
		"+image",
		"+image-view",
		"+framebuffer",
	}
	got := device.EventsSince(mark)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if !device.CurrentSwapchain().HadOld {
		t.Fatal("old swapchain was not passed as a hint")
	}
	if v := device.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	device := gputest.NewDevice()
	m, pass := newManager(t, device, sizes(gpu.Extent{Width: 320, Height: 200}))
	m.Destroy()
	m.Destroy()
	pass.Destroy()

	if leaks := device.Leaks(); len(leaks) != 0 {
		t.Fatalf("leaks: %v", leaks)
	}
	if v := device.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
}

func TestCreateRejectsDegenerateWindow(t *testing.T) {
	device := gputest.NewDevice()
	m := New(device, sizes(gpu.Extent{Width: 0, Height: 600}), gpu.PresentModeFIFO, nil)
	if err := m.Create(); err == nil {
		t.Fatal("created a swapchain for a zero-width window")
	}
}

func TestCreateFailureLeavesNoViews(t *testing.T) {
	device := gputest.NewDevice()
	device.FailCreate[gputest.KindImage] = errors.New("out of device memory")
	m := New(device, sizes(gpu.Extent{Width: 64, Height: 64}), gpu.PresentModeFIFO, nil)
	if err := m.Create(); err == nil {
		t.Fatal("create succeeded without a depth buffer")
	}
	if n := device.Live(gputest.KindImageView); n != 0 {
		t.Fatalf("%d image views leaked", n)
	}
	m.Destroy()
	if leaks := device.Leaks(); len(leaks) != 0 {
		t.Fatalf("leaks: %v", leaks)
	}
}

func TestDirtyFlag(t *testing.T) {
	device := gputest.NewDevice()
	m, pass := newManager(t, device, sizes(gpu.Extent{Width: 100, Height: 100}))
	defer pass.Destroy()
	defer m.Destroy()

	m.MarkDirty()
	if !m.Dirty() {
		t.Fatal("MarkDirty did not set the flag")
	}
	if err := m.Recreate(); err != nil {
		t.Fatal(err)
	}
	if m.Dirty() {
		t.Fatal("Recreate left the flag set")
	}
}
