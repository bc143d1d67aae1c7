package renderer

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/tutorial-engine/config"
	"github.com/vkngwrapper/tutorial-engine/gpu"
	"github.com/vkngwrapper/tutorial-engine/gpu/gputest"
	"github.com/vkngwrapper/tutorial-engine/mesh"
	"github.com/vkngwrapper/tutorial-engine/pipeline"
	"github.com/vkngwrapper/tutorial-engine/scene"
)

type window gpu.Extent

func (w window) DrawableSize() gpu.Extent { return gpu.Extent(w) }
func (w window) WaitEvents()              {}

func spirv() []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out, pipeline.SPIRVMagic)
	binary.LittleEndian.PutUint32(out[4:], 0x00010000)
	return out
}

func assets() fstest.MapFS {
	cfg := config.Default().Assets
	fsys := fstest.MapFS{}
	for _, path := range []string{
		cfg.MeshVertexShader, cfg.MeshFragmentShader, cfg.SkinnedVertexShader,
		cfg.LineVertexShader, cfg.LineFragmentShader,
	} {
		fsys[path] = &fstest.MapFile{Data: spirv()}
	}
	return fsys
}

func newRenderer(t *testing.T, device *gputest.Device) *Renderer {
	t.Helper()
	r, err := New(device, window{Width: 800, Height: 600}, assets(), config.Default(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func assertClean(t *testing.T, device *gputest.Device) {
	t.Helper()
	if leaks := device.Leaks(); len(leaks) != 0 {
		t.Errorf("leaks: %v", leaks)
	}
	if v := device.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}
}

func readMatrix(t *testing.T, b gpu.Buffer, index int) mgl32.Mat4 {
	t.Helper()
	raw := make([]byte, matrixSize)
	if err := b.Read(index*matrixSize, raw); err != nil {
		t.Fatal(err)
	}
	var m mgl32.Mat4
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return m
}

func TestRendererDrawsScene(t *testing.T) {
	device := gputest.NewDevice()
	r := newRenderer(t, device)
	s := scene.New(r, 800, 600)

	if _, err := s.AddMesh(mesh.Cube(), mgl32.Translate3D(-1, 0, 0), mgl32.Translate3D(1, 0, 0)); err != nil {
		t.Fatal(err)
	}
	skinned := mesh.Cube()
	skinned.Name = "skinned"
	skinned.Rigid(1)
	if _, err := s.AddMesh(skinned, mgl32.Translate3D(0, 2, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddMesh(mesh.Grid(4, 1)); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Render(); err != nil {
			t.Fatal(err)
		}
	}
	if device.Presents != 3 {
		t.Fatalf("presents = %d", device.Presents)
	}

	cb := device.LastSubmit[0]
	if n := cb.Count("bind-pipeline"); n != 3 {
		t.Errorf("pipeline binds = %d, want one each for mesh, skinned and lines", n)
	}
	if n := cb.Count("draw-indexed"); n != 3 {
		t.Errorf("indexed draws = %d", n)
	}
	if n := cb.Count("set-line-width"); n != 0 {
		t.Error("line width set without the wide-lines feature")
	}

	if got := readMatrix(t, r.instances.Buffer(0), 0); !got.ApproxEqual(mgl32.Translate3D(-1, 0, 0)) {
		t.Errorf("first instance = %v", got)
	}
	if got := readMatrix(t, r.instances.Buffer(0), 2); !got.ApproxEqual(mgl32.Translate3D(0, 2, 0)) {
		t.Errorf("skinned instance = %v", got)
	}
	proj := readMatrix(t, r.camera.Buffer(0), 1)
	if want := vulkanClip.Mul4(s.Frame().Projection); !proj.ApproxEqual(want) {
		t.Errorf("projection not corrected to Vulkan clip depth")
	}

	s.Close()
	r.Cleanup()
	assertClean(t, device)
}

func TestInstanceBufferGrows(t *testing.T) {
	device := gputest.NewDevice()
	r := newRenderer(t, device)
	s := scene.New(r, 800, 600)

	instances := make([]mgl32.Mat4, 10)
	for i := range instances {
		instances[i] = mgl32.Translate3D(float32(i), 0, 0)
	}
	if _, err := s.AddMesh(mesh.Cube(), instances...); err != nil {
		t.Fatal(err)
	}
	if err := s.Render(); err != nil {
		t.Fatal(err)
	}

	buf := r.instances.Buffer(0)
	if buf.Size() < len(instances)*matrixSize {
		t.Fatalf("instance buffer holds %d bytes", buf.Size())
	}
	set := r.frameSets[0].(*gputest.DescriptorSet)
	if set.Buffers[bindingInstances] != buf {
		t.Fatal("descriptor set still points at the replaced buffer")
	}
	if got := readMatrix(t, buf, 9); !got.ApproxEqual(instances[9]) {
		t.Fatalf("last instance = %v", got)
	}

	r.Cleanup()
	assertClean(t, device)
}

func TestWideLines(t *testing.T) {
	device := gputest.NewDevice()
	device.SupportsWideLines = true
	r := newRenderer(t, device)
	defer r.Cleanup()

	id, err := r.UploadMesh(mesh.Grid(2, 1))
	if err != nil {
		t.Fatal(err)
	}
	err = r.Draw(&scene.Frame{Draws: []scene.Draw{{Mesh: id, Instances: []mgl32.Mat4{mgl32.Ident4()}}}})
	if err != nil {
		t.Fatal(err)
	}
	if n := device.LastSubmit[0].Count("set-line-width"); n != 1 {
		t.Fatalf("line width set %d times", n)
	}
}

func TestResizeRebuildsBeforeNextFrame(t *testing.T) {
	device := gputest.NewDevice()
	r := newRenderer(t, device)
	s := scene.New(r, 800, 600)

	s.SetSize(1024, 768)
	if err := s.Render(); err != nil {
		t.Fatal(err)
	}
	if device.Presents != 0 || r.Stats().Recreations != 1 {
		t.Fatalf("presents=%d recreations=%d", device.Presents, r.Stats().Recreations)
	}
	if err := s.Render(); err != nil {
		t.Fatal(err)
	}
	if device.Presents != 1 {
		t.Fatal("frame after the rebuild was not presented")
	}

	s.Close()
	assertClean(t, device)
}

func TestCleanupIsIdempotent(t *testing.T) {
	device := gputest.NewDevice()
	r := newRenderer(t, device)
	if _, err := r.UploadMesh(mesh.Cube()); err != nil {
		t.Fatal(err)
	}

	r.Cleanup()
	destroyed := len(device.Events())
	r.Cleanup()
	if len(device.Events()) != destroyed {
		t.Fatalf("second cleanup touched the device: %v", device.EventsSince(destroyed))
	}
	assertClean(t, device)

	if _, err := r.UploadMesh(mesh.Cube()); err == nil {
		t.Error("upload after cleanup succeeded")
	}
	if err := r.Draw(&scene.Frame{}); err == nil {
		t.Error("draw after cleanup succeeded")
	}
}

func TestUnknownMeshFailsFrame(t *testing.T) {
	device := gputest.NewDevice()
	r := newRenderer(t, device)
	uploads := device.Submits

	err := r.Draw(&scene.Frame{Draws: []scene.Draw{{Mesh: 7, Instances: []mgl32.Mat4{mgl32.Ident4()}}}})
	if err == nil {
		t.Fatal("draw of an unknown mesh succeeded")
	}
	if device.Submits != uploads {
		t.Fatal("failed frame was submitted")
	}
	r.Cleanup()
	assertClean(t, device)
}

func TestNewIsAllOrNothing(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*gputest.Device, fstest.MapFS, *config.Config)
	}{
		{"swapchain", func(d *gputest.Device, _ fstest.MapFS, _ *config.Config) {
			d.FailCreate[gputest.KindSwapchain] = errors.New("surface lost")
		}},
		{"render pass", func(d *gputest.Device, _ fstest.MapFS, _ *config.Config) {
			d.FailCreate[gputest.KindRenderPass] = errors.New("no memory")
		}},
		{"upload fence", func(d *gputest.Device, _ fstest.MapFS, _ *config.Config) {
			d.FailCreate[gputest.KindFence] = errors.New("no memory")
		}},
		{"descriptor pool", func(d *gputest.Device, _ fstest.MapFS, _ *config.Config) {
			d.FailCreate[gputest.KindDescriptorPool] = errors.New("fragmented")
		}},
		{"pipeline", func(d *gputest.Device, _ fstest.MapFS, _ *config.Config) {
			d.FailCreate[gputest.KindPipeline] = errors.New("driver rejected state")
		}},
		{"semaphore", func(d *gputest.Device, _ fstest.MapFS, _ *config.Config) {
			d.FailCreate[gputest.KindSemaphore] = errors.New("no memory")
		}},
		{"missing shader", func(_ *gputest.Device, fsys fstest.MapFS, c *config.Config) {
			delete(fsys, c.Assets.LineFragmentShader)
		}},
		{"missing texture", func(_ *gputest.Device, _ fstest.MapFS, c *config.Config) {
			c.Assets.Texture = "textures/missing.png"
		}},
		{"invalid config", func(_ *gputest.Device, _ fstest.MapFS, c *config.Config) {
			c.Vulkan.FramesInFlight = 0
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			device := gputest.NewDevice()
			fsys := assets()
			cfg := config.Default()
			c.mutate(device, fsys, &cfg)

			r, err := New(device, window{Width: 800, Height: 600}, fsys, cfg, nil)
			if err == nil {
				t.Fatal("construction succeeded")
			}
			if r != nil {
				t.Fatal("failed construction returned a renderer")
			}
			assertClean(t, device)
		})
	}
}

func TestFramesInFlight(t *testing.T) {
	device := gputest.NewDevice()
	cfg := config.Default()
	cfg.Vulkan.FramesInFlight = 2
	r, err := New(device, window{Width: 800, Height: 600}, assets(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	s := scene.New(r, 800, 600)
	if _, err := s.AddMesh(mesh.Cube()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := s.Render(); err != nil {
			t.Fatal(err)
		}
	}
	if device.MaxInFlight != 2 {
		t.Fatalf("max in flight = %d", device.MaxInFlight)
	}
	if len(r.frameSets) != 2 || r.instances.Slots() != 2 {
		t.Fatal("per-slot resources not sized to frames in flight")
	}
	s.Close()
	assertClean(t, device)
}

func TestFrameStats(t *testing.T) {
	s := NewFrameStats(nil, 2)
	s.Sample(10 * time.Millisecond)
	s.Sample(26 * time.Millisecond)
	s.Sample(30 * time.Millisecond)
	if s.Frames() != 2 {
		t.Fatalf("frames = %d", s.Frames())
	}
	if s.Average() != 10*time.Millisecond || s.Worst() != 16*time.Millisecond {
		t.Fatalf("avg=%v worst=%v", s.Average(), s.Worst())
	}
}
