package upload

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"testing/fstest"

	"github.com/vkngwrapper/tutorial-engine/gpu"
	"github.com/vkngwrapper/tutorial-engine/gpu/gputest"
)

func newUploader(t *testing.T) (*gputest.Device, *Uploader) {
	t.Helper()
	device := gputest.NewDevice()
	u, err := New(device, nil)
	if err != nil {
		t.Fatal(err)
	}
	return device, u
}

func payload(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i * 7)
	}
	return out
}

func assertNoTransferLeftovers(t *testing.T, device *gputest.Device) {
	t.Helper()
	if n := device.Live(gputest.KindFence); n != 0 {
		t.Errorf("%d fences survived the upload", n)
	}
	if n := device.Live(gputest.KindCommandBuffer); n != 0 {
		t.Errorf("%d command buffers survived the upload", n)
	}
	if v := device.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}
}

func TestStagedUploadRoundTrip(t *testing.T) {
	device, u := newUploader(t)
	data := payload(1000)

	dst, err := u.CreateBuffer(gpu.BufferInfo{
		Usage: gpu.BufferUsageVertex | gpu.BufferUsageTransferSrc,
		Class: gpu.ClassVertex,
	}, data)
	if err != nil {
		t.Fatal(err)
	}
	// Only the destination remains.
	if n := device.Live(gputest.KindBuffer); n != 1 {
		t.Fatalf("%d buffers alive after upload, want 1", n)
	}
	assertNoTransferLeftovers(t, device)

	got, err := u.ReadBack(dst, len(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("read back content differs from the uploaded payload")
	}
	if n := device.Live(gputest.KindBuffer); n != 1 {
		t.Fatalf("%d buffers alive after read back, want 1", n)
	}
	assertNoTransferLeftovers(t, device)

	dst.Destroy()
	u.Destroy()
	if leaks := device.Leaks(); len(leaks) != 0 {
		t.Fatalf("leaks: %v", leaks)
	}
}

func TestUploadWaitsOnItsOwnFence(t *testing.T) {
	device, u := newUploader(t)
	defer u.Destroy()

	waited := 0
	device.BeforeWait = func() {
		waited++
		if device.InFlight != 1 {
			t.Errorf("in flight before wait = %d, want 1", device.InFlight)
		}
	}
	dst, err := u.CreateBuffer(gpu.BufferInfo{Class: gpu.ClassIndex}, payload(64))
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Destroy()

	if waited != 1 {
		t.Fatalf("fence waited %d times, want 1", waited)
	}
	if device.InFlight != 0 {
		t.Fatalf("upload returned with %d submissions in flight", device.InFlight)
	}
}

func TestUploadFailureReleasesEverything(t *testing.T) {
	device, u := newUploader(t)
	device.FailCreate[gputest.KindFence] = errors.New("out of fences")

	if _, err := u.CreateBuffer(gpu.BufferInfo{Class: gpu.ClassUniform}, payload(16)); err == nil {
		t.Fatal("upload succeeded without a fence")
	}
	if n := device.Live(gputest.KindBuffer); n != 0 {
		t.Fatalf("%d buffers leaked by the failed upload", n)
	}
	assertNoTransferLeftovers(t, device)
	if device.Submits != 0 {
		t.Fatalf("failed upload submitted %d times", device.Submits)
	}
}

func TestUploadBufferRejectsOversizedPayload(t *testing.T) {
	device, u := newUploader(t)
	defer u.Destroy()

	dst, _ := device.CreateBuffer(gpu.BufferInfo{Size: 8, Class: gpu.ClassStorage})
	defer dst.Destroy()
	if err := u.UploadBuffer(dst, payload(9)); err == nil {
		t.Fatal("oversized payload accepted")
	}
	if err := u.UploadBuffer(dst, nil); err == nil {
		t.Fatal("empty payload accepted")
	}
}

func TestUploadImageTransitionsToShaderRead(t *testing.T) {
	device, u := newUploader(t)
	defer u.Destroy()

	pixels := payload(4 * 4 * 4)
	img, err := u.CreateImage(gpu.Extent{Width: 4, Height: 4}, gpu.FormatRGBA8SRGB, pixels)
	if err != nil {
		t.Fatal(err)
	}
	defer img.Destroy()

	fake := img.(*gputest.Image)
	if fake.Layout() != gpu.LayoutShaderReadOnly {
		t.Fatalf("layout = %s, want SHADER_READ_ONLY", fake.Layout())
	}
	if !bytes.Equal(fake.Pixels, pixels) {
		t.Fatal("image content differs from the uploaded pixels")
	}
	assertNoTransferLeftovers(t, device)
}

func TestUploadImageRejectsWrongSize(t *testing.T) {
	device, u := newUploader(t)
	defer u.Destroy()

	if _, err := u.CreateImage(gpu.Extent{Width: 2, Height: 2}, gpu.FormatRGBA8SRGB, payload(15)); err == nil {
		t.Fatal("short pixel data accepted")
	}
	if n := device.Live(gputest.KindImage); n != 0 {
		t.Fatalf("%d images leaked", n)
	}
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 40), G: uint8(y * 40), B: 200, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLoadTexture(t *testing.T) {
	device, u := newUploader(t)
	fsys := fstest.MapFS{"textures/checker.png": {Data: encodePNG(t, 3, 2)}}

	tex, err := u.LoadTexture(fsys, "textures/checker.png")
	if err != nil {
		t.Fatal(err)
	}
	if tex.Extent != (gpu.Extent{Width: 3, Height: 2}) {
		t.Fatalf("extent = %+v", tex.Extent)
	}
	set := tex.Set.(*gputest.DescriptorSet)
	if set.Images[0] != tex.View {
		t.Fatal("descriptor set does not point at the texture view")
	}
	pix := tex.Image.(*gputest.Image).Pixels
	if pix[4] != 40 || pix[6] != 200 || pix[7] != 255 {
		t.Fatalf("second pixel = %v", pix[4:8])
	}

	tex.Destroy()
	tex.Destroy()
	u.Destroy()
	if leaks := device.Leaks(); len(leaks) != 0 {
		t.Fatalf("leaks: %v", leaks)
	}
	if v := device.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
}

func TestLoadTextureFailures(t *testing.T) {
	fsys := fstest.MapFS{
		"textures/broken.png": {Data: []byte("not an image")},
		"textures/ok.png":     {Data: encodePNG(t, 2, 2)},
	}

	t.Run("decode", func(t *testing.T) {
		device, u := newUploader(t)
		if _, err := u.LoadTexture(fsys, "textures/broken.png"); err == nil {
			t.Fatal("broken image loaded")
		}
		if _, err := u.LoadTexture(fsys, "textures/missing.png"); err == nil {
			t.Fatal("missing image loaded")
		}
		u.Destroy()
		if leaks := device.Leaks(); len(leaks) != 0 {
			t.Fatalf("leaks: %v", leaks)
		}
	})

	t.Run("descriptor pool", func(t *testing.T) {
		device, u := newUploader(t)
		device.FailCreate[gputest.KindDescriptorPool] = errors.New("pool exhausted")
		if _, err := u.LoadTexture(fsys, "textures/ok.png"); err == nil {
			t.Fatal("texture built without a descriptor pool")
		}
		u.Destroy()
		if leaks := device.Leaks(); len(leaks) != 0 {
			t.Fatalf("partially built texture leaked: %v", leaks)
		}
	})
}

func TestDynamicBufferEnsure(t *testing.T) {
	device := gputest.NewDevice()
	d, err := NewDynamicBuffer(device, gpu.BufferUsageStorage, gpu.ClassStorage, 2, 100)
	if err != nil {
		t.Fatal(err)
	}
	if d.Buffer(0).Size() != 256 {
		t.Fatalf("initial capacity = %d, want 256", d.Buffer(0).Size())
	}

	changed, err := d.Ensure(0, 200)
	if err != nil || changed {
		t.Fatalf("Ensure within capacity = %v, %v", changed, err)
	}
	before := d.Buffer(0)
	changed, err = d.Ensure(0, 1000)
	if err != nil || !changed {
		t.Fatalf("Ensure beyond capacity = %v, %v", changed, err)
	}
	if d.Buffer(0) == before || d.Buffer(0).Size() != 1024 {
		t.Fatalf("grown buffer size = %d", d.Buffer(0).Size())
	}
	if n := device.Live(gputest.KindBuffer); n != 2 {
		t.Fatalf("%d buffers alive, want one per slot", n)
	}

	data := payload(1000)
	if err := d.Write(0, data); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(data))
	if err := d.Buffer(0).Read(0, got); err != nil || !bytes.Equal(got, data) {
		t.Fatalf("mapped write not visible: %v", err)
	}

	d.Destroy()
	d.Destroy()
	if leaks := device.Leaks(); len(leaks) != 0 {
		t.Fatalf("leaks: %v", leaks)
	}
}
