package gputest

import (
	"bytes"
	"testing"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

func TestFencedCopyCompletesOnWait(t *testing.T) {
	d := NewDevice()
	src, _ := d.CreateBuffer(gpu.BufferInfo{Size: 4, Memory: gpu.MemoryHostToDevice})
	dst, _ := d.CreateBuffer(gpu.BufferInfo{Size: 4, Memory: gpu.MemoryHostVisible})
	if err := src.Write(0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}

	pool, _ := d.CreateCommandPool()
	cbs, _ := pool.Allocate(1)
	cb := cbs[0]
	_ = cb.Begin(true)
	if err := cb.CopyBuffer(src, dst, 4); err != nil {
		t.Fatal(err)
	}
	_ = cb.End()

	fence, _ := d.CreateFence(false)
	if err := d.GraphicsQueue().Submit(gpu.SubmitInfo{CommandBuffers: cbs, Fence: fence}); err != nil {
		t.Fatal(err)
	}
	if d.InFlight != 1 {
		t.Fatalf("in flight = %d, want 1", d.InFlight)
	}
	if err := cb.Reset(); err == nil {
		t.Fatal("reset of in-flight command buffer succeeded")
	}
	if err := fence.Wait(); err != nil {
		t.Fatal(err)
	}
	if d.InFlight != 0 {
		t.Fatalf("in flight after wait = %d", d.InFlight)
	}

	got := make([]byte, 4)
	if err := dst.Read(0, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("read back %v", got)
	}

	fence.Destroy()
	pool.Free(cb)
	pool.Destroy()
	src.Destroy()
	dst.Destroy()
	if leaks := d.Leaks(); len(leaks) != 0 {
		t.Fatalf("leaks: %v", leaks)
	}
	// The reset attempt above is the only expected violation.
	if v := d.Violations(); len(v) != 1 {
		t.Fatalf("violations = %v", v)
	}
}

func TestWaitWithoutWorkFails(t *testing.T) {
	d := NewDevice()
	fence, _ := d.CreateFence(false)
	if err := fence.Wait(); err == nil {
		t.Fatal("waiting on an idle unsignaled fence should fail")
	}
}

func TestDoubleDestroyIsRecorded(t *testing.T) {
	d := NewDevice()
	sem, _ := d.CreateSemaphore()
	sem.Destroy()
	sem.Destroy()
	if d.Destroyed(KindSemaphore) != 1 {
		t.Fatalf("destroyed = %d, want 1", d.Destroyed(KindSemaphore))
	}
	if len(d.Violations()) != 1 {
		t.Fatalf("violations = %v", d.Violations())
	}
}

func TestDeviceLocalBufferRejectsHostAccess(t *testing.T) {
	d := NewDevice()
	b, _ := d.CreateBuffer(gpu.BufferInfo{Size: 16, Memory: gpu.MemoryDeviceLocal, Class: gpu.ClassVertex})
	if err := b.Write(0, []byte{1}); err == nil {
		t.Fatal("write to device-local buffer succeeded")
	}
}

func TestScriptedAcquire(t *testing.T) {
	d := NewDevice()
	d.AcquireResults = []gpu.PresentResult{gpu.ResultOutOfDate}
	sc, err := d.CreateSwapchain(gpu.SwapchainInfo{Extent: gpu.Extent{Width: 8, Height: 8}})
	if err != nil {
		t.Fatal(err)
	}
	sem, _ := d.CreateSemaphore()

	if _, res, _ := sc.AcquireNextImage(sem); res != gpu.ResultOutOfDate {
		t.Fatalf("first acquire = %v", res)
	}
	idx, res, err := sc.AcquireNextImage(sem)
	if err != nil || res != gpu.ResultSuccess || idx != 0 {
		t.Fatalf("second acquire = %d, %v, %v", idx, res, err)
	}
}
