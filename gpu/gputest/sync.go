package gputest

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

// Fence completes its submission only when the host waits on it, which makes
// every unwaited submission visible through Device.InFlight.
type Fence struct {
	handle
	device   *Device
	signaled bool
	pending  bool
	buffers  []*CommandBuffer
	Waits    int
}

func (f *Fence) Signaled() bool { return f.signaled }
func (f *Fence) Pending() bool  { return f.pending }

func (f *Fence) Wait() error {
	if f.destroyed {
		return errors.New("wait on destroyed fence")
	}
	if f.device.BeforeWait != nil {
		f.device.BeforeWait()
	}
	f.Waits++
	if f.signaled {
		return nil
	}
	if !f.pending {
		return errors.New("wait on unsignaled fence with no pending work would never return")
	}
	f.complete()
	return nil
}

func (f *Fence) complete() {
	f.pending = false
	f.signaled = true
	for _, cb := range f.buffers {
		cb.inFlight = false
	}
	f.buffers = nil
	f.device.InFlight--
	f.device.removePending(f)
}

func (f *Fence) Reset() error {
	if f.pending {
		f.device.violate("reset of fence #%d while its work is in flight", f.id)
		return errors.New("reset of in-flight fence")
	}
	f.signaled = false
	return nil
}

func (f *Fence) Destroy() {
	if f.pending {
		f.device.violate("destroy of fence #%d while its work is in flight", f.id)
	}
	f.close()
}

// Semaphore tracks whether a signal is pending so that double signals and
// waits without a signal show up as violations.
type Semaphore struct {
	handle
	signaled bool
}

func (s *Semaphore) Destroy() {
	s.close()
}

func (s *Semaphore) signal(l *Ledger) {
	if s.signaled {
		l.violate("semaphore #%d signaled twice without a wait", s.id)
	}
	s.signaled = true
}

func (s *Semaphore) consume(l *Ledger) {
	if !s.signaled {
		l.violate("wait on semaphore #%d that has no pending signal", s.id)
	}
	s.signaled = false
}

type Queue struct {
	device *Device
	name   string
}

func (q *Queue) Submit(info gpu.SubmitInfo) error {
	d := q.device
	d.Submits++
	d.note("submit")

	var buffers []*CommandBuffer
	for _, b := range info.CommandBuffers {
		cb, ok := b.(*CommandBuffer)
		if !ok || cb.destroyed {
			return errors.New("submit: command buffer missing or freed")
		}
		if cb.state != stateExecutable {
			return errors.Newf("submit: command buffer #%d is %s, not executable", cb.id, cb.state)
		}
		if cb.inFlight {
			return errors.Newf("submit: command buffer #%d is still in flight", cb.id)
		}
		buffers = append(buffers, cb)
	}

	var fence *Fence
	if info.Fence != nil {
		fence = info.Fence.(*Fence)
		if fence.signaled || fence.pending {
			return errors.Newf("submit: fence #%d is not in the unsignaled state", fence.id)
		}
	}

	d.LastSubmit = buffers

	for _, s := range info.WaitSemaphores {
		s.(*Semaphore).consume(d.Ledger)
	}
	for _, cb := range buffers {
		for _, op := range cb.transfers {
			op()
		}
	}
	for _, s := range info.SignalSemaphores {
		s.(*Semaphore).signal(d.Ledger)
	}

	if fence == nil {
		return nil
	}
	fence.pending = true
	fence.buffers = buffers
	for _, cb := range buffers {
		cb.inFlight = true
	}
	d.pendingFences = append(d.pendingFences, fence)
	d.InFlight++
	if d.InFlight > d.MaxInFlight {
		d.MaxInFlight = d.InFlight
	}
	return nil
}

func (q *Queue) Present(info gpu.PresentInfo) (gpu.PresentResult, error) {
	d := q.device
	d.Presents++
	d.note("present")

	sc, ok := info.Swapchain.(*Swapchain)
	if !ok || sc.destroyed {
		return gpu.ResultSuccess, errors.New("present: swapchain missing or destroyed")
	}
	if info.ImageIndex < 0 || info.ImageIndex >= len(sc.images) {
		return gpu.ResultSuccess, errors.Newf("present: image index %d out of range", info.ImageIndex)
	}
	if !sc.acquired[info.ImageIndex] {
		d.violate("present of image %d that was never acquired", info.ImageIndex)
	}
	delete(sc.acquired, info.ImageIndex)
	for _, s := range info.WaitSemaphores {
		s.(*Semaphore).consume(d.Ledger)
	}
	if d.PresentErr != nil {
		return gpu.ResultSuccess, d.PresentErr
	}
	return d.nextPresent(), nil
}

func (q *Queue) WaitIdle() error {
	return q.device.WaitIdle()
}
