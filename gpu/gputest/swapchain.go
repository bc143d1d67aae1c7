package gputest

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

// Swapchain hands out its images round-robin.
type Swapchain struct {
	handle
	device      *Device
	extent      gpu.Extent
	images      []*Image
	next        int
	acquired    map[int]bool
	PresentMode gpu.PresentMode
	HadOld      bool
}

func (s *Swapchain) Images() []gpu.Image {
	out := make([]gpu.Image, len(s.images))
	for i, img := range s.images {
		out[i] = img
	}
	return out
}

func (s *Swapchain) Format() gpu.Format { return gpu.FormatBGRA8SRGB }
func (s *Swapchain) Extent() gpu.Extent { return s.extent }
func (s *Swapchain) Destroyed() bool    { return s.destroyed }

func (s *Swapchain) AcquireNextImage(signal gpu.Semaphore) (int, gpu.PresentResult, error) {
	d := s.device
	d.Acquires++
	d.note("acquire")
	if s.destroyed {
		return 0, gpu.ResultSuccess, errors.New("acquire: swapchain destroyed")
	}
	res := d.nextAcquire()
	if res == gpu.ResultOutOfDate {
		return 0, res, nil
	}
	signal.(*Semaphore).signal(d.Ledger)
	idx := s.next
	s.next = (s.next + 1) % len(s.images)
	if s.acquired == nil {
		s.acquired = make(map[int]bool)
	}
	s.acquired[idx] = true
	return idx, res, nil
}

func (s *Swapchain) Destroy() {
	s.close()
}
