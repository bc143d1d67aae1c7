package renderer

import (
	"time"

	"github.com/loov/hrtime"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/tutorial-engine/frame"
	"github.com/vkngwrapper/tutorial-engine/gpu"
	"github.com/vkngwrapper/tutorial-engine/logging"
)

const defaultStatsInterval = 600

// FrameStats is an overlay that measures the time between recorded frames
// and logs a summary every interval frames.
type FrameStats struct {
	logger   *slog.Logger
	interval int

	last   time.Duration
	frames int
	total  time.Duration
	worst  time.Duration
}

var _ frame.Overlay = (*FrameStats)(nil)

func NewFrameStats(logger *slog.Logger, interval int) *FrameStats {
	if interval <= 0 {
		interval = defaultStatsInterval
	}
	return &FrameStats{logger: logging.Component(logger, "stats"), interval: interval}
}

func (s *FrameStats) Render(cb gpu.CommandBuffer, target frame.Target) error {
	s.Sample(hrtime.Now())
	return nil
}

// Sample records a frame recorded at now.
func (s *FrameStats) Sample(now time.Duration) {
	if s.last != 0 {
		dt := now - s.last
		s.frames++
		s.total += dt
		if dt > s.worst {
			s.worst = dt
		}
		if s.frames%s.interval == 0 {
			s.Log()
		}
	}
	s.last = now
}

func (s *FrameStats) Frames() int { return s.frames }

func (s *FrameStats) Average() time.Duration {
	if s.frames == 0 {
		return 0
	}
	return s.total / time.Duration(s.frames)
}

func (s *FrameStats) Worst() time.Duration { return s.worst }

func (s *FrameStats) Log() {
	if s.frames == 0 {
		return
	}
	avg := s.Average()
	fps := 0.0
	if avg > 0 {
		fps = float64(time.Second) / float64(avg)
	}
	s.logger.Info("frame times",
		slog.Int("frames", s.frames),
		slog.Duration("avg", avg),
		slog.Duration("worst", s.worst),
		slog.Float64("fps", fps))
}
