// Package frame drives one frame at a time through acquire, record, submit
// and present, and decides when the swapchain has to be rebuilt.
//
// Each frame-in-flight slot owns a fence, an image-available semaphore, a
// render-finished semaphore and a command buffer. The fence is waited on
// before the slot's command buffer is touched again, which bounds the number
// of frames the GPU can be working on to the number of slots.
package frame

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/tutorial-engine/gpu"
	"github.com/vkngwrapper/tutorial-engine/logging"
)

type Device interface {
	gpu.Waiter
	gpu.SyncFactory
	gpu.CommandFactory
	gpu.Queues
}

// Presenter is the swapchain side of the loop. *swapchain.Manager
// implements it.
type Presenter interface {
	Swapchain() gpu.Swapchain
	Extent() gpu.Extent
	Framebuffer(imageIndex int) gpu.Framebuffer
	Generation() int
	Dirty() bool
	Recreate() error
}

// Target describes the frame being recorded.
type Target struct {
	Slot       int
	ImageIndex int
	Extent     gpu.Extent
	RenderPass gpu.RenderPass
	// Generation changes whenever the swapchain was rebuilt.
	Generation int
}

// Scene supplies the draws of a frame.
type Scene interface {
	// Record issues draws into cb inside the open render pass.
	Record(cb gpu.CommandBuffer, target Target) error
	// Update writes the frame's dynamic data. It runs after recording and
	// before submission, when the slot's previous GPU use is complete.
	Update(target Target) error
}

// Overlay renders on top of the scene, inside the same render pass.
type Overlay interface {
	Render(cb gpu.CommandBuffer, target Target) error
}

type Outcome int

const (
	// Presented means the frame was submitted and presented.
	Presented Outcome = iota
	// Recreated means the swapchain was rebuilt and nothing was presented.
	Recreated
)

func (o Outcome) String() string {
	if o == Recreated {
		return "recreated"
	}
	return "presented"
}

type State int

const (
	Idle State = iota
	Acquiring
	Recording
	Submitted
	Presenting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case Recording:
		return "recording"
	case Submitted:
		return "submitted"
	case Presenting:
		return "presenting"
	}
	return "unknown"
}

type Options struct {
	// FramesInFlight is the number of sync slots, at least one.
	FramesInFlight int
	ClearColor     gpu.ClearColor
	Overlay        Overlay
}

type Stats struct {
	Frames      int
	Recreations int
	Suboptimal  int
}

type slot struct {
	fence          gpu.Fence
	imageAvailable gpu.Semaphore
	renderFinished gpu.Semaphore
	commands       gpu.CommandBuffer
}

type Synchronizer struct {
	device     Device
	presenter  Presenter
	renderPass gpu.RenderPass
	clear      gpu.ClearColor
	overlay    Overlay
	logger     *slog.Logger

	slots   []slot
	current int
	state   State
	stats   Stats
	scope   *gpu.Scope
}

func New(device Device, presenter Presenter, renderPass gpu.RenderPass, opts Options, logger *slog.Logger) (*Synchronizer, error) {
	if opts.FramesInFlight < 1 {
		opts.FramesInFlight = 1
	}

	scope := &gpu.Scope{}
	defer scope.Release()

	pool, err := device.CreateCommandPool()
	if err != nil {
		return nil, errors.Wrap(err, "frame: command pool")
	}
	scope.Add(pool)

	buffers, err := pool.Allocate(opts.FramesInFlight)
	if err != nil {
		return nil, errors.Wrap(err, "frame: command buffers")
	}

	slots := make([]slot, opts.FramesInFlight)
	for i := range slots {
		s := &slots[i]
		s.commands = buffers[i]

		// Signaled so the first wait returns at once.
		if s.fence, err = device.CreateFence(true); err != nil {
			return nil, errors.Wrapf(err, "frame: slot %d fence", i)
		}
		scope.Add(s.fence)
		if s.imageAvailable, err = device.CreateSemaphore(); err != nil {
			return nil, errors.Wrapf(err, "frame: slot %d semaphore", i)
		}
		scope.Add(s.imageAvailable)
		if s.renderFinished, err = device.CreateSemaphore(); err != nil {
			return nil, errors.Wrapf(err, "frame: slot %d semaphore", i)
		}
		scope.Add(s.renderFinished)
	}

	return &Synchronizer{
		device:     device,
		presenter:  presenter,
		renderPass: renderPass,
		clear:      opts.ClearColor,
		overlay:    opts.Overlay,
		logger:     logging.Component(logger, "frame"),
		slots:      slots,
		scope:      scope.Dismiss(),
	}, nil
}

func (s *Synchronizer) State() State         { return s.state }
func (s *Synchronizer) Stats() Stats         { return s.stats }
func (s *Synchronizer) FramesInFlight() int  { return len(s.slots) }
func (s *Synchronizer) Slot() int            { return s.current }
func (s *Synchronizer) SetOverlay(o Overlay) { s.overlay = o }

// FlippedViewport covers extent with Y pointing up, matching the GL
// convention. The negative height mirrors winding, which is why pipelines
// treat clockwise triangles as front facing.
func FlippedViewport(extent gpu.Extent) gpu.Viewport {
	return gpu.Viewport{
		X:        0,
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

// Frame renders and presents one frame of scene. An out-of-date swapchain,
// on acquire or present, or a pending resize leads to exactly one rebuild
// and the Recreated outcome. Any other failure is returned as an error and
// leaves the synchronizer unusable for further frames.
func (s *Synchronizer) Frame(scene Scene) (Outcome, error) {
	if s.presenter.Dirty() {
		return s.recreate("resize")
	}

	sl := &s.slots[s.current]

	s.state = Acquiring
	if err := sl.fence.Wait(); err != nil {
		return s.fail(err, "wait for frame fence")
	}
	imageIndex, res, err := s.presenter.Swapchain().AcquireNextImage(sl.imageAvailable)
	if err != nil {
		return s.fail(err, "acquire image")
	}
	switch res {
	case gpu.ResultOutOfDate:
		return s.recreate("acquire out of date")
	case gpu.ResultSuboptimal:
		s.stats.Suboptimal++
	}

	// Reset only now that a submission will follow; an early return above
	// leaves the fence signaled for the next attempt.
	if err := sl.fence.Reset(); err != nil {
		return s.fail(err, "reset frame fence")
	}

	target := Target{
		Slot:       s.current,
		ImageIndex: imageIndex,
		Extent:     s.presenter.Extent(),
		RenderPass: s.renderPass,
		Generation: s.presenter.Generation(),
	}

	s.state = Recording
	if err := s.record(sl.commands, target, scene); err != nil {
		return s.fail(err, "record")
	}
	if err := scene.Update(target); err != nil {
		return s.fail(err, "update dynamic data")
	}

	s.state = Submitted
	err = s.device.GraphicsQueue().Submit(gpu.SubmitInfo{
		CommandBuffers:   []gpu.CommandBuffer{sl.commands},
		WaitSemaphores:   []gpu.Semaphore{sl.imageAvailable},
		WaitStages:       []gpu.PipelineStage{gpu.PipelineStageColorAttachmentOutput},
		SignalSemaphores: []gpu.Semaphore{sl.renderFinished},
		Fence:            sl.fence,
	})
	if err != nil {
		return s.fail(err, "submit")
	}

	s.state = Presenting
	res, err = s.device.PresentQueue().Present(gpu.PresentInfo{
		Swapchain:      s.presenter.Swapchain(),
		ImageIndex:     imageIndex,
		WaitSemaphores: []gpu.Semaphore{sl.renderFinished},
	})
	if err != nil {
		return s.fail(err, "present")
	}
	// the submission went out, so this slot's fence will signal
	s.current = (s.current + 1) % len(s.slots)
	s.stats.Frames++
	if res != gpu.ResultSuccess {
		return s.recreate("present " + res.String())
	}

	s.state = Idle
	return Presented, nil
}

func (s *Synchronizer) record(cb gpu.CommandBuffer, target Target, scene Scene) error {
	if err := cb.Reset(); err != nil {
		return errors.Wrap(err, "reset command buffer")
	}
	if err := cb.Begin(false); err != nil {
		return errors.Wrap(err, "begin command buffer")
	}
	err := cb.BeginRenderPass(gpu.RenderPassBegin{
		RenderPass:  s.renderPass,
		Framebuffer: s.presenter.Framebuffer(target.ImageIndex),
		Extent:      target.Extent,
		ClearColor:  s.clear,
		ClearDepth:  1,
	})
	if err != nil {
		return errors.Wrap(err, "begin render pass")
	}
	cb.SetViewport(FlippedViewport(target.Extent))
	cb.SetScissor(gpu.Rect{Extent: target.Extent})

	if err := scene.Record(cb, target); err != nil {
		return errors.Wrap(err, "scene")
	}
	if s.overlay != nil {
		if err := s.overlay.Render(cb, target); err != nil {
			return errors.Wrap(err, "overlay")
		}
	}

	cb.EndRenderPass()
	if err := cb.End(); err != nil {
		return errors.Wrap(err, "end command buffer")
	}
	return nil
}

func (s *Synchronizer) recreate(reason string) (Outcome, error) {
	s.state = Idle
	if err := s.presenter.Recreate(); err != nil {
		s.logger.Error("swapchain rebuild failed", slog.String("op", "recreate"), slog.String("reason", reason), slog.Any("err", err))
		return Recreated, errors.Wrapf(err, "frame: recreate after %s", reason)
	}
	s.stats.Recreations++
	s.logger.Info("swapchain rebuilt",
		slog.String("reason", reason),
		slog.Int("width", s.presenter.Extent().Width),
		slog.Int("height", s.presenter.Extent().Height))
	return Recreated, nil
}

func (s *Synchronizer) fail(err error, op string) (Outcome, error) {
	s.logger.Error("frame failed", slog.String("op", op), slog.String("state", s.state.String()), slog.Any("err", err))
	s.state = Idle
	return Presented, errors.Wrapf(err, "frame: %s", op)
}

// Destroy waits for the device to finish all frames and releases the sync
// objects and command buffers. It is safe to call twice.
func (s *Synchronizer) Destroy() {
	if s.scope.Len() == 0 {
		return
	}
	if err := s.device.WaitIdle(); err != nil {
		s.logger.Warn("wait idle before teardown failed", slog.Any("err", err))
	}
	s.scope.Release()
}
