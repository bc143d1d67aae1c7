package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

type fence struct {
	handle core1_0.Fence
}

func (c *Context) CreateFence(signaled bool) (gpu.Fence, error) {
	var flags core1_0.FenceCreateFlags
	if signaled {
		flags = core1_0.FenceCreateSignaled
	}
	handle, _, err := c.device.CreateFence(nil, core1_0.FenceCreateInfo{Flags: flags})
	if err != nil {
		return nil, errors.Wrap(err, "create fence")
	}
	return &fence{handle: handle}, nil
}

func (f *fence) Wait() error {
	_, err := f.handle.Wait(common.NoTimeout)
	return errors.Wrap(err, "wait for fence")
}

func (f *fence) Reset() error {
	_, err := f.handle.Reset()
	return errors.Wrap(err, "reset fence")
}

func (f *fence) Destroy() { f.handle.Destroy(nil) }

type semaphore struct {
	handle core1_0.Semaphore
}

func (c *Context) CreateSemaphore() (gpu.Semaphore, error) {
	handle, _, err := c.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "create semaphore")
	}
	return &semaphore{handle: handle}, nil
}

func (s *semaphore) Destroy() { s.handle.Destroy(nil) }

func semaphores(in []gpu.Semaphore) []core1_0.Semaphore {
	out := make([]core1_0.Semaphore, 0, len(in))
	for _, s := range in {
		out = append(out, s.(*semaphore).handle)
	}
	return out
}

type queue struct {
	ctx    *Context
	handle core1_0.Queue
}

func (q *queue) Submit(info gpu.SubmitInfo) error {
	buffers := make([]core1_0.CommandBuffer, 0, len(info.CommandBuffers))
	for _, cb := range info.CommandBuffers {
		buffers = append(buffers, cb.(*commandBuffer).handle)
	}
	stages := make([]core1_0.PipelineStageFlags, 0, len(info.WaitStages))
	for _, s := range info.WaitStages {
		stages = append(stages, pipelineStages(s))
	}

	var signal core1_0.Fence
	if info.Fence != nil {
		signal = info.Fence.(*fence).handle
	}

	_, err := q.handle.Submit(signal, []core1_0.SubmitInfo{
		{
			WaitSemaphores:   semaphores(info.WaitSemaphores),
			WaitDstStageMask: stages,
			CommandBuffers:   buffers,
			SignalSemaphores: semaphores(info.SignalSemaphores),
		},
	})
	return errors.Wrap(err, "queue submit")
}

func (q *queue) Present(info gpu.PresentInfo) (gpu.PresentResult, error) {
	res, err := q.ctx.swapchainExt.QueuePresent(q.handle, khr_swapchain.PresentInfo{
		WaitSemaphores: semaphores(info.WaitSemaphores),
		Swapchains:     []khr_swapchain.Swapchain{info.Swapchain.(*swapchain).handle},
		ImageIndices:   []int{info.ImageIndex},
	})
	return presentResult(res, err)
}

// presentResult folds the swapchain status codes that callers handle by
// rebuilding into a result instead of an error.
func presentResult(res common.VkResult, err error) (gpu.PresentResult, error) {
	switch {
	case res == khr_swapchain.VKErrorOutOfDate:
		return gpu.ResultOutOfDate, nil
	case err != nil:
		return gpu.ResultSuccess, err
	case res == khr_swapchain.VKSuboptimal:
		return gpu.ResultSuboptimal, nil
	}
	return gpu.ResultSuccess, nil
}

func (q *queue) WaitIdle() error {
	_, err := q.handle.WaitIdle()
	return errors.Wrap(err, "queue wait idle")
}
