package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

type commandPool struct {
	ctx    *Context
	handle core1_0.CommandPool
}

// CreateCommandPool creates a pool on the graphics family whose buffers can
// be reset one at a time.
func (c *Context) CreateCommandPool() (gpu.CommandPool, error) {
	handle, _, err := c.device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: c.families.graphics,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}
	return &commandPool{ctx: c, handle: handle}, nil
}

func (p *commandPool) Allocate(count int) ([]gpu.CommandBuffer, error) {
	handles, _, err := p.ctx.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.handle,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocate command buffers")
	}
	buffers := make([]gpu.CommandBuffer, len(handles))
	for i, h := range handles {
		buffers[i] = &commandBuffer{handle: h}
	}
	return buffers, nil
}

func (p *commandPool) Free(buffers ...gpu.CommandBuffer) {
	if len(buffers) == 0 {
		return
	}
	handles := make([]core1_0.CommandBuffer, len(buffers))
	for i, cb := range buffers {
		handles[i] = cb.(*commandBuffer).handle
	}
	p.ctx.device.FreeCommandBuffers(handles)
}

func (p *commandPool) Destroy() { p.handle.Destroy(nil) }

type commandBuffer struct {
	handle core1_0.CommandBuffer
}

func (cb *commandBuffer) Reset() error {
	_, err := cb.handle.Reset(0)
	return errors.Wrap(err, "reset command buffer")
}

func (cb *commandBuffer) Begin(oneTimeSubmit bool) error {
	var flags core1_0.CommandBufferUsageFlags
	if oneTimeSubmit {
		flags = core1_0.CommandBufferUsageOneTimeSubmit
	}
	_, err := cb.handle.Begin(core1_0.CommandBufferBeginInfo{Flags: flags})
	return errors.Wrap(err, "begin command buffer")
}

func (cb *commandBuffer) End() error {
	_, err := cb.handle.End()
	return errors.Wrap(err, "end command buffer")
}

func (cb *commandBuffer) PipelineBarrier(barrier gpu.ImageBarrier) error {
	masks, err := barrierMasks(barrier.OldLayout, barrier.NewLayout)
	if err != nil {
		return err
	}
	target, ok := barrier.Image.(vkImage)
	if !ok {
		return errors.Newf("image %T does not belong to this device", barrier.Image)
	}

	err = cb.handle.CmdPipelineBarrier(masks.srcStage, masks.dstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           layouts[barrier.OldLayout],
			NewLayout:           layouts[barrier.NewLayout],
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               target.vk(),
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     barrierAspect(barrier.Aspect, barrier.Image.Format()),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: masks.srcAccess,
			DstAccessMask: masks.dstAccess,
		},
	})
	return errors.Wrap(err, "pipeline barrier")
}

func (cb *commandBuffer) CopyBuffer(src, dst gpu.Buffer, size int) error {
	if size > src.Size() || size > dst.Size() {
		return errors.Newf("copy of %d bytes exceeds buffer sizes %d -> %d", size, src.Size(), dst.Size())
	}
	cb.handle.CmdCopyBuffer(src.(*buffer).handle, dst.(*buffer).handle, []core1_0.BufferCopy{
		{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	})
	return nil
}

func (cb *commandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image) error {
	target, ok := dst.(vkImage)
	if !ok {
		return errors.Newf("image %T does not belong to this device", dst)
	}
	extent := dst.Extent()
	err := cb.handle.CmdCopyBufferToImage(src.(*buffer).handle, target.vk(), core1_0.ImageLayoutTransferDstOptimal, []core1_0.BufferImageCopy{
		{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,

			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		},
	})
	return errors.Wrap(err, "copy buffer to image")
}

func (cb *commandBuffer) BeginRenderPass(begin gpu.RenderPassBegin) error {
	err := cb.handle.CmdBeginRenderPass(core1_0.SubpassContentsInline, core1_0.RenderPassBeginInfo{
		RenderPass:  begin.RenderPass.(*renderPass).handle,
		Framebuffer: begin.Framebuffer.(*framebuffer).handle,
		RenderArea: core1_0.Rect2D{
			Offset: core1_0.Offset2D{X: 0, Y: 0},
			Extent: core1_0.Extent2D{Width: begin.Extent.Width, Height: begin.Extent.Height},
		},
		ClearValues: []core1_0.ClearValue{
			core1_0.ClearValueFloat(begin.ClearColor),
			core1_0.ClearValueDepthStencil{Depth: begin.ClearDepth, Stencil: 0},
		},
	})
	return errors.Wrap(err, "begin render pass")
}

func (cb *commandBuffer) EndRenderPass() { cb.handle.CmdEndRenderPass() }

func (cb *commandBuffer) SetViewport(v gpu.Viewport) {
	cb.handle.CmdSetViewport([]core1_0.Viewport{
		{
			X:        v.X,
			Y:        v.Y,
			Width:    v.Width,
			Height:   v.Height,
			MinDepth: v.MinDepth,
			MaxDepth: v.MaxDepth,
		},
	})
}

func (cb *commandBuffer) SetScissor(r gpu.Rect) {
	cb.handle.CmdSetScissor([]core1_0.Rect2D{
		{
			Offset: core1_0.Offset2D{X: r.X, Y: r.Y},
			Extent: core1_0.Extent2D{Width: r.Extent.Width, Height: r.Extent.Height},
		},
	})
}

func (cb *commandBuffer) SetLineWidth(width float32) { cb.handle.CmdSetLineWidth(width) }

func (cb *commandBuffer) BindPipeline(p gpu.Pipeline) {
	cb.handle.CmdBindPipeline(core1_0.PipelineBindPointGraphics, p.(*graphicsPipeline).handle)
}

func (cb *commandBuffer) BindDescriptorSets(layout gpu.PipelineLayout, firstSet int, sets ...gpu.DescriptorSet) {
	handles := make([]core1_0.DescriptorSet, len(sets))
	for i, s := range sets {
		handles[i] = s.(*descriptorSet).handle
	}
	cb.handle.CmdBindDescriptorSets(core1_0.PipelineBindPointGraphics, layout.(*pipelineLayout).handle, firstSet, handles, nil)
}

func (cb *commandBuffer) BindVertexBuffers(firstBinding int, buffers ...gpu.Buffer) {
	handles := make([]core1_0.Buffer, len(buffers))
	offsets := make([]int, len(buffers))
	for i, b := range buffers {
		handles[i] = b.(*buffer).handle
	}
	cb.handle.CmdBindVertexBuffers(firstBinding, handles, offsets)
}

func (cb *commandBuffer) BindIndexBuffer(b gpu.Buffer, t gpu.IndexType) {
	cb.handle.CmdBindIndexBuffer(b.(*buffer).handle, 0, indexType(t))
}

func (cb *commandBuffer) Draw(vertexCount, instanceCount, firstInstance int) {
	cb.handle.CmdDraw(vertexCount, instanceCount, 0, uint32(firstInstance))
}

func (cb *commandBuffer) DrawIndexed(indexCount, instanceCount, firstInstance int) {
	cb.handle.CmdDrawIndexed(indexCount, instanceCount, 0, 0, uint32(firstInstance))
}
