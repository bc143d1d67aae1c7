package gputest

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

type CommandPool struct {
	handle
	device  *Device
	buffers []*CommandBuffer
}

func (p *CommandPool) Allocate(count int) ([]gpu.CommandBuffer, error) {
	if err := p.device.fail(KindCommandBuffer); err != nil {
		return nil, err
	}
	if p.destroyed {
		return nil, errors.New("allocate command buffers: pool destroyed")
	}
	out := make([]gpu.CommandBuffer, 0, count)
	for i := 0; i < count; i++ {
		cb := &CommandBuffer{handle: p.device.open(KindCommandBuffer), device: p.device}
		p.buffers = append(p.buffers, cb)
		out = append(out, cb)
	}
	return out, nil
}

func (p *CommandPool) Free(buffers ...gpu.CommandBuffer) {
	for _, b := range buffers {
		cb := b.(*CommandBuffer)
		if cb.inFlight {
			p.device.violate("free of command buffer #%d while in flight", cb.id)
		}
		cb.close()
	}
}

// Destroy frees every buffer still allocated from the pool.
func (p *CommandPool) Destroy() {
	for _, cb := range p.buffers {
		if !cb.destroyed {
			cb.close()
		}
	}
	p.close()
}

type bufferState int

const (
	stateInitial bufferState = iota
	stateRecording
	stateExecutable
)

func (s bufferState) String() string {
	switch s {
	case stateInitial:
		return "initial"
	case stateRecording:
		return "recording"
	}
	return "executable"
}

// CommandBuffer records command names for inspection. Transfer commands are
// captured as closures and executed on submit.
type CommandBuffer struct {
	handle
	device       *Device
	state        bufferState
	inFlight     bool
	inRenderPass bool
	transfers    []func()

	Commands    []string
	Viewports   []gpu.Viewport
	Framebuffer gpu.Framebuffer
	Resets      int
}

func (c *CommandBuffer) InFlight() bool { return c.inFlight }

func (c *CommandBuffer) clear() {
	c.transfers = nil
	c.Commands = nil
	c.Viewports = nil
	c.Framebuffer = nil
	c.inRenderPass = false
}

func (c *CommandBuffer) Reset() error {
	if c.inFlight {
		c.device.violate("reset of command buffer #%d while in flight", c.id)
		return errors.New("reset of in-flight command buffer")
	}
	c.Resets++
	c.clear()
	c.state = stateInitial
	return nil
}

func (c *CommandBuffer) Begin(oneTimeSubmit bool) error {
	if c.inFlight {
		c.device.violate("begin on command buffer #%d while in flight", c.id)
		return errors.New("begin on in-flight command buffer")
	}
	if c.state == stateRecording {
		return errors.New("begin: command buffer is already recording")
	}
	c.clear()
	c.state = stateRecording
	return nil
}

func (c *CommandBuffer) End() error {
	if c.state != stateRecording {
		return errors.Newf("end: command buffer is %s", c.state)
	}
	if c.inRenderPass {
		return errors.New("end: render pass still open")
	}
	c.state = stateExecutable
	return nil
}

func (c *CommandBuffer) record(name string) bool {
	if c.state != stateRecording {
		c.device.violate("%s recorded into command buffer #%d while %s", name, c.id, c.state)
		return false
	}
	c.Commands = append(c.Commands, name)
	return true
}

func (c *CommandBuffer) PipelineBarrier(barrier gpu.ImageBarrier) error {
	if !c.record("barrier") {
		return errors.New("barrier: not recording")
	}
	img, ok := barrier.Image.(*Image)
	if !ok {
		return errors.New("barrier: unknown image")
	}
	if barrier.OldLayout != gpu.LayoutUndefined && img.layout != barrier.OldLayout {
		return errors.Newf("barrier: image is in %s, not %s", img.layout, barrier.OldLayout)
	}
	img.layout = barrier.NewLayout
	return nil
}

func (c *CommandBuffer) CopyBuffer(src, dst gpu.Buffer, size int) error {
	if !c.record("copy-buffer") {
		return errors.New("copy buffer: not recording")
	}
	s, d := src.(*Buffer), dst.(*Buffer)
	if size > len(s.Data) || size > len(d.Data) {
		return errors.Newf("copy buffer: %d bytes exceed %d byte source or %d byte destination", size, len(s.Data), len(d.Data))
	}
	c.transfers = append(c.transfers, func() {
		copy(d.Data[:size], s.Data[:size])
	})
	return nil
}

func (c *CommandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image) error {
	if !c.record("copy-buffer-to-image") {
		return errors.New("copy buffer to image: not recording")
	}
	s, img := src.(*Buffer), dst.(*Image)
	if img.layout != gpu.LayoutTransferDst {
		return errors.Newf("copy buffer to image: image is in %s", img.layout)
	}
	n := len(img.Pixels)
	if n > len(s.Data) {
		return errors.Newf("copy buffer to image: image needs %d bytes, staging has %d", n, len(s.Data))
	}
	c.transfers = append(c.transfers, func() {
		copy(img.Pixels, s.Data[:n])
	})
	return nil
}

func (c *CommandBuffer) BeginRenderPass(begin gpu.RenderPassBegin) error {
	if !c.record("begin-render-pass") {
		return errors.New("begin render pass: not recording")
	}
	if c.inRenderPass {
		return errors.New("begin render pass: already inside a render pass")
	}
	fb, ok := begin.Framebuffer.(*Framebuffer)
	if !ok || fb.destroyed {
		return errors.New("begin render pass: framebuffer missing or destroyed")
	}
	c.inRenderPass = true
	c.Framebuffer = fb
	return nil
}

func (c *CommandBuffer) EndRenderPass() {
	if c.record("end-render-pass") {
		c.inRenderPass = false
	}
}

func (c *CommandBuffer) SetViewport(viewport gpu.Viewport) {
	if c.record("set-viewport") {
		c.Viewports = append(c.Viewports, viewport)
	}
}

func (c *CommandBuffer) SetScissor(scissor gpu.Rect) { c.record("set-scissor") }
func (c *CommandBuffer) SetLineWidth(width float32)  { c.record("set-line-width") }
func (c *CommandBuffer) BindPipeline(pipeline gpu.Pipeline) {
	c.record("bind-pipeline")
}

func (c *CommandBuffer) BindDescriptorSets(layout gpu.PipelineLayout, firstSet int, sets ...gpu.DescriptorSet) {
	c.record("bind-descriptor-sets")
}

func (c *CommandBuffer) BindVertexBuffers(firstBinding int, buffers ...gpu.Buffer) {
	c.record("bind-vertex-buffers")
}

func (c *CommandBuffer) BindIndexBuffer(buffer gpu.Buffer, indexType gpu.IndexType) {
	c.record("bind-index-buffer")
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstInstance int) {
	c.record("draw")
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstInstance int) {
	c.record("draw-indexed")
}

// Count returns how many times name was recorded.
func (c *CommandBuffer) Count(name string) int {
	n := 0
	for _, cmd := range c.Commands {
		if cmd == name {
			n++
		}
	}
	return n
}
