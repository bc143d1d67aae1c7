package gputest

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

// object is any handle with no behavior beyond its lifetime.
type object struct {
	handle
}

func (o *object) Destroy() {
	o.close()
}

// Buffer is backed by a byte slice. Device-local buffers can only be filled
// and read through transfer commands, as on real hardware.
type Buffer struct {
	handle
	Info gpu.BufferInfo
	Data []byte
}

func (b *Buffer) Size() int                 { return b.Info.Size }
func (b *Buffer) Class() gpu.ResourceClass { return b.Info.Class }

func (b *Buffer) hostAccess(op string, offset, n int) error {
	if b.destroyed {
		return errors.Newf("%s: buffer destroyed", op)
	}
	if b.Info.Memory == gpu.MemoryDeviceLocal {
		return errors.Newf("%s: %s buffer is not host visible", op, b.Info.Class)
	}
	if offset < 0 || offset+n > len(b.Data) {
		return errors.Newf("%s: range [%d,%d) outside buffer of %d bytes", op, offset, offset+n, len(b.Data))
	}
	return nil
}

func (b *Buffer) Write(offset int, data []byte) error {
	if err := b.hostAccess("write", offset, len(data)); err != nil {
		return err
	}
	copy(b.Data[offset:], data)
	return nil
}

func (b *Buffer) Read(offset int, dst []byte) error {
	if err := b.hostAccess("read", offset, len(dst)); err != nil {
		return err
	}
	copy(dst, b.Data[offset:])
	return nil
}

func (b *Buffer) Destroy() {
	b.close()
}

// Image stores RGBA8 pixels and tracks its current layout. Swapchain images
// have no handle of their own.
type Image struct {
	*handle
	Info   gpu.ImageInfo
	Pixels []byte
	layout gpu.ImageLayout
}

func (i *Image) Extent() gpu.Extent      { return i.Info.Extent }
func (i *Image) Format() gpu.Format      { return i.Info.Format }
func (i *Image) Layout() gpu.ImageLayout { return i.layout }

func (i *Image) Destroy() {
	if i.handle == nil {
		panic("gputest: swapchain images are owned by their swapchain")
	}
	i.close()
}

type ImageView struct {
	handle
	Image  gpu.Image
	Aspect gpu.Aspect
}

func (v *ImageView) Destroy() {
	v.close()
}

type Framebuffer struct {
	handle
	Info gpu.FramebufferInfo
}

func (f *Framebuffer) Destroy() {
	f.close()
}

type DescriptorSetLayout struct {
	handle
	Bindings []gpu.DescriptorBinding
}

func (l *DescriptorSetLayout) Destroy() {
	l.close()
}

// DescriptorPool refuses allocations past MaxSets.
type DescriptorPool struct {
	handle
	Info gpu.DescriptorPoolInfo
	Sets []*DescriptorSet
}

func (p *DescriptorPool) Allocate(layout gpu.DescriptorSetLayout, count int) ([]gpu.DescriptorSet, error) {
	if p.destroyed {
		return nil, errors.New("allocate descriptor sets: pool destroyed")
	}
	if len(p.Sets)+count > p.Info.MaxSets {
		return nil, errors.Newf("allocate descriptor sets: pool exhausted (%d of %d used, %d requested)",
			len(p.Sets), p.Info.MaxSets, count)
	}
	sets := make([]gpu.DescriptorSet, 0, count)
	for i := 0; i < count; i++ {
		set := &DescriptorSet{
			pool:    p,
			Layout:  layout,
			Buffers: make(map[int]gpu.Buffer),
			Images:  make(map[int]gpu.ImageView),
		}
		p.Sets = append(p.Sets, set)
		sets = append(sets, set)
	}
	return sets, nil
}

func (p *DescriptorPool) Destroy() {
	p.close()
}

// DescriptorSet remembers what was last written to each binding.
type DescriptorSet struct {
	pool    *DescriptorPool
	Layout  gpu.DescriptorSetLayout
	Buffers map[int]gpu.Buffer
	Images  map[int]gpu.ImageView
	Writes  int
}

func (s *DescriptorSet) WriteBuffer(binding int, typ gpu.DescriptorType, buffer gpu.Buffer, size int) error {
	b, ok := buffer.(*Buffer)
	if !ok || b.destroyed {
		return errors.Newf("write descriptor binding %d: buffer missing or destroyed", binding)
	}
	if size <= 0 || size > b.Size() {
		return errors.Newf("write descriptor binding %d: range %d exceeds buffer of %d bytes", binding, size, b.Size())
	}
	s.Buffers[binding] = buffer
	s.Writes++
	return nil
}

func (s *DescriptorSet) WriteImage(binding int, view gpu.ImageView, sampler gpu.Sampler) error {
	if view == nil || sampler == nil {
		return errors.Newf("write descriptor binding %d: missing view or sampler", binding)
	}
	s.Images[binding] = view
	s.Writes++
	return nil
}
