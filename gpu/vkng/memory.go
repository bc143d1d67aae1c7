package vkng

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	gu "github.com/docker/go-units"
	"github.com/vkngwrapper/arsenal/memutils"
	"github.com/vkngwrapper/arsenal/vam"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

func allocationInfo(hint gpu.MemoryHint) vam.AllocationCreateInfo {
	switch hint {
	case gpu.MemoryHostVisible:
		return vam.AllocationCreateInfo{
			Usage: vam.MemoryUsageAutoPreferHost,
			Flags: memutils.AllocationCreateHostAccessRandom,
		}
	case gpu.MemoryHostToDevice:
		return vam.AllocationCreateInfo{
			Usage: vam.MemoryUsageAutoPreferHost,
			Flags: memutils.AllocationCreateHostAccessSequentialWrite,
		}
	}
	return vam.AllocationCreateInfo{Usage: vam.MemoryUsageAutoPreferDevice}
}

type buffer struct {
	ctx    *Context
	handle core1_0.Buffer
	alloc  vam.Allocation
	info   gpu.BufferInfo
	mapped unsafe.Pointer
}

func (c *Context) CreateBuffer(info gpu.BufferInfo) (gpu.Buffer, error) {
	if info.Size <= 0 {
		return nil, errors.Newf("buffer size %d", info.Size)
	}

	handle, _, err := c.device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        info.Size,
		Usage:       bufferUsage(info.Usage),
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %s buffer", info.Class)
	}

	b := &buffer{ctx: c, handle: handle, info: info}
	_, err = c.allocator.AllocateMemoryForBuffer(handle, allocationInfo(info.Memory), &b.alloc)
	if err != nil {
		handle.Destroy(nil)
		return nil, errors.Wrapf(err, "allocate %s buffer memory", info.Class)
	}

	_, err = b.alloc.BindBufferMemory(0, handle, nil)
	if err == nil && info.Persistent && info.Memory != gpu.MemoryDeviceLocal {
		b.mapped, _, err = b.alloc.Map()
	}
	if err != nil {
		_ = b.alloc.Free()
		handle.Destroy(nil)
		return nil, errors.Wrapf(err, "bind %s buffer memory", info.Class)
	}

	c.logger.Debug("buffer created",
		slog.String("class", info.Class.String()),
		slog.String("size", gu.BytesSize(float64(info.Size))),
		slog.Bool("persistent", b.mapped != nil))
	return b, nil
}

func (b *buffer) Size() int                { return b.info.Size }
func (b *buffer) Class() gpu.ResourceClass { return b.info.Class }

// withMapping runs fn over the buffer's host memory, mapping it for the call
// unless it is persistently mapped.
func (b *buffer) withMapping(fn func(memory []byte) error) error {
	if b.info.Memory == gpu.MemoryDeviceLocal {
		return errors.Newf("%s buffer is not host visible", b.info.Class)
	}
	ptr := b.mapped
	if ptr == nil {
		var err error
		ptr, _, err = b.alloc.Map()
		if err != nil {
			return errors.Wrap(err, "map buffer")
		}
		defer func() { _ = b.alloc.Unmap() }()
	}
	return fn(unsafe.Slice((*byte)(ptr), b.info.Size))
}

func (b *buffer) Write(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > b.info.Size {
		return errors.Newf("write of %d bytes at %d overflows %d byte buffer", len(data), offset, b.info.Size)
	}
	return b.withMapping(func(memory []byte) error {
		copy(memory[offset:], data)
		_, err := b.alloc.Flush(offset, len(data))
		return errors.Wrap(err, "flush buffer")
	})
}

func (b *buffer) Read(offset int, dst []byte) error {
	if offset < 0 || offset+len(dst) > b.info.Size {
		return errors.Newf("read of %d bytes at %d overflows %d byte buffer", len(dst), offset, b.info.Size)
	}
	return b.withMapping(func(memory []byte) error {
		if _, err := b.alloc.Invalidate(offset, len(dst)); err != nil {
			return errors.Wrap(err, "invalidate buffer")
		}
		copy(dst, memory[offset:])
		return nil
	})
}

func (b *buffer) Destroy() {
	if b.handle == nil {
		return
	}
	if b.mapped != nil {
		_ = b.alloc.Unmap()
		b.mapped = nil
	}
	b.handle.Destroy(nil)
	if err := b.alloc.Free(); err != nil {
		b.ctx.logger.Error("free buffer memory", slog.Any("err", err))
	}
	b.handle = nil
}

// vkImage is any image with a Vulkan handle, allocated or swapchain-owned.
type vkImage interface {
	gpu.Image
	vk() core1_0.Image
}

type image struct {
	ctx    *Context
	handle core1_0.Image
	alloc  vam.Allocation
	info   gpu.ImageInfo
}

func (c *Context) CreateImage(info gpu.ImageInfo) (gpu.ImageResource, error) {
	if info.Extent.Degenerate() {
		return nil, errors.Newf("image extent %dx%d", info.Extent.Width, info.Extent.Height)
	}

	handle, _, err := c.device.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        toFormat(info.Format),
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         imageUsage(info.Usage),
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %s image", info.Class)
	}

	img := &image{ctx: c, handle: handle, info: info}
	if _, err := c.allocator.AllocateMemoryForImage(handle, allocationInfo(info.Memory), &img.alloc); err != nil {
		handle.Destroy(nil)
		return nil, errors.Wrapf(err, "allocate %s image memory", info.Class)
	}
	if _, err := img.alloc.BindImageMemory(0, handle, nil); err != nil {
		_ = img.alloc.Free()
		handle.Destroy(nil)
		return nil, errors.Wrapf(err, "bind %s image memory", info.Class)
	}
	return img, nil
}

func (i *image) Extent() gpu.Extent { return i.info.Extent }
func (i *image) Format() gpu.Format { return i.info.Format }
func (i *image) vk() core1_0.Image  { return i.handle }

func (i *image) Destroy() {
	if i.handle == nil {
		return
	}
	i.handle.Destroy(nil)
	if err := i.alloc.Free(); err != nil {
		i.ctx.logger.Error("free image memory", slog.Any("err", err))
	}
	i.handle = nil
}

type imageView struct {
	handle core1_0.ImageView
}

func (c *Context) CreateImageView(img gpu.Image, aspect gpu.Aspect) (gpu.ImageView, error) {
	target, ok := img.(vkImage)
	if !ok {
		return nil, errors.Newf("image %T does not belong to this device", img)
	}

	view, _, err := c.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		ViewType: core1_0.ImageViewType2D,
		Image:    target.vk(),
		Format:   toFormat(img.Format()),
		Components: core1_0.ComponentMapping{
			R: core1_0.ComponentSwizzleIdentity,
			G: core1_0.ComponentSwizzleIdentity,
			B: core1_0.ComponentSwizzleIdentity,
			A: core1_0.ComponentSwizzleIdentity,
		},
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspectMask(aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image view")
	}
	return &imageView{handle: view}, nil
}

func (v *imageView) Destroy() { v.handle.Destroy(nil) }

type sampler struct {
	handle core1_0.Sampler
}

func (c *Context) CreateSampler(info gpu.SamplerInfo) (gpu.Sampler, error) {
	filter := core1_0.FilterNearest
	if info.Linear {
		filter = core1_0.FilterLinear
	}
	address := core1_0.SamplerAddressModeClampToEdge
	if info.Repeat {
		address = core1_0.SamplerAddressModeRepeat
	}

	handle, _, err := c.device.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    filter,
		MinFilter:    filter,
		AddressModeU: address,
		AddressModeV: address,
		AddressModeW: address,

		AnisotropyEnable: info.Anisotropy && c.maxAnisotropy > 1,
		MaxAnisotropy:    c.maxAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,
		MipmapMode:  core1_0.SamplerMipmapModeLinear,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create sampler")
	}
	return &sampler{handle: handle}, nil
}

func (s *sampler) Destroy() { s.handle.Destroy(nil) }
