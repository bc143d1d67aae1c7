// Package upload moves CPU data into GPU resources. Every transfer goes
// through a host-visible staging buffer and a one-shot command buffer whose
// completion is awaited on a fence created for that transfer alone, so a
// resource is never read before its data has fully landed.
package upload

import (
	"github.com/cockroachdb/errors"
	gu "github.com/docker/go-units"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/tutorial-engine/gpu"
	"github.com/vkngwrapper/tutorial-engine/logging"
)

// Device is what the uploader needs from the GPU.
type Device interface {
	gpu.Allocator
	gpu.SyncFactory
	gpu.ViewFactory
	gpu.DescriptorFactory
	gpu.CommandFactory
	gpu.Queues
}

// Uploader performs synchronous staged transfers on the graphics queue.
// Uploads happen at load time and on resize, never on the per-frame path.
type Uploader struct {
	device Device
	queue  gpu.Queue
	pool   gpu.CommandPool
	logger *slog.Logger
}

func New(device Device, logger *slog.Logger) (*Uploader, error) {
	pool, err := device.CreateCommandPool()
	if err != nil {
		return nil, errors.Wrap(err, "upload: command pool")
	}
	return &Uploader{
		device: device,
		queue:  device.GraphicsQueue(),
		pool:   pool,
		logger: logging.Component(logger, "upload"),
	}, nil
}

// Destroy releases the uploader's command pool.
func (u *Uploader) Destroy() {
	if u.pool != nil {
		u.pool.Destroy()
		u.pool = nil
	}
}

// submitOnce records a one-shot command buffer with record, submits it
// guarded by a fresh fence and waits for it. The fence and the command buffer
// are gone when it returns, whatever the outcome.
func (u *Uploader) submitOnce(record func(cb gpu.CommandBuffer) error) error {
	scope := &gpu.Scope{}
	defer scope.Release()

	buffers, err := u.pool.Allocate(1)
	if err != nil {
		return errors.Wrap(err, "allocate command buffer")
	}
	cb := buffers[0]
	scope.Defer(func() { u.pool.Free(cb) })

	if err := cb.Begin(true); err != nil {
		return errors.Wrap(err, "begin command buffer")
	}
	if err := record(cb); err != nil {
		return err
	}
	if err := cb.End(); err != nil {
		return errors.Wrap(err, "end command buffer")
	}

	fence, err := u.device.CreateFence(true)
	if err != nil {
		return errors.Wrap(err, "create fence")
	}
	scope.Add(fence)
	// Created signaled; the reset makes the wait below a real one.
	if err := fence.Reset(); err != nil {
		return errors.Wrap(err, "reset fence")
	}

	if err := u.queue.Submit(gpu.SubmitInfo{CommandBuffers: buffers, Fence: fence}); err != nil {
		return errors.Wrap(err, "submit")
	}
	if err := fence.Wait(); err != nil {
		return errors.Wrap(err, "wait for transfer")
	}
	return nil
}

func (u *Uploader) staging(payload []byte) (gpu.Buffer, error) {
	staging, err := u.device.CreateBuffer(gpu.BufferInfo{
		Size:   len(payload),
		Usage:  gpu.BufferUsageTransferSrc,
		Class:  gpu.ClassStaging,
		Memory: gpu.MemoryHostToDevice,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create staging buffer")
	}
	if err := staging.Write(0, payload); err != nil {
		staging.Destroy()
		return nil, errors.Wrap(err, "fill staging buffer")
	}
	return staging, nil
}

// UploadBuffer copies payload to the start of dst, which must have been
// created with transfer-destination usage.
func (u *Uploader) UploadBuffer(dst gpu.Buffer, payload []byte) error {
	if len(payload) == 0 {
		return errors.New("upload buffer: empty payload")
	}
	if len(payload) > dst.Size() {
		return errors.Newf("upload buffer: %d byte payload does not fit %s buffer of %d bytes",
			len(payload), dst.Class(), dst.Size())
	}

	staging, err := u.staging(payload)
	if err != nil {
		return errors.Wrap(err, "upload buffer")
	}
	defer staging.Destroy()

	err = u.submitOnce(func(cb gpu.CommandBuffer) error {
		return cb.CopyBuffer(staging, dst, len(payload))
	})
	if err != nil {
		return errors.Wrap(err, "upload buffer")
	}

	u.logger.Debug("buffer uploaded",
		slog.String("class", dst.Class().String()),
		slog.String("size", gu.BytesSize(float64(len(payload)))))
	return nil
}

// CreateBuffer allocates a device-local buffer sized for payload (or
// info.Size, if larger) and fills it. The buffer is destroyed again if the
// upload fails.
func (u *Uploader) CreateBuffer(info gpu.BufferInfo, payload []byte) (gpu.Buffer, error) {
	if info.Size < len(payload) {
		info.Size = len(payload)
	}
	info.Usage |= gpu.BufferUsageTransferDst
	info.Memory = gpu.MemoryDeviceLocal

	dst, err := u.device.CreateBuffer(info)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s buffer", info.Class)
	}
	if err := u.UploadBuffer(dst, payload); err != nil {
		dst.Destroy()
		return nil, err
	}
	return dst, nil
}

// UploadImage fills dst with tightly packed RGBA8 pixels and leaves it in the
// shader-read layout. dst must currently be in the undefined layout.
func (u *Uploader) UploadImage(dst gpu.Image, pixels []byte) error {
	extent := dst.Extent()
	if want := extent.Width * extent.Height * 4; len(pixels) != want {
		return errors.Newf("upload image: %d bytes of pixels for %dx%d image, want %d",
			len(pixels), extent.Width, extent.Height, want)
	}

	staging, err := u.staging(pixels)
	if err != nil {
		return errors.Wrap(err, "upload image")
	}
	defer staging.Destroy()

	err = u.submitOnce(func(cb gpu.CommandBuffer) error {
		if err := cb.PipelineBarrier(gpu.ImageBarrier{
			Image:     dst,
			OldLayout: gpu.LayoutUndefined,
			NewLayout: gpu.LayoutTransferDst,
			Aspect:    gpu.AspectColor,
		}); err != nil {
			return err
		}
		if err := cb.CopyBufferToImage(staging, dst); err != nil {
			return err
		}
		return cb.PipelineBarrier(gpu.ImageBarrier{
			Image:     dst,
			OldLayout: gpu.LayoutTransferDst,
			NewLayout: gpu.LayoutShaderReadOnly,
			Aspect:    gpu.AspectColor,
		})
	})
	if err != nil {
		return errors.Wrap(err, "upload image")
	}

	u.logger.Debug("image uploaded",
		slog.Int("width", extent.Width),
		slog.Int("height", extent.Height),
		slog.String("size", gu.BytesSize(float64(len(pixels)))))
	return nil
}

// CreateImage allocates a sampled device-local image and fills it.
func (u *Uploader) CreateImage(extent gpu.Extent, format gpu.Format, pixels []byte) (gpu.ImageResource, error) {
	img, err := u.device.CreateImage(gpu.ImageInfo{
		Extent: extent,
		Format: format,
		Usage:  gpu.ImageUsageTransferDst | gpu.ImageUsageSampled,
		Class:  gpu.ClassTexture,
		Memory: gpu.MemoryDeviceLocal,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create texture image")
	}
	if err := u.UploadImage(img, pixels); err != nil {
		img.Destroy()
		return nil, err
	}
	return img, nil
}

// ReadBack copies the first size bytes of src, which needs transfer-source
// usage, into host memory through a temporary readback buffer.
func (u *Uploader) ReadBack(src gpu.Buffer, size int) ([]byte, error) {
	if size <= 0 || size > src.Size() {
		return nil, errors.Newf("read back: %d bytes from buffer of %d", size, src.Size())
	}
	readback, err := u.device.CreateBuffer(gpu.BufferInfo{
		Size:   size,
		Usage:  gpu.BufferUsageTransferDst,
		Class:  gpu.ClassReadback,
		Memory: gpu.MemoryHostVisible,
	})
	if err != nil {
		return nil, errors.Wrap(err, "read back: create buffer")
	}
	defer readback.Destroy()

	err = u.submitOnce(func(cb gpu.CommandBuffer) error {
		return cb.CopyBuffer(src, readback, size)
	})
	if err != nil {
		return nil, errors.Wrap(err, "read back")
	}

	out := make([]byte, size)
	if err := readback.Read(0, out); err != nil {
		return nil, errors.Wrap(err, "read back")
	}
	return out, nil
}
