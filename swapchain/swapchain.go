// Package swapchain owns the chain of presentable images and everything sized
// to it: one view and one framebuffer per image, plus the depth buffer.
package swapchain

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/tutorial-engine/gpu"
	"github.com/vkngwrapper/tutorial-engine/logging"
)

// Window reports the drawable size of the surface the chain presents to.
type Window interface {
	DrawableSize() gpu.Extent
	// WaitEvents blocks until the window system delivers an event.
	WaitEvents()
}

type Device interface {
	gpu.Waiter
	gpu.SwapchainFactory
	gpu.ViewFactory
	gpu.Allocator
	gpu.PipelineFactory
}

type Manager struct {
	device      Device
	window      Window
	presentMode gpu.PresentMode
	depthFormat gpu.Format
	logger      *slog.Logger

	swapchain    gpu.Swapchain
	images       []gpu.Image
	views        []gpu.ImageView
	depth        gpu.ImageResource
	depthView    gpu.ImageView
	renderPass   gpu.RenderPass
	framebuffers []gpu.Framebuffer

	dirty      bool
	generation int
}

func New(device Device, window Window, presentMode gpu.PresentMode, logger *slog.Logger) *Manager {
	return &Manager{
		device:      device,
		window:      window,
		presentMode: presentMode,
		depthFormat: device.DepthFormat(),
		logger:      logging.Component(logger, "swapchain"),
	}
}

// Create builds the first chain at the window's current drawable size,
// together with its image views and depth buffer.
func (m *Manager) Create() error {
	extent := m.window.DrawableSize()
	if extent.Degenerate() {
		return errors.Newf("swapchain: create: window has no drawable area (%dx%d)", extent.Width, extent.Height)
	}
	if err := m.build(extent); err != nil {
		return errors.Wrap(err, "swapchain: create")
	}
	return nil
}

// build creates a new chain, passing the current one as a reuse hint and
// destroying it only once its successor exists.
func (m *Manager) build(extent gpu.Extent) error {
	old := m.swapchain
	sc, err := m.device.CreateSwapchain(gpu.SwapchainInfo{
		Extent:      extent,
		PresentMode: m.presentMode,
		Old:         old,
	})
	if err != nil {
		return err
	}
	if old != nil {
		old.Destroy()
	}
	m.swapchain = sc
	m.images = sc.Images()

	scope := &gpu.Scope{}
	defer scope.Release()

	views := make([]gpu.ImageView, 0, len(m.images))
	for i, img := range m.images {
		view, err := m.device.CreateImageView(img, gpu.AspectColor)
		if err != nil {
			return errors.Wrapf(err, "image view %d", i)
		}
		scope.Add(view)
		views = append(views, view)
	}

	depth, err := m.device.CreateImage(gpu.ImageInfo{
		Extent: sc.Extent(),
		Format: m.depthFormat,
		Usage:  gpu.ImageUsageDepthAttachment,
		Class:  gpu.ClassDepth,
		Memory: gpu.MemoryDeviceLocal,
	})
	if err != nil {
		return errors.Wrap(err, "depth image")
	}
	scope.Add(depth)

	depthView, err := m.device.CreateImageView(depth, gpu.AspectDepth)
	if err != nil {
		return errors.Wrap(err, "depth view")
	}

	scope.Dismiss()
	m.views = views
	m.depth = depth
	m.depthView = depthView
	m.generation++

	m.logger.Info("swapchain created",
		slog.Int("width", sc.Extent().Width),
		slog.Int("height", sc.Extent().Height),
		slog.Int("images", len(m.images)),
		slog.String("present_mode", m.presentMode.String()),
		slog.Int("generation", m.generation))
	return nil
}

// BuildFramebuffers creates one framebuffer per swapchain image for
// renderPass. The pass is remembered so Recreate can rebuild them.
func (m *Manager) BuildFramebuffers(renderPass gpu.RenderPass) error {
	if m.swapchain == nil {
		return errors.New("swapchain: framebuffers requested before create")
	}
	m.destroyFramebuffers()
	m.renderPass = renderPass

	scope := &gpu.Scope{}
	defer scope.Release()

	framebuffers := make([]gpu.Framebuffer, 0, len(m.views))
	for i, view := range m.views {
		fb, err := m.device.CreateFramebuffer(gpu.FramebufferInfo{
			RenderPass:  renderPass,
			Attachments: []gpu.ImageView{view, m.depthView},
			Extent:      m.swapchain.Extent(),
		})
		if err != nil {
			return errors.Wrapf(err, "swapchain: framebuffer %d", i)
		}
		scope.Add(fb)
		framebuffers = append(framebuffers, fb)
	}
	scope.Dismiss()
	m.framebuffers = framebuffers
	return nil
}

// Recreate rebuilds the chain after a resize or an out-of-date report. While
// the window has no drawable area it blocks on window events. It then waits
// for the device to go idle, destroys framebuffers, depth buffer and image
// views, and builds swapchain, depth buffer and framebuffers again.
func (m *Manager) Recreate() error {
	extent := m.window.DrawableSize()
	for extent.Degenerate() {
		m.window.WaitEvents()
		extent = m.window.DrawableSize()
	}

	if err := m.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "swapchain: recreate: wait idle")
	}

	m.destroyFramebuffers()
	m.destroyDepth()
	m.destroyViews()

	if err := m.build(extent); err != nil {
		return errors.Wrap(err, "swapchain: recreate")
	}
	if m.renderPass != nil {
		if err := m.BuildFramebuffers(m.renderPass); err != nil {
			return errors.Wrap(err, "swapchain: recreate")
		}
	}
	m.dirty = false
	return nil
}

// MarkDirty requests a rebuild before the next frame, typically after the
// window reported a new size.
func (m *Manager) MarkDirty() { m.dirty = true }
func (m *Manager) Dirty() bool { return m.dirty }

func (m *Manager) Swapchain() gpu.Swapchain { return m.swapchain }
func (m *Manager) ImageCount() int          { return len(m.images) }
func (m *Manager) ViewCount() int           { return len(m.views) }
func (m *Manager) FramebufferCount() int    { return len(m.framebuffers) }
func (m *Manager) DepthFormat() gpu.Format  { return m.depthFormat }

// Generation counts successful chain builds; it changes whenever anything
// sized to the chain was replaced.
func (m *Manager) Generation() int { return m.generation }

func (m *Manager) Framebuffer(imageIndex int) gpu.Framebuffer {
	return m.framebuffers[imageIndex]
}

func (m *Manager) Extent() gpu.Extent {
	if m.swapchain == nil {
		return gpu.Extent{}
	}
	return m.swapchain.Extent()
}

func (m *Manager) Format() gpu.Format {
	if m.swapchain == nil {
		return gpu.FormatUndefined
	}
	return m.swapchain.Format()
}

func (m *Manager) destroyFramebuffers() {
	for _, fb := range m.framebuffers {
		fb.Destroy()
	}
	m.framebuffers = nil
}

func (m *Manager) destroyDepth() {
	if m.depthView != nil {
		m.depthView.Destroy()
		m.depthView = nil
	}
	if m.depth != nil {
		m.depth.Destroy()
		m.depth = nil
	}
}

func (m *Manager) destroyViews() {
	for _, view := range m.views {
		view.Destroy()
	}
	m.views = nil
}

// Destroy releases everything the manager owns. The device must be idle. It
// is safe to call twice.
func (m *Manager) Destroy() {
	m.destroyFramebuffers()
	m.destroyDepth()
	m.destroyViews()
	if m.swapchain != nil {
		m.swapchain.Destroy()
		m.swapchain = nil
	}
	m.images = nil
	m.renderPass = nil
}
