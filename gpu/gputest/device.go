package gputest

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

// Device is a fake gpu.Device. It is single threaded, like the engine.
type Device struct {
	*Ledger

	graphics *Queue
	present  *Queue

	// SwapchainImageCount is how many images each new swapchain has.
	SwapchainImageCount int
	// AcquireResults is consumed one entry per AcquireNextImage call. An empty
	// queue means success.
	AcquireResults []gpu.PresentResult
	// PresentResults is consumed one entry per Present call.
	PresentResults []gpu.PresentResult
	// PresentErr, when set, is returned by every Present call after its wait
	// semaphores are consumed.
	PresentErr error
	// FailCreate makes every creation of the given kind fail with the error.
	FailCreate map[string]error
	// BeforeWait runs before every fence wait; tests use it to inject delay.
	BeforeWait func()
	// SupportsWideLines is reported through gpu.Features.
	SupportsWideLines bool

	Swapchains    []*Swapchain
	Pipelines     []gpu.PipelineInfo
	// LastSubmit holds the command buffers of the most recent submission.
	LastSubmit    []*CommandBuffer
	Submits       int
	Presents      int
	Acquires      int
	WaitIdleCalls int
	// InFlight is the number of fenced submissions the host has not waited
	// for yet; MaxInFlight is its high-water mark.
	InFlight      int
	MaxInFlight   int
	pendingFences []*Fence
}

var _ gpu.Device = (*Device)(nil)

// NewDevice creates a fake device with a three-image swapchain.
func NewDevice() *Device {
	d := &Device{
		Ledger:              newLedger(),
		SwapchainImageCount: 3,
		FailCreate:          make(map[string]error),
	}
	d.graphics = &Queue{device: d, name: "graphics"}
	d.present = &Queue{device: d, name: "present"}
	return d
}

func (d *Device) fail(kind string) error {
	if err, ok := d.FailCreate[kind]; ok {
		return errors.Wrapf(err, "create %s", kind)
	}
	return nil
}

func (d *Device) GraphicsQueue() gpu.Queue { return d.graphics }
func (d *Device) PresentQueue() gpu.Queue  { return d.present }
func (d *Device) WideLines() bool          { return d.SupportsWideLines }
func (d *Device) DepthFormat() gpu.Format  { return gpu.FormatD32Float }

// WaitIdle completes every pending submission.
func (d *Device) WaitIdle() error {
	d.WaitIdleCalls++
	d.note("wait-idle")
	for len(d.pendingFences) > 0 {
		d.pendingFences[0].complete()
	}
	return nil
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	if err := d.fail(KindFence); err != nil {
		return nil, err
	}
	return &Fence{handle: d.open(KindFence), device: d, signaled: signaled}, nil
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	if err := d.fail(KindSemaphore); err != nil {
		return nil, err
	}
	return &Semaphore{handle: d.open(KindSemaphore)}, nil
}

func (d *Device) CreateBuffer(info gpu.BufferInfo) (gpu.Buffer, error) {
	if err := d.fail(KindBuffer); err != nil {
		return nil, err
	}
	if info.Size <= 0 {
		return nil, errors.Newf("create buffer: invalid size %d", info.Size)
	}
	return &Buffer{
		handle: d.open(KindBuffer),
		Info:   info,
		Data:   make([]byte, info.Size),
	}, nil
}

func (d *Device) CreateImage(info gpu.ImageInfo) (gpu.ImageResource, error) {
	if err := d.fail(KindImage); err != nil {
		return nil, err
	}
	if info.Extent.Degenerate() {
		return nil, errors.Newf("create image: invalid extent %dx%d", info.Extent.Width, info.Extent.Height)
	}
	h := d.open(KindImage)
	return &Image{
		handle: &h,
		Info:   info,
		Pixels: make([]byte, info.Extent.Width*info.Extent.Height*4),
		layout: gpu.LayoutUndefined,
	}, nil
}

func (d *Device) CreateImageView(image gpu.Image, aspect gpu.Aspect) (gpu.ImageView, error) {
	if err := d.fail(KindImageView); err != nil {
		return nil, err
	}
	return &ImageView{handle: d.open(KindImageView), Image: image, Aspect: aspect}, nil
}

func (d *Device) CreateSampler(info gpu.SamplerInfo) (gpu.Sampler, error) {
	if err := d.fail(KindSampler); err != nil {
		return nil, err
	}
	return &object{handle: d.open(KindSampler)}, nil
}

func (d *Device) CreateCommandPool() (gpu.CommandPool, error) {
	if err := d.fail(KindCommandPool); err != nil {
		return nil, err
	}
	return &CommandPool{handle: d.open(KindCommandPool), device: d}, nil
}

func (d *Device) CreateShaderModule(code []byte) (gpu.ShaderModule, error) {
	if err := d.fail(KindShader); err != nil {
		return nil, err
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Newf("create shader module: bad code size %d", len(code))
	}
	return &object{handle: d.open(KindShader)}, nil
}

func (d *Device) CreateRenderPass(info gpu.RenderPassInfo) (gpu.RenderPass, error) {
	if err := d.fail(KindRenderPass); err != nil {
		return nil, err
	}
	return &object{handle: d.open(KindRenderPass)}, nil
}

func (d *Device) CreateFramebuffer(info gpu.FramebufferInfo) (gpu.Framebuffer, error) {
	if err := d.fail(KindFramebuffer); err != nil {
		return nil, err
	}
	if info.RenderPass == nil {
		return nil, errors.New("create framebuffer: nil render pass")
	}
	return &Framebuffer{handle: d.open(KindFramebuffer), Info: info}, nil
}

func (d *Device) CreatePipelineLayout(info gpu.PipelineLayoutInfo) (gpu.PipelineLayout, error) {
	if err := d.fail(KindPipelineLayout); err != nil {
		return nil, err
	}
	return &object{handle: d.open(KindPipelineLayout)}, nil
}

func (d *Device) CreateGraphicsPipeline(info gpu.PipelineInfo) (gpu.Pipeline, error) {
	if err := d.fail(KindPipeline); err != nil {
		return nil, err
	}
	for _, m := range []gpu.ShaderModule{info.VertexShader, info.FragmentShader} {
		if obj, ok := m.(*object); !ok || obj.destroyed {
			return nil, errors.New("create graphics pipeline: shader module missing or destroyed")
		}
	}
	d.Pipelines = append(d.Pipelines, info)
	return &object{handle: d.open(KindPipeline)}, nil
}

func (d *Device) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	if err := d.fail(KindDescriptorSetLayout); err != nil {
		return nil, err
	}
	return &DescriptorSetLayout{handle: d.open(KindDescriptorSetLayout), Bindings: bindings}, nil
}

func (d *Device) CreateDescriptorPool(info gpu.DescriptorPoolInfo) (gpu.DescriptorPool, error) {
	if err := d.fail(KindDescriptorPool); err != nil {
		return nil, err
	}
	return &DescriptorPool{handle: d.open(KindDescriptorPool), Info: info}, nil
}

func (d *Device) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	if err := d.fail(KindSwapchain); err != nil {
		return nil, err
	}
	if info.Extent.Degenerate() {
		return nil, errors.Newf("create swapchain: degenerate extent %dx%d", info.Extent.Width, info.Extent.Height)
	}
	if info.Old != nil {
		if old, ok := info.Old.(*Swapchain); ok && old.destroyed {
			d.violate("swapchain created with an already destroyed old swapchain")
		}
	}
	sc := &Swapchain{
		handle:      d.open(KindSwapchain),
		device:      d,
		extent:      info.Extent,
		PresentMode: info.PresentMode,
		HadOld:      info.Old != nil,
	}
	for i := 0; i < d.SwapchainImageCount; i++ {
		sc.images = append(sc.images, &Image{
			Info:   gpu.ImageInfo{Extent: info.Extent, Format: gpu.FormatBGRA8SRGB},
			layout: gpu.LayoutUndefined,
		})
	}
	d.Swapchains = append(d.Swapchains, sc)
	return sc, nil
}

func (d *Device) nextAcquire() gpu.PresentResult {
	if len(d.AcquireResults) == 0 {
		return gpu.ResultSuccess
	}
	res := d.AcquireResults[0]
	d.AcquireResults = d.AcquireResults[1:]
	return res
}

func (d *Device) nextPresent() gpu.PresentResult {
	if len(d.PresentResults) == 0 {
		return gpu.ResultSuccess
	}
	res := d.PresentResults[0]
	d.PresentResults = d.PresentResults[1:]
	return res
}

func (d *Device) removePending(f *Fence) {
	for i, p := range d.pendingFences {
		if p == f {
			d.pendingFences = append(d.pendingFences[:i], d.pendingFences[i+1:]...)
			return
		}
	}
}

// CurrentSwapchain is the most recently created swapchain, or nil.
func (d *Device) CurrentSwapchain() *Swapchain {
	if len(d.Swapchains) == 0 {
		return nil
	}
	return d.Swapchains[len(d.Swapchains)-1]
}
