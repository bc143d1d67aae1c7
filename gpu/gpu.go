// Package gpu is the handle model the engine is written against. It exposes
// exactly the GPU operations the frame loop, the swapchain manager, the staged
// uploader and the pipeline builder need, split into small factory interfaces
// so each component asks only for what it uses.
//
// Package vkng implements these interfaces on top of vkngwrapper; package
// gputest implements them in memory for tests.
package gpu

// Destroyer is anything that releases a GPU object.
type Destroyer interface {
	Destroy()
}

// Fence is a host-waitable GPU completion signal.
type Fence interface {
	// Wait blocks without timeout until the fence is signaled.
	Wait() error
	Reset() error
	Destroy()
}

type Semaphore interface {
	Destroy()
}

// SubmitInfo is a single queue submission.
type SubmitInfo struct {
	CommandBuffers   []CommandBuffer
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	SignalSemaphores []Semaphore
	Fence            Fence
}

// PresentInfo hands a rendered swapchain image back to the display.
type PresentInfo struct {
	Swapchain      Swapchain
	ImageIndex     int
	WaitSemaphores []Semaphore
}

type Queue interface {
	Submit(info SubmitInfo) error
	Present(info PresentInfo) (PresentResult, error)
	WaitIdle() error
}

// BufferInfo describes a buffer allocation.
type BufferInfo struct {
	Size   int
	Usage  BufferUsage
	Class  ResourceClass
	Memory MemoryHint
	// Persistent keeps a host-visible buffer mapped for its whole lifetime.
	Persistent bool
}

type Buffer interface {
	Size() int
	Class() ResourceClass
	// Write copies data into host-visible memory at offset.
	Write(offset int, data []byte) error
	// Read copies host-visible memory at offset into dst.
	Read(offset int, dst []byte) error
	Destroy()
}

// Image is any image the GPU can render to or sample from, including
// swapchain images, which are owned by their swapchain.
type Image interface {
	Extent() Extent
	Format() Format
}

// ImageInfo describes an allocated 2D image.
type ImageInfo struct {
	Extent Extent
	Format Format
	Usage  ImageUsage
	Class  ResourceClass
	Memory MemoryHint
}

// ImageResource is an image backed by an allocation the caller owns.
type ImageResource interface {
	Image
	Destroy()
}

type ImageView interface {
	Destroy()
}

type SamplerInfo struct {
	Linear     bool
	Repeat     bool
	Anisotropy bool
}

type Sampler interface {
	Destroy()
}

type ShaderModule interface {
	Destroy()
}

type RenderPassInfo struct {
	ColorFormat Format
	DepthFormat Format
}

type RenderPass interface {
	Destroy()
}

type FramebufferInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent
}

type Framebuffer interface {
	Destroy()
}

type PipelineLayoutInfo struct {
	SetLayouts []DescriptorSetLayout
}

type PipelineLayout interface {
	Destroy()
}

// PipelineInfo is the full fixed-function and programmable state of a
// graphics pipeline. Viewport and scissor are always dynamic.
type PipelineInfo struct {
	VertexShader   ShaderModule
	FragmentShader ShaderModule
	Vertex         VertexLayout
	Topology       Topology
	CullMode       CullMode
	FrontFace      FrontFace
	DepthTest      bool
	DepthWrite     bool
	DepthCompare   CompareOp
	// DynamicLineWidth adds line width to the dynamic state.
	DynamicLineWidth bool
	Layout           PipelineLayout
	RenderPass       RenderPass
}

type Pipeline interface {
	Destroy()
}

type DescriptorSetLayout interface {
	Destroy()
}

type DescriptorPoolInfo struct {
	MaxSets int
	Sizes   []PoolSize
}

type DescriptorPool interface {
	Allocate(layout DescriptorSetLayout, count int) ([]DescriptorSet, error)
	Destroy()
}

// DescriptorSet is freed together with its pool.
type DescriptorSet interface {
	WriteBuffer(binding int, typ DescriptorType, buffer Buffer, size int) error
	WriteImage(binding int, view ImageView, sampler Sampler) error
}

// ImageBarrier is a layout transition recorded into a command buffer.
type ImageBarrier struct {
	Image     Image
	OldLayout ImageLayout
	NewLayout ImageLayout
	Aspect    Aspect
}

// RenderPassBegin starts a render pass instance on one framebuffer.
type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      Extent
	ClearColor  ClearColor
	ClearDepth  float32
}

type CommandBuffer interface {
	Reset() error
	Begin(oneTimeSubmit bool) error
	End() error

	PipelineBarrier(barrier ImageBarrier) error
	CopyBuffer(src, dst Buffer, size int) error
	CopyBufferToImage(src Buffer, dst Image) error

	BeginRenderPass(begin RenderPassBegin) error
	EndRenderPass()
	SetViewport(viewport Viewport)
	SetScissor(scissor Rect)
	SetLineWidth(width float32)

	BindPipeline(pipeline Pipeline)
	BindDescriptorSets(layout PipelineLayout, firstSet int, sets ...DescriptorSet)
	BindVertexBuffers(firstBinding int, buffers ...Buffer)
	BindIndexBuffer(buffer Buffer, indexType IndexType)
	Draw(vertexCount, instanceCount, firstInstance int)
	DrawIndexed(indexCount, instanceCount, firstInstance int)
}

type CommandPool interface {
	Allocate(count int) ([]CommandBuffer, error)
	Free(buffers ...CommandBuffer)
	Destroy()
}

// SwapchainInfo requests a swapchain. Old, when set, is handed to the
// platform as a reuse hint; the caller still destroys it afterwards.
type SwapchainInfo struct {
	Extent      Extent
	PresentMode PresentMode
	Old         Swapchain
}

type Swapchain interface {
	Images() []Image
	Format() Format
	Extent() Extent
	AcquireNextImage(signal Semaphore) (int, PresentResult, error)
	Destroy()
}

// Waiter blocks until the device has no pending work.
type Waiter interface {
	WaitIdle() error
}

type SyncFactory interface {
	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
}

type Allocator interface {
	CreateBuffer(info BufferInfo) (Buffer, error)
	CreateImage(info ImageInfo) (ImageResource, error)
}

type ViewFactory interface {
	CreateImageView(image Image, aspect Aspect) (ImageView, error)
	CreateSampler(info SamplerInfo) (Sampler, error)
}

type CommandFactory interface {
	CreateCommandPool() (CommandPool, error)
}

type PipelineFactory interface {
	CreateShaderModule(code []byte) (ShaderModule, error)
	CreateRenderPass(info RenderPassInfo) (RenderPass, error)
	CreateFramebuffer(info FramebufferInfo) (Framebuffer, error)
	CreatePipelineLayout(info PipelineLayoutInfo) (PipelineLayout, error)
	CreateGraphicsPipeline(info PipelineInfo) (Pipeline, error)
}

type DescriptorFactory interface {
	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	CreateDescriptorPool(info DescriptorPoolInfo) (DescriptorPool, error)
}

type SwapchainFactory interface {
	CreateSwapchain(info SwapchainInfo) (Swapchain, error)
	// DepthFormat is the best depth attachment format the device supports.
	DepthFormat() Format
}

// Queues exposes the queues a device was created with.
type Queues interface {
	GraphicsQueue() Queue
	PresentQueue() Queue
}

// Features reports optional device capabilities enabled at creation.
type Features interface {
	WideLines() bool
}

// Device is the full surface a renderer needs.
type Device interface {
	Waiter
	SyncFactory
	Allocator
	ViewFactory
	CommandFactory
	PipelineFactory
	DescriptorFactory
	SwapchainFactory
	Queues
	Features
}
