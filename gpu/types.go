package gpu

// Extent is a two dimensional size in pixels.
type Extent struct {
	Width  int
	Height int
}

// Degenerate reports whether either dimension is zero, which is what a
// minimized window reports.
func (e Extent) Degenerate() bool {
	return e.Width <= 0 || e.Height <= 0
}

// PresentResult is the outcome of an acquire or present call. OutOfDate and
// Suboptimal are expected conditions, not errors.
type PresentResult int

const (
	ResultSuccess PresentResult = iota
	ResultSuboptimal
	ResultOutOfDate
)

func (r PresentResult) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultSuboptimal:
		return "suboptimal"
	case ResultOutOfDate:
		return "out-of-date"
	}
	return "unknown"
}

// ResourceClass tags a buffer or image with what it is used for. It is
// bookkeeping only; the backend derives real usage from BufferUsage.
type ResourceClass int

const (
	ClassVertex ResourceClass = iota
	ClassIndex
	ClassUniform
	ClassStorage
	ClassTexel
	ClassStaging
	ClassTexture
	ClassDepth
	ClassReadback
)

var classNames = map[ResourceClass]string{
	ClassVertex:   "vertex",
	ClassIndex:    "index",
	ClassUniform:  "uniform",
	ClassStorage:  "storage",
	ClassTexel:    "texel",
	ClassStaging:  "staging",
	ClassTexture:  "texture",
	ClassDepth:    "depth",
	ClassReadback: "readback",
}

func (c ResourceClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "unknown"
}

// MemoryHint tells the allocator where a resource should live.
type MemoryHint int

const (
	// MemoryDeviceLocal is GPU-only memory, filled through staging copies.
	MemoryDeviceLocal MemoryHint = iota
	// MemoryHostVisible is host-readable memory, used for readbacks.
	MemoryHostVisible
	// MemoryHostToDevice is host-writable memory the GPU reads from:
	// staging buffers and per-frame dynamic data.
	MemoryHostToDevice
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
)

type ImageUsage uint32

const (
	ImageUsageTransferDst ImageUsage = 1 << iota
	ImageUsageSampled
	ImageUsageColorAttachment
	ImageUsageDepthAttachment
)

type ImageLayout int

const (
	LayoutUndefined ImageLayout = iota
	LayoutTransferDst
	LayoutShaderReadOnly
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutPresentSrc
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "UNDEFINED"
	case LayoutTransferDst:
		return "TRANSFER_DST"
	case LayoutShaderReadOnly:
		return "SHADER_READ_ONLY"
	case LayoutColorAttachment:
		return "COLOR_ATTACHMENT"
	case LayoutDepthAttachment:
		return "DEPTH_ATTACHMENT"
	case LayoutPresentSrc:
		return "PRESENT_SRC"
	}
	return "UNKNOWN"
}

type Aspect int

const (
	AspectColor Aspect = iota
	AspectDepth
)

// Format is a backend-neutral pixel or vertex attribute format.
type Format int

const (
	FormatUndefined Format = iota
	FormatRGBA8SRGB
	FormatBGRA8SRGB
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatD32Float
	FormatD32FloatS8
	FormatD24S8
	FormatR32G32Float
	FormatR32G32B32Float
	FormatR32G32B32A32Float
	FormatR16G16B16A16Uint
)

// IsDepth reports whether f is a depth format.
func (f Format) IsDepth() bool {
	return f == FormatD32Float || f == FormatD32FloatS8 || f == FormatD24S8
}

// HasStencil reports whether a depth format also carries stencil bits.
func (f Format) HasStencil() bool {
	return f == FormatD32FloatS8 || f == FormatD24S8
}

type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyLineList
)

// IsLine reports whether the topology rasterizes lines.
func (t Topology) IsLine() bool {
	return t == TopologyLineList
}

type IndexType int

const (
	IndexUint16 IndexType = iota
	IndexUint32
)

type CullMode int

const (
	CullNone CullMode = iota
	CullBack
	CullFront
)

type FrontFace int

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

type CompareOp int

const (
	CompareLess CompareOp = iota
	CompareLessOrEqual
	CompareAlways
)

type PresentMode int

const (
	PresentModeFIFO PresentMode = iota
	PresentModeMailbox
	PresentModeImmediate
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeFIFO:
		return "fifo"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeImmediate:
		return "immediate"
	}
	return "unknown"
}

type ShaderStage uint32

const (
	StageVertex ShaderStage = 1 << iota
	StageFragment
)

type PipelineStage uint32

const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageTransfer
	PipelineStageFragmentShader
	PipelineStageColorAttachmentOutput
	PipelineStageEarlyFragmentTests
)

type DescriptorType int

const (
	DescriptorUniformBuffer DescriptorType = iota
	DescriptorStorageBuffer
	DescriptorCombinedImageSampler
)

// VertexBinding describes one vertex buffer slot.
type VertexBinding struct {
	Binding int
	Stride  int
}

// VertexAttribute places one shader input inside a binding.
type VertexAttribute struct {
	Location int
	Binding  int
	Format   Format
	Offset   int
}

// VertexLayout is the full vertex input description of a pipeline.
type VertexLayout struct {
	Bindings   []VertexBinding
	Attributes []VertexAttribute
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

type Rect struct {
	X, Y   int
	Extent Extent
}

// ClearColor is an RGBA float clear value.
type ClearColor [4]float32

// DescriptorBinding is one slot of a descriptor set layout.
type DescriptorBinding struct {
	Binding int
	Type    DescriptorType
	Count   int
	Stages  ShaderStage
}

type PoolSize struct {
	Type  DescriptorType
	Count int
}
