// Package pipeline builds render passes and graphics pipelines from shader
// files and a vertex layout. Pipelines are immutable: a change of shaders or
// layout means building a new one.
package pipeline

import (
	"encoding/binary"
	"io/fs"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/tutorial-engine/gpu"
	"github.com/vkngwrapper/tutorial-engine/logging"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

// Device is what Build needs from the GPU.
type Device interface {
	gpu.PipelineFactory
	gpu.Features
}

// NewRenderPass creates the single-subpass color+depth pass the renderer
// draws with. The color attachment ends in the present layout.
func NewRenderPass(device gpu.PipelineFactory, colorFormat, depthFormat gpu.Format) (gpu.RenderPass, error) {
	if !depthFormat.IsDepth() {
		return nil, errors.Newf("render pass: %d is not a depth format", depthFormat)
	}
	pass, err := device.CreateRenderPass(gpu.RenderPassInfo{ColorFormat: colorFormat, DepthFormat: depthFormat})
	if err != nil {
		return nil, errors.Wrap(err, "render pass")
	}
	return pass, nil
}

type Config struct {
	Name           string
	VertexShader   string
	FragmentShader string
	Vertex         gpu.VertexLayout
	Topology       gpu.Topology
	SetLayouts     []gpu.DescriptorSetLayout
	// DoubleSided disables back-face culling.
	DoubleSided bool
}

type Pipeline struct {
	Name     string
	Layout   gpu.PipelineLayout
	Handle   gpu.Pipeline
	Topology gpu.Topology
	// LineWidth reports whether line width is dynamic state of this pipeline.
	LineWidth bool

	scope *gpu.Scope
}

// Build creates the pipeline layout, loads both shader stages from fsys and
// creates the pipeline. It either returns a complete pipeline or nothing:
// any failure releases everything built so far, layout included. Shader
// modules never outlive the call.
func Build(device Device, fsys fs.FS, renderPass gpu.RenderPass, cfg Config, logger *slog.Logger) (*Pipeline, error) {
	logger = logging.OrNop(logger)

	scope := &gpu.Scope{}
	defer scope.Release()

	layout, err := device.CreatePipelineLayout(gpu.PipelineLayoutInfo{SetLayouts: cfg.SetLayouts})
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %s: layout", cfg.Name)
	}
	scope.Add(layout)

	shaders := &gpu.Scope{}
	defer shaders.Release()

	vert, err := loadShader(device, fsys, cfg.VertexShader)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %s", cfg.Name)
	}
	shaders.Add(vert)

	frag, err := loadShader(device, fsys, cfg.FragmentShader)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %s", cfg.Name)
	}
	shaders.Add(frag)

	cull := gpu.CullBack
	if cfg.DoubleSided || cfg.Topology.IsLine() {
		cull = gpu.CullNone
	}
	lineWidth := cfg.Topology.IsLine() && device.WideLines()

	handle, err := device.CreateGraphicsPipeline(gpu.PipelineInfo{
		VertexShader:   vert,
		FragmentShader: frag,
		Vertex:         cfg.Vertex,
		Topology:       cfg.Topology,
		CullMode:       cull,
		// The viewport is flipped on Y, which mirrors the winding.
		FrontFace:        gpu.FrontFaceClockwise,
		DepthTest:        true,
		DepthWrite:       true,
		DepthCompare:     gpu.CompareLessOrEqual,
		DynamicLineWidth: lineWidth,
		Layout:           layout,
		RenderPass:       renderPass,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %s: create", cfg.Name)
	}
	scope.Add(handle)

	logger.Debug("pipeline built",
		slog.String("pipeline", cfg.Name),
		slog.String("vert", cfg.VertexShader),
		slog.String("frag", cfg.FragmentShader),
		slog.Bool("dynamic_line_width", lineWidth))

	return &Pipeline{
		Name:      cfg.Name,
		Layout:    layout,
		Handle:    handle,
		Topology:  cfg.Topology,
		LineWidth: lineWidth,
		scope:     scope.Dismiss(),
	}, nil
}

// Destroy releases the pipeline and its layout. It is safe to call twice.
func (p *Pipeline) Destroy() {
	if p == nil {
		return
	}
	p.scope.Release()
}

func loadShader(device gpu.PipelineFactory, fsys fs.FS, path string) (gpu.ShaderModule, error) {
	code, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", path)
	}
	if err := ValidateSPIRV(code); err != nil {
		return nil, errors.Wrapf(err, "shader %s", path)
	}
	module, err := device.CreateShaderModule(code)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", path)
	}
	return module, nil
}

// ValidateSPIRV rejects code that cannot be a SPIR-V module.
func ValidateSPIRV(code []byte) error {
	if len(code) == 0 {
		return errors.New("empty bytecode")
	}
	if len(code)%4 != 0 {
		return errors.Newf("bytecode length %d is not a multiple of 4", len(code))
	}
	if magic := binary.LittleEndian.Uint32(code); magic != SPIRVMagic {
		return errors.Newf("bad magic number %#08x", magic)
	}
	return nil
}
