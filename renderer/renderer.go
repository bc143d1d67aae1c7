// Package renderer is the Vulkan backend of the scene. It owns the
// swapchain, the render pass, the pipelines, the per-frame dynamic buffers
// and the frame synchronizer, and it turns a scene.Frame into one presented
// frame.
package renderer

import (
	"io/fs"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/tutorial-engine/config"
	"github.com/vkngwrapper/tutorial-engine/frame"
	"github.com/vkngwrapper/tutorial-engine/gpu"
	"github.com/vkngwrapper/tutorial-engine/logging"
	"github.com/vkngwrapper/tutorial-engine/mesh"
	"github.com/vkngwrapper/tutorial-engine/pipeline"
	"github.com/vkngwrapper/tutorial-engine/scene"
	"github.com/vkngwrapper/tutorial-engine/swapchain"
	"github.com/vkngwrapper/tutorial-engine/upload"
)

// Bindings of the per-frame descriptor set.
const (
	bindingCamera    = 0
	bindingInstances = 1
	bindingJoints    = 2
)

var frameBindings = []gpu.DescriptorBinding{
	{Binding: bindingCamera, Type: gpu.DescriptorUniformBuffer, Count: 1, Stages: gpu.StageVertex | gpu.StageFragment},
	{Binding: bindingInstances, Type: gpu.DescriptorStorageBuffer, Count: 1, Stages: gpu.StageVertex},
	{Binding: bindingJoints, Type: gpu.DescriptorStorageBuffer, Count: 1, Stages: gpu.StageVertex},
}

// vulkanClip maps GL clip depth [-1, 1] to Vulkan's [0, 1]. Y is handled by
// the flipped viewport.
var vulkanClip = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

type gpuMesh struct {
	name       string
	topology   gpu.Topology
	vertices   gpu.Buffer
	indices    gpu.Buffer
	joints     gpu.Buffer
	weights    gpu.Buffer
	indexCount int
}

func (m *gpuMesh) skinned() bool { return m.joints != nil }

type meshBuffer struct {
	target  *gpu.Buffer
	usage   gpu.BufferUsage
	class   gpu.ResourceClass
	payload []byte
}

type Renderer struct {
	device gpu.Device
	cfg    config.Config
	logger *slog.Logger

	swapchain  *swapchain.Manager
	renderPass gpu.RenderPass
	uploader   *upload.Uploader
	texture    *upload.Texture

	frameLayout gpu.DescriptorSetLayout
	framePool   gpu.DescriptorPool
	frameSets   []gpu.DescriptorSet
	camera      *upload.DynamicBuffer
	instances   *upload.DynamicBuffer
	joints      *upload.DynamicBuffer

	meshPipeline    *pipeline.Pipeline
	skinnedPipeline *pipeline.Pipeline
	linePipeline    *pipeline.Pipeline

	sync  *frame.Synchronizer
	stats *FrameStats

	meshes []*gpuMesh
	scope  *gpu.Scope
}

var _ scene.Backend = (*Renderer)(nil)

// New builds the whole backend on device. Shader and texture paths in cfg are
// resolved against fsys. Either the renderer is returned complete or every
// object created along the way has been released.
func New(device gpu.Device, window swapchain.Window, fsys fs.FS, cfg config.Config, logger *slog.Logger) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Renderer{
		device: device,
		cfg:    cfg,
		logger: logging.Component(logger, "renderer"),
	}

	scope := &gpu.Scope{}
	defer scope.Release()

	r.swapchain = swapchain.New(device, window, cfg.Vulkan.Mode(), logger)
	if err := r.swapchain.Create(); err != nil {
		return nil, errors.Wrap(err, "renderer")
	}
	scope.Add(r.swapchain)

	var err error
	r.renderPass, err = pipeline.NewRenderPass(device, r.swapchain.Format(), r.swapchain.DepthFormat())
	if err != nil {
		return nil, errors.Wrap(err, "renderer")
	}
	// Framebuffers reference the pass, so the manager is released once more
	// ahead of it. Its second Destroy is a no-op.
	scope.Add(r.renderPass)
	scope.Defer(r.swapchain.Destroy)
	if err := r.swapchain.BuildFramebuffers(r.renderPass); err != nil {
		return nil, errors.Wrap(err, "renderer")
	}

	r.uploader, err = upload.New(device, logger)
	if err != nil {
		return nil, errors.Wrap(err, "renderer")
	}
	scope.Add(r.uploader)

	if cfg.Assets.Texture != "" {
		r.texture, err = r.uploader.LoadTexture(fsys, cfg.Assets.Texture)
	} else {
		r.texture, err = r.uploader.NewTexture("white", upload.Solid(255, 255, 255, 255))
	}
	if err != nil {
		return nil, errors.Wrap(err, "renderer")
	}
	scope.Add(r.texture)

	if err := r.createFrameResources(scope); err != nil {
		return nil, errors.Wrap(err, "renderer")
	}
	if err := r.createPipelines(fsys, scope); err != nil {
		return nil, errors.Wrap(err, "renderer")
	}

	r.stats = NewFrameStats(logger, 0)
	r.sync, err = frame.New(device, r.swapchain, r.renderPass, frame.Options{
		FramesInFlight: cfg.Vulkan.FramesInFlight,
		ClearColor:     gpu.ClearColor{0, 0, 0, 1},
		Overlay:        r.stats,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "renderer")
	}
	scope.Add(r.sync)

	r.logger.Info("renderer ready",
		slog.Int("frames_in_flight", r.sync.FramesInFlight()),
		slog.Int("swapchain_images", r.swapchain.ImageCount()),
		slog.String("present_mode", cfg.Vulkan.Mode().String()))

	r.scope = scope.Dismiss()
	return r, nil
}

func (r *Renderer) createFrameResources(scope *gpu.Scope) error {
	slots := r.cfg.Vulkan.FramesInFlight

	var err error
	r.frameLayout, err = r.device.CreateDescriptorSetLayout(frameBindings)
	if err != nil {
		return errors.Wrap(err, "frame set layout")
	}
	scope.Add(r.frameLayout)

	r.framePool, err = r.device.CreateDescriptorPool(gpu.DescriptorPoolInfo{
		MaxSets: slots,
		Sizes: []gpu.PoolSize{
			{Type: gpu.DescriptorUniformBuffer, Count: slots},
			{Type: gpu.DescriptorStorageBuffer, Count: 2 * slots},
		},
	})
	if err != nil {
		return errors.Wrap(err, "frame descriptor pool")
	}
	scope.Add(r.framePool)

	r.frameSets, err = r.framePool.Allocate(r.frameLayout, slots)
	if err != nil {
		return errors.Wrap(err, "frame descriptor sets")
	}

	r.camera, err = upload.NewDynamicBuffer(r.device, gpu.BufferUsageUniform, gpu.ClassUniform, slots, cameraSize)
	if err != nil {
		return err
	}
	scope.Add(r.camera)
	r.instances, err = upload.NewDynamicBuffer(r.device, gpu.BufferUsageStorage, gpu.ClassStorage, slots, matrixSize)
	if err != nil {
		return err
	}
	scope.Add(r.instances)
	r.joints, err = upload.NewDynamicBuffer(r.device, gpu.BufferUsageStorage, gpu.ClassStorage, slots, matrixSize)
	if err != nil {
		return err
	}
	scope.Add(r.joints)

	for slot := range r.frameSets {
		if err := r.writeFrameSet(slot); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) writeFrameSet(slot int) error {
	set := r.frameSets[slot]
	writes := []struct {
		binding int
		typ     gpu.DescriptorType
		buffer  gpu.Buffer
	}{
		{bindingCamera, gpu.DescriptorUniformBuffer, r.camera.Buffer(slot)},
		{bindingInstances, gpu.DescriptorStorageBuffer, r.instances.Buffer(slot)},
		{bindingJoints, gpu.DescriptorStorageBuffer, r.joints.Buffer(slot)},
	}
	for _, w := range writes {
		if err := set.WriteBuffer(w.binding, w.typ, w.buffer, w.buffer.Size()); err != nil {
			return errors.Wrapf(err, "frame set %d", slot)
		}
	}
	return nil
}

func (r *Renderer) createPipelines(fsys fs.FS, scope *gpu.Scope) error {
	assets := r.cfg.Assets
	layouts := []gpu.DescriptorSetLayout{r.frameLayout, r.texture.SetLayout}
	configs := []struct {
		target **pipeline.Pipeline
		cfg    pipeline.Config
	}{
		{&r.meshPipeline, pipeline.Config{
			Name:           "mesh",
			VertexShader:   assets.MeshVertexShader,
			FragmentShader: assets.MeshFragmentShader,
			Vertex:         mesh.Layout(),
			Topology:       gpu.TopologyTriangleList,
			SetLayouts:     layouts,
		}},
		{&r.skinnedPipeline, pipeline.Config{
			Name:           "skinned",
			VertexShader:   assets.SkinnedVertexShader,
			FragmentShader: assets.MeshFragmentShader,
			Vertex:         mesh.SkinnedLayout(),
			Topology:       gpu.TopologyTriangleList,
			SetLayouts:     layouts,
		}},
		{&r.linePipeline, pipeline.Config{
			Name:           "lines",
			VertexShader:   assets.LineVertexShader,
			FragmentShader: assets.LineFragmentShader,
			Vertex:         mesh.Layout(),
			Topology:       gpu.TopologyLineList,
			SetLayouts:     layouts,
		}},
	}
	for _, c := range configs {
		p, err := pipeline.Build(r.device, fsys, r.renderPass, c.cfg, r.logger)
		if err != nil {
			return err
		}
		scope.Add(p)
		*c.target = p
	}
	return nil
}

// UploadMesh copies m into device-local vertex and index buffers.
func (r *Renderer) UploadMesh(m *mesh.Mesh) (scene.MeshID, error) {
	if r.scope.Len() == 0 {
		return 0, errors.New("renderer: upload after cleanup")
	}
	if err := m.Validate(); err != nil {
		return 0, errors.Wrap(err, "renderer")
	}

	scope := &gpu.Scope{}
	defer scope.Release()

	gm := &gpuMesh{name: m.Name, topology: m.Topology, indexCount: len(m.Indices)}
	buffers := []meshBuffer{
		{&gm.vertices, gpu.BufferUsageVertex, gpu.ClassVertex, m.VertexBytes()},
		{&gm.indices, gpu.BufferUsageIndex, gpu.ClassIndex, m.IndexBytes()},
	}
	if m.Skinned() {
		buffers = append(buffers,
			meshBuffer{&gm.joints, gpu.BufferUsageVertex, gpu.ClassVertex, m.JointBytes()},
			meshBuffer{&gm.weights, gpu.BufferUsageVertex, gpu.ClassVertex, m.WeightBytes()},
		)
	}
	for _, b := range buffers {
		buf, err := r.uploader.CreateBuffer(gpu.BufferInfo{Usage: b.usage, Class: b.class}, b.payload)
		if err != nil {
			return 0, errors.Wrapf(err, "renderer: mesh %s", m.Name)
		}
		scope.Add(buf)
		*b.target = buf
	}

	r.scope.Adopt(scope)
	r.meshes = append(r.meshes, gm)
	r.logger.Debug("mesh uploaded",
		slog.String("mesh", m.Name),
		slog.Int("vertices", len(m.Vertices)),
		slog.Int("indices", len(m.Indices)),
		slog.Bool("skinned", m.Skinned()))
	return scene.MeshID(len(r.meshes) - 1), nil
}

// Draw renders and presents f. A frame that ends in a swapchain rebuild is
// not an error; the next call draws normally.
func (r *Renderer) Draw(f *scene.Frame) error {
	if r.scope.Len() == 0 {
		return errors.New("renderer: draw after cleanup")
	}
	outcome, err := r.sync.Frame(&drawList{r: r, frame: f})
	if err != nil {
		return errors.Wrap(err, "renderer")
	}
	if outcome == frame.Recreated {
		r.logger.Debug("frame skipped for swapchain rebuild", slog.Int("generation", r.swapchain.Generation()))
	}
	return nil
}

// Resize schedules a swapchain rebuild before the next frame.
func (r *Renderer) Resize(width, height int) {
	r.logger.Debug("resize", slog.Int("width", width), slog.Int("height", height))
	r.swapchain.MarkDirty()
}

// Cleanup waits for the GPU and releases everything the renderer created, in
// reverse order. Later calls do nothing.
func (r *Renderer) Cleanup() {
	if r.scope.Len() == 0 {
		return
	}
	if err := r.device.WaitIdle(); err != nil {
		r.logger.Warn("wait idle before cleanup failed", slog.Any("err", err))
	}
	r.stats.Log()
	r.scope.Release()
	r.meshes = nil
	r.logger.Info("renderer released")
}

func (r *Renderer) Swapchain() *swapchain.Manager { return r.swapchain }
func (r *Renderer) Stats() frame.Stats            { return r.sync.Stats() }
