package renderer

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/tutorial-engine/frame"
	"github.com/vkngwrapper/tutorial-engine/gpu"
	"github.com/vkngwrapper/tutorial-engine/pipeline"
	"github.com/vkngwrapper/tutorial-engine/scene"
)

const (
	matrixSize = 64
	// view, projection, eye position with the scene time in w
	cameraSize = 2*matrixSize + 16
)

type cameraData struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
	Eye        mgl32.Vec4
}

// drawList adapts one scene frame to the synchronizer's Scene.
type drawList struct {
	r     *Renderer
	frame *scene.Frame
}

func (d *drawList) instanceCount() int {
	n := 0
	for _, draw := range d.frame.Draws {
		n += len(draw.Instances)
	}
	return n
}

// reserve grows the slot's dynamic buffers to fit this frame and points the
// slot's descriptor set at the new buffers if any were replaced. The
// synchronizer has already waited for the slot, so nothing on the GPU still
// reads the old ones.
func (d *drawList) reserve(slot int) error {
	r := d.r
	instances := d.instanceCount()
	if instances == 0 {
		instances = 1
	}
	joints := len(d.frame.Joints)
	if joints == 0 {
		joints = 1
	}

	grewInstances, err := r.instances.Ensure(slot, instances*matrixSize)
	if err != nil {
		return err
	}
	grewJoints, err := r.joints.Ensure(slot, joints*matrixSize)
	if err != nil {
		return err
	}
	if grewInstances || grewJoints {
		return r.writeFrameSet(slot)
	}
	return nil
}

func (r *Renderer) pipelineFor(m *gpuMesh) *pipeline.Pipeline {
	switch {
	case m.topology.IsLine():
		return r.linePipeline
	case m.skinned():
		return r.skinnedPipeline
	}
	return r.meshPipeline
}

func (d *drawList) Record(cb gpu.CommandBuffer, target frame.Target) error {
	r := d.r
	if err := d.reserve(target.Slot); err != nil {
		return err
	}

	var bound *pipeline.Pipeline
	first := 0
	for _, draw := range d.frame.Draws {
		if draw.Mesh < 0 || int(draw.Mesh) >= len(r.meshes) {
			return errors.Newf("draw of unknown mesh %d", draw.Mesh)
		}
		count := len(draw.Instances)
		if count == 0 {
			continue
		}
		m := r.meshes[draw.Mesh]

		if p := r.pipelineFor(m); p != bound {
			cb.BindPipeline(p.Handle)
			cb.BindDescriptorSets(p.Layout, 0, r.frameSets[target.Slot], r.texture.Set)
			if p.LineWidth {
				cb.SetLineWidth(r.cfg.Vulkan.LineWidth)
			}
			bound = p
		}

		if m.skinned() {
			cb.BindVertexBuffers(0, m.vertices, m.joints, m.weights)
		} else {
			cb.BindVertexBuffers(0, m.vertices)
		}
		cb.BindIndexBuffer(m.indices, gpu.IndexUint32)
		cb.DrawIndexed(m.indexCount, count, first)
		first += count
	}
	return nil
}

func (d *drawList) Update(target frame.Target) error {
	r := d.r
	f := d.frame

	camera := cameraData{
		View:       f.View,
		Projection: vulkanClip.Mul4(f.Projection),
		Eye:        f.Eye.Vec4(f.Time),
	}
	if err := r.camera.Write(target.Slot, encode(camera)); err != nil {
		return err
	}

	instances := make([]mgl32.Mat4, 0, d.instanceCount())
	for _, draw := range f.Draws {
		instances = append(instances, draw.Instances...)
	}
	if len(instances) > 0 {
		if err := r.instances.Write(target.Slot, encode(instances)); err != nil {
			return err
		}
	}
	if len(f.Joints) > 0 {
		if err := r.joints.Write(target.Slot, encode(f.Joints)); err != nil {
			return err
		}
	}
	return nil
}

func encode(data any) []byte {
	buf := &bytes.Buffer{}
	// Matrices and vectors are fixed size, so Write cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, data)
	return buf.Bytes()
}
