// Package mesh produces vertex and index payloads of a known byte layout for
// the renderer to upload.
package mesh

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	UV       mgl32.Vec2
}

// Joints holds the indices of the four joints influencing a vertex.
type Joints [4]uint16

// Weights holds the influence of each entry of Joints; they sum to one.
type Weights [4]float32

// Layout is the vertex input of static geometry: one interleaved binding.
func Layout() gpu.VertexLayout {
	v := Vertex{}
	return gpu.VertexLayout{
		Bindings: []gpu.VertexBinding{
			{Binding: 0, Stride: int(unsafe.Sizeof(v))},
		},
		Attributes: []gpu.VertexAttribute{
			{Location: 0, Binding: 0, Format: gpu.FormatR32G32B32Float, Offset: int(unsafe.Offsetof(v.Position))},
			{Location: 1, Binding: 0, Format: gpu.FormatR32G32B32Float, Offset: int(unsafe.Offsetof(v.Color))},
			{Location: 2, Binding: 0, Format: gpu.FormatR32G32Float, Offset: int(unsafe.Offsetof(v.UV))},
		},
	}
}

// SkinnedLayout extends Layout with joint indices on binding 1 and weights on
// binding 2.
func SkinnedLayout() gpu.VertexLayout {
	layout := Layout()
	layout.Bindings = append(layout.Bindings,
		gpu.VertexBinding{Binding: 1, Stride: int(unsafe.Sizeof(Joints{}))},
		gpu.VertexBinding{Binding: 2, Stride: int(unsafe.Sizeof(Weights{}))},
	)
	layout.Attributes = append(layout.Attributes,
		gpu.VertexAttribute{Location: 3, Binding: 1, Format: gpu.FormatR16G16B16A16Uint},
		gpu.VertexAttribute{Location: 4, Binding: 2, Format: gpu.FormatR32G32B32A32Float},
	)
	return layout
}

type Mesh struct {
	Name     string
	Topology gpu.Topology
	Vertices []Vertex
	Indices  []uint32
	// Joints and Weights are either empty or parallel to Vertices.
	Joints  []Joints
	Weights []Weights
}

func (m *Mesh) Skinned() bool {
	return len(m.Joints) > 0
}

// Validate checks that every index refers to a vertex and that skinning data,
// when present, covers every vertex.
func (m *Mesh) Validate() error {
	if len(m.Vertices) == 0 {
		return errors.Newf("mesh %q has no vertices", m.Name)
	}
	if len(m.Indices) == 0 {
		return errors.Newf("mesh %q has no indices", m.Name)
	}
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			return errors.Newf("mesh %q: index %d refers to vertex %d of %d", m.Name, i, idx, len(m.Vertices))
		}
	}
	if len(m.Joints) != len(m.Weights) {
		return errors.Newf("mesh %q: %d joint entries but %d weight entries", m.Name, len(m.Joints), len(m.Weights))
	}
	if m.Skinned() && len(m.Joints) != len(m.Vertices) {
		return errors.Newf("mesh %q: skinning covers %d of %d vertices", m.Name, len(m.Joints), len(m.Vertices))
	}
	return nil
}

func encode(data any) []byte {
	buf := &bytes.Buffer{}
	// Only fixed-size values are encoded here, so Write cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, data)
	return buf.Bytes()
}

func (m *Mesh) VertexBytes() []byte { return encode(m.Vertices) }
func (m *Mesh) IndexBytes() []byte  { return encode(m.Indices) }
func (m *Mesh) JointBytes() []byte  { return encode(m.Joints) }
func (m *Mesh) WeightBytes() []byte { return encode(m.Weights) }

// Rigid binds every vertex fully to one joint.
func (m *Mesh) Rigid(joint uint16) {
	m.Joints = make([]Joints, len(m.Vertices))
	m.Weights = make([]Weights, len(m.Vertices))
	for i := range m.Vertices {
		m.Joints[i] = Joints{joint}
		m.Weights[i] = Weights{1}
	}
}

var cubeFaces = []struct {
	normal, u, v mgl32.Vec3
	color        mgl32.Vec3
}{
	{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}},
	{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 1, 0}},
	{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}},
	{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 1, 0}},
	{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 1}},
	{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 1}},
}

// Cube is a unit cube centered on the origin with one color per face.
// Triangles wind counter-clockwise seen from outside.
func Cube() *Mesh {
	m := &Mesh{Name: "cube", Topology: gpu.TopologyTriangleList}
	corners := []mgl32.Vec2{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	for _, f := range cubeFaces {
		base := uint32(len(m.Vertices))
		for _, c := range corners {
			pos := f.normal.Add(f.u.Mul(c[0])).Add(f.v.Mul(c[1])).Mul(0.5)
			m.Vertices = append(m.Vertices, Vertex{
				Position: pos,
				Color:    f.color,
				UV:       mgl32.Vec2{(c[0] + 1) / 2, (1 - c[1]) / 2},
			})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base+2, base+3, base)
	}
	return m
}

// Grid is a square line grid on the XZ plane with n cells on each side of the
// origin, step units apart.
func Grid(n int, step float32) *Mesh {
	m := &Mesh{Name: "grid", Topology: gpu.TopologyLineList}
	extent := float32(n) * step
	color := mgl32.Vec3{0.5, 0.5, 0.5}
	line := func(a, b mgl32.Vec3) {
		base := uint32(len(m.Vertices))
		m.Vertices = append(m.Vertices, Vertex{Position: a, Color: color}, Vertex{Position: b, Color: color})
		m.Indices = append(m.Indices, base, base+1)
	}
	for i := -n; i <= n; i++ {
		o := float32(i) * step
		line(mgl32.Vec3{o, 0, -extent}, mgl32.Vec3{o, 0, extent})
		line(mgl32.Vec3{-extent, 0, o}, mgl32.Vec3{extent, 0, o})
	}
	return m
}
