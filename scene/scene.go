// Package scene holds the simulation shared by every rendering backend:
// camera, objects, the joint palette for skinned meshes, and the per-frame
// draw list handed to the backend.
package scene

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"

	"github.com/vkngwrapper/tutorial-engine/mesh"
)

// MeshID names a mesh uploaded to a backend.
type MeshID int

// Draw is every instance of one mesh in a frame.
type Draw struct {
	Mesh      MeshID
	Instances []mgl32.Mat4
}

// Frame is what a backend needs to render one frame. Projection follows the
// GL clip convention; backends correct it for their own.
type Frame struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
	Eye        mgl32.Vec3
	Draws      []Draw
	Joints     []mgl32.Mat4
	Time       float32
}

// Backend is a rendering API. The scene never looks past this interface.
type Backend interface {
	UploadMesh(m *mesh.Mesh) (MeshID, error)
	Draw(f *Frame) error
	// Resize tells the backend the window's drawable size changed.
	Resize(width, height int)
	// Cleanup releases every backend resource. Calling it twice is a no-op.
	Cleanup()
}

// Input is one batch of translated window input.
type Input struct {
	// Held movement axes in [-1, 1].
	Forward, Right, Up float32
	// Camera rotation in degrees, applied once.
	DeltaYaw, DeltaPitch float32
}

type Object struct {
	Mesh      MeshID
	Instances []mgl32.Mat4
	// Spin is the rotation speed around Y in radians per second.
	Spin  float32
	angle float32
}

const jointCount = 2

type Scene struct {
	Camera Camera
	// Speed is camera movement in units per second.
	Speed float32

	backend Backend
	objects []*Object
	joints  []mgl32.Mat4
	move    mgl32.Vec3
	width   int
	height  int
	elapsed float32
}

func New(backend Backend, width, height int) *Scene {
	s := &Scene{
		Camera:  DefaultCamera(),
		Speed:   2,
		backend: backend,
		joints:  make([]mgl32.Mat4, jointCount),
		width:   width,
		height:  height,
	}
	for i := range s.joints {
		s.joints[i] = mgl32.Ident4()
	}
	return s
}

// AddMesh uploads m and places one instance per transform.
func (s *Scene) AddMesh(m *mesh.Mesh, instances ...mgl32.Mat4) (*Object, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		instances = []mgl32.Mat4{mgl32.Ident4()}
	}
	id, err := s.backend.UploadMesh(m)
	if err != nil {
		return nil, errors.Wrapf(err, "scene: upload %s", m.Name)
	}
	obj := &Object{Mesh: id, Instances: instances}
	s.objects = append(s.objects, obj)
	return obj, nil
}

func (s *Scene) Objects() []*Object { return s.objects }

// HandleInput applies turning at once and keeps the movement axes until the
// next input.
func (s *Scene) HandleInput(in Input) {
	s.move = mgl32.Vec3{in.Right, in.Up, in.Forward}
	s.Camera.Turn(in.DeltaYaw, in.DeltaPitch)
}

// SetSize records the new drawable size and forwards it to the backend.
func (s *Scene) SetSize(width, height int) {
	s.width, s.height = width, height
	s.backend.Resize(width, height)
}

// Tick advances the simulation by dt seconds.
func (s *Scene) Tick(dt float32) {
	s.elapsed += dt
	step := s.Speed * dt
	c := &s.Camera
	c.Position = c.Position.
		Add(c.Forward().Mul(s.move[2] * step)).
		Add(c.Right().Mul(s.move[0] * step)).
		Add(mgl32.Vec3{0, s.move[1] * step, 0})

	for _, obj := range s.objects {
		obj.angle = float32(math.Mod(float64(obj.angle+obj.Spin*dt), 2*math.Pi))
	}
	s.joints[1] = mgl32.HomogRotate3DZ(0.4 * float32(math.Sin(float64(s.elapsed)*2)))
}

// Frame builds the draw list for the current state.
func (s *Scene) Frame() *Frame {
	aspect := float32(1)
	if s.height > 0 {
		aspect = float32(s.width) / float32(s.height)
	}
	f := &Frame{
		View:       s.Camera.View(),
		Projection: s.Camera.Projection(aspect),
		Eye:        s.Camera.Position,
		Joints:     s.joints,
		Time:       s.elapsed,
	}
	for _, obj := range s.objects {
		spin := mgl32.HomogRotate3DY(obj.angle)
		instances := make([]mgl32.Mat4, len(obj.Instances))
		for i, m := range obj.Instances {
			instances[i] = m.Mul4(spin)
		}
		f.Draws = append(f.Draws, Draw{Mesh: obj.Mesh, Instances: instances})
	}
	return f
}

// Render hands the current frame to the backend.
func (s *Scene) Render() error {
	return s.backend.Draw(s.Frame())
}

// Close releases the backend.
func (s *Scene) Close() {
	s.backend.Cleanup()
}

// Clock measures frame deltas with the high resolution timer.
type Clock struct {
	last    time.Duration
	started bool
}

// Tick returns the seconds since the previous call, zero on the first.
func (c *Clock) Tick() float32 {
	now := hrtime.Now()
	if !c.started {
		c.started = true
		c.last = now
		return 0
	}
	dt := now - c.last
	c.last = now
	return float32(dt.Seconds())
}
