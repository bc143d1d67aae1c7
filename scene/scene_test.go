package scene

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/tutorial-engine/mesh"
)

type fakeBackend struct {
	uploads   []string
	frames    []*Frame
	sizes     [][2]int
	cleanups  int
	uploadErr error
}

func (b *fakeBackend) UploadMesh(m *mesh.Mesh) (MeshID, error) {
	if b.uploadErr != nil {
		return 0, b.uploadErr
	}
	b.uploads = append(b.uploads, m.Name)
	return MeshID(len(b.uploads) - 1), nil
}

func (b *fakeBackend) Draw(f *Frame) error {
	b.frames = append(b.frames, f)
	return nil
}

func (b *fakeBackend) Resize(width, height int) { b.sizes = append(b.sizes, [2]int{width, height}) }
func (b *fakeBackend) Cleanup()                 { b.cleanups++ }

// near compares component-wise with an absolute tolerance.
func near(a, b mgl32.Vec3) bool {
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > 1e-5 {
			return false
		}
	}
	return true
}

func TestAddMeshAndRender(t *testing.T) {
	b := &fakeBackend{}
	s := New(b, 800, 600)

	cube, err := s.AddMesh(mesh.Cube(), mgl32.Translate3D(-1, 0, 0), mgl32.Translate3D(1, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddMesh(mesh.Grid(4, 1)); err != nil {
		t.Fatal(err)
	}
	if cube.Mesh != 0 || len(b.uploads) != 2 {
		t.Fatalf("uploads = %v", b.uploads)
	}

	if err := s.Render(); err != nil {
		t.Fatal(err)
	}
	f := b.frames[0]
	if len(f.Draws) != 2 {
		t.Fatalf("draws = %d", len(f.Draws))
	}
	if len(f.Draws[0].Instances) != 2 || len(f.Draws[1].Instances) != 1 {
		t.Fatalf("instances = %d, %d", len(f.Draws[0].Instances), len(f.Draws[1].Instances))
	}
	if !f.Draws[0].Instances[1].ApproxEqual(mgl32.Translate3D(1, 0, 0)) {
		t.Fatalf("unspun instance moved: %v", f.Draws[0].Instances[1])
	}
	if len(f.Joints) != jointCount {
		t.Fatalf("joints = %d", len(f.Joints))
	}
}

func TestAddMeshRejectsInvalid(t *testing.T) {
	b := &fakeBackend{}
	s := New(b, 800, 600)

	bad := mesh.Cube()
	bad.Indices = append(bad.Indices, 999)
	if _, err := s.AddMesh(bad); err == nil {
		t.Fatal("invalid mesh accepted")
	}
	if len(b.uploads) != 0 {
		t.Fatal("invalid mesh reached the backend")
	}

	b.uploadErr = errors.New("out of memory")
	if _, err := s.AddMesh(mesh.Cube()); err == nil {
		t.Fatal("upload error swallowed")
	}
	if len(s.Objects()) != 0 {
		t.Fatal("failed upload left an object")
	}
}

func TestTickSpinsObjects(t *testing.T) {
	s := New(&fakeBackend{}, 800, 600)
	obj, err := s.AddMesh(mesh.Cube())
	if err != nil {
		t.Fatal(err)
	}
	obj.Spin = mgl32.DegToRad(90)

	s.Tick(1)
	got := s.Frame().Draws[0].Instances[0].Mul4x1(mgl32.Vec4{1, 0, 0, 1}).Vec3()
	if !near(got, mgl32.Vec3{0, 0, -1}) {
		t.Fatalf("after a quarter turn x maps to %v", got)
	}
}

func TestInputMovesCamera(t *testing.T) {
	s := New(&fakeBackend{}, 800, 600)
	s.Camera.Position = mgl32.Vec3{}
	s.Camera.Pitch = 0

	s.HandleInput(Input{Forward: 1})
	s.Tick(0.5)
	s.Tick(0.5)
	if want := (mgl32.Vec3{0, 0, -s.Speed}); !near(s.Camera.Position, want) {
		t.Fatalf("position = %v, want %v", s.Camera.Position, want)
	}

	s.HandleInput(Input{})
	s.Tick(1)
	if !near(s.Camera.Position, mgl32.Vec3{0, 0, -s.Speed}) {
		t.Fatal("camera kept moving after the keys were released")
	}
}

func TestCameraTurnClampsPitch(t *testing.T) {
	c := DefaultCamera()
	c.Turn(-30, 500)
	if c.Pitch != maxPitch {
		t.Fatalf("pitch = %v", c.Pitch)
	}
	if c.Yaw != 330 {
		t.Fatalf("yaw = %v, want wrapped to 330", c.Yaw)
	}
	c.Turn(0, -1000)
	if c.Pitch != -maxPitch {
		t.Fatalf("pitch = %v", c.Pitch)
	}
}

func TestCameraForward(t *testing.T) {
	cases := []struct {
		yaw, pitch float32
		want       mgl32.Vec3
	}{
		{0, 0, mgl32.Vec3{0, 0, -1}},
		{90, 0, mgl32.Vec3{1, 0, 0}},
		{180, 0, mgl32.Vec3{0, 0, 1}},
		{0, 45, mgl32.Vec3{0, float32(math.Sqrt2 / 2), float32(-math.Sqrt2 / 2)}},
	}
	for _, c := range cases {
		cam := Camera{Yaw: c.yaw, Pitch: c.pitch}
		if got := cam.Forward(); !near(got, c.want) {
			t.Errorf("yaw %v pitch %v: forward = %v, want %v", c.yaw, c.pitch, got, c.want)
		}
	}
	cam := Camera{Yaw: 90}
	if got := cam.Right(); !near(got, mgl32.Vec3{0, 0, 1}) {
		t.Errorf("right at yaw 90 = %v", got)
	}
}

func TestSetSizeForwardsAndChangesAspect(t *testing.T) {
	b := &fakeBackend{}
	s := New(b, 800, 600)
	before := s.Frame().Projection

	s.SetSize(1200, 600)
	if len(b.sizes) != 1 || b.sizes[0] != [2]int{1200, 600} {
		t.Fatalf("resize calls = %v", b.sizes)
	}
	if s.Frame().Projection.ApproxEqual(before) {
		t.Fatal("projection ignores the new aspect ratio")
	}

	// A minimized window reports zero height.
	s.SetSize(0, 0)
	_ = s.Frame()
}

func TestJointsAnimate(t *testing.T) {
	s := New(&fakeBackend{}, 800, 600)
	s.Tick(0.5)
	f := s.Frame()
	if !f.Joints[0].ApproxEqual(mgl32.Ident4()) {
		t.Fatal("root joint moved")
	}
	if f.Joints[1].ApproxEqual(mgl32.Ident4()) {
		t.Fatal("second joint did not animate")
	}
}

func TestClose(t *testing.T) {
	b := &fakeBackend{}
	s := New(b, 800, 600)
	s.Close()
	if b.cleanups != 1 {
		t.Fatalf("cleanups = %d", b.cleanups)
	}
}

func TestClock(t *testing.T) {
	var c Clock
	if dt := c.Tick(); dt != 0 {
		t.Fatalf("first tick = %v", dt)
	}
	if dt := c.Tick(); dt < 0 {
		t.Fatalf("negative delta %v", dt)
	}
}
