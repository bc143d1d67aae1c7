package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a yaw/pitch fly camera. Angles are in degrees; yaw 0 looks down
// -Z.
type Camera struct {
	Position mgl32.Vec3
	Yaw      float32
	Pitch    float32
	FOV      float32
	Near     float32
	Far      float32
}

func DefaultCamera() Camera {
	return Camera{
		Position: mgl32.Vec3{0, 1.5, 4},
		Pitch:    -15,
		FOV:      45,
		Near:     0.1,
		Far:      100,
	}
}

const maxPitch = 89

func (c *Camera) Turn(yaw, pitch float32) {
	c.Yaw += yaw
	for c.Yaw >= 360 {
		c.Yaw -= 360
	}
	for c.Yaw < 0 {
		c.Yaw += 360
	}
	c.Pitch = mgl32.Clamp(c.Pitch+pitch, -maxPitch, maxPitch)
}

func (c *Camera) Forward() mgl32.Vec3 {
	yaw := float64(mgl32.DegToRad(c.Yaw))
	pitch := float64(mgl32.DegToRad(c.Pitch))
	return mgl32.Vec3{
		float32(math.Sin(yaw) * math.Cos(pitch)),
		float32(math.Sin(pitch)),
		float32(-math.Cos(yaw) * math.Cos(pitch)),
	}.Normalize()
}

func (c *Camera) Right() mgl32.Vec3 {
	return c.Forward().Cross(mgl32.Vec3{0, 1, 0}).Normalize()
}

func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Position.Add(c.Forward()), mgl32.Vec3{0, 1, 0})
}

// Projection is a GL-convention perspective projection.
func (c *Camera) Projection(aspect float32) mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.FOV), aspect, c.Near, c.Far)
}
