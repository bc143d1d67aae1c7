package platform

import (
	"github.com/veandco/go-sdl2/sdl"

	"github.com/vkngwrapper/tutorial-engine/scene"
)

const (
	// degrees per frame while an arrow key is held
	keyTurnRate = 1.5
	// degrees per pixel of mouse drag
	mouseTurnRate = 0.2
)

func axis(pressed func(sdl.Scancode) bool, negative, positive sdl.Scancode) float32 {
	var v float32
	if pressed(positive) {
		v++
	}
	if pressed(negative) {
		v--
	}
	return v
}

// translate turns held keys and a mouse drag into scene input. WASD moves,
// Q and E move down and up, arrows and a left-button drag turn the camera.
func translate(pressed func(sdl.Scancode) bool, dragX, dragY int32) scene.Input {
	return scene.Input{
		Forward:    axis(pressed, sdl.SCANCODE_S, sdl.SCANCODE_W),
		Right:      axis(pressed, sdl.SCANCODE_A, sdl.SCANCODE_D),
		Up:         axis(pressed, sdl.SCANCODE_Q, sdl.SCANCODE_E),
		DeltaYaw:   axis(pressed, sdl.SCANCODE_LEFT, sdl.SCANCODE_RIGHT)*keyTurnRate + float32(dragX)*mouseTurnRate,
		DeltaPitch: axis(pressed, sdl.SCANCODE_DOWN, sdl.SCANCODE_UP)*keyTurnRate - float32(dragY)*mouseTurnRate,
	}
}
