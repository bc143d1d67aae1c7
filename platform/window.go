// Package platform owns the SDL window and turns its events into scene input.
package platform

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/vkngwrapper/tutorial-engine/config"
	"github.com/vkngwrapper/tutorial-engine/gpu"
	"github.com/vkngwrapper/tutorial-engine/scene"
)

// Window is a resizable Vulkan-capable SDL window. SDL must be driven from
// the main OS thread.
type Window struct {
	handle  *sdl.Window
	pending []sdl.Event

	dragging      bool
	dragX, dragY  int32
	width, height int
}

// Events is what happened since the previous Poll.
type Events struct {
	Quit    bool
	Resized bool
	Width   int
	Height  int
	Input   scene.Input
}

func Open(cfg config.Window) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl")
	}

	handle, err := sdl.CreateWindow(cfg.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Width), int32(cfg.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}

	w := &Window{handle: handle}
	size := w.DrawableSize()
	w.width, w.height = size.Width, size.Height
	return w, nil
}

func (w *Window) SDL() *sdl.Window { return w.handle }

func (w *Window) DrawableSize() gpu.Extent {
	width, height := w.handle.VulkanGetDrawableSize()
	return gpu.Extent{Width: int(width), Height: int(height)}
}

// WaitEvents blocks until SDL has an event. The event is kept for the next
// Poll.
func (w *Window) WaitEvents() {
	if event := sdl.WaitEvent(); event != nil {
		w.pending = append(w.pending, event)
	}
}

func (w *Window) Poll() Events {
	var out Events
	events := w.pending
	w.pending = nil
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		events = append(events, event)
	}

	for _, event := range events {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			out.Quit = true
		case *sdl.KeyboardEvent:
			if e.Type == sdl.KEYDOWN && e.Keysym.Scancode == sdl.SCANCODE_ESCAPE {
				out.Quit = true
			}
		case *sdl.WindowEvent:
			if e.Event == sdl.WINDOWEVENT_SIZE_CHANGED || e.Event == sdl.WINDOWEVENT_RESTORED {
				out.Resized = true
			}
		case *sdl.MouseButtonEvent:
			if e.Button == sdl.BUTTON_LEFT {
				w.dragging = e.State == sdl.PRESSED
			}
		case *sdl.MouseMotionEvent:
			if w.dragging {
				w.dragX += e.XRel
				w.dragY += e.YRel
			}
		}
	}

	keys := sdl.GetKeyboardState()
	pressed := func(code sdl.Scancode) bool { return int(code) < len(keys) && keys[code] != 0 }
	out.Input = translate(pressed, w.dragX, w.dragY)
	w.dragX, w.dragY = 0, 0

	size := w.DrawableSize()
	if size.Width != w.width || size.Height != w.height {
		out.Resized = true
		w.width, w.height = size.Width, size.Height
	}
	out.Width, out.Height = w.width, w.height
	return out
}

func (w *Window) Close() {
	if w.handle == nil {
		return
	}
	_ = w.handle.Destroy()
	w.handle = nil
	sdl.Quit()
}
