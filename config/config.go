// Package config holds the viewer's settings. Defaults come from Default;
// the command line overrides them field by field.
package config

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

type Window struct {
	Title  string
	Width  int
	Height int
}

type Vulkan struct {
	// Validation enables the Khronos validation layer and routes its
	// messages into the log.
	Validation     bool
	FramesInFlight int
	// PresentMode is one of fifo, mailbox or immediate. Unsupported modes
	// fall back to fifo.
	PresentMode string
	// WideLines asks for the wide-lines device feature; LineWidth is only
	// applied when the device grants it.
	WideLines bool
	LineWidth float32
}

type Assets struct {
	// Root is the directory every other path is relative to.
	Root string

	MeshVertexShader    string
	MeshFragmentShader  string
	SkinnedVertexShader string
	LineVertexShader    string
	LineFragmentShader  string

	// Texture is optional; a plain white texture is used without it.
	Texture string
	// Model is an optional OBJ file; the built-in cube is shown without it.
	Model    string
	Material string
}

type Config struct {
	Window Window
	Vulkan Vulkan
	Assets Assets
}

func Default() Config {
	return Config{
		Window: Window{
			Title:  "Vulkan",
			Width:  800,
			Height: 600,
		},
		Vulkan: Vulkan{
			Validation:     false,
			FramesInFlight: 1,
			PresentMode:    "fifo",
			WideLines:      false,
			LineWidth:      1,
		},
		Assets: Assets{
			Root:                "assets",
			MeshVertexShader:    "shaders/mesh.vert.spv",
			MeshFragmentShader:  "shaders/mesh.frag.spv",
			SkinnedVertexShader: "shaders/skinned.vert.spv",
			LineVertexShader:    "shaders/line.vert.spv",
			LineFragmentShader:  "shaders/line.frag.spv",
		},
	}
}

var presentModes = map[string]gpu.PresentMode{
	"fifo":      gpu.PresentModeFIFO,
	"mailbox":   gpu.PresentModeMailbox,
	"immediate": gpu.PresentModeImmediate,
}

// ParsePresentMode maps a present mode name to its value.
func ParsePresentMode(name string) (gpu.PresentMode, error) {
	mode, ok := presentModes[strings.ToLower(name)]
	if !ok {
		return gpu.PresentModeFIFO, errors.Newf("unknown present mode %q", name)
	}
	return mode, nil
}

// Mode returns the configured present mode, fifo if it does not parse.
func (v Vulkan) Mode() gpu.PresentMode {
	mode, _ := ParsePresentMode(v.PresentMode)
	return mode
}

func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("config: window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Vulkan.FramesInFlight < 1 {
		return errors.Newf("config: frames in flight %d, need at least 1", c.Vulkan.FramesInFlight)
	}
	if _, err := ParsePresentMode(c.Vulkan.PresentMode); err != nil {
		return errors.Wrap(err, "config")
	}
	if c.Vulkan.LineWidth <= 0 {
		return errors.Newf("config: line width %v", c.Vulkan.LineWidth)
	}
	shaders := map[string]string{
		"mesh vertex shader":    c.Assets.MeshVertexShader,
		"mesh fragment shader":  c.Assets.MeshFragmentShader,
		"skinned vertex shader": c.Assets.SkinnedVertexShader,
		"line vertex shader":    c.Assets.LineVertexShader,
		"line fragment shader":  c.Assets.LineFragmentShader,
	}
	for name, path := range shaders {
		if path == "" {
			return errors.Newf("config: no %s", name)
		}
	}
	if c.Assets.Material != "" && c.Assets.Model == "" {
		return errors.New("config: material given without a model")
	}
	return nil
}
