// Command viewer renders a model, a skinned copy of it and a ground grid
// with a free-flying camera.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/xlab/closer"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/tutorial-engine/config"
	"github.com/vkngwrapper/tutorial-engine/gpu/vkng"
	"github.com/vkngwrapper/tutorial-engine/logging"
	"github.com/vkngwrapper/tutorial-engine/mesh"
	"github.com/vkngwrapper/tutorial-engine/platform"
	"github.com/vkngwrapper/tutorial-engine/renderer"
	"github.com/vkngwrapper/tutorial-engine/scene"
)

func init() {
	// SDL and the Vulkan surface must stay on the main thread.
	runtime.LockOSThread()
}

func parseFlags() (config.Config, slog.Level, error) {
	cfg := config.Default()
	flag.StringVar(&cfg.Window.Title, "title", cfg.Window.Title, "window title")
	flag.IntVar(&cfg.Window.Width, "width", cfg.Window.Width, "initial window width")
	flag.IntVar(&cfg.Window.Height, "height", cfg.Window.Height, "initial window height")
	flag.BoolVar(&cfg.Vulkan.Validation, "validate", cfg.Vulkan.Validation, "enable the Khronos validation layer")
	flag.IntVar(&cfg.Vulkan.FramesInFlight, "frames", cfg.Vulkan.FramesInFlight, "frames recorded ahead of the GPU")
	flag.StringVar(&cfg.Vulkan.PresentMode, "present", cfg.Vulkan.PresentMode, "present mode: fifo, mailbox or immediate")
	flag.BoolVar(&cfg.Vulkan.WideLines, "wide-lines", cfg.Vulkan.WideLines, "request the wide lines feature")
	lineWidth := flag.Float64("line-width", float64(cfg.Vulkan.LineWidth), "grid line width when wide lines are available")
	flag.StringVar(&cfg.Assets.Root, "assets", cfg.Assets.Root, "asset directory")
	flag.StringVar(&cfg.Assets.Texture, "texture", cfg.Assets.Texture, "texture image, relative to -assets")
	flag.StringVar(&cfg.Assets.Model, "model", cfg.Assets.Model, "OBJ model, relative to -assets")
	flag.StringVar(&cfg.Assets.Material, "material", cfg.Assets.Material, "MTL file for -model")
	levelName := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	cfg.Vulkan.LineWidth = float32(*lineWidth)
	level, err := logging.ParseLevel(*levelName)
	if err != nil {
		return cfg, level, err
	}
	return cfg, level, cfg.Validate()
}

func loadModel(cfg config.Config) (*mesh.Mesh, error) {
	if cfg.Assets.Model == "" {
		return mesh.Cube(), nil
	}
	m, err := mesh.LoadOBJ(os.DirFS(cfg.Assets.Root), cfg.Assets.Model, cfg.Assets.Material)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", filepath.Join(cfg.Assets.Root, cfg.Assets.Model))
	}
	return m, nil
}

func populate(s *scene.Scene, model *mesh.Mesh) error {
	obj, err := s.AddMesh(model, mgl32.Translate3D(-1.5, 0.5, 0), mgl32.Translate3D(1.5, 0.5, 0))
	if err != nil {
		return err
	}
	obj.Spin = 0.5

	skinned := *model
	skinned.Name = model.Name + " (skinned)"
	skinned.Rigid(1)
	swinging, err := s.AddMesh(&skinned, mgl32.Translate3D(0, 0.5, -2))
	if err != nil {
		return err
	}
	swinging.Spin = -0.25

	_, err = s.AddMesh(mesh.Grid(20, 0.5))
	return err
}

func run(cfg config.Config, logger *slog.Logger) error {
	window, err := platform.Open(cfg.Window)
	if err != nil {
		return err
	}
	closer.Bind(window.Close)

	ctx, err := vkng.Bootstrap(window.SDL(), vkng.Options{
		AppName:    cfg.Window.Title,
		Validation: cfg.Vulkan.Validation,
		WideLines:  cfg.Vulkan.WideLines,
	}, logger)
	if err != nil {
		return errors.Wrap(err, "bootstrap vulkan")
	}
	closer.Bind(ctx.Destroy)

	r, err := renderer.New(ctx, window, os.DirFS(cfg.Assets.Root), cfg, logger)
	if err != nil {
		return err
	}

	size := window.DrawableSize()
	s := scene.New(r, size.Width, size.Height)
	closer.Bind(s.Close)

	model, err := loadModel(cfg)
	if err != nil {
		return err
	}
	if err := populate(s, model); err != nil {
		return err
	}

	clock := &scene.Clock{}
	for {
		events := window.Poll()
		if events.Quit {
			return nil
		}
		if events.Resized {
			s.SetSize(events.Width, events.Height)
		}
		s.HandleInput(events.Input)
		s.Tick(clock.Tick())
		if err := s.Render(); err != nil {
			return err
		}
	}
}

func main() {
	defer closer.Close()

	cfg, level, err := parseFlags()
	if err != nil {
		log.Printf("%+v", err)
		flag.Usage()
		closer.Exit(2)
	}
	logger := logging.New(os.Stderr, level)

	if err := run(cfg, logger); err != nil {
		log.Printf("%+v", err)
		closer.Exit(1)
	}
}
