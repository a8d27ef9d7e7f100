package main

import (
	"flag"
	"os"
	"runtime"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/xlab/closer"
	"golang.org/x/exp/slog"

	"vkframe/models"
	"vkframe/renderer"
	"vkframe/shaders"
	"vkframe/vkbackend"
)

func init() {
	// This is needed to arrange that main() runs on main thread.
	// See documentation for functions that are only allowed to be called
	// from the main thread.
	runtime.LockOSThread()

	flag.BoolVar(&args.debug, "debug", false, "Enable Vulkan validation layers and debug logging")
	flag.IntVar(&args.frames, "frames", 0, "Exit after rendering this many frames. Zero renders until the window is closed")
	flag.IntVar(&args.width, "width", 1024, "Initial window width")
	flag.IntVar(&args.height, "height", 768, "Initial window height")
	flag.StringVar(&args.shaders, "shaders", "shaders", "Directory with the compiled SPIR-V shaders")
	flag.StringVar(&args.model, "model", "", "Wavefront OBJ model to draw. The built-in cube is used when empty")
	flag.BoolVar(&args.wireframe, "wireframe", false, "Draw the model as wireframe")
	flag.BoolVar(&args.tessellation, "tessellation", false, "Run the mesh through the tessellation stages")
	flag.BoolVar(&args.hud, "hud", true, "Draw the frame time bar")
}

var args struct {
	debug        bool
	frames       int
	width        int
	height       int
	shaders      string
	model        string
	wireframe    bool
	tessellation bool
	hud          bool
}

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if args.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	renderer.SetLogger(logger)
	vkbackend.SetLogger(logger)

	app := &app{
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
		logger:   logger,
	}

	// Interrupts arrive on another goroutine. The loop on the main thread
	// notices the stop request and tears everything down before the process
	// exits.
	closer.Bind(app.requestStop)

	if err := app.run(); err != nil {
		logger.Error("vkframe failed", "err", err)
		close(app.finished)
		closer.Exit(1)
	}

	close(app.finished)
	closer.Close()
}

type app struct {
	logger *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	finished chan struct{}

	window   *glfw.Window
	backend  *vkbackend.Backend
	renderer *renderer.Renderer
}

func (a *app) requestStop() {
	a.stopOnce.Do(func() { close(a.stop) })
	<-a.finished
}

func (a *app) stopped() bool {
	select {
	case <-a.stop:
		return true
	default:
		return false
	}
}

func (a *app) run() error {
	if err := a.initWindow(); err != nil {
		return err
	}
	defer a.cleanupWindow()

	if err := vkbackend.Init(); err != nil {
		return err
	}
	a.backend = vkbackend.New()

	mesh, err := loadMesh()
	if err != nil {
		return err
	}

	cfg := renderer.DefaultConfig()
	cfg.Validation = args.debug
	cfg.Tessellation = args.tessellation
	cfg.Namer = a.backend

	scene := newSpinningScene(args.tessellation)
	r, err := renderer.New(a.backend, a.window, shaders.Dir(args.shaders), mesh.Geometry(), scene, cfg)
	if err != nil {
		return errors.Wrap(err, "creating renderer")
	}
	a.renderer = r
	r.SetWireframe(args.wireframe)

	var hud *frameTimeBar
	if args.hud {
		hud = newFrameTimeBar()
		r.SetOverlay(hud)
	}

	a.window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		r.HandleResize()
	})

	loopErr := a.mainLoop(hud)
	if err := a.shutdown(); err != nil && loopErr == nil {
		loopErr = err
	}
	return loopErr
}

func (a *app) initWindow() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "glfw.Init")
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	window, err := glfw.CreateWindow(args.width, args.height, "vkframe", nil, nil)
	if err != nil {
		glfw.Terminate()
		return errors.Wrap(err, "creating window")
	}
	a.window = window

	return nil
}

func (a *app) cleanupWindow() {
	if a.window != nil {
		a.window.Destroy()
	}
	glfw.Terminate()
}

func (a *app) mainLoop(hud *frameTimeBar) error {
	rendered := 0
	for !a.window.ShouldClose() && !a.stopped() {
		glfw.PollEvents()

		if err := a.renderer.RenderOneFrame(); err != nil {
			return errors.Wrapf(err, "frame %d", rendered)
		}
		if hud != nil {
			hud.tick()
		}

		rendered++
		if args.frames > 0 && rendered >= args.frames {
			break
		}
	}

	a.logger.Info("render loop finished",
		slog.Int("frames", rendered),
		slog.Uint64("presented", a.renderer.Driver().Rendered()),
		slog.Uint64("skipped", a.renderer.Driver().Skipped()),
	)
	return nil
}

func (a *app) shutdown() error {
	err := a.renderer.Shutdown()

	for kind, count := range a.backend.Live() {
		if count > 0 {
			a.logger.Warn("vulkan objects left after shutdown",
				slog.String("kind", kind.String()),
				slog.Int("count", count),
			)
		}
	}
	return err
}

func loadMesh() (*models.Mesh, error) {
	if args.model == "" {
		return models.Cube()
	}
	return models.Load(args.model)
}
