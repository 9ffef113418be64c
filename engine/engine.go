package engine

import (
	"fmt"
	"log/slog"
	"sync"

	flux "github.com/Carmen-Shannon/flux-go"
	"github.com/Carmen-Shannon/flux-go/engine/device"
	"github.com/Carmen-Shannon/flux-go/engine/frame"
	"github.com/Carmen-Shannon/flux-go/engine/loader"
	"github.com/Carmen-Shannon/flux-go/engine/profiler"
	"github.com/Carmen-Shannon/flux-go/engine/rendergraph"
	"github.com/Carmen-Shannon/flux-go/engine/resource"
	"github.com/Carmen-Shannon/flux-go/engine/shader"
	"github.com/Carmen-Shannon/flux-go/engine/window"
	vk "github.com/goki/vulkan"
)

// Context bundles the initialized subsystems an application draws with.
type Context struct {
	// Device is the logical device and its queues.
	Device device.Device
	// Allocator creates and frees GPU memory for images and buffers.
	Allocator *device.Allocator
	// Commands is the synchronous transfer surface for uploads and layout
	// transitions.
	Commands resource.Commands
	// Graph is the render graph. The application builds it during Initialize
	// and rebuilds it whenever SurfaceState reports a recreated swapchain.
	Graph *rendergraph.RenderGraph
	// Frames paces the per-frame acquire/submit/present cycle.
	Frames *frame.Frames
	// Shaders caches compiled SPIR-V modules by path.
	Shaders shader.Cache
	// Loader decodes and caches texture files.
	Loader loader.Loader
	// Window is the presentation window.
	Window window.Window
}

// App is the application callback boundary. Initialize runs once after the
// device is ready; Render runs once per frame inside command-buffer
// recording. When the state reports a recreated swapchain, Render must
// rebuild the graph against ctx.Frames.Images() and recreate its pipelines
// before drawing.
type App interface {
	// Initialize prepares application resources: graph declaration, shader
	// loading, geometry and texture uploads, pipelines.
	//
	// Parameters:
	//   - ctx: the initialized engine subsystems
	//
	// Returns:
	//   - error: error to abort startup
	Initialize(ctx *Context) error

	// Render records one frame's commands.
	//
	// Parameters:
	//   - cmd: the frame's command buffer, already in the recording state
	//   - state: the surface extent, image index and rebuild flag
	//   - ctx: the engine subsystems
	//
	// Returns:
	//   - error: error to abort the frame loop
	Render(cmd vk.CommandBuffer, state frame.SurfaceState, ctx *Context) error

	// Shutdown releases application resources. It runs after the device has
	// gone idle, so GPU objects can be destroyed unconditionally.
	//
	// Parameters:
	//   - ctx: the engine subsystems
	Shutdown(ctx *Context)
}

// Engine owns the window, device and frame loop and drives an App.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Context returns the engine's subsystem bundle.
	//
	// Returns:
	//   - *Context: the subsystems handed to the App
	Context() *Context

	// Run initializes the application and blocks in the frame loop until the
	// window closes or a fatal error occurs, then tears everything down in
	// reverse dependency order.
	//
	// Parameters:
	//   - app: the application callbacks
	//
	// Returns:
	//   - error: the first fatal error, or nil on a clean shutdown
	Run(app App) error

	// Quit asks the frame loop to stop after the current frame.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// engine implements the Engine interface. A single OS-locked thread drives
// event polling and the acquire/record/submit/present cycle.
type engine struct {
	ctx *Context

	windowOptions []window.WindowBuilderOption
	deviceOptions []device.DeviceBuilderOption
	frameOptions  []frame.BuilderOption

	commandPool *device.CommandPool
	profiler    *profiler.Profiler

	quitOnce sync.Once
	quit     bool

	frameErr error
}

var _ Engine = &engine{}

// NewEngine creates the window, device and every subsystem the App draws
// with. The window doubles as the device's surface provider.
//
// Parameters:
//   - options: functional options for window and device configuration
//
// Returns:
//   - Engine: the ready engine
//   - error: error if any subsystem fails to initialize
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{}
	for _, opt := range options {
		opt(e)
	}

	win, err := window.NewWindow(e.windowOptions...)
	if err != nil {
		return nil, err
	}
	dev, err := device.NewDevice(win, e.deviceOptions...)
	if err != nil {
		win.Close()
		return nil, err
	}
	allocator := device.NewAllocator(dev)
	commandPool, err := device.NewCommandPool(dev)
	if err != nil {
		dev.Destroy()
		win.Close()
		return nil, err
	}
	frames, err := frame.New(dev, uint32(win.Width()), uint32(win.Height()), e.frameOptions...)
	if err != nil {
		commandPool.Destroy()
		dev.Destroy()
		win.Close()
		return nil, err
	}

	e.commandPool = commandPool
	e.ctx = &Context{
		Device:    dev,
		Allocator: allocator,
		Commands:  resource.NewCommands(dev, commandPool),
		Graph:     rendergraph.New(dev, allocator),
		Frames:    frames,
		Shaders:   shader.NewCache(dev),
		Loader:    loader.NewLoader(),
		Window:    win,
	}
	flux.Logger().Info("engine initialized",
		slog.Int("width", win.Width()),
		slog.Int("height", win.Height()))
	return e, nil
}

func (e *engine) Window() window.Window {
	return e.ctx.Window
}

func (e *engine) Context() *Context {
	return e.ctx
}

func (e *engine) Run(app App) error {
	if err := app.Initialize(e.ctx); err != nil {
		e.teardown(nil)
		return fmt.Errorf("application initialization failed: %w", err)
	}

	win := e.ctx.Window
	win.SetUpdateCallback(func() {
		if e.quit {
			win.Close()
			return
		}
		width, height := uint32(win.Width()), uint32(win.Height())
		// A minimized window has a zero-area framebuffer; there is nothing
		// to present until it comes back.
		if width == 0 || height == 0 {
			return
		}
		err := e.ctx.Frames.Render(width, height, func(cmd vk.CommandBuffer, state frame.SurfaceState) error {
			return app.Render(cmd, state, e.ctx)
		})
		if err != nil {
			e.frameErr = err
			flux.Logger().Error("frame failed", slog.String("error", err.Error()))
			e.Quit()
			return
		}
		if e.profiler != nil {
			e.profiler.Tick()
		}
	})
	win.ProcessMessages()

	e.teardown(app)
	return e.frameErr
}

func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		e.quit = true
	})
}

// teardown stops accepting frames, waits for the device to go idle, then
// destroys resources top-down in reverse dependency order.
func (e *engine) teardown(app App) {
	ctx := e.ctx
	if err := ctx.Device.WaitIdle(); err != nil {
		flux.Logger().Error("device idle wait failed during teardown", slog.String("error", err.Error()))
	}
	if app != nil {
		app.Shutdown(ctx)
	}
	ctx.Graph.Destroy()
	ctx.Shaders.Destroy()
	ctx.Frames.Destroy()
	e.commandPool.Destroy()
	if live := ctx.Allocator.LiveAllocations(); live > 0 {
		flux.Logger().Warn("allocations still live at teardown", slog.Int("count", live))
	}
	ctx.Device.Destroy()
	ctx.Window.Close()
}
