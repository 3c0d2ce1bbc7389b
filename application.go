package raytrace

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/raytrace/accel"
	"github.com/gogpu/raytrace/frame"
	"github.com/gogpu/raytrace/hal"
	"github.com/gogpu/raytrace/scene"
)

// loadedScene is a scene uploaded to the device with the camera its
// generator placed.
type loadedScene struct {
	name   string
	camera scene.CameraInitialState
	scene  *scene.Scene
}

// resizer is implemented by swap chains whose size the application controls.
type resizer interface {
	Resize(width, height uint32)
}

// Statistics summarize the current scene and render progress.
type Statistics struct {
	Scene      string
	RenderMode RenderMode
	Extent     gputypes.Extent3D

	Models    int
	Vertices  int
	Indices   int
	Materials int
	Textures  int

	// Accel is zero in RenderModeRasterized.
	Accel accel.Stats

	Frames       uint64
	TotalSamples uint32
	Rebuilds     int
}

// Application ties a device, a swap chain and a scene registry into a
// renderer. The render mode is fixed at creation.
//
// Application is not safe for concurrent use.
type Application struct {
	device    hal.Device
	swapChain hal.SwapChain
	registry  *scene.Registry
	settings  Settings
	opts      options

	strategy  renderStrategy
	loop      *frame.Loop
	current   *loadedScene
	modelView mgl32.Mat4
}

// NewApplication validates settings, loads settings.Scene from registry and
// creates the frame loop of settings.RenderMode.
func NewApplication(ctx context.Context, device hal.Device, swapChain hal.SwapChain, registry *scene.Registry, settings Settings, opts ...Option) (*Application, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	a := &Application{
		device:    device,
		swapChain: swapChain,
		registry:  registry,
		settings:  settings,
	}
	for _, opt := range opts {
		opt(&a.opts)
	}

	strategy, err := newRenderStrategy(settings.RenderMode, a)
	if err != nil {
		return nil, err
	}
	a.strategy = strategy

	if err := a.loadScene(ctx, settings.Scene); err != nil {
		a.strategy.Destroy()
		return nil, err
	}
	if err := a.createLoop(); err != nil {
		a.unloadScene()
		a.strategy.Destroy()
		return nil, err
	}

	Logger().Info("raytrace: application ready",
		"mode", settings.RenderMode,
		"scene", settings.Scene,
		"device", device.Info().Name)
	return a, nil
}

func (a *Application) createLoop() error {
	loop, err := frame.NewLoop(a.device, a.swapChain, a.strategy, frame.Config{
		UniformSize:  UniformBufferSize,
		Accumulation: a.accumulation(),
	})
	if err != nil {
		return err
	}
	a.loop = loop
	return nil
}

func (a *Application) accumulation() frame.Accumulation {
	return frame.Accumulation{
		Enabled:         a.settings.AccumulateRays && a.settings.RenderMode == RenderModeRayTraced,
		SamplesPerPixel: a.settings.NumberOfSamples,
		MaxSamples:      a.settings.MaxNumberOfSamples,
	}
}

// loadScene runs the generator of name, uploads its scene and hands it to
// the strategy. The scene camera replaces the camera settings.
func (a *Application) loadScene(ctx context.Context, name string) error {
	gen, ok := a.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScene, name)
	}

	var camera scene.CameraInitialState
	models, textures, err := gen(&camera)
	if err != nil {
		return fmt.Errorf("raytrace: scene %q: %w", name, err)
	}
	s, err := scene.Load(a.device, models, textures)
	if err != nil {
		return fmt.Errorf("raytrace: scene %q: %w", name, err)
	}

	loaded := &loadedScene{name: name, camera: camera, scene: s}
	if err := a.strategy.LoadScene(ctx, loaded); err != nil {
		s.Destroy()
		return err
	}
	a.current = loaded
	a.modelView = camera.ModelView
	a.settings.Scene = name
	a.settings.FieldOfView = mgl32.Clamp(camera.FieldOfView, MinFieldOfView, MaxFieldOfView)
	a.settings.Aperture = camera.Aperture
	a.settings.FocusDistance = camera.FocusDistance
	return nil
}

func (a *Application) unloadScene() {
	if a.current == nil {
		return
	}
	a.strategy.UnloadScene()
	a.current.scene.Destroy()
	a.current = nil
}

// LoadScene replaces the current scene. The device is drained and every
// scene- and swap-chain-dependent resource is rebuilt.
func (a *Application) LoadScene(ctx context.Context, name string) error {
	if _, ok := a.registry.Lookup(name); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScene, name)
	}
	if err := a.device.WaitIdle(); err != nil {
		return err
	}
	if a.loop != nil {
		a.loop.Destroy()
		a.loop = nil
	}
	a.unloadScene()

	if err := a.loadScene(ctx, name); err != nil {
		return err
	}
	return a.createLoop()
}

// UpdateSettings applies s. A different scene is loaded, a different size
// resizes the swap chain when the application controls it, and changes that
// invalidate the accumulated samples reset them.
func (a *Application) UpdateSettings(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.RenderMode != a.settings.RenderMode {
		return fmt.Errorf("%w: render mode is fixed at startup", ErrInvalidSettings)
	}
	prev := a.settings
	a.settings = s

	if s.Scene != prev.Scene {
		return a.LoadScene(ctx, s.Scene)
	}
	if a.loop == nil {
		return fmt.Errorf("raytrace: no frame loop")
	}
	if s.Width != prev.Width || s.Height != prev.Height {
		if r, ok := a.swapChain.(resizer); ok {
			r.Resize(s.Width, s.Height)
		}
	}
	acc := a.accumulation()
	a.loop.SetAccumulation(acc.Enabled, acc.SamplesPerPixel, acc.MaxSamples)
	if s.RequireAccumulationReset(&prev) {
		a.loop.ResetAccumulation()
	}
	return nil
}

// SetModelView moves the camera. The accumulated samples are discarded.
func (a *Application) SetModelView(m mgl32.Mat4) {
	a.modelView = m
	if a.loop != nil {
		a.loop.ResetAccumulation()
	}
}

// ModelView returns the camera transform.
func (a *Application) ModelView() mgl32.Mat4 { return a.modelView }

// Settings returns the settings in effect, including the scene camera.
func (a *Application) Settings() Settings { return a.settings }

// DrawFrame renders and presents one frame.
func (a *Application) DrawFrame(ctx context.Context) error {
	if a.loop == nil {
		return fmt.Errorf("raytrace: no frame loop")
	}
	return a.loop.DrawFrame(ctx)
}

// Run draws frames until frames have been presented, the sample budget is
// reached or ctx is done. A non-positive frames draws until the budget is
// reached; it never returns in RenderModeRasterized unless ctx is done.
func (a *Application) Run(ctx context.Context, frames int) error {
	if a.loop == nil {
		return fmt.Errorf("raytrace: no frame loop")
	}
	start := a.loop.Frames()
	for frames <= 0 || a.loop.Frames()-start < uint64(frames) {
		if a.loop.Converged() {
			return nil
		}
		if err := a.loop.DrawFrame(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Statistics returns counts for the current scene and render progress.
func (a *Application) Statistics() Statistics {
	st := Statistics{
		RenderMode: a.settings.RenderMode,
		Extent:     a.swapChain.Extent(),
	}
	if a.current != nil {
		st.Scene = a.current.name
		st.Models = a.current.scene.ModelCount()
		st.Vertices, st.Indices, st.Materials = a.current.scene.Stats()
		st.Textures = len(a.current.scene.Textures())
	}
	if rt, ok := a.strategy.(*rayTracedStrategy); ok && rt.builder != nil {
		st.Accel = rt.builder.Stats()
	}
	if a.loop != nil {
		st.Frames = a.loop.Frames()
		st.TotalSamples = a.loop.Accumulation().TotalSamples
		st.Rebuilds = a.loop.Rebuilds()
	}
	return st
}

// uniformData encodes the uniform buffer of a frame.
func (a *Application) uniformData(info frame.Info) []byte {
	hasSky := a.current != nil && a.current.camera.HasSky
	ubo := NewUniformBufferObject(a.modelView, &a.settings, info.Extent, hasSky)
	ubo.TotalNumberOfSamples = info.TotalSamples
	ubo.NumberOfSamples = info.Samples
	return ubo.Bytes()
}

// Destroy waits for the device and releases everything the application
// created. The device and the swap chain stay with their owner.
func (a *Application) Destroy() {
	if a.loop != nil {
		a.loop.Destroy()
		a.loop = nil
	}
	a.unloadScene()
	if a.strategy != nil {
		a.strategy.Destroy()
		a.strategy = nil
	}
}
