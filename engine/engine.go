// Package engine runs the sky viewer: a fixed-rate tick loop for control state, a render
// loop recording the sky DAG once per frame, and the window message loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/Carmen-Shannon/oxy-sky/engine/atmosphere"
	"github.com/Carmen-Shannon/oxy-sky/engine/camera"
	"github.com/Carmen-Shannon/oxy-sky/engine/light"
	"github.com/Carmen-Shannon/oxy-sky/engine/log"
	"github.com/Carmen-Shannon/oxy-sky/engine/profiler"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/scheduler"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/stage"
	"github.com/Carmen-Shannon/oxy-sky/engine/window"
)

var logger = log.New("engine")

const (
	// MainView is the label of the viewer's only view.
	MainView = "main"

	sunStep       = math.Pi / 90
	minEyeHeight  = 1
	exposureStep  = 1.1
	dragSpeed     = 0.005
	defaultSunRPS = math.Pi / 60

	titleLoading = "oxy-sky (compiling kernels)"
	titleReady   = "oxy-sky"
)

// engine implements the Engine interface.
// Coordinates tick, render, and window threads.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window     window.Window
	renderer   renderer.Renderer
	sky        sky.Sky
	skyOptions []sky.SkyBuilderOption
	controller atmosphere.Controller
	camera     camera.Camera
	sun        light.Sun

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	animateSun atomic.Bool
	sunSpeed   float32 // radians of azimuth per second
	readyShown atomic.Bool

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped

	errMu sync.Mutex
	err   error
}

// Engine is the main entry point for the viewer.
// It orchestrates the tick loop, render loop, and window management around one sky.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Renderer returns the renderer the sky records into.
	Renderer() renderer.Renderer

	// Sky returns the sky pipeline.
	Sky() sky.Sky

	// Controller returns the atmosphere state edited by key bindings and callbacks.
	Controller() atmosphere.Controller

	// Camera returns the camera of the main view.
	Camera() camera.Camera

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for control updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each render frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// SetSunAnimation starts or stops moving the sun around the sky in the tick loop.
	SetSunAnimation(enabled bool)

	// Run starts the tick and render loops and processes window messages until the window
	// closes, ctx is cancelled, Quit is called or the sky fails fatally. It releases the sky
	// before returning.
	//
	// Parameters:
	//   - ctx: stops the engine when cancelled
	//
	// Returns:
	//   - error: the fatal frame error, if any
	Run(ctx context.Context) error

	// Quit signals all engine goroutines to stop and shuts down the engine.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Err returns the error that stopped the engine, if any.
	Err() error
}

var _ Engine = &engine{}

// NewEngine creates the viewer around a window and its renderer. It sets up the sky on the
// renderer; kernels keep compiling in the background after NewEngine returns.
//
// Parameters:
//   - w: the window
//   - r: the renderer created for w
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
//   - error: a sky configuration, allocation or kernel error
func NewEngine(w window.Window, r renderer.Renderer, options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		window:          w,
		renderer:        r,
		profiler:        profiler.NewProfiler(),
		engineTickRate:  time.Second / 60,
		sunSpeed:        defaultSunRPS,
	}

	for _, opt := range options {
		opt(e)
	}
	if e.controller == nil {
		e.controller = atmosphere.NewController()
	}
	if e.camera == nil {
		e.camera = camera.NewCamera()
	}
	if e.sun == nil {
		e.sun = light.NewSun()
	}
	if width, height := r.Size(); height > 0 {
		e.camera.SetAspect(float32(width) / float32(height))
	}

	skyOptions := append([]sky.SkyBuilderOption{
		sky.WithMainPass(r.MainPass(e.environment)),
		sky.WithTonemapping(r.Tonemapping()),
	}, e.skyOptions...)
	s, err := sky.NewSky(skyOptions...)
	if err != nil {
		return nil, err
	}
	if err := s.Setup(r); err != nil {
		s.Release()
		return nil, fmt.Errorf("engine: sky setup: %w", err)
	}
	e.sky = s

	e.window.SetResizeCallback(e.resize)
	e.window.SetKeyDownCallback(e.keyDown)
	e.window.SetScrollCallback(e.scroll)
	e.window.SetDragCallback(e.drag)
	e.window.SetUpdateCallback(e.update)
	e.window.SetTitle(titleLoading)
	return e, nil
}

// environment resolves the sky's cubemaps for the main pass hook.
func (e *engine) environment() (sky.Environment, error) {
	return e.sky.Environment()
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Sky() sky.Sky {
	return e.sky
}

func (e *engine) Controller() atmosphere.Controller {
	return e.controller
}

func (e *engine) Camera() camera.Camera {
	return e.camera
}

func (e *engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.running.Store(true)
	e.handle(ctx, cancel)
	e.window.ProcessMessages(ctx)

	e.signalQuit()
	e.wg.Wait()
	e.sky.Release()
	return e.Err()
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

func (e *engine) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

// fail records the error that stops the engine and signals quit.
func (e *engine) fail(err error) {
	e.errMu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.errMu.Unlock()
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running.Store(false)
		close(e.quitChannel)
	})
}

// handle launches the tick, render, and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle(ctx context.Context, cancel context.CancelFunc) {
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleRender(ctx)
	go e.handleQuit(ctx, cancel)
}

// handleEngine runs the fixed-rate tick loop in its own goroutine.
// Advances the sun animation and fires the tick callback at the configured tick rate, and
// listens for dynamic rate changes via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			e.tick(dt)
			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// tick advances the control state by dt seconds.
func (e *engine) tick(dt float32) {
	if !e.animateSun.Load() {
		return
	}
	altitude, azimuth := e.controller.SunAngles()
	e.controller.SetSunAngles(altitude, wrapAngle(azimuth+e.sunSpeed*dt))
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Records one sky frame per iteration and stops the engine on a fatal error.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender(ctx context.Context) {
	defer e.wg.Done()
	// Recover from panics inside the render goroutine to avoid crashing the whole process.
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("render goroutine recovered from panic: %v", r)
			e.fail(fmt.Errorf("engine: render panic: %v", r))
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			if err := e.renderFrame(ctx); err != nil {
				if errors.Is(err, scheduler.ErrFatal) {
					e.fail(err)
				} else {
					e.signalQuit()
				}
				return
			}

			if e.renderCallback != nil {
				e.renderCallback(dt)
			}

			if e.profilingEnabled.Load() && e.profiler != nil {
				e.profiler.Tick()
			}

			// Frame rate limiting
			if e.renderFrameLimit > 0 {
				elapsed := time.Since(lastRender)
				if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

// renderFrame records and presents one frame. A frame without a surface texture is skipped.
// Only fatal errors and cancellation are returned; other recording errors drop the frame.
func (e *engine) renderFrame(ctx context.Context) error {
	targets, err := e.renderer.ViewTargets(MainView)
	if err != nil {
		logger.Warningf("frame skipped: %v", err)
		return nil
	}
	rec, err := e.renderer.BeginFrame()
	if err != nil {
		logger.Warningf("frame skipped: %v", err)
		return nil
	}

	snapshot := e.controller.Snapshot()
	e.sun.Follow(snapshot.Parameters)
	e.sun.SetTransmittance(light.AnalyticTransmittance(snapshot.Parameters))

	width, height := e.renderer.Size()
	view := stage.View{
		Label:     MainView,
		Uniform:   e.camera.Uniform(uint32(width), uint32(height)),
		Light:     e.sun.Uniform(e.camera.Position()),
		Color:     targets.Color,
		Depth:     targets.Depth,
		Target:    targets.Target,
		ShadowMap: targets.ShadowMap,
	}
	report, runErr := e.sky.RunFrame(ctx, scheduler.Frame{
		Snapshot: snapshot,
		Views:    []stage.View{view},
		Recorder: rec,
	})

	if err := e.renderer.EndFrame(); err != nil && runErr == nil {
		logger.Warningf("frame %d: submit: %v", report.Frame, err)
	}
	e.renderer.Present()

	if runErr != nil {
		if errors.Is(runErr, scheduler.ErrFatal) || ctx.Err() != nil {
			return runErr
		}
		logger.Warningf("frame %d dropped: %v", report.Frame, runErr)
		return nil
	}
	if e.profilingEnabled.Load() && e.profiler != nil {
		e.profiler.Record(report)
	}
	return nil
}

// handleQuit blocks until the quit channel is closed or ctx is done, then stops the window loop.
func (e *engine) handleQuit(ctx context.Context, cancel context.CancelFunc) {
	defer e.wg.Done()
	select {
	case <-e.quitChannel:
	case <-ctx.Done():
		e.signalQuit()
	}
	cancel()
}

// update runs on the window thread once per message loop iteration.
func (e *engine) update() {
	if e.readyShown.Load() || !e.sky.Ready() {
		return
	}
	e.readyShown.Store(true)
	e.window.SetTitle(titleReady)
	logger.Info("sky ready")
}

func (e *engine) resize(width, height int) {
	if err := e.renderer.Resize(width, height); err != nil {
		logger.Warningf("resize to %dx%d: %v", width, height, err)
		return
	}
	if height > 0 {
		e.camera.SetAspect(float32(width) / float32(height))
	}
}

func (e *engine) keyDown(key uint32) {
	if key == common.KeySpace {
		animate := !e.animateSun.Load()
		e.SetSunAnimation(animate)
		logger.Infof("sun animation %t", animate)
		return
	}
	if key == common.KeyR {
		e.renderer.SetExposure(1)
	}
	applyKey(e.controller, key)
}

// applyKey applies a control key binding to the atmosphere state.
//
//	Left/Right     sun azimuth
//	Up/Down        sun altitude (up raises the sun)
//	PageUp/Down    eye height, doubled or halved
//	M              multiple scattering on/off
//	P              aerial perspective on/off
//	R              reset the atmosphere
//
// It reports whether the key was bound.
func applyKey(c atmosphere.Controller, key uint32) bool {
	altitude, azimuth := c.SunAngles()
	switch key {
	case common.KeyLeft:
		c.SetSunAngles(altitude, wrapAngle(azimuth-sunStep))
	case common.KeyRight:
		c.SetSunAngles(altitude, wrapAngle(azimuth+sunStep))
	case common.KeyUp:
		c.SetSunAngles(max(altitude-sunStep, sunStep), azimuth)
	case common.KeyDown:
		c.SetSunAngles(min(altitude+sunStep, math.Pi-sunStep), azimuth)
	case common.KeyPageUp:
		p := c.Parameters()
		c.SetEyeHeight(min(p.EyePosition.Y()*2, p.AtmosphereHeight))
	case common.KeyPageDown:
		p := c.Parameters()
		c.SetEyeHeight(max(p.EyePosition.Y()/2, minEyeHeight))
	case common.KeyM:
		c.SetMultipleScattering(!c.MultipleScattering())
	case common.KeyP:
		c.SetAerialPerspective(!c.PostProcessSettings().Enabled())
	case common.KeyR:
		if err := c.SetParameters(atmosphere.DefaultParameters()); err != nil {
			logger.Errorf("reset: %v", err)
		}
		c.SetAerialPerspective(true)
	default:
		return false
	}
	return true
}

func (e *engine) scroll(delta float32) {
	e.renderer.SetExposure(scaleExposure(e.renderer.Exposure(), delta))
}

// scaleExposure steps the exposure geometrically, one step per scroll notch.
func scaleExposure(exposure, delta float32) float32 {
	return exposure * float32(math.Pow(exposureStep, float64(delta)))
}

func (e *engine) drag(dx, dy float32) {
	e.camera.SetAngles(e.camera.Yaw()-dx*dragSpeed, e.camera.Pitch()-dy*dragSpeed)
}

// wrapAngle maps an angle into [-π, π].
func wrapAngle(a float32) float32 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

func (e *engine) SetSunAnimation(enabled bool) {
	e.animateSun.Store(enabled)
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running.Load() {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
