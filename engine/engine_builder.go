package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-sky/engine/atmosphere"
	"github.com/Carmen-Shannon/oxy-sky/engine/camera"
	"github.com/Carmen-Shannon/oxy-sky/engine/light"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled.Store(enabled)
	}
}

// WithTickRate sets the engine tick rate in frames per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}

// WithController sets the atmosphere state the viewer renders and edits.
//
// Parameters:
//   - c: a pre-configured Controller
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithController(c atmosphere.Controller) EngineBuilderOption {
	return func(e *engine) {
		e.controller = c
	}
}

// WithCamera sets the camera of the main view.
func WithCamera(c camera.Camera) EngineBuilderOption {
	return func(e *engine) {
		e.camera = c
	}
}

// WithSun sets the directional light that follows the atmosphere's sun.
func WithSun(s light.Sun) EngineBuilderOption {
	return func(e *engine) {
		e.sun = s
	}
}

// WithSkyOptions passes options through to the sky. The main pass and tonemapping hooks are
// set by the engine; options given here are applied after them.
func WithSkyOptions(options ...sky.SkyBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.skyOptions = append(e.skyOptions, options...)
	}
}

// WithSunAnimation starts the viewer with the sun moving.
//
// Parameters:
//   - radiansPerSecond: azimuth speed; 0 keeps the default
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSunAnimation(radiansPerSecond float32) EngineBuilderOption {
	return func(e *engine) {
		if radiansPerSecond != 0 {
			e.sunSpeed = radiansPerSecond
		}
		e.animateSun.Store(true)
	}
}
