package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/Carmen-Shannon/oxy-sky/engine"
	"github.com/Carmen-Shannon/oxy-sky/engine/atmosphere"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky"
	"github.com/Carmen-Shannon/oxy-sky/engine/window"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/urfave/cli"
)

// controllerFromFlags builds the starting atmosphere from the run flags.
func controllerFromFlags(ctx *cli.Context) atmosphere.Controller {
	c := atmosphere.NewController(
		atmosphere.WithSunAngles(
			mgl32.DegToRad(float32(ctx.Float64("sun-altitude"))),
			mgl32.DegToRad(float32(ctx.Float64("sun-azimuth"))),
		),
		atmosphere.WithEyeHeight(float32(ctx.Float64("eye-height"))),
	)
	c.SetMultipleScattering(!ctx.Bool("no-multiscatter"))
	c.SetAerialPerspective(!ctx.Bool("hide-aerial"))
	return c
}

// RunViewer opens the interactive sky viewer.
func RunViewer(ctx *cli.Context) error {
	setupLogging(ctx)

	w, err := window.NewWindow(
		window.WithTitle("oxy-sky"),
		window.WithSize(ctx.Int("width"), ctx.Int("height")),
	)
	if err != nil {
		return err
	}
	defer w.Close()

	mode := renderer.PresentModeUncapped
	if ctx.Bool("vsync") {
		mode = renderer.PresentModeVSync
	}
	r, err := renderer.NewRenderer(renderer.BackendTypeWGPU, w,
		renderer.WithPresentMode(mode),
		renderer.WithForceSoftwareRenderer(ctx.Bool("software")),
		renderer.WithExposure(float32(ctx.Float64("exposure"))),
	)
	if err != nil {
		return err
	}
	defer r.Release()

	e, err := engine.NewEngine(w, r,
		engine.WithController(controllerFromFlags(ctx)),
		engine.WithProfiling(ctx.Bool("profile")),
		engine.WithRenderFrameLimit(ctx.Float64("fps")),
		engine.WithSkyOptions(
			sky.WithFaceSize(uint32(ctx.Int("face-size"))),
			sky.WithValidation(ctx.Bool("validate")),
		),
	)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Noticef("rendering %dx%d, face size %d", ctx.Int("width"), ctx.Int("height"), ctx.Int("face-size"))
	return e.Run(runCtx)
}
