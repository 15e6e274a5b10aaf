package main

import (
	"os"

	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "oxy-sky"
	app.Usage = "physically based sky and atmosphere renderer"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "open the interactive sky viewer",
			Description: `
Open a window and render the sky. The LUT, radiance and aerial perspective kernels
compile in the background; the sky appears once they are ready.

Keys:
  left/right     move the sun around the horizon
  up/down        raise or lower the sun
  page up/down   double or halve the eye height
  m              toggle multiple scattering
  p              toggle aerial perspective
  r              reset the atmosphere and exposure
  space          animate the sun
  escape         quit

Drag with the left mouse button to look around; scroll to change exposure.`,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "width",
					Value: 1280,
					Usage: "window width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 720,
					Usage: "window height",
				},
				cli.IntFlag{
					Name:  "face-size",
					Value: 256,
					Usage: "radiance cubemap face size, a multiple of 8",
				},
				cli.Float64Flag{
					Name:  "sun-altitude",
					Value: 90,
					Usage: "sun angle from the zenith in degrees (90 = horizon)",
				},
				cli.Float64Flag{
					Name:  "sun-azimuth",
					Value: 180,
					Usage: "sun angle around the vertical axis in degrees, from +Z towards +X",
				},
				cli.Float64Flag{
					Name:  "eye-height",
					Value: 1000,
					Usage: "observer height above the ground in metres",
				},
				cli.Float64Flag{
					Name:  "exposure",
					Value: 1.0,
					Usage: "exposure multiplier for tone-mapping",
				},
				cli.BoolFlag{
					Name:  "no-multiscatter",
					Usage: "start with multiple scattering disabled",
				},
				cli.BoolFlag{
					Name:  "hide-aerial",
					Usage: "start with aerial perspective disabled",
				},
				cli.Float64Flag{
					Name:  "fps",
					Value: 0,
					Usage: "render frame rate cap (0 = uncapped)",
				},
				cli.BoolFlag{
					Name:  "vsync",
					Usage: "present with vsync",
				},
				cli.BoolFlag{
					Name:  "software",
					Usage: "force the software fallback adapter",
				},
				cli.BoolFlag{
					Name:  "validate",
					Usage: "compile every kernel with naga before it reaches the device",
				},
				cli.BoolFlag{
					Name:  "profile",
					Usage: "log frame statistics and pass outcomes every second",
				},
			},
			Action: RunViewer,
		},
		{
			Name:  "inspect",
			Usage: "print the sky textures, layouts, kernels and frame graph",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "face-size",
					Value: 256,
					Usage: "radiance cubemap face size, a multiple of 8",
				},
			},
			Action: Inspect,
		},
		{
			Name:  "validate",
			Usage: "compile WGSL kernels with naga",
			Description: `
Pre-process and compile kernel sources with the naga WGSL front end. Without
arguments every embedded sky kernel is checked.`,
			ArgsUsage: "kernel1.wgsl kernel2.wgsl ...",
			Action:    Validate,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
