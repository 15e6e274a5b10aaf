package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/kernels"
	"github.com/urfave/cli"
)

// errInvalidKernels is returned when at least one kernel failed to compile.
var errInvalidKernels = errors.New("invalid kernels")

// source is one WGSL module to validate.
type source struct {
	name string
	wgsl string
}

// Validate compiles the embedded kernels, or the given files, with the naga front end.
func Validate(ctx *cli.Context) error {
	setupLogging(ctx)

	var sources []source
	var err error
	if ctx.NArg() == 0 {
		sources, err = embeddedSources()
	} else {
		sources, err = fileSources(ctx.Args())
	}
	if err != nil {
		return err
	}
	return validateSources(ctx.App.Writer, sources, kernels.Validate)
}

// embeddedSources pre-processes every sky kernel once per distinct module.
func embeddedSources() ([]source, error) {
	var out []source
	seen := make(map[string]bool)
	for _, family := range families {
		for _, k := range kernels.Kernels(family) {
			shaders, err := k.Shaders()
			if err != nil {
				return nil, fmt.Errorf("kernel %s: %w", k.Key, err)
			}
			s := shaders[len(shaders)-1]
			if seen[s.Source()] {
				continue
			}
			seen[s.Source()] = true
			out = append(out, source{name: k.Key, wgsl: s.Source()})
		}
	}
	return out, nil
}

// fileSources pre-processes WGSL files. Files may include the shared atmosphere model.
func fileSources(paths []string) ([]source, error) {
	include := shader.WithInclude(kernels.IncludeAtmosphereFunctions, kernels.AtmosphereFunctionsSource)
	out := make([]source, 0, len(paths))
	for _, path := range paths {
		var s shader.Shader
		var err error
		for _, t := range []shader.ShaderType{shader.ShaderTypeCompute, shader.ShaderTypeFragment, shader.ShaderTypeVertex} {
			s, err = shader.NewShaderFromPath(filepath.Base(path), t, path, include)
			if !errors.Is(err, shader.ErrNoEntryPoint) {
				break
			}
		}
		if err != nil {
			return nil, err
		}
		out = append(out, source{name: path, wgsl: s.Source()})
	}
	return out, nil
}

// validateSources prints one line per source and fails if any source is rejected.
func validateSources(w io.Writer, sources []source, check func(key, wgsl string) error) error {
	failed := 0
	for _, s := range sources {
		if err := check(s.name, s.wgsl); err != nil {
			failed++
			fmt.Fprintf(w, "FAIL %s: %v\n", s.name, err)
			continue
		}
		fmt.Fprintf(w, "ok   %s\n", s.name)
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errInvalidKernels, failed, len(sources))
	}
	logger.Infof("%d kernels valid", len(sources))
	return nil
}
