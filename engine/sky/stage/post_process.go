package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-sky/engine/sky/kernels"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
)

// fullscreenVertices is the vertex count of the fullscreen triangle.
const fullscreenVertices = 3

type postProcessStage struct {
	registry pipeline_registry.Registry
	gate     gate
}

var _ Stage = &postProcessStage{}

// NewPostProcessStage creates the stage compositing aerial perspective into every view. It only
// waits for its own kernel: when the LUT stages are still loading it composites with whatever
// the LUTs hold.
//
// Parameters:
//   - registry: the post-process family registry
//
// Returns:
//   - Stage: the post-process stage
func NewPostProcessStage(registry pipeline_registry.Registry) Stage {
	return &postProcessStage{registry: registry, gate: gate{registry}}
}

// PostProcessPass names the composite pass of a view.
func PostProcessPass(view string) string {
	return kernels.KeyAerialPerspective + "/" + view
}

func (s *postProcessStage) Kind() Kind {
	return KindPostProcess
}

func (s *postProcessStage) Name() string {
	return "post_process"
}

func (s *postProcessStage) Passes(ctx *FrameContext) []string {
	names := make([]string, len(ctx.Views))
	for i, v := range ctx.Views {
		names[i] = PostProcessPass(v.Label)
	}
	return names
}

func (s *postProcessStage) PollReady() (bool, error) {
	return s.gate.poll()
}

func (s *postProcessStage) Record(ctx *FrameContext, rec Recorder) (Report, error) {
	if !s.gate.ready() {
		return LoadingReport(s, ctx), nil
	}
	report := Report{Stage: s.Name(), Kind: s.Kind()}
	for _, view := range ctx.Views {
		var pr PassReport
		var err error
		if ctx.Snapshot.PostProcess.Enabled() {
			pr, err = s.composite(ctx, rec, view)
		} else {
			pr, err = s.passThrough(ctx, rec, view)
		}
		if err != nil {
			return report, err
		}
		report.Passes = append(report.Passes, pr)
	}
	return report, nil
}

// passThrough copies the scene colour into the target unchanged.
func (s *postProcessStage) passThrough(ctx *FrameContext, rec Recorder, view View) (PassReport, error) {
	pass := PostProcessPass(view.Label)
	b := newBinder(ctx)
	color := b.external("scene_color", view.Color)
	target := b.external("target", view.Target)
	if b.absent() {
		return b.skip(pass), nil
	}

	spec := color.Spec()
	err := rec.CopyTexture(Copy{
		Pass:        pass,
		Source:      color,
		Destination: target,
		Extent:      [3]uint32{spec.Width, spec.Height, 1},
	})
	if err != nil {
		return PassReport{}, fmt.Errorf("%s: %w", pass, err)
	}
	return PassReport{Pass: pass, Outcome: OutcomeRecorded}, nil
}

func (s *postProcessStage) composite(ctx *FrameContext, rec Recorder, view View) (PassReport, error) {
	pass := PostProcessPass(view.Label)
	b := newBinder(ctx)
	primary := b.atmosphereInputs(resource_set.TextureKeyTransmittance, resource_set.TextureKeyMultipleScattering)
	color := b.external("scene_color", view.Color)
	depth := b.external("scene_depth", view.Depth)
	target := b.external("target", view.Target)
	shadowMap := b.external("shadow_map", view.ShadowMap)
	if b.err != nil {
		return PassReport{}, b.err
	}
	if b.absent() {
		return b.skip(pass), nil
	}

	viewKey := ViewUniformKey(view.Label)
	lightKey := LightUniformKey(view.Label)
	if err := rec.WriteUniform(viewKey, view.Uniform.Marshal()); err != nil {
		return PassReport{}, fmt.Errorf("%s: %w", pass, err)
	}
	if err := rec.WriteUniform(lightKey, view.Light.Marshal()); err != nil {
		return PassReport{}, fmt.Errorf("%s: %w", pass, err)
	}

	primary = append(primary,
		uniform(pipeline_registry.BindingView, viewKey),
		texture(pipeline_registry.BindingSceneColor, pipeline_registry.SlotTexture2D, color),
		texture(pipeline_registry.BindingSceneDepth, pipeline_registry.SlotDepthTexture2D, depth),
		sampler(pipeline_registry.BindingSceneColorSampler, SamplerNonFiltering),
		uniform(pipeline_registry.BindingPostProcessSettings, UniformPostProcessSettings),
	)
	shadow := []Binding{
		texture(pipeline_registry.BindingShadowMap, pipeline_registry.SlotDepthTexture2DArray, shadowMap),
		sampler(pipeline_registry.BindingShadowSampler, SamplerComparison),
		uniform(pipeline_registry.BindingLight, lightKey),
	}

	p, err := kernel(s.registry, kernels.KeyAerialPerspective)
	if err != nil {
		return PassReport{}, err
	}
	g0, err := assemble(pipeline_registry.PostProcessLayout(), primary)
	if err != nil {
		return PassReport{}, fmt.Errorf("%s: %w", pass, err)
	}
	g1, err := assemble(pipeline_registry.ShadowLayout(), shadow)
	if err != nil {
		return PassReport{}, fmt.Errorf("%s: %w", pass, err)
	}
	err = rec.DrawFullscreen(Draw{
		Pass:     pass,
		Pipeline: p,
		Groups:   []BindGroup{g0, g1},
		Target:   target,
		Vertices: fullscreenVertices,
	})
	if err != nil {
		return PassReport{}, fmt.Errorf("%s: %w", pass, err)
	}
	return PassReport{Pass: pass, Outcome: OutcomeRecorded}, nil
}
