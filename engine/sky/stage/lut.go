package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/kernels"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
)

// lutPass is one LUT kernel with the textures it binds.
type lutPass struct {
	kernel             string
	transmittance      resource_set.TextureKey
	multipleScattering resource_set.TextureKey
	output             resource_set.TextureKey
}

// lutPasses is the recording order. Multiple scattering and sun transmittance read the
// transmittance LUT written by the first pass.
var lutPasses = []lutPass{
	{
		kernel:             kernels.KeyTransmittance,
		transmittance:      resource_set.TextureKeyPlaceholder,
		multipleScattering: resource_set.TextureKeyPlaceholder,
		output:             resource_set.TextureKeyTransmittance,
	},
	{
		kernel:             kernels.KeyMultipleScattering,
		transmittance:      resource_set.TextureKeyTransmittance,
		multipleScattering: resource_set.TextureKeyPlaceholder,
		output:             resource_set.TextureKeyMultipleScattering,
	},
	{
		kernel:             kernels.KeySunTransmittance,
		transmittance:      resource_set.TextureKeyTransmittance,
		multipleScattering: resource_set.TextureKeyPlaceholder,
		output:             resource_set.TextureKeySunTransmittance,
	},
}

type lutStage struct {
	registry pipeline_registry.Registry
	gate     gate
}

var _ Stage = &lutStage{}

// NewLUTStage creates the stage computing the transmittance, multiple scattering and sun
// transmittance LUTs.
//
// Parameters:
//   - registry: the LUT family registry
//
// Returns:
//   - Stage: the LUT stage
func NewLUTStage(registry pipeline_registry.Registry) Stage {
	return &lutStage{registry: registry, gate: gate{registry}}
}

func (s *lutStage) Kind() Kind {
	return KindLUT
}

func (s *lutStage) Name() string {
	return "lut"
}

func (s *lutStage) Passes(*FrameContext) []string {
	names := make([]string, len(lutPasses))
	for i, p := range lutPasses {
		names[i] = p.kernel
	}
	return names
}

func (s *lutStage) PollReady() (bool, error) {
	return s.gate.poll()
}

func (s *lutStage) Record(ctx *FrameContext, rec Recorder) (Report, error) {
	if !s.gate.ready() {
		return LoadingReport(s, ctx), nil
	}
	report := Report{Stage: s.Name(), Kind: s.Kind()}
	for _, pass := range lutPasses {
		pr, err := s.recordPass(ctx, rec, pass)
		if err != nil {
			return report, err
		}
		report.Passes = append(report.Passes, pr)
	}
	return report, nil
}

func (s *lutStage) recordPass(ctx *FrameContext, rec Recorder, pass lutPass) (PassReport, error) {
	b := newBinder(ctx)
	bindings := b.atmosphereInputs(pass.transmittance, pass.multipleScattering)
	output := b.owned(pass.output)
	if b.err != nil {
		return PassReport{}, b.err
	}
	if b.absent() {
		return b.skip(pass.kernel), nil
	}
	bindings = append(bindings,
		uniform(pipeline_registry.BindingGlobals, UniformGlobals),
		texture(pipeline_registry.BindingLUTOutput, pipeline_registry.SlotStorageTexture2D, output),
	)

	p, err := kernel(s.registry, pass.kernel)
	if err != nil {
		return PassReport{}, err
	}
	group, err := assemble(pipeline_registry.LUTLayout(), bindings)
	if err != nil {
		return PassReport{}, fmt.Errorf("%s: %w", pass.kernel, err)
	}
	err = rec.Dispatch(Dispatch{
		Pass:       pass.kernel,
		Pipeline:   p,
		Groups:     []BindGroup{group},
		Workgroups: output.Spec().Workgroups(),
	})
	if err != nil {
		return PassReport{}, fmt.Errorf("%s: %w", pass.kernel, err)
	}
	return PassReport{Pass: pass.kernel, Outcome: OutcomeRecorded}, nil
}

// kernel looks up a compiled kernel.
func kernel(r pipeline_registry.Registry, key string) (pipeline.Pipeline, error) {
	p, ok := r.Pipeline(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnknownKernel, key, r.Family())
	}
	return p, nil
}
