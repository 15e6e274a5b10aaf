package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-sky/engine/sky/kernels"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
)

// radiancePass is one radiance kernel. The diffuse kernel reads the specular atlas written
// just before it; the specular kernel binds the placeholder there.
type radiancePass struct {
	kernel string
	input  resource_set.TextureKey
	output resource_set.TextureKey
}

var radiancePasses = []radiancePass{
	{kernels.KeySpecularRadiance, resource_set.TextureKeyPlaceholder, resource_set.TextureKeySpecularAtlas},
	{kernels.KeyDiffuseRadiance, resource_set.TextureKeySpecularAtlas, resource_set.TextureKeyDiffuseAtlas},
}

// faceCopy moves the six stacked faces of an atlas into the layers of its cubemap.
type faceCopy struct {
	pass    string
	atlas   resource_set.TextureKey
	cubemap resource_set.TextureKey
}

var faceCopies = []faceCopy{
	{"specular_faces", resource_set.TextureKeySpecularAtlas, resource_set.TextureKeySpecularCubemap},
	{"diffuse_faces", resource_set.TextureKeyDiffuseAtlas, resource_set.TextureKeyDiffuseCubemap},
}

type radianceStage struct {
	registry pipeline_registry.Registry
	gate     gate
}

var _ Stage = &radianceStage{}

// NewRadianceStage creates the stage filling the specular and diffuse atlases from the LUTs and
// copying them into cubemaps. It stays Loading until both its own kernels and the LUT kernels
// compiled, so the atlases are never computed from LUTs that were never written.
//
// Parameters:
//   - registry: the radiance family registry
//   - lut: the LUT family registry
//
// Returns:
//   - Stage: the radiance stage
func NewRadianceStage(registry, lut pipeline_registry.Registry) Stage {
	return &radianceStage{registry: registry, gate: gate{lut, registry}}
}

func (s *radianceStage) Kind() Kind {
	return KindRadiance
}

func (s *radianceStage) Name() string {
	return "radiance"
}

func (s *radianceStage) Passes(*FrameContext) []string {
	names := make([]string, 0, len(radiancePasses)+len(faceCopies))
	for _, p := range radiancePasses {
		names = append(names, p.kernel)
	}
	for _, c := range faceCopies {
		names = append(names, c.pass)
	}
	return names
}

func (s *radianceStage) PollReady() (bool, error) {
	return s.gate.poll()
}

func (s *radianceStage) Record(ctx *FrameContext, rec Recorder) (Report, error) {
	if !s.gate.ready() {
		return LoadingReport(s, ctx), nil
	}
	report := Report{Stage: s.Name(), Kind: s.Kind()}
	for _, pass := range radiancePasses {
		pr, err := s.recordPass(ctx, rec, pass)
		if err != nil {
			return report, err
		}
		report.Passes = append(report.Passes, pr)
	}
	for _, c := range faceCopies {
		pr, err := s.copyFaces(ctx, rec, c)
		if err != nil {
			return report, err
		}
		report.Passes = append(report.Passes, pr)
	}
	return report, nil
}

func (s *radianceStage) recordPass(ctx *FrameContext, rec Recorder, pass radiancePass) (PassReport, error) {
	b := newBinder(ctx)
	bindings := b.atmosphereInputs(resource_set.TextureKeyTransmittance, resource_set.TextureKeyMultipleScattering)
	input := b.owned(pass.input)
	output := b.owned(pass.output)
	if b.err != nil {
		return PassReport{}, b.err
	}
	if b.absent() {
		return b.skip(pass.kernel), nil
	}
	bindings = append(bindings,
		uniform(pipeline_registry.BindingGlobals, UniformGlobals),
		texture(pipeline_registry.BindingSpecularInput, pipeline_registry.SlotTexture2D, input),
		texture(pipeline_registry.BindingRadianceOutput, pipeline_registry.SlotStorageTexture2D, output),
	)

	p, err := kernel(s.registry, pass.kernel)
	if err != nil {
		return PassReport{}, err
	}
	group, err := assemble(pipeline_registry.RadianceLayout(), bindings)
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

// copyFaces records one copy per cube face: the face-th slice of the atlas, starting at
// y = face*faceSize, lands in array layer face of the cubemap.
func (s *radianceStage) copyFaces(ctx *FrameContext, rec Recorder, c faceCopy) (PassReport, error) {
	b := newBinder(ctx)
	atlas := b.owned(c.atlas)
	cubemap := b.owned(c.cubemap)
	if b.err != nil {
		return PassReport{}, b.err
	}
	if b.absent() {
		return b.skip(c.pass), nil
	}

	faceSize := cubemap.Spec().Width
	for face := range uint32(resource_set.CubeFaces) {
		err := rec.CopyTexture(Copy{
			Pass:              c.pass,
			Source:            atlas,
			SourceOrigin:      [3]uint32{0, face * faceSize, 0},
			Destination:       cubemap,
			DestinationOrigin: [3]uint32{0, 0, face},
			Extent:            [3]uint32{faceSize, faceSize, 1},
		})
		if err != nil {
			return PassReport{}, fmt.Errorf("%s face %d: %w", c.pass, face, err)
		}
	}
	return PassReport{Pass: c.pass, Outcome: OutcomeRecorded}, nil
}
