package kernels

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-sky/engine/atmosphere"
	"github.com/Carmen-Shannon/oxy-sky/engine/camera"
	"github.com/Carmen-Shannon/oxy-sky/engine/light"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
)

var families = []pipeline_registry.Family{
	pipeline_registry.FamilyLUT,
	pipeline_registry.FamilyRadiance,
	pipeline_registry.FamilyPostProcess,
}

func TestKernelEntryPoints(t *testing.T) {
	specList := []struct {
		family    pipeline_registry.Family
		key       string
		workgroup [3]uint32
	}{
		{pipeline_registry.FamilyLUT, KeyTransmittance, [3]uint32{8, 8, 1}},
		{pipeline_registry.FamilyLUT, KeyMultipleScattering, [3]uint32{8, 8, 1}},
		{pipeline_registry.FamilyLUT, KeySunTransmittance, [3]uint32{1, 1, 1}},
		{pipeline_registry.FamilyRadiance, KeySpecularRadiance, [3]uint32{8, 8, 1}},
		{pipeline_registry.FamilyRadiance, KeyDiffuseRadiance, [3]uint32{8, 8, 1}},
	}

	for specIndex, spec := range specList {
		var found bool
		for _, k := range Kernels(spec.family) {
			if k.Key != spec.key {
				continue
			}
			found = true
			shaders, err := k.Shaders()
			if err != nil {
				t.Fatalf("[spec %d] %s: %v", specIndex, spec.key, err)
			}
			if shaders[0].EntryPoint() != spec.key {
				t.Fatalf("[spec %d] expected entry point %s; got %s", specIndex, spec.key, shaders[0].EntryPoint())
			}
			if shaders[0].WorkgroupSize() != spec.workgroup {
				t.Fatalf("[spec %d] expected workgroup %v; got %v", specIndex, spec.workgroup, shaders[0].WorkgroupSize())
			}
		}
		if !found {
			t.Fatalf("[spec %d] kernel %s not in family %s", specIndex, spec.key, spec.family)
		}
	}
}

func TestPostProcessKernelEntries(t *testing.T) {
	ks := Kernels(pipeline_registry.FamilyPostProcess)
	if len(ks) != 1 || ks[0].Type != pipeline.PipelineTypeRender {
		t.Fatalf("expected one render kernel; got %+v", ks)
	}
	shaders, err := ks[0].Shaders()
	if err != nil {
		t.Fatal(err)
	}
	if len(shaders) != 2 {
		t.Fatalf("expected vertex and fragment shaders; got %d", len(shaders))
	}
	if shaders[0].EntryPoint() != FullscreenVertexEntry || shaders[1].EntryPoint() != KeyAerialPerspective {
		t.Fatalf("unexpected entry points %s / %s", shaders[0].EntryPoint(), shaders[1].EntryPoint())
	}
	p, err := ks[0].Pipeline()
	if err != nil {
		t.Fatal(err)
	}
	if p.ColorFormat() != PostProcessFormat {
		t.Fatalf("expected post-process format %v; got %v", PostProcessFormat, p.ColorFormat())
	}
}

// Every slot of the family layouts must be declared by each kernel with the slot's name and kind.
func TestKernelsMatchLayouts(t *testing.T) {
	for _, family := range families {
		layouts := family.Layouts()
		for _, k := range Kernels(family) {
			shaders, err := k.Shaders()
			if err != nil {
				t.Fatalf("%s: %v", k.Key, err)
			}
			for _, s := range shaders {
				for g, layout := range layouts {
					if err := layout.Matches(s.BindGroupLayoutDescriptor(g)); err != nil {
						t.Fatalf("%s: %v", s.Key(), err)
					}
					for _, slot := range layout.Slots {
						name := s.BindGroupVarName(g, int(slot.Binding))
						if name != slot.Name {
							t.Fatalf("%s group %d binding %d: expected %q; got %q", s.Key(), g, slot.Binding, slot.Name, name)
						}
					}
				}
			}
		}
	}
}

func TestPipelinesUseFamilyLayouts(t *testing.T) {
	for _, family := range families {
		ps, err := Pipelines(family)
		if err != nil {
			t.Fatalf("%s: %v", family, err)
		}
		if len(ps) != len(Kernels(family)) {
			t.Fatalf("%s: expected %d pipelines; got %d", family, len(Kernels(family)), len(ps))
		}
		for _, p := range ps {
			descs := p.BindGroupLayoutDescriptors()
			layouts := family.Layouts()
			if len(descs) != len(layouts) {
				t.Fatalf("%s: expected %d groups; got %d", p.PipelineKey(), len(layouts), len(descs))
			}
			for g, layout := range layouts {
				if len(descs[g].Entries) != len(layout.Slots) {
					t.Fatalf("%s group %d: expected %d entries; got %d", p.PipelineKey(), g, len(layout.Slots), len(descs[g].Entries))
				}
				if descs[g].Label != layout.Label {
					t.Fatalf("%s group %d: expected layout %s; got %s", p.PipelineKey(), g, layout.Label, descs[g].Label)
				}
			}
		}
	}
}

func TestUniformStructSizes(t *testing.T) {
	specList := []struct {
		source string
		name   string
		size   uint64
	}{
		{ComputeLUTsSource, "AtmosphereParameters", atmosphere.ParametersSize},
		{ComputeLUTsSource, "Globals", atmosphere.GlobalsSize},
		{PostProcessSource, "View", camera.ViewUniformSize},
		{PostProcessSource, "PostProcessSettings", atmosphere.PostProcessSettingsSize},
		{PostProcessSource, "DirectionalLight", light.DirectionalLightSize},
	}

	for specIndex, spec := range specList {
		s, err := shader.NewShader("sizes", shader.ShaderTypeCompute, spec.source+"\n@compute @workgroup_size(1)\nfn probe() {}\n",
			shader.WithInclude(IncludeAtmosphereFunctions, AtmosphereFunctionsSource),
			shader.WithEntryPoint("probe"),
		)
		if err != nil {
			t.Fatalf("[spec %d] %v", specIndex, err)
		}
		got, ok := s.StructSize(spec.name)
		if !ok || got != spec.size {
			t.Fatalf("[spec %d] %s: expected %d bytes; got %d (%v)", specIndex, spec.name, spec.size, got, ok)
		}
	}
}

func TestDispatchCoversTextures(t *testing.T) {
	rs, err := resource_set.New()
	if err != nil {
		t.Fatal(err)
	}
	targets := map[string]resource_set.TextureKey{
		KeyTransmittance:      resource_set.TextureKeyTransmittance,
		KeyMultipleScattering: resource_set.TextureKeyMultipleScattering,
		KeySunTransmittance:   resource_set.TextureKeySunTransmittance,
		KeySpecularRadiance:   resource_set.TextureKeySpecularAtlas,
		KeyDiffuseRadiance:    resource_set.TextureKeyDiffuseAtlas,
	}
	for _, family := range families[:2] {
		for _, k := range Kernels(family) {
			shaders, err := k.Shaders()
			if err != nil {
				t.Fatal(err)
			}
			spec, _ := rs.Spec(targets[k.Key])
			wg := shaders[0].WorkgroupSize()
			grid := spec.Workgroups()
			if grid[0]*wg[0] < spec.Width || grid[1]*wg[1] < spec.Height {
				t.Fatalf("%s: grid %v of %v does not cover %dx%d", k.Key, grid, wg, spec.Width, spec.Height)
			}
		}
	}
}

func TestNagaCompilesKernels(t *testing.T) {
	for _, family := range families {
		for _, k := range Kernels(family) {
			shaders, err := k.Shaders()
			if err != nil {
				t.Fatal(err)
			}
			for _, s := range shaders {
				if err := Validate(s.Key(), s.Source()); err != nil {
					// The Go naga port does not implement every WGSL builtin yet.
					t.Skipf("naga front end rejected %s: %v", s.Key(), err)
				}
			}
		}
	}
}

func TestViewerKernelsParse(t *testing.T) {
	for _, spec := range []struct {
		key, source, entry string
	}{
		{KeySkybox, SkyboxSource, KeySkybox},
		{KeyTonemap, TonemapSource, KeyTonemap},
	} {
		fs, err := shader.NewShader(spec.key, shader.ShaderTypeFragment, spec.source, shader.WithEntryPoint(spec.entry))
		if err != nil {
			t.Fatalf("%s: %v", spec.key, err)
		}
		if !strings.Contains(fs.Source(), "struct AtmosphereParameters") {
			t.Fatalf("%s: atmosphere parameters not included", spec.key)
		}
		if _, err := shader.NewShader(spec.key, shader.ShaderTypeVertex, spec.source, shader.WithEntryPoint(FullscreenVertexEntry)); err != nil {
			t.Fatalf("%s vertex: %v", spec.key, err)
		}
	}
}
