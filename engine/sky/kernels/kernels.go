// Package kernels embeds the device kernels of the sky pipeline and turns them into
// pipeline descriptions bound to their stage family layouts.
package kernels

import (
	_ "embed"
	"fmt"

	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	//go:embed assets/atmosphere_functions.wgsl
	AtmosphereFunctionsSource string

	//go:embed assets/compute_luts.wgsl
	ComputeLUTsSource string

	//go:embed assets/radiance_maps.wgsl
	RadianceMapsSource string

	//go:embed assets/post_process.wgsl
	PostProcessSource string

	//go:embed assets/skybox.wgsl
	SkyboxSource string

	//go:embed assets/tonemap.wgsl
	TonemapSource string
)

// IncludeAtmosphereFunctions is the include key of the shared atmosphere model.
const IncludeAtmosphereFunctions shader.AnnotationArg = "atmosphere_functions"

// Kernel keys. Compute kernel keys are also their WGSL entry point names.
const (
	KeyTransmittance      = "transmittance"
	KeyMultipleScattering = "multiple_scattering"
	KeySunTransmittance   = "sun_transmittance"
	KeySpecularRadiance   = "specular_radiance"
	KeyDiffuseRadiance    = "diffuse_radiance"
	KeyAerialPerspective  = "aerial_perspective"
	KeySkybox             = "skybox"
	KeyTonemap            = "tonemap"
	FullscreenVertexEntry = "fullscreen_vertex"
)

// PostProcessFormat is the colour format the aerial perspective pass renders to.
const PostProcessFormat = wgpu.TextureFormatRGBA16Float

// Kernel describes one device kernel.
type Kernel struct {
	Key    string
	Family pipeline_registry.Family
	Type   pipeline.PipelineType
	Source string

	// Entry is the compute entry point, or the fragment entry point of a render kernel.
	Entry string
	// Vertex is the vertex entry point of a render kernel.
	Vertex string
}

// Kernels returns the kernels of a stage family in recording order.
//
// Parameters:
//   - family: the stage family
//
// Returns:
//   - []Kernel: the kernels, nil for an unknown family
func Kernels(family pipeline_registry.Family) []Kernel {
	compute := func(key, source string) Kernel {
		return Kernel{Key: key, Family: family, Type: pipeline.PipelineTypeCompute, Source: source, Entry: key}
	}
	switch family {
	case pipeline_registry.FamilyLUT:
		return []Kernel{
			compute(KeyTransmittance, ComputeLUTsSource),
			compute(KeyMultipleScattering, ComputeLUTsSource),
			compute(KeySunTransmittance, ComputeLUTsSource),
		}
	case pipeline_registry.FamilyRadiance:
		return []Kernel{
			compute(KeySpecularRadiance, RadianceMapsSource),
			compute(KeyDiffuseRadiance, RadianceMapsSource),
		}
	case pipeline_registry.FamilyPostProcess:
		return []Kernel{{
			Key:    KeyAerialPerspective,
			Family: family,
			Type:   pipeline.PipelineTypeRender,
			Source: PostProcessSource,
			Entry:  KeyAerialPerspective,
			Vertex: FullscreenVertexEntry,
		}}
	default:
		return nil
	}
}

// Shaders parses the kernel source into the shaders its pipeline needs.
//
// Returns:
//   - []shader.Shader: the compute shader, or the vertex and fragment shaders
//   - error: a pre-processing or entry point error
func (k Kernel) Shaders() ([]shader.Shader, error) {
	include := shader.WithInclude(IncludeAtmosphereFunctions, AtmosphereFunctionsSource)
	if k.Type == pipeline.PipelineTypeCompute {
		s, err := shader.NewShader(k.Key, shader.ShaderTypeCompute, k.Source, include, shader.WithEntryPoint(k.Entry))
		if err != nil {
			return nil, err
		}
		return []shader.Shader{s}, nil
	}
	vs, err := shader.NewShader(k.Key+"_vs", shader.ShaderTypeVertex, k.Source, include, shader.WithEntryPoint(k.Vertex))
	if err != nil {
		return nil, err
	}
	fs, err := shader.NewShader(k.Key+"_fs", shader.ShaderTypeFragment, k.Source, include, shader.WithEntryPoint(k.Entry))
	if err != nil {
		return nil, err
	}
	return []shader.Shader{vs, fs}, nil
}

// Pipeline builds the kernel's pipeline description against its family layouts.
//
// Returns:
//   - pipeline.Pipeline: the uncompiled pipeline
//   - error: an error if the source cannot be parsed
func (k Kernel) Pipeline() (pipeline.Pipeline, error) {
	shaders, err := k.Shaders()
	if err != nil {
		return nil, fmt.Errorf("kernel %s: %w", k.Key, err)
	}
	var descs []wgpu.BindGroupLayoutDescriptor
	for _, l := range k.Family.Layouts() {
		descs = append(descs, l.Descriptor())
	}
	opts := []pipeline.PipelineBuilderOption{
		pipeline.WithBindGroupLayouts(descs...),
		pipeline.WithShaders(shaders...),
	}
	if k.Type == pipeline.PipelineTypeRender {
		opts = append(opts, pipeline.WithColorFormat(PostProcessFormat))
	}
	return pipeline.NewPipeline(k.Key, k.Type, opts...), nil
}

// Pipelines builds every kernel of a family.
//
// Parameters:
//   - family: the stage family
//
// Returns:
//   - []pipeline.Pipeline: the pipelines in recording order
//   - error: the first kernel that failed to parse
func Pipelines(family pipeline_registry.Family) ([]pipeline.Pipeline, error) {
	ks := Kernels(family)
	out := make([]pipeline.Pipeline, 0, len(ks))
	for _, k := range ks {
		p, err := k.Pipeline()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
