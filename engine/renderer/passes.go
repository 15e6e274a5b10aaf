package renderer

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/kernels"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/scheduler"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/stage"
	"github.com/cogentcore/webgpu/wgpu"
)

const (
	// SceneFormat is the HDR format of every view's colour and post-process targets.
	SceneFormat = kernels.PostProcessFormat
	// DepthFormat is the format of the view depth and the shadow map.
	DepthFormat = wgpu.TextureFormatDepth32Float
	// ShadowMapSize is the edge length of the directional light's shadow map.
	ShadowMapSize = 512

	// UniformTonemapParameters is the atmosphere parameters with the renderer's exposure applied.
	UniformTonemapParameters = "tonemap_parameters"

	// TonemapPass is the name of the final pass to the swap chain.
	TonemapPass = "tonemap"

	fullscreenVertices = 3
)

// SkyboxPass names the skybox pass of a view.
func SkyboxPass(view string) string {
	return "skybox/" + view
}

// SkyboxLayout is the bind group of the skybox: the view, the specular cubemap and the sun
// transmittance.
func SkyboxLayout() pipeline_registry.Layout {
	return pipeline_registry.Layout{
		Label:      "skybox_layout",
		Group:      0,
		Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
		Slots: []pipeline_registry.Slot{
			{Binding: 0, Name: "view", Kind: pipeline_registry.SlotUniform},
			{Binding: 1, Name: "environment", Kind: pipeline_registry.SlotTextureCube},
			{Binding: 2, Name: "environment_sampler", Kind: pipeline_registry.SlotSampler},
			{Binding: 3, Name: "params", Kind: pipeline_registry.SlotUniform},
			{Binding: 4, Name: "sun_transmittance_lut", Kind: pipeline_registry.SlotTexture2D},
		},
	}
}

// TonemapLayout is the bind group of the tonemap pass.
func TonemapLayout() pipeline_registry.Layout {
	return pipeline_registry.Layout{
		Label:      "tonemap_layout",
		Group:      0,
		Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
		Slots: []pipeline_registry.Slot{
			{Binding: 0, Name: "params", Kind: pipeline_registry.SlotUniform},
			{Binding: 1, Name: "hdr", Kind: pipeline_registry.SlotTexture2D},
			{Binding: 2, Name: "hdr_sampler", Kind: pipeline_registry.SlotSampler},
		},
	}
}

// fullscreenPipeline builds a fullscreen render pipeline from a source holding the shared
// vertex entry and a fragment entry named after the key. The reflected layout of both stages
// must match the declared layout.
func fullscreenPipeline(key, source string, layout pipeline_registry.Layout, format wgpu.TextureFormat) (pipeline.Pipeline, error) {
	vs, err := shader.NewShader(key+"_vs", shader.ShaderTypeVertex, source, shader.WithEntryPoint(kernels.FullscreenVertexEntry))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	fs, err := shader.NewShader(key+"_fs", shader.ShaderTypeFragment, source, shader.WithEntryPoint(key))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if err := layout.Matches(fs.BindGroupLayoutDescriptor(int(layout.Group))); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return pipeline.NewPipeline(key, pipeline.PipelineTypeRender,
		pipeline.WithShaders(vs, fs),
		pipeline.WithBindGroupLayouts(layout.Descriptor()),
		pipeline.WithColorFormat(format),
	), nil
}

// SkyboxPipeline builds the skybox pipeline rendering into the HDR scene colour.
func SkyboxPipeline() (pipeline.Pipeline, error) {
	return fullscreenPipeline(kernels.KeySkybox, kernels.SkyboxSource, SkyboxLayout(), SceneFormat)
}

// TonemapPipeline builds the tonemap pipeline rendering into the swap chain.
//
// Parameters:
//   - format: the surface format
//
// Returns:
//   - pipeline.Pipeline: the uncompiled pipeline
//   - error: a parse or layout error
func TonemapPipeline(format wgpu.TextureFormat) (pipeline.Pipeline, error) {
	return fullscreenPipeline(kernels.KeyTonemap, kernels.TonemapSource, TonemapLayout(), format)
}

// depthClearer is implemented by recorders that can clear depth attachments.
type depthClearer interface {
	ClearDepth(target resource_set.Texture) error
}

// MainPass draws the skybox into every view's scene colour and clears the view depth and
// shadow map, standing in for scene geometry.
func (r *renderer) MainPass(environment func() (sky.Environment, error)) scheduler.Hook {
	return func(fc *stage.FrameContext, rec stage.Recorder, _ scheduler.FrameReport) error {
		skybox := r.Pipeline(kernels.KeySkybox)
		if skybox == nil {
			return fmt.Errorf("%s: %w", kernels.KeySkybox, ErrNotCompiled)
		}
		for _, view := range fc.Views {
			if c, ok := rec.(depthClearer); ok {
				for _, t := range []resource_set.Texture{view.Depth, view.ShadowMap} {
					if t == nil {
						continue
					}
					if err := c.ClearDepth(t); err != nil {
						return err
					}
				}
			}
		}

		env, err := environment()
		if errors.Is(err, resource_set.ErrAbsent) {
			logger.Debugf("frame %d: no environment, skybox skipped", fc.Frame)
			return nil
		}
		if err != nil {
			return err
		}
		sunTransmittance, err := fc.Resources.Texture(resource_set.TextureKeySunTransmittance)
		if errors.Is(err, resource_set.ErrAbsent) {
			logger.Debugf("frame %d: no sun transmittance, skybox skipped", fc.Frame)
			return nil
		}
		if err != nil {
			return err
		}

		for _, view := range fc.Views {
			if view.Color == nil {
				continue
			}
			viewKey := stage.ViewUniformKey(view.Label)
			if err := rec.WriteUniform(viewKey, view.Uniform.Marshal()); err != nil {
				return err
			}
			err := rec.DrawFullscreen(stage.Draw{
				Pass:     SkyboxPass(view.Label),
				Pipeline: skybox,
				Groups: []stage.BindGroup{{
					Layout: SkyboxLayout(),
					Bindings: []stage.Binding{
						{Binding: 0, Kind: pipeline_registry.SlotUniform, Uniform: viewKey},
						{Binding: 1, Kind: pipeline_registry.SlotTextureCube, Texture: env.Specular},
						{Binding: 2, Kind: pipeline_registry.SlotSampler, Sampler: stage.SamplerNonFiltering},
						{Binding: 3, Kind: pipeline_registry.SlotUniform, Uniform: stage.UniformParameters},
						{Binding: 4, Kind: pipeline_registry.SlotTexture2D, Texture: sunTransmittance},
					},
				}},
				Target:   view.Color,
				Vertices: fullscreenVertices,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}
}

// Tonemapping maps the first view to the swap chain. It reads the post-processed target when
// the aerial perspective pass recorded this frame and the raw scene colour otherwise.
func (r *renderer) Tonemapping() scheduler.Hook {
	return func(fc *stage.FrameContext, rec stage.Recorder, report scheduler.FrameReport) error {
		if len(fc.Views) == 0 {
			return nil
		}
		target := r.frameTarget()
		if target == nil {
			return ErrNoFrame
		}
		tonemap := r.Pipeline(kernels.KeyTonemap)
		if tonemap == nil {
			return fmt.Errorf("%s: %w", kernels.KeyTonemap, ErrNotCompiled)
		}

		view := fc.Views[0]
		source := view.Color
		if outcome, ok := report.Outcome(stage.PostProcessPass(view.Label)); ok && outcome == stage.OutcomeRecorded {
			source = view.Target
		}
		if source == nil {
			return nil
		}

		params := fc.Snapshot.Parameters
		params.Exposure *= r.Exposure()
		if err := rec.WriteUniform(UniformTonemapParameters, params.Marshal()); err != nil {
			return err
		}
		return rec.DrawFullscreen(stage.Draw{
			Pass:     TonemapPass,
			Pipeline: tonemap,
			Groups: []stage.BindGroup{{
				Layout: TonemapLayout(),
				Bindings: []stage.Binding{
					{Binding: 0, Kind: pipeline_registry.SlotUniform, Uniform: UniformTonemapParameters},
					{Binding: 1, Kind: pipeline_registry.SlotTexture2D, Texture: source},
					{Binding: 2, Kind: pipeline_registry.SlotSampler, Sampler: stage.SamplerNonFiltering},
				},
			}},
			Target:   target,
			Vertices: fullscreenVertices,
		})
	}
}
