package pipeline

import (
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithShaders attaches shaders by their stage: a compute shader for compute pipelines, a
// vertex and a fragment shader for render pipelines. A later shader of the same stage
// replaces an earlier one.
//
// Parameters:
//   - shaders: the stage shaders
//
// Returns:
//   - PipelineBuilderOption: a function that attaches the shaders
func WithShaders(shaders ...shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		for _, s := range shaders {
			switch s.ShaderType() {
			case shader.ShaderTypeVertex:
				p.vertexShader = s
			case shader.ShaderTypeFragment:
				p.fragmentShader = s
			case shader.ShaderTypeCompute:
				p.computeShader = s
			}
		}
	}
}

// WithBindGroupLayouts pins the bind group layouts, indexed by group. Kernels sharing a layout
// are compiled against the same descriptors even when a kernel leaves some bindings unused.
//
// Parameters:
//   - layouts: the layout descriptors, one per group
//
// Returns:
//   - PipelineBuilderOption: a function that sets the explicit layouts
func WithBindGroupLayouts(layouts ...wgpu.BindGroupLayoutDescriptor) PipelineBuilderOption {
	return func(p *pipeline) {
		p.layoutDescriptors = layouts
	}
}

// WithColorFormat sets the render target format of a render pipeline.
func WithColorFormat(format wgpu.TextureFormat) PipelineBuilderOption {
	return func(p *pipeline) {
		p.colorFormat = format
	}
}
