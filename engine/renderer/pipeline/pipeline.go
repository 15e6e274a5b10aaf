package pipeline

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a fullscreen render pipeline with vertex and fragment entry points.
	PipelineTypeRender
)

// String returns a short name for the pipeline type.
func (t PipelineType) String() string {
	if t == PipelineTypeRender {
		return "render"
	}
	return "compute"
}

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	pipelineType PipelineType
	pipelineKey  string

	vertexShader, fragmentShader, computeShader shader.Shader

	// layoutDescriptors are the explicit bind group layouts, indexed by group. When empty the
	// compiler falls back to the layouts reflected from the shaders.
	layoutDescriptors []wgpu.BindGroupLayoutDescriptor

	colorFormat wgpu.TextureFormat

	mu               sync.RWMutex
	bindGroupLayouts []*wgpu.BindGroupLayout
	pipelineLayout   *wgpu.PipelineLayout
	renderPipeline   *wgpu.RenderPipeline
	computePipeline  *wgpu.ComputePipeline
}

// Pipeline describes one compute kernel or one fullscreen render kernel together with the
// GPU objects created for it. The description is immutable; the GPU objects are attached once
// by the compiler and may be read from any goroutine afterwards.
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader retrieves the shader associated with the specified type if it exists, nil otherwise.
	//
	// Parameters:
	//   - shaderType: the type of shader to retrieve (vertex, fragment, or compute)
	//
	// Returns:
	//   - shader.Shader: the shader associated with the specified type, or nil if not set
	Shader(shaderType shader.ShaderType) shader.Shader

	// Shaders returns every shader set on the pipeline.
	Shaders() []shader.Shader

	// BindGroupLayoutDescriptors returns the bind group layouts the pipeline is created with,
	// indexed by group. Explicit layouts set with WithBindGroupLayouts win over reflected ones.
	//
	// Returns:
	//   - []wgpu.BindGroupLayoutDescriptor: the layout descriptors
	BindGroupLayoutDescriptors() []wgpu.BindGroupLayoutDescriptor

	// ColorFormat returns the render target format. Unused for compute pipelines.
	ColorFormat() wgpu.TextureFormat

	// Pipeline returns the underlying pipeline object, either *wgpu.RenderPipeline or *wgpu.ComputePipeline
	// Note: The caller is responsible for type asserting the returned value as either pipeline type.
	//
	// Returns:
	//   - any: the underlying pipeline object, nil before compilation
	Pipeline() any

	// Compiled reports whether the GPU pipeline object has been attached.
	Compiled() bool

	// BindGroupLayout returns the GPU bind group layout created for a group.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - *wgpu.BindGroupLayout: the layout, nil if not compiled or out of range
	BindGroupLayout(group int) *wgpu.BindGroupLayout

	// SetCompiled attaches the GPU objects produced by the compiler.
	//
	// Parameters:
	//   - layouts: the bind group layouts, indexed by group
	//   - pipelineLayout: the pipeline layout built from layouts
	//   - p: either *wgpu.RenderPipeline or *wgpu.ComputePipeline matching Type
	SetCompiled(layouts []*wgpu.BindGroupLayout, pipelineLayout *wgpu.PipelineLayout, p any)

	// Release frees the GPU objects and returns the pipeline to its uncompiled state.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline is the entry point to create a new Pipeline interface. A PipelineType must be specified and provided upon creation.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - pipelineType: the type of pipeline to create (render or compute)
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:  pipelineKey,
		pipelineType: pipelineType,
		colorFormat:  wgpu.TextureFormatRGBA16Float,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Shader(shaderType shader.ShaderType) shader.Shader {
	switch shaderType {
	case shader.ShaderTypeVertex:
		return p.vertexShader
	case shader.ShaderTypeFragment:
		return p.fragmentShader
	case shader.ShaderTypeCompute:
		return p.computeShader
	default:
		return nil
	}
}

func (p *pipeline) Shaders() []shader.Shader {
	var out []shader.Shader
	for _, s := range []shader.Shader{p.computeShader, p.vertexShader, p.fragmentShader} {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (p *pipeline) BindGroupLayoutDescriptors() []wgpu.BindGroupLayoutDescriptor {
	if len(p.layoutDescriptors) > 0 {
		return p.layoutDescriptors
	}
	return reflectedLayouts(p.Shaders())
}

func (p *pipeline) ColorFormat() wgpu.TextureFormat {
	return p.colorFormat
}

func (p *pipeline) Pipeline() any {
	p.mu.RLock()
	defer p.mu.RUnlock()

	switch p.pipelineType {
	case PipelineTypeRender:
		if p.renderPipeline == nil {
			return nil
		}
		return p.renderPipeline
	case PipelineTypeCompute:
		if p.computePipeline == nil {
			return nil
		}
		return p.computePipeline
	default:
		return nil
	}
}

func (p *pipeline) Compiled() bool {
	return p.Pipeline() != nil
}

func (p *pipeline) BindGroupLayout(group int) *wgpu.BindGroupLayout {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if group < 0 || group >= len(p.bindGroupLayouts) {
		return nil
	}
	return p.bindGroupLayouts[group]
}

func (p *pipeline) SetCompiled(layouts []*wgpu.BindGroupLayout, pipelineLayout *wgpu.PipelineLayout, compiled any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.bindGroupLayouts = layouts
	p.pipelineLayout = pipelineLayout
	switch v := compiled.(type) {
	case *wgpu.RenderPipeline:
		p.renderPipeline = v
	case *wgpu.ComputePipeline:
		p.computePipeline = v
	}
}

func (p *pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.renderPipeline != nil {
		p.renderPipeline.Release()
		p.renderPipeline = nil
	}
	if p.computePipeline != nil {
		p.computePipeline.Release()
		p.computePipeline = nil
	}
	if p.pipelineLayout != nil {
		p.pipelineLayout.Release()
		p.pipelineLayout = nil
	}
	for _, l := range p.bindGroupLayouts {
		if l != nil {
			l.Release()
		}
	}
	p.bindGroupLayouts = nil
}

// reflectedLayouts merges the reflected bind groups of every shader into one slice indexed by
// group. Entries of the same binding seen by several stages are merged by visibility.
func reflectedLayouts(shaders []shader.Shader) []wgpu.BindGroupLayoutDescriptor {
	maxGroup := -1
	for _, s := range shaders {
		for g := range s.BindGroupLayoutDescriptors() {
			maxGroup = max(maxGroup, g)
		}
	}
	out := make([]wgpu.BindGroupLayoutDescriptor, maxGroup+1)
	for g := range out {
		entries := map[uint32]wgpu.BindGroupLayoutEntry{}
		var order []uint32
		for _, s := range shaders {
			for _, e := range s.BindGroupLayoutDescriptor(g).Entries {
				if prev, ok := entries[e.Binding]; ok {
					prev.Visibility |= e.Visibility
					entries[e.Binding] = prev
					continue
				}
				entries[e.Binding] = e
				order = append(order, e.Binding)
			}
		}
		desc := wgpu.BindGroupLayoutDescriptor{}
		for _, b := range order {
			desc.Entries = append(desc.Entries, entries[b])
		}
		out[g] = desc
	}
	return out
}
