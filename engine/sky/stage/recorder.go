package stage

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
)

// SamplerKind selects one of the recorder's shared samplers.
type SamplerKind int

const (
	// SamplerNonFiltering is a nearest, clamp-to-edge sampler usable with unfilterable float textures.
	SamplerNonFiltering SamplerKind = iota
	// SamplerComparison is the shadow comparison sampler (compare less).
	SamplerComparison
)

func (k SamplerKind) String() string {
	if k == SamplerComparison {
		return "comparison"
	}
	return "non_filtering"
}

// Binding is the resource bound at one slot.
type Binding struct {
	Binding uint32
	Kind    pipeline_registry.SlotKind

	// Uniform is the uniform key for SlotUniform.
	Uniform string
	// Texture is the texture for texture and storage slots.
	Texture resource_set.Texture
	// Sampler is the sampler for sampler slots.
	Sampler SamplerKind
}

// BindGroup is a filled layout.
type BindGroup struct {
	Layout   pipeline_registry.Layout
	Bindings []Binding
}

// Signature identifies the resources of the group. Two groups with the same signature can
// share one GPU bind group.
func (g BindGroup) Signature() string {
	var sb strings.Builder
	sb.WriteString(g.Layout.Label)
	for _, b := range g.Bindings {
		fmt.Fprintf(&sb, "|%d:", b.Binding)
		switch {
		case b.Kind == pipeline_registry.SlotUniform:
			sb.WriteString(b.Uniform)
		case b.Kind.IsSampler():
			sb.WriteString(b.Sampler.String())
		default:
			fmt.Fprintf(&sb, "%s@%p", b.Texture.Spec().Label, b.Texture)
		}
	}
	return sb.String()
}

// Dispatch is one compute dispatch.
type Dispatch struct {
	Pass       string
	Pipeline   pipeline.Pipeline
	Groups     []BindGroup
	Workgroups [3]uint32
}

// Copy is one texture-to-texture copy. Origins and extent are (x, y, layer).
type Copy struct {
	Pass              string
	Source            resource_set.Texture
	SourceOrigin      [3]uint32
	Destination       resource_set.Texture
	DestinationOrigin [3]uint32
	Extent            [3]uint32
}

// Draw is one fullscreen triangle drawn into a colour target.
type Draw struct {
	Pass     string
	Pipeline pipeline.Pipeline
	Groups   []BindGroup
	Target   resource_set.Texture
	Vertices uint32
}

// Recorder appends GPU work to the single ordered command stream of a frame. Work executes
// in the order it is recorded.
type Recorder interface {
	// WriteUniform queues the contents of a uniform buffer. Writes land before any work
	// recorded in the same frame executes.
	//
	// Parameters:
	//   - key: the uniform key bindings refer to
	//   - data: the marshalled uniform
	//
	// Returns:
	//   - error: an error if the buffer could not be created
	WriteUniform(key string, data []byte) error

	// Dispatch records a compute dispatch.
	Dispatch(d Dispatch) error

	// CopyTexture records a texture-to-texture copy.
	CopyTexture(c Copy) error

	// DrawFullscreen records a render pass drawing a fullscreen triangle.
	DrawFullscreen(d Draw) error
}
