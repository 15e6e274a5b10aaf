package stage

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
)

// binder resolves the textures of one pass and remembers which were absent.
type binder struct {
	res     resource_set.ResourceSet
	missing []string
	err     error
}

func newBinder(ctx *FrameContext) *binder {
	return &binder{res: ctx.Resources}
}

// owned looks up a ResourceSet texture.
func (b *binder) owned(key resource_set.TextureKey) resource_set.Texture {
	if b.res == nil {
		b.note(key.String())
		return nil
	}
	tex, err := b.res.Texture(key)
	if err != nil {
		var absent *resource_set.AbsentError
		if errors.As(err, &absent) {
			b.note(absent.Resource)
		} else if b.err == nil {
			b.err = err
		}
		return nil
	}
	return tex
}

// external checks a renderer-owned texture.
func (b *binder) external(name string, tex resource_set.Texture) resource_set.Texture {
	if tex == nil {
		b.note(name)
	}
	return tex
}

func (b *binder) note(name string) {
	if !slices.Contains(b.missing, name) {
		b.missing = append(b.missing, name)
	}
}

// absent reports whether any texture was missing.
func (b *binder) absent() bool {
	return len(b.missing) > 0
}

// skip builds the report of a pass that could not record.
func (b *binder) skip(pass string) PassReport {
	logger.Debugf("%s skipped: %v absent", pass, b.missing)
	return PassReport{Pass: pass, Outcome: OutcomeAbsent, Missing: b.missing}
}

// atmosphereInputs binds the params uniform and the three LUT inputs shared by every layout.
// transmittance and multipleScattering name the textures bound at the LUT inputs; passes that
// produce one of them bind the placeholder there instead.
func (b *binder) atmosphereInputs(transmittance, multipleScattering resource_set.TextureKey) []Binding {
	return []Binding{
		uniform(pipeline_registry.BindingParams, UniformParameters),
		texture(pipeline_registry.BindingTransmittance, pipeline_registry.SlotTexture2D, b.owned(transmittance)),
		sampler(pipeline_registry.BindingTransmittanceSampler, SamplerNonFiltering),
		texture(pipeline_registry.BindingMultipleScattering, pipeline_registry.SlotTexture2D, b.owned(multipleScattering)),
		sampler(pipeline_registry.BindingMultipleScatteringSampler, SamplerNonFiltering),
		texture(pipeline_registry.BindingCloud, pipeline_registry.SlotTexture3D, b.owned(resource_set.TextureKeyCloudVolume)),
		sampler(pipeline_registry.BindingCloudSampler, SamplerNonFiltering),
	}
}

func uniform(binding uint32, key string) Binding {
	return Binding{Binding: binding, Kind: pipeline_registry.SlotUniform, Uniform: key}
}

func texture(binding uint32, kind pipeline_registry.SlotKind, tex resource_set.Texture) Binding {
	return Binding{Binding: binding, Kind: kind, Texture: tex}
}

func sampler(binding uint32, kind SamplerKind) Binding {
	slot := pipeline_registry.SlotSampler
	if kind == SamplerComparison {
		slot = pipeline_registry.SlotComparisonSampler
	}
	return Binding{Binding: binding, Kind: slot, Sampler: kind}
}

// assemble checks that bindings fill every slot of the layout exactly once with a resource
// of the slot's kind, and orders them by binding.
//
// Parameters:
//   - layout: the layout to fill
//   - bindings: the resources
//
// Returns:
//   - BindGroup: the filled group
//   - error: ErrBindingMismatch naming the first offending slot
func assemble(layout pipeline_registry.Layout, bindings []Binding) (BindGroup, error) {
	if len(bindings) != len(layout.Slots) {
		return BindGroup{}, fmt.Errorf("%w: %s has %d slots, got %d bindings", ErrBindingMismatch, layout.Label, len(layout.Slots), len(bindings))
	}
	byBinding := make(map[uint32]Binding, len(bindings))
	for _, b := range bindings {
		if _, dup := byBinding[b.Binding]; dup {
			return BindGroup{}, fmt.Errorf("%w: %s binding %d bound twice", ErrBindingMismatch, layout.Label, b.Binding)
		}
		byBinding[b.Binding] = b
	}

	group := BindGroup{Layout: layout, Bindings: make([]Binding, 0, len(layout.Slots))}
	for _, slot := range layout.Slots {
		b, ok := byBinding[slot.Binding]
		if !ok {
			return BindGroup{}, fmt.Errorf("%w: %s slot %d (%s) unbound", ErrBindingMismatch, layout.Label, slot.Binding, slot.Name)
		}
		if b.Kind != slot.Kind {
			return BindGroup{}, fmt.Errorf("%w: %s slot %d (%s) is %s, got %s", ErrBindingMismatch, layout.Label, slot.Binding, slot.Name, slot.Kind, b.Kind)
		}
		switch {
		case slot.Kind == pipeline_registry.SlotUniform && b.Uniform == "":
			return BindGroup{}, fmt.Errorf("%w: %s slot %d (%s) has no uniform key", ErrBindingMismatch, layout.Label, slot.Binding, slot.Name)
		case slot.Kind.IsTexture() && b.Texture == nil:
			return BindGroup{}, fmt.Errorf("%w: %s slot %d (%s) has no texture", ErrBindingMismatch, layout.Label, slot.Binding, slot.Name)
		}
		group.Bindings = append(group.Bindings, b)
	}
	return group, nil
}

// gate polls the registries a stage depends on.
type gate []pipeline_registry.Registry

// poll returns true once every registry is Ready.
func (g gate) poll() (bool, error) {
	ready := true
	for _, r := range g {
		state, err := r.Poll()
		if err != nil {
			return false, fmt.Errorf("%s kernels: %w", r.Family(), err)
		}
		if state != pipeline_registry.StateReady {
			ready = false
		}
	}
	return ready, nil
}

// ready reads the last polled state without polling again.
func (g gate) ready() bool {
	for _, r := range g {
		if r.State() != pipeline_registry.StateReady {
			return false
		}
	}
	return true
}
