package pipeline_registry

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// SlotKind is the kind of resource bound at one slot of a Layout.
type SlotKind int

const (
	SlotUniform SlotKind = iota
	SlotTexture2D
	SlotTexture3D
	SlotSampler
	SlotComparisonSampler
	SlotDepthTexture2D
	SlotDepthTexture2DArray
	SlotStorageTexture2D
	SlotTextureCube
)

var slotKindNames = map[SlotKind]string{
	SlotUniform:             "uniform",
	SlotTexture2D:           "texture_2d",
	SlotTexture3D:           "texture_3d",
	SlotSampler:             "sampler",
	SlotComparisonSampler:   "sampler_comparison",
	SlotDepthTexture2D:      "texture_depth_2d",
	SlotDepthTexture2DArray: "texture_depth_2d_array",
	SlotStorageTexture2D:    "texture_storage_2d",
	SlotTextureCube:         "texture_cube",
}

func (k SlotKind) String() string {
	if name, ok := slotKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("slot(%d)", int(k))
}

// IsTexture reports whether the slot binds a texture view.
func (k SlotKind) IsTexture() bool {
	switch k {
	case SlotTexture2D, SlotTexture3D, SlotTextureCube, SlotDepthTexture2D, SlotDepthTexture2DArray, SlotStorageTexture2D:
		return true
	}
	return false
}

// IsSampler reports whether the slot binds a sampler.
func (k SlotKind) IsSampler() bool {
	return k == SlotSampler || k == SlotComparisonSampler
}

// Slot is one binding of a Layout.
type Slot struct {
	Binding uint32
	// Name is the WGSL variable bound at the slot.
	Name string
	Kind SlotKind
}

// Layout is the fixed, ordered parameter set of one bind group shared by every kernel of a
// stage family. Kernels that leave a slot unused still bind something there, usually the
// placeholder texture, so the layout never varies between kernels.
type Layout struct {
	Label      string
	Group      uint32
	Visibility wgpu.ShaderStage
	Slots      []Slot
}

// Slot returns the slot bound at an index.
//
// Parameters:
//   - binding: the binding index
//
// Returns:
//   - Slot: the slot
//   - bool: false if the layout has no such binding
func (l Layout) Slot(binding uint32) (Slot, bool) {
	for _, s := range l.Slots {
		if s.Binding == binding {
			return s, true
		}
	}
	return Slot{}, false
}

// Descriptor builds the WebGPU bind group layout descriptor. 32-bit float textures are not
// filterable without an optional device feature, so sampled float textures are declared
// unfilterable and samplers non-filtering.
//
// Returns:
//   - wgpu.BindGroupLayoutDescriptor: the descriptor
func (l Layout) Descriptor() wgpu.BindGroupLayoutDescriptor {
	desc := wgpu.BindGroupLayoutDescriptor{Label: l.Label}
	for _, s := range l.Slots {
		entry := wgpu.BindGroupLayoutEntry{Binding: s.Binding, Visibility: l.Visibility}
		switch s.Kind {
		case SlotUniform:
			entry.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}
		case SlotTexture2D:
			entry.Texture = wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
				ViewDimension: wgpu.TextureViewDimension2D,
			}
		case SlotTexture3D:
			entry.Texture = wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
				ViewDimension: wgpu.TextureViewDimension3D,
			}
		case SlotTextureCube:
			entry.Texture = wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
				ViewDimension: wgpu.TextureViewDimensionCube,
			}
		case SlotDepthTexture2D:
			entry.Texture = wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeDepth,
				ViewDimension: wgpu.TextureViewDimension2D,
			}
		case SlotDepthTexture2DArray:
			entry.Texture = wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeDepth,
				ViewDimension: wgpu.TextureViewDimension2DArray,
			}
		case SlotSampler:
			entry.Sampler = wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeNonFiltering}
		case SlotComparisonSampler:
			entry.Sampler = wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeComparison}
		case SlotStorageTexture2D:
			entry.StorageTexture = wgpu.StorageTextureBindingLayout{
				Access:        wgpu.StorageTextureAccessWriteOnly,
				Format:        wgpu.TextureFormatRGBA32Float,
				ViewDimension: wgpu.TextureViewDimension2D,
			}
		}
		desc.Entries = append(desc.Entries, entry)
	}
	return desc
}

// Matches checks a bind group layout, usually one reflected from kernel source, against the
// layout. Every binding of desc must exist in the layout with the same kind; slots desc does
// not mention are allowed. Sample and sampler filtering types are not compared because
// reflection cannot know them.
//
// Parameters:
//   - desc: the descriptor to check
//
// Returns:
//   - error: ErrLayoutMismatch describing the first difference
func (l Layout) Matches(desc wgpu.BindGroupLayoutDescriptor) error {
	for _, entry := range desc.Entries {
		slot, ok := l.Slot(entry.Binding)
		if !ok {
			return fmt.Errorf("%w: %s has no binding %d", ErrLayoutMismatch, l.Label, entry.Binding)
		}
		kind, ok := KindOf(entry)
		if !ok {
			return fmt.Errorf("%w: %s binding %d has an unsupported resource type", ErrLayoutMismatch, l.Label, entry.Binding)
		}
		if kind != slot.Kind {
			return fmt.Errorf("%w: %s binding %d (%s) is %s, declared %s", ErrLayoutMismatch, l.Label, entry.Binding, slot.Name, kind, slot.Kind)
		}
	}
	return nil
}

// KindOf classifies a bind group layout entry.
//
// Parameters:
//   - entry: the layout entry
//
// Returns:
//   - SlotKind: the slot kind
//   - bool: false if the entry binds a resource no Layout uses
func KindOf(entry wgpu.BindGroupLayoutEntry) (SlotKind, bool) {
	switch {
	case entry.Buffer.Type == wgpu.BufferBindingTypeUniform:
		return SlotUniform, true
	case entry.Sampler.Type == wgpu.SamplerBindingTypeComparison:
		return SlotComparisonSampler, true
	case entry.Sampler.Type != wgpu.SamplerBindingTypeUndefined:
		return SlotSampler, true
	case entry.StorageTexture.Access != wgpu.StorageTextureAccessUndefined:
		if entry.StorageTexture.ViewDimension == wgpu.TextureViewDimension2D {
			return SlotStorageTexture2D, true
		}
	case entry.Texture.SampleType == wgpu.TextureSampleTypeDepth:
		switch entry.Texture.ViewDimension {
		case wgpu.TextureViewDimension2D:
			return SlotDepthTexture2D, true
		case wgpu.TextureViewDimension2DArray:
			return SlotDepthTexture2DArray, true
		}
	case entry.Texture.SampleType != wgpu.TextureSampleTypeUndefined:
		switch entry.Texture.ViewDimension {
		case wgpu.TextureViewDimension2D:
			return SlotTexture2D, true
		case wgpu.TextureViewDimension3D:
			return SlotTexture3D, true
		case wgpu.TextureViewDimensionCube:
			return SlotTextureCube, true
		}
	}
	return 0, false
}
