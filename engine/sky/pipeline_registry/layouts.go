package pipeline_registry

import "github.com/cogentcore/webgpu/wgpu"

// Bindings shared by the LUT and Radiance layouts.
const (
	BindingParams                    = 0
	BindingTransmittance             = 1
	BindingTransmittanceSampler      = 2
	BindingMultipleScattering        = 3
	BindingMultipleScatteringSampler = 4
	BindingCloud                     = 5
	BindingCloudSampler              = 6
	BindingGlobals                   = 7

	// BindingLUTOutput is the storage texture written by a LUT kernel.
	BindingLUTOutput = 8

	// BindingSpecularInput is the specular atlas read by the diffuse kernel.
	BindingSpecularInput = 8
	// BindingRadianceOutput is the atlas written by a radiance kernel.
	BindingRadianceOutput = 9
)

// Bindings of the post-process primary group. 0 to 6 are shared with the LUT layout.
const (
	BindingView                = 7
	BindingSceneColor          = 8
	BindingSceneDepth          = 9
	BindingSceneColorSampler   = 10
	BindingPostProcessSettings = 11
)

// Bindings of the shadow group.
const (
	BindingShadowMap     = 0
	BindingShadowSampler = 1
	BindingLight         = 2
)

// atmosphereInputs are the params uniform and the three LUT inputs every layout starts with.
func atmosphereInputs() []Slot {
	return []Slot{
		{BindingParams, "params", SlotUniform},
		{BindingTransmittance, "transmittance_lut", SlotTexture2D},
		{BindingTransmittanceSampler, "transmittance_sampler", SlotSampler},
		{BindingMultipleScattering, "multiple_scattering_lut", SlotTexture2D},
		{BindingMultipleScatteringSampler, "multiple_scattering_sampler", SlotSampler},
		{BindingCloud, "cloud_volume", SlotTexture3D},
		{BindingCloudSampler, "cloud_sampler", SlotSampler},
	}
}

// LUTLayout is the 9-binding layout shared by the transmittance, multiple scattering and
// sun transmittance kernels.
func LUTLayout() Layout {
	slots := append(atmosphereInputs(),
		Slot{BindingGlobals, "globals", SlotUniform},
		Slot{BindingLUTOutput, "output", SlotStorageTexture2D},
	)
	return Layout{Label: "sky_lut_layout", Group: 0, Visibility: wgpu.ShaderStageCompute, Slots: slots}
}

// RadianceLayout is the 10-binding layout shared by the specular and diffuse radiance kernels.
func RadianceLayout() Layout {
	slots := append(atmosphereInputs(),
		Slot{BindingGlobals, "globals", SlotUniform},
		Slot{BindingSpecularInput, "specular_input", SlotTexture2D},
		Slot{BindingRadianceOutput, "output", SlotStorageTexture2D},
	)
	return Layout{Label: "sky_radiance_layout", Group: 0, Visibility: wgpu.ShaderStageCompute, Slots: slots}
}

// PostProcessLayout is the 12-binding primary group of the aerial perspective pass.
func PostProcessLayout() Layout {
	slots := append(atmosphereInputs(),
		Slot{BindingView, "view", SlotUniform},
		Slot{BindingSceneColor, "scene_color", SlotTexture2D},
		Slot{BindingSceneDepth, "scene_depth", SlotDepthTexture2D},
		Slot{BindingSceneColorSampler, "scene_sampler", SlotSampler},
		Slot{BindingPostProcessSettings, "settings", SlotUniform},
	)
	return Layout{
		Label:      "sky_post_process_layout",
		Group:      0,
		Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
		Slots:      slots,
	}
}

// ShadowLayout is the 3-binding secondary group of the aerial perspective pass, filled with the
// renderer's directional light and its shadow map.
func ShadowLayout() Layout {
	return Layout{
		Label:      "sky_shadow_layout",
		Group:      1,
		Visibility: wgpu.ShaderStageFragment,
		Slots: []Slot{
			{BindingShadowMap, "shadow_map", SlotDepthTexture2DArray},
			{BindingShadowSampler, "shadow_sampler", SlotComparisonSampler},
			{BindingLight, "light", SlotUniform},
		},
	}
}
