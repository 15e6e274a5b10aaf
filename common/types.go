// Package common holds small helpers shared across the engine: projection math, GPU byte
// packing, key codes and sampler configuration.
package common

import (
	"cmp"

	"github.com/cogentcore/webgpu/wgpu"
)

// SamplerConfig describes a sampler before it is created on the device. Zero fields take
// the defaults the sky textures are sampled with: clamp-to-edge addressing, nearest filtering
// and no anisotropy.
//
// Address modes are pointers because wgpu.AddressModeRepeat is the zero value; nil selects
// clamp-to-edge.
type SamplerConfig struct {
	Label string

	AddressModeU, AddressModeV, AddressModeW *wgpu.AddressMode
	MagFilter, MinFilter                     wgpu.FilterMode
	MipmapFilter                             wgpu.MipmapFilterMode
	LodMinClamp, LodMaxClamp                 float32

	// Compare turns the sampler into a comparison sampler, used for shadow map lookups.
	Compare       wgpu.CompareFunction
	MaxAnisotropy uint16
}

// Descriptor fills the defaults in and returns the device descriptor.
func (c SamplerConfig) Descriptor() *wgpu.SamplerDescriptor {
	return &wgpu.SamplerDescriptor{
		Label:         c.Label,
		AddressModeU:  addressMode(c.AddressModeU),
		AddressModeV:  addressMode(c.AddressModeV),
		AddressModeW:  addressMode(c.AddressModeW),
		MagFilter:     c.MagFilter,
		MinFilter:     c.MinFilter,
		MipmapFilter:  c.MipmapFilter,
		LodMinClamp:   c.LodMinClamp,
		LodMaxClamp:   cmp.Or(c.LodMaxClamp, 32),
		Compare:       c.Compare,
		MaxAnisotropy: cmp.Or(c.MaxAnisotropy, 1),
	}
}

// AddressMode returns a pointer to mode for use in SamplerConfig.
func AddressMode(mode wgpu.AddressMode) *wgpu.AddressMode {
	return &mode
}

func addressMode(mode *wgpu.AddressMode) wgpu.AddressMode {
	if mode == nil {
		return wgpu.AddressModeClampToEdge
	}
	return *mode
}
