package resource_set

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// TextureKey names a texture the sky pipeline binds.
type TextureKey int

const (
	// TextureKeyTransmittance is the 256×64 transmittance LUT indexed by height and view angle.
	TextureKeyTransmittance TextureKey = iota
	// TextureKeyMultipleScattering is the 32×32 multiple scattering LUT.
	TextureKeyMultipleScattering
	// TextureKeySunTransmittance is the 1×1 eye-to-sun transmittance.
	TextureKeySunTransmittance
	// TextureKeyCloudVolume is the 32³ cloud density input. No pass writes it yet.
	TextureKeyCloudVolume
	// TextureKeyPlaceholder is the 1×1 texture bound into unused slots of a shared layout.
	TextureKeyPlaceholder
	// TextureKeyDiffuseAtlas is the irradiance atlas, six faces stacked vertically.
	TextureKeyDiffuseAtlas
	// TextureKeyDiffuseCubemap is the irradiance cubemap filled from the diffuse atlas.
	TextureKeyDiffuseCubemap
	// TextureKeySpecularAtlas is the pre-filtered radiance atlas, six faces stacked vertically.
	TextureKeySpecularAtlas
	// TextureKeySpecularCubemap is the radiance cubemap filled from the specular atlas.
	TextureKeySpecularCubemap
	// TextureKeyExternal marks a texture owned by the renderer rather than the ResourceSet,
	// such as a view's colour or depth target.
	TextureKeyExternal
)

var textureKeyNames = map[TextureKey]string{
	TextureKeyTransmittance:      "transmittance_lut",
	TextureKeyMultipleScattering: "multiple_scattering_lut",
	TextureKeySunTransmittance:   "sun_transmittance_lut",
	TextureKeyCloudVolume:        "cloud_volume",
	TextureKeyPlaceholder:        "placeholder",
	TextureKeyDiffuseAtlas:       "diffuse_atlas",
	TextureKeyDiffuseCubemap:     "diffuse_cubemap",
	TextureKeySpecularAtlas:      "specular_atlas",
	TextureKeySpecularCubemap:    "specular_cubemap",
	TextureKeyExternal:           "external",
}

// String returns the texture's label.
func (k TextureKey) String() string {
	if name, ok := textureKeyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("texture(%d)", int(k))
}

// Keys returns every texture key the ResourceSet owns, in creation order.
func Keys() []TextureKey {
	return []TextureKey{
		TextureKeyTransmittance,
		TextureKeyMultipleScattering,
		TextureKeySunTransmittance,
		TextureKeyCloudVolume,
		TextureKeyPlaceholder,
		TextureKeyDiffuseAtlas,
		TextureKeyDiffuseCubemap,
		TextureKeySpecularAtlas,
		TextureKeySpecularCubemap,
	}
}

// TextureSpec describes a texture to allocate.
type TextureSpec struct {
	Key                TextureKey
	Label              string
	Width              uint32
	Height             uint32
	DepthOrArrayLayers uint32
	Dimension          wgpu.TextureDimension
	ViewDimension      wgpu.TextureViewDimension
	Format             wgpu.TextureFormat
	Usage              wgpu.TextureUsage

	// Tiled marks textures written by compute kernels in TileSize×TileSize workgroups.
	// Their width and height must be multiples of TileSize.
	Tiled bool
}

// Extent returns the full size of the texture.
func (s TextureSpec) Extent() wgpu.Extent3D {
	return wgpu.Extent3D{
		Width:              s.Width,
		Height:             s.Height,
		DepthOrArrayLayers: s.DepthOrArrayLayers,
	}
}

// Workgroups returns the dispatch grid that covers the texture: one workgroup per
// TileSize×TileSize tile for tiled textures, a single workgroup otherwise.
//
// Returns:
//   - [3]uint32: the workgroup counts as [x, y, z]
func (s TextureSpec) Workgroups() [3]uint32 {
	if !s.Tiled {
		return [3]uint32{1, 1, 1}
	}
	return [3]uint32{s.Width / TileSize, s.Height / TileSize, 1}
}

// Texture is an allocated texture and its default view.
type Texture interface {
	// Spec returns the description the texture was created from.
	Spec() TextureSpec

	// Texture returns the GPU texture, nil for textures without a device object.
	Texture() *wgpu.Texture

	// View returns the default view matching Spec().ViewDimension.
	View() *wgpu.TextureView

	// Release frees the GPU objects.
	Release()
}

// Allocator creates GPU textures. The WebGPU renderer implements it; tests use a fake.
type Allocator interface {
	// CreateTexture allocates a texture and its default view.
	//
	// Parameters:
	//   - spec: the texture description
	//
	// Returns:
	//   - Texture: the allocated texture
	//   - error: an error if the device rejected the texture
	CreateTexture(spec TextureSpec) (Texture, error)
}
