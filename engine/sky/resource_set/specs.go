package resource_set

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

const (
	// TileSize is the width and height of the compute workgroups writing LUTs and atlases.
	TileSize = 8
	// DefaultFaceSize is the edge length in texels of each radiance cubemap face.
	DefaultFaceSize = 256
	// CubeFaces is the number of faces in a cubemap and of slices in an atlas.
	CubeFaces = 6

	TransmittanceWidth     = 256
	TransmittanceHeight    = 64
	MultipleScatteringSize = 32
	CloudVolumeSize        = 32
)

// LUTFormat is the texel format of every LUT, atlas and cubemap.
const LUTFormat = wgpu.TextureFormatRGBA32Float

// BuildSpecs returns the description of every texture the ResourceSet owns for a face size,
// in the order of Keys.
//
// Parameters:
//   - faceSize: the cubemap face edge length in texels
//
// Returns:
//   - []TextureSpec: one spec per key
func BuildSpecs(faceSize uint32) []TextureSpec {
	lut := wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc
	input := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst
	atlas := wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc
	cube := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst

	flat := func(key TextureKey, w, h uint32, usage wgpu.TextureUsage, tiled bool) TextureSpec {
		return TextureSpec{
			Key:                key,
			Label:              key.String(),
			Width:              w,
			Height:             h,
			DepthOrArrayLayers: 1,
			Dimension:          wgpu.TextureDimension2D,
			ViewDimension:      wgpu.TextureViewDimension2D,
			Format:             LUTFormat,
			Usage:              usage,
			Tiled:              tiled,
		}
	}
	cubemap := func(key TextureKey) TextureSpec {
		return TextureSpec{
			Key:                key,
			Label:              key.String(),
			Width:              faceSize,
			Height:             faceSize,
			DepthOrArrayLayers: CubeFaces,
			Dimension:          wgpu.TextureDimension2D,
			ViewDimension:      wgpu.TextureViewDimensionCube,
			Format:             LUTFormat,
			Usage:              cube,
		}
	}

	return []TextureSpec{
		flat(TextureKeyTransmittance, TransmittanceWidth, TransmittanceHeight, lut, true),
		flat(TextureKeyMultipleScattering, MultipleScatteringSize, MultipleScatteringSize, lut, true),
		flat(TextureKeySunTransmittance, 1, 1, lut, false),
		{
			Key:                TextureKeyCloudVolume,
			Label:              TextureKeyCloudVolume.String(),
			Width:              CloudVolumeSize,
			Height:             CloudVolumeSize,
			DepthOrArrayLayers: CloudVolumeSize,
			Dimension:          wgpu.TextureDimension3D,
			ViewDimension:      wgpu.TextureViewDimension3D,
			Format:             LUTFormat,
			Usage:              input,
		},
		flat(TextureKeyPlaceholder, 1, 1, input, false),
		flat(TextureKeyDiffuseAtlas, faceSize, faceSize*CubeFaces, atlas, true),
		cubemap(TextureKeyDiffuseCubemap),
		flat(TextureKeySpecularAtlas, faceSize, faceSize*CubeFaces, atlas, true),
		cubemap(TextureKeySpecularCubemap),
	}
}

// Validate checks that every tiled texture is covered exactly by TileSize×TileSize
// workgroups and that every atlas stacks CubeFaces faces of its cubemap's size.
// A violation is a configuration error and must stop startup.
//
// Parameters:
//   - specs: the texture descriptions to check
//
// Returns:
//   - error: ErrTileMisaligned or ErrAtlasShape describing the first violation
func Validate(specs []TextureSpec) error {
	byKey := make(map[TextureKey]TextureSpec, len(specs))
	for _, s := range specs {
		byKey[s.Key] = s
		if s.Width == 0 || s.Height == 0 {
			return fmt.Errorf("%w: %s has a zero extent", ErrTileMisaligned, s.Label)
		}
		if s.Tiled && (s.Width%TileSize != 0 || s.Height%TileSize != 0) {
			return fmt.Errorf("%w: %s is %dx%d, tile is %dx%d", ErrTileMisaligned, s.Label, s.Width, s.Height, TileSize, TileSize)
		}
	}
	for _, pair := range [][2]TextureKey{
		{TextureKeyDiffuseAtlas, TextureKeyDiffuseCubemap},
		{TextureKeySpecularAtlas, TextureKeySpecularCubemap},
	} {
		atlas, okA := byKey[pair[0]]
		cube, okC := byKey[pair[1]]
		if !okA || !okC {
			continue
		}
		if atlas.Width != cube.Width || atlas.Height != cube.Width*CubeFaces || cube.Width != cube.Height || cube.DepthOrArrayLayers != CubeFaces {
			return fmt.Errorf("%w: %s is %dx%d for %dx%dx%d faces", ErrAtlasShape, atlas.Label, atlas.Width, atlas.Height, cube.Width, cube.Height, cube.DepthOrArrayLayers)
		}
	}
	return nil
}
