package light

import (
	_ "embed"
	"encoding/binary"

	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/go-gl/mathgl/mgl32"
)

// GPUDirectionalLightSource is the canonical WGSL definition of the DirectionalLight struct.
// Matches DirectionalLightUniform layout exactly (112 bytes, uniform aligned).
//
//go:embed assets/directional_light.wgsl
var GPUDirectionalLightSource string

// DirectionalLightSize is the size in bytes of the DirectionalLight uniform.
const DirectionalLightSize = 112

// DirectionalLightUniform is the light data bound next to the shadow map in the
// aerial perspective composite.
//
// Layout:
//
//	mat4x4<f32> light_vp      (offset   0)
//	vec3<f32>   direction     (offset  64)
//	f32         intensity     (offset  76)
//	vec3<f32>   color         (offset  80)
//	f32         shadow_bias   (offset  92)
//	vec2<f32>   texel_size    (offset  96)
//	f32         normal_bias   (offset 104)
//	u32         shadow_layers (offset 108)
type DirectionalLightUniform struct {
	LightVP      mgl32.Mat4
	Direction    mgl32.Vec3
	Intensity    float32
	Color        mgl32.Vec3
	ShadowBias   float32
	TexelSize    mgl32.Vec2
	NormalBias   float32
	ShadowLayers uint32
}

// Size returns the size of the DirectionalLightUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (112)
func (u *DirectionalLightUniform) Size() int {
	return DirectionalLightSize
}

// Marshal serializes the uniform into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 112-byte buffer ready for GPU upload
func (u *DirectionalLightUniform) Marshal() []byte {
	buf := make([]byte, DirectionalLightSize)
	common.PutMat4(buf, 0, u.LightVP)
	common.PutVec3(buf, 64, u.Direction)
	common.PutFloat32(buf, 76, u.Intensity)
	common.PutVec3(buf, 80, u.Color)
	common.PutFloat32(buf, 92, u.ShadowBias)
	common.PutFloat32(buf, 96, u.TexelSize[0])
	common.PutFloat32(buf, 100, u.TexelSize[1])
	common.PutFloat32(buf, 104, u.NormalBias)
	binary.LittleEndian.PutUint32(buf[108:112], u.ShadowLayers)
	return buf
}
