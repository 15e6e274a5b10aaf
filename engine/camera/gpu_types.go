package camera

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/go-gl/mathgl/mgl32"
)

// GPUViewSource is the canonical WGSL definition of the View struct.
// Matches ViewUniform layout exactly (176 bytes, uniform aligned).
//
//go:embed assets/view.wgsl
var GPUViewSource string

// ViewUniformSize is the size in bytes of the View uniform.
const ViewUniformSize = 176

// ViewUniform is the per-view data the sky passes read: the matrices needed to turn a
// pixel and its depth back into a world-space ray, plus the viewport it covers.
//
// Layout:
//
//	mat4x4<f32> view_proj         (offset   0)
//	mat4x4<f32> inverse_view_proj (offset  64)
//	vec3<f32>   world_position    (offset 128)
//	f32         near              (offset 140)
//	vec4<f32>   viewport          (offset 144)
//	f32         far               (offset 160)
//	f32         fov_y             (offset 164)
//	f32         aspect            (offset 168)
//	            padding to 176
type ViewUniform struct {
	ViewProj        mgl32.Mat4
	InverseViewProj mgl32.Mat4
	WorldPosition   mgl32.Vec3
	Near            float32
	Viewport        mgl32.Vec4
	Far             float32
	FovY            float32
	Aspect          float32
}

// Size returns the size of the ViewUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (176)
func (v *ViewUniform) Size() int {
	return ViewUniformSize
}

// Marshal serializes the ViewUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (v *ViewUniform) Marshal() []byte {
	buf := make([]byte, ViewUniformSize)
	common.PutMat4(buf, 0, v.ViewProj)
	common.PutMat4(buf, 64, v.InverseViewProj)
	common.PutVec3(buf, 128, v.WorldPosition)
	common.PutFloat32(buf, 140, v.Near)
	for i := range 4 {
		common.PutFloat32(buf, 144+i*4, v.Viewport[i])
	}
	common.PutFloat32(buf, 160, v.Far)
	common.PutFloat32(buf, 164, v.FovY)
	common.PutFloat32(buf, 168, v.Aspect)
	return buf
}
