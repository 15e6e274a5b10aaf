package common

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// glToWebGPU remaps OpenGL clip-space depth [-1, 1] to WebGPU's [0, 1].
// mgl32 builds OpenGL-style projections, so every projection handed to the
// GPU is pre-multiplied by this matrix.
var glToWebGPU = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// Perspective creates a perspective projection matrix for WebGPU clip space.
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near plane distance
//   - far: far plane distance
//
// Returns:
//   - mgl32.Mat4: the column-major projection matrix
func Perspective(fovY, aspect, near, far float32) mgl32.Mat4 {
	return glToWebGPU.Mul4(mgl32.Perspective(fovY, aspect, near, far))
}

// Ortho creates an orthographic projection matrix for WebGPU clip space.
//
// Parameters:
//   - left, right, bottom, top: the view volume extents
//   - near, far: the depth range
//
// Returns:
//   - mgl32.Mat4: the column-major projection matrix
func Ortho(left, right, bottom, top, near, far float32) mgl32.Mat4 {
	return glToWebGPU.Mul4(mgl32.Ortho(left, right, bottom, top, near, far))
}

// StableUp returns an up vector that is not parallel to dir.
func StableUp(dir mgl32.Vec3) mgl32.Vec3 {
	if math.Abs(float64(dir.Normalize().Y())) > 0.99 {
		return mgl32.Vec3{1, 0, 0}
	}
	return mgl32.Vec3{0, 1, 0}
}

// PutFloat32 writes v little-endian at byte offset off.
func PutFloat32(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
}

// Float32At reads a little-endian float32 at byte offset off.
func Float32At(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
}

// PutVec3 writes the three components of v starting at byte offset off.
func PutVec3(buf []byte, off int, v mgl32.Vec3) {
	for i := range 3 {
		PutFloat32(buf, off+i*4, v[i])
	}
}

// Vec3At reads three consecutive float32 values starting at byte offset off.
func Vec3At(buf []byte, off int) mgl32.Vec3 {
	return mgl32.Vec3{Float32At(buf, off), Float32At(buf, off+4), Float32At(buf, off+8)}
}

// PutMat4 writes the 16 column-major elements of m starting at byte offset off.
func PutMat4(buf []byte, off int, m mgl32.Mat4) {
	for i := range 16 {
		PutFloat32(buf, off+i*4, m[i])
	}
}

// Mat4At reads 16 column-major float32 elements starting at byte offset off.
func Mat4At(buf []byte, off int) mgl32.Mat4 {
	var m mgl32.Mat4
	for i := range 16 {
		m[i] = Float32At(buf, off+i*4)
	}
	return m
}
