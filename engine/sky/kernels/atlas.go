package kernels

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// FaceDirection returns the direction through a point of a cube face, matching the
// radiance kernels. Faces follow WebGPU layer order +X, -X, +Y, -Y, +Z, -Z; u and v are in
// [-1, 1] with v pointing down the face.
//
// Parameters:
//   - face: the face index, 0 to 5
//   - u, v: the face coordinates
//
// Returns:
//   - mgl32.Vec3: the unit direction
func FaceDirection(face int, u, v float32) mgl32.Vec3 {
	var d mgl32.Vec3
	switch face {
	case 0:
		d = mgl32.Vec3{1, -v, -u}
	case 1:
		d = mgl32.Vec3{-1, -v, u}
	case 2:
		d = mgl32.Vec3{u, 1, v}
	case 3:
		d = mgl32.Vec3{u, -1, -v}
	case 4:
		d = mgl32.Vec3{u, -v, 1}
	default:
		d = mgl32.Vec3{-u, -v, -1}
	}
	return d.Normalize()
}

// AtlasTexel returns the atlas texel storing the radiance along dir, for an atlas of six
// faceSize×faceSize faces stacked vertically.
//
// Parameters:
//   - dir: the direction, need not be normalized
//   - faceSize: the face edge length in texels
//
// Returns:
//   - uint32: the x coordinate
//   - uint32: the y coordinate, face·faceSize plus the row within the face
func AtlasTexel(dir mgl32.Vec3, faceSize uint32) (uint32, uint32) {
	ax, ay, az := abs32(dir.X()), abs32(dir.Y()), abs32(dir.Z())
	var face uint32
	var u, v float32
	switch {
	case ax >= ay && ax >= az:
		if dir.X() > 0 {
			face, u, v = 0, -dir.Z()/ax, -dir.Y()/ax
		} else {
			face, u, v = 1, dir.Z()/ax, -dir.Y()/ax
		}
	case ay >= az:
		if dir.Y() > 0 {
			face, u, v = 2, dir.X()/ay, dir.Z()/ay
		} else {
			face, u, v = 3, dir.X()/ay, -dir.Z()/ay
		}
	default:
		if dir.Z() > 0 {
			face, u, v = 4, dir.X()/az, -dir.Y()/az
		} else {
			face, u, v = 5, -dir.X()/az, -dir.Y()/az
		}
	}
	size := float32(faceSize)
	x := mgl32.Clamp((u*0.5+0.5)*size, 0, size-1)
	y := mgl32.Clamp((v*0.5+0.5)*size, 0, size-1)
	return uint32(x), uint32(y) + face*faceSize
}

func abs32(f float32) float32 {
	return float32(math.Abs(float64(f)))
}
