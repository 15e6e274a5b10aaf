package light

import (
	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/go-gl/mathgl/mgl32"
)

// ShadowMapResolution is the default width and height in texels of the shadow depth texture.
const ShadowMapResolution = 2048

// DefaultShadowHalfExtent is the default orthographic half-extent (in world units)
// used for the directional light shadow frustum.
const DefaultShadowHalfExtent float32 = 40.0

// DefaultShadowNear is the default near plane for the directional light's
// orthographic shadow projection.
const DefaultShadowNear float32 = 0.1

// DefaultShadowFar is the default far plane for the directional light's
// orthographic shadow projection.
const DefaultShadowFar float32 = 200.0

// DefaultShadowBias is the constant depth bias applied to shadow comparisons
// to reduce shadow acne artifacts.
const DefaultShadowBias float32 = 0.001

// DefaultShadowNormalBiasScale is the multiplier applied to the shadow map
// texel world-size to compute the normal-offset bias. Typical values are 2.0–4.0.
const DefaultShadowNormalBiasScale float32 = 3.0

// ShadowViewProjection builds an orthographic view-projection matrix for a directional
// light's shadow pass. The frustum is centred on center and looks along the light's direction.
//
// Parameters:
//   - lightDir: normalized direction the light travels (from light toward scene)
//   - center: world-space center of the shadow frustum
//   - halfExtent: half-size of the orthographic frustum in world units
//   - near: near plane distance
//   - far: far plane distance
//
// Returns:
//   - mgl32.Mat4: the light view-projection in WebGPU clip space
func ShadowViewProjection(lightDir, center mgl32.Vec3, halfExtent, near, far float32) mgl32.Mat4 {
	// the eye sits behind the center, opposite the light direction
	eye := center.Sub(lightDir.Mul(far * 0.5))
	view := mgl32.LookAtV(eye, center, common.StableUp(lightDir))
	proj := common.Ortho(-halfExtent, halfExtent, -halfExtent, halfExtent, near, far)
	return proj.Mul4(view)
}

// NormalBias derives the world-space normal-offset bias from the shadow map parameters.
//
// Parameters:
//   - halfExtent: orthographic frustum half-size in world units
//   - scale: multiplier on the per-texel world size
//   - resolution: shadow map resolution in texels
//
// Returns:
//   - float32: the offset distance in world units
func NormalBias(halfExtent, scale float32, resolution int) float32 {
	texelWorldSize := 2.0 * halfExtent / float32(resolution)
	return texelWorldSize * scale
}
