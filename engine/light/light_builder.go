package light

import "github.com/go-gl/mathgl/mgl32"

// SunBuilderOption is a function that configures a Sun instance during construction.
type SunBuilderOption func(*sunImpl)

// WithBaseColor sets the untinted RGB colour of the light.
//
// Parameters:
//   - c: linear RGB colour
//
// Returns:
//   - SunBuilderOption: a function that applies the colour option to a sunImpl
func WithBaseColor(c mgl32.Vec3) SunBuilderOption {
	return func(s *sunImpl) {
		s.baseColor = c
	}
}

// WithShadowResolution sets the shadow map width and height in texels.
//
// Parameters:
//   - resolution: texels per side, must be positive
//
// Returns:
//   - SunBuilderOption: a function that applies the resolution option to a sunImpl
func WithShadowResolution(resolution int) SunBuilderOption {
	return func(s *sunImpl) {
		if resolution > 0 {
			s.shadowResolution = resolution
		}
	}
}

// WithShadowFrustum sets the orthographic shadow frustum.
//
// Parameters:
//   - halfExtent: half-size of the frustum in world units
//   - near: near plane distance
//   - far: far plane distance
//
// Returns:
//   - SunBuilderOption: a function that applies the frustum option to a sunImpl
func WithShadowFrustum(halfExtent, near, far float32) SunBuilderOption {
	return func(s *sunImpl) {
		s.shadowHalfExtent = halfExtent
		s.shadowNear = near
		s.shadowFar = far
	}
}

// WithShadowBias sets the constant depth comparison bias.
func WithShadowBias(bias float32) SunBuilderOption {
	return func(s *sunImpl) {
		s.shadowBias = bias
	}
}

// WithShadowLayers sets the number of layers in the shadow depth array.
func WithShadowLayers(layers uint32) SunBuilderOption {
	return func(s *sunImpl) {
		if layers > 0 {
			s.shadowLayers = layers
		}
	}
}
