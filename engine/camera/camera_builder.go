package camera

import (
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/bind_group_provider"
	"github.com/go-gl/mathgl/mgl32"
)

type CameraBuilderOption func(*cameraImpl)

// WithPosition sets the camera's world-space position.
//
// Parameters:
//   - p: the position
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's position
func WithPosition(p mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.position = p
	}
}

// WithAngles sets the initial yaw and pitch in radians.
//
// Parameters:
//   - yaw: horizontal angle, 0 looks down -Z
//   - pitch: vertical angle, positive looks up
//
// Returns:
//   - CameraBuilderOption: a function that sets the view angles
func WithAngles(yaw, pitch float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.yaw = yaw
		c.pitch = pitch
	}
}

// WithFov sets the camera's vertical field of view in radians.
//
// Parameters:
//   - fov: field of view in radians
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's field of view
func WithFov(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.fov = fov
	}
}

// WithAspect sets the camera's aspect ratio (width / height).
//
// Parameters:
//   - aspect: the aspect ratio to set
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's aspect ratio
func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.aspect = aspect
	}
}

// WithClipPlanes sets the near and far clipping plane distances.
func WithClipPlanes(near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.near = near
		c.far = far
	}
}

// WithLookSpeed sets the angle in radians turned by one look step.
func WithLookSpeed(speed float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.lookSpeed = speed
	}
}

// WithBindGroupProvider attaches a bind group provider to the camera.
//
// Parameters:
//   - provider: the bind group provider to attach
//
// Returns:
//   - CameraBuilderOption: functional option to set the bind group provider
func WithBindGroupProvider(provider bind_group_provider.BindGroupProvider) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.bindGroupProvider = provider
	}
}
