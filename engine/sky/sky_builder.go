package sky

import (
	"time"

	"github.com/Carmen-Shannon/oxy-sky/engine/sky/scheduler"
)

// SkyBuilderOption is a functional option used to configure a Sky during construction.
type SkyBuilderOption func(*skyImpl)

// WithFaceSize sets the radiance cubemap face size. It must be a multiple of 8.
//
// Parameters:
//   - faceSize: the face edge length in texels
//
// Returns:
//   - SkyBuilderOption: a function that sets the face size
func WithFaceSize(faceSize uint32) SkyBuilderOption {
	return func(s *skyImpl) {
		s.faceSize = faceSize
	}
}

// WithWorkers sets the number of kernels compiled concurrently.
func WithWorkers(n int) SkyBuilderOption {
	return func(s *skyImpl) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithValidation parses every kernel on the CPU before it reaches the device compiler.
func WithValidation(enabled bool) SkyBuilderOption {
	return func(s *skyImpl) {
		s.validate = enabled
	}
}

// WithMainPass sets the hook recording the scene.
func WithMainPass(hook scheduler.Hook) SkyBuilderOption {
	return func(s *skyImpl) {
		s.mainPass = hook
	}
}

// WithTonemapping sets the hook recording the final pass.
func WithTonemapping(hook scheduler.Hook) SkyBuilderOption {
	return func(s *skyImpl) {
		s.tonemap = hook
	}
}

// WithClock replaces the time source of the globals uniform.
func WithClock(clock func() time.Time) SkyBuilderOption {
	return func(s *skyImpl) {
		s.schedOpts = append(s.schedOpts, scheduler.WithClock(clock))
	}
}
