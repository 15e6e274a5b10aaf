package scheduler

import "time"

// SchedulerBuilderOption is a functional option used to configure a Scheduler during construction.
type SchedulerBuilderOption func(*scheduler)

// WithMainPass sets the hook recording the scene between the radiance and post-process stages.
//
// Parameters:
//   - hook: the main pass
//
// Returns:
//   - SchedulerBuilderOption: a function that sets the main pass hook
func WithMainPass(hook Hook) SchedulerBuilderOption {
	return func(s *scheduler) {
		s.mainPass = hook
	}
}

// WithTonemapping sets the hook recording the final pass after post-processing.
//
// Parameters:
//   - hook: the tonemapping pass
//
// Returns:
//   - SchedulerBuilderOption: a function that sets the tonemapping hook
func WithTonemapping(hook Hook) SchedulerBuilderOption {
	return func(s *scheduler) {
		s.tonemap = hook
	}
}

// WithClock replaces the time source of the globals uniform.
func WithClock(clock func() time.Time) SchedulerBuilderOption {
	return func(s *scheduler) {
		s.clock = clock
	}
}
