package pipeline_registry

import "github.com/Carmen-Shannon/automation/tools/worker"

// RegistryBuilderOption configures a Registry.
type RegistryBuilderOption func(*registry)

// WithWorkerPool compiles on a shared pool instead of a pool owned by the registry.
//
// Parameters:
//   - pool: the worker pool
//
// Returns:
//   - RegistryBuilderOption: a function that sets the pool
func WithWorkerPool(pool worker.DynamicWorkerPool) RegistryBuilderOption {
	return func(r *registry) {
		r.pool = pool
	}
}

// WithWorkers sets the size of the registry's own pool. Ignored with WithWorkerPool.
func WithWorkers(n int) RegistryBuilderOption {
	return func(r *registry) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithValidator runs v over every shader source before compiling it. A validation error
// fails the kernel the same way a device compile error does.
func WithValidator(v Validator) RegistryBuilderOption {
	return func(r *registry) {
		r.validator = v
	}
}
