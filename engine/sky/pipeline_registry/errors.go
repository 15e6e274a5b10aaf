package pipeline_registry

import (
	"errors"
	"fmt"
)

var (
	// ErrLayoutMismatch is returned when a kernel's bind groups differ from its family layout.
	ErrLayoutMismatch = errors.New("pipeline_registry: layout mismatch")

	// ErrCompileFailed is returned by Poll once any kernel of the family failed to compile.
	ErrCompileFailed = errors.New("pipeline_registry: kernel compile failed")

	// ErrSealed is returned when kernels are submitted to a registry that is already Ready.
	ErrSealed = errors.New("pipeline_registry: registry is ready, no further kernels accepted")

	// ErrDuplicateKernel is returned when a kernel key is submitted twice.
	ErrDuplicateKernel = errors.New("pipeline_registry: duplicate kernel")
)

// CompileError names the kernel that failed to compile.
type CompileError struct {
	Kernel string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("pipeline_registry: compile %s: %v", e.Kernel, e.Err)
}

// Unwrap returns both ErrCompileFailed and the underlying cause for errors.Is.
func (e *CompileError) Unwrap() []error {
	return []error{ErrCompileFailed, e.Err}
}
