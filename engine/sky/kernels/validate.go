package kernels

import (
	"fmt"

	"github.com/gogpu/naga"
)

// Validate compiles pre-processed WGSL with the naga front end. It matches the
// pipeline_registry.Validator signature so registries can reject a kernel before it
// reaches the device.
//
// Parameters:
//   - key: the shader key, used in the error
//   - source: pre-processed WGSL
//
// Returns:
//   - error: the naga diagnostic, if any
func Validate(key, source string) error {
	spirv, err := naga.Compile(source)
	if err != nil {
		return fmt.Errorf("kernels: %s: %w", key, err)
	}
	if len(spirv) < 4 {
		return fmt.Errorf("kernels: %s: empty SPIR-V output", key)
	}
	return nil
}
