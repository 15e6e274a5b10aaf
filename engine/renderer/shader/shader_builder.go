package shader

// ShaderBuilderOption is a functional option used to configure a Shader during construction.
type ShaderBuilderOption func(*shader)

// WithEntryPoint selects the entry point to compile when a source declares several.
//
// Parameters:
//   - name: the WGSL function name
//
// Returns:
//   - ShaderBuilderOption: a function that sets the entry point
func WithEntryPoint(name string) ShaderBuilderOption {
	return func(s *shader) {
		s.entryPoint = name
	}
}

// WithInclude registers an extra @oxy:include entry for this shader's pre-processor,
// typically a function library shared by several kernels.
//
// Parameters:
//   - key: the include key used in annotations
//   - source: the WGSL source injected for the key
//
// Returns:
//   - ShaderBuilderOption: a function that registers the include
func WithInclude(key AnnotationArg, source string) ShaderBuilderOption {
	return func(s *shader) {
		s.pp.Register(key, source, "")
	}
}
