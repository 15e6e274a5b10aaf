package shader

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/cogentcore/webgpu/wgpu"
)

var (
	// ErrNoEntryPoint is returned when a source declares no entry point for the requested shader type.
	ErrNoEntryPoint = errors.New("shader: no entry point")

	// ErrUnknownEntryPoint is returned when a requested entry point is not declared in the source.
	ErrUnknownEntryPoint = errors.New("shader: unknown entry point")
)

// ShaderType identifies whether a shader is a render shader or a compute shader.
type ShaderType int

const (
	// ShaderTypeCompute indicates a shader containing a @compute entry point.
	ShaderTypeCompute ShaderType = iota

	// ShaderTypeVertex is the vertex shader type, used for vertex processing in render pipelines.
	ShaderTypeVertex

	// ShaderTypeFragment is the fragment shader type, used for fragment processing in pair with a vertex shader.
	ShaderTypeFragment
)

// String returns the WGSL stage attribute name for the shader type.
func (t ShaderType) String() string {
	switch t {
	case ShaderTypeCompute:
		return "compute"
	case ShaderTypeVertex:
		return "vertex"
	case ShaderTypeFragment:
		return "fragment"
	default:
		return "unknown"
	}
}

// Visibility returns the wgpu shader stage flag matching the shader type.
func (t ShaderType) Visibility() wgpu.ShaderStage {
	switch t {
	case ShaderTypeVertex:
		return wgpu.ShaderStageVertex
	case ShaderTypeFragment:
		return wgpu.ShaderStageFragment
	case ShaderTypeCompute:
		return wgpu.ShaderStageCompute
	default:
		return wgpu.ShaderStageNone
	}
}

// shader is the implementation of the Shader interface.
// It holds all of the persistent shader data required for pipeline creation and layout checks.
type shader struct {
	key                        string
	source                     string
	shaderType                 ShaderType
	bindGroupLayoutDescriptors map[int]wgpu.BindGroupLayoutDescriptor
	bindingVarNames            map[int]map[int]string
	structSizes                map[string]typeLayout
	entryPoints                []entryPoint
	entryPoint                 string
	workGroupSize              [3]uint32
	module                     *wgpu.ShaderModuleDescriptor

	pp PreProcessor
}

// Shader defines the interface for a loaded and parsed WGSL shader. It exposes the shader's
// unique key, pre-processed source, selected entry point, bind group layout descriptors,
// workgroup size and struct sizes needed for pipeline creation and layout validation.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for caching and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the pre-processed WGSL shader source code.
	//
	// Returns:
	//   - string: the WGSL source code of the shader
	Source() string

	// BindGroupLayoutDescriptor retrieves the reflected bind group layout descriptor for a group.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - wgpu.BindGroupLayoutDescriptor: the descriptor, or an empty descriptor if the group is not declared
	BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor

	// BindGroupLayoutDescriptors retrieves all reflected bind group layout descriptors.
	//
	// Returns:
	//   - map[int]wgpu.BindGroupLayoutDescriptor: descriptors keyed by group index
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// BindGroupVarName retrieves the variable name for a given group and binding index, if it exists.
	//
	// Parameters:
	//   - group: the bind group index
	//   - binding: the binding index within the group
	//
	// Returns:
	//   - string: the variable name, or an empty string if not found
	BindGroupVarName(group, binding int) string

	// BindGroupFromVarName retrieves the binding index for a given group and variable name, if it exists.
	//
	// Parameters:
	//   - group: the bind group index
	//   - varName: the variable name within the group
	//
	// Returns:
	//   - int: the binding index associated with the variable name, or -1 if not found
	//   - bool: true if the variable name was found, false otherwise
	BindGroupFromVarName(group int, varName string) (int, bool)

	// BindGroupVarNames retrieves all variable names for all bind groups.
	//
	// Returns:
	//   - map[int]map[int]string: variable names keyed by group and binding index
	BindGroupVarNames() map[int]map[int]string

	// EntryPoint returns the entry point selected for this shader.
	//
	// Returns:
	//   - string: the entry point name (e.g. "transmittance")
	EntryPoint() string

	// EntryPoints returns every entry point of this shader's type declared in the source, in source order.
	EntryPoints() []string

	// WorkgroupSize returns the workgroup size of the selected compute entry point.
	// Returns [0, 0, 0] for non-compute shaders and [1, 1, 1] when @workgroup_size is not specified.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// StructSize returns the WGSL host-shareable size of a struct declared in the source.
	//
	// Parameters:
	//   - name: the WGSL struct name
	//
	// Returns:
	//   - uint64: the struct size in bytes
	//   - bool: false if the struct is not declared or cannot be sized
	StructSize(name string) (uint64, bool)

	// Module returns the wgpu.ShaderModuleDescriptor for this shader.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the shader module descriptor containing the WGSL code and label
	Module() *wgpu.ShaderModuleDescriptor

	// ShaderType returns the type of the shader (vertex, fragment, or compute).
	ShaderType() ShaderType

	// Declarations returns the @oxy:group annotations parsed from the shader source.
	Declarations() []Annotation
}

var _ Shader = &shader{}

// NewShader creates a new Shader from WGSL source. The source is pre-processed, reflected
// and its entry point resolved: the entry point requested with WithEntryPoint, or the first
// entry point of the shader type otherwise.
//
// Parameters:
//   - key: a unique identifier for the shader, used for caching and lookups
//   - shaderType: the type of shader (vertex, fragment or compute)
//   - source: the raw WGSL source, possibly containing @oxy annotations
//   - options: optional configuration
//
// Returns:
//   - Shader: the parsed shader
//   - error: a pre-processing error, ErrNoEntryPoint or ErrUnknownEntryPoint
func NewShader(key string, shaderType ShaderType, source string, options ...ShaderBuilderOption) (Shader, error) {
	s := &shader{
		key:                        key,
		shaderType:                 shaderType,
		bindGroupLayoutDescriptors: make(map[int]wgpu.BindGroupLayoutDescriptor),
		bindingVarNames:            make(map[int]map[int]string),
		pp:                         NewPreProcessor(),
	}
	for _, opt := range options {
		opt(s)
	}
	if err := s.parseSource(source); err != nil {
		return nil, err
	}
	return s, nil
}

// NewShaderFromPath reads WGSL source from disk and creates a Shader from it.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - shaderType: the type of shader
//   - path: the file path to read WGSL source from
//   - options: optional configuration
//
// Returns:
//   - Shader: the parsed shader
//   - error: a read error or any error NewShader returns
func NewShaderFromPath(key string, shaderType ShaderType, path string, options ...ShaderBuilderOption) (Shader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shader: failed to read source file %q: %w", path, err)
	}
	return NewShader(key, shaderType, string(data), options...)
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) EntryPoints() []string {
	names := make([]string, len(s.entryPoints))
	for i, ep := range s.entryPoints {
		names[i] = ep.name
	}
	return names
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors[group]
}

func (s *shader) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors
}

func (s *shader) BindGroupVarName(group, binding int) string {
	if s.bindingVarNames[group] == nil {
		return ""
	}
	return s.bindingVarNames[group][binding]
}

func (s *shader) BindGroupFromVarName(group int, varName string) (int, bool) {
	if s.bindingVarNames[group] == nil {
		return -1, false
	}
	for binding, name := range s.bindingVarNames[group] {
		if name == varName {
			return binding, true
		}
	}
	return -1, false
}

func (s *shader) BindGroupVarNames() map[int]map[int]string {
	return s.bindingVarNames
}

func (s *shader) StructSize(name string) (uint64, bool) {
	layout, ok := s.structSizes[name]
	return layout.size, ok
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}

func (s *shader) ShaderType() ShaderType {
	return s.shaderType
}

func (s *shader) Declarations() []Annotation {
	return s.pp.Declarations()
}

// parseSource pre-processes the WGSL source, builds the shader module descriptor, resolves
// the entry point and extracts bind group layouts and struct sizes.
func (s *shader) parseSource(raw string) error {
	var err error
	s.source, err = s.pp.Process(raw)
	if err != nil {
		return fmt.Errorf("shader: failed to pre-process %q: %w", s.key, err)
	}
	s.module = &wgpu.ShaderModuleDescriptor{
		Label: s.key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: s.source,
		},
	}

	s.entryPoints = parseEntryPoints(s.source, s.shaderType)
	if len(s.entryPoints) == 0 {
		return fmt.Errorf("%w: %q declares no @%s function", ErrNoEntryPoint, s.key, s.shaderType)
	}
	selected := s.entryPoints[0]
	if s.entryPoint != "" {
		i := slices.IndexFunc(s.entryPoints, func(ep entryPoint) bool { return ep.name == s.entryPoint })
		if i < 0 {
			return fmt.Errorf("%w: %q has no @%s function %q", ErrUnknownEntryPoint, s.key, s.shaderType, s.entryPoint)
		}
		selected = s.entryPoints[i]
	}
	s.entryPoint = selected.name
	if s.shaderType == ShaderTypeCompute {
		s.workGroupSize = selected.workgroupSize
	}

	r := reflectModule(s.source)
	s.bindGroupLayoutDescriptors, s.bindingVarNames = r.bindGroupLayouts(s.shaderType.Visibility())
	s.structSizes = r.layouts.solveAll()
	return nil
}
