package shader

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// wgslViewDimensions maps the dimension suffix of a texture type to its view dimension.
var wgslViewDimensions = map[string]wgpu.TextureViewDimension{
	"1d":         wgpu.TextureViewDimension1D,
	"2d":         wgpu.TextureViewDimension2D,
	"2d_array":   wgpu.TextureViewDimension2DArray,
	"3d":         wgpu.TextureViewDimension3D,
	"cube":       wgpu.TextureViewDimensionCube,
	"cube_array": wgpu.TextureViewDimensionCubeArray,
}

var wgslSampleTypes = map[string]wgpu.TextureSampleType{
	"f32": wgpu.TextureSampleTypeFloat,
	"i32": wgpu.TextureSampleTypeSint,
	"u32": wgpu.TextureSampleTypeUint,
}

var wgslStorageAccess = map[string]wgpu.StorageTextureAccess{
	"write":      wgpu.StorageTextureAccessWriteOnly,
	"read":       wgpu.StorageTextureAccessReadOnly,
	"read_write": wgpu.StorageTextureAccessReadWrite,
}

// wgslTexelFormats are the storage texel formats WGSL accepts.
var wgslTexelFormats = map[string]wgpu.TextureFormat{
	"rgba8unorm":  wgpu.TextureFormatRGBA8Unorm,
	"rgba8snorm":  wgpu.TextureFormatRGBA8Snorm,
	"rgba8uint":   wgpu.TextureFormatRGBA8Uint,
	"rgba8sint":   wgpu.TextureFormatRGBA8Sint,
	"rgba16uint":  wgpu.TextureFormatRGBA16Uint,
	"rgba16sint":  wgpu.TextureFormatRGBA16Sint,
	"rgba16float": wgpu.TextureFormatRGBA16Float,
	"r32uint":     wgpu.TextureFormatR32Uint,
	"r32sint":     wgpu.TextureFormatR32Sint,
	"r32float":    wgpu.TextureFormatR32Float,
	"rg32uint":    wgpu.TextureFormatRG32Uint,
	"rg32sint":    wgpu.TextureFormatRG32Sint,
	"rg32float":   wgpu.TextureFormatRG32Float,
	"rgba32uint":  wgpu.TextureFormatRGBA32Uint,
	"rgba32sint":  wgpu.TextureFormatRGBA32Sint,
	"rgba32float": wgpu.TextureFormatRGBA32Float,
	"bgra8unorm":  wgpu.TextureFormatBGRA8Unorm,
}

var (
	structRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// memberRegex captures the name and type of a struct member after any attributes.
	memberRegex = regexp.MustCompile(`^(?:@\w+(?:\([^)]*\))?\s*)*(\w+)\s*:\s*(.+)$`)

	// entryRegex matches a stage attribute and the function it decorates. Attributes such as
	// @workgroup_size may sit on either side of the stage attribute.
	entryRegex = regexp.MustCompile(`(?s)((?:@workgroup_size\([^)]*\)\s*)?)@(vertex|fragment|compute)\b(.*?)\bfn\s+(\w+)`)

	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)`)

	// resourceRegex matches declarations such as
	// @group(0) @binding(0) var<uniform> atmosphere: AtmosphereParameters;
	// @group(1) @binding(2) var transmittance_lut: texture_2d<f32>;
	resourceRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// reflection is everything the shader needs from a comment-free WGSL module.
type reflection struct {
	layouts   *layoutSolver
	resources []resourceDecl
}

func reflectModule(source string) reflection {
	cleaned := stripComments(source)
	return reflection{
		layouts:   newLayoutSolver(parseStructs(cleaned)),
		resources: parseResources(cleaned),
	}
}

// bindGroupLayouts groups the module's resources into layout descriptors, with entries in
// binding order. The visibility flag is applied to every entry.
//
// Parameters:
//   - visibility: the shader stage visibility flag to set on each entry
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: layout descriptors keyed by group index
//   - map[int]map[int]string: variable names keyed by group and binding index
func (r reflection) bindGroupLayouts(visibility wgpu.ShaderStage) (map[int]wgpu.BindGroupLayoutDescriptor, map[int]map[int]string) {
	layouts := make(map[int]wgpu.BindGroupLayoutDescriptor)
	names := make(map[int]map[int]string)
	for _, decl := range r.resources {
		desc := layouts[decl.group]
		desc.Entries = append(desc.Entries, layoutEntry(decl, visibility, r.layouts))
		layouts[decl.group] = desc

		if names[decl.group] == nil {
			names[decl.group] = make(map[int]string)
		}
		names[decl.group][decl.binding] = decl.name
	}
	for _, desc := range layouts {
		slices.SortFunc(desc.Entries, func(a, b wgpu.BindGroupLayoutEntry) int {
			return int(a.Binding) - int(b.Binding)
		})
	}
	return layouts, names
}

func parseResources(source string) []resourceDecl {
	matches := resourceRegex.FindAllStringSubmatch(source, -1)
	decls := make([]resourceDecl, 0, len(matches))
	for _, m := range matches {
		group, _ := strconv.Atoi(m[1])
		binding, _ := strconv.Atoi(m[2])
		decls = append(decls, resourceDecl{
			group:   group,
			binding: binding,
			space:   strings.TrimSpace(m[3]),
			name:    m[4],
			typ:     strings.TrimSpace(m[5]),
		})
	}
	return decls
}

// parseWorkgroupSize reads @workgroup_size(x[, y[, z]]) out of an attribute list. Omitted
// dimensions, or a missing attribute, default to 1.
func parseWorkgroupSize(attrs string) [3]uint32 {
	size := [3]uint32{1, 1, 1}
	m := workgroupSizeRegex.FindStringSubmatch(attrs)
	if m == nil {
		return size
	}
	for i, dim := range m[1:] {
		if v, err := strconv.ParseUint(dim, 10, 32); err == nil {
			size[i] = uint32(v)
		}
	}
	return size
}

// parseEntryPoints extracts every entry point of the given shader type from WGSL source,
// in source order. Compute entry points carry the workgroup size declared on them.
//
// Parameters:
//   - source: the WGSL source code string
//   - shaderType: the stage to collect
//
// Returns:
//   - []entryPoint: the entry points found, empty if none
func parseEntryPoints(source string, shaderType ShaderType) []entryPoint {
	var stage string
	switch shaderType {
	case ShaderTypeVertex:
		stage = "vertex"
	case ShaderTypeFragment:
		stage = "fragment"
	case ShaderTypeCompute:
		stage = "compute"
	default:
		return nil
	}

	var entries []entryPoint
	for _, m := range entryRegex.FindAllStringSubmatch(stripComments(source), -1) {
		if m[2] != stage {
			continue
		}
		ep := entryPoint{name: m[4]}
		if shaderType == ShaderTypeCompute {
			ep.workgroupSize = parseWorkgroupSize(m[1] + m[3])
		}
		entries = append(entries, ep)
	}
	return entries
}

// StructSize computes the host-shareable size of a WGSL struct declared in source, after
// pre-processing. Host types use it to prove their Marshal layout matches the device struct.
//
// Parameters:
//   - source: WGSL source, possibly containing @oxy annotations
//   - name: the WGSL struct name
//
// Returns:
//   - uint64: the struct size in bytes
//   - error: a pre-processing error, or an error if the struct is missing or cannot be sized
func StructSize(source, name string) (uint64, error) {
	processed, err := NewPreProcessor().Process(source)
	if err != nil {
		return 0, err
	}
	l, ok := reflectModule(processed).layouts.structLayout(name)
	if !ok {
		return 0, fmt.Errorf("shader: struct %q not found or not sizable", name)
	}
	return l.size, nil
}

func parseStructs(source string) []structDecl {
	matches := structRegex.FindAllStringSubmatch(source, -1)
	decls := make([]structDecl, 0, len(matches))
	for _, m := range matches {
		decls = append(decls, structDecl{name: m[1], members: parseMembers(m[2])})
	}
	return decls
}

func parseMembers(body string) []member {
	var members []member
	for _, field := range splitTopLevel(body, ',') {
		field = strings.TrimSpace(field)
		m := memberRegex.FindStringSubmatch(field)
		if m == nil {
			continue
		}
		members = append(members, member{
			name:    m[1],
			typ:     strings.TrimSpace(m[2]),
			builtin: strings.Contains(field, "@builtin("),
		})
	}
	return members
}
