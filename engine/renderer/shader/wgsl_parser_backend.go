package shader

import (
	"maps"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// scalarLayouts are the WGSL scalar types that can live in a host-shareable buffer.
var scalarLayouts = map[string]typeLayout{
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"f16":  {2, 2},
	"bool": {4, 4},
}

// shorthandScalars maps the suffix of vec3f, mat4x4h and friends to their component type.
var shorthandScalars = map[byte]string{
	'f': "f32",
	'i': "i32",
	'u': "u32",
	'h': "f16",
}

// roundUp rounds value up to the next multiple of alignment, a power of two.
func roundUp(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// layoutSolver sizes WGSL types against the structs declared in one module. Struct
// layouts are resolved on demand and memoised, so declaration order does not matter.
type layoutSolver struct {
	decls    map[string]structDecl
	solved   map[string]typeLayout
	visiting map[string]bool
}

func newLayoutSolver(decls []structDecl) *layoutSolver {
	s := &layoutSolver{
		decls:    make(map[string]structDecl, len(decls)),
		solved:   make(map[string]typeLayout, len(decls)),
		visiting: make(map[string]bool),
	}
	for _, d := range decls {
		s.decls[d.name] = d
	}
	return s
}

// structLayout sizes a declared struct.
//
// Parameters:
//   - name: the WGSL struct name
//
// Returns:
//   - typeLayout: the struct's size and alignment
//   - bool: false if the struct is missing or references a type that cannot be sized
func (s *layoutSolver) structLayout(name string) (typeLayout, bool) {
	if l, ok := s.solved[name]; ok {
		return l, true
	}
	decl, ok := s.decls[name]
	if !ok || s.visiting[name] {
		return typeLayout{}, false
	}
	s.visiting[name] = true
	defer delete(s.visiting, name)

	var offset uint64
	align := uint64(1)
	for _, m := range decl.members {
		if m.builtin {
			continue
		}
		l, ok := s.layout(m.typ)
		if !ok {
			return typeLayout{}, false
		}
		offset = roundUp(l.align, offset) + l.size
		align = max(align, l.align)
	}
	l := typeLayout{size: roundUp(align, offset), align: align}
	s.solved[name] = l
	return l, true
}

// layout sizes any WGSL type name. A runtime-sized array reports a single element, which is
// the smallest binding that can back it.
func (s *layoutSolver) layout(typ string) (typeLayout, bool) {
	typ = strings.TrimSpace(typ)
	if l, ok := scalarLayouts[typ]; ok {
		return l, true
	}

	base, params := splitTypeParams(typ)
	switch {
	case base == "atomic":
		return s.layout(params)
	case base == "array":
		parts := splitTopLevel(params, ',')
		elem, ok := s.layout(parts[0])
		if !ok {
			return typeLayout{}, false
		}
		count := uint64(1)
		if len(parts) > 1 {
			n, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
			if err != nil {
				return typeLayout{}, false
			}
			count = n
		}
		return typeLayout{size: count * elem.stride(), align: elem.align}, true
	}
	if shape, ok := strings.CutPrefix(base, "vec"); ok {
		if l, ok := vectorLayout(shape, params); ok {
			return l, true
		}
	}
	if shape, ok := strings.CutPrefix(base, "mat"); ok {
		if l, ok := matrixLayout(shape, params); ok {
			return l, true
		}
	}
	return s.structLayout(typ)
}

// vectorLayout sizes vecN<T> and its shorthand forms. The three component vector is
// aligned like the four component one.
func vectorLayout(shape, component string) (typeLayout, bool) {
	n, scalar, ok := shapeComponent(shape, component, 1)
	if !ok || n[0] < 2 || n[0] > 4 {
		return typeLayout{}, false
	}
	c, ok := scalarLayouts[scalar]
	if !ok {
		return typeLayout{}, false
	}
	lanes := n[0]
	if lanes == 3 {
		lanes = 4
	}
	return typeLayout{size: n[0] * c.size, align: lanes * c.size}, true
}

// matrixLayout sizes matCxR<T>: C columns, each laid out as a vecR<T>.
func matrixLayout(shape, component string) (typeLayout, bool) {
	n, scalar, ok := shapeComponent(shape, component, 2)
	if !ok || n[0] < 2 || n[0] > 4 {
		return typeLayout{}, false
	}
	column, ok := vectorLayout(strconv.FormatUint(n[1], 10), scalar)
	if !ok {
		return typeLayout{}, false
	}
	return typeLayout{size: n[0] * column.stride(), align: column.align}, true
}

// shapeComponent splits the "3", "3f", "4x4" or "4x4h" tail of a vector or matrix type
// into its dimensions and component type.
func shapeComponent(shape, component string, dims int) ([2]uint64, string, bool) {
	var n [2]uint64
	if component == "" && shape != "" {
		scalar, ok := shorthandScalars[shape[len(shape)-1]]
		if !ok {
			return n, "", false
		}
		component, shape = scalar, shape[:len(shape)-1]
	}
	parts := strings.Split(shape, "x")
	if len(parts) != dims {
		return n, "", false
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return n, "", false
		}
		n[i] = v
	}
	return n, component, true
}

// layoutEntry turns a resource declaration into a bind group layout entry. Buffers get a
// MinBindingSize when the bound type can be sized.
//
// Parameters:
//   - decl: the parsed @group/@binding declaration
//   - visibility: the stage declaring the resource
//   - solver: sizes buffer types against the module's structs
//
// Returns:
//   - wgpu.BindGroupLayoutEntry: the populated entry
func layoutEntry(decl resourceDecl, visibility wgpu.ShaderStage, solver *layoutSolver) wgpu.BindGroupLayoutEntry {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    uint32(decl.binding),
		Visibility: visibility,
	}

	switch space := decl.space; {
	case space == "uniform":
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
	case strings.HasPrefix(space, "storage") && strings.Contains(space, "read_write"):
		entry.Buffer.Type = wgpu.BufferBindingTypeStorage
	case strings.HasPrefix(space, "storage"):
		entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
	case decl.typ == "sampler":
		entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	case decl.typ == "sampler_comparison":
		entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
	case strings.HasPrefix(decl.typ, "texture_"):
		textureEntry(decl.typ, &entry)
	}

	if entry.Buffer.Type != wgpu.BufferBindingTypeUndefined {
		if l, ok := solver.layout(decl.typ); ok && l.size > 0 {
			entry.Buffer.MinBindingSize = l.size
		}
	}
	return entry
}

// textureEntry fills the texture or storage texture half of an entry from a type such as
// texture_cube<f32>, texture_depth_2d or texture_storage_2d_array<rgba16float, write>.
func textureEntry(typ string, entry *wgpu.BindGroupLayoutEntry) {
	base, params := splitTypeParams(typ)
	shape, ok := parseTextureShape(base)
	if !ok {
		return
	}

	if shape.storage {
		args := splitTopLevel(params, ',')
		entry.StorageTexture.ViewDimension = shape.dimension
		if format, ok := wgslTexelFormats[strings.TrimSpace(args[0])]; ok {
			entry.StorageTexture.Format = format
		}
		if len(args) > 1 {
			if access, ok := wgslStorageAccess[strings.TrimSpace(args[1])]; ok {
				entry.StorageTexture.Access = access
			}
		}
		return
	}

	entry.Texture.ViewDimension = shape.dimension
	entry.Texture.Multisampled = shape.multisampled
	switch {
	case shape.depth:
		entry.Texture.SampleType = wgpu.TextureSampleTypeDepth
	default:
		if st, ok := wgslSampleTypes[params]; ok {
			entry.Texture.SampleType = st
		}
	}
}

// parseTextureShape reads the qualifiers and dimension out of a texture base name.
func parseTextureShape(base string) (textureShape, bool) {
	var shape textureShape
	rest, ok := strings.CutPrefix(base, "texture_")
	if !ok {
		return shape, false
	}
	rest, shape.storage = strings.CutPrefix(rest, "storage_")
	rest, shape.depth = strings.CutPrefix(rest, "depth_")
	rest, shape.multisampled = strings.CutPrefix(rest, "multisampled_")
	shape.dimension, ok = wgslViewDimensions[rest]
	return shape, ok
}

// splitTypeParams splits "texture_2d<f32>" into ("texture_2d", "f32"). Types without
// parameters return an empty params string.
func splitTypeParams(typ string) (base, params string) {
	before, after, ok := strings.Cut(typ, "<")
	if !ok {
		return typ, ""
	}
	return before, strings.TrimSpace(strings.TrimSuffix(after, ">"))
}

// stripComments removes line comments and nested block comments from WGSL source. Newlines
// inside comments are kept so offsets into the result still map to source lines.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		c := source[i]
		var next byte
		if i+1 < len(source) {
			next = source[i+1]
		}
		switch {
		case c == '/' && next == '*':
			depth++
			i++
		case c == '*' && next == '/' && depth > 0:
			depth--
			i++
		case depth == 0 && c == '/' && next == '/':
			for i < len(source) && source[i] != '\n' {
				i++
			}
			if i < len(source) {
				sb.WriteByte('\n')
			}
		case c == '\n' || depth == 0:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// splitTopLevel splits s at sep, ignoring separators nested inside angle brackets, so
// "array<vec4<f32>, 6>, u32" splits into two parts.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// solveAll sizes every declared struct that can be sized.
func (s *layoutSolver) solveAll() map[string]typeLayout {
	for name := range s.decls {
		s.structLayout(name)
	}
	return maps.Clone(s.solved)
}
