// annotations.go parses the @oxy: comment annotations of the WGSL pre-processor. An
// annotation is a single-line comment that either injects a registered struct or function
// library, or declares a @group/@binding variable of a registered struct type.
package shader

import (
	"fmt"
	"strconv"
	"strings"
)

// annotationPrefix marks an annotation inside a "//" comment line.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// AnnotationTypeInclude injects the WGSL source registered under a key. Each key is
	// injected at most once per Process call.
	//
	// Syntax: //@oxy:include <key>
	AnnotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup declares a @group/@binding variable of a registered struct.
	//
	// Syntax: //@oxy:group <group> <binding> <address_space> <var_name> <struct_key>
	//
	// Example: //@oxy:group 0 0 storage_uniform atmosphere atmosphere_parameters
	AnnotationTypeBindingGroup AnnotationType = "group"
)

// AnnotationArg is a registry key naming an includable struct or function library.
type AnnotationArg string

// Struct keys registered by every pre-processor. Each names a host GPU type whose WGSL
// declaration is embedded next to it.
const (
	AnnotationArgAtmosphereParameters AnnotationArg = "atmosphere_parameters"
	AnnotationArgGlobals              AnnotationArg = "globals"
	AnnotationArgPostProcessSettings  AnnotationArg = "post_process_settings"
	AnnotationArgView                 AnnotationArg = "view"

	// AnnotationArgDirectionalLight is the sun with its shadow view-projection.
	AnnotationArgDirectionalLight AnnotationArg = "directional_light"
)

// AddressSpace is the address space argument of a group annotation.
type AddressSpace string

const (
	AddressSpaceUniform          AddressSpace = "storage_uniform"
	AddressSpaceStorageRead      AddressSpace = "storage_read"
	AddressSpaceStorageReadWrite AddressSpace = "storage_read_write"
)

var addressSpaceDecls = map[AddressSpace]string{
	AddressSpaceUniform:          "var<uniform>",
	AddressSpaceStorageRead:      "var<storage, read>",
	AddressSpaceStorageReadWrite: "var<storage, read_write>",
}

// Annotation is one parsed @oxy: line. Only the fields of its Type are set.
type Annotation struct {
	Type AnnotationType

	// Line is the 1-based source line, used in errors.
	Line int

	// Key is the include key, or the struct key of a group declaration.
	Key AnnotationArg

	Group   int
	Binding int
	Space   AddressSpace
	Name    string
}

// declaration renders a group annotation as WGSL for the resolved struct name.
func (a Annotation) declaration(typeName string) string {
	return fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", a.Group, a.Binding, addressSpaceDecls[a.Space], a.Name, typeName)
}

// parseAnnotation reads one WGSL line. Lines that are not annotations return nil. Only the
// syntax is checked; whether a key is registered is up to the PreProcessor.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	comment, ok := strings.CutPrefix(strings.TrimSpace(line), "//")
	if !ok {
		return nil, nil
	}
	_, body, ok := strings.Cut(comment, annotationPrefix)
	if !ok {
		return nil, nil
	}

	fields := strings.Fields(body)
	if len(fields) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}
	a := &Annotation{Type: AnnotationType(fields[0]), Line: lineNum}
	args := fields[1:]

	switch a.Type {
	case AnnotationTypeInclude:
		if len(args) != 1 {
			return nil, fmt.Errorf("line %d: @oxy include takes one key, got %d", lineNum, len(args))
		}
		a.Key = AnnotationArg(args[0])
	case AnnotationTypeBindingGroup:
		if len(args) != 5 {
			return nil, fmt.Errorf("line %d: @oxy group takes group, binding, address space, var name and struct key, got %d arguments", lineNum, len(args))
		}
		var err error
		if a.Group, err = strconv.Atoi(args[0]); err != nil {
			return nil, fmt.Errorf("line %d: invalid group %q: %w", lineNum, args[0], err)
		}
		if a.Binding, err = strconv.Atoi(args[1]); err != nil {
			return nil, fmt.Errorf("line %d: invalid binding %q: %w", lineNum, args[1], err)
		}
		a.Space = AddressSpace(args[2])
		if _, ok := addressSpaceDecls[a.Space]; !ok {
			return nil, fmt.Errorf("line %d: unknown address space %q", lineNum, args[2])
		}
		a.Name, a.Key = args[3], AnnotationArg(args[4])
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, fields[0])
	}
	return a, nil
}
