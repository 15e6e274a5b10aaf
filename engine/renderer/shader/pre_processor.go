// pre_processor.go expands @oxy: annotations. Includes are resolved against a registry of
// struct declarations and function libraries, group annotations become @group/@binding
// declarations, and every group annotation is recorded so callers can map bindings back to
// the host types that fill them.
package shader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-sky/engine/atmosphere"
	"github.com/Carmen-Shannon/oxy-sky/engine/camera"
	"github.com/Carmen-Shannon/oxy-sky/engine/light"
)

// maxIncludeDepth bounds nested includes.
const maxIncludeDepth = 8

var errIncludeDepth = errors.New("@oxy:include nested too deeply")

// include is one registry entry: the injected WGSL and, for structs, the type name group
// declarations refer to. Function libraries have no type name.
type include struct {
	source   string
	typeName string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	includes map[AnnotationArg]include

	// declarations are the group annotations of the last Process call.
	declarations []Annotation
}

// PreProcessor processes raw WGSL shader source code containing @oxy: annotations,
// replacing them with generated declarations or injected sources while collecting
// a declarations list.
type PreProcessor interface {
	// Process takes raw WGSL shader source code and pre-processes it by replacing
	// @oxy: annotations with their corresponding WGSL output. Each include key is
	// injected at most once per call, so libraries may include the structs they use.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code containing annotations to be processed
	//
	// Returns:
	//   - string: the processed WGSL shader source code with annotations replaced
	//   - error: an error if any annotation is malformed or references an unknown key
	Process(source string) (string, error)

	// Declarations returns the group annotations collected during the most recent
	// call to Process, in source order.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation

	// Register adds or replaces an include entry.
	//
	// Parameters:
	//   - key: the include key used in annotations
	//   - source: the WGSL source injected for the key
	//   - typeName: the WGSL struct name for @oxy:group, or empty for a function library
	Register(key AnnotationArg, source, typeName string)
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with the engine's GPU struct types registered.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		includes: map[AnnotationArg]include{
			AnnotationArgAtmosphereParameters: {atmosphere.GPUParametersSource, "AtmosphereParameters"},
			AnnotationArgGlobals:              {atmosphere.GPUGlobalsSource, "Globals"},
			AnnotationArgPostProcessSettings:  {atmosphere.GPUPostProcessSettingsSource, "PostProcessSettings"},
			AnnotationArgView:                 {camera.GPUViewSource, "View"},
			AnnotationArgDirectionalLight:     {light.GPUDirectionalLightSource, "DirectionalLight"},
		},
	}
}

func (p *preProcessor) Register(key AnnotationArg, source, typeName string) {
	p.includes[key] = include{source: source, typeName: typeName}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]
	return p.expand(source, make(map[AnnotationArg]bool), 0)
}

// expand rewrites one source text. Included sources are expanded recursively so a library
// can pull in the structs it depends on.
func (p *preProcessor) expand(source string, seen map[AnnotationArg]bool, depth int) (string, error) {
	if depth > maxIncludeDepth {
		return "", errIncludeDepth
	}

	var out strings.Builder
	for i, line := range strings.Split(source, "\n") {
		if i > 0 {
			out.WriteByte('\n')
		}
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out.WriteString(line)
			continue
		}

		inc, ok := p.includes[a.Key]
		switch {
		case !ok:
			return "", fmt.Errorf("line %d: unknown @oxy:%s key %q", a.Line, a.Type, a.Key)
		case a.Type == AnnotationTypeBindingGroup && inc.typeName == "":
			return "", fmt.Errorf("line %d: %q is a function library, not a struct", a.Line, a.Key)
		case a.Type == AnnotationTypeBindingGroup:
			out.WriteString(a.declaration(inc.typeName))
			p.declarations = append(p.declarations, *a)
		case !seen[a.Key]:
			seen[a.Key] = true
			expanded, err := p.expand(inc.source, seen, depth+1)
			if err != nil {
				return "", fmt.Errorf("include %q: %w", a.Key, err)
			}
			out.WriteString(expanded)
		}
	}
	return out.String(), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
