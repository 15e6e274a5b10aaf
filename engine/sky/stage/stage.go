// Package stage records the sky passes of one frame. Each Stage is one of a closed set of
// kinds (LUT, Radiance, PostProcess); all of them read the ResourceSet through the
// immutable FrameContext and write through a Recorder, so the same stages drive the
// WebGPU backend and the in-memory recorder used by tests.
package stage

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-sky/engine/atmosphere"
	"github.com/Carmen-Shannon/oxy-sky/engine/camera"
	"github.com/Carmen-Shannon/oxy-sky/engine/light"
	"github.com/Carmen-Shannon/oxy-sky/engine/log"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
)

var logger = log.New("sky/stage")

var (
	// ErrBindingMismatch is returned when a stage assembles a bind group that does not fill its layout.
	ErrBindingMismatch = errors.New("stage: bindings do not match layout")

	// ErrUnknownKernel is returned when a ready registry holds no kernel for a pass.
	ErrUnknownKernel = errors.New("stage: kernel not registered")
)

// Kind tags the stage variants.
type Kind int

const (
	KindLUT Kind = iota
	KindRadiance
	KindPostProcess
)

func (k Kind) String() string {
	switch k {
	case KindLUT:
		return "lut"
	case KindRadiance:
		return "radiance"
	case KindPostProcess:
		return "post_process"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is what happened to one pass in a frame.
type Outcome int

const (
	// OutcomeRecorded means the pass recorded its GPU work.
	OutcomeRecorded Outcome = iota
	// OutcomeLoading means the stage's kernels are still compiling; nothing was recorded.
	OutcomeLoading
	// OutcomeAbsent means a texture the pass needs does not exist yet; nothing was recorded
	// and the previous contents of its outputs stand.
	OutcomeAbsent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRecorded:
		return "recorded"
	case OutcomeLoading:
		return "loading"
	case OutcomeAbsent:
		return "absent"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// PassReport is the outcome of one pass.
type PassReport struct {
	Pass    string
	Outcome Outcome
	// Missing names the resources that were absent.
	Missing []string
}

// Report lists the passes of one stage in recording order.
type Report struct {
	Stage  string
	Kind   Kind
	Passes []PassReport
}

// Outcome returns the outcome of a pass.
//
// Parameters:
//   - pass: the pass name
//
// Returns:
//   - Outcome: the outcome
//   - bool: false if the stage has no such pass
func (r Report) Outcome(pass string) (Outcome, bool) {
	for _, p := range r.Passes {
		if p.Pass == pass {
			return p.Outcome, true
		}
	}
	return 0, false
}

// Recorded counts the passes that recorded work.
func (r Report) Recorded() int {
	n := 0
	for _, p := range r.Passes {
		if p.Outcome == OutcomeRecorded {
			n++
		}
	}
	return n
}

// LoadingReport builds the report of a stage that is not ready: every pass Loading.
//
// Parameters:
//   - s: the stage
//   - ctx: the frame, used to name per-view passes
//
// Returns:
//   - Report: the report
func LoadingReport(s Stage, ctx *FrameContext) Report {
	report := Report{Stage: s.Name(), Kind: s.Kind()}
	for _, pass := range s.Passes(ctx) {
		report.Passes = append(report.Passes, PassReport{Pass: pass, Outcome: OutcomeLoading})
	}
	return report
}

// Uniform keys written by the scheduler and the post-process stage.
const (
	UniformParameters          = "atmosphere_parameters"
	UniformGlobals             = "globals"
	UniformPostProcessSettings = "post_process_settings"
)

// ViewUniformKey is the uniform key of a view's camera data.
func ViewUniformKey(label string) string {
	return "view/" + label
}

// LightUniformKey is the uniform key of a view's directional light.
func LightUniformKey(label string) string {
	return "light/" + label
}

// View is one camera the post-process stage composites for. Its textures belong to the
// renderer; a nil texture is treated as absent.
type View struct {
	Label   string
	Uniform camera.ViewUniform
	Light   light.DirectionalLightUniform

	// Color is the scene colour written by the main pass.
	Color resource_set.Texture
	// Depth is the scene depth written by the main pass.
	Depth resource_set.Texture
	// Target receives the composited colour.
	Target resource_set.Texture
	// ShadowMap is the directional light's depth array.
	ShadowMap resource_set.Texture
}

// FrameContext is the immutable input of one frame. Stages never see the mutable
// atmosphere controller, only the snapshot copied into the context before the DAG runs.
type FrameContext struct {
	Frame     uint64
	Snapshot  atmosphere.Snapshot
	Globals   atmosphere.Globals
	Resources resource_set.ResourceSet
	Views     []View
}

// Stage is one node of the sky DAG.
type Stage interface {
	// Kind returns the stage variant.
	Kind() Kind

	// Name returns the stage name used in reports and logs.
	Name() string

	// Passes returns the pass names the stage records for a frame, in order.
	//
	// Parameters:
	//   - ctx: the frame; per-view stages name one pass per view
	//
	// Returns:
	//   - []string: the pass names
	Passes(ctx *FrameContext) []string

	// PollReady polls the kernel registries the stage depends on without blocking.
	//
	// Returns:
	//   - bool: true once every kernel compiled
	//   - error: a compile failure reported by a registry
	PollReady() (bool, error)

	// Record records the stage's passes. A stage that is not ready records nothing and
	// reports every pass Loading; a pass missing a texture records nothing and reports Absent.
	//
	// Parameters:
	//   - ctx: the frame
	//   - rec: the command recorder
	//
	// Returns:
	//   - Report: the outcome of every pass
	//   - error: ErrBindingMismatch or a recorder error; absence is never an error
	Record(ctx *FrameContext, rec Recorder) (Report, error)
}
