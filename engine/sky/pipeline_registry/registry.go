// Package pipeline_registry compiles the kernels of one sky stage family off the frame loop
// and exposes a monotonic Loading → Ready state the stages poll once per frame.
package pipeline_registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-sky/engine/log"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/pipeline"
)

var logger = log.New("sky/pipeline_registry")

// Family identifies a group of kernels sharing one layout.
type Family int

const (
	FamilyLUT Family = iota
	FamilyRadiance
	FamilyPostProcess
)

func (f Family) String() string {
	switch f {
	case FamilyLUT:
		return "lut"
	case FamilyRadiance:
		return "radiance"
	case FamilyPostProcess:
		return "post_process"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// Layouts returns the fixed bind group layouts of the family, indexed by group.
func (f Family) Layouts() []Layout {
	switch f {
	case FamilyLUT:
		return []Layout{LUTLayout()}
	case FamilyRadiance:
		return []Layout{RadianceLayout()}
	case FamilyPostProcess:
		return []Layout{PostProcessLayout(), ShadowLayout()}
	default:
		return nil
	}
}

// State is the compile state of a registry.
type State int32

const (
	StateLoading State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "loading"
}

// Compiler turns a pipeline description into GPU objects and attaches them with
// Pipeline.SetCompiled. The WebGPU renderer implements it; it is called from worker goroutines.
type Compiler interface {
	// Compile creates the GPU pipeline.
	//
	// Parameters:
	//   - p: the pipeline to compile
	//
	// Returns:
	//   - error: an error if the device rejected the pipeline
	Compile(p pipeline.Pipeline) error
}

// Validator checks kernel source before it reaches the device.
type Validator func(key, source string) error

// registry is the implementation of the Registry interface.
type registry struct {
	family    Family
	layouts   []Layout
	compiler  Compiler
	validator Validator
	pool      worker.DynamicWorkerPool
	workers   int

	state atomic.Int32

	mu        sync.Mutex
	pipelines map[string]pipeline.Pipeline
	order     []string
	pending   int
	failed    error
	taskID    int
}

// Registry owns the kernels of one stage family.
type Registry interface {
	// Family returns the stage family.
	Family() Family

	// Layouts returns the family's fixed layouts, indexed by group.
	Layouts() []Layout

	// Submit checks each pipeline against the family layouts and queues it for asynchronous
	// compilation. Submit never blocks on compilation.
	//
	// Parameters:
	//   - pipelines: the kernels to compile
	//
	// Returns:
	//   - error: ErrLayoutMismatch, ErrDuplicateKernel or ErrSealed; nothing is queued on error
	Submit(pipelines ...pipeline.Pipeline) error

	// Poll reports the state without blocking. The registry becomes Ready once every submitted
	// kernel compiled; Ready is never left again.
	//
	// Returns:
	//   - State: the current state
	//   - error: a *CompileError once any kernel failed; the registry then stays Loading
	Poll() (State, error)

	// State returns the state without re-evaluating pending compilations.
	State() State

	// Pipeline looks up a submitted kernel.
	//
	// Parameters:
	//   - key: the pipeline key
	//
	// Returns:
	//   - pipeline.Pipeline: the pipeline
	//   - bool: false if no kernel with the key was submitted
	Pipeline(key string) (pipeline.Pipeline, bool)

	// Keys returns the submitted kernel keys in submission order.
	Keys() []string

	// Release frees the compiled GPU objects.
	Release()
}

var _ Registry = &registry{}

// New creates a registry for a stage family.
//
// Parameters:
//   - family: the stage family whose layouts kernels must match
//   - compiler: the pipeline compiler
//   - options: optional configuration
//
// Returns:
//   - Registry: the registry, Loading until kernels are submitted and compiled
func New(family Family, compiler Compiler, options ...RegistryBuilderOption) Registry {
	r := &registry{
		family:    family,
		layouts:   family.Layouts(),
		compiler:  compiler,
		workers:   2,
		pipelines: make(map[string]pipeline.Pipeline),
	}
	for _, opt := range options {
		opt(r)
	}
	if r.pool == nil {
		r.pool = worker.NewDynamicWorkerPool(r.workers, 256, time.Second)
	}
	return r
}

func (r *registry) Family() Family {
	return r.family
}

func (r *registry) Layouts() []Layout {
	return slices.Clone(r.layouts)
}

func (r *registry) State() State {
	return State(r.state.Load())
}

func (r *registry) Submit(pipelines ...pipeline.Pipeline) error {
	if r.State() == StateReady {
		return ErrSealed
	}
	for _, p := range pipelines {
		if err := r.check(p); err != nil {
			return err
		}
	}

	r.mu.Lock()
	for i, p := range pipelines {
		if _, dup := r.pipelines[p.PipelineKey()]; dup || slices.ContainsFunc(pipelines[:i], func(q pipeline.Pipeline) bool {
			return q.PipelineKey() == p.PipelineKey()
		}) {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateKernel, p.PipelineKey())
		}
	}

	tasks := make([]worker.Task, 0, len(pipelines))
	for _, p := range pipelines {
		r.pipelines[p.PipelineKey()] = p
		r.order = append(r.order, p.PipelineKey())
		r.pending++

		pCap := p
		tasks = append(tasks, worker.Task{
			ID: r.taskID,
			Do: func() (any, error) {
				err := r.compile(pCap)
				r.finish(pCap.PipelineKey(), err)
				return nil, err
			},
		})
		r.taskID++
	}
	r.mu.Unlock()

	// tasks call finish, which takes r.mu
	for i, task := range tasks {
		r.pool.SubmitTask(task)
		logger.Debugf("%s: queued %s", r.family, pipelines[i].PipelineKey())
	}
	return nil
}

// check verifies that the pipeline is built against the family layouts and that its shaders
// declare nothing the layouts do not.
func (r *registry) check(p pipeline.Pipeline) error {
	descs := p.BindGroupLayoutDescriptors()
	if len(descs) != len(r.layouts) {
		return fmt.Errorf("%w: %s declares %d bind groups, %s uses %d", ErrLayoutMismatch, p.PipelineKey(), len(descs), r.family, len(r.layouts))
	}
	for g, layout := range r.layouts {
		if err := layout.Matches(descs[g]); err != nil {
			return fmt.Errorf("%s: %w", p.PipelineKey(), err)
		}
		if len(descs[g].Entries) != len(layout.Slots) {
			return fmt.Errorf("%w: %s group %d has %d bindings, want %d", ErrLayoutMismatch, p.PipelineKey(), g, len(descs[g].Entries), len(layout.Slots))
		}
	}
	for _, s := range p.Shaders() {
		for g, desc := range s.BindGroupLayoutDescriptors() {
			if g < 0 || g >= len(r.layouts) {
				return fmt.Errorf("%w: %s uses group %d", ErrLayoutMismatch, s.Key(), g)
			}
			if err := r.layouts[g].Matches(desc); err != nil {
				return fmt.Errorf("%s: %w", s.Key(), err)
			}
		}
	}
	return nil
}

func (r *registry) compile(p pipeline.Pipeline) error {
	if r.validator != nil {
		for _, s := range p.Shaders() {
			if err := r.validator(s.Key(), s.Source()); err != nil {
				return err
			}
		}
	}
	return r.compiler.Compile(p)
}

func (r *registry) finish(key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending--
	if err != nil {
		if r.failed == nil {
			r.failed = &CompileError{Kernel: key, Err: err}
		}
		logger.Errorf("%s: %s failed to compile: %v", r.family, key, err)
		return
	}
	logger.Debugf("%s: compiled %s", r.family, key)
}

func (r *registry) Poll() (State, error) {
	if r.State() == StateReady {
		return StateReady, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failed != nil {
		return StateLoading, r.failed
	}
	if len(r.order) == 0 || r.pending > 0 {
		return StateLoading, nil
	}
	if r.state.CompareAndSwap(int32(StateLoading), int32(StateReady)) {
		logger.Infof("%s: %d kernels ready", r.family, len(r.order))
	}
	return StateReady, nil
}

func (r *registry) Pipeline(key string) (pipeline.Pipeline, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pipelines[key]
	return p, ok
}

func (r *registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

func (r *registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pipelines {
		p.Release()
	}
}

// IsCompileError reports whether err carries a kernel compile failure.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}
