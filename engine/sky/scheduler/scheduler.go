// Package scheduler runs the sky stages once per frame in a fixed dependency order.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-sky/engine/atmosphere"
	"github.com/Carmen-Shannon/oxy-sky/engine/log"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/stage"
)

var logger = log.New("sky/scheduler")

var (
	// ErrFatal wraps errors the frame loop cannot recover from, such as a kernel that failed
	// to compile. Once returned, every later RunFrame returns the same error.
	ErrFatal = errors.New("scheduler: fatal")

	// ErrStageKind is returned by New when a stage is passed in the wrong position.
	ErrStageKind = errors.New("scheduler: wrong stage kind")
)

// Hook is an external node of the graph, recorded by the renderer on the same command stream.
//
// Parameters:
//   - fc: the frame being recorded
//   - rec: the recorder
//   - report: the stages recorded so far this frame
//
// Returns:
//   - error: a recording error, returned from RunFrame
type Hook func(fc *stage.FrameContext, rec stage.Recorder, report FrameReport) error

// FrameReport lists what every stage did in one frame.
type FrameReport struct {
	Frame    uint64
	Revision uint64
	Stages   []stage.Report
	Duration time.Duration
}

// Stage returns the report of a stage kind.
func (r FrameReport) Stage(kind stage.Kind) (stage.Report, bool) {
	for _, s := range r.Stages {
		if s.Kind == kind {
			return s, true
		}
	}
	return stage.Report{}, false
}

// Outcome returns the outcome of a pass of any stage.
func (r FrameReport) Outcome(pass string) (stage.Outcome, bool) {
	for _, s := range r.Stages {
		if o, ok := s.Outcome(pass); ok {
			return o, true
		}
	}
	return 0, false
}

// Passes returns every pass report in recording order.
func (r FrameReport) Passes() []stage.PassReport {
	var out []stage.PassReport
	for _, s := range r.Stages {
		out = append(out, s.Passes...)
	}
	return out
}

// Recorded counts the passes that recorded work.
func (r FrameReport) Recorded() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Recorded()
	}
	return n
}

// Frame is the input of RunFrame.
type Frame struct {
	// Snapshot is copied from the atmosphere controller before the frame starts.
	Snapshot atmosphere.Snapshot
	Views    []stage.View
	Recorder stage.Recorder
}

type scheduler struct {
	resources resource_set.ResourceSet
	stages    map[Node]stage.Stage

	mainPass   Hook
	tonemap    Hook
	clock      func() time.Time
	start      time.Time
	lastFrame  time.Time
	frameCount uint64

	mu    sync.Mutex
	fatal error
}

// Scheduler drives the sky DAG.
type Scheduler interface {
	// RunFrame records one frame: Setup, LUT, Radiance, MainPass, PostProcess, Tonemapping.
	// Stages whose kernels are still compiling record nothing; passes missing a texture are
	// skipped. Neither is an error.
	//
	// Parameters:
	//   - ctx: checked before the frame starts; a frame in progress is always finished
	//   - frame: the snapshot, views and recorder of the frame
	//
	// Returns:
	//   - FrameReport: the outcome of every pass
	//   - error: ctx.Err(), an error wrapping ErrFatal, or a recording error
	RunFrame(ctx context.Context, frame Frame) (FrameReport, error)

	// Stages returns the sky stages in execution order.
	Stages() []stage.Stage

	// Order returns the nodes in execution order.
	Order() []Node

	// Graph returns the dependency edges.
	Graph() []Edge
}

var _ Scheduler = &scheduler{}

// New creates a scheduler over the three sky stages.
//
// Parameters:
//   - resources: the resource set the snapshot is published to
//   - lut: the LUT stage
//   - radiance: the radiance stage
//   - postProcess: the post-process stage
//   - options: optional configuration
//
// Returns:
//   - Scheduler: the scheduler
//   - error: ErrStageKind if a stage is not of the kind its position requires
func New(resources resource_set.ResourceSet, lut, radiance, postProcess stage.Stage, options ...SchedulerBuilderOption) (Scheduler, error) {
	stages := map[Node]stage.Stage{NodeLUT: lut, NodeRadiance: radiance, NodePostProcess: postProcess}
	for node, s := range stages {
		if s == nil || s.Kind() != node.kind() {
			return nil, fmt.Errorf("%w: %s node", ErrStageKind, node)
		}
	}
	s := &scheduler{
		resources: resources,
		stages:    stages,
		clock:     time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func (s *scheduler) Stages() []stage.Stage {
	var out []stage.Stage
	for _, node := range order {
		if st, ok := s.stages[node]; ok {
			out = append(out, st)
		}
	}
	return out
}

func (s *scheduler) Order() []Node {
	return Nodes()
}

func (s *scheduler) Graph() []Edge {
	return Edges()
}

func (s *scheduler) RunFrame(ctx context.Context, frame Frame) (FrameReport, error) {
	if err := ctx.Err(); err != nil {
		return FrameReport{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fatal != nil {
		return FrameReport{}, s.fatal
	}

	started := s.clock()
	fc, err := s.setup(frame)
	if err != nil {
		return FrameReport{}, err
	}
	report := FrameReport{Frame: fc.Frame, Revision: fc.Snapshot.Revision}

	for _, node := range order {
		switch node {
		case NodeSetup:
			continue
		case NodeMainPass:
			if err := s.runHook(node, s.mainPass, fc, frame.Recorder, report); err != nil {
				return report, err
			}
		case NodeTonemapping:
			if err := s.runHook(node, s.tonemap, fc, frame.Recorder, report); err != nil {
				return report, err
			}
		default:
			r, err := s.runStage(s.stages[node], fc, frame.Recorder)
			if err != nil {
				return report, err
			}
			report.Stages = append(report.Stages, r)
		}
	}
	report.Duration = s.clock().Sub(started)
	return report, nil
}

// setup publishes the snapshot, builds the frame context and writes the frame uniforms.
func (s *scheduler) setup(frame Frame) (*stage.FrameContext, error) {
	now := s.clock()
	if s.frameCount == 0 {
		s.start = now
		s.lastFrame = now
	}
	s.frameCount++

	s.resources.Publish(frame.Snapshot)
	snapshot, err := s.resources.Snapshot()
	if err != nil {
		return nil, err
	}
	fc := &stage.FrameContext{
		Frame:    s.frameCount,
		Snapshot: snapshot,
		Globals: atmosphere.Globals{
			Time:       float32(now.Sub(s.start).Seconds()),
			DeltaTime:  float32(now.Sub(s.lastFrame).Seconds()),
			FrameCount: uint32(s.frameCount),
		},
		Resources: s.resources,
		Views:     frame.Views,
	}
	s.lastFrame = now

	uniforms := []struct {
		key  string
		data []byte
	}{
		{stage.UniformParameters, fc.Snapshot.Parameters.Marshal()},
		{stage.UniformGlobals, fc.Globals.Marshal()},
		{stage.UniformPostProcessSettings, fc.Snapshot.PostProcess.Marshal()},
	}
	for _, u := range uniforms {
		if err := frame.Recorder.WriteUniform(u.key, u.data); err != nil {
			return nil, fmt.Errorf("setup: write %s: %w", u.key, err)
		}
	}
	return fc, nil
}

func (s *scheduler) runStage(st stage.Stage, fc *stage.FrameContext, rec stage.Recorder) (stage.Report, error) {
	ready, err := st.PollReady()
	if err != nil {
		s.fatal = fmt.Errorf("%w: %s stage: %w", ErrFatal, st.Name(), err)
		logger.Errorf("%v", s.fatal)
		return stage.Report{}, s.fatal
	}
	if !ready {
		logger.Debugf("frame %d: %s loading", fc.Frame, st.Name())
		return stage.LoadingReport(st, fc), nil
	}
	r, err := st.Record(fc, rec)
	if err != nil {
		if errors.Is(err, stage.ErrBindingMismatch) || errors.Is(err, stage.ErrUnknownKernel) {
			s.fatal = fmt.Errorf("%w: %s stage: %w", ErrFatal, st.Name(), err)
			logger.Errorf("%v", s.fatal)
			return r, s.fatal
		}
		return r, fmt.Errorf("%s stage: %w", st.Name(), err)
	}
	return r, nil
}

func (s *scheduler) runHook(node Node, hook Hook, fc *stage.FrameContext, rec stage.Recorder, report FrameReport) error {
	if hook == nil {
		return nil
	}
	if err := hook(fc, rec, report); err != nil {
		return fmt.Errorf("%s: %w", node, err)
	}
	return nil
}
