// Package sky wires the sky pipeline together: one ResourceSet, a kernel registry per stage
// family sharing one compile pool, the three stages and the scheduler running them.
package sky

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-sky/engine/log"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/kernels"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/scheduler"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/stage"
)

var logger = log.New("sky")

// ErrNotSetup is returned by RunFrame before Setup succeeded.
var ErrNotSetup = errors.New("sky: not set up")

// Backend is the GPU side the sky needs: texture allocation and pipeline compilation.
type Backend interface {
	resource_set.Allocator
	pipeline_registry.Compiler
}

// Environment is the pair of cubemaps consumed by the skybox and environment lighting.
type Environment struct {
	Diffuse  resource_set.Texture
	Specular resource_set.Texture
}

// DebugTexture is a texture shown as a thumbnail by a debug UI.
type DebugTexture struct {
	Name    string
	Texture resource_set.Texture
}

// debugKeys is the fixed thumbnail order.
var debugKeys = []resource_set.TextureKey{
	resource_set.TextureKeyTransmittance,
	resource_set.TextureKeyMultipleScattering,
	resource_set.TextureKeySunTransmittance,
	resource_set.TextureKeyCloudVolume,
}

type skyImpl struct {
	faceSize   uint32
	workers    int
	validate   bool
	mainPass   scheduler.Hook
	tonemap    scheduler.Hook
	schedOpts  []scheduler.SchedulerBuilderOption
	resources  resource_set.ResourceSet
	pool       worker.DynamicWorkerPool
	registries []pipeline_registry.Registry

	mu    sync.Mutex
	sched scheduler.Scheduler
}

// Sky is the sky pipeline of one renderer.
type Sky interface {
	// Setup allocates the textures and submits every kernel for compilation. It returns once
	// the kernels are queued; compilation finishes in the background.
	//
	// Parameters:
	//   - backend: the GPU backend
	//
	// Returns:
	//   - error: a texture allocation, kernel parse or layout error; all are fatal
	Setup(backend Backend) error

	// RunFrame records the sky DAG for one frame.
	//
	// Parameters:
	//   - ctx: cancels the frame loop between frames
	//   - frame: the snapshot, views and recorder
	//
	// Returns:
	//   - scheduler.FrameReport: the outcome of every pass
	//   - error: ErrNotSetup, or any error scheduler.Scheduler.RunFrame returns
	RunFrame(ctx context.Context, frame scheduler.Frame) (scheduler.FrameReport, error)

	// Ready reports whether every kernel compiled. It does not poll.
	Ready() bool

	// WaitReady polls the registries until every kernel compiled.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//
	// Returns:
	//   - error: ErrNotSetup, ctx.Err() or the first compile error
	WaitReady(ctx context.Context) error

	// Resources returns the resource set.
	Resources() resource_set.ResourceSet

	// Registries returns the kernel registries in stage order.
	Registries() []pipeline_registry.Registry

	// Scheduler returns the scheduler, nil before Setup.
	Scheduler() scheduler.Scheduler

	// Environment returns the diffuse and specular cubemaps.
	//
	// Returns:
	//   - Environment: the cubemaps
	//   - error: a resource_set.AbsentError before Setup
	Environment() (Environment, error)

	// DebugTextures returns the LUTs in a fixed order.
	//
	// Returns:
	//   - []DebugTexture: the LUT handles
	//   - error: a resource_set.AbsentError before Setup
	DebugTextures() ([]DebugTexture, error)

	// Release frees every GPU object and stops the compile pool.
	Release()
}

var _ Sky = &skyImpl{}

// NewSky creates an unallocated sky.
//
// Parameters:
//   - options: optional configuration
//
// Returns:
//   - Sky: the sky
//   - error: resource_set.ErrTileMisaligned for a face size that does not tile
func NewSky(options ...SkyBuilderOption) (Sky, error) {
	s := &skyImpl{faceSize: resource_set.DefaultFaceSize, workers: 3}
	for _, opt := range options {
		opt(s)
	}
	rs, err := resource_set.New(resource_set.WithFaceSize(s.faceSize))
	if err != nil {
		return nil, err
	}
	s.resources = rs
	return s, nil
}

func (s *skyImpl) Setup(backend Backend) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sched != nil {
		return resource_set.ErrAlreadySetup
	}
	if err := s.resources.Setup(backend); err != nil {
		return err
	}

	s.pool = worker.NewDynamicWorkerPool(s.workers, 256, time.Second)
	regOpts := []pipeline_registry.RegistryBuilderOption{pipeline_registry.WithWorkerPool(s.pool)}
	if s.validate {
		regOpts = append(regOpts, pipeline_registry.WithValidator(kernels.Validate))
	}

	families := []pipeline_registry.Family{pipeline_registry.FamilyLUT, pipeline_registry.FamilyRadiance, pipeline_registry.FamilyPostProcess}
	registries := make([]pipeline_registry.Registry, 0, len(families))
	queued := 0
	for _, family := range families {
		r := pipeline_registry.New(family, backend, regOpts...)
		pipelines, err := kernels.Pipelines(family)
		if err == nil {
			err = r.Submit(pipelines...)
		}
		if err != nil {
			s.abort(registries)
			return fmt.Errorf("sky: %s kernels: %w", family, err)
		}
		registries = append(registries, r)
		queued += len(pipelines)
	}

	opts := append([]scheduler.SchedulerBuilderOption{
		scheduler.WithMainPass(s.mainPass),
		scheduler.WithTonemapping(s.tonemap),
	}, s.schedOpts...)
	sched, err := scheduler.New(s.resources,
		stage.NewLUTStage(registries[0]),
		stage.NewRadianceStage(registries[1], registries[0]),
		stage.NewPostProcessStage(registries[2]),
		opts...,
	)
	if err != nil {
		s.abort(registries)
		return err
	}
	s.registries = registries
	s.sched = sched
	logger.Infof("set up: face size %d, %d kernels queued", s.faceSize, queued)
	return nil
}

// abort undoes a failed Setup.
func (s *skyImpl) abort(registries []pipeline_registry.Registry) {
	for _, r := range registries {
		r.Release()
	}
	s.pool.Stop()
	s.pool = nil
	s.resources.Release()
}

func (s *skyImpl) RunFrame(ctx context.Context, frame scheduler.Frame) (scheduler.FrameReport, error) {
	sched := s.Scheduler()
	if sched == nil {
		return scheduler.FrameReport{}, ErrNotSetup
	}
	return sched.RunFrame(ctx, frame)
}

func (s *skyImpl) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.registries) == 0 {
		return false
	}
	for _, r := range s.registries {
		if r.State() != pipeline_registry.StateReady {
			return false
		}
	}
	return true
}

func (s *skyImpl) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		registries := s.Registries()
		if len(registries) == 0 {
			return ErrNotSetup
		}
		ready := true
		for _, r := range registries {
			state, err := r.Poll()
			if err != nil {
				return err
			}
			ready = ready && state == pipeline_registry.StateReady
		}
		if ready && s.Ready() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *skyImpl) Resources() resource_set.ResourceSet {
	return s.resources
}

func (s *skyImpl) Registries() []pipeline_registry.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pipeline_registry.Registry, len(s.registries))
	copy(out, s.registries)
	return out
}

func (s *skyImpl) Scheduler() scheduler.Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched
}

func (s *skyImpl) Environment() (Environment, error) {
	diffuse, err := s.resources.Texture(resource_set.TextureKeyDiffuseCubemap)
	if err != nil {
		return Environment{}, err
	}
	specular, err := s.resources.Texture(resource_set.TextureKeySpecularCubemap)
	if err != nil {
		return Environment{}, err
	}
	return Environment{Diffuse: diffuse, Specular: specular}, nil
}

func (s *skyImpl) DebugTextures() ([]DebugTexture, error) {
	out := make([]DebugTexture, 0, len(debugKeys))
	for _, key := range debugKeys {
		tex, err := s.resources.Texture(key)
		if err != nil {
			return nil, err
		}
		out = append(out, DebugTexture{Name: key.String(), Texture: tex})
	}
	return out, nil
}

func (s *skyImpl) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.registries {
		r.Release()
	}
	s.registries = nil
	s.sched = nil
	if s.pool != nil {
		s.pool.Stop()
		s.pool = nil
	}
	s.resources.Release()
}
