// Package renderer is the WebGPU side of the sky viewer. It allocates the sky textures,
// compiles kernels for the pipeline registries, owns the per-view render targets and records
// the skybox and tonemap passes around the sky stages.
package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-sky/engine/log"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/scheduler"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/stage"
	"github.com/Carmen-Shannon/oxy-sky/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
)

var logger = log.New("renderer")

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu sync.Mutex

	pipelineCache map[string]pipeline.Pipeline

	backendType RendererBackendType
	backend     RendererBackend

	width, height uint32
	views         map[string]ViewTargets
	target        resource_set.Texture
	exposure      float32

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	pendingPresentMode   *PresentMode
}

// ViewTargets are the renderer-owned textures one view renders through.
type ViewTargets struct {
	// Color is the HDR scene colour the skybox is drawn into.
	Color resource_set.Texture
	// Depth is the scene depth, cleared every frame.
	Depth resource_set.Texture
	// Target receives the aerial perspective composite.
	Target resource_set.Texture
	// ShadowMap is the directional light's shadow map.
	ShadowMap resource_set.Texture
}

func (t ViewTargets) all() []resource_set.Texture {
	return []resource_set.Texture{t.Color, t.Depth, t.Target, t.ShadowMap}
}

// Renderer defines the interface for the rendering system.
//
// The Renderer is the sky's backend: it allocates textures and compiles kernels through
// its RendererBackend. It also keeps a cache of the pipelines it compiled itself, the
// per-view targets, and the frame's swap chain texture.
type Renderer interface {
	sky.Backend

	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// Pipelines retrieves a copy of the pipeline cache.
	//
	// Returns:
	//   - map[string]pipeline.Pipeline: a map of pipeline keys to their corresponding Pipeline objects
	Pipelines() map[string]pipeline.Pipeline

	// RegisterPipelines compiles one or more pipelines synchronously through the backend,
	// then caches them by PipelineKey. Pipelines whose keys are already registered are
	// skipped to avoid duplicate GPU resource creation.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// Resize configures the underlying backend to handle a new surface size and drops the
	// view targets; they are recreated at the new size on next use.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - error: an error if the surface could not be configured
	Resize(width, height int) error

	// Size returns the surface size in pixels.
	Size() (width, height int)

	// SetPresentMode changes the present mode and reconfigures the surface.
	//
	// Parameters:
	//   - mode: the PresentMode to use
	SetPresentMode(mode PresentMode) error

	// Exposure returns the exposure multiplier applied on top of the atmosphere's.
	Exposure() float32

	// SetExposure sets the exposure multiplier.
	SetExposure(exposure float32)

	// ViewTargets returns the targets of a view, allocating them at the surface size on first use.
	//
	// Parameters:
	//   - label: the view label
	//
	// Returns:
	//   - ViewTargets: the targets
	//   - error: an allocation error
	ViewTargets(label string) (ViewTargets, error)

	// BeginFrame acquires the swap chain texture and opens the frame's command encoder.
	//
	// Returns:
	//   - stage.Recorder: the recorder every pass of the frame is recorded into
	//   - error: an error if the swap chain texture could not be acquired
	BeginFrame() (stage.Recorder, error)

	// EndFrame submits the recorded frame.
	EndFrame() error

	// Present presents the frame and releases the swap chain texture.
	Present()

	// MainPass returns the scheduler hook drawing the skybox from the sky's environment.
	//
	// Parameters:
	//   - environment: returns the cubemaps, resource_set.ErrAbsent before the sky is set up
	//
	// Returns:
	//   - scheduler.Hook: the hook
	MainPass(environment func() (sky.Environment, error)) scheduler.Hook

	// Tonemapping returns the scheduler hook mapping the first view to the swap chain.
	Tonemapping() scheduler.Hook

	// Release frees the view targets, the cached pipelines and the backend.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates the renderer for a window.
//
// Parameters:
//   - backendType: the GPU backend to use
//   - w: the window whose surface is rendered to
//   - options: functional options to configure the renderer
//
// Returns:
//   - Renderer: the renderer
//   - error: an error if no adapter or device is available, or the viewer pipelines fail to compile
func NewRenderer(backendType RendererBackendType, w window.Window, options ...RendererBuilderOption) (Renderer, error) {
	r := newRenderer(options...)
	r.backendType = backendType

	var backend RendererBackend
	switch backendType {
	case BackendTypeWGPU:
		b, err := newWGPURendererBackend(w.SurfaceDescriptor(), r.forceFallbackAdapter)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("renderer: unsupported backend type %d", backendType)
	}

	if err := r.init(backend, w.Width(), w.Height()); err != nil {
		backend.Release()
		return nil, err
	}
	return r, nil
}

func newRenderer(options ...RendererBuilderOption) *renderer {
	r := &renderer{
		pipelineCache: make(map[string]pipeline.Pipeline),
		views:         make(map[string]ViewTargets),
		exposure:      1,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// init configures the surface and compiles the skybox and tonemap pipelines.
func (r *renderer) init(backend RendererBackend, width, height int) error {
	r.backend = backend
	if r.pendingPresentMode != nil {
		backend.SetPresentMode(*r.pendingPresentMode)
	}
	if err := r.Resize(width, height); err != nil {
		return err
	}

	skybox, err := SkyboxPipeline()
	if err != nil {
		return err
	}
	tonemap, err := TonemapPipeline(backend.SurfaceFormat())
	if err != nil {
		return err
	}
	if err := r.RegisterPipelines(skybox, tonemap); err != nil {
		return err
	}
	logger.Infof("initialized %dx%d, surface format %v", width, height, backend.SurfaceFormat())
	return nil
}

func (r *renderer) CreateTexture(spec resource_set.TextureSpec) (resource_set.Texture, error) {
	return r.backend.CreateTexture(spec)
}

func (r *renderer) Compile(p pipeline.Pipeline) error {
	return r.backend.Compile(p)
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]pipeline.Pipeline, len(r.pipelineCache))
	for k, p := range r.pipelineCache {
		out[k] = p
	}
	return out
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	for _, p := range pipelines {
		key := p.PipelineKey()
		if r.Pipeline(key) != nil {
			continue
		}
		if err := r.backend.Compile(p); err != nil {
			return fmt.Errorf("failed to register pipeline %s: %w", key, err)
		}
		r.mu.Lock()
		r.pipelineCache[key] = p
		r.mu.Unlock()
	}
	return nil
}

func (r *renderer) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	if err := r.backend.ConfigureSurface(width, height); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.width, r.height = uint32(width), uint32(height)
	for label, targets := range r.views {
		for _, t := range targets.all() {
			t.Release()
		}
		delete(r.views, label)
	}
	return nil
}

func (r *renderer) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.width), int(r.height)
}

func (r *renderer) SetPresentMode(mode PresentMode) error {
	r.backend.SetPresentMode(mode)
	width, height := r.Size()
	if err := r.backend.ConfigureSurface(width, height); err != nil {
		return err
	}
	logger.Infof("present mode %s", mode)
	return nil
}

func (r *renderer) Exposure() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exposure
}

func (r *renderer) SetExposure(exposure float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exposure = max(exposure, 0)
}

// ViewTargetSpecs describes the targets of a view at a surface size, in ViewTargets field order.
//
// Parameters:
//   - label: the view label
//   - width: the surface width
//   - height: the surface height
//
// Returns:
//   - []resource_set.TextureSpec: colour, depth, target and shadow map
func ViewTargetSpecs(label string, width, height uint32) []resource_set.TextureSpec {
	flat := func(name string, w, h uint32, format wgpu.TextureFormat, view wgpu.TextureViewDimension, usage wgpu.TextureUsage) resource_set.TextureSpec {
		return resource_set.TextureSpec{
			Key:                resource_set.TextureKeyExternal,
			Label:              label + "_" + name,
			Width:              w,
			Height:             h,
			DepthOrArrayLayers: 1,
			Dimension:          wgpu.TextureDimension2D,
			ViewDimension:      view,
			Format:             format,
			Usage:              usage,
		}
	}
	attachment := wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding
	return []resource_set.TextureSpec{
		flat("color", width, height, SceneFormat, wgpu.TextureViewDimension2D, attachment|wgpu.TextureUsageCopySrc),
		flat("depth", width, height, DepthFormat, wgpu.TextureViewDimension2D, attachment),
		flat("target", width, height, SceneFormat, wgpu.TextureViewDimension2D, attachment|wgpu.TextureUsageCopyDst),
		flat("shadow_map", ShadowMapSize, ShadowMapSize, DepthFormat, wgpu.TextureViewDimension2DArray, attachment),
	}
}

func (r *renderer) ViewTargets(label string) (ViewTargets, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if targets, ok := r.views[label]; ok {
		return targets, nil
	}

	specs := ViewTargetSpecs(label, r.width, r.height)
	created := make([]resource_set.Texture, 0, len(specs))
	for _, spec := range specs {
		tex, err := r.backend.CreateTexture(spec)
		if err != nil {
			for _, t := range created {
				t.Release()
			}
			return ViewTargets{}, err
		}
		created = append(created, tex)
	}
	targets := ViewTargets{Color: created[0], Depth: created[1], Target: created[2], ShadowMap: created[3]}
	r.views[label] = targets
	logger.Debugf("allocated targets for view %s at %dx%d", label, r.width, r.height)
	return targets, nil
}

func (r *renderer) BeginFrame() (stage.Recorder, error) {
	target, err := r.backend.BeginFrame()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.target = target
	r.mu.Unlock()
	return r.backend, nil
}

// frameTarget returns the swap chain texture of the frame in progress.
func (r *renderer) frameTarget() resource_set.Texture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

func (r *renderer) EndFrame() error {
	return r.backend.EndFrame()
}

func (r *renderer) Present() {
	r.backend.Present()
	r.mu.Lock()
	r.target = nil
	r.mu.Unlock()
}

func (r *renderer) Release() {
	r.mu.Lock()
	for label, targets := range r.views {
		for _, t := range targets.all() {
			t.Release()
		}
		delete(r.views, label)
	}
	for key, p := range r.pipelineCache {
		p.Release()
		delete(r.pipelineCache, key)
	}
	r.target = nil
	r.mu.Unlock()

	if r.backend != nil {
		r.backend.Release()
	}
}
