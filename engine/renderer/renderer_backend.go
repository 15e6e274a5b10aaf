package renderer

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/stage"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

func (m PresentMode) String() string {
	if m == PresentModeVSync {
		return "vsync"
	}
	return "uncapped"
}

var (
	// ErrNoFrame is returned by the recording calls outside BeginFrame/EndFrame.
	ErrNoFrame = errors.New("renderer: no frame in progress")

	// ErrNotCompiled is returned when a pass references a pipeline the backend never compiled.
	ErrNotCompiled = errors.New("renderer: pipeline not compiled")

	// ErrUnknownUniform is returned when a bind group names a uniform that was never written.
	ErrUnknownUniform = errors.New("renderer: uniform not written")
)

// RendererBackend is the GPU side of the Renderer. One backend allocates the sky textures,
// compiles its kernels on the compile pool and records every pass of a frame into one
// command encoder.
type RendererBackend interface {
	resource_set.Allocator
	pipeline_registry.Compiler
	stage.Recorder

	// SurfaceFormat returns the format chosen by the last ConfigureSurface.
	SurfaceFormat() wgpu.TextureFormat

	// ConfigureSurface is a wrapper for boilerplate logic required when calling ConfigureSurface on a surface.
	// This is required when the surface size changes, such as when the window is resized.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - error: an error if the surface reports no usable format
	ConfigureSurface(width, height int) error

	// SetPresentMode sets the surface present mode. It takes effect on the next ConfigureSurface.
	//
	// Parameters:
	//   - mode: the PresentMode to use (VSync or Uncapped)
	SetPresentMode(mode PresentMode)

	// ClearDepth records a depth-only pass clearing the first layer of a depth texture to 1.
	//
	// Parameters:
	//   - target: the depth texture
	//
	// Returns:
	//   - error: ErrNoFrame outside a frame
	ClearDepth(target resource_set.Texture) error

	// BeginFrame acquires the next swapchain texture and creates the frame's command encoder.
	// Must be paired with EndFrame.
	//
	// Returns:
	//   - resource_set.Texture: the swapchain texture, valid until Present
	//   - error: an error if the swapchain texture could not be acquired
	BeginFrame() (resource_set.Texture, error)

	// EndFrame finishes the command encoder and submits it to the GPU queue.
	// Does not present the surface; call Present after EndFrame to display the frame.
	//
	// Returns:
	//   - error: ErrNoFrame, or an error finishing the encoder
	EndFrame() error

	// Present presents the surface to the display and releases the swapchain texture.
	Present()

	// Release frees the uniforms, bind groups and samplers, then the device.
	Release()
}
