package window

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

var errNotInitialized = errors.New("window is not initialized")

// Window provides platform windowing and input event handling for the sky viewer.
// Wraps platform-specific window implementations with a common interface.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the function called for mouse wheel events.
	//
	// Parameters:
	//   - callback: function receiving scroll delta (positive = up, negative = down)
	SetScrollCallback(callback func(delta float32))

	// SetKeyDownCallback sets the function called when a key is pressed or repeats.
	//
	// Parameters:
	//   - callback: function receiving the key code
	SetKeyDownCallback(callback func(keyCode uint32))

	// SetDragCallback sets the function called while the cursor moves with the left button held.
	//
	// Parameters:
	//   - callback: function receiving the cursor movement in pixels since the last call
	SetDragCallback(callback func(dx, dy float32))

	// SetTitle replaces the title bar text.
	SetTitle(title string)

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface.
	// The descriptor is platform-appropriate (Windows HWND, X11 Xlib, Wayland, macOS Metal, etc.)
	// and is created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil if window is not initialized
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true if the window is still active.
	//
	// Returns:
	//   - bool: true if window is running, false if closed
	IsRunning() bool

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: error if close operation fails
	Close() error

	// ProcessMessages runs the window message loop until the window closes or ctx is done.
	// Calls the update callback each iteration.
	//
	// Parameters:
	//   - ctx: stops the loop when cancelled
	ProcessMessages(ctx context.Context)

	// Width returns the current framebuffer width in pixels.
	Width() int

	// Height returns the current framebuffer height in pixels.
	Height() int
}

// sizeLimits bounds interactive resizing, in screen coordinates.
type sizeLimits struct {
	minWidth, minHeight int
	maxWidth, maxHeight int
}

// engineWindow is the implementation of the Window interface.
// Holds window configuration, GLFW state, and event callbacks.
type engineWindow struct {
	title     string
	limits    sizeLimits
	resizable bool

	// mu guards the framebuffer size, written by the message loop and read by the renderer.
	mu            sync.Mutex
	width, height int

	platform *glfwWindow

	onUpdate  func()
	onResize  func(width, height int)
	onScroll  func(delta float32)
	onKeyDown func(keyCode uint32)
	onDrag    func(dx, dy float32)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a new Window with the specified options.
// Applies default values first, then each option in order.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the window
//   - error: an error if the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := newEngineWindow(options...)
	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("failed to create platform window: %w", err)
	}
	return w, nil
}

func newEngineWindow(options ...WindowBuilderOption) *engineWindow {
	w := &engineWindow{
		title:     "oxy-sky",
		limits:    sizeLimits{minWidth: 320, minHeight: 200, maxWidth: 3840, maxHeight: 2160},
		resizable: true,
		width:     1280,
		height:    720,
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

// setSize records a new framebuffer size and reports it to the resize callback.
func (w *engineWindow) setSize(width, height int) {
	w.mu.Lock()
	changed := w.width != width || w.height != height
	w.width, w.height = width, height
	w.mu.Unlock()
	if changed && w.onResize != nil {
		w.onResize(width, height)
	}
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyDownCallback(callback func(keyCode uint32)) {
	w.onKeyDown = callback
}

func (w *engineWindow) SetDragCallback(callback func(dx, dy float32)) {
	w.onDrag = callback
}

func (w *engineWindow) SetTitle(title string) {
	w.title = title
	if w.platform != nil {
		w.platform.setTitle(title)
	}
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	if w.platform == nil {
		return nil
	}
	return w.platform.surfaceDescriptor()
}

func (w *engineWindow) IsRunning() bool {
	return w.platform != nil && w.platform.isRunning()
}

func (w *engineWindow) Close() error {
	if w.platform == nil {
		return errNotInitialized
	}
	w.platform.close()
	w.platform = nil
	return nil
}

func (w *engineWindow) ProcessMessages(ctx context.Context) {
	for w.IsRunning() && ctx.Err() == nil {
		w.platform.poll()
		if !w.IsRunning() {
			break
		}

		if w.onUpdate != nil {
			w.onUpdate()
		}

		runtime.Gosched()
	}
}

func (w *engineWindow) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width
}

func (w *engineWindow) Height() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.height
}

// dragState turns cursor positions into movement deltas while the left button is held.
type dragState struct {
	active       bool
	lastX, lastY float64
}

func (d *dragState) press(x, y float64) {
	d.active = true
	d.lastX, d.lastY = x, y
}

func (d *dragState) release() {
	d.active = false
}

// move returns the movement since the last position, and false when no drag is active.
func (d *dragState) move(x, y float64) (dx, dy float32, ok bool) {
	if !d.active {
		return 0, 0, false
	}
	dx, dy = float32(x-d.lastX), float32(y-d.lastY)
	d.lastX, d.lastY = x, y
	return dx, dy, true
}
