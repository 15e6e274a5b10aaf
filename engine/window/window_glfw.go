package window

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// glfwWindow holds the GLFW-specific window state and forwards GLFW events to the
// engineWindow callbacks.
type glfwWindow struct {
	parent  *engineWindow
	window  *glfw.Window
	running bool
	drag    dragState
}

// newPlatformWindow creates the GLFW window with input callbacks and attaches it to w.
//
// GLFW reference: https://www.glfw.org/docs/latest/window_guide.html
// go-gl/glfw: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw
func newPlatformWindow(w *engineWindow) error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize GLFW: %v", err)
	}

	// WebGPU provides its own graphics API, so disable OpenGL context creation.
	// Reference: https://www.glfw.org/docs/latest/window_guide.html#window_hints_ctx
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfwBool(w.resizable))

	win, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("failed to create GLFW window: %v", err)
	}
	l := w.limits
	win.SetSizeLimits(l.minWidth, l.minHeight, l.maxWidth, l.maxHeight)

	gw := &glfwWindow{parent: w, window: win, running: true}
	win.SetKeyCallback(gw.onKey)
	win.SetScrollCallback(gw.onScroll)
	win.SetMouseButtonCallback(gw.onMouseButton)
	win.SetCursorPosCallback(gw.onCursorPos)
	// The framebuffer size, not the window size, is what the surface is configured with.
	// They differ on high-DPI displays.
	win.SetFramebufferSizeCallback(gw.onFramebufferSize)
	w.platform = gw

	w.mu.Lock()
	w.width, w.height = win.GetFramebufferSize()
	w.mu.Unlock()
	return nil
}

func glfwBool(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}

// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Window.SetKeyCallback
func (gw *glfwWindow) onKey(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	if action == glfw.Release {
		return
	}
	if key == glfw.KeyEscape {
		gw.running = false
		gw.window.SetShouldClose(true)
		return
	}
	if cb := gw.parent.onKeyDown; cb != nil {
		cb(uint32(key))
	}
}

func (gw *glfwWindow) onScroll(_ *glfw.Window, _, yoff float64) {
	if cb := gw.parent.onScroll; cb != nil {
		cb(float32(yoff))
	}
}

func (gw *glfwWindow) onMouseButton(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
	if button != glfw.MouseButtonLeft {
		return
	}
	if action == glfw.Release {
		gw.drag.release()
		return
	}
	gw.drag.press(gw.window.GetCursorPos())
}

func (gw *glfwWindow) onCursorPos(_ *glfw.Window, x, y float64) {
	dx, dy, ok := gw.drag.move(x, y)
	if cb := gw.parent.onDrag; ok && cb != nil {
		cb(dx, dy)
	}
}

func (gw *glfwWindow) onFramebufferSize(_ *glfw.Window, width, height int) {
	gw.parent.setSize(width, height)
}

// surfaceDescriptor uses the wgpuglfw bridge, which has per-platform implementations
// for Windows, X11, Wayland and macOS.
//
// Reference: https://pkg.go.dev/github.com/cogentcore/webgpu/wgpuglfw#GetSurfaceDescriptor
func (gw *glfwWindow) surfaceDescriptor() *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(gw.window)
}

func (gw *glfwWindow) setTitle(title string) {
	gw.window.SetTitle(title)
}

func (gw *glfwWindow) isRunning() bool {
	return gw.running && !gw.window.ShouldClose()
}

// poll processes pending events without blocking.
//
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#PollEvents
func (gw *glfwWindow) poll() {
	glfw.PollEvents()
}

// close destroys the GLFW window and terminates the GLFW library.
func (gw *glfwWindow) close() {
	gw.running = false
	gw.window.SetShouldClose(true)
	gw.window.Destroy()
	glfw.Terminate()
}
