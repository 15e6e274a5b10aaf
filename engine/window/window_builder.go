package window

import "cmp"

// WindowBuilderOption is a functional option for configuring an engineWindow.
// Use the With* functions to create options.
type WindowBuilderOption func(w *engineWindow)

// WithTitle sets the window title displayed in the title bar.
//
// Parameters:
//   - title: the window title text
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithTitle(title string) WindowBuilderOption {
	return func(w *engineWindow) {
		w.title = title
	}
}

// WithSize sets the requested window size. The framebuffer may end up larger on high-DPI
// displays; Width and Height report the framebuffer.
//
// Parameters:
//   - width: initial width in screen coordinates
//   - height: initial height in screen coordinates
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithSize(width, height int) WindowBuilderOption {
	return func(w *engineWindow) {
		if width > 0 {
			w.width = width
		}
		if height > 0 {
			w.height = height
		}
	}
}

// WithSizeLimits bounds interactive resizing. Zero leaves a bound unchanged.
//
// Parameters:
//   - minWidth, minHeight: the smallest allowed size
//   - maxWidth, maxHeight: the largest allowed size
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithSizeLimits(minWidth, minHeight, maxWidth, maxHeight int) WindowBuilderOption {
	return func(w *engineWindow) {
		w.limits = sizeLimits{
			minWidth:  cmp.Or(minWidth, w.limits.minWidth),
			minHeight: cmp.Or(minHeight, w.limits.minHeight),
			maxWidth:  cmp.Or(maxWidth, w.limits.maxWidth),
			maxHeight: cmp.Or(maxHeight, w.limits.maxHeight),
		}
	}
}

// WithResizable controls whether the user can resize the window.
func WithResizable(resizable bool) WindowBuilderOption {
	return func(w *engineWindow) {
		w.resizable = resizable
	}
}
