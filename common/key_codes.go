package common

// Virtual key codes for cross-platform input handling.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyM     = 77 // M key (ASCII)
	KeyP     = 80 // P key (ASCII)
	KeyR     = 82 // R key (ASCII)
	KeySpace = 32 // Spacebar (ASCII)
	KeyEsc   = 256
)

// Navigation keys (GLFW)
const (
	KeyRight    = 262
	KeyLeft     = 263
	KeyDown     = 264
	KeyUp       = 265
	KeyPageUp   = 266
	KeyPageDown = 267
)
