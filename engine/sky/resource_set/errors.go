package resource_set

import (
	"errors"
	"fmt"
)

var (
	// ErrAbsent is returned when a resource is requested before it exists.
	// Callers skip the work that needed it for the current frame.
	ErrAbsent = errors.New("resource_set: resource absent")

	// ErrTileMisaligned is returned when a tiled texture is not covered exactly by TileSize workgroups.
	ErrTileMisaligned = errors.New("resource_set: texture size not divisible by tile size")

	// ErrAtlasShape is returned when an atlas does not stack CubeFaces faces of its cubemap.
	ErrAtlasShape = errors.New("resource_set: atlas does not match cubemap faces")

	// ErrAlreadySetup is returned when Setup is called on a set that already holds textures.
	ErrAlreadySetup = errors.New("resource_set: already set up")
)

// AbsentError names the resource that was missing.
type AbsentError struct {
	Resource string
}

func (e *AbsentError) Error() string {
	return fmt.Sprintf("resource_set: %s absent", e.Resource)
}

// Unwrap lets errors.Is match ErrAbsent.
func (e *AbsentError) Unwrap() error {
	return ErrAbsent
}

func absent(resource string) error {
	return &AbsentError{Resource: resource}
}
