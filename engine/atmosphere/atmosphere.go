package atmosphere

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrInvalidParameters is returned by SetParameters when a parameter set cannot describe an atmosphere.
var ErrInvalidParameters = errors.New("atmosphere: invalid parameters")

// Snapshot is the immutable copy of the control state handed to one render frame.
// It holds no references into the Controller; mutating the Controller after Snapshot
// returns never changes a snapshot already taken.
type Snapshot struct {
	Parameters  Parameters
	PostProcess PostProcessSettings
	Revision    uint64
}

// Controller owns the mutable atmosphere state edited by the control collaborator
// (UI, key bindings, command line) between frames.
type Controller interface {
	// Parameters returns a copy of the current parameter set.
	Parameters() Parameters

	// SetParameters replaces the whole parameter set.
	//
	// Parameters:
	//   - p: the new parameter set
	//
	// Returns:
	//   - error: ErrInvalidParameters if the atmosphere height is not positive or mie_g is outside (-1, 1)
	SetParameters(p Parameters) error

	// PostProcessSettings returns a copy of the current composite settings.
	PostProcessSettings() PostProcessSettings

	// SetAerialPerspective toggles the aerial perspective blend. Disabled turns the
	// composite into a pass-through copy.
	SetAerialPerspective(enabled bool)

	// SetSunAngles points the sun using spherical angles.
	//
	// Parameters:
	//   - altitude: polar angle from straight up, clamped to [0, π]
	//   - azimuth: angle around the vertical axis measured from +Z towards +X
	SetSunAngles(altitude, azimuth float32)

	// SunAngles returns the spherical angles of the current sun position.
	//
	// Returns:
	//   - float32: the polar angle in [0, π]
	//   - float32: the azimuth in [-π, π]
	SunAngles() (altitude, azimuth float32)

	// SetEyeHeight moves the observer vertically, in metres above the ground.
	SetEyeHeight(height float32)

	// SetMultipleScattering toggles the multiple scattering contribution.
	SetMultipleScattering(enabled bool)

	// MultipleScattering reports whether multiple scattering is enabled.
	MultipleScattering() bool

	// Snapshot copies the current state for one frame.
	//
	// Returns:
	//   - Snapshot: a value copy of the parameters and settings plus the edit revision
	Snapshot() Snapshot
}

type controller struct {
	mu       sync.RWMutex
	params   Parameters
	post     PostProcessSettings
	revision uint64
}

var _ Controller = &controller{}

// NewController creates a Controller holding the default atmosphere unless options override it.
//
// Parameters:
//   - options: optional configuration
//
// Returns:
//   - Controller: the new controller
func NewController(options ...ControllerBuilderOption) Controller {
	c := &controller{
		params: DefaultParameters(),
		post:   DefaultPostProcessSettings(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *controller) Parameters() Parameters {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

func (c *controller) SetParameters(p Parameters) error {
	if err := validate(p); err != nil {
		return err
	}
	c.mu.Lock()
	c.params = p
	c.revision++
	c.mu.Unlock()
	return nil
}

func (c *controller) PostProcessSettings() PostProcessSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.post
}

func (c *controller) SetAerialPerspective(enabled bool) {
	c.mu.Lock()
	c.post.Show = flag(enabled)
	c.revision++
	c.mu.Unlock()
}

func (c *controller) SetSunAngles(altitude, azimuth float32) {
	c.mu.Lock()
	c.params.SunPosition = SunDirection(altitude, azimuth)
	c.revision++
	c.mu.Unlock()
}

func (c *controller) SunAngles() (float32, float32) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return SunAngles(c.params.SunPosition)
}

func (c *controller) SetEyeHeight(height float32) {
	c.mu.Lock()
	c.params.EyePosition[1] = height
	c.revision++
	c.mu.Unlock()
}

func (c *controller) SetMultipleScattering(enabled bool) {
	c.mu.Lock()
	c.params.MultipleScatteringFactor = flag(enabled)
	c.revision++
	c.mu.Unlock()
}

func (c *controller) MultipleScattering() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params.MultipleScatteringFactor != 0
}

func (c *controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Parameters:  c.params,
		PostProcess: c.post,
		Revision:    c.revision,
	}
}

// SunDirection converts spherical angles into a unit sun position.
// sun_position holds the direction sunlight travels, so altitude 0 (sun at the
// zenith) yields (0, -1, 0) and altitude π/2 puts the sun on the horizon.
//
// Parameters:
//   - altitude: polar angle, clamped to [0, π]
//   - azimuth: rotation around the vertical axis
//
// Returns:
//   - mgl32.Vec3: (sin φ sin θ, -cos θ, cos φ sin θ)
func SunDirection(altitude, azimuth float32) mgl32.Vec3 {
	theta := float64(mgl32.Clamp(altitude, 0, math.Pi))
	phi := float64(azimuth)
	return mgl32.Vec3{
		float32(math.Sin(phi) * math.Sin(theta)),
		float32(-math.Cos(theta)),
		float32(math.Cos(phi) * math.Sin(theta)),
	}
}

// SunAngles is the inverse of SunDirection. The direction does not need to be normalized.
//
// Parameters:
//   - sun: the sun position
//
// Returns:
//   - float32: θ = acos(-y)
//   - float32: φ = atan2(x, z)
func SunAngles(sun mgl32.Vec3) (float32, float32) {
	if sun.Len() == 0 {
		return 0, 0
	}
	n := sun.Normalize()
	y := mgl32.Clamp(-n.Y(), -1, 1)
	return float32(math.Acos(float64(y))), float32(math.Atan2(float64(n.X()), float64(n.Z())))
}

func validate(p Parameters) error {
	if p.AtmosphereHeight <= 0 {
		return fmt.Errorf("%w: atmosphere height %v must be positive", ErrInvalidParameters, p.AtmosphereHeight)
	}
	if p.MieG <= -1 || p.MieG >= 1 {
		return fmt.Errorf("%w: mie_g %v outside (-1, 1)", ErrInvalidParameters, p.MieG)
	}
	return nil
}

func flag(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
