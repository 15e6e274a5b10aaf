package light

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-sky/engine/atmosphere"
	"github.com/go-gl/mathgl/mgl32"
)

// Rayleigh and Mie scale heights in metres, used by the analytic sun transmittance.
const (
	rayleighScaleHeight float32 = 8000
	mieScaleHeight      float32 = 1200
	// scattering coefficients in AtmosphereParameters are expressed per 1e6 metres
	scatteringUnit float32 = 1e-6
	// Mie extinction is scattering plus absorption, approximated as a fixed ratio
	mieExtinctionRatio float32 = 1.11
)

// sunImpl is the implementation of the Sun interface.
type sunImpl struct {
	mu *sync.Mutex

	direction mgl32.Vec3
	baseColor mgl32.Vec3
	tint      mgl32.Vec3
	intensity float32

	shadowResolution int
	shadowHalfExtent float32
	shadowNear       float32
	shadowFar        float32
	shadowBias       float32
	shadowLayers     uint32
}

// Sun is the directional light collaborator of the sky. It follows the atmosphere's
// sun position and carries a colour tinted by the sun transmittance, so surfaces lit
// by a low sun turn orange the same way the sky does.
type Sun interface {
	// Direction returns the normalized direction sunlight travels.
	//
	// Returns:
	//   - mgl32.Vec3: direction from the sun toward the scene
	Direction() mgl32.Vec3

	// Color returns the tinted light colour (base colour multiplied by the transmittance).
	//
	// Returns:
	//   - mgl32.Vec3: linear RGB colour
	Color() mgl32.Vec3

	// Intensity returns the scalar intensity multiplier.
	Intensity() float32

	// Follow points the light along the parameter set's sun position and takes its intensity.
	//
	// Parameters:
	//   - params: the atmosphere snapshot for the frame
	Follow(params atmosphere.Parameters)

	// SetTransmittance sets the eye-to-sun transmittance used to tint the colour.
	//
	// Parameters:
	//   - t: per-channel transmittance in [0, 1]
	SetTransmittance(t mgl32.Vec3)

	// SetBaseColor sets the untinted light colour.
	SetBaseColor(c mgl32.Vec3)

	// ShadowResolution returns the width and height in texels of the shadow map.
	ShadowResolution() int

	// ShadowLayers returns the number of layers in the shadow depth array.
	ShadowLayers() uint32

	// Uniform builds the light data for a frame with the shadow frustum centred on center.
	//
	// Parameters:
	//   - center: the world-space centre of the shadow frustum, typically the camera position
	//
	// Returns:
	//   - DirectionalLightUniform: the uniform ready to marshal
	Uniform(center mgl32.Vec3) DirectionalLightUniform
}

var _ Sun = &sunImpl{}

// NewSun creates a white sun travelling straight down with the default shadow settings.
//
// Parameters:
//   - opts: variadic list of SunBuilderOption functions to configure the light
//
// Returns:
//   - Sun: a new Sun instance
func NewSun(opts ...SunBuilderOption) Sun {
	s := &sunImpl{
		mu:               &sync.Mutex{},
		direction:        mgl32.Vec3{0, -1, 0},
		baseColor:        mgl32.Vec3{1, 1, 1},
		tint:             mgl32.Vec3{1, 1, 1},
		intensity:        1,
		shadowResolution: ShadowMapResolution,
		shadowHalfExtent: DefaultShadowHalfExtent,
		shadowNear:       DefaultShadowNear,
		shadowFar:        DefaultShadowFar,
		shadowBias:       DefaultShadowBias,
		shadowLayers:     1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *sunImpl) Direction() mgl32.Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direction
}

func (s *sunImpl) Color() mgl32.Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tinted(s.baseColor, s.tint)
}

func (s *sunImpl) Intensity() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intensity
}

func (s *sunImpl) Follow(params atmosphere.Parameters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if params.SunPosition.Len() > 0 {
		s.direction = params.SunPosition.Normalize()
	}
	s.intensity = params.SunIntensity
}

func (s *sunImpl) SetTransmittance(t mgl32.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range 3 {
		t[i] = mgl32.Clamp(t[i], 0, 1)
	}
	s.tint = t
}

func (s *sunImpl) SetBaseColor(c mgl32.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseColor = c
}

func (s *sunImpl) ShadowResolution() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shadowResolution
}

func (s *sunImpl) ShadowLayers() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shadowLayers
}

func (s *sunImpl) Uniform(center mgl32.Vec3) DirectionalLightUniform {
	s.mu.Lock()
	defer s.mu.Unlock()
	texel := 1 / float32(s.shadowResolution)
	return DirectionalLightUniform{
		LightVP:      ShadowViewProjection(s.direction, center, s.shadowHalfExtent, s.shadowNear, s.shadowFar),
		Direction:    s.direction,
		Intensity:    s.intensity,
		Color:        tinted(s.baseColor, s.tint),
		ShadowBias:   s.shadowBias,
		TexelSize:    mgl32.Vec2{texel, texel},
		NormalBias:   NormalBias(s.shadowHalfExtent, DefaultShadowNormalBiasScale, s.shadowResolution),
		ShadowLayers: s.shadowLayers,
	}
}

// AnalyticTransmittance estimates the eye-to-sun transmittance on the host from the
// parameter set, using exponential density profiles and a relative air mass for the
// sun's zenith angle. The device computes the exact value into the SunTransmittance LUT;
// this estimate tints the light without reading that texture back.
//
// Parameters:
//   - params: the atmosphere parameters
//
// Returns:
//   - mgl32.Vec3: per-channel transmittance in [0, 1], zero once the sun is below the horizon
func AnalyticTransmittance(params atmosphere.Parameters) mgl32.Vec3 {
	if params.SunPosition.Len() == 0 {
		return mgl32.Vec3{1, 1, 1}
	}
	// sun_position is the travel direction, so the zenith cosine is its negated Y
	cosZenith := -params.SunPosition.Normalize().Y()
	if cosZenith <= 0 {
		return mgl32.Vec3{}
	}
	airMass := relativeAirMass(cosZenith)
	heightR := float32(math.Exp(float64(-params.EyePosition.Y() / rayleighScaleHeight)))
	heightM := float32(math.Exp(float64(-params.EyePosition.Y() / mieScaleHeight)))

	var t mgl32.Vec3
	for i := range 3 {
		tau := params.RayleighScattering[i]*scatteringUnit*rayleighScaleHeight*heightR +
			params.MieScattering[i]*scatteringUnit*mieExtinctionRatio*mieScaleHeight*heightM
		t[i] = float32(math.Exp(float64(-tau * airMass)))
	}
	return t
}

// relativeAirMass is the Kasten-Young air mass formula for a zenith cosine in (0, 1].
func relativeAirMass(cosZenith float32) float32 {
	zenithDeg := math.Acos(float64(cosZenith)) * 180 / math.Pi
	return float32(1 / (float64(cosZenith) + 0.50572*math.Pow(96.07995-zenithDeg, -1.6364)))
}

func tinted(base, tint mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{base[0] * tint[0], base[1] * tint[1], base[2] * tint[2]}
}
