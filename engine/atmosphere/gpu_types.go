package atmosphere

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrShortBuffer is returned when a buffer is too small to hold the GPU layout being read.
var ErrShortBuffer = errors.New("atmosphere: buffer too short")

// GPUParametersSource is the canonical WGSL definition of the AtmosphereParameters struct.
// Matches the Parameters byte layout exactly (96 bytes, uniform aligned).
//
//go:embed assets/atmosphere_parameters.wgsl
var GPUParametersSource string

// GPUGlobalsSource is the canonical WGSL definition of the Globals struct.
//
//go:embed assets/globals.wgsl
var GPUGlobalsSource string

// GPUPostProcessSettingsSource is the canonical WGSL definition of the PostProcessSettings struct.
//
//go:embed assets/post_process_settings.wgsl
var GPUPostProcessSettingsSource string

const (
	// ParametersSize is the size in bytes of the AtmosphereParameters uniform.
	ParametersSize = 96
	// GlobalsSize is the size in bytes of the Globals uniform.
	GlobalsSize = 16
	// PostProcessSettingsSize is the size in bytes of the PostProcessSettings uniform.
	PostProcessSettingsSize = 16
)

// Parameters is the per-frame atmosphere snapshot shared with every kernel.
// The field order is the wire order of the WGSL AtmosphereParameters struct
// (see GPUParametersSource); the offsets below are the device offsets.
//
// Layout:
//
//	vec3<f32> sun_position               (offset  0)
//	vec3<f32> eye_position               (offset 16)
//	f32       sun_intensity              (offset 28)
//	vec3<f32> rayleigh_scattering        (offset 32)
//	vec3<f32> mie_scattering             (offset 48)
//	f32       mie_g                      (offset 60)
//	f32       atmosphere_height          (offset 64)
//	f32       cloud_coverage             (offset 68)
//	f32       enable_clouds              (offset 72)
//	f32       exposure                   (offset 76)
//	f32       multiple_scattering_factor (offset 80)
//	          padding to 96
type Parameters struct {
	SunPosition              mgl32.Vec3
	EyePosition              mgl32.Vec3
	SunIntensity             float32
	RayleighScattering       mgl32.Vec3
	MieScattering            mgl32.Vec3
	MieG                     float32
	AtmosphereHeight         float32
	CloudCoverage            float32
	EnableClouds             float32
	Exposure                 float32
	MultipleScatteringFactor float32
}

// DefaultParameters returns the reference atmosphere: an Earth-like sky with
// scattering coefficients in units of 1e-6 per metre and the sun on the horizon.
//
// Returns:
//   - Parameters: the default parameter set
func DefaultParameters() Parameters {
	return Parameters{
		SunPosition:              mgl32.Vec3{0, 0, -1},
		EyePosition:              mgl32.Vec3{0, 1000, 0},
		SunIntensity:             22,
		RayleighScattering:       mgl32.Vec3{5.802, 13.558, 33.1},
		MieScattering:            mgl32.Vec3{3.996, 3.996, 3.996},
		MieG:                     0.8,
		AtmosphereHeight:         100000,
		CloudCoverage:            0.5,
		EnableClouds:             0,
		Exposure:                 1,
		MultipleScatteringFactor: 1,
	}
}

// Size returns the size of the GPU representation in bytes.
//
// Returns:
//   - int: the struct size in bytes (96)
func (p *Parameters) Size() int {
	return ParametersSize
}

// Marshal serializes the parameters into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 96-byte buffer ready for GPU upload
func (p *Parameters) Marshal() []byte {
	buf := make([]byte, ParametersSize)
	common.PutVec3(buf, 0, p.SunPosition)
	common.PutVec3(buf, 16, p.EyePosition)
	common.PutFloat32(buf, 28, p.SunIntensity)
	common.PutVec3(buf, 32, p.RayleighScattering)
	common.PutVec3(buf, 48, p.MieScattering)
	common.PutFloat32(buf, 60, p.MieG)
	common.PutFloat32(buf, 64, p.AtmosphereHeight)
	common.PutFloat32(buf, 68, p.CloudCoverage)
	common.PutFloat32(buf, 72, p.EnableClouds)
	common.PutFloat32(buf, 76, p.Exposure)
	common.PutFloat32(buf, 80, p.MultipleScatteringFactor)
	return buf
}

// Unmarshal reads the parameters back from their GPU representation.
//
// Parameters:
//   - buf: a buffer produced by Marshal or read back from the device
//
// Returns:
//   - error: ErrShortBuffer if buf holds fewer than 96 bytes
func (p *Parameters) Unmarshal(buf []byte) error {
	if len(buf) < ParametersSize {
		return fmt.Errorf("%w: parameters need %d bytes, got %d", ErrShortBuffer, ParametersSize, len(buf))
	}
	p.SunPosition = common.Vec3At(buf, 0)
	p.EyePosition = common.Vec3At(buf, 16)
	p.SunIntensity = common.Float32At(buf, 28)
	p.RayleighScattering = common.Vec3At(buf, 32)
	p.MieScattering = common.Vec3At(buf, 48)
	p.MieG = common.Float32At(buf, 60)
	p.AtmosphereHeight = common.Float32At(buf, 64)
	p.CloudCoverage = common.Float32At(buf, 68)
	p.EnableClouds = common.Float32At(buf, 72)
	p.Exposure = common.Float32At(buf, 76)
	p.MultipleScatteringFactor = common.Float32At(buf, 80)
	return nil
}

// Globals carries frame timing into the compute kernels.
// Size: 16 bytes (time, delta_time, frame_count, padding).
type Globals struct {
	Time       float32
	DeltaTime  float32
	FrameCount uint32
}

// Size returns the size of the GPU representation in bytes.
func (g *Globals) Size() int {
	return GlobalsSize
}

// Marshal serializes the globals for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (g *Globals) Marshal() []byte {
	buf := make([]byte, GlobalsSize)
	common.PutFloat32(buf, 0, g.Time)
	common.PutFloat32(buf, 4, g.DeltaTime)
	binary.LittleEndian.PutUint32(buf[8:12], g.FrameCount)
	return buf
}

// PostProcessSettings controls the aerial perspective composite.
// Show is a float flag: zero turns the pass into a pass-through copy.
type PostProcessSettings struct {
	Show float32
}

// DefaultPostProcessSettings returns settings with aerial perspective enabled.
func DefaultPostProcessSettings() PostProcessSettings {
	return PostProcessSettings{Show: 1}
}

// Enabled reports whether the composite blends aerial perspective.
func (s PostProcessSettings) Enabled() bool {
	return s.Show != 0
}

// Size returns the size of the GPU representation in bytes.
func (s *PostProcessSettings) Size() int {
	return PostProcessSettingsSize
}

// Marshal serializes the settings for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (s *PostProcessSettings) Marshal() []byte {
	buf := make([]byte, PostProcessSettingsSize)
	common.PutFloat32(buf, 0, s.Show)
	return buf
}
