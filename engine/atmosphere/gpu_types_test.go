package atmosphere

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/go-gl/mathgl/mgl32"
)

func TestParametersRoundTrip(t *testing.T) {
	specs := []Parameters{
		DefaultParameters(),
		{},
		{
			SunPosition:              mgl32.Vec3{0.3, -0.9, 0.1},
			EyePosition:              mgl32.Vec3{-12, 250, 7.5},
			SunIntensity:             40,
			RayleighScattering:       mgl32.Vec3{1, 2, 3},
			MieScattering:            mgl32.Vec3{4, 5, 6},
			MieG:                     -0.2,
			AtmosphereHeight:         60000,
			CloudCoverage:            0.9,
			EnableClouds:             1,
			Exposure:                 2.5,
			MultipleScatteringFactor: 0,
		},
	}

	for i, spec := range specs {
		buf := spec.Marshal()
		if len(buf) != spec.Size() {
			t.Fatalf("[spec %d] marshal produced %d bytes, want %d", i, len(buf), spec.Size())
		}
		var got Parameters
		if err := got.Unmarshal(buf); err != nil {
			t.Fatalf("[spec %d] unmarshal: %v", i, err)
		}
		if got != spec {
			t.Fatalf("[spec %d] round trip mismatch:\n got %+v\nwant %+v", i, got, spec)
		}
	}
}

func TestParametersOffsets(t *testing.T) {
	p := DefaultParameters()
	buf := p.Marshal()

	specs := []struct {
		offset int
		want   float32
	}{
		{0, 0}, {4, 0}, {8, -1},
		{16, 0}, {20, 1000}, {24, 0},
		{28, 22},
		{32, 5.802}, {36, 13.558}, {40, 33.1},
		{48, 3.996}, {52, 3.996}, {56, 3.996},
		{60, 0.8},
		{64, 100000},
		{68, 0.5},
		{72, 0},
		{76, 1},
		{80, 1},
		{84, 0}, {88, 0}, {92, 0},
	}

	for i, spec := range specs {
		if got := common.Float32At(buf, spec.offset); got != spec.want {
			t.Fatalf("[spec %d] offset %d = %v, want %v", i, spec.offset, got, spec.want)
		}
	}
}

func TestParametersUnmarshalShortBuffer(t *testing.T) {
	var p Parameters
	err := p.Unmarshal(make([]byte, ParametersSize-1))
	if !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestGlobalsMarshal(t *testing.T) {
	g := Globals{Time: 1.5, DeltaTime: 0.016, FrameCount: 42}
	buf := g.Marshal()
	if len(buf) != GlobalsSize {
		t.Fatalf("globals size %d, want %d", len(buf), GlobalsSize)
	}
	if common.Float32At(buf, 0) != 1.5 || common.Float32At(buf, 4) != 0.016 {
		t.Fatalf("unexpected timing fields in %v", buf)
	}
	if got := binary.LittleEndian.Uint32(buf[8:12]); got != 42 {
		t.Fatalf("frame count %d, want 42", got)
	}
}

func TestPostProcessSettings(t *testing.T) {
	s := DefaultPostProcessSettings()
	if !s.Enabled() {
		t.Fatal("default settings should enable aerial perspective")
	}
	buf := s.Marshal()
	if len(buf) != PostProcessSettingsSize || common.Float32At(buf, 0) != 1 {
		t.Fatalf("unexpected settings buffer %v", buf)
	}
	s.Show = 0
	if s.Enabled() {
		t.Fatal("show=0 should disable aerial perspective")
	}
}
