package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-sky/engine/atmosphere"
	"github.com/Carmen-Shannon/oxy-sky/engine/camera"
	"github.com/Carmen-Shannon/oxy-sky/engine/light"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/internal/skytest"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/kernels"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/scheduler"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/stage"
	"github.com/cogentcore/webgpu/wgpu"
)

type harness struct {
	compiler   *skytest.Compiler
	resources  resource_set.ResourceSet
	registries []pipeline_registry.Registry
	sched      scheduler.Scheduler
	controller atmosphere.Controller
	view       stage.View
}

func newHarness(t *testing.T, compiler *skytest.Compiler, options ...scheduler.SchedulerBuilderOption) *harness {
	t.Helper()
	rs, err := resource_set.New(resource_set.WithFaceSize(32))
	if err != nil {
		t.Fatal(err)
	}
	if err := rs.Setup(&skytest.Allocator{}); err != nil {
		t.Fatal(err)
	}

	h := &harness{compiler: compiler, resources: rs, controller: atmosphere.NewController()}
	families := []pipeline_registry.Family{pipeline_registry.FamilyLUT, pipeline_registry.FamilyRadiance, pipeline_registry.FamilyPostProcess}
	for _, family := range families {
		r := pipeline_registry.New(family, compiler)
		pipelines, err := kernels.Pipelines(family)
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Submit(pipelines...); err != nil {
			t.Fatal(err)
		}
		h.registries = append(h.registries, r)
	}

	h.sched, err = scheduler.New(rs,
		stage.NewLUTStage(h.registries[0]),
		stage.NewRadianceStage(h.registries[1], h.registries[0]),
		stage.NewPostProcessStage(h.registries[2]),
		options...,
	)
	if err != nil {
		t.Fatal(err)
	}

	cam := camera.NewCamera()
	h.view = stage.View{
		Label:     "main",
		Uniform:   cam.Uniform(16, 16),
		Light:     light.NewSun().Uniform(cam.Position()),
		Color:     skytest.NewTarget("main_color", 16, 16, wgpu.TextureFormatRGBA16Float),
		Depth:     skytest.NewTarget("main_depth", 16, 16, wgpu.TextureFormatDepth32Float),
		Target:    skytest.NewTarget("main_target", 16, 16, wgpu.TextureFormatRGBA16Float),
		ShadowMap: skytest.NewTarget("main_shadow", 16, 16, wgpu.TextureFormatDepth32Float),
	}
	return h
}

func (h *harness) run(t *testing.T, rec *skytest.Recorder) (scheduler.FrameReport, error) {
	t.Helper()
	return h.sched.RunFrame(context.Background(), scheduler.Frame{
		Snapshot: h.controller.Snapshot(),
		Views:    []stage.View{h.view},
		Recorder: rec,
	})
}

// runUntilRecorded runs frames until every pass recorded.
func (h *harness) runUntilRecorded(t *testing.T) (scheduler.FrameReport, *skytest.Recorder) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rec := skytest.NewRecorder()
		report, err := h.run(t, rec)
		if err != nil {
			t.Fatal(err)
		}
		if report.Recorded() == len(report.Passes()) {
			return report, rec
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("stages never became ready")
	return scheduler.FrameReport{}, nil
}

func TestFirstFrameLoading(t *testing.T) {
	compiler := &skytest.Compiler{Hold: make(chan struct{})}
	defer close(compiler.Hold)
	h := newHarness(t, compiler)

	rec := skytest.NewRecorder()
	report, err := h.run(t, rec)
	if err != nil {
		t.Fatalf("expected no error while loading; got %v", err)
	}
	if len(rec.Ops()) != 0 {
		t.Fatalf("expected nothing recorded while loading; got %d ops", len(rec.Ops()))
	}
	if len(report.Stages) != 3 {
		t.Fatalf("expected 3 stage reports; got %d", len(report.Stages))
	}
	for _, p := range report.Passes() {
		if p.Outcome != stage.OutcomeLoading {
			t.Fatalf("%s: expected loading; got %s", p.Pass, p.Outcome)
		}
	}
	if _, ok := rec.Uniform(stage.UniformParameters); !ok {
		t.Fatal("expected setup to write the parameters while loading")
	}
}

func TestReadyFrameOrder(t *testing.T) {
	var hooks []string
	mainPass := func(fc *stage.FrameContext, rec stage.Recorder, report scheduler.FrameReport) error {
		hooks = append(hooks, "main_pass")
		if _, ok := report.Stage(stage.KindRadiance); !ok {
			t.Error("expected the radiance report before the main pass")
		}
		return rec.DrawFullscreen(stage.Draw{Pass: "main_pass", Target: fc.Views[0].Color, Vertices: 3})
	}
	tonemap := func(fc *stage.FrameContext, rec stage.Recorder, report scheduler.FrameReport) error {
		hooks = append(hooks, "tonemapping")
		if _, ok := report.Stage(stage.KindPostProcess); !ok {
			t.Error("expected the post-process report before tonemapping")
		}
		return rec.DrawFullscreen(stage.Draw{Pass: "tonemapping", Target: fc.Views[0].Target, Vertices: 3})
	}
	h := newHarness(t, &skytest.Compiler{Delay: time.Millisecond},
		scheduler.WithMainPass(mainPass),
		scheduler.WithTonemapping(tonemap),
	)

	_, rec := h.runUntilRecorded(t)

	want := []string{
		kernels.KeyTransmittance,
		kernels.KeyMultipleScattering,
		kernels.KeySunTransmittance,
		kernels.KeySpecularRadiance,
		kernels.KeyDiffuseRadiance,
		"specular_faces",
		"diffuse_faces",
		"main_pass",
		stage.PostProcessPass("main"),
		"tonemapping",
	}
	got := rec.Passes()
	if len(got) != len(want) {
		t.Fatalf("expected %v; got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pass %d: expected %s; got %s", i, want[i], got[i])
		}
	}
	if rec.Count(skytest.OpCopy) != 12 {
		t.Fatalf("expected 12 face copies; got %d", rec.Count(skytest.OpCopy))
	}
	if len(hooks) == 0 || hooks[len(hooks)-1] != "tonemapping" {
		t.Fatalf("expected hooks to run every frame; got %v", hooks)
	}
}

func TestSetupPublishesSnapshot(t *testing.T) {
	h := newHarness(t, &skytest.Compiler{})
	h.controller.SetSunAngles(1.2, 0.4)
	h.controller.SetMultipleScattering(false)

	rec := skytest.NewRecorder()
	report, err := h.run(t, rec)
	if err != nil {
		t.Fatal(err)
	}
	want := h.controller.Parameters()

	published, err := h.resources.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if published.Parameters != want || published.Revision != report.Revision {
		t.Fatalf("expected the published snapshot to match the controller; got %+v", published)
	}

	data, ok := rec.Uniform(stage.UniformParameters)
	if !ok || len(data) != atmosphere.ParametersSize {
		t.Fatalf("expected a %d byte parameters uniform", atmosphere.ParametersSize)
	}
	var back atmosphere.Parameters
	if err := back.Unmarshal(data); err != nil {
		t.Fatal(err)
	}
	if back != want {
		t.Fatalf("expected the uniform to round trip; got %+v want %+v", back, want)
	}

	h.controller.SetEyeHeight(5000)
	published, _ = h.resources.Snapshot()
	if published.Parameters.EyePosition[1] == 5000 {
		t.Fatal("expected the published snapshot to be isolated from later edits")
	}
}

func TestGlobalsAdvance(t *testing.T) {
	now := time.Unix(100, 0)
	clock := func() time.Time { return now }
	h := newHarness(t, &skytest.Compiler{}, scheduler.WithClock(clock))

	specList := []struct {
		advance time.Duration
		frame   uint32
		time    float32
		delta   float32
	}{
		{0, 1, 0, 0},
		{500 * time.Millisecond, 2, 0.5, 0.5},
		{250 * time.Millisecond, 3, 0.75, 0.25},
	}
	for specIndex, spec := range specList {
		now = now.Add(spec.advance)
		rec := skytest.NewRecorder()
		report, err := h.run(t, rec)
		if err != nil {
			t.Fatal(err)
		}
		if report.Frame != uint64(spec.frame) {
			t.Fatalf("[spec %d] expected frame %d; got %d", specIndex, spec.frame, report.Frame)
		}
		data, _ := rec.Uniform(stage.UniformGlobals)
		want := atmosphere.Globals{Time: spec.time, DeltaTime: spec.delta, FrameCount: spec.frame}
		wantData := want.Marshal()
		if string(data) != string(wantData) {
			t.Fatalf("[spec %d] expected globals %+v", specIndex, want)
		}
	}
}

func TestCompileFailureIsFatal(t *testing.T) {
	cause := errors.New("unsupported storage format")
	h := newHarness(t, &skytest.Compiler{Fail: map[string]error{kernels.KeyDiffuseRadiance: cause}})

	var err error
	deadline := time.Now().Add(10 * time.Second)
	for err == nil && time.Now().Before(deadline) {
		_, err = h.run(t, skytest.NewRecorder())
		time.Sleep(time.Millisecond)
	}
	if !errors.Is(err, scheduler.ErrFatal) {
		t.Fatalf("expected ErrFatal; got %v", err)
	}
	if !pipeline_registry.IsCompileError(err) || !errors.Is(err, cause) {
		t.Fatalf("expected the compile error to be wrapped; got %v", err)
	}

	rec := skytest.NewRecorder()
	if _, again := h.run(t, rec); !errors.Is(again, scheduler.ErrFatal) {
		t.Fatalf("expected later frames to stay fatal; got %v", again)
	}
	if len(rec.Ops()) != 0 || len(rec.UniformWrites()) != 0 {
		t.Fatal("expected nothing recorded after a fatal error")
	}
}

func TestCancelledContext(t *testing.T) {
	h := newHarness(t, &skytest.Compiler{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := skytest.NewRecorder()
	_, err := h.sched.RunFrame(ctx, scheduler.Frame{Snapshot: h.controller.Snapshot(), Recorder: rec})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled; got %v", err)
	}
	if len(rec.UniformWrites()) != 0 {
		t.Fatal("expected a cancelled frame to record nothing")
	}
}

func TestGraph(t *testing.T) {
	h := newHarness(t, &skytest.Compiler{})
	order := h.sched.Order()
	position := map[scheduler.Node]int{}
	for i, n := range order {
		position[n] = i
	}
	if len(order) != 6 || order[0] != scheduler.NodeSetup || order[len(order)-1] != scheduler.NodeTonemapping {
		t.Fatalf("unexpected order %v", order)
	}
	for _, e := range h.sched.Graph() {
		if position[e.From] >= position[e.To] {
			t.Fatalf("edge %s -> %s runs backwards", e.From, e.To)
		}
	}

	stages := h.sched.Stages()
	kinds := []stage.Kind{stage.KindLUT, stage.KindRadiance, stage.KindPostProcess}
	for i, s := range stages {
		if s.Kind() != kinds[i] {
			t.Fatalf("stage %d: expected %s; got %s", i, kinds[i], s.Kind())
		}
	}
}

func TestNewRejectsMisplacedStage(t *testing.T) {
	rs, err := resource_set.New()
	if err != nil {
		t.Fatal(err)
	}
	lut := stage.NewLUTStage(skytest.NewRegistry(pipeline_registry.FamilyLUT))
	post := stage.NewPostProcessStage(skytest.NewRegistry(pipeline_registry.FamilyPostProcess))
	if _, err := scheduler.New(rs, lut, lut, post); !errors.Is(err, scheduler.ErrStageKind) {
		t.Fatalf("expected ErrStageKind; got %v", err)
	}
}
