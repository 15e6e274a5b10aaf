package stage_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-sky/engine/atmosphere"
	"github.com/Carmen-Shannon/oxy-sky/engine/camera"
	"github.com/Carmen-Shannon/oxy-sky/engine/light"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/internal/skytest"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/kernels"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/stage"
	"github.com/cogentcore/webgpu/wgpu"
)

type fixture struct {
	resources   resource_set.ResourceSet
	lut         *skytest.Registry
	radiance    *skytest.Registry
	postProcess *skytest.Registry
	stages      []stage.Stage
	rec         *skytest.Recorder
}

func newFixture(t *testing.T, setup bool, options ...resource_set.ResourceSetBuilderOption) *fixture {
	t.Helper()
	rs, err := resource_set.New(options...)
	if err != nil {
		t.Fatal(err)
	}
	if setup {
		if err := rs.Setup(&skytest.Allocator{}); err != nil {
			t.Fatal(err)
		}
	}
	f := &fixture{
		resources:   rs,
		lut:         skytest.NewRegistry(pipeline_registry.FamilyLUT),
		radiance:    skytest.NewRegistry(pipeline_registry.FamilyRadiance),
		postProcess: skytest.NewRegistry(pipeline_registry.FamilyPostProcess),
		rec:         skytest.NewRecorder(),
	}
	f.stages = []stage.Stage{
		stage.NewLUTStage(f.lut),
		stage.NewRadianceStage(f.radiance, f.lut),
		stage.NewPostProcessStage(f.postProcess),
	}
	return f
}

func (f *fixture) ready(t *testing.T) {
	t.Helper()
	f.lut.SetReady()
	f.radiance.SetReady()
	f.postProcess.SetReady()
	for _, s := range f.stages {
		if ready, err := s.PollReady(); !ready || err != nil {
			t.Fatalf("%s: expected ready; got %v, %v", s.Name(), ready, err)
		}
	}
}

func (f *fixture) texture(t *testing.T, key resource_set.TextureKey) *skytest.Texture {
	t.Helper()
	tex, err := f.resources.Texture(key)
	if err != nil {
		t.Fatal(err)
	}
	return tex.(*skytest.Texture)
}

func newView(label string) stage.View {
	cam := camera.NewCamera()
	sun := light.NewSun()
	return stage.View{
		Label:     label,
		Uniform:   cam.Uniform(64, 32),
		Light:     sun.Uniform(cam.Position()),
		Color:     skytest.NewTarget(label+"_color", 64, 32, wgpu.TextureFormatRGBA16Float),
		Depth:     skytest.NewTarget(label+"_depth", 64, 32, wgpu.TextureFormatDepth32Float),
		Target:    skytest.NewTarget(label+"_target", 64, 32, wgpu.TextureFormatRGBA16Float),
		ShadowMap: skytest.NewTarget(label+"_shadow", 32, 32, wgpu.TextureFormatDepth32Float),
	}
}

func (f *fixture) frame(show bool, views ...stage.View) *stage.FrameContext {
	post := atmosphere.DefaultPostProcessSettings()
	if !show {
		post.Show = 0
	}
	return &stage.FrameContext{
		Frame:     1,
		Snapshot:  atmosphere.Snapshot{Parameters: atmosphere.DefaultParameters(), PostProcess: post},
		Resources: f.resources,
		Views:     views,
	}
}

func (f *fixture) recordAll(t *testing.T, ctx *stage.FrameContext) []stage.Report {
	t.Helper()
	var reports []stage.Report
	for _, s := range f.stages {
		r, err := s.Record(ctx, f.rec)
		if err != nil {
			t.Fatalf("%s: %v", s.Name(), err)
		}
		reports = append(reports, r)
	}
	return reports
}

func TestLUTDispatchGrids(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)

	report, err := stage.NewLUTStage(f.lut).Record(f.frame(true), f.rec)
	if err != nil {
		t.Fatal(err)
	}

	specList := []struct {
		pass       string
		workgroups [3]uint32
		input      resource_set.TextureKey
		output     resource_set.TextureKey
	}{
		{kernels.KeyTransmittance, [3]uint32{32, 8, 1}, resource_set.TextureKeyPlaceholder, resource_set.TextureKeyTransmittance},
		{kernels.KeyMultipleScattering, [3]uint32{4, 4, 1}, resource_set.TextureKeyTransmittance, resource_set.TextureKeyMultipleScattering},
		{kernels.KeySunTransmittance, [3]uint32{1, 1, 1}, resource_set.TextureKeyTransmittance, resource_set.TextureKeySunTransmittance},
	}

	ops := f.rec.Ops()
	if len(ops) != len(specList) {
		t.Fatalf("expected %d dispatches; got %d", len(specList), len(ops))
	}
	for specIndex, spec := range specList {
		op := ops[specIndex]
		if op.Kind != skytest.OpDispatch || op.Pass != spec.pass {
			t.Fatalf("[spec %d] expected dispatch %s; got %s %s", specIndex, spec.pass, op.Kind, op.Pass)
		}
		if op.Dispatch.Workgroups != spec.workgroups {
			t.Fatalf("[spec %d] expected workgroups %v; got %v", specIndex, spec.workgroups, op.Dispatch.Workgroups)
		}
		if op.Dispatch.Pipeline.PipelineKey() != spec.pass {
			t.Fatalf("[spec %d] expected kernel %s; got %s", specIndex, spec.pass, op.Dispatch.Pipeline.PipelineKey())
		}
		if len(op.Dispatch.Groups) != 1 || len(op.Dispatch.Groups[0].Bindings) != 9 {
			t.Fatalf("[spec %d] expected one 9-binding group", specIndex)
		}
		bindings := op.Dispatch.Groups[0].Bindings
		if got := bindings[pipeline_registry.BindingTransmittance].Texture.Spec().Key; got != spec.input {
			t.Fatalf("[spec %d] expected %s bound as transmittance input; got %s", specIndex, spec.input, got)
		}
		if got := bindings[pipeline_registry.BindingLUTOutput].Texture.Spec().Key; got != spec.output {
			t.Fatalf("[spec %d] expected output %s; got %s", specIndex, spec.output, got)
		}
		if got := bindings[pipeline_registry.BindingCloud].Texture.Spec().Key; got != resource_set.TextureKeyCloudVolume {
			t.Fatalf("[spec %d] expected cloud volume bound; got %s", specIndex, got)
		}
		if outcome, _ := report.Outcome(spec.pass); outcome != stage.OutcomeRecorded {
			t.Fatalf("[spec %d] expected recorded; got %s", specIndex, outcome)
		}
	}
}

func TestRadianceGridsFollowFaceSize(t *testing.T) {
	f := newFixture(t, true, resource_set.WithFaceSize(64))
	f.ready(t)
	reports := f.recordAll(t, f.frame(true))
	if reports[1].Recorded() != 4 {
		t.Fatalf("expected 4 radiance passes; got %+v", reports[1])
	}
	for _, op := range f.rec.Ops() {
		if op.Kind == skytest.OpDispatch && op.Pass == kernels.KeySpecularRadiance && op.Dispatch.Workgroups != [3]uint32{8, 48, 1} {
			t.Fatalf("expected (8, 48, 1) for a 64 texel face; got %v", op.Dispatch.Workgroups)
		}
	}
}

func TestRadianceDispatchesAndFaceCopies(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)

	report, err := stage.NewRadianceStage(f.radiance, f.lut).Record(f.frame(true), f.rec)
	if err != nil {
		t.Fatal(err)
	}
	if report.Recorded() != 4 {
		t.Fatalf("expected 4 recorded passes; got %+v", report.Passes)
	}

	ops := f.rec.Ops()
	if len(ops) != 14 {
		t.Fatalf("expected 2 dispatches and 12 copies; got %d ops", len(ops))
	}
	specular, diffuse := ops[0], ops[1]
	if specular.Pass != kernels.KeySpecularRadiance || diffuse.Pass != kernels.KeyDiffuseRadiance {
		t.Fatalf("expected specular before diffuse; got %s, %s", specular.Pass, diffuse.Pass)
	}
	for _, op := range []skytest.Op{specular, diffuse} {
		if op.Dispatch.Workgroups != [3]uint32{32, 192, 1} {
			t.Fatalf("%s: expected (32, 192, 1); got %v", op.Pass, op.Dispatch.Workgroups)
		}
		if len(op.Dispatch.Groups[0].Bindings) != 10 {
			t.Fatalf("%s: expected 10 bindings; got %d", op.Pass, len(op.Dispatch.Groups[0].Bindings))
		}
	}
	if got := specular.Dispatch.Groups[0].Bindings[pipeline_registry.BindingSpecularInput].Texture.Spec().Key; got != resource_set.TextureKeyPlaceholder {
		t.Fatalf("expected placeholder as specular input of the specular pass; got %s", got)
	}
	if got := diffuse.Dispatch.Groups[0].Bindings[pipeline_registry.BindingSpecularInput].Texture.Spec().Key; got != resource_set.TextureKeySpecularAtlas {
		t.Fatalf("expected specular atlas as input of the diffuse pass; got %s", got)
	}
	if got := diffuse.Dispatch.Groups[0].Bindings[pipeline_registry.BindingRadianceOutput].Texture.Spec().Key; got != resource_set.TextureKeyDiffuseAtlas {
		t.Fatalf("expected diffuse atlas output; got %s", got)
	}

	specList := []struct {
		pass    string
		atlas   resource_set.TextureKey
		cubemap resource_set.TextureKey
	}{
		{"specular_faces", resource_set.TextureKeySpecularAtlas, resource_set.TextureKeySpecularCubemap},
		{"diffuse_faces", resource_set.TextureKeyDiffuseAtlas, resource_set.TextureKeyDiffuseCubemap},
	}
	for specIndex, spec := range specList {
		for face := range uint32(6) {
			op := ops[2+specIndex*6+int(face)]
			if op.Kind != skytest.OpCopy || op.Pass != spec.pass {
				t.Fatalf("[spec %d] face %d: expected copy %s; got %s %s", specIndex, face, spec.pass, op.Kind, op.Pass)
			}
			c := op.Copy
			if c.Source.Spec().Key != spec.atlas || c.Destination.Spec().Key != spec.cubemap {
				t.Fatalf("[spec %d] face %d: wrong textures %s -> %s", specIndex, face, c.Source.Spec().Key, c.Destination.Spec().Key)
			}
			if c.SourceOrigin != [3]uint32{0, face * 256, 0} {
				t.Fatalf("[spec %d] face %d: expected source origin y %d; got %v", specIndex, face, face*256, c.SourceOrigin)
			}
			if c.DestinationOrigin != [3]uint32{0, 0, face} {
				t.Fatalf("[spec %d] face %d: expected layer %d; got %v", specIndex, face, face, c.DestinationOrigin)
			}
			if c.Extent != [3]uint32{256, 256, 1} {
				t.Fatalf("[spec %d] face %d: expected 256x256x1; got %v", specIndex, face, c.Extent)
			}
		}
	}
}

func TestFaceCopiesMoveAtlasSlices(t *testing.T) {
	f := newFixture(t, true, resource_set.WithFaceSize(16))
	f.ready(t)
	f.rec.KeepOutputs = true

	atlas := f.texture(t, resource_set.TextureKeySpecularAtlas)
	for face := range uint32(6) {
		atlas.FillRows(byte(face+1), face*16, 16)
	}

	if _, err := stage.NewRadianceStage(f.radiance, f.lut).Record(f.frame(true), f.rec); err != nil {
		t.Fatal(err)
	}
	cubemap := f.texture(t, resource_set.TextureKeySpecularCubemap)
	for face := range 6 {
		want := atlas.Rows(uint32(face*16), 16)
		if !bytes.Equal(cubemap.Layer(face), want) {
			t.Fatalf("face %d: cubemap layer differs from atlas slice", face)
		}
		if cubemap.Layer(face)[0] != byte(face+1) {
			t.Fatalf("face %d: expected value %d; got %d", face, face+1, cubemap.Layer(face)[0])
		}
	}
}

func TestLoadingRecordsNothing(t *testing.T) {
	f := newFixture(t, true)
	ctx := f.frame(true, newView("main"))

	for _, s := range f.stages {
		if ready, err := s.PollReady(); ready || err != nil {
			t.Fatalf("%s: expected loading; got %v, %v", s.Name(), ready, err)
		}
	}
	reports := f.recordAll(t, ctx)
	if n := len(f.rec.Ops()); n != 0 {
		t.Fatalf("expected no work while loading; got %d ops", n)
	}
	for _, r := range reports {
		if len(r.Passes) == 0 {
			t.Fatalf("%s: expected loading passes to be reported", r.Stage)
		}
		for _, p := range r.Passes {
			if p.Outcome != stage.OutcomeLoading {
				t.Fatalf("%s/%s: expected loading; got %s", r.Stage, p.Pass, p.Outcome)
			}
		}
	}

	// radiance waits for the LUT kernels as well as its own
	f.radiance.SetReady()
	radiance := f.stages[1]
	if ready, _ := radiance.PollReady(); ready {
		t.Fatal("expected radiance to wait for the LUT kernels")
	}
	if _, err := radiance.Record(ctx, f.rec); err != nil {
		t.Fatal(err)
	}
	if n := f.rec.Count(skytest.OpDispatch); n != 0 {
		t.Fatalf("expected no radiance dispatch before the LUT kernels are ready; got %d", n)
	}
}

func TestAbsentResourcesSkip(t *testing.T) {
	f := newFixture(t, false)
	f.ready(t)

	if _, err := f.resources.Texture(resource_set.TextureKeyTransmittance); !errors.Is(err, resource_set.ErrAbsent) {
		t.Fatalf("expected absent before setup; got %v", err)
	}

	reports := f.recordAll(t, f.frame(true, newView("main")))
	if n := len(f.rec.Ops()); n != 0 {
		t.Fatalf("expected no work without resources; got %d ops", n)
	}
	for _, r := range reports {
		for _, p := range r.Passes {
			if p.Outcome != stage.OutcomeAbsent || len(p.Missing) == 0 {
				t.Fatalf("%s/%s: expected absent with missing resources; got %s %v", r.Stage, p.Pass, p.Outcome, p.Missing)
			}
		}
	}

	lut := reports[0].Passes[0]
	if lut.Missing[0] != resource_set.TextureKeyPlaceholder.String() {
		t.Fatalf("expected the placeholder reported first; got %v", lut.Missing)
	}

	if err := f.resources.Setup(&skytest.Allocator{}); err != nil {
		t.Fatal(err)
	}
	f.recordAll(t, f.frame(true, newView("main")))
	if n := f.rec.Count(skytest.OpDispatch); n != 5 {
		t.Fatalf("expected 5 dispatches once resources exist; got %d", n)
	}
}

func TestMissingViewTextureSkipsOnlyThatView(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)

	broken := newView("broken")
	broken.ShadowMap = nil
	report, err := f.stages[2].Record(f.frame(true, newView("main"), broken), f.rec)
	if err != nil {
		t.Fatal(err)
	}
	if outcome, _ := report.Outcome(stage.PostProcessPass("main")); outcome != stage.OutcomeRecorded {
		t.Fatalf("expected main recorded; got %s", outcome)
	}
	if report.Passes[1].Outcome != stage.OutcomeAbsent || len(report.Passes[1].Missing) != 1 || report.Passes[1].Missing[0] != "shadow_map" {
		t.Fatalf("expected broken view absent on shadow_map; got %+v", report.Passes[1])
	}
	if n := f.rec.Count(skytest.OpDraw); n != 1 {
		t.Fatalf("expected 1 draw; got %d", n)
	}
}

func TestPostProcessComposite(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)
	view := newView("main")

	if _, err := f.stages[2].Record(f.frame(true, view), f.rec); err != nil {
		t.Fatal(err)
	}
	ops := f.rec.Ops()
	if len(ops) != 1 || ops[0].Kind != skytest.OpDraw {
		t.Fatalf("expected a single draw; got %+v", ops)
	}
	d := ops[0].Draw
	if d.Vertices != 3 || d.Target != view.Target {
		t.Fatalf("expected a fullscreen triangle into the view target; got %d vertices", d.Vertices)
	}
	if len(d.Groups) != 2 || len(d.Groups[0].Bindings) != 12 || len(d.Groups[1].Bindings) != 3 {
		t.Fatal("expected a 12-binding primary group and a 3-binding shadow group")
	}
	if d.Groups[1].Bindings[pipeline_registry.BindingShadowSampler].Sampler != stage.SamplerComparison {
		t.Fatal("expected the comparison sampler in the shadow group")
	}

	data, ok := f.rec.Uniform(stage.ViewUniformKey("main"))
	if !ok || len(data) != camera.ViewUniformSize {
		t.Fatalf("expected %d byte view uniform; got %d", camera.ViewUniformSize, len(data))
	}
	data, ok = f.rec.Uniform(stage.LightUniformKey("main"))
	if !ok || len(data) != light.DirectionalLightSize {
		t.Fatalf("expected %d byte light uniform; got %d", light.DirectionalLightSize, len(data))
	}
	if view.Target.(*skytest.Texture).Bytes()[0] != f.rec.DrawValue {
		t.Fatal("expected the target written by the draw")
	}
}

func TestPostProcessShowZeroPassesThrough(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)
	view := newView("main")
	color := view.Color.(*skytest.Texture)
	target := view.Target.(*skytest.Texture)
	color.Fill(0x3c, -1)

	report, err := f.stages[2].Record(f.frame(false, view), f.rec)
	if err != nil {
		t.Fatal(err)
	}
	if report.Recorded() != 1 {
		t.Fatalf("expected the pass recorded; got %+v", report.Passes)
	}
	if f.rec.Count(skytest.OpDraw) != 0 || f.rec.Count(skytest.OpCopy) != 1 {
		t.Fatalf("expected a single copy and no draw; got %+v", f.rec.Ops())
	}
	if !skytest.Equal(color, target) {
		t.Fatal("expected the target to equal the scene colour")
	}
}

func TestStageOrderingAcrossFrame(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)
	f.recordAll(t, f.frame(true, newView("main")))

	want := []string{
		kernels.KeyTransmittance,
		kernels.KeyMultipleScattering,
		kernels.KeySunTransmittance,
		kernels.KeySpecularRadiance,
		kernels.KeyDiffuseRadiance,
		"specular_faces",
		"diffuse_faces",
		stage.PostProcessPass("main"),
	}
	got := f.rec.Passes()
	if len(got) != len(want) {
		t.Fatalf("expected passes %v; got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pass %d: expected %s; got %s", i, want[i], got[i])
		}
	}
}

func TestErrorsPropagate(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)
	cause := errors.New("device lost")
	f.rec.Fail = map[string]error{kernels.KeyMultipleScattering: cause}

	if _, err := f.stages[0].Record(f.frame(true), f.rec); !errors.Is(err, cause) {
		t.Fatalf("expected the recorder error; got %v", err)
	}

	compile := &pipeline_registry.CompileError{Kernel: "transmittance", Err: cause}
	f.lut.SetError(compile)
	if _, err := f.stages[0].PollReady(); !pipeline_registry.IsCompileError(err) {
		t.Fatalf("expected a compile error from PollReady; got %v", err)
	}
	if _, err := f.stages[1].PollReady(); !errors.Is(err, pipeline_registry.ErrCompileFailed) {
		t.Fatalf("expected radiance to surface the LUT compile error; got %v", err)
	}
}

func TestBindGroupSignature(t *testing.T) {
	f := newFixture(t, true)
	f.ready(t)
	f.recordAll(t, f.frame(true))
	f.recordAll(t, f.frame(true))

	ops := f.rec.Ops()
	// 3 LUT dispatches, 2 radiance dispatches and 12 face copies per frame
	const perFrame = 17
	if len(ops) != 2*perFrame || ops[perFrame].Pass != kernels.KeyTransmittance {
		t.Fatalf("expected the second frame to start with transmittance; got %d ops", len(ops))
	}
	first, second := ops[0].Dispatch.Groups[0].Signature(), ops[perFrame].Dispatch.Groups[0].Signature()
	if first != second {
		t.Fatalf("expected a stable signature across frames:\n%s\n%s", first, second)
	}
	if first == ops[1].Dispatch.Groups[0].Signature() {
		t.Fatal("expected different passes to have different signatures")
	}
}
