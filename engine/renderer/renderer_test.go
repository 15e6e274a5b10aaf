package renderer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Carmen-Shannon/oxy-sky/engine/atmosphere"
	"github.com/Carmen-Shannon/oxy-sky/engine/camera"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/kernels"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/scheduler"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/stage"
	"github.com/cogentcore/webgpu/wgpu"
)

type fakeTexture struct {
	spec     resource_set.TextureSpec
	released bool
}

func (t *fakeTexture) Spec() resource_set.TextureSpec { return t.spec }
func (t *fakeTexture) Texture() *wgpu.Texture         { return nil }
func (t *fakeTexture) View() *wgpu.TextureView        { return nil }
func (t *fakeTexture) Release()                       { t.released = true }

// fakeBackend records what the renderer asks of the GPU.
type fakeBackend struct {
	format      wgpu.TextureFormat
	presentMode PresentMode
	configured  [][2]int
	created     []*fakeTexture
	failAfter   int
	compiled    []string
	uniforms    map[string][]byte
	draws       []stage.Draw
	cleared     []string
	inFrame     bool
	presented   int
	released    bool
}

var _ RendererBackend = &fakeBackend{}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		format:    wgpu.TextureFormatBGRA8Unorm,
		failAfter: -1,
		uniforms:  make(map[string][]byte),
	}
}

func (b *fakeBackend) CreateTexture(spec resource_set.TextureSpec) (resource_set.Texture, error) {
	if b.failAfter >= 0 && len(b.created) >= b.failAfter {
		return nil, fmt.Errorf("out of memory creating %s", spec.Label)
	}
	tex := &fakeTexture{spec: spec}
	b.created = append(b.created, tex)
	return tex, nil
}

func (b *fakeBackend) Compile(p pipeline.Pipeline) error {
	b.compiled = append(b.compiled, p.PipelineKey())
	return nil
}

func (b *fakeBackend) WriteUniform(key string, data []byte) error {
	b.uniforms[key] = append([]byte(nil), data...)
	return nil
}

func (b *fakeBackend) Dispatch(stage.Dispatch) error { return nil }
func (b *fakeBackend) CopyTexture(stage.Copy) error  { return nil }

func (b *fakeBackend) DrawFullscreen(d stage.Draw) error {
	b.draws = append(b.draws, d)
	return nil
}

func (b *fakeBackend) SurfaceFormat() wgpu.TextureFormat { return b.format }

func (b *fakeBackend) ConfigureSurface(width, height int) error {
	b.configured = append(b.configured, [2]int{width, height})
	return nil
}

func (b *fakeBackend) SetPresentMode(mode PresentMode) { b.presentMode = mode }

func (b *fakeBackend) ClearDepth(target resource_set.Texture) error {
	b.cleared = append(b.cleared, target.Spec().Label)
	return nil
}

func (b *fakeBackend) BeginFrame() (resource_set.Texture, error) {
	if b.inFrame {
		return nil, errors.New("previous frame surface not yet presented")
	}
	b.inFrame = true
	return &fakeTexture{spec: resource_set.TextureSpec{Key: resource_set.TextureKeyExternal, Label: "surface", Format: b.format}}, nil
}

func (b *fakeBackend) EndFrame() error {
	if !b.inFrame {
		return ErrNoFrame
	}
	return nil
}

func (b *fakeBackend) Present() {
	b.inFrame = false
	b.presented++
}

func (b *fakeBackend) Release() { b.released = true }

func newTestRenderer(t *testing.T, options ...RendererBuilderOption) (*renderer, *fakeBackend) {
	t.Helper()
	r := newRenderer(options...)
	b := newFakeBackend()
	if err := r.init(b, 64, 32); err != nil {
		t.Fatalf("init: %v", err)
	}
	return r, b
}

func TestInitCompilesViewerPipelines(t *testing.T) {
	r, b := newTestRenderer(t, WithPresentMode(PresentModeVSync))

	if b.presentMode != PresentModeVSync {
		t.Fatalf("expected vsync; got %s", b.presentMode)
	}
	if len(b.configured) != 1 || b.configured[0] != [2]int{64, 32} {
		t.Fatalf("expected one 64x32 configure; got %v", b.configured)
	}
	if len(b.compiled) != 2 || b.compiled[0] != kernels.KeySkybox || b.compiled[1] != kernels.KeyTonemap {
		t.Fatalf("expected skybox and tonemap compiled; got %v", b.compiled)
	}
	if f := r.Pipeline(kernels.KeyTonemap).ColorFormat(); f != b.format {
		t.Fatalf("expected tonemap to target the surface format; got %v", f)
	}
	if f := r.Pipeline(kernels.KeySkybox).ColorFormat(); f != SceneFormat {
		t.Fatalf("expected skybox to target the scene format; got %v", f)
	}

	again, err := SkyboxPipeline()
	if err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterPipelines(again); err != nil {
		t.Fatal(err)
	}
	if len(b.compiled) != 2 {
		t.Fatalf("expected a registered key to be skipped; got %v", b.compiled)
	}
	if len(r.Pipelines()) != 2 {
		t.Fatalf("expected 2 cached pipelines; got %d", len(r.Pipelines()))
	}

	r.Release()
	if !b.released || len(r.Pipelines()) != 0 {
		t.Fatal("expected Release to clear the cache and release the backend")
	}
}

func TestViewerPipelineLayouts(t *testing.T) {
	type spec struct {
		build  func() (pipeline.Pipeline, error)
		layout pipeline_registry.Layout
	}
	specList := []spec{
		{build: SkyboxPipeline, layout: SkyboxLayout()},
		{build: func() (pipeline.Pipeline, error) { return TonemapPipeline(wgpu.TextureFormatBGRA8Unorm) }, layout: TonemapLayout()},
	}

	for i, s := range specList {
		p, err := s.build()
		if err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", i, err)
		}
		descs := p.BindGroupLayoutDescriptors()
		if len(descs) != 1 {
			t.Fatalf("[spec %d] expected one group; got %d", i, len(descs))
		}
		if descs[0].Label != s.layout.Label || len(descs[0].Entries) != len(s.layout.Slots) {
			t.Fatalf("[spec %d] expected %s with %d entries; got %s with %d", i, s.layout.Label, len(s.layout.Slots), descs[0].Label, len(descs[0].Entries))
		}
	}
}

func TestViewTargetSpecs(t *testing.T) {
	type spec struct {
		label  string
		width  uint32
		format wgpu.TextureFormat
		view   wgpu.TextureViewDimension
	}
	specList := []spec{
		{label: "main_color", width: 640, format: SceneFormat, view: wgpu.TextureViewDimension2D},
		{label: "main_depth", width: 640, format: DepthFormat, view: wgpu.TextureViewDimension2D},
		{label: "main_target", width: 640, format: SceneFormat, view: wgpu.TextureViewDimension2D},
		{label: "main_shadow_map", width: ShadowMapSize, format: DepthFormat, view: wgpu.TextureViewDimension2DArray},
	}

	specs := ViewTargetSpecs("main", 640, 360)
	if len(specs) != len(specList) {
		t.Fatalf("expected %d specs; got %d", len(specList), len(specs))
	}
	for i, s := range specList {
		got := specs[i]
		if got.Label != s.label || got.Width != s.width || got.Format != s.format || got.ViewDimension != s.view {
			t.Fatalf("[spec %d] unexpected spec %+v", i, got)
		}
		if got.Key != resource_set.TextureKeyExternal {
			t.Fatalf("[spec %d] expected an external texture", i)
		}
		if got.Usage&wgpu.TextureUsageRenderAttachment == 0 {
			t.Fatalf("[spec %d] expected a render attachment", i)
		}
	}
	if specs[0].Usage&wgpu.TextureUsageCopySrc == 0 || specs[2].Usage&wgpu.TextureUsageCopyDst == 0 {
		t.Fatal("expected the colour to copy into the target")
	}
}

func TestViewTargetsReallocatedOnResize(t *testing.T) {
	r, b := newTestRenderer(t)

	first, err := r.ViewTargets("main")
	if err != nil {
		t.Fatal(err)
	}
	again, err := r.ViewTargets("main")
	if err != nil {
		t.Fatal(err)
	}
	if first.Color != again.Color || len(b.created) != 4 {
		t.Fatalf("expected cached targets; created %d", len(b.created))
	}

	if err := r.Resize(128, 64); err != nil {
		t.Fatal(err)
	}
	for _, tex := range b.created {
		if !tex.released {
			t.Fatalf("expected %s released on resize", tex.spec.Label)
		}
	}
	resized, err := r.ViewTargets("main")
	if err != nil {
		t.Fatal(err)
	}
	if resized.Color.Spec().Width != 128 || resized.Color.Spec().Height != 64 {
		t.Fatalf("expected 128x64 targets; got %dx%d", resized.Color.Spec().Width, resized.Color.Spec().Height)
	}
	if w, h := r.Size(); w != 128 || h != 64 {
		t.Fatalf("expected size 128x64; got %dx%d", w, h)
	}

	// A minimized window reports zero size and keeps the previous targets.
	if err := r.Resize(0, 0); err != nil {
		t.Fatal(err)
	}
	if resized.Color.(*fakeTexture).released {
		t.Fatal("expected a zero resize to be ignored")
	}
}

func TestViewTargetsAllocationFailure(t *testing.T) {
	r, b := newTestRenderer(t)
	b.failAfter = 2

	if _, err := r.ViewTargets("main"); err == nil {
		t.Fatal("expected an allocation error")
	}
	for _, tex := range b.created {
		if !tex.released {
			t.Fatalf("expected %s released", tex.spec.Label)
		}
	}
}

// skyFrame sets up a resource set on the fake backend and one view at the renderer's size.
func skyFrame(t *testing.T, r *renderer, b *fakeBackend) (*stage.FrameContext, resource_set.ResourceSet) {
	t.Helper()
	rs, err := resource_set.New(resource_set.WithFaceSize(8))
	if err != nil {
		t.Fatal(err)
	}
	if err := rs.Setup(b); err != nil {
		t.Fatal(err)
	}
	targets, err := r.ViewTargets("main")
	if err != nil {
		t.Fatal(err)
	}
	cam := camera.NewCamera()
	view := stage.View{
		Label:     "main",
		Uniform:   cam.Uniform(64, 32),
		Color:     targets.Color,
		Depth:     targets.Depth,
		Target:    targets.Target,
		ShadowMap: targets.ShadowMap,
	}
	return &stage.FrameContext{
		Frame:     1,
		Snapshot:  atmosphere.NewController().Snapshot(),
		Resources: rs,
		Views:     []stage.View{view},
	}, rs
}

func TestMainPassDrawsSkybox(t *testing.T) {
	r, b := newTestRenderer(t)
	fc, rs := skyFrame(t, r, b)

	specular, err := rs.Texture(resource_set.TextureKeySpecularCubemap)
	if err != nil {
		t.Fatal(err)
	}
	env := func() (sky.Environment, error) {
		return sky.Environment{Specular: specular}, nil
	}
	if err := r.MainPass(env)(fc, b, scheduler.FrameReport{}); err != nil {
		t.Fatalf("main pass: %v", err)
	}

	if len(b.cleared) != 2 || b.cleared[0] != "main_depth" || b.cleared[1] != "main_shadow_map" {
		t.Fatalf("expected depth and shadow map cleared; got %v", b.cleared)
	}
	if len(b.draws) != 1 {
		t.Fatalf("expected one draw; got %d", len(b.draws))
	}
	d := b.draws[0]
	if d.Pass != SkyboxPass("main") || d.Target != fc.Views[0].Color || d.Vertices != 3 {
		t.Fatalf("unexpected draw %s into %s", d.Pass, d.Target.Spec().Label)
	}
	if len(d.Groups) != 1 || len(d.Groups[0].Bindings) != len(SkyboxLayout().Slots) {
		t.Fatal("expected one full skybox group")
	}
	if d.Groups[0].Bindings[1].Texture != specular {
		t.Fatal("expected the specular cubemap bound")
	}
	if _, ok := b.uniforms[stage.ViewUniformKey("main")]; !ok {
		t.Fatal("expected the view uniform written")
	}
}

func TestMainPassWithoutEnvironment(t *testing.T) {
	r, b := newTestRenderer(t)
	fc, _ := skyFrame(t, r, b)

	env := func() (sky.Environment, error) {
		return sky.Environment{}, fmt.Errorf("environment: %w", resource_set.ErrAbsent)
	}
	if err := r.MainPass(env)(fc, b, scheduler.FrameReport{}); err != nil {
		t.Fatalf("expected an absent environment to be skipped; got %v", err)
	}
	if len(b.draws) != 0 {
		t.Fatalf("expected no draw; got %d", len(b.draws))
	}
	if len(b.cleared) != 2 {
		t.Fatalf("expected depth cleared regardless; got %v", b.cleared)
	}
}

func TestTonemapSource(t *testing.T) {
	postProcess := func(outcome stage.Outcome) scheduler.FrameReport {
		return scheduler.FrameReport{Stages: []stage.Report{{
			Kind:   stage.KindPostProcess,
			Passes: []stage.PassReport{{Pass: stage.PostProcessPass("main"), Outcome: outcome}},
		}}}
	}
	type spec struct {
		report scheduler.FrameReport
		target bool
	}
	specList := []spec{
		{report: postProcess(stage.OutcomeRecorded), target: true},
		{report: postProcess(stage.OutcomeLoading)},
		{report: postProcess(stage.OutcomeAbsent)},
		{report: scheduler.FrameReport{}},
	}

	for i, s := range specList {
		r, b := newTestRenderer(t, WithExposure(2))
		fc, _ := skyFrame(t, r, b)
		if _, err := r.BeginFrame(); err != nil {
			t.Fatal(err)
		}
		if err := r.Tonemapping()(fc, b, s.report); err != nil {
			t.Fatalf("[spec %d] tonemap: %v", i, err)
		}
		if len(b.draws) != 1 {
			t.Fatalf("[spec %d] expected one draw; got %d", i, len(b.draws))
		}
		d := b.draws[0]
		want := fc.Views[0].Color
		if s.target {
			want = fc.Views[0].Target
		}
		if d.Groups[0].Bindings[1].Texture != want {
			t.Fatalf("[spec %d] expected %s sampled; got %s", i, want.Spec().Label, d.Groups[0].Bindings[1].Texture.Spec().Label)
		}
		if d.Target.Spec().Label != "surface" {
			t.Fatalf("[spec %d] expected the swap chain as target; got %s", i, d.Target.Spec().Label)
		}

		var params atmosphere.Parameters
		if err := params.Unmarshal(b.uniforms[UniformTonemapParameters]); err != nil {
			t.Fatal(err)
		}
		if params.Exposure != fc.Snapshot.Parameters.Exposure*2 {
			t.Fatalf("[spec %d] expected exposure %v; got %v", i, fc.Snapshot.Parameters.Exposure*2, params.Exposure)
		}
	}
}

func TestTonemapOutsideFrame(t *testing.T) {
	r, b := newTestRenderer(t)
	fc, _ := skyFrame(t, r, b)

	if err := r.Tonemapping()(fc, b, scheduler.FrameReport{}); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("expected ErrNoFrame; got %v", err)
	}

	if _, err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
	r.Present()
	if b.presented != 1 || r.frameTarget() != nil {
		t.Fatal("expected Present to drop the frame target")
	}
}

func TestSetExposureClamps(t *testing.T) {
	r, _ := newTestRenderer(t)
	r.SetExposure(-1)
	if r.Exposure() != 0 {
		t.Fatalf("expected 0; got %v", r.Exposure())
	}
	r.SetExposure(1.5)
	if r.Exposure() != 1.5 {
		t.Fatalf("expected 1.5; got %v", r.Exposure())
	}
}
