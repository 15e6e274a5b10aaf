package pipeline_registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// gatedCompiler blocks every Compile until release is closed.
type gatedCompiler struct {
	release chan struct{}
	fail    map[string]error

	mu       sync.Mutex
	compiled []string
}

func newGatedCompiler() *gatedCompiler {
	return &gatedCompiler{release: make(chan struct{}), fail: map[string]error{}}
}

func (c *gatedCompiler) Compile(p pipeline.Pipeline) error {
	<-c.release
	if err := c.fail[p.PipelineKey()]; err != nil {
		return err
	}
	c.mu.Lock()
	c.compiled = append(c.compiled, p.PipelineKey())
	c.mu.Unlock()
	return nil
}

func familyPipeline(key string, family Family) pipeline.Pipeline {
	var descs []wgpu.BindGroupLayoutDescriptor
	for _, l := range family.Layouts() {
		descs = append(descs, l.Descriptor())
	}
	return pipeline.NewPipeline(key, pipeline.PipelineTypeCompute, pipeline.WithBindGroupLayouts(descs...))
}

func waitFor(t *testing.T, r Registry, want State) error {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, err := r.Poll()
		if err != nil || state == want {
			return err
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("registry did not reach %s", want)
	return nil
}

func TestLayoutSizes(t *testing.T) {
	specList := []struct {
		layout   Layout
		bindings int
		group    uint32
	}{
		{LUTLayout(), 9, 0},
		{RadianceLayout(), 10, 0},
		{PostProcessLayout(), 12, 0},
		{ShadowLayout(), 3, 1},
	}

	for specIndex, spec := range specList {
		if len(spec.layout.Slots) != spec.bindings {
			t.Fatalf("[spec %d] %s: expected %d bindings; got %d", specIndex, spec.layout.Label, spec.bindings, len(spec.layout.Slots))
		}
		if spec.layout.Group != spec.group {
			t.Fatalf("[spec %d] %s: expected group %d; got %d", specIndex, spec.layout.Label, spec.group, spec.layout.Group)
		}
		for i, s := range spec.layout.Slots {
			if s.Binding != uint32(i) {
				t.Fatalf("[spec %d] %s: slot %d has binding %d", specIndex, spec.layout.Label, i, s.Binding)
			}
		}
		desc := spec.layout.Descriptor()
		if len(desc.Entries) != spec.bindings {
			t.Fatalf("[spec %d] descriptor has %d entries", specIndex, len(desc.Entries))
		}
		if err := spec.layout.Matches(desc); err != nil {
			t.Fatalf("[spec %d] layout does not match its own descriptor: %v", specIndex, err)
		}
	}
}

func TestKindOfDescriptorRoundTrip(t *testing.T) {
	for _, l := range []Layout{LUTLayout(), RadianceLayout(), PostProcessLayout(), ShadowLayout()} {
		for i, entry := range l.Descriptor().Entries {
			kind, ok := KindOf(entry)
			if !ok || kind != l.Slots[i].Kind {
				t.Fatalf("%s binding %d: expected %s; got %s (%v)", l.Label, i, l.Slots[i].Kind, kind, ok)
			}
		}
	}
}

func TestLayoutMismatch(t *testing.T) {
	desc := LUTLayout().Descriptor()
	desc.Entries[BindingTransmittance].Texture = wgpu.TextureBindingLayout{}
	desc.Entries[BindingTransmittance].Sampler = wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}
	if err := LUTLayout().Matches(desc); !errors.Is(err, ErrLayoutMismatch) {
		t.Fatalf("expected ErrLayoutMismatch; got %v", err)
	}

	extra := RadianceLayout().Descriptor()
	if err := LUTLayout().Matches(extra); !errors.Is(err, ErrLayoutMismatch) {
		t.Fatalf("expected radiance bindings rejected by LUT layout; got %v", err)
	}

	r := New(FamilyLUT, newGatedCompiler())
	wrong := familyPipeline("transmittance", FamilyPostProcess)
	if err := r.Submit(wrong); !errors.Is(err, ErrLayoutMismatch) {
		t.Fatalf("expected Submit to reject mismatched layouts; got %v", err)
	}
	if len(r.Keys()) != 0 {
		t.Fatal("expected nothing queued after rejected Submit")
	}
}

func TestSubmitRejectsShaderOutsideLayout(t *testing.T) {
	src := `
@group(0) @binding(1) var transmittance_lut: texture_2d<f32>;
@group(0) @binding(12) var stray: texture_2d<f32>;
@compute @workgroup_size(8, 8, 1)
fn transmittance(@builtin(global_invocation_id) id: vec3<u32>) {}
`
	s, err := shader.NewShader("stray", shader.ShaderTypeCompute, src)
	if err != nil {
		t.Fatal(err)
	}
	p := pipeline.NewPipeline("stray", pipeline.PipelineTypeCompute,
		pipeline.WithShaders(s),
		pipeline.WithBindGroupLayouts(LUTLayout().Descriptor()),
	)
	r := New(FamilyLUT, newGatedCompiler())
	if err := r.Submit(p); !errors.Is(err, ErrLayoutMismatch) {
		t.Fatalf("expected ErrLayoutMismatch; got %v", err)
	}
}

func TestStateMonotonic(t *testing.T) {
	c := newGatedCompiler()
	r := New(FamilyLUT, c, WithWorkers(3))

	if state, err := r.Poll(); state != StateLoading || err != nil {
		t.Fatalf("expected Loading with no kernels; got %s, %v", state, err)
	}

	err := r.Submit(
		familyPipeline("transmittance", FamilyLUT),
		familyPipeline("multiple_scattering", FamilyLUT),
		familyPipeline("sun_transmittance", FamilyLUT),
	)
	if err != nil {
		t.Fatal(err)
	}

	for range 10 {
		if state, err := r.Poll(); state != StateLoading || err != nil {
			t.Fatalf("expected Loading while compiling; got %s, %v", state, err)
		}
	}

	close(c.release)
	if err := waitFor(t, r, StateReady); err != nil {
		t.Fatal(err)
	}
	for range 10 {
		if state, _ := r.Poll(); state != StateReady {
			t.Fatal("registry left Ready")
		}
	}
	if r.State() != StateReady {
		t.Fatal("State disagrees with Poll")
	}
	if len(c.compiled) != 3 {
		t.Fatalf("expected 3 compiled kernels; got %v", c.compiled)
	}
	if err := r.Submit(familyPipeline("late", FamilyLUT)); !errors.Is(err, ErrSealed) {
		t.Fatalf("expected ErrSealed; got %v", err)
	}
}

func TestCompileFailureKeepsLoading(t *testing.T) {
	c := newGatedCompiler()
	cause := errors.New("invalid entry point")
	c.fail["diffuse_radiance"] = cause
	r := New(FamilyRadiance, c)

	if err := r.Submit(familyPipeline("specular_radiance", FamilyRadiance), familyPipeline("diffuse_radiance", FamilyRadiance)); err != nil {
		t.Fatal(err)
	}
	close(c.release)

	err := waitFor(t, r, StateReady)
	if !errors.Is(err, ErrCompileFailed) || !errors.Is(err, cause) {
		t.Fatalf("expected compile failure wrapping cause; got %v", err)
	}
	var ce *CompileError
	if !errors.As(err, &ce) || ce.Kernel != "diffuse_radiance" {
		t.Fatalf("expected CompileError for diffuse_radiance; got %v", err)
	}
	if !IsCompileError(err) {
		t.Fatal("IsCompileError returned false")
	}
	if state, _ := r.Poll(); state != StateLoading {
		t.Fatal("failed registry became Ready")
	}
}

func TestValidatorFailsKernel(t *testing.T) {
	c := newGatedCompiler()
	close(c.release)
	src := `
@compute @workgroup_size(1)
fn sun_transmittance() {}
`
	s, err := shader.NewShader("sun", shader.ShaderTypeCompute, src)
	if err != nil {
		t.Fatal(err)
	}
	p := pipeline.NewPipeline("sun_transmittance", pipeline.PipelineTypeCompute,
		pipeline.WithShaders(s),
		pipeline.WithBindGroupLayouts(LUTLayout().Descriptor()),
	)
	r := New(FamilyLUT, c, WithValidator(func(key, source string) error {
		return errors.New("rejected " + key)
	}))
	if err := r.Submit(p); err != nil {
		t.Fatal(err)
	}
	if err := waitFor(t, r, StateReady); !errors.Is(err, ErrCompileFailed) {
		t.Fatalf("expected validator failure; got %v", err)
	}
	if len(c.compiled) != 0 {
		t.Fatal("compiler ran after validation failed")
	}
}

func TestDuplicateKernel(t *testing.T) {
	r := New(FamilyLUT, newGatedCompiler())
	err := r.Submit(familyPipeline("transmittance", FamilyLUT), familyPipeline("transmittance", FamilyLUT))
	if !errors.Is(err, ErrDuplicateKernel) {
		t.Fatalf("expected ErrDuplicateKernel; got %v", err)
	}
	if _, ok := r.Pipeline("transmittance"); ok {
		t.Fatal("duplicate submit queued a kernel")
	}
}

// inlinePool runs every task on the submitting goroutine, the way a saturated pool holds the
// submitter until a task finishes.
type inlinePool struct {
	mu  sync.Mutex
	ran int
}

var _ worker.DynamicWorkerPool = &inlinePool{}

func (p *inlinePool) SubmitTask(task worker.Task) {
	task.Do()
	p.mu.Lock()
	p.ran++
	p.mu.Unlock()
}

func (p *inlinePool) ClearTaskQueue()        {}
func (p *inlinePool) DecreaseMaxWorkers(int) {}
func (p *inlinePool) GetMaxWorkers() int     { return 1 }
func (p *inlinePool) IncreaseMaxWorkers(int) {}
func (p *inlinePool) IsWorking() bool        { return false }
func (p *inlinePool) Stop()                  {}
func (p *inlinePool) Start()                 {}
func (p *inlinePool) Wait()                  {}

func TestSubmitWithBlockingPool(t *testing.T) {
	c := newGatedCompiler()
	close(c.release)
	pool := &inlinePool{}
	r := New(FamilyLUT, c, WithWorkerPool(pool))

	done := make(chan error, 1)
	go func() {
		done <- r.Submit(
			familyPipeline("transmittance", FamilyLUT),
			familyPipeline("multiple_scattering", FamilyLUT),
		)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Submit deadlocked while the pool ran its tasks")
	}

	if pool.ran != 2 {
		t.Fatalf("expected 2 tasks; got %d", pool.ran)
	}
	if state, err := r.Poll(); state != StateReady || err != nil {
		t.Fatalf("expected Ready; got %s, %v", state, err)
	}
}
