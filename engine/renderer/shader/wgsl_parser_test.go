package shader

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

const layoutSource = `
struct Outer {
	a: f32,
	inner: Inner,
}

struct Inner {
	v: vec3f,
	w: f32,
}

struct mat_params {
	m: mat4x4f,
}

struct VsOut {
	@builtin(position) pos: vec4f,
	@location(0) uv: vec2f,
}

struct A { b: B }
struct B { a: A }
`

func TestLayoutSolver(t *testing.T) {
	solver := newLayoutSolver(parseStructs(stripComments(layoutSource)))

	specs := []struct {
		typ  string
		want typeLayout
		ok   bool
	}{
		{"vec3<f32>", typeLayout{12, 16}, true},
		{"vec3f", typeLayout{12, 16}, true},
		{"vec2h", typeLayout{4, 4}, true},
		{"vec3h", typeLayout{6, 8}, true},
		{"mat3x3<f32>", typeLayout{48, 16}, true},
		{"mat4x4f", typeLayout{64, 16}, true},
		{"mat2x3f", typeLayout{32, 16}, true},
		{"array<vec3f, 4>", typeLayout{64, 16}, true},
		{"array<f32>", typeLayout{4, 4}, true},
		{"atomic<u32>", typeLayout{4, 4}, true},
		{"Inner", typeLayout{16, 16}, true},
		{"Outer", typeLayout{32, 16}, true},
		{"mat_params", typeLayout{64, 16}, true},
		{"VsOut", typeLayout{8, 8}, true},
		{"A", typeLayout{}, false},
		{"vec5f", typeLayout{}, false},
		{"array<f32, N>", typeLayout{}, false},
	}

	for i, spec := range specs {
		got, ok := solver.layout(spec.typ)
		if ok != spec.ok || got != spec.want {
			t.Fatalf("[spec %d] %s: got %+v (%v), want %+v (%v)", i, spec.typ, got, ok, spec.want, spec.ok)
		}
	}

	all := solver.solveAll()
	if _, ok := all["B"]; ok {
		t.Fatal("expected the recursive struct to stay unsized")
	}
	if all["Outer"].size != 32 {
		t.Fatalf("solveAll Outer: %+v", all["Outer"])
	}
}

func TestStripComments(t *testing.T) {
	got := stripComments("a // x\nb /* c /* d */ e */ f")
	if got != "a \nb  f" {
		t.Fatalf("got %q", got)
	}
}

func TestLayoutEntry(t *testing.T) {
	solver := newLayoutSolver(parseStructs(layoutSource))

	specs := []struct {
		decl  resourceDecl
		check func(wgpu.BindGroupLayoutEntry) bool
	}{
		{
			resourceDecl{binding: 0, space: "uniform", typ: "Inner"},
			func(e wgpu.BindGroupLayoutEntry) bool {
				return e.Buffer.Type == wgpu.BufferBindingTypeUniform && e.Buffer.MinBindingSize == 16
			},
		},
		{
			resourceDecl{binding: 1, space: "storage, read", typ: "array<vec4f>"},
			func(e wgpu.BindGroupLayoutEntry) bool {
				return e.Buffer.Type == wgpu.BufferBindingTypeReadOnlyStorage && e.Buffer.MinBindingSize == 16
			},
		},
		{
			resourceDecl{binding: 2, space: "storage, read_write", typ: "array<f32>"},
			func(e wgpu.BindGroupLayoutEntry) bool { return e.Buffer.Type == wgpu.BufferBindingTypeStorage },
		},
		{
			resourceDecl{binding: 3, typ: "texture_depth_2d"},
			func(e wgpu.BindGroupLayoutEntry) bool {
				return e.Texture.SampleType == wgpu.TextureSampleTypeDepth && e.Texture.ViewDimension == wgpu.TextureViewDimension2D
			},
		},
		{
			resourceDecl{binding: 4, typ: "texture_storage_2d_array<rgba16float, write>"},
			func(e wgpu.BindGroupLayoutEntry) bool {
				st := e.StorageTexture
				return st.ViewDimension == wgpu.TextureViewDimension2DArray &&
					st.Format == wgpu.TextureFormatRGBA16Float &&
					st.Access == wgpu.StorageTextureAccessWriteOnly
			},
		},
		{
			resourceDecl{binding: 5, typ: "texture_cube<f32>"},
			func(e wgpu.BindGroupLayoutEntry) bool {
				return e.Texture.ViewDimension == wgpu.TextureViewDimensionCube && e.Texture.SampleType == wgpu.TextureSampleTypeFloat
			},
		},
		{
			resourceDecl{binding: 6, typ: "texture_multisampled_2d<f32>"},
			func(e wgpu.BindGroupLayoutEntry) bool { return e.Texture.Multisampled },
		},
		{
			resourceDecl{binding: 7, typ: "sampler_comparison"},
			func(e wgpu.BindGroupLayoutEntry) bool { return e.Sampler.Type == wgpu.SamplerBindingTypeComparison },
		},
	}

	for i, spec := range specs {
		e := layoutEntry(spec.decl, wgpu.ShaderStageFragment, solver)
		if e.Binding != uint32(spec.decl.binding) || e.Visibility != wgpu.ShaderStageFragment {
			t.Fatalf("[spec %d] binding %d visibility %v", i, e.Binding, e.Visibility)
		}
		if !spec.check(e) {
			t.Fatalf("[spec %d] %s: unexpected entry %+v", i, spec.decl.typ, e)
		}
	}
}
