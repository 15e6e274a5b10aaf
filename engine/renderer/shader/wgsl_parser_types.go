package shader

import "github.com/cogentcore/webgpu/wgpu"

// typeLayout is the host-shareable size and alignment of a WGSL type.
type typeLayout struct {
	size  uint64
	align uint64
}

// stride is the distance between consecutive elements of an array of this type.
func (l typeLayout) stride() uint64 {
	return roundUp(l.align, l.size)
}

// member is one field of a WGSL struct. Builtin members carry no buffer storage.
type member struct {
	name    string
	typ     string
	builtin bool
}

// structDecl is a struct block found in WGSL source.
type structDecl struct {
	name    string
	members []member
}

// resourceDecl is one module-scope @group/@binding variable.
type resourceDecl struct {
	group   int
	binding int
	space   string
	name    string
	typ     string
}

// textureShape is what a texture type name says about the view it binds.
type textureShape struct {
	dimension    wgpu.TextureViewDimension
	multisampled bool
	depth        bool
	storage      bool
}

// entryPoint is a single stage entry point with the workgroup size declared on it
type entryPoint struct {
	name          string
	workgroupSize [3]uint32
}
