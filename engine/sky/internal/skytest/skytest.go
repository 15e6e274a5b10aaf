// Package skytest provides in-memory stand-ins for the GPU side of the sky pipeline: an
// allocator whose textures hold their texels as bytes, a recorder that logs and simulates
// the work it is given, and controllable kernel compilers and registries.
package skytest

import (
	"bytes"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/kernels"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/stage"
	"github.com/cogentcore/webgpu/wgpu"
)

// Texture is a texture backed by a byte slice, laid out layer by layer, row by row.
type Texture struct {
	spec resource_set.TextureSpec

	mu       sync.Mutex
	data     []byte
	released bool
}

var _ resource_set.Texture = &Texture{}

// NewTexture creates a zeroed texture.
func NewTexture(spec resource_set.TextureSpec) *Texture {
	size := int(spec.Width) * int(spec.Height) * int(max(spec.DepthOrArrayLayers, 1)) * texelSize(spec.Format)
	return &Texture{spec: spec, data: make([]byte, size)}
}

// NewTarget creates a 2D renderer-owned texture, such as a view's colour target.
func NewTarget(label string, width, height uint32, format wgpu.TextureFormat) *Texture {
	return NewTexture(resource_set.TextureSpec{
		Key:                resource_set.TextureKeyExternal,
		Label:              label,
		Width:              width,
		Height:             height,
		DepthOrArrayLayers: 1,
		Dimension:          wgpu.TextureDimension2D,
		ViewDimension:      wgpu.TextureViewDimension2D,
		Format:             format,
	})
}

func texelSize(format wgpu.TextureFormat) int {
	switch format {
	case wgpu.TextureFormatRGBA32Float:
		return 16
	case wgpu.TextureFormatRGBA16Float:
		return 8
	default:
		return 4
	}
}

func (t *Texture) Spec() resource_set.TextureSpec {
	return t.spec
}

func (t *Texture) Texture() *wgpu.Texture {
	return nil
}

func (t *Texture) View() *wgpu.TextureView {
	return nil
}

func (t *Texture) Release() {
	t.mu.Lock()
	t.released = true
	t.mu.Unlock()
}

// Released reports whether Release was called.
func (t *Texture) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

// Bytes returns a copy of the texel data.
func (t *Texture) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.data)
}

// Fill sets every byte of the texture, or of one layer when layer >= 0.
func (t *Texture) Fill(value byte, layer int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	data := t.data
	if layer >= 0 {
		n := t.layerSize()
		data = data[layer*n : (layer+1)*n]
	}
	for i := range data {
		data[i] = value
	}
}

// FillRows sets the texel rows [y, y+h) of layer 0.
func (t *Texture) FillRows(value byte, y, h uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row := int(t.spec.Width) * texelSize(t.spec.Format)
	data := t.data[int(y)*row : int(y+h)*row]
	for i := range data {
		data[i] = value
	}
}

// Layer returns a copy of one array layer or depth slice.
func (t *Texture) Layer(layer int) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.layerSize()
	return slices.Clone(t.data[layer*n : (layer+1)*n])
}

// Rows returns a copy of the texel rows [y, y+h) of layer 0.
func (t *Texture) Rows(y, h uint32) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	row := int(t.spec.Width) * texelSize(t.spec.Format)
	return slices.Clone(t.data[int(y)*row : int(y+h)*row])
}

func (t *Texture) layerSize() int {
	return int(t.spec.Width) * int(t.spec.Height) * texelSize(t.spec.Format)
}

// Allocator creates Textures. Setting Fail makes the matching key fail.
type Allocator struct {
	Fail map[resource_set.TextureKey]error

	mu      sync.Mutex
	created []*Texture
}

var _ resource_set.Allocator = &Allocator{}

func (a *Allocator) CreateTexture(spec resource_set.TextureSpec) (resource_set.Texture, error) {
	if err := a.Fail[spec.Key]; err != nil {
		return nil, err
	}
	t := NewTexture(spec)
	a.mu.Lock()
	a.created = append(a.created, t)
	a.mu.Unlock()
	return t, nil
}

// Created returns the textures created so far in creation order.
func (a *Allocator) Created() []*Texture {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.created)
}

// OpKind is the kind of recorded operation.
type OpKind int

const (
	OpDispatch OpKind = iota
	OpCopy
	OpDraw
)

func (k OpKind) String() string {
	switch k {
	case OpDispatch:
		return "dispatch"
	case OpCopy:
		return "copy"
	default:
		return "draw"
	}
}

// Op is one recorded operation.
type Op struct {
	Kind     OpKind
	Pass     string
	Dispatch stage.Dispatch
	Copy     stage.Copy
	Draw     stage.Draw
}

// Recorder logs work in order and simulates it on Textures: a dispatch fills its storage
// output with DispatchValue, a draw fills its target with DrawValue and a copy moves bytes.
type Recorder struct {
	// Fail makes the operations of the named pass fail.
	Fail map[string]error

	DispatchValue byte
	DrawValue     byte
	// KeepOutputs leaves dispatch outputs untouched.
	KeepOutputs bool

	mu       sync.Mutex
	ops      []Op
	uniforms map[string][]byte
	writes   []string
}

var _ stage.Recorder = &Recorder{}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{DispatchValue: 0x5a, DrawValue: 0xa5, uniforms: map[string][]byte{}}
}

func (r *Recorder) WriteUniform(key string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uniforms[key] = slices.Clone(data)
	r.writes = append(r.writes, key)
	return nil
}

func (r *Recorder) Dispatch(d stage.Dispatch) error {
	if err := r.Fail[d.Pass]; err != nil {
		return err
	}
	for _, g := range d.Groups {
		for _, b := range g.Bindings {
			if t, ok := b.Texture.(*Texture); ok && b.Kind == pipeline_registry.SlotStorageTexture2D && !r.KeepOutputs {
				t.Fill(r.DispatchValue, -1)
			}
		}
	}
	r.append(Op{Kind: OpDispatch, Pass: d.Pass, Dispatch: d})
	return nil
}

func (r *Recorder) CopyTexture(c stage.Copy) error {
	if err := r.Fail[c.Pass]; err != nil {
		return err
	}
	src, ok1 := c.Source.(*Texture)
	dst, ok2 := c.Destination.(*Texture)
	if !ok1 || !ok2 {
		return fmt.Errorf("skytest: copy %s between foreign textures", c.Pass)
	}
	if err := copyRegion(src, dst, c); err != nil {
		return err
	}
	r.append(Op{Kind: OpCopy, Pass: c.Pass, Copy: c})
	return nil
}

func (r *Recorder) DrawFullscreen(d stage.Draw) error {
	if err := r.Fail[d.Pass]; err != nil {
		return err
	}
	if t, ok := d.Target.(*Texture); ok {
		t.Fill(r.DrawValue, -1)
	}
	r.append(Op{Kind: OpDraw, Pass: d.Pass, Draw: d})
	return nil
}

func (r *Recorder) append(op Op) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

// Ops returns the recorded operations in order.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.ops)
}

// Count counts the recorded operations of a kind.
func (r *Recorder) Count(kind OpKind) int {
	n := 0
	for _, op := range r.Ops() {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Passes returns the pass names in recording order, one entry per run of operations.
func (r *Recorder) Passes() []string {
	var out []string
	for _, op := range r.Ops() {
		if len(out) == 0 || out[len(out)-1] != op.Pass {
			out = append(out, op.Pass)
		}
	}
	return out
}

// Uniform returns the last data written for a key.
func (r *Recorder) Uniform(key string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.uniforms[key]
	return data, ok
}

// UniformWrites returns the written keys in order.
func (r *Recorder) UniformWrites() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.writes)
}

// Reset clears the log and the uniforms.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
	r.writes = nil
	r.uniforms = map[string][]byte{}
}

// copyRegion copies the (x, y, layer) box of c row by row.
func copyRegion(src, dst *Texture, c stage.Copy) error {
	if src.spec.Format != dst.spec.Format {
		return fmt.Errorf("skytest: copy %s: format %v to %v", c.Pass, src.spec.Format, dst.spec.Format)
	}
	if !inside(src.spec, c.SourceOrigin, c.Extent) || !inside(dst.spec, c.DestinationOrigin, c.Extent) {
		return fmt.Errorf("skytest: copy %s out of bounds", c.Pass)
	}
	texel := texelSize(src.spec.Format)
	offset := func(spec resource_set.TextureSpec, x, y, layer uint32) int {
		return ((int(layer)*int(spec.Height)+int(y))*int(spec.Width) + int(x)) * texel
	}

	src.mu.Lock()
	defer src.mu.Unlock()
	if src != dst {
		dst.mu.Lock()
		defer dst.mu.Unlock()
	}
	row := int(c.Extent[0]) * texel
	for l := range c.Extent[2] {
		for y := range c.Extent[1] {
			s := offset(src.spec, c.SourceOrigin[0], c.SourceOrigin[1]+y, c.SourceOrigin[2]+l)
			d := offset(dst.spec, c.DestinationOrigin[0], c.DestinationOrigin[1]+y, c.DestinationOrigin[2]+l)
			copy(dst.data[d:d+row], src.data[s:s+row])
		}
	}
	return nil
}

func inside(spec resource_set.TextureSpec, origin, extent [3]uint32) bool {
	return origin[0]+extent[0] <= spec.Width &&
		origin[1]+extent[1] <= spec.Height &&
		origin[2]+extent[2] <= max(spec.DepthOrArrayLayers, 1)
}

// Equal reports whether two textures hold the same bytes.
func Equal(a, b *Texture) bool {
	return bytes.Equal(a.Bytes(), b.Bytes())
}

// Compiler is a pipeline_registry.Compiler that succeeds after Delay unless Fail names the
// kernel. While Hold is non-nil every Compile waits for it to be closed.
type Compiler struct {
	Delay time.Duration
	Fail  map[string]error
	Hold  chan struct{}

	mu       sync.Mutex
	compiled []string
}

var _ pipeline_registry.Compiler = &Compiler{}

func (c *Compiler) Compile(p pipeline.Pipeline) error {
	if c.Hold != nil {
		<-c.Hold
	}
	if c.Delay > 0 {
		time.Sleep(c.Delay)
	}
	if err := c.Fail[p.PipelineKey()]; err != nil {
		return err
	}
	c.mu.Lock()
	c.compiled = append(c.compiled, p.PipelineKey())
	c.mu.Unlock()
	return nil
}

// Compiled returns the kernels compiled so far.
func (c *Compiler) Compiled() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.compiled)
}

// Registry is a pipeline_registry.Registry whose state is set by the test.
type Registry struct {
	family pipeline_registry.Family

	mu        sync.Mutex
	state     pipeline_registry.State
	err       error
	polls     int
	pipelines map[string]pipeline.Pipeline
	order     []string
}

var _ pipeline_registry.Registry = &Registry{}

// NewRegistry creates a Loading registry holding an uncompiled pipeline for every kernel of
// the family.
func NewRegistry(family pipeline_registry.Family) *Registry {
	r := &Registry{family: family, pipelines: map[string]pipeline.Pipeline{}}
	for _, k := range kernels.Kernels(family) {
		r.pipelines[k.Key] = pipeline.NewPipeline(k.Key, k.Type)
		r.order = append(r.order, k.Key)
	}
	return r
}

// SetReady makes the next Poll report Ready.
func (r *Registry) SetReady() {
	r.mu.Lock()
	r.state = pipeline_registry.StateReady
	r.mu.Unlock()
}

// SetError makes Poll report err.
func (r *Registry) SetError(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Polls counts the Poll calls.
func (r *Registry) Polls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls
}

func (r *Registry) Family() pipeline_registry.Family {
	return r.family
}

func (r *Registry) Layouts() []pipeline_registry.Layout {
	return r.family.Layouts()
}

func (r *Registry) Submit(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		if _, ok := r.pipelines[p.PipelineKey()]; !ok {
			r.order = append(r.order, p.PipelineKey())
		}
		r.pipelines[p.PipelineKey()] = p
	}
	return nil
}

func (r *Registry) Poll() (pipeline_registry.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls++
	if r.err != nil {
		return pipeline_registry.StateLoading, r.err
	}
	return r.state, nil
}

func (r *Registry) State() pipeline_registry.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Registry) Pipeline(key string) (pipeline.Pipeline, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pipelines[key]
	return p, ok
}

func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

func (r *Registry) Release() {}
