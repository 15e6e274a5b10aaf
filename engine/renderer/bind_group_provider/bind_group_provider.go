package bind_group_provider

import (
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	// label is a debug label added for convenience.
	label string

	mu sync.Mutex

	// The following fields are GPU allocated resources and must be released when no longer needed.
	// They are populated by the Renderer, not by the owning component.

	// bindGroups holds the bind groups built for this provider, keyed by group index.
	bindGroups map[int]*wgpu.BindGroup
	// signatures identifies the resources each bind group was built from. A group whose
	// signature changes is rebuilt before the next use.
	signatures map[int]string
	// buffers holds the GPU buffers created for this provider, keyed by binding index.
	buffers map[int]*wgpu.Buffer
	// samplers holds the GPU samplers created for this provider, keyed by binding index.
	samplers map[int]*wgpu.Sampler
}

// BindGroupProvider holds the GPU objects one component or pass binds: uniform buffers keyed by
// binding index, samplers, and the bind groups built from them.
//
// Usage pattern:
//  1. A component (camera, light, sky pass) creates a provider with a unique label
//  2. The Renderer creates the uniform buffers on first write and stores them with SetBuffer
//  3. When a pass is recorded, the Renderer compares the resource signature of each group
//     with Signature and rebuilds the bind group only when it changed
//  4. Release frees everything when the owner goes away
type BindGroupProvider interface {
	// Release releases any GPU resources held by this provider.
	Release()

	// Label returns the debug label for this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// BindGroup returns the bind group built for a group index.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - *wgpu.BindGroup: the bind group or nil
	BindGroup(group int) *wgpu.BindGroup

	// Signature returns the resource signature the bind group of a group was built from.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - string: the signature, empty if no bind group exists
	Signature(group int) string

	// SetBindGroup stores a bind group, releasing the one it replaces.
	//
	// Parameters:
	//   - group: the bind group index
	//   - bg: the created bind group
	//   - signature: identifies the resources bg was built from
	SetBindGroup(group int, bg *wgpu.BindGroup, signature string)

	// Buffer returns the buffer stored for a binding.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer or nil
	Buffer(binding int) *wgpu.Buffer

	// SetBuffer stores the buffer for a binding, releasing the one it replaces.
	//
	// Parameters:
	//   - binding: the binding index
	//   - buf: the created buffer
	SetBuffer(binding int, buf *wgpu.Buffer)

	// Sampler returns the GPU sampler for a specific binding, or nil if not set.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - *wgpu.Sampler: the sampler or nil
	Sampler(binding int) *wgpu.Sampler

	// SetSampler stores a GPU sampler for a specific binding.
	//
	// Parameters:
	//   - binding: the binding index
	//   - s: the sampler to store
	SetSampler(binding int, s *wgpu.Sampler)
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates an empty BindGroupProvider.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - BindGroupProvider: a provider with no bind groups, buffers or samplers
func NewBindGroupProvider(label string) BindGroupProvider {
	p := &bindGroupProvider{
		label:      label,
		bindGroups: make(map[int]*wgpu.BindGroup),
		signatures: make(map[int]string),
		buffers:    make(map[int]*wgpu.Buffer),
		samplers:   make(map[int]*wgpu.Sampler),
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) BindGroup(group int) *wgpu.BindGroup {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bindGroups[group]
}

func (p *bindGroupProvider) Signature(group int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signatures[group]
}

func (p *bindGroupProvider) SetBindGroup(group int, bg *wgpu.BindGroup, signature string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev := p.bindGroups[group]; prev != nil && prev != bg {
		prev.Release()
	}
	p.bindGroups[group] = bg
	p.signatures[group] = signature
}

func (p *bindGroupProvider) Buffer(binding int) *wgpu.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffers[binding]
}

func (p *bindGroupProvider) SetBuffer(binding int, buf *wgpu.Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev := p.buffers[binding]; prev != nil && prev != buf {
		prev.Release()
	}
	p.buffers[binding] = buf
}

func (p *bindGroupProvider) Sampler(binding int) *wgpu.Sampler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.samplers[binding]
}

func (p *bindGroupProvider) SetSampler(binding int, s *wgpu.Sampler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samplers[binding] = s
}

func (p *bindGroupProvider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, bg := range p.bindGroups {
		if bg != nil {
			bg.Release()
		}
		delete(p.bindGroups, i)
		delete(p.signatures, i)
	}
	for i, s := range p.samplers {
		if s != nil {
			s.Release()
		}
		delete(p.samplers, i)
	}
	for i, buf := range p.buffers {
		if buf != nil {
			buf.Release()
		}
		delete(p.buffers, i)
	}
}
