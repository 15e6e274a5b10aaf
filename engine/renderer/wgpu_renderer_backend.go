package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/stage"
	"github.com/cogentcore/webgpu/wgpu"
)

// uniformAlignment is the size granularity of uniform buffers.
const uniformAlignment = 16

type wgpuRendererBackendImpl struct {
	mu     sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	width, height uint32
	presentMode   wgpu.PresentMode // defaults to PresentModeImmediate (Uncapped)

	// compileMu serializes pipeline creation; the compile pool calls Compile from several workers.
	compileMu sync.Mutex

	// shared holds one uniform buffer per uniform key and one sampler per sampler kind.
	shared       bind_group_provider.BindGroupProvider
	uniformSlots map[string]int
	uniformSizes map[string]uint64
	// passes holds the bind groups of every pass, keyed by pass name.
	passes map[string]bind_group_provider.BindGroupProvider

	// Frame state for recording every pass of a frame into one submission
	frameEncoder *wgpu.CommandEncoder
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool) (RendererBackend, error) {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		instance:     wgpu.CreateInstance(nil),
		presentMode:  wgpu.PresentModeImmediate,
		shared:       bind_group_provider.NewBindGroupProvider("Sky Uniforms"),
		uniformSlots: make(map[string]int),
		uniformSizes: make(map[string]uint64),
		passes:       make(map[string]bind_group_provider.BindGroupProvider),
	}
	w.surface = w.instance.CreateSurface(surfaceDescriptor)

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		w.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	w.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		w.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()

	return w, nil
}

func (b *wgpuRendererBackendImpl) SurfaceFormat() wgpu.TextureFormat {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surfaceFormat
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 || len(capabilities.AlphaModes) == 0 {
		return errors.New("renderer: surface reports no usable format")
	}
	b.surfaceFormat = capabilities.Formats[0]
	b.width, b.height = uint32(width), uint32(height)

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       b.width,
		Height:      b.height,
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
	return nil
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	case PresentModeUncapped:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}
}

func (b *wgpuRendererBackendImpl) CreateTexture(spec resource_set.TextureSpec) (resource_set.Texture, error) {
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         spec.Label,
		Size:          spec.Extent(),
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     spec.Dimension,
		Format:        spec.Format,
		Usage:         spec.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create texture %s: %w", spec.Label, err)
	}
	view, err := tex.CreateView(viewDescriptor(spec))
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("failed to create texture view %s: %w", spec.Label, err)
	}
	return &gpuTexture{spec: spec, owned: true, texture: tex, view: view}, nil
}

func (b *wgpuRendererBackendImpl) Compile(p pipeline.Pipeline) error {
	b.compileMu.Lock()
	defer b.compileMu.Unlock()

	descriptors := p.BindGroupLayoutDescriptors()
	layouts := make([]*wgpu.BindGroupLayout, 0, len(descriptors))
	fail := func(err error) error {
		for _, l := range layouts {
			l.Release()
		}
		return fmt.Errorf("%s: %w", p.PipelineKey(), err)
	}
	for g := range descriptors {
		layout, err := b.device.CreateBindGroupLayout(&descriptors[g])
		if err != nil {
			return fail(fmt.Errorf("failed to create bind group layout for group %d: %w", g, err))
		}
		layouts = append(layouts, layout)
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return fail(err)
	}

	var created any
	switch p.Type() {
	case pipeline.PipelineTypeCompute:
		created, err = b.createComputePipeline(p, pipelineLayout)
	case pipeline.PipelineTypeRender:
		created, err = b.createRenderPipeline(p, pipelineLayout)
	default:
		err = fmt.Errorf("unsupported pipeline type %s", p.Type())
	}
	if err != nil {
		pipelineLayout.Release()
		return fail(err)
	}

	p.SetCompiled(layouts, pipelineLayout, created)
	return nil
}

// createShaderModule compiles one stage of a pipeline.
func (b *wgpuRendererBackendImpl) createShaderModule(p pipeline.Pipeline, shaderType shader.ShaderType) (*wgpu.ShaderModule, string, error) {
	s := p.Shader(shaderType)
	if s == nil {
		return nil, "", fmt.Errorf("%s shader must be set", shaderType)
	}
	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: s.Key(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: s.Source(),
		},
	})
	if err != nil {
		return nil, "", err
	}
	return module, s.EntryPoint(), nil
}

func (b *wgpuRendererBackendImpl) createComputePipeline(p pipeline.Pipeline, layout *wgpu.PipelineLayout) (*wgpu.ComputePipeline, error) {
	module, entry, err := b.createShaderModule(p, shader.ShaderTypeCompute)
	if err != nil {
		return nil, err
	}
	defer module.Release()

	return b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.PipelineKey() + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: entry,
		},
	})
}

// createRenderPipeline creates a fullscreen pipeline: no vertex buffers, one colour target,
// no depth.
func (b *wgpuRendererBackendImpl) createRenderPipeline(p pipeline.Pipeline, layout *wgpu.PipelineLayout) (*wgpu.RenderPipeline, error) {
	vs, vsEntry, err := b.createShaderModule(p, shader.ShaderTypeVertex)
	if err != nil {
		return nil, err
	}
	defer vs.Release()
	fs, fsEntry, err := b.createShaderModule(p, shader.ShaderTypeFragment)
	if err != nil {
		return nil, err
	}
	defer fs.Release()

	return b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.PipelineKey() + " Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: vsEntry,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: fsEntry,
			Targets: []wgpu.ColorTargetState{
				{
					Format:    p.ColorFormat(),
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
}

func (b *wgpuRendererBackendImpl) WriteUniform(key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	slot, ok := b.uniformSlots[key]
	if !ok {
		size := (uint64(len(data)) + uniformAlignment - 1) / uniformAlignment * uniformAlignment
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: key + " Uniform Buffer",
			Size:  size,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("failed to create uniform buffer %s: %w", key, err)
		}
		slot = len(b.uniformSlots)
		b.uniformSlots[key] = slot
		b.uniformSizes[key] = size
		b.shared.SetBuffer(slot, buf)
	}
	if uint64(len(data)) > b.uniformSizes[key] {
		return fmt.Errorf("uniform %s: %d bytes exceed buffer of %d", key, len(data), b.uniformSizes[key])
	}
	b.writeBuffers([]bind_group_provider.BufferWrite{{Provider: b.shared, Binding: slot, Data: data}})
	return nil
}

// writeBuffers writes all staged buffer writes to the GPU queue.
func (b *wgpuRendererBackendImpl) writeBuffers(writes []bind_group_provider.BufferWrite) {
	for _, w := range writes {
		buf := w.Provider.Buffer(w.Binding)
		if buf == nil {
			continue
		}
		b.queue.WriteBuffer(buf, w.Offset, w.Data)
	}
}

// sampler returns the shared sampler of a kind, creating it on first use. Sampled sky
// textures are 32-bit float, so every non-comparison sampler filters nearest.
func (b *wgpuRendererBackendImpl) sampler(kind stage.SamplerKind) (*wgpu.Sampler, error) {
	if s := b.shared.Sampler(int(kind)); s != nil {
		return s, nil
	}
	config := common.SamplerConfig{Label: kind.String() + " Sampler"}
	if kind == stage.SamplerComparison {
		config.MagFilter = wgpu.FilterModeLinear
		config.MinFilter = wgpu.FilterModeLinear
		config.Compare = wgpu.CompareFunctionLess
	}
	s, err := b.device.CreateSampler(config.Descriptor())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s sampler: %w", kind, err)
	}
	b.shared.SetSampler(int(kind), s)
	return s, nil
}

// bindGroup returns the bind group of one pass, rebuilding it when the pipeline or any bound
// resource changed since the last frame.
func (b *wgpuRendererBackendImpl) bindGroup(pass string, p pipeline.Pipeline, group stage.BindGroup) (*wgpu.BindGroup, error) {
	provider, ok := b.passes[pass]
	if !ok {
		provider = bind_group_provider.NewBindGroupProvider(pass)
		b.passes[pass] = provider
	}
	index := int(group.Layout.Group)
	signature := p.PipelineKey() + "|" + group.Signature()
	if bg := provider.BindGroup(index); bg != nil && provider.Signature(index) == signature {
		return bg, nil
	}

	layout := p.BindGroupLayout(index)
	if layout == nil {
		return nil, fmt.Errorf("%s: %w", p.PipelineKey(), ErrNotCompiled)
	}
	entries := make([]wgpu.BindGroupEntry, 0, len(group.Bindings))
	for _, binding := range group.Bindings {
		entry := wgpu.BindGroupEntry{Binding: binding.Binding}
		switch {
		case binding.Kind == pipeline_registry.SlotUniform:
			slot, ok := b.uniformSlots[binding.Uniform]
			if !ok {
				return nil, fmt.Errorf("%s: %w: %s", pass, ErrUnknownUniform, binding.Uniform)
			}
			entry.Buffer = b.shared.Buffer(slot)
			entry.Size = wgpu.WholeSize
		case binding.Kind.IsSampler():
			s, err := b.sampler(binding.Sampler)
			if err != nil {
				return nil, err
			}
			entry.Sampler = s
		default:
			if binding.Texture == nil || binding.Texture.View() == nil {
				return nil, fmt.Errorf("%s: binding %d has no texture view", pass, binding.Binding)
			}
			entry.TextureView = binding.Texture.View()
		}
		entries = append(entries, entry)
	}

	bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   pass + " " + group.Layout.Label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bind group for %s: %w", pass, err)
	}
	provider.SetBindGroup(index, bg, signature)
	return bg, nil
}

// bindGroups resolves every group of a pass before the pass is opened.
func (b *wgpuRendererBackendImpl) bindGroups(pass string, p pipeline.Pipeline, groups []stage.BindGroup) ([]*wgpu.BindGroup, error) {
	out := make([]*wgpu.BindGroup, len(groups))
	for i, g := range groups {
		bg, err := b.bindGroup(pass, p, g)
		if err != nil {
			return nil, err
		}
		out[i] = bg
	}
	return out, nil
}

func (b *wgpuRendererBackendImpl) Dispatch(d stage.Dispatch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	computePipeline, ok := d.Pipeline.Pipeline().(*wgpu.ComputePipeline)
	if !ok {
		return fmt.Errorf("%s: %w", d.Pass, ErrNotCompiled)
	}
	groups, err := b.bindGroups(d.Pass, d.Pipeline, d.Groups)
	if err != nil {
		return err
	}

	pass := b.frameEncoder.BeginComputePass(nil)
	pass.SetPipeline(computePipeline)
	for i, g := range d.Groups {
		pass.SetBindGroup(g.Layout.Group, groups[i], nil)
	}
	pass.DispatchWorkgroups(d.Workgroups[0], d.Workgroups[1], d.Workgroups[2])
	pass.End()
	pass.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) CopyTexture(c stage.Copy) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	src, dst := c.Source.Texture(), c.Destination.Texture()
	if src == nil || dst == nil {
		return fmt.Errorf("%s: copy between released textures", c.Pass)
	}
	b.frameEncoder.CopyTextureToTexture(
		&wgpu.ImageCopyTexture{
			Texture:  src,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{X: c.SourceOrigin[0], Y: c.SourceOrigin[1], Z: c.SourceOrigin[2]},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyTexture{
			Texture:  dst,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{X: c.DestinationOrigin[0], Y: c.DestinationOrigin[1], Z: c.DestinationOrigin[2]},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.Extent3D{
			Width:              c.Extent[0],
			Height:             c.Extent[1],
			DepthOrArrayLayers: c.Extent[2],
		},
	)
	return nil
}

func (b *wgpuRendererBackendImpl) DrawFullscreen(d stage.Draw) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	renderPipeline, ok := d.Pipeline.Pipeline().(*wgpu.RenderPipeline)
	if !ok {
		return fmt.Errorf("%s: %w", d.Pass, ErrNotCompiled)
	}
	target := d.Target.View()
	if target == nil {
		return fmt.Errorf("%s: target %s has no view", d.Pass, d.Target.Spec().Label)
	}
	groups, err := b.bindGroups(d.Pass, d.Pipeline, d.Groups)
	if err != nil {
		return err
	}

	pass := b.frameEncoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: d.Pass,
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       target,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1.0},
			},
		},
	})
	pass.SetPipeline(renderPipeline)
	for i, g := range d.Groups {
		pass.SetBindGroup(g.Layout.Group, groups[i], nil)
	}
	pass.Draw(d.Vertices, 1, 0, 0)
	pass.End()
	pass.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) ClearDepth(target resource_set.Texture) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	tex := target.Texture()
	if tex == nil {
		return fmt.Errorf("clear depth: %s released", target.Spec().Label)
	}
	// Render attachments need a single-layer 2D view, whatever the texture's default view is.
	view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Label:           target.Spec().Label + " Attachment",
		Format:          target.Spec().Format,
		Dimension:       wgpu.TextureViewDimension2D,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
		Aspect:          wgpu.TextureAspectAll,
	})
	if err != nil {
		return fmt.Errorf("clear depth %s: %w", target.Spec().Label, err)
	}
	defer view.Release()

	pass := b.frameEncoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "clear " + target.Spec().Label,
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            view,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
	pass.End()
	pass.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) BeginFrame() (resource_set.Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A surface texture still held from the previous frame must be presented first;
	// acquiring another one fails with "Surface image is already acquired".
	if b.frameSurface != nil {
		return nil, errors.New("previous frame surface not yet presented")
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return nil, err
	}

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return nil, err
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return nil, err
	}

	b.frameEncoder = encoder
	b.frameSurface = surfaceTexture
	b.frameView = view

	return &gpuTexture{
		spec: resource_set.TextureSpec{
			Key:                resource_set.TextureKeyExternal,
			Label:              "surface",
			Width:              b.width,
			Height:             b.height,
			DepthOrArrayLayers: 1,
			Dimension:          wgpu.TextureDimension2D,
			ViewDimension:      wgpu.TextureViewDimension2D,
			Format:             b.surfaceFormat,
			Usage:              wgpu.TextureUsageRenderAttachment,
		},
		texture: surfaceTexture,
		view:    view,
	}, nil
}

func (b *wgpuRendererBackendImpl) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return ErrNoFrame
	}
	encoder := b.frameEncoder
	b.frameEncoder = nil
	defer encoder.Release()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		b.releaseFrameSurface()
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

func (b *wgpuRendererBackendImpl) Present() {
	b.mu.Lock()
	defer b.mu.Unlock()

	// If no frame surface is held, nothing to present.
	if b.frameSurface == nil {
		return
	}

	b.surface.Present()
	b.releaseFrameSurface()
}

func (b *wgpuRendererBackendImpl) releaseFrameSurface() {
	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameSurface != nil {
		b.frameSurface.Release()
		b.frameSurface = nil
	}
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder != nil {
		b.frameEncoder.Release()
		b.frameEncoder = nil
	}
	b.releaseFrameSurface()
	for name, provider := range b.passes {
		provider.Release()
		delete(b.passes, name)
	}
	b.shared.Release()
	clear(b.uniformSlots)
	clear(b.uniformSizes)

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
