package renderer

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
	"github.com/cogentcore/webgpu/wgpu"
)

// gpuTexture is a texture and its default view. Swapchain textures are not owned: Present
// releases them, so Release only drops the references.
type gpuTexture struct {
	spec  resource_set.TextureSpec
	owned bool

	mu      sync.Mutex
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

var _ resource_set.Texture = &gpuTexture{}

func (t *gpuTexture) Spec() resource_set.TextureSpec {
	return t.spec
}

func (t *gpuTexture) Texture() *wgpu.Texture {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.texture
}

func (t *gpuTexture) View() *wgpu.TextureView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view
}

func (t *gpuTexture) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.owned {
		if t.view != nil {
			t.view.Release()
		}
		if t.texture != nil {
			t.texture.Release()
		}
	}
	t.view = nil
	t.texture = nil
}

// viewDescriptor describes the default view of a texture: every layer, one mip.
func viewDescriptor(spec resource_set.TextureSpec) *wgpu.TextureViewDescriptor {
	layers := max(spec.DepthOrArrayLayers, 1)
	if spec.Dimension == wgpu.TextureDimension3D {
		layers = 1
	}
	return &wgpu.TextureViewDescriptor{
		Label:           spec.Label + " View",
		Format:          spec.Format,
		Dimension:       spec.ViewDimension,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: layers,
		Aspect:          wgpu.TextureAspectAll,
	}
}
