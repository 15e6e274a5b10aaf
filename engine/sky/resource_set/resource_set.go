// Package resource_set owns the persistent textures of the sky pipeline and the
// atmosphere snapshot of the frame being recorded. Lookups report absence as an
// error value so callers can skip a pass without treating it as a failure.
package resource_set

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-sky/engine/atmosphere"
	"github.com/Carmen-Shannon/oxy-sky/engine/log"
)

var logger = log.New("sky/resource_set")

// resourceSet is the implementation of the ResourceSet interface.
type resourceSet struct {
	faceSize uint32
	specs    []TextureSpec

	mu       sync.Mutex
	textures atomic.Pointer[map[TextureKey]Texture]
	snapshot atomic.Pointer[atmosphere.Snapshot]
}

// ResourceSet holds every texture the sky stages read and write, plus the
// atmosphere snapshot published for the current frame.
type ResourceSet interface {
	// FaceSize returns the cubemap face edge length in texels.
	FaceSize() uint32

	// Specs returns the description of every owned texture in creation order.
	Specs() []TextureSpec

	// Spec returns the description of one texture.
	//
	// Parameters:
	//   - key: the texture key
	//
	// Returns:
	//   - TextureSpec: the description
	//   - bool: false if the key is not owned by the set
	Spec(key TextureKey) (TextureSpec, bool)

	// Setup allocates every texture. The set is published only when all allocations
	// succeed; on failure the textures created so far are released and the set stays empty.
	//
	// Parameters:
	//   - alloc: the allocator creating GPU textures
	//
	// Returns:
	//   - error: ErrAlreadySetup, or the first allocation error
	Setup(alloc Allocator) error

	// Ready reports whether Setup completed.
	Ready() bool

	// Texture looks up a texture.
	//
	// Parameters:
	//   - key: the texture key
	//
	// Returns:
	//   - Texture: the texture
	//   - error: an *AbsentError wrapping ErrAbsent if the texture does not exist yet
	Texture(key TextureKey) (Texture, error)

	// Publish installs the atmosphere snapshot for the frame about to be recorded.
	Publish(snapshot atmosphere.Snapshot)

	// Snapshot returns the published snapshot.
	//
	// Returns:
	//   - atmosphere.Snapshot: the snapshot
	//   - error: an *AbsentError wrapping ErrAbsent if nothing was published yet
	Snapshot() (atmosphere.Snapshot, error)

	// Release frees every texture. The set can be set up again afterwards.
	Release()
}

var _ ResourceSet = &resourceSet{}

// New creates an empty ResourceSet and validates its texture table.
//
// Parameters:
//   - options: optional configuration, e.g. WithFaceSize
//
// Returns:
//   - ResourceSet: the set, holding no textures until Setup
//   - error: ErrTileMisaligned or ErrAtlasShape for an invalid face size
func New(options ...ResourceSetBuilderOption) (ResourceSet, error) {
	rs := &resourceSet{faceSize: DefaultFaceSize}
	for _, opt := range options {
		opt(rs)
	}
	rs.specs = BuildSpecs(rs.faceSize)
	if err := Validate(rs.specs); err != nil {
		return nil, fmt.Errorf("face size %d: %w", rs.faceSize, err)
	}
	return rs, nil
}

func (rs *resourceSet) FaceSize() uint32 {
	return rs.faceSize
}

func (rs *resourceSet) Specs() []TextureSpec {
	out := make([]TextureSpec, len(rs.specs))
	copy(out, rs.specs)
	return out
}

func (rs *resourceSet) Spec(key TextureKey) (TextureSpec, bool) {
	for _, s := range rs.specs {
		if s.Key == key {
			return s, true
		}
	}
	return TextureSpec{}, false
}

func (rs *resourceSet) Setup(alloc Allocator) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.textures.Load() != nil {
		return ErrAlreadySetup
	}

	created := make(map[TextureKey]Texture, len(rs.specs))
	for _, spec := range rs.specs {
		tex, err := alloc.CreateTexture(spec)
		if err != nil {
			for _, t := range created {
				t.Release()
			}
			return fmt.Errorf("resource_set: create %s: %w", spec.Label, err)
		}
		created[spec.Key] = tex
		logger.Debugf("created %s %dx%dx%d", spec.Label, spec.Width, spec.Height, spec.DepthOrArrayLayers)
	}
	rs.textures.Store(&created)
	logger.Infof("allocated %d textures, face size %d", len(created), rs.faceSize)
	return nil
}

func (rs *resourceSet) Ready() bool {
	return rs.textures.Load() != nil
}

func (rs *resourceSet) Texture(key TextureKey) (Texture, error) {
	textures := rs.textures.Load()
	if textures == nil {
		return nil, absent(key.String())
	}
	tex, ok := (*textures)[key]
	if !ok || tex == nil {
		return nil, absent(key.String())
	}
	return tex, nil
}

func (rs *resourceSet) Publish(snapshot atmosphere.Snapshot) {
	rs.snapshot.Store(&snapshot)
}

func (rs *resourceSet) Snapshot() (atmosphere.Snapshot, error) {
	s := rs.snapshot.Load()
	if s == nil {
		return atmosphere.Snapshot{}, absent("atmosphere_parameters")
	}
	return *s, nil
}

func (rs *resourceSet) Release() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	textures := rs.textures.Swap(nil)
	if textures == nil {
		return
	}
	for _, t := range *textures {
		t.Release()
	}
}
