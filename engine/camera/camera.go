package camera

import (
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-sky/common"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/bind_group_provider"
	"github.com/go-gl/mathgl/mgl32"
)

// cameraCount is an atomic counter used to generate unique bind group provider names for each camera instance.
var cameraCount atomic.Uint64

type cameraImpl struct {
	mu *sync.Mutex

	position mgl32.Vec3
	// yaw rotates around +Y from the -Z axis, pitch tilts towards +Y
	yaw   float32
	pitch float32

	fov    float32
	aspect float32
	near   float32
	far    float32

	lookSpeed float32
	maxPitch  float32

	viewMatrix            mgl32.Mat4
	projectionMatrix      mgl32.Mat4
	viewProjectionMatrix  mgl32.Mat4
	inverseViewProjection mgl32.Mat4

	bindGroupProvider bind_group_provider.BindGroupProvider
}

// Camera is the view collaborator of the sky: a free-look camera standing at a fixed
// position and turning with yaw and pitch. It produces the ViewUniform for each frame.
type Camera interface {
	// Position returns the camera's world-space position.
	Position() mgl32.Vec3

	// Forward returns the unit view direction.
	Forward() mgl32.Vec3

	// Yaw returns the horizontal view angle in radians.
	Yaw() float32

	// Pitch returns the vertical view angle in radians.
	Pitch() float32

	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// Near returns the near clipping plane distance.
	Near() float32

	// Far returns the far clipping plane distance.
	Far() float32

	// ViewMatrix returns the current world-to-view matrix.
	ViewMatrix() mgl32.Mat4

	// ProjectionMatrix returns the current projection matrix (WebGPU clip space).
	ProjectionMatrix() mgl32.Mat4

	// ViewProjectionMatrix returns the combined view-projection matrix.
	ViewProjectionMatrix() mgl32.Mat4

	// InverseViewProjectionMatrix returns the inverse of the combined view-projection matrix.
	// Used to reconstruct world-space rays from screen coordinates and depth.
	InverseViewProjectionMatrix() mgl32.Mat4

	// Uniform builds the per-view GPU data for a viewport.
	//
	// Parameters:
	//   - width: the viewport width in pixels
	//   - height: the viewport height in pixels
	//
	// Returns:
	//   - ViewUniform: the view data ready to marshal
	Uniform(width, height uint32) ViewUniform

	// LookLeft turns the camera left by one look step.
	LookLeft()

	// LookRight turns the camera right by one look step.
	LookRight()

	// LookUp tilts the camera up by one look step, clamped below the zenith.
	LookUp()

	// LookDown tilts the camera down by one look step, clamped above the nadir.
	LookDown()

	// SetPosition moves the camera.
	//
	// Parameters:
	//   - p: world-space position
	SetPosition(p mgl32.Vec3)

	// SetAngles points the camera.
	//
	// Parameters:
	//   - yaw: horizontal angle in radians, 0 looks down -Z
	//   - pitch: vertical angle in radians, clamped to the pitch limit
	SetAngles(yaw, pitch float32)

	// SetFov sets the vertical field of view in radians and recomputes matrices.
	SetFov(fov float32)

	// SetAspect sets the aspect ratio (width / height) and recomputes matrices.
	SetAspect(aspect float32)

	// BindGroupProvider returns the camera's bind group provider holding the view uniform buffer.
	//
	// Returns:
	//   - bind_group_provider.BindGroupProvider: the bind group provider
	BindGroupProvider() bind_group_provider.BindGroupProvider
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera at the origin looking down -Z, slightly above the horizon.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:        &sync.Mutex{},
		position:  mgl32.Vec3{0, 2, 0},
		pitch:     0.15,
		fov:       60.0 * (math.Pi / 180.0),
		aspect:    1.0,
		near:      0.1,
		far:       10000.0,
		lookSpeed: 0.03,
		maxPitch:  math.Pi/2 - 0.01,
		bindGroupProvider: bind_group_provider.NewBindGroupProvider(
			"camera_" + strconv.FormatUint(cameraCount.Load(), 10),
		),
	}
	for _, option := range options {
		option(c)
	}
	c.pitch = mgl32.Clamp(c.pitch, -c.maxPitch, c.maxPitch)
	c.updateMatrices()
	cameraCount.Add(1)
	return c
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Forward() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forward()
}

func (c *cameraImpl) Yaw() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.yaw
}

func (c *cameraImpl) Pitch() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pitch
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) ViewMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) InverseViewProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inverseViewProjection
}

func (c *cameraImpl) Uniform(width, height uint32) ViewUniform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ViewUniform{
		ViewProj:        c.viewProjectionMatrix,
		InverseViewProj: c.inverseViewProjection,
		WorldPosition:   c.position,
		Near:            c.near,
		Viewport:        mgl32.Vec4{0, 0, float32(width), float32(height)},
		Far:             c.far,
		FovY:            c.fov,
		Aspect:          c.aspect,
	}
}

func (c *cameraImpl) LookLeft() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.yaw += c.lookSpeed
	c.updateMatrices()
}

func (c *cameraImpl) LookRight() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.yaw -= c.lookSpeed
	c.updateMatrices()
}

func (c *cameraImpl) LookUp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pitch = mgl32.Clamp(c.pitch+c.lookSpeed, -c.maxPitch, c.maxPitch)
	c.updateMatrices()
}

func (c *cameraImpl) LookDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pitch = mgl32.Clamp(c.pitch-c.lookSpeed, -c.maxPitch, c.maxPitch)
	c.updateMatrices()
}

func (c *cameraImpl) SetPosition(p mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = p
	c.updateMatrices()
}

func (c *cameraImpl) SetAngles(yaw, pitch float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.yaw = yaw
	c.pitch = mgl32.Clamp(pitch, -c.maxPitch, c.maxPitch)
	c.updateMatrices()
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fov
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if aspect <= 0 {
		return
	}
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) BindGroupProvider() bind_group_provider.BindGroupProvider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bindGroupProvider
}

// forward returns the view direction for the current yaw and pitch.
// Caller must hold the mutex.
func (c *cameraImpl) forward() mgl32.Vec3 {
	cp := float32(math.Cos(float64(c.pitch)))
	return mgl32.Vec3{
		-cp * float32(math.Sin(float64(c.yaw))),
		float32(math.Sin(float64(c.pitch))),
		-cp * float32(math.Cos(float64(c.yaw))),
	}
}

// updateMatrices recalculates the view, projection, view-projection and inverse matrices.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	fwd := c.forward()
	c.viewMatrix = mgl32.LookAtV(c.position, c.position.Add(fwd), common.StableUp(fwd))
	c.projectionMatrix = common.Perspective(c.fov, c.aspect, c.near, c.far)
	c.viewProjectionMatrix = c.projectionMatrix.Mul4(c.viewMatrix)
	c.inverseViewProjection = c.viewProjectionMatrix.Inv()
}
