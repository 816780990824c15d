package render

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var softWindowSeq atomic.Uint64

// SoftEngine is an in-memory Engine. It keeps full scene state (actors,
// cameras, backgrounds) without touching a GPU, which makes it suitable for
// headless workers and tests. All methods are safe for concurrent use so
// tests may drive picking from a separate goroutine.
type SoftEngine struct {
	mu          sync.Mutex
	opts        Options
	winID       uint64
	shown       bool
	closed      bool
	layers      []*SoftSurface
	renders     atomic.Uint64
	renderDelay time.Duration
}

// NewSoftEngine is a Factory for SoftEngine.
func NewSoftEngine(opts Options) (Engine, error) {
	e := &SoftEngine{
		opts:  opts,
		winID: 0xC0FFEE00 + softWindowSeq.Add(1),
	}
	e.layers = []*SoftSurface{newSoftSurface(0)}
	return e, nil
}

func (e *SoftEngine) Primary() Surface {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layers[0]
}

func (e *SoftEngine) AddLayer() (int, Surface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := len(e.layers)
	s := newSoftSurface(idx)
	e.layers = append(e.layers, s)
	return idx, s
}

// Layer returns the surface at the given renderer layer index.
func (e *SoftEngine) Layer(index int) (Surface, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.layers) {
		return nil, false
	}
	return e.layers[index], true
}

func (e *SoftEngine) Render() {
	if d := e.delay(); d > 0 {
		time.Sleep(d)
	}
	e.renders.Add(1)
}

// RenderCount reports how many renders have been performed.
func (e *SoftEngine) RenderCount() uint64 { return e.renders.Load() }

// SetRenderDelay makes Render sleep for d, to simulate expensive draws.
func (e *SoftEngine) SetRenderDelay(d time.Duration) {
	e.mu.Lock()
	e.renderDelay = d
	e.mu.Unlock()
}

func (e *SoftEngine) delay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renderDelay
}

func (e *SoftEngine) WindowID() uint64 { return e.winID }

func (e *SoftEngine) Show() {
	e.mu.Lock()
	e.shown = true
	e.mu.Unlock()
}

// Shown reports whether Show has been called.
func (e *SoftEngine) Shown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shown
}

func (e *SoftEngine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// SoftSurface is the in-memory Surface implementation.
type SoftSurface struct {
	mu         sync.Mutex
	layerIndex int
	actors     map[*SoftActor]struct{}
	background string
	gridShown  bool
	depthPeels int
	parallel   bool
	camera     *softCamera
	volMapper  *softMapper
	onPick     PickHandler
	picked     *Vec3
}

func newSoftSurface(layerIndex int) *SoftSurface {
	return &SoftSurface{
		layerIndex: layerIndex,
		actors:     make(map[*SoftActor]struct{}),
		camera:     &softCamera{viewAngle: 30, parallelScale: 1, clipNear: 0.01, clipFar: 1000},
	}
}

// LayerIndex reports which renderer layer this surface occupies.
func (s *SoftSurface) LayerIndex() int { return s.layerIndex }

func (s *SoftSurface) addActor(mesh MeshData, name string) *SoftActor {
	a := &SoftActor{
		name:      name,
		visible:   true,
		useBounds: true,
		transform: Identity4(),
		mapper:    &softMapper{mesh: mesh},
	}
	s.mu.Lock()
	s.actors[a] = struct{}{}
	s.mu.Unlock()
	return a
}

func (s *SoftSurface) AddMesh(mesh MeshData, opts MeshOptions) (Actor, error) {
	if len(mesh.Points)%3 != 0 {
		return nil, fmt.Errorf("render: mesh points length %d is not a multiple of 3", len(mesh.Points))
	}
	return s.addActor(mesh, opts.Name), nil
}

func (s *SoftSurface) AddVolume(mesh MeshData, opts MeshOptions) (Actor, error) {
	a, err := s.AddMesh(mesh, opts)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.volMapper = a.(*SoftActor).mapper
	s.mu.Unlock()
	return a, nil
}

func (s *SoftSurface) AddLines(points []Vec3, color string, width float64) (Actor, error) {
	if len(points)%2 != 0 {
		return nil, fmt.Errorf("render: line segments need an even point count, got %d", len(points))
	}
	return s.addActor(meshFromPoints(points), "lines"), nil
}

func (s *SoftSurface) AddPoints(points []Vec3, opts PointOptions) (Actor, error) {
	return s.addActor(meshFromPoints(points), "points"), nil
}

func (s *SoftSurface) AddPointLabels(points []Vec3, labels []string, opts LabelOptions) (Actor, error) {
	if len(points) != len(labels) {
		return nil, fmt.Errorf("render: %d points but %d labels", len(points), len(labels))
	}
	return s.addActor(meshFromPoints(points), "labels"), nil
}

func (s *SoftSurface) RemoveActor(a Actor) error {
	sa, ok := a.(*SoftActor)
	if !ok {
		return fmt.Errorf("render: actor %T does not belong to a soft surface", a)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actors[sa]; !ok {
		return fmt.Errorf("render: actor %q not present on surface", sa.name)
	}
	delete(s.actors, sa)
	return nil
}

func (s *SoftSurface) Clear() {
	s.mu.Lock()
	s.actors = make(map[*SoftActor]struct{})
	s.mu.Unlock()
}

func (s *SoftSurface) SetBackground(color string) {
	s.mu.Lock()
	s.background = color
	s.mu.Unlock()
}

// Background returns the current background color.
func (s *SoftSurface) Background() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.background
}

func (s *SoftSurface) ShowGrid(show bool) {
	s.mu.Lock()
	s.gridShown = show
	s.mu.Unlock()
}

func (s *SoftSurface) EnableDepthPeeling(maxPeels int) {
	s.mu.Lock()
	s.depthPeels = maxPeels
	s.mu.Unlock()
}

func (s *SoftSurface) EnableParallelProjection() {
	s.mu.Lock()
	s.parallel = true
	s.mu.Unlock()
}

func (s *SoftSurface) Camera() Camera { return s.camera }

func (s *SoftSurface) ResetCamera() {
	s.camera.SetPosition(Vec3{0, 0, 1})
	s.camera.SetFocalPoint(Vec3{0, 0, 0})
	s.camera.SetViewUp(Vec3{0, 1, 0})
}

func (s *SoftSurface) ResetCameraClippingRange() {
	s.camera.SetClippingRange(0.01, 1000)
}

func (s *SoftSurface) SetCameraClippingRange(near, far float64) {
	s.camera.SetClippingRange(near, far)
}

func (s *SoftSurface) EnablePointPicking(onPick PickHandler) {
	s.mu.Lock()
	s.onPick = onPick
	s.mu.Unlock()
}

// SimulatePick emulates a user pick, recording the point and invoking the
// registered handler. Used by tests and headless drivers.
func (s *SoftSurface) SimulatePick(point Vec3) {
	s.mu.Lock()
	p := point
	s.picked = &p
	h := s.onPick
	s.mu.Unlock()
	if h != nil {
		h(point)
	}
}

func (s *SoftSurface) PickedPoint() (Vec3, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.picked == nil {
		return Vec3{}, false
	}
	return *s.picked, true
}

func (s *SoftSurface) Mapper() Mapper {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.volMapper == nil {
		return nil
	}
	return s.volMapper
}

func (s *SoftSurface) ActorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actors)
}

// SoftActor is the in-memory Actor implementation.
type SoftActor struct {
	mu        sync.Mutex
	name      string
	visible   bool
	useBounds bool
	transform Matrix4
	mapper    *softMapper
}

func (a *SoftActor) SetVisibility(visible bool) {
	a.mu.Lock()
	a.visible = visible
	a.mu.Unlock()
}

func (a *SoftActor) Visibility() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.visible
}

func (a *SoftActor) SetUserTransform(m Matrix4) {
	a.mu.Lock()
	a.transform = m
	a.mu.Unlock()
}

// UserTransform returns the current user transform.
func (a *SoftActor) UserTransform() Matrix4 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transform
}

func (a *SoftActor) SetUseBounds(use bool) {
	a.mu.Lock()
	a.useBounds = use
	a.mu.Unlock()
}

func (a *SoftActor) Mapper() Mapper { return a.mapper }

type softMapper struct {
	mu       sync.Mutex
	mesh     MeshData
	scalarLo float64
	scalarHi float64
}

func (m *softMapper) ScalarRange() (lo, hi float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scalarLo, m.scalarHi
}

func (m *softMapper) SetScalarRange(lo, hi float64) {
	m.mu.Lock()
	m.scalarLo, m.scalarHi = lo, hi
	m.mu.Unlock()
}

func (m *softMapper) SetInputData(mesh MeshData) {
	m.mu.Lock()
	m.mesh = mesh
	m.mu.Unlock()
}

func (m *softMapper) Update() {}

type softCamera struct {
	mu            sync.Mutex
	position      Vec3
	focalPoint    Vec3
	viewUp        Vec3
	clipNear      float64
	clipFar       float64
	parallelScale float64
	viewAngle     float64
	parallel      bool
}

func (c *softCamera) Position() Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *softCamera) SetPosition(p Vec3) {
	c.mu.Lock()
	c.position = p
	c.mu.Unlock()
}

func (c *softCamera) FocalPoint() Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focalPoint
}

func (c *softCamera) SetFocalPoint(p Vec3) {
	c.mu.Lock()
	c.focalPoint = p
	c.mu.Unlock()
}

func (c *softCamera) ViewUp() Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewUp
}

func (c *softCamera) SetViewUp(v Vec3) {
	c.mu.Lock()
	c.viewUp = v
	c.mu.Unlock()
}

func (c *softCamera) ClippingRange() (near, far float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clipNear, c.clipFar
}

func (c *softCamera) SetClippingRange(near, far float64) {
	c.mu.Lock()
	c.clipNear, c.clipFar = near, far
	c.mu.Unlock()
}

func (c *softCamera) ParallelScale() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parallelScale
}

func (c *softCamera) SetParallelScale(s float64) {
	c.mu.Lock()
	c.parallelScale = s
	c.mu.Unlock()
}

func (c *softCamera) ViewAngle() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewAngle
}

func (c *softCamera) SetViewAngle(a float64) {
	c.mu.Lock()
	c.viewAngle = a
	c.mu.Unlock()
}

func (c *softCamera) EnableParallelProjection() {
	c.mu.Lock()
	c.parallel = true
	c.mu.Unlock()
}

func (c *softCamera) Zoom(factor float64) {
	c.mu.Lock()
	if factor != 0 {
		c.parallelScale /= factor
	}
	c.mu.Unlock()
}

func meshFromPoints(points []Vec3) MeshData {
	flat := make([]float64, 0, len(points)*3)
	for _, p := range points {
		flat = append(flat, p[0], p[1], p[2])
	}
	return MeshData{Points: flat}
}
