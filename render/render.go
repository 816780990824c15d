// Package render defines the rendering engine capability consumed by the
// worker host. The engine, its surfaces, and the objects they produce are
// native resources: they live only inside the worker process and cross the
// process boundary by reference. SoftEngine is a pure in-memory
// implementation used by the default worker binary and the tests; a GPU
// backend satisfies the same interfaces.
package render

// Vec3 is a point or direction in world coordinates.
type Vec3 [3]float64

// Matrix4 is a 4x4 transform in row-major order.
type Matrix4 [16]float64

// Identity4 returns the identity transform.
func Identity4() Matrix4 {
	return Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// MeshData is a serializable polydata snapshot: flat xyz point coordinates
// plus vtk-style connectivity (count followed by point indices, repeated).
type MeshData struct {
	Points  []float64
	Faces   []int32
	Lines   []int32
	Scalars []float64
}

// PointCount returns the number of points in the mesh.
func (m MeshData) PointCount() int { return len(m.Points) / 3 }

// MeshOptions configures AddMesh and AddVolume.
type MeshOptions struct {
	Name      string
	Color     string
	Opacity   float64
	ShowEdges bool
}

// PointOptions configures AddPoints.
type PointOptions struct {
	Color     string
	PointSize float64
}

// LabelOptions configures AddPointLabels.
type LabelOptions struct {
	FontSize int
	Color    string
}

// PickHandler is invoked by the engine when the user picks a point on a
// surface that has point picking enabled.
type PickHandler func(point Vec3)

// Actor is a drawable object owned by a surface.
type Actor interface {
	SetVisibility(visible bool)
	Visibility() bool
	SetUserTransform(m Matrix4)
	SetUseBounds(use bool)
	Mapper() Mapper
}

// Mapper maps input data to an actor's geometry.
type Mapper interface {
	ScalarRange() (lo, hi float64)
	SetScalarRange(lo, hi float64)
	SetInputData(mesh MeshData)
	Update()
}

// Camera controls the viewpoint of one surface.
type Camera interface {
	Position() Vec3
	SetPosition(p Vec3)
	FocalPoint() Vec3
	SetFocalPoint(p Vec3)
	ViewUp() Vec3
	SetViewUp(v Vec3)
	ClippingRange() (near, far float64)
	SetClippingRange(near, far float64)
	ParallelScale() float64
	SetParallelScale(s float64)
	ViewAngle() float64
	SetViewAngle(a float64)
	EnableParallelProjection()
	Zoom(factor float64)
}

// Surface is one logical rendering layer inside the engine's window.
type Surface interface {
	AddMesh(mesh MeshData, opts MeshOptions) (Actor, error)
	AddVolume(mesh MeshData, opts MeshOptions) (Actor, error)
	AddLines(points []Vec3, color string, width float64) (Actor, error)
	AddPoints(points []Vec3, opts PointOptions) (Actor, error)
	AddPointLabels(points []Vec3, labels []string, opts LabelOptions) (Actor, error)
	RemoveActor(a Actor) error
	Clear()

	SetBackground(color string)
	ShowGrid(show bool)
	EnableDepthPeeling(maxPeels int)
	EnableParallelProjection()

	Camera() Camera
	ResetCamera()
	ResetCameraClippingRange()
	SetCameraClippingRange(near, far float64)

	EnablePointPicking(onPick PickHandler)
	PickedPoint() (Vec3, bool)

	// Mapper returns the mapper installed by the most recent volume op,
	// or nil if none exists yet.
	Mapper() Mapper

	// ActorCount reports the number of live actors on this surface.
	ActorCount() int
}

// Engine owns one native window and its rendering surfaces.
type Engine interface {
	// Primary returns the surface created with the window.
	Primary() Surface

	// AddLayer allocates a new surface in the same window and returns its
	// renderer layer index.
	AddLayer() (int, Surface)

	// Render draws all surfaces once. It must be safe for concurrent use:
	// the worker invokes it from its coalescing loop and, for immediate
	// draws, from its dispatch goroutine.
	Render()

	// WindowID returns the native window handle for embedding.
	WindowID() uint64

	Show()
	Close()
}

// Options configures engine construction.
type Options struct {
	Title  string
	Width  int
	Height int
	Theme  string // "light" or "dark"
}

// Factory constructs an engine. Construction is deferred by the worker host
// until a window is first needed.
type Factory func(opts Options) (Engine, error)
