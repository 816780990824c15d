package proxy

import (
	"fmt"

	"github.com/neuronav/remoteplot/render"
	"github.com/neuronav/remoteplot/wire"
)

// Actor is a live handle to a drawable object in the worker. It remembers
// the visibility it last set so reads the client itself caused need no
// round-trip.
type Actor struct {
	ref     wire.ObjectRef
	plotter *Plotter
	mapper  *Mapper

	visibility *bool // last value set through this wrapper
}

// Ref returns the underlying object reference.
func (a *Actor) Ref() wire.ObjectRef { return a.ref }

// SetVisibility shows or hides the actor.
func (a *Actor) SetVisibility(visible bool) error {
	v := visible
	a.visibility = &v
	return a.plotter.invoke(wire.KindActorCall, wire.ActorSetVisibility, &a.ref,
		[]wire.Value{wire.Bool(visible)}, nil)
}

// VisibilityOn shows the actor.
func (a *Actor) VisibilityOn() error {
	v := true
	a.visibility = &v
	return a.plotter.invoke(wire.KindActorCall, wire.ActorVisibilityOn, &a.ref, nil, nil)
}

// VisibilityOff hides the actor.
func (a *Actor) VisibilityOff() error {
	v := false
	a.visibility = &v
	return a.plotter.invoke(wire.KindActorCall, wire.ActorVisibilityOff, &a.ref, nil, nil)
}

// Visibility reports whether the actor is visible. The cached value from
// the last set through this wrapper is used when available; this wrapper is
// assumed to be the only one changing it.
func (a *Actor) Visibility() (bool, error) {
	if a.visibility != nil {
		return *a.visibility, nil
	}
	val, err := a.plotter.query(wire.KindActorCall, wire.ActorGetVisibility, &a.ref, nil, nil)
	if err != nil {
		return false, err
	}
	visible, ok := val.AsBool()
	if !ok {
		return false, fmt.Errorf("proxy: getVisibility returned unexpected value")
	}
	a.visibility = &visible
	return visible, nil
}

// SetUserTransform positions the actor.
func (a *Actor) SetUserTransform(m render.Matrix4) error {
	return a.plotter.invoke(wire.KindActorCall, wire.ActorSetUserTransform, &a.ref,
		[]wire.Value{wire.Matrix(m)}, nil)
}

// SetUseBounds includes or excludes the actor from bounds computations.
func (a *Actor) SetUseBounds(use bool) error {
	return a.plotter.invoke(wire.KindActorCall, wire.ActorSetUseBounds, &a.ref,
		[]wire.Value{wire.Bool(use)}, nil)
}

// Mapper returns the wrapper for this actor's mapper.
func (a *Actor) Mapper() *Mapper {
	if a.mapper == nil {
		a.mapper = &Mapper{plotter: a.plotter, actor: a}
	}
	return a.mapper
}

// Release frees the worker-side handle. The actor wrapper must not be used
// afterwards; the drawable itself stays on the surface until removed.
func (a *Actor) Release() error {
	return a.plotter.invoke(wire.KindRelease, "", &a.ref, nil, nil)
}

// Camera is a live handle to a surface's camera.
type Camera struct {
	plotter *Plotter
}

func (c *Camera) get(prop string) (wire.Value, error) {
	return c.plotter.query(wire.KindCameraGet, prop, nil, nil, nil)
}

func (c *Camera) set(prop string, v wire.Value) error {
	return c.plotter.invoke(wire.KindCameraSet, prop, nil, []wire.Value{v}, nil)
}

func (c *Camera) getVec3(prop string) (render.Vec3, error) {
	val, err := c.get(prop)
	if err != nil {
		return render.Vec3{}, err
	}
	v, ok := val.AsVec3()
	if !ok {
		return render.Vec3{}, fmt.Errorf("proxy: camera %s returned unexpected value", prop)
	}
	return v, nil
}

func (c *Camera) getFloat(prop string) (float64, error) {
	val, err := c.get(prop)
	if err != nil {
		return 0, err
	}
	f, ok := val.AsFloat()
	if !ok {
		return 0, fmt.Errorf("proxy: camera %s returned unexpected value", prop)
	}
	return f, nil
}

// Position returns the camera position.
func (c *Camera) Position() (render.Vec3, error) { return c.getVec3(wire.CameraPropPosition) }

// SetPosition moves the camera.
func (c *Camera) SetPosition(p render.Vec3) error {
	return c.set(wire.CameraPropPosition, wire.Vec3(p))
}

// FocalPoint returns the point the camera looks at.
func (c *Camera) FocalPoint() (render.Vec3, error) { return c.getVec3(wire.CameraPropFocalPoint) }

// SetFocalPoint aims the camera.
func (c *Camera) SetFocalPoint(p render.Vec3) error {
	return c.set(wire.CameraPropFocalPoint, wire.Vec3(p))
}

// ViewUp returns the camera's up direction.
func (c *Camera) ViewUp() (render.Vec3, error) { return c.getVec3(wire.CameraPropViewUp) }

// SetViewUp sets the camera's up direction.
func (c *Camera) SetViewUp(v render.Vec3) error {
	return c.set(wire.CameraPropViewUp, wire.Vec3(v))
}

// ClippingRange returns the near and far clipping planes.
func (c *Camera) ClippingRange() (near, far float64, err error) {
	val, err := c.get(wire.CameraPropClippingRange)
	if err != nil {
		return 0, 0, err
	}
	f, ok := val.AsFloats()
	if !ok || len(f) != 2 {
		return 0, 0, fmt.Errorf("proxy: camera clippingRange returned unexpected value")
	}
	return f[0], f[1], nil
}

// SetClippingRange sets the near and far clipping planes.
func (c *Camera) SetClippingRange(near, far float64) error {
	return c.set(wire.CameraPropClippingRange, wire.FloatSlice([]float64{near, far}))
}

// ParallelScale returns the parallel projection scale.
func (c *Camera) ParallelScale() (float64, error) { return c.getFloat(wire.CameraPropParallelScale) }

// SetParallelScale sets the parallel projection scale.
func (c *Camera) SetParallelScale(s float64) error {
	return c.set(wire.CameraPropParallelScale, wire.Float(s))
}

// ViewAngle returns the perspective view angle in degrees.
func (c *Camera) ViewAngle() (float64, error) { return c.getFloat(wire.CameraPropViewAngle) }

// SetViewAngle sets the perspective view angle.
func (c *Camera) SetViewAngle(a float64) error {
	return c.set(wire.CameraPropViewAngle, wire.Float(a))
}

// Zoom scales the view by the given factor.
func (c *Camera) Zoom(factor float64) error {
	return c.plotter.invoke(wire.KindCameraCall, wire.CameraZoom, nil,
		[]wire.Value{wire.Float(factor)}, nil)
}

// EnableParallelProjection switches the camera to parallel projection.
func (c *Camera) EnableParallelProjection() error {
	return c.plotter.invoke(wire.KindCameraCall, wire.CameraEnableParallelProj, nil, nil, nil)
}

// Mapper is a live handle to a mapper, addressed either through its owning
// actor or through the surface's volume mapper.
type Mapper struct {
	plotter *Plotter
	actor   *Actor // nil for the surface's volume mapper
}

func (m *Mapper) kinds() (get, set, call wire.DispatchKind, target *wire.ObjectRef) {
	if m.actor != nil {
		return wire.KindActorMapperGet, wire.KindActorMapperSet, wire.KindMapperCall, &m.actor.ref
	}
	return wire.KindMapperGet, wire.KindMapperSet, wire.KindMapperCall, nil
}

// ScalarRange returns the mapper's scalar color range.
func (m *Mapper) ScalarRange() (lo, hi float64, err error) {
	get, _, _, target := m.kinds()
	val, err := m.plotter.query(get, wire.MapperPropScalarRange, target, nil, nil)
	if err != nil {
		return 0, 0, err
	}
	f, ok := val.AsFloats()
	if !ok || len(f) != 2 {
		return 0, 0, fmt.Errorf("proxy: mapper scalarRange returned unexpected value")
	}
	return f[0], f[1], nil
}

// SetScalarRange sets the mapper's scalar color range.
func (m *Mapper) SetScalarRange(lo, hi float64) error {
	_, set, _, target := m.kinds()
	return m.plotter.invoke(set, wire.MapperPropScalarRange, target,
		[]wire.Value{wire.FloatSlice([]float64{lo, hi})}, nil)
}

// SetInputData replaces the mapper's input mesh.
func (m *Mapper) SetInputData(mesh render.MeshData) error {
	_, _, call, target := m.kinds()
	return m.plotter.invoke(call, wire.MapperSetInputData, target,
		[]wire.Value{wire.MeshValue(mesh)}, nil)
}

// SetInputDataRef replaces the mapper's input with uploaded polydata.
func (m *Mapper) SetInputDataRef(ref wire.ObjectRef) error {
	_, _, call, target := m.kinds()
	return m.plotter.invoke(call, wire.MapperSetInputData, target,
		[]wire.Value{wire.Ref(ref)}, nil)
}

// Update recomputes the mapper's output.
func (m *Mapper) Update() error {
	_, _, call, target := m.kinds()
	return m.plotter.invoke(call, wire.MapperUpdate, target, nil, nil)
}
