package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/neuronav/remoteplot/render"
	"github.com/neuronav/remoteplot/wire"
)

// Plotter is the client-side stand-in for one rendering surface. Every
// operation is forwarded to the worker process; results that are native
// renderer objects come back as live Actor wrappers.
//
// A Plotter is confined to the goroutine that drives it, like the GUI
// thread it stands in for. The reverse callback loop runs separately and
// shares no plotter state.
type Plotter struct {
	c     *conn
	layer string // "" on the primary surface

	// batched selects queue-and-return-immediately mode: inside a Batched
	// scope, operations without results are pushed on the non-blocking line.
	batched bool

	camera *Camera
	mapper *Mapper

	// primary-only state
	winID     uint64
	secondary map[string]*Plotter
	stop      func(ctx context.Context) error
}

// Batched runs fn with non-blocking calls enabled: operations that need no
// result return immediately and are applied by the worker in send order.
// The worker is guaranteed to have applied all of them before any later
// blocking call on this channel returns.
func (p *Plotter) Batched(fn func()) {
	prev := p.batched
	p.batched = true
	defer func() { p.batched = prev }()
	fn()
}

// Unbatched runs fn with non-blocking calls disabled, for callers inside a
// Batched scope that need a result.
func (p *Plotter) Unbatched(fn func()) {
	prev := p.batched
	p.batched = false
	defer func() { p.batched = prev }()
	fn()
}

// invoke forwards an operation whose result is not needed. Inside a Batched
// scope it goes out on the push line and returns immediately.
func (p *Plotter) invoke(kind wire.DispatchKind, method string, target *wire.ObjectRef, args []wire.Value, kwargs map[string]wire.Value) error {
	msg := &wire.CallMessage{
		Kind:   kind,
		Layer:  p.layer,
		Target: target,
		Method: method,
		Args:   args,
		Kwargs: kwargs,
	}
	if p.batched {
		return p.c.push(msg)
	}
	_, err := p.c.request(msg)
	return err
}

// query forwards an operation and waits for its result, regardless of any
// surrounding Batched scope.
func (p *Plotter) query(kind wire.DispatchKind, method string, target *wire.ObjectRef, args []wire.Value, kwargs map[string]wire.Value) (wire.Value, error) {
	return p.c.request(&wire.CallMessage{
		Kind:   kind,
		Layer:  p.layer,
		Target: target,
		Method: method,
		Args:   args,
		Kwargs: kwargs,
	})
}

func (p *Plotter) actorFromResult(v wire.Value, op string) (*Actor, error) {
	ref, ok := v.AsRef()
	if !ok || ref.Kind != wire.RefActor {
		return nil, fmt.Errorf("proxy: %s did not return an actor reference", op)
	}
	return &Actor{ref: ref, plotter: p}, nil
}

// AddMeshOptions configures AddMesh and AddVolume.
type AddMeshOptions struct {
	Name      string
	Color     string
	Opacity   float64
	ShowEdges bool
}

func (o AddMeshOptions) kwargs() map[string]wire.Value {
	kw := make(map[string]wire.Value)
	if o.Name != "" {
		kw["name"] = wire.String(o.Name)
	}
	if o.Color != "" {
		kw["color"] = wire.String(o.Color)
	}
	if o.Opacity != 0 {
		kw["opacity"] = wire.Float(o.Opacity)
	}
	if o.ShowEdges {
		kw["showEdges"] = wire.Bool(true)
	}
	return kw
}

// AddMesh draws a mesh and returns a live handle to the resulting actor.
func (p *Plotter) AddMesh(mesh render.MeshData, opts AddMeshOptions) (*Actor, error) {
	v, err := p.query(wire.KindPlotterCall, wire.PlotterAddMesh, nil,
		[]wire.Value{wire.MeshValue(mesh)}, opts.kwargs())
	if err != nil {
		return nil, err
	}
	return p.actorFromResult(v, wire.PlotterAddMesh)
}

// AddMeshRef draws previously uploaded polydata.
func (p *Plotter) AddMeshRef(ref wire.ObjectRef, opts AddMeshOptions) (*Actor, error) {
	v, err := p.query(wire.KindPlotterCall, wire.PlotterAddMesh, nil,
		[]wire.Value{wire.Ref(ref)}, opts.kwargs())
	if err != nil {
		return nil, err
	}
	return p.actorFromResult(v, wire.PlotterAddMesh)
}

// UploadMesh stores polydata worker-side and returns its reference, so the
// same mesh can be drawn on several layers without resending the data.
func (p *Plotter) UploadMesh(mesh render.MeshData) (wire.ObjectRef, error) {
	v, err := p.query(wire.KindPlotterCall, wire.PlotterUploadMesh, nil,
		[]wire.Value{wire.MeshValue(mesh)}, nil)
	if err != nil {
		return wire.ObjectRef{}, err
	}
	ref, ok := v.AsRef()
	if !ok || ref.Kind != wire.RefPolyData {
		return wire.ObjectRef{}, fmt.Errorf("proxy: uploadMesh did not return a polydata reference")
	}
	return ref, nil
}

// AddVolume draws a volume and returns its actor. The surface's volume
// mapper becomes available through Mapper afterwards.
func (p *Plotter) AddVolume(mesh render.MeshData, opts AddMeshOptions) (*Actor, error) {
	v, err := p.query(wire.KindPlotterCall, wire.PlotterAddVolume, nil,
		[]wire.Value{wire.MeshValue(mesh)}, opts.kwargs())
	if err != nil {
		return nil, err
	}
	return p.actorFromResult(v, wire.PlotterAddVolume)
}

// AddLines draws line segments between consecutive point pairs.
func (p *Plotter) AddLines(points []render.Vec3, color string, width float64) (*Actor, error) {
	kw := map[string]wire.Value{}
	if color != "" {
		kw["color"] = wire.String(color)
	}
	if width != 0 {
		kw["width"] = wire.Float(width)
	}
	v, err := p.query(wire.KindPlotterCall, wire.PlotterAddLines, nil,
		[]wire.Value{flattenVec3s(points)}, kw)
	if err != nil {
		return nil, err
	}
	return p.actorFromResult(v, wire.PlotterAddLines)
}

// AddPoints draws a point cloud.
func (p *Plotter) AddPoints(points []render.Vec3, color string, pointSize float64) (*Actor, error) {
	kw := map[string]wire.Value{}
	if color != "" {
		kw["color"] = wire.String(color)
	}
	if pointSize != 0 {
		kw["pointSize"] = wire.Float(pointSize)
	}
	v, err := p.query(wire.KindPlotterCall, wire.PlotterAddPoints, nil,
		[]wire.Value{flattenVec3s(points)}, kw)
	if err != nil {
		return nil, err
	}
	return p.actorFromResult(v, wire.PlotterAddPoints)
}

// AddPointLabels draws text labels at the given points.
func (p *Plotter) AddPointLabels(points []render.Vec3, labels []string, fontSize int, color string) (*Actor, error) {
	kw := map[string]wire.Value{}
	if fontSize != 0 {
		kw["fontSize"] = wire.Int(int64(fontSize))
	}
	if color != "" {
		kw["color"] = wire.String(color)
	}
	v, err := p.query(wire.KindPlotterCall, wire.PlotterAddPointLabels, nil,
		[]wire.Value{flattenVec3s(points), wire.StringSlice(labels)}, kw)
	if err != nil {
		return nil, err
	}
	return p.actorFromResult(v, wire.PlotterAddPointLabels)
}

// RemoveActor removes an actor from the surface and releases its handle.
func (p *Plotter) RemoveActor(a *Actor) error {
	return p.invoke(wire.KindPlotterCall, wire.PlotterRemoveActor, nil,
		[]wire.Value{wire.Ref(a.ref)}, nil)
}

// Clear removes every actor from this surface.
func (p *Plotter) Clear() error {
	return p.invoke(wire.KindPlotterCall, wire.PlotterClear, nil, nil, nil)
}

// SetBackground sets the surface background color.
func (p *Plotter) SetBackground(color string) error {
	return p.invoke(wire.KindPlotterCall, wire.PlotterSetBackground, nil,
		[]wire.Value{wire.String(color)}, nil)
}

// ShowGrid toggles the bounds grid.
func (p *Plotter) ShowGrid(show bool) error {
	return p.invoke(wire.KindPlotterCall, wire.PlotterShowGrid, nil,
		[]wire.Value{wire.Bool(show)}, nil)
}

// ResetCamera frames all visible actors.
func (p *Plotter) ResetCamera() error {
	return p.invoke(wire.KindPlotterCall, wire.PlotterResetCamera, nil, nil, nil)
}

// ResetCameraClippingRange recomputes the camera clipping planes.
func (p *Plotter) ResetCameraClippingRange() error {
	return p.invoke(wire.KindPlotterCall, wire.PlotterResetCameraClip, nil, nil, nil)
}

// SetCameraClippingRange sets the camera clipping planes directly.
func (p *Plotter) SetCameraClippingRange(near, far float64) error {
	return p.invoke(wire.KindPlotterCall, wire.PlotterSetCameraClip, nil,
		[]wire.Value{wire.Float(near), wire.Float(far)}, nil)
}

// EnableDepthPeeling turns on order-independent transparency.
func (p *Plotter) EnableDepthPeeling(maxPeels int) error {
	return p.invoke(wire.KindPlotterCall, wire.PlotterEnableDepthPeeling, nil,
		[]wire.Value{wire.Int(int64(maxPeels))}, nil)
}

// EnableParallelProjection switches the surface to parallel projection.
func (p *Plotter) EnableParallelProjection() error {
	return p.invoke(wire.KindPlotterCall, wire.PlotterEnableParallelProj, nil, nil, nil)
}

// EnablePointPicking registers onPick to be invoked whenever the user picks
// a point on this surface. The function runs on the reverse notice loop.
func (p *Plotter) EnablePointPicking(onPick func(point render.Vec3)) error {
	key := p.c.callbacks.register(func(args []wire.Value, _ map[string]wire.Value) {
		if len(args) == 0 {
			return
		}
		if point, ok := args[0].AsVec3(); ok {
			onPick(point)
		}
	})
	return p.invoke(wire.KindPlotterCall, wire.PlotterEnablePointPicking, nil, nil,
		map[string]wire.Value{wire.KwargCallback: wire.Callback(key)})
}

// SetActorUserTransform positions an actor.
func (p *Plotter) SetActorUserTransform(a *Actor, m render.Matrix4) error {
	return p.invoke(wire.KindPlotterCall, wire.PlotterSetActorTransform, nil,
		[]wire.Value{wire.Ref(a.ref), wire.Matrix(m)}, nil)
}

// PickedPoint returns the most recently picked point, if any.
func (p *Plotter) PickedPoint() (render.Vec3, bool, error) {
	v, err := p.query(wire.KindPlotterGet, wire.PlotterPropPickedPoint, nil, nil, nil)
	if err != nil {
		return render.Vec3{}, false, err
	}
	if v.IsNil() {
		return render.Vec3{}, false, nil
	}
	point, ok := v.AsVec3()
	if !ok {
		return render.Vec3{}, false, fmt.Errorf("proxy: pickedPoint returned unexpected value")
	}
	return point, true, nil
}

// Render schedules a coalesced redraw.
func (p *Plotter) Render() error {
	return p.invoke(wire.KindPlotterCall, wire.PlotterRender, nil, nil, nil)
}

// RenderNow forces an immediate draw, bypassing coalescing.
func (p *Plotter) RenderNow() error {
	_, err := p.query(wire.KindPlotterCall, wire.PlotterRenderNow, nil, nil, nil)
	return err
}

// PauseRendering holds off coalesced redraws while a batch of mutations is
// applied.
func (p *Plotter) PauseRendering() error {
	return p.invoke(wire.KindPlotterCall, wire.PlotterPauseRendering, nil, nil, nil)
}

// ResumeRendering releases a PauseRendering.
func (p *Plotter) ResumeRendering() error {
	return p.invoke(wire.KindPlotterCall, wire.PlotterResumeRendering, nil, nil, nil)
}

// RenderingPaused runs fn with rendering paused.
func (p *Plotter) RenderingPaused(fn func()) error {
	if err := p.PauseRendering(); err != nil {
		return err
	}
	defer p.ResumeRendering()
	fn()
	return nil
}

// Camera returns the live camera wrapper for this surface.
func (p *Plotter) Camera() (*Camera, error) {
	if p.camera == nil {
		// Touch the camera remotely first: forces any lazy camera setup out
		// of the way without serializing the camera itself.
		if _, err := p.query(wire.KindQueryProperty, wire.PlotterPropCamera, nil, nil, nil); err != nil {
			return nil, err
		}
		p.camera = &Camera{plotter: p}
	}
	return p.camera, nil
}

// Mapper returns the wrapper for the surface's volume mapper.
func (p *Plotter) Mapper() *Mapper {
	if p.mapper == nil {
		p.mapper = &Mapper{plotter: p}
	}
	return p.mapper
}

// Ping round-trips a no-op through the worker.
func (p *Plotter) Ping() error {
	_, err := p.query(wire.KindNoop, "", nil, nil, nil)
	return err
}

// WindowID returns the worker's native window handle, obtained during the
// startup handshake, for embedding into the host GUI.
func (p *Plotter) WindowID() uint64 { return p.winID }

// IsPrimary reports whether this plotter owns the worker (as opposed to a
// secondary layer sharing it).
func (p *Plotter) IsPrimary() bool { return p.layer == "" }

// Close shuts the worker down: quit message, loop teardown, and a forced
// process kill as a backstop. Only the primary plotter may close.
func (p *Plotter) Close(ctx context.Context) error {
	if !p.IsPrimary() {
		return fmt.Errorf("proxy: only the primary plotter can close the worker")
	}
	if p.stop == nil {
		return nil
	}
	stop := p.stop
	p.stop = nil
	return stop(ctx)
}

func flattenVec3s(points []render.Vec3) wire.Value {
	flat := make([]float64, 0, len(points)*3)
	for _, pt := range points {
		flat = append(flat, pt[0], pt[1], pt[2])
	}
	return wire.FloatSlice(flat)
}

// sendQuit performs the graceful half of Close.
func (p *Plotter) sendQuit() error {
	quitTimeout := p.c.timeout
	if quitTimeout <= 0 {
		quitTimeout = 2 * time.Second
	}
	saved := p.c.timeout
	p.c.timeout = quitTimeout
	defer func() { p.c.timeout = saved }()
	_, err := p.query(wire.KindQuit, "", nil, nil, nil)
	return err
}
