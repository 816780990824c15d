package host

import (
	"fmt"
	"time"

	"github.com/tliron/commonlog"

	"github.com/neuronav/remoteplot/render"
	"github.com/neuronav/remoteplot/wire"
)

var log = commonlog.GetLogger("remoteplot.host")

// primaryLayer is the reserved key for the surface created with the window.
const primaryLayer = ""

// Manager owns the engine and dispatches decoded call messages onto it. All
// Handle calls must come from a single goroutine (the App's dispatch loop);
// the manager itself takes no locks around engine state.
//
// Engine construction is deferred: the window and its first surface come
// into being on the first message that needs them, so a worker process is
// cheap until the client actually shows it.
type Manager struct {
	factory    render.Factory
	engineOpts render.Options
	minPeriod  time.Duration

	engine    render.Engine
	coalescer *Coalescer
	registry  *Registry
	layers    map[string]render.Surface

	// emitCallback sends a reverse callback notice to the client. Installed
	// by the App; may be invoked from engine threads.
	emitCallback func(key string, args []wire.Value, kwargs map[string]wire.Value)
}

// NewManager creates a manager that will build its engine on demand.
func NewManager(factory render.Factory, opts render.Options, minRenderPeriod time.Duration) *Manager {
	return &Manager{
		factory:      factory,
		engineOpts:   opts,
		minPeriod:    minRenderPeriod,
		registry:     NewRegistry(),
		layers:       make(map[string]render.Surface),
		emitCallback: func(string, []wire.Value, map[string]wire.Value) {},
	}
}

// SetCallbackSink installs the reverse-callback transport.
func (m *Manager) SetCallbackSink(fn func(key string, args []wire.Value, kwargs map[string]wire.Value)) {
	m.emitCallback = fn
}

// Registry exposes the object reference registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Engine returns the engine, or nil if it has not been constructed yet.
func (m *Manager) Engine() render.Engine { return m.engine }

// Coalescer returns the render coalescer, or nil before engine construction.
func (m *Manager) Coalescer() *Coalescer { return m.coalescer }

// Close stops the coalescer and the engine.
func (m *Manager) Close() {
	if m.coalescer != nil {
		m.coalescer.Stop()
	}
	if m.engine != nil {
		m.engine.Close()
	}
}

func (m *Manager) ensureEngine() error {
	if m.engine != nil {
		return nil
	}
	log.Info("constructing rendering engine")
	eng, err := m.factory(m.engineOpts)
	if err != nil {
		return fmt.Errorf("host: engine construction: %w", err)
	}
	m.engine = eng
	m.coalescer = NewCoalescer(eng.Render, m.minPeriod)
	m.layers[primaryLayer] = eng.Primary()
	return nil
}

func (m *Manager) surface(layer string) (render.Surface, *wire.RemoteError) {
	if err := m.ensureEngine(); err != nil {
		return nil, &wire.RemoteError{Code: wire.ErrCodeRemoteException, Message: err.Error()}
	}
	s, ok := m.layers[layer]
	if !ok {
		return nil, &wire.RemoteError{
			Code:    wire.ErrCodeUnknownOperation,
			Message: fmt.Sprintf("no rendering layer %q", layer),
		}
	}
	return s, nil
}

// Handle dispatches one call message and produces its result. Panics inside
// an operation are caught and returned as remote exceptions; a bad message
// can never take the worker down.
func (m *Manager) Handle(msg *wire.CallMessage) (res wire.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic handling %s %s: %v", msg.Kind, msg.Method, r)
			res = wire.ErrResult(wire.ErrCodeRemoteException, msg.Method, "%v", r)
		}
	}()

	log.Debugf("handling %s %s (layer %q)", msg.Kind, msg.Method, msg.Layer)

	switch msg.Kind {
	case wire.KindNoop:
		return wire.Ack()

	case wire.KindShowWindow:
		if err := m.ensureEngine(); err != nil {
			return wire.ErrResult(wire.ErrCodeRemoteException, "showWindow", "%v", err)
		}
		m.engine.Show()
		return wire.Ack()

	case wire.KindGetWinID:
		if err := m.ensureEngine(); err != nil {
			return wire.ErrResult(wire.ErrCodeRemoteException, "getWinID", "%v", err)
		}
		return wire.OKResult(wire.Int(int64(m.engine.WindowID())))

	case wire.KindRelease:
		if msg.Target == nil {
			return wire.ErrResult(wire.ErrCodeSerialization, "release", "missing target reference")
		}
		m.registry.Release(*msg.Target)
		return wire.Ack()

	case wire.KindQueryProperty:
		return m.queryProperty(msg)

	case wire.KindPlotterCall:
		return m.plotterCall(msg)

	case wire.KindPlotterGet:
		return m.plotterGet(msg)

	case wire.KindActorCall:
		return m.actorCall(msg)

	case wire.KindActorMapperGet, wire.KindActorMapperSet, wire.KindMapperCall,
		wire.KindMapperGet, wire.KindMapperSet:
		return m.mapperOp(msg)

	case wire.KindCameraGet, wire.KindCameraSet, wire.KindCameraCall:
		return m.cameraOp(msg)

	default:
		return wire.ErrResult(wire.ErrCodeUnknownOperation, "", "unexpected dispatch kind %s", msg.Kind)
	}
}

// queryProperty touches a property for its side effects without serializing
// the value back (e.g. forcing lazy camera setup out of the way).
func (m *Manager) queryProperty(msg *wire.CallMessage) wire.Result {
	s, rerr := m.surface(msg.Layer)
	if rerr != nil {
		return wire.Result{OK: false, Err: rerr}
	}
	switch msg.Method {
	case wire.PlotterPropCamera:
		_ = s.Camera()
		return wire.Ack()
	default:
		return wire.ErrResult(wire.ErrCodeUnknownOperation, msg.Method, "unknown queryable property")
	}
}

func (m *Manager) plotterGet(msg *wire.CallMessage) wire.Result {
	s, rerr := m.surface(msg.Layer)
	if rerr != nil {
		return wire.Result{OK: false, Err: rerr}
	}
	switch msg.Method {
	case wire.PlotterPropPickedPoint:
		p, ok := s.PickedPoint()
		if !ok {
			return wire.OKResult(wire.Nil())
		}
		return wire.OKResult(wire.Vec3(p))
	default:
		return wire.ErrResult(wire.ErrCodeUnknownOperation, msg.Method, "unknown plotter property")
	}
}

func (m *Manager) plotterCall(msg *wire.CallMessage) wire.Result {
	s, rerr := m.surface(msg.Layer)
	if rerr != nil {
		return wire.Result{OK: false, Err: rerr}
	}

	switch msg.Method {
	case wire.PlotterAddMesh, wire.PlotterAddVolume:
		mesh, rerr := m.meshArg(msg, 0)
		if rerr != nil {
			return wire.Result{OK: false, Err: rerr}
		}
		opts := meshOptions(msg.Kwargs)
		var (
			actor render.Actor
			err   error
		)
		if msg.Method == wire.PlotterAddVolume {
			actor, err = s.AddVolume(mesh, opts)
		} else {
			actor, err = s.AddMesh(mesh, opts)
		}
		if err != nil {
			return wire.ErrResult(wire.ErrCodeRemoteException, msg.Method, "%v", err)
		}
		m.coalescer.Request()
		return wire.OKResult(wire.Ref(m.registry.Add(wire.RefActor, actor)))

	case wire.PlotterAddLines:
		points, rerr := vec3sArg(msg, 0)
		if rerr != nil {
			return wire.Result{OK: false, Err: rerr}
		}
		color, _ := kwargString(msg.Kwargs, "color")
		width, _ := kwargFloat(msg.Kwargs, "width")
		actor, err := s.AddLines(points, color, width)
		if err != nil {
			return wire.ErrResult(wire.ErrCodeRemoteException, msg.Method, "%v", err)
		}
		m.coalescer.Request()
		return wire.OKResult(wire.Ref(m.registry.Add(wire.RefActor, actor)))

	case wire.PlotterAddPoints:
		points, rerr := vec3sArg(msg, 0)
		if rerr != nil {
			return wire.Result{OK: false, Err: rerr}
		}
		color, _ := kwargString(msg.Kwargs, "color")
		size, _ := kwargFloat(msg.Kwargs, "pointSize")
		actor, err := s.AddPoints(points, render.PointOptions{Color: color, PointSize: size})
		if err != nil {
			return wire.ErrResult(wire.ErrCodeRemoteException, msg.Method, "%v", err)
		}
		m.coalescer.Request()
		return wire.OKResult(wire.Ref(m.registry.Add(wire.RefActor, actor)))

	case wire.PlotterAddPointLabels:
		points, rerr := vec3sArg(msg, 0)
		if rerr != nil {
			return wire.Result{OK: false, Err: rerr}
		}
		labels, ok := argAt(msg, 1).AsStrings()
		if !ok {
			return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "labels must be a string slice")
		}
		color, _ := kwargString(msg.Kwargs, "color")
		fontSize, _ := kwargInt(msg.Kwargs, "fontSize")
		actor, err := s.AddPointLabels(points, labels, render.LabelOptions{FontSize: int(fontSize), Color: color})
		if err != nil {
			return wire.ErrResult(wire.ErrCodeRemoteException, msg.Method, "%v", err)
		}
		m.coalescer.Request()
		return wire.OKResult(wire.Ref(m.registry.Add(wire.RefActor, actor)))

	case wire.PlotterRemoveActor:
		ref, ok := argAt(msg, 0).AsRef()
		if !ok {
			return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "argument must be an actor reference")
		}
		actor, err := m.registry.ResolveActor(ref)
		if err != nil {
			return errToResult(msg.Method, err)
		}
		if err := s.RemoveActor(actor); err != nil {
			return wire.ErrResult(wire.ErrCodeRemoteException, msg.Method, "%v", err)
		}
		m.registry.Release(ref)
		m.coalescer.Request()
		return wire.Ack()

	case wire.PlotterClear:
		s.Clear()
		m.coalescer.Request()
		return wire.Ack()

	case wire.PlotterSetBackground:
		color, ok := argAt(msg, 0).AsString()
		if !ok {
			return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "argument must be a color string")
		}
		s.SetBackground(color)
		m.coalescer.Request()
		return wire.Ack()

	case wire.PlotterShowGrid:
		show := true
		if v, ok := argAt(msg, 0).AsBool(); ok {
			show = v
		}
		s.ShowGrid(show)
		m.coalescer.Request()
		return wire.Ack()

	case wire.PlotterResetCamera:
		s.ResetCamera()
		m.coalescer.Request()
		return wire.Ack()

	case wire.PlotterResetCameraClip:
		s.ResetCameraClippingRange()
		return wire.Ack()

	case wire.PlotterSetCameraClip:
		near, okN := argAt(msg, 0).AsFloat()
		far, okF := argAt(msg, 1).AsFloat()
		if !okN || !okF {
			return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "arguments must be near and far floats")
		}
		s.SetCameraClippingRange(near, far)
		return wire.Ack()

	case wire.PlotterEnableDepthPeeling:
		peels, _ := argAt(msg, 0).AsInt()
		s.EnableDepthPeeling(int(peels))
		return wire.Ack()

	case wire.PlotterEnableParallelProj:
		s.EnableParallelProjection()
		return wire.Ack()

	case wire.PlotterEnablePointPicking:
		key, ok := msg.Kwargs[wire.KwargCallback].AsCallbackKey()
		if !ok {
			return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "missing callback keyword argument")
		}
		// Rebind the registration key to a reverse notice. The handler may
		// fire from an engine thread long after this call returns.
		s.EnablePointPicking(func(p render.Vec3) {
			m.emitCallback(key, []wire.Value{wire.Vec3(p)}, nil)
		})
		return wire.Ack()

	case wire.PlotterSetActorTransform:
		ref, ok := argAt(msg, 0).AsRef()
		if !ok {
			return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "first argument must be an actor reference")
		}
		mat, ok := argAt(msg, 1).AsMatrix()
		if !ok {
			return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "second argument must be a 16-element matrix")
		}
		actor, err := m.registry.ResolveActor(ref)
		if err != nil {
			return errToResult(msg.Method, err)
		}
		actor.SetUserTransform(mat)
		m.coalescer.Request()
		return wire.Ack()

	case wire.PlotterUploadMesh:
		mesh, rerr := m.meshArg(msg, 0)
		if rerr != nil {
			return wire.Result{OK: false, Err: rerr}
		}
		return wire.OKResult(wire.Ref(m.registry.Add(wire.RefPolyData, mesh)))

	case wire.PlotterRender:
		m.coalescer.Request()
		return wire.Ack()

	case wire.PlotterRenderNow:
		m.coalescer.RenderNow()
		return wire.Ack()

	case wire.PlotterPauseRendering:
		m.coalescer.Pause()
		return wire.Ack()

	case wire.PlotterResumeRendering:
		m.coalescer.Resume()
		return wire.Ack()

	case wire.PlotterAddLayer:
		key, ok := kwargString(msg.Kwargs, "key")
		if !ok || key == primaryLayer {
			return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "missing or empty layer key")
		}
		if _, exists := m.layers[key]; exists {
			return wire.ErrResult(wire.ErrCodeRemoteException, msg.Method, "layer %q already exists", key)
		}
		idx, layerSurface := m.engine.AddLayer()
		m.layers[key] = layerSurface
		return wire.OKResult(wire.Int(int64(idx)))

	default:
		return wire.ErrResult(wire.ErrCodeUnknownOperation, msg.Method, "unknown plotter operation")
	}
}

func (m *Manager) actorCall(msg *wire.CallMessage) wire.Result {
	if msg.Target == nil {
		return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "missing target actor reference")
	}
	actor, err := m.registry.ResolveActor(*msg.Target)
	if err != nil {
		return errToResult(msg.Method, err)
	}

	switch msg.Method {
	case wire.ActorSetVisibility:
		v, ok := argAt(msg, 0).AsBool()
		if !ok {
			return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "argument must be a bool")
		}
		actor.SetVisibility(v)
		m.requestRender()
		return wire.Ack()

	case wire.ActorGetVisibility:
		return wire.OKResult(wire.Bool(actor.Visibility()))

	case wire.ActorVisibilityOn:
		actor.SetVisibility(true)
		m.requestRender()
		return wire.Ack()

	case wire.ActorVisibilityOff:
		actor.SetVisibility(false)
		m.requestRender()
		return wire.Ack()

	case wire.ActorSetUseBounds:
		v, ok := argAt(msg, 0).AsBool()
		if !ok {
			return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "argument must be a bool")
		}
		actor.SetUseBounds(v)
		return wire.Ack()

	case wire.ActorSetUserTransform:
		mat, ok := argAt(msg, 0).AsMatrix()
		if !ok {
			return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "argument must be a 16-element matrix")
		}
		actor.SetUserTransform(mat)
		m.requestRender()
		return wire.Ack()

	default:
		return wire.ErrResult(wire.ErrCodeUnknownOperation, msg.Method, "unknown actor operation")
	}
}

// mapperOp serves the mapper dispatch kinds. ActorMapper kinds address the
// mapper of a specific actor; plain Mapper kinds address the surface's
// volume mapper.
func (m *Manager) mapperOp(msg *wire.CallMessage) wire.Result {
	var mapper render.Mapper
	switch msg.Kind {
	case wire.KindActorMapperGet, wire.KindActorMapperSet:
		if msg.Target == nil {
			return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "missing target actor reference")
		}
		actor, err := m.registry.ResolveActor(*msg.Target)
		if err != nil {
			return errToResult(msg.Method, err)
		}
		mapper = actor.Mapper()
	default:
		if msg.Target != nil {
			actor, err := m.registry.ResolveActor(*msg.Target)
			if err != nil {
				return errToResult(msg.Method, err)
			}
			mapper = actor.Mapper()
		} else {
			s, rerr := m.surface(msg.Layer)
			if rerr != nil {
				return wire.Result{OK: false, Err: rerr}
			}
			mapper = s.Mapper()
		}
	}
	if mapper == nil {
		return wire.ErrResult(wire.ErrCodeRemoteException, msg.Method, "surface has no mapper yet")
	}

	switch msg.Kind {
	case wire.KindActorMapperGet, wire.KindMapperGet:
		switch msg.Method {
		case wire.MapperPropScalarRange:
			lo, hi := mapper.ScalarRange()
			return wire.OKResult(wire.FloatSlice([]float64{lo, hi}))
		default:
			return wire.ErrResult(wire.ErrCodeUnknownOperation, msg.Method, "unknown mapper property")
		}

	case wire.KindActorMapperSet, wire.KindMapperSet:
		switch msg.Method {
		case wire.MapperPropScalarRange:
			f, ok := argAt(msg, 0).AsFloats()
			if !ok || len(f) != 2 {
				return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "value must be a [lo hi] float pair")
			}
			mapper.SetScalarRange(f[0], f[1])
			m.requestRender()
			return wire.Ack()
		default:
			return wire.ErrResult(wire.ErrCodeUnknownOperation, msg.Method, "unknown mapper property")
		}

	default: // KindMapperCall
		switch msg.Method {
		case wire.MapperSetInputData:
			mesh, rerr := m.meshArg(msg, 0)
			if rerr != nil {
				return wire.Result{OK: false, Err: rerr}
			}
			mapper.SetInputData(mesh)
			m.requestRender()
			return wire.Ack()
		case wire.MapperUpdate:
			mapper.Update()
			m.requestRender()
			return wire.Ack()
		default:
			return wire.ErrResult(wire.ErrCodeUnknownOperation, msg.Method, "unknown mapper operation")
		}
	}
}

func (m *Manager) cameraOp(msg *wire.CallMessage) wire.Result {
	s, rerr := m.surface(msg.Layer)
	if rerr != nil {
		return wire.Result{OK: false, Err: rerr}
	}
	cam := s.Camera()

	switch msg.Kind {
	case wire.KindCameraGet:
		switch msg.Method {
		case wire.CameraPropPosition:
			return wire.OKResult(wire.Vec3(cam.Position()))
		case wire.CameraPropFocalPoint:
			return wire.OKResult(wire.Vec3(cam.FocalPoint()))
		case wire.CameraPropViewUp:
			return wire.OKResult(wire.Vec3(cam.ViewUp()))
		case wire.CameraPropClippingRange:
			near, far := cam.ClippingRange()
			return wire.OKResult(wire.FloatSlice([]float64{near, far}))
		case wire.CameraPropParallelScale:
			return wire.OKResult(wire.Float(cam.ParallelScale()))
		case wire.CameraPropViewAngle:
			return wire.OKResult(wire.Float(cam.ViewAngle()))
		default:
			return wire.ErrResult(wire.ErrCodeUnknownOperation, msg.Method, "unknown camera property")
		}

	case wire.KindCameraSet:
		val := argAt(msg, 0)
		switch msg.Method {
		case wire.CameraPropPosition, wire.CameraPropFocalPoint, wire.CameraPropViewUp:
			v, ok := val.AsVec3()
			if !ok {
				return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "value must be a 3-vector")
			}
			switch msg.Method {
			case wire.CameraPropPosition:
				cam.SetPosition(v)
			case wire.CameraPropFocalPoint:
				cam.SetFocalPoint(v)
			case wire.CameraPropViewUp:
				cam.SetViewUp(v)
			}
		case wire.CameraPropClippingRange:
			f, ok := val.AsFloats()
			if !ok || len(f) != 2 {
				return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "value must be a [near far] float pair")
			}
			cam.SetClippingRange(f[0], f[1])
		case wire.CameraPropParallelScale:
			f, ok := val.AsFloat()
			if !ok {
				return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "value must be a float")
			}
			cam.SetParallelScale(f)
		case wire.CameraPropViewAngle:
			f, ok := val.AsFloat()
			if !ok {
				return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "value must be a float")
			}
			cam.SetViewAngle(f)
		default:
			return wire.ErrResult(wire.ErrCodeUnknownOperation, msg.Method, "unknown camera property")
		}
		m.requestRender()
		return wire.Ack()

	default: // KindCameraCall
		switch msg.Method {
		case wire.CameraZoom:
			f, ok := argAt(msg, 0).AsFloat()
			if !ok {
				return wire.ErrResult(wire.ErrCodeSerialization, msg.Method, "argument must be a float")
			}
			cam.Zoom(f)
			m.requestRender()
			return wire.Ack()
		case wire.CameraEnableParallelProj:
			cam.EnableParallelProjection()
			return wire.Ack()
		default:
			return wire.ErrResult(wire.ErrCodeUnknownOperation, msg.Method, "unknown camera operation")
		}
	}
}

func (m *Manager) requestRender() {
	if m.coalescer != nil {
		m.coalescer.Request()
	}
}

// meshArg decodes a mesh argument that may be inline data or a reference to
// previously uploaded polydata.
func (m *Manager) meshArg(msg *wire.CallMessage, i int) (render.MeshData, *wire.RemoteError) {
	v := argAt(msg, i)
	if mesh, ok := v.AsMesh(); ok {
		return mesh, nil
	}
	if ref, ok := v.AsRef(); ok && ref.Kind == wire.RefPolyData {
		mesh, err := m.registry.ResolveMesh(ref)
		if err != nil {
			if rerr, ok := err.(*wire.RemoteError); ok {
				return render.MeshData{}, rerr
			}
			return render.MeshData{}, &wire.RemoteError{Code: wire.ErrCodeRemoteException, Op: msg.Method, Message: err.Error()}
		}
		return mesh, nil
	}
	return render.MeshData{}, &wire.RemoteError{
		Code:    wire.ErrCodeSerialization,
		Op:      msg.Method,
		Message: "argument must be mesh data or a polydata reference",
	}
}

func errToResult(op string, err error) wire.Result {
	if rerr, ok := err.(*wire.RemoteError); ok {
		if rerr.Op == "" {
			rerr.Op = op
		}
		return wire.Result{OK: false, Err: rerr}
	}
	return wire.ErrResult(wire.ErrCodeRemoteException, op, "%v", err)
}

func argAt(msg *wire.CallMessage, i int) wire.Value {
	if i < 0 || i >= len(msg.Args) {
		return wire.Nil()
	}
	return msg.Args[i]
}

func vec3sArg(msg *wire.CallMessage, i int) ([]render.Vec3, *wire.RemoteError) {
	f, ok := argAt(msg, i).AsFloats()
	if !ok || len(f)%3 != 0 {
		return nil, &wire.RemoteError{
			Code:    wire.ErrCodeSerialization,
			Op:      msg.Method,
			Message: "argument must be a flat xyz float slice",
		}
	}
	points := make([]render.Vec3, len(f)/3)
	for j := range points {
		points[j] = render.Vec3{f[j*3], f[j*3+1], f[j*3+2]}
	}
	return points, nil
}

func meshOptions(kwargs map[string]wire.Value) render.MeshOptions {
	var opts render.MeshOptions
	opts.Name, _ = kwargString(kwargs, "name")
	opts.Color, _ = kwargString(kwargs, "color")
	opts.Opacity, _ = kwargFloat(kwargs, "opacity")
	if v, ok := kwargs["showEdges"].AsBool(); ok {
		opts.ShowEdges = v
	}
	return opts
}

func kwargString(kwargs map[string]wire.Value, key string) (string, bool) {
	return kwargs[key].AsString()
}

func kwargFloat(kwargs map[string]wire.Value, key string) (float64, bool) {
	return kwargs[key].AsFloat()
}

func kwargInt(kwargs map[string]wire.Value, key string) (int64, bool) {
	return kwargs[key].AsInt()
}
