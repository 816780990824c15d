package host

import (
	"testing"
	"time"

	"github.com/neuronav/remoteplot/render"
	"github.com/neuronav/remoteplot/wire"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(render.NewSoftEngine, render.Options{Width: 100, Height: 100, Theme: "dark"}, time.Hour)
	t.Cleanup(m.Close)
	return m
}

func mustOK(t *testing.T, res wire.Result) wire.Value {
	t.Helper()
	if !res.OK {
		t.Fatalf("unexpected error result: %v", res.Err)
	}
	return res.Value
}

func mustErr(t *testing.T, res wire.Result, code wire.ErrorCode) {
	t.Helper()
	if res.OK {
		t.Fatalf("expected error result, got %+v", res.Value)
	}
	if res.Err.Code != code {
		t.Fatalf("expected %v, got %v (%s)", code, res.Err.Code, res.Err.Message)
	}
}

func addMesh(t *testing.T, m *Manager, layer string) wire.ObjectRef {
	t.Helper()
	res := m.Handle(&wire.CallMessage{
		Kind:   wire.KindPlotterCall,
		Layer:  layer,
		Method: wire.PlotterAddMesh,
		Args: []wire.Value{wire.MeshValue(render.MeshData{
			Points: []float64{0, 0, 0, 1, 0, 0, 0, 1, 0},
			Faces:  []int32{3, 0, 1, 2},
		})},
	})
	ref, ok := mustOK(t, res).AsRef()
	if !ok {
		t.Fatal("addMesh did not return an actor reference")
	}
	return ref
}

func TestManager_EngineIsDeferred(t *testing.T) {
	m := newTestManager(t)
	if m.Engine() != nil {
		t.Fatal("engine should not exist before the first message that needs it")
	}

	mustOK(t, m.Handle(&wire.CallMessage{Kind: wire.KindNoop}))
	if m.Engine() != nil {
		t.Fatal("noop should not construct the engine")
	}

	mustOK(t, m.Handle(&wire.CallMessage{Kind: wire.KindGetWinID}))
	if m.Engine() == nil {
		t.Fatal("getWinID should construct the engine")
	}
}

func TestManager_GetWinIDAndShow(t *testing.T) {
	m := newTestManager(t)

	v := mustOK(t, m.Handle(&wire.CallMessage{Kind: wire.KindGetWinID}))
	id, ok := v.AsInt()
	if !ok || id == 0 {
		t.Fatalf("getWinID: got %+v", v)
	}

	mustOK(t, m.Handle(&wire.CallMessage{Kind: wire.KindShowWindow}))
	if !m.Engine().(*render.SoftEngine).Shown() {
		t.Error("showWindow did not show the window")
	}
}

func TestManager_AddMeshAndVisibility(t *testing.T) {
	m := newTestManager(t)
	ref := addMesh(t, m, "")

	mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindActorCall,
		Target: &ref,
		Method: wire.ActorSetVisibility,
		Args:   []wire.Value{wire.Bool(false)},
	}))

	v := mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindActorCall,
		Target: &ref,
		Method: wire.ActorGetVisibility,
	}))
	if vis, _ := v.AsBool(); vis {
		t.Error("visibility should be false after setVisibility(false)")
	}
}

func TestManager_UnknownHandle(t *testing.T) {
	m := newTestManager(t)
	addMesh(t, m, "") // force the engine up

	stale := wire.ObjectRef{Kind: wire.RefActor, ID: "<Actor 999>"}
	res := m.Handle(&wire.CallMessage{
		Kind:   wire.KindActorCall,
		Target: &stale,
		Method: wire.ActorGetVisibility,
	})
	mustErr(t, res, wire.ErrCodeUnknownHandle)
}

func TestManager_UnknownOperation(t *testing.T) {
	m := newTestManager(t)
	res := m.Handle(&wire.CallMessage{
		Kind:   wire.KindPlotterCall,
		Method: "explode",
	})
	mustErr(t, res, wire.ErrCodeUnknownOperation)
}

func TestManager_ReleaseMakesHandleStale(t *testing.T) {
	m := newTestManager(t)
	ref := addMesh(t, m, "")

	mustOK(t, m.Handle(&wire.CallMessage{Kind: wire.KindRelease, Target: &ref}))

	res := m.Handle(&wire.CallMessage{
		Kind:   wire.KindActorCall,
		Target: &ref,
		Method: wire.ActorGetVisibility,
	})
	mustErr(t, res, wire.ErrCodeUnknownHandle)

	// Releasing again is a no-op, not an error.
	mustOK(t, m.Handle(&wire.CallMessage{Kind: wire.KindRelease, Target: &ref}))
}

func TestManager_RemoveActorReleasesHandle(t *testing.T) {
	m := newTestManager(t)
	ref := addMesh(t, m, "")

	mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindPlotterCall,
		Method: wire.PlotterRemoveActor,
		Args:   []wire.Value{wire.Ref(ref)},
	}))

	if m.Registry().Len() != 0 {
		t.Error("removeActor should drop the registry entry")
	}
	eng := m.Engine().(*render.SoftEngine)
	if n := eng.Primary().ActorCount(); n != 0 {
		t.Errorf("surface still has %d actors", n)
	}
}

func TestManager_UploadMeshThenAddByRef(t *testing.T) {
	m := newTestManager(t)

	res := m.Handle(&wire.CallMessage{
		Kind:   wire.KindPlotterCall,
		Method: wire.PlotterUploadMesh,
		Args: []wire.Value{wire.MeshValue(render.MeshData{
			Points: []float64{0, 0, 0, 1, 1, 1, 2, 2, 2},
		})},
	})
	polyRef, ok := mustOK(t, res).AsRef()
	if !ok || polyRef.Kind != wire.RefPolyData {
		t.Fatalf("uploadMesh: got %+v", res.Value)
	}

	res = m.Handle(&wire.CallMessage{
		Kind:   wire.KindPlotterCall,
		Method: wire.PlotterAddMesh,
		Args:   []wire.Value{wire.Ref(polyRef)},
	})
	if _, ok := mustOK(t, res).AsRef(); !ok {
		t.Fatal("addMesh by polydata reference did not return an actor")
	}
}

func TestManager_LayersAreIsolated(t *testing.T) {
	m := newTestManager(t)
	addMesh(t, m, "") // primary gets one actor

	res := m.Handle(&wire.CallMessage{
		Kind:   wire.KindPlotterCall,
		Method: wire.PlotterAddLayer,
		Kwargs: map[string]wire.Value{"key": wire.String("overlay")},
	})
	idx, ok := mustOK(t, res).AsInt()
	if !ok || idx != 1 {
		t.Fatalf("addLayeredPlotter: got index %d ok=%v", idx, ok)
	}

	addMesh(t, m, "overlay")
	addMesh(t, m, "overlay")

	eng := m.Engine().(*render.SoftEngine)
	if n := eng.Primary().ActorCount(); n != 1 {
		t.Errorf("primary surface: got %d actors, want 1", n)
	}
	overlay, _ := eng.Layer(1)
	if n := overlay.ActorCount(); n != 2 {
		t.Errorf("overlay surface: got %d actors, want 2", n)
	}
}

func TestManager_UnknownLayer(t *testing.T) {
	m := newTestManager(t)
	res := m.Handle(&wire.CallMessage{
		Kind:   wire.KindPlotterCall,
		Layer:  "nope",
		Method: wire.PlotterClear,
	})
	if res.OK {
		t.Error("expected an error for an unknown layer key")
	}
}

func TestManager_DuplicateLayerKey(t *testing.T) {
	m := newTestManager(t)
	mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindPlotterCall,
		Method: wire.PlotterAddLayer,
		Kwargs: map[string]wire.Value{"key": wire.String("overlay")},
	}))
	res := m.Handle(&wire.CallMessage{
		Kind:   wire.KindPlotterCall,
		Method: wire.PlotterAddLayer,
		Kwargs: map[string]wire.Value{"key": wire.String("overlay")},
	})
	if res.OK {
		t.Error("adding the same layer key twice should fail")
	}
}

func TestManager_CameraRoundTrip(t *testing.T) {
	m := newTestManager(t)

	mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindCameraSet,
		Method: wire.CameraPropPosition,
		Args:   []wire.Value{wire.Vec3(render.Vec3{1, 2, 3})},
	}))

	v := mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindCameraGet,
		Method: wire.CameraPropPosition,
	}))
	pos, ok := v.AsVec3()
	if !ok || pos != (render.Vec3{1, 2, 3}) {
		t.Errorf("camera position: got %v ok=%v", pos, ok)
	}

	mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindCameraSet,
		Method: wire.CameraPropParallelScale,
		Args:   []wire.Value{wire.Float(4)},
	}))
	mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindCameraCall,
		Method: wire.CameraZoom,
		Args:   []wire.Value{wire.Float(2)},
	}))
	v = mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindCameraGet,
		Method: wire.CameraPropParallelScale,
	}))
	if scale, _ := v.AsFloat(); scale != 2 {
		t.Errorf("parallel scale after zoom: got %v, want 2", scale)
	}
}

func TestManager_MapperScalarRange(t *testing.T) {
	m := newTestManager(t)
	ref := addMesh(t, m, "")

	mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindActorMapperSet,
		Target: &ref,
		Method: wire.MapperPropScalarRange,
		Args:   []wire.Value{wire.FloatSlice([]float64{-1, 5})},
	}))

	v := mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindActorMapperGet,
		Target: &ref,
		Method: wire.MapperPropScalarRange,
	}))
	r, _ := v.AsFloats()
	if len(r) != 2 || r[0] != -1 || r[1] != 5 {
		t.Errorf("scalar range: got %v", r)
	}
}

func TestManager_VolumeMapperWithoutTarget(t *testing.T) {
	m := newTestManager(t)

	// No volume yet: the surface has no mapper.
	res := m.Handle(&wire.CallMessage{
		Kind:   wire.KindMapperGet,
		Method: wire.MapperPropScalarRange,
	})
	mustErr(t, res, wire.ErrCodeRemoteException)

	mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindPlotterCall,
		Method: wire.PlotterAddVolume,
		Args: []wire.Value{wire.MeshValue(render.MeshData{
			Points: []float64{0, 0, 0},
		})},
	}))

	mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindMapperSet,
		Method: wire.MapperPropScalarRange,
		Args:   []wire.Value{wire.FloatSlice([]float64{0, 255})},
	}))
	v := mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindMapperGet,
		Method: wire.MapperPropScalarRange,
	}))
	r, _ := v.AsFloats()
	if len(r) != 2 || r[1] != 255 {
		t.Errorf("volume scalar range: got %v", r)
	}
}

func TestManager_PointPickingEmitsCallback(t *testing.T) {
	m := newTestManager(t)

	type emitted struct {
		key  string
		args []wire.Value
	}
	got := make(chan emitted, 1)
	m.SetCallbackSink(func(key string, args []wire.Value, kwargs map[string]wire.Value) {
		got <- emitted{key, args}
	})

	mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindPlotterCall,
		Method: wire.PlotterEnablePointPicking,
		Kwargs: map[string]wire.Value{wire.KwargCallback: wire.Callback("cb-7")},
	}))

	eng := m.Engine().(*render.SoftEngine)
	eng.Primary().(*render.SoftSurface).SimulatePick(render.Vec3{4, 5, 6})

	select {
	case e := <-got:
		if e.key != "cb-7" {
			t.Errorf("callback key: got %q", e.key)
		}
		p, ok := e.args[0].AsVec3()
		if !ok || p != (render.Vec3{4, 5, 6}) {
			t.Errorf("callback point: got %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("pick callback never emitted")
	}

	v := mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindPlotterGet,
		Method: wire.PlotterPropPickedPoint,
	}))
	p, ok := v.AsVec3()
	if !ok || p != (render.Vec3{4, 5, 6}) {
		t.Errorf("pickedPoint: got %v ok=%v", p, ok)
	}
}

func TestManager_PanicBecomesRemoteException(t *testing.T) {
	m := NewManager(func(render.Options) (render.Engine, error) {
		panic("boom")
	}, render.Options{}, time.Hour)
	t.Cleanup(m.Close)

	res := m.Handle(&wire.CallMessage{Kind: wire.KindGetWinID})
	mustErr(t, res, wire.ErrCodeRemoteException)
}

func TestManager_SetActorTransform(t *testing.T) {
	m := newTestManager(t)
	ref := addMesh(t, m, "")

	mat := render.Identity4()
	mat[3] = 10 // x translation
	mustOK(t, m.Handle(&wire.CallMessage{
		Kind:   wire.KindPlotterCall,
		Method: wire.PlotterSetActorTransform,
		Args:   []wire.Value{wire.Ref(ref), wire.Matrix(mat)},
	}))

	actor, err := m.Registry().ResolveActor(ref)
	if err != nil {
		t.Fatal(err)
	}
	if got := actor.(*render.SoftActor).UserTransform(); got != mat {
		t.Errorf("transform: got %v", got)
	}
}
