package render

import "testing"

func newSoftEngine(t *testing.T) *SoftEngine {
	t.Helper()
	eng, err := NewSoftEngine(Options{Width: 100, Height: 100})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(eng.Close)
	return eng.(*SoftEngine)
}

func TestSoftEngine_WindowIDsAreDistinct(t *testing.T) {
	a := newSoftEngine(t)
	b := newSoftEngine(t)
	if a.WindowID() == 0 || a.WindowID() == b.WindowID() {
		t.Errorf("window ids %#x and %#x should be distinct and nonzero", a.WindowID(), b.WindowID())
	}
}

func TestSoftEngine_Layers(t *testing.T) {
	eng := newSoftEngine(t)

	idx, overlay := eng.AddLayer()
	if idx != 1 {
		t.Fatalf("first added layer should be index 1, got %d", idx)
	}
	if overlay == eng.Primary() {
		t.Fatal("added layer must be a distinct surface")
	}

	got, ok := eng.Layer(1)
	if !ok || got != overlay {
		t.Error("Layer(1) should return the added surface")
	}
	if _, ok := eng.Layer(5); ok {
		t.Error("Layer(5) should not exist")
	}
}

func TestSoftSurface_ActorLifecycle(t *testing.T) {
	s := newSoftEngine(t).Primary()

	actor, err := s.AddMesh(MeshData{Points: []float64{0, 0, 0}}, MeshOptions{Name: "skin"})
	if err != nil {
		t.Fatal(err)
	}
	if s.ActorCount() != 1 {
		t.Fatalf("actor count: got %d", s.ActorCount())
	}
	if !actor.Visibility() {
		t.Error("new actors start visible")
	}

	actor.SetVisibility(false)
	if actor.Visibility() {
		t.Error("SetVisibility(false) did not stick")
	}

	if err := s.RemoveActor(actor); err != nil {
		t.Fatal(err)
	}
	if s.ActorCount() != 0 {
		t.Error("actor not removed")
	}
	if err := s.RemoveActor(actor); err == nil {
		t.Error("removing an absent actor should error")
	}
}

func TestSoftSurface_AddMeshRejectsRaggedPoints(t *testing.T) {
	s := newSoftEngine(t).Primary()
	if _, err := s.AddMesh(MeshData{Points: []float64{0, 0}}, MeshOptions{}); err == nil {
		t.Error("expected an error for a non-xyz point buffer")
	}
}

func TestSoftSurface_AddLinesNeedsSegmentPairs(t *testing.T) {
	s := newSoftEngine(t).Primary()
	if _, err := s.AddLines([]Vec3{{0, 0, 0}}, "red", 1); err == nil {
		t.Error("expected an error for an odd point count")
	}
	if _, err := s.AddLines([]Vec3{{0, 0, 0}, {1, 1, 1}}, "red", 1); err != nil {
		t.Errorf("AddLines: %v", err)
	}
}

func TestSoftSurface_PointLabelsLengthMismatch(t *testing.T) {
	s := newSoftEngine(t).Primary()
	_, err := s.AddPointLabels([]Vec3{{0, 0, 0}}, []string{"a", "b"}, LabelOptions{})
	if err == nil {
		t.Error("expected an error for mismatched point and label counts")
	}
}

func TestSoftSurface_PickRoundTrip(t *testing.T) {
	s := newSoftEngine(t).Primary().(*SoftSurface)

	if _, ok := s.PickedPoint(); ok {
		t.Fatal("no point should be picked initially")
	}

	var got Vec3
	s.EnablePointPicking(func(p Vec3) { got = p })
	s.SimulatePick(Vec3{1, 2, 3})

	if got != (Vec3{1, 2, 3}) {
		t.Errorf("handler got %v", got)
	}
	p, ok := s.PickedPoint()
	if !ok || p != (Vec3{1, 2, 3}) {
		t.Errorf("PickedPoint: got %v ok=%v", p, ok)
	}
}

func TestSoftSurface_VolumeMapper(t *testing.T) {
	s := newSoftEngine(t).Primary()

	if s.Mapper() != nil {
		t.Fatal("no volume mapper before AddVolume")
	}
	if _, err := s.AddVolume(MeshData{Points: []float64{0, 0, 0}}, MeshOptions{}); err != nil {
		t.Fatal(err)
	}
	m := s.Mapper()
	if m == nil {
		t.Fatal("AddVolume should install the volume mapper")
	}
	m.SetScalarRange(0, 100)
	if lo, hi := m.ScalarRange(); lo != 0 || hi != 100 {
		t.Errorf("scalar range: got %v..%v", lo, hi)
	}
}

func TestSoftCamera_Zoom(t *testing.T) {
	cam := newSoftEngine(t).Primary().Camera()

	cam.SetParallelScale(8)
	cam.Zoom(2)
	if got := cam.ParallelScale(); got != 4 {
		t.Errorf("parallel scale after zoom 2: got %v, want 4", got)
	}
	cam.Zoom(0) // no-op, never divide by zero
	if got := cam.ParallelScale(); got != 4 {
		t.Errorf("zoom by zero changed scale to %v", got)
	}
}
