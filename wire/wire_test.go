package wire

import (
	"errors"
	"reflect"
	"testing"

	"github.com/neuronav/remoteplot/render"
)

func TestCallMessage_RoundTrip(t *testing.T) {
	ref := ObjectRef{Kind: RefActor, ID: "<Actor 3>"}
	m := &CallMessage{
		Kind:   KindActorCall,
		Layer:  "overlay",
		Target: &ref,
		Method: ActorSetVisibility,
		Args:   []Value{Bool(false)},
		Kwargs: map[string]Value{
			"color":       String("red"),
			KwargCallback: Callback("cb-1"),
			"transform":   Matrix(render.Identity4()),
		},
		PushSeq: 42,
	}

	data, err := MarshalCall(m)
	if err != nil {
		t.Fatalf("MarshalCall: %v", err)
	}
	got, err := UnmarshalCall(data)
	if err != nil {
		t.Fatalf("UnmarshalCall: %v", err)
	}

	if !reflect.DeepEqual(got, m) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, m)
	}
}

func TestCallMessage_RoundTripEmpty(t *testing.T) {
	m := &CallMessage{Kind: KindNoop}
	data, err := MarshalCall(m)
	if err != nil {
		t.Fatalf("MarshalCall: %v", err)
	}
	got, err := UnmarshalCall(data)
	if err != nil {
		t.Fatalf("UnmarshalCall: %v", err)
	}
	if got.Kind != KindNoop || got.Layer != "" || got.Target != nil {
		t.Errorf("unexpected decode: %+v", got)
	}
}

func TestValue_RoundTripAllKinds(t *testing.T) {
	mesh := render.MeshData{
		Points: []float64{0, 0, 0, 1, 0, 0, 0, 1, 0},
		Faces:  []int32{3, 0, 1, 2},
	}
	values := []Value{
		Nil(),
		Bool(true),
		Int(-7),
		Float(3.25),
		String("skin surface"),
		Bytes([]byte{0x01, 0x02}),
		FloatSlice([]float64{1, 2, 3}),
		StringSlice([]string{"a", "b"}),
		Ref(ObjectRef{Kind: RefPolyData, ID: "<PolyData 1>"}),
		MeshValue(mesh),
		Callback("key-1"),
	}

	m := &CallMessage{Kind: KindPlotterCall, Method: PlotterAddMesh, Args: values}
	data, err := MarshalCall(m)
	if err != nil {
		t.Fatalf("MarshalCall: %v", err)
	}
	got, err := UnmarshalCall(data)
	if err != nil {
		t.Fatalf("UnmarshalCall: %v", err)
	}
	if !reflect.DeepEqual(got.Args, values) {
		t.Errorf("args mismatch:\n got %+v\nwant %+v", got.Args, values)
	}

	if v, ok := got.Args[9].AsMesh(); !ok || !reflect.DeepEqual(v, mesh) {
		t.Errorf("AsMesh: got %+v ok=%v", v, ok)
	}
	if key, ok := got.Args[10].AsCallbackKey(); !ok || key != "key-1" {
		t.Errorf("AsCallbackKey: got %q ok=%v", key, ok)
	}
}

func TestNotice_RoundTrip(t *testing.T) {
	n := &Notice{
		Kind:     NoticePorts,
		RepAddr:  "tcp://127.0.0.1:5001",
		PullAddr: "tcp://127.0.0.1:5002",
	}
	data, err := MarshalNotice(n)
	if err != nil {
		t.Fatalf("MarshalNotice: %v", err)
	}
	got, err := UnmarshalNotice(data)
	if err != nil {
		t.Fatalf("UnmarshalNotice: %v", err)
	}
	if !reflect.DeepEqual(got, n) {
		t.Errorf("round trip mismatch: got %+v want %+v", got, n)
	}

	cb := &Notice{
		Kind:        NoticeCallback,
		CallbackKey: "key-9",
		Args:        []Value{Vec3(render.Vec3{1, 2, 3})},
	}
	data, err = MarshalNotice(cb)
	if err != nil {
		t.Fatalf("MarshalNotice: %v", err)
	}
	got, err = UnmarshalNotice(data)
	if err != nil {
		t.Fatalf("UnmarshalNotice: %v", err)
	}
	if !reflect.DeepEqual(got, cb) {
		t.Errorf("callback round trip mismatch: got %+v want %+v", got, cb)
	}
}

func TestResult_RoundTripError(t *testing.T) {
	r := ErrResult(ErrCodeUnknownHandle, "setVisibility", "no object registered for %s", "<Actor 9>")
	data, err := MarshalResult(&r)
	if err != nil {
		t.Fatalf("MarshalResult: %v", err)
	}
	got, err := UnmarshalResult(data)
	if err != nil {
		t.Fatalf("UnmarshalResult: %v", err)
	}
	if got.OK {
		t.Fatal("expected error result")
	}
	if got.Err.Code != ErrCodeUnknownHandle {
		t.Errorf("code: got %v", got.Err.Code)
	}
	if got.Err.Op != "setVisibility" {
		t.Errorf("op: got %q", got.Err.Op)
	}
}

func TestRemoteError_IsMatchesByCode(t *testing.T) {
	err := error(&RemoteError{Code: ErrCodeUnknownHandle, Message: "stale"})
	target := &RemoteError{Code: ErrCodeUnknownHandle}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match RemoteErrors with the same code")
	}
	other := &RemoteError{Code: ErrCodeRemoteException}
	if errors.Is(err, other) {
		t.Error("errors.Is should not match different codes")
	}
}

func TestValue_VecAndMatrixHelpers(t *testing.T) {
	v := Vec3(render.Vec3{1, 2, 3})
	got, ok := v.AsVec3()
	if !ok || got != (render.Vec3{1, 2, 3}) {
		t.Errorf("AsVec3: got %v ok=%v", got, ok)
	}

	if _, ok := FloatSlice([]float64{1, 2}).AsVec3(); ok {
		t.Error("AsVec3 should reject a 2-element slice")
	}

	m := render.Identity4()
	mv := Matrix(m)
	gotM, ok := mv.AsMatrix()
	if !ok || gotM != m {
		t.Errorf("AsMatrix: got %v ok=%v", gotM, ok)
	}

	if _, ok := Int(3).AsFloat(); !ok {
		t.Error("AsFloat should accept integers")
	}
	if _, ok := String("x").AsFloat(); ok {
		t.Error("AsFloat should reject strings")
	}
}
