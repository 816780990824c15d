package wire

import (
	"fmt"

	"github.com/neuronav/remoteplot/render"
)

// RefKind identifies which kind of native object a reference stands for.
type RefKind uint8

const (
	RefActor    RefKind = 1
	RefPolyData RefKind = 2
)

func (k RefKind) String() string {
	switch k {
	case RefActor:
		return "Actor"
	case RefPolyData:
		return "PolyData"
	default:
		return fmt.Sprintf("RefKind(%d)", uint8(k))
	}
}

// ObjectRef is an opaque handle standing in for a native renderer object
// that lives only in the worker process. IDs are unique for the lifetime of
// a worker and are never reused.
type ObjectRef struct {
	Kind RefKind `cbor:"1,keyasint"`
	ID   string  `cbor:"2,keyasint"`
}

func (r ObjectRef) String() string { return r.ID }

// ValueKind tags a Value. The set is closed: anything that crosses the wire
// must be representable by one of these kinds.
type ValueKind uint8

const (
	KindNil ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindFloats
	KindStrings
	KindRef
	KindMesh
	KindCallback
)

// Value is the closed tagged union carried in call arguments and results.
// Exactly one payload field is meaningful, selected by Kind.
type Value struct {
	Kind     ValueKind  `cbor:"1,keyasint"`
	BoolVal  bool       `cbor:"2,keyasint,omitempty"`
	IntVal   int64      `cbor:"3,keyasint,omitempty"`
	FloatVal float64    `cbor:"4,keyasint,omitempty"`
	StrVal   string     `cbor:"5,keyasint,omitempty"`
	ByteVal  []byte     `cbor:"6,keyasint,omitempty"`
	Floats   []float64  `cbor:"7,keyasint,omitempty"`
	Strings  []string   `cbor:"8,keyasint,omitempty"`
	RefVal   *ObjectRef `cbor:"9,keyasint,omitempty"`
	MeshVal  *Mesh      `cbor:"10,keyasint,omitempty"`
}

// Mesh is a wire-serializable polydata snapshot.
type Mesh struct {
	Points  []float64 `cbor:"1,keyasint,omitempty"`
	Faces   []int32   `cbor:"2,keyasint,omitempty"`
	Lines   []int32   `cbor:"3,keyasint,omitempty"`
	Scalars []float64 `cbor:"4,keyasint,omitempty"`
}

// Nil returns the nil Value.
func Nil() Value { return Value{Kind: KindNil} }

// Bool wraps a bool.
func Bool(b bool) Value { return Value{Kind: KindBool, BoolVal: b} }

// Int wraps an integer.
func Int(i int64) Value { return Value{Kind: KindInt, IntVal: i} }

// Float wraps a float.
func Float(f float64) Value { return Value{Kind: KindFloat, FloatVal: f} }

// String wraps a string.
func String(s string) Value { return Value{Kind: KindString, StrVal: s} }

// Bytes wraps a byte slice.
func Bytes(b []byte) Value { return Value{Kind: KindBytes, ByteVal: b} }

// FloatSlice wraps a float slice (vectors, matrices, ranges).
func FloatSlice(f []float64) Value { return Value{Kind: KindFloats, Floats: f} }

// StringSlice wraps a string slice.
func StringSlice(s []string) Value { return Value{Kind: KindStrings, Strings: s} }

// Ref wraps an object reference.
func Ref(r ObjectRef) Value { return Value{Kind: KindRef, RefVal: &r} }

// Callback wraps a callback registration key.
func Callback(key string) Value { return Value{Kind: KindCallback, StrVal: key} }

// Vec3 wraps a 3-vector.
func Vec3(v render.Vec3) Value { return FloatSlice([]float64{v[0], v[1], v[2]}) }

// Matrix wraps a 4x4 transform.
func Matrix(m render.Matrix4) Value {
	f := make([]float64, 16)
	copy(f, m[:])
	return FloatSlice(f)
}

// MeshValue wraps mesh data.
func MeshValue(d render.MeshData) Value {
	return Value{Kind: KindMesh, MeshVal: &Mesh{
		Points:  d.Points,
		Faces:   d.Faces,
		Lines:   d.Lines,
		Scalars: d.Scalars,
	}}
}

// IsNil reports whether the value is nil.
func (v Value) IsNil() bool { return v.Kind == KindNil }

// AsBool unwraps a bool.
func (v Value) AsBool() (bool, bool) { return v.BoolVal, v.Kind == KindBool }

// AsInt unwraps an integer.
func (v Value) AsInt() (int64, bool) { return v.IntVal, v.Kind == KindInt }

// AsFloat unwraps a float. Integers convert.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindFloat:
		return v.FloatVal, true
	case KindInt:
		return float64(v.IntVal), true
	default:
		return 0, false
	}
}

// AsString unwraps a string.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.StrVal, true
}

// AsFloats unwraps a float slice.
func (v Value) AsFloats() ([]float64, bool) { return v.Floats, v.Kind == KindFloats }

// AsStrings unwraps a string slice.
func (v Value) AsStrings() ([]string, bool) { return v.Strings, v.Kind == KindStrings }

// AsRef unwraps an object reference.
func (v Value) AsRef() (ObjectRef, bool) {
	if v.Kind != KindRef || v.RefVal == nil {
		return ObjectRef{}, false
	}
	return *v.RefVal, true
}

// AsCallbackKey unwraps a callback registration key.
func (v Value) AsCallbackKey() (string, bool) {
	if v.Kind != KindCallback {
		return "", false
	}
	return v.StrVal, true
}

// AsVec3 unwraps a 3-vector.
func (v Value) AsVec3() (render.Vec3, bool) {
	f, ok := v.AsFloats()
	if !ok || len(f) != 3 {
		return render.Vec3{}, false
	}
	return render.Vec3{f[0], f[1], f[2]}, true
}

// AsMatrix unwraps a 4x4 transform.
func (v Value) AsMatrix() (render.Matrix4, bool) {
	f, ok := v.AsFloats()
	if !ok || len(f) != 16 {
		return render.Matrix4{}, false
	}
	var m render.Matrix4
	copy(m[:], f)
	return m, true
}

// AsMesh unwraps mesh data.
func (v Value) AsMesh() (render.MeshData, bool) {
	if v.Kind != KindMesh || v.MeshVal == nil {
		return render.MeshData{}, false
	}
	return render.MeshData{
		Points:  v.MeshVal.Points,
		Faces:   v.MeshVal.Faces,
		Lines:   v.MeshVal.Lines,
		Scalars: v.MeshVal.Scalars,
	}, true
}
