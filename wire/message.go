// Package wire defines the messages exchanged between a plotter proxy and
// its worker process, and their CBOR encoding. Three message shapes exist:
// CallMessage (client to worker, on the request and push lines), Result
// (worker to client replies), and Notice (worker to client on the reverse
// line: the startup handshake and callback dispatch).
package wire

import "fmt"

// DispatchKind selects which target a CallMessage operates on and how.
type DispatchKind uint8

const (
	KindNoop DispatchKind = iota + 1
	KindQuit
	KindShowWindow
	KindGetWinID
	KindRelease
	KindQueryProperty
	KindPlotterCall
	KindPlotterGet
	KindActorCall
	KindActorMapperGet
	KindActorMapperSet
	KindMapperCall
	KindMapperGet
	KindMapperSet
	KindCameraGet
	KindCameraSet
	KindCameraCall
)

func (k DispatchKind) String() string {
	switch k {
	case KindNoop:
		return "noop"
	case KindQuit:
		return "quit"
	case KindShowWindow:
		return "showWindow"
	case KindGetWinID:
		return "getWinID"
	case KindRelease:
		return "release"
	case KindQueryProperty:
		return "queryProperty"
	case KindPlotterCall:
		return "plotterCall"
	case KindPlotterGet:
		return "plotterGet"
	case KindActorCall:
		return "actorCall"
	case KindActorMapperGet:
		return "actorMapperGet"
	case KindActorMapperSet:
		return "actorMapperSet"
	case KindMapperCall:
		return "mapperCall"
	case KindMapperGet:
		return "mapperGet"
	case KindMapperSet:
		return "mapperSet"
	case KindCameraGet:
		return "cameraGet"
	case KindCameraSet:
		return "cameraSet"
	case KindCameraCall:
		return "cameraCall"
	default:
		return fmt.Sprintf("DispatchKind(%d)", uint8(k))
	}
}

// Plotter operations. The set is closed: the worker rejects anything else
// with ErrCodeUnknownOperation instead of reflecting on arbitrary names.
const (
	PlotterAddMesh            = "addMesh"
	PlotterAddVolume          = "addVolume"
	PlotterAddLines           = "addLines"
	PlotterAddPoints          = "addPoints"
	PlotterAddPointLabels     = "addPointLabels"
	PlotterRemoveActor        = "removeActor"
	PlotterClear              = "clear"
	PlotterSetBackground      = "setBackground"
	PlotterShowGrid           = "showGrid"
	PlotterResetCamera        = "resetCamera"
	PlotterResetCameraClip    = "resetCameraClippingRange"
	PlotterSetCameraClip      = "setCameraClippingRange"
	PlotterEnableDepthPeeling = "enableDepthPeeling"
	PlotterEnableParallelProj = "enableParallelProjection"
	PlotterEnablePointPicking = "enablePointPicking"
	PlotterSetActorTransform  = "setActorUserTransform"
	PlotterUploadMesh         = "uploadMesh"
	PlotterRender             = "render"
	PlotterRenderNow          = "renderNow"
	PlotterPauseRendering     = "pauseRendering"
	PlotterResumeRendering    = "resumeRendering"
	PlotterAddLayer           = "addLayeredPlotter"

	PlotterPropPickedPoint = "pickedPoint"
	PlotterPropCamera      = "camera"
)

// Actor operations.
const (
	ActorSetVisibility    = "setVisibility"
	ActorGetVisibility    = "getVisibility"
	ActorVisibilityOn     = "visibilityOn"
	ActorVisibilityOff    = "visibilityOff"
	ActorSetUseBounds     = "setUseBounds"
	ActorSetUserTransform = "setUserTransform"
)

// Camera properties and operations.
const (
	CameraPropPosition      = "position"
	CameraPropFocalPoint    = "focalPoint"
	CameraPropViewUp        = "viewUp"
	CameraPropClippingRange = "clippingRange"
	CameraPropParallelScale = "parallelScale"
	CameraPropViewAngle     = "viewAngle"

	CameraZoom               = "zoom"
	CameraEnableParallelProj = "enableParallelProjection"
)

// Mapper properties and operations.
const (
	MapperPropScalarRange = "scalarRange"

	MapperSetInputData = "setInputData"
	MapperUpdate       = "update"
)

// KwargCallback is the keyword argument name that carries a callback. The
// marshaler replaces the client-side function with a registration key before
// sending, and the worker rebinds the key to a reverse Notice on receipt.
const KwargCallback = "callback"

// CallMessage is one operation sent from the proxy to the worker, either on
// the blocking request line or the fire-and-forget push line.
type CallMessage struct {
	Kind   DispatchKind     `cbor:"1,keyasint"`
	Layer  string           `cbor:"2,keyasint,omitempty"` // "" targets the primary surface
	Target *ObjectRef       `cbor:"3,keyasint,omitempty"`
	Method string           `cbor:"4,keyasint,omitempty"`
	Args   []Value          `cbor:"5,keyasint,omitempty"`
	Kwargs map[string]Value `cbor:"6,keyasint,omitempty"`

	// PushSeq is set on blocking requests only: the number of non-blocking
	// messages pushed on this channel before the request was sent. The
	// worker defers the request until that many pushes have been applied,
	// so queued non-blocking calls are always observed first.
	PushSeq uint64 `cbor:"7,keyasint,omitempty"`
}

// NoticeKind selects the meaning of a worker-initiated Notice.
type NoticeKind uint8

const (
	// NoticePorts is the handshake: the first message a worker sends,
	// carrying its freshly bound endpoint addresses.
	NoticePorts NoticeKind = 1
	// NoticeCallback asks the client to invoke a registered callback.
	NoticeCallback NoticeKind = 2
)

// Notice is a worker-initiated message on the reverse request line. The
// client acknowledges every Notice with a Result.
type Notice struct {
	Kind        NoticeKind       `cbor:"1,keyasint"`
	RepAddr     string           `cbor:"2,keyasint,omitempty"`
	PullAddr    string           `cbor:"3,keyasint,omitempty"`
	CallbackKey string           `cbor:"4,keyasint,omitempty"`
	Args        []Value          `cbor:"5,keyasint,omitempty"`
	Kwargs      map[string]Value `cbor:"6,keyasint,omitempty"`
}

// Result is the reply to a CallMessage or Notice. Exactly one of Value and
// Err is meaningful, selected by OK.
type Result struct {
	OK    bool         `cbor:"1,keyasint"`
	Value Value        `cbor:"2,keyasint,omitempty"`
	Err   *RemoteError `cbor:"3,keyasint,omitempty"`
}

// Ack is the empty success Result.
func Ack() Result { return Result{OK: true, Value: Nil()} }

// OKResult wraps a value in a success Result.
func OKResult(v Value) Result { return Result{OK: true, Value: v} }

// ErrResult wraps an error code and message in a failure Result.
func ErrResult(code ErrorCode, op string, format string, a ...any) Result {
	return Result{OK: false, Err: &RemoteError{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, a...),
	}}
}
