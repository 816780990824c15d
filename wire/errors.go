package wire

import "fmt"

// ErrorCode classifies failures that cross the process boundary.
type ErrorCode uint8

const (
	// ErrCodeUnknownHandle means a reference named an object the worker's
	// registry does not hold (stale or from a previous worker incarnation).
	ErrCodeUnknownHandle ErrorCode = 1
	// ErrCodeSerialization means an argument could not be decoded into the
	// shape the operation requires.
	ErrCodeSerialization ErrorCode = 2
	// ErrCodeRemoteException means the operation panicked or failed inside
	// the worker; the worker caught it and returned it here.
	ErrCodeRemoteException ErrorCode = 3
	// ErrCodeUnknownOperation means the dispatch kind or method name is not
	// in the closed operation set.
	ErrCodeUnknownOperation ErrorCode = 4
	// ErrCodeUnknownCallback means a callback key had no registered function.
	ErrCodeUnknownCallback ErrorCode = 5
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeUnknownHandle:
		return "unknown handle"
	case ErrCodeSerialization:
		return "serialization"
	case ErrCodeRemoteException:
		return "remote exception"
	case ErrCodeUnknownOperation:
		return "unknown operation"
	case ErrCodeUnknownCallback:
		return "unknown callback"
	default:
		return fmt.Sprintf("error code %d", uint8(c))
	}
}

// RemoteError is a failure caught at the worker's dispatch boundary and
// returned to the caller instead of crashing the worker.
type RemoteError struct {
	Code    ErrorCode `cbor:"1,keyasint"`
	Op      string    `cbor:"2,keyasint,omitempty"`
	Message string    `cbor:"3,keyasint"`
}

func (e *RemoteError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("remote %s: %s: %s", e.Code, e.Op, e.Message)
	}
	return fmt.Sprintf("remote %s: %s", e.Code, e.Message)
}

// Is lets errors.Is match any RemoteError with the same code.
func (e *RemoteError) Is(target error) bool {
	t, ok := target.(*RemoteError)
	return ok && t.Code == e.Code
}
