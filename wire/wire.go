package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical options for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalCall serializes a CallMessage to CBOR bytes.
func MarshalCall(m *CallMessage) ([]byte, error) {
	data, err := cborEncMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal call %s: %w", m.Kind, err)
	}
	return data, nil
}

// UnmarshalCall deserializes a CallMessage from CBOR bytes.
func UnmarshalCall(data []byte) (*CallMessage, error) {
	var m CallMessage
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("wire: unmarshal call: %w", err)
	}
	return &m, nil
}

// MarshalNotice serializes a Notice to CBOR bytes.
func MarshalNotice(n *Notice) ([]byte, error) {
	data, err := cborEncMode.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal notice: %w", err)
	}
	return data, nil
}

// UnmarshalNotice deserializes a Notice from CBOR bytes.
func UnmarshalNotice(data []byte) (*Notice, error) {
	var n Notice
	if err := cbor.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("wire: unmarshal notice: %w", err)
	}
	return &n, nil
}

// MarshalResult serializes a Result to CBOR bytes.
func MarshalResult(r *Result) ([]byte, error) {
	data, err := cborEncMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal result: %w", err)
	}
	return data, nil
}

// UnmarshalResult deserializes a Result from CBOR bytes.
func UnmarshalResult(data []byte) (*Result, error) {
	var r Result
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("wire: unmarshal result: %w", err)
	}
	return &r, nil
}
