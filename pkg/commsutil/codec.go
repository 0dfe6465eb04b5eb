package commsutil

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/morezero/wallet-bridge/pkg/value"
)

const codecLogPrefix = "commsutil:codec"

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// DecodeObject parses a raw params member into an ordered object. Absent or null params
// decode to an empty object.
func DecodeObject(raw json.RawMessage) (*value.Object, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return value.NewObject(), nil
	}
	v, err := value.ParseBytes(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid params: %w", codecLogPrefix, err)
	}
	obj, ok := v.AsObject()
	if !ok {
		return nil, fmt.Errorf("%s - params must be an object, got %s", codecLogPrefix, v.Kind())
	}
	return obj, nil
}
