// Package envelope encodes call descriptors into wire text and decodes inbound response envelopes.
package envelope

import (
	"fmt"

	"github.com/morezero/wallet-bridge/pkg/value"
)

const logPrefix = "envelope:envelope"

// ProtocolType tags every outbound message of the wallet protocol family.
const ProtocolType = "CWI"

// Status values carried in a response envelope.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

const unknownErrorDescription = "Unknown Error"

// CallDescriptor is one remote operation invocation before serialization.
type CallDescriptor struct {
	Operation  string
	Params     *value.Object
	CallID     string
	Originator string
}

// ResponseEnvelope is one remote response after deserialization.
type ResponseEnvelope struct {
	// Status is StatusSuccess or StatusError.
	Status string
	// Result holds the "result" member on success; HasResult is false when it was absent.
	Result    value.Value
	HasResult bool
	// Description is the remote error text when Status is StatusError.
	Description string
	// Body is the whole decoded object.
	Body *value.Object
	// Swallowed marks a remote error reported as success in legacy mode. Description keeps the
	// remote text.
	Swallowed bool
}

// IsError reports whether the remote side reported a failure.
func (e *ResponseEnvelope) IsError() bool { return e.Status == StatusError }

// TransportError is a malformed or undecodable envelope. It is distinct from an error
// response, which decodes fine and carries StatusError.
type TransportError struct {
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return "transport error: " + e.Reason + ": " + e.Err.Error()
	}
	return "transport error: " + e.Reason
}

func (e *TransportError) Unwrap() error { return e.Err }

// Encode serializes d as {"type","call","params","id","originator"}.
// Empty id and originator are omitted.
func Encode(d *CallDescriptor) (string, error) {
	if d == nil || d.Operation == "" {
		return "", fmt.Errorf("%s - call descriptor requires an operation", logPrefix)
	}
	params := d.Params
	if params == nil {
		params = value.NewObject()
	}
	msg := value.NewObject().
		Set("type", value.String(ProtocolType)).
		Set("call", value.String(d.Operation)).
		Set("params", value.FromObject(params))
	if d.CallID != "" {
		msg.Set("id", value.String(d.CallID))
	}
	if d.Originator != "" {
		msg.Set("originator", value.String(d.Originator))
	}
	data, err := msg.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("%s - failed to encode %s: %w", logPrefix, d.Operation, err)
	}
	return string(data), nil
}

// ControlReply encodes an id-less message such as the isFocused answer.
func ControlReply(call string, params *value.Object) (string, error) {
	return Encode(&CallDescriptor{Operation: call, Params: params})
}

// Decode parses inbound envelope text.
func Decode(text string) (*ResponseEnvelope, error) {
	v, err := value.Parse(text)
	if err != nil {
		return nil, &TransportError{Reason: "envelope is not valid JSON", Err: err}
	}
	body, ok := v.AsObject()
	if !ok {
		return nil, &TransportError{Reason: fmt.Sprintf("envelope is %s, not an object", v.Kind())}
	}
	statusVal, ok := body.Get("status")
	if !ok {
		return nil, &TransportError{Reason: "envelope has no status"}
	}
	status, ok := statusVal.AsString()
	if !ok || status == "" {
		return nil, &TransportError{Reason: fmt.Sprintf("envelope status is %s, not a string", statusVal.Kind())}
	}

	env := &ResponseEnvelope{Body: body}
	if status == StatusError {
		env.Status = StatusError
		env.Description = unknownErrorDescription
		if d, ok := body.Get("description"); ok {
			if s, ok := d.AsString(); ok && s != "" {
				env.Description = s
			}
		}
		return env, nil
	}

	env.Status = StatusSuccess
	env.Result, env.HasResult = body.Get("result")
	return env, nil
}
