package dispatcher

import (
	"fmt"
	"strconv"

	"github.com/morezero/wallet-bridge/pkg/envelope"
	"github.com/morezero/wallet-bridge/pkg/value"
)

// ParamKind is the accepted kind of a parameter. KindAny accepts every kind.
type ParamKind string

const (
	KindAny     ParamKind = "any"
	KindString  ParamKind = "string"
	KindBool    ParamKind = "bool"
	KindNumber  ParamKind = "number"
	KindInteger ParamKind = "integer"
	KindObject  ParamKind = "object"
	KindArray   ParamKind = "array"
)

// Encoding is a transformation applied to a string parameter before it is sent.
type Encoding string

const (
	EncodeNone Encoding = ""
	// EncodeBase64 always base64-encodes the UTF-8 text.
	EncodeBase64 Encoding = "base64"
	// EncodeCanonicalBase64 keeps text that already looks like base64 and encodes the rest.
	EncodeCanonicalBase64 Encoding = "canonical-base64"
)

// ResultKind describes how a successful envelope becomes a result.
type ResultKind string

const (
	// ResultBody returns the whole response body.
	ResultBody ResultKind = "body"
	// ResultRaw returns the result member as is, or null when absent.
	ResultRaw    ResultKind = "raw"
	ResultString ResultKind = "string"
	ResultBool   ResultKind = "bool"
	// ResultLooseBool accepts bools, numbers and boolean-looking strings. Absent reads as false.
	ResultLooseBool ResultKind = "loose-bool"
	// ResultBytes reads a byte array at result.data.data and returns it base64-encoded.
	ResultBytes ResultKind = "bytes"
)

// Param declares one named parameter of an operation.
type Param struct {
	Name string `json:"name"`
	// Wire is the key sent to the wallet when it differs from Name.
	Wire     string    `json:"wire,omitempty"`
	Kind     ParamKind `json:"kind,omitempty"`
	Required bool      `json:"required,omitempty"`
	// Default replaces an absent or null argument.
	Default    *value.Value `json:"default,omitempty"`
	Encoding   Encoding     `json:"encoding,omitempty"`
	OmitIfNull bool         `json:"omitIfNull,omitempty"`
	OneOf      []string     `json:"oneOf,omitempty"`
}

// WireName is the key this parameter is sent under.
func (p Param) WireName() string {
	if p.Wire != "" {
		return p.Wire
	}
	return p.Name
}

// Operation declares one remote wallet operation.
type Operation struct {
	Name string `json:"name"`
	// Call is the remote call name when it differs from Name.
	Call   string     `json:"call,omitempty"`
	Params []Param    `json:"params,omitempty"`
	Result ResultKind `json:"result,omitempty"`
	// NoDeadline exempts the operation from the dispatcher's call timeout.
	NoDeadline  bool   `json:"noDeadline,omitempty"`
	Description string `json:"description,omitempty"`
}

// RemoteName is the call name put on the wire.
func (op Operation) RemoteName() string {
	if op.Call != "" {
		return op.Call
	}
	return op.Name
}

// Validate checks that the declaration is usable.
func (op Operation) Validate() error {
	if op.Name == "" {
		return fmt.Errorf("operation name is required")
	}
	switch op.Result {
	case "", ResultBody, ResultRaw, ResultString, ResultBool, ResultLooseBool, ResultBytes:
	default:
		return fmt.Errorf("operation %s: unknown result kind %q", op.Name, op.Result)
	}
	names := make(map[string]bool, len(op.Params))
	wires := make(map[string]bool, len(op.Params))
	for _, p := range op.Params {
		if p.Name == "" {
			return fmt.Errorf("operation %s: parameter name is required", op.Name)
		}
		if names[p.Name] || wires[p.WireName()] {
			return fmt.Errorf("operation %s: duplicate parameter %s", op.Name, p.Name)
		}
		names[p.Name] = true
		wires[p.WireName()] = true
		switch p.Kind {
		case "", KindAny, KindString, KindBool, KindNumber, KindInteger, KindObject, KindArray:
		default:
			return fmt.Errorf("operation %s: parameter %s: unknown kind %q", op.Name, p.Name, p.Kind)
		}
		switch p.Encoding {
		case EncodeNone, EncodeBase64, EncodeCanonicalBase64:
		default:
			return fmt.Errorf("operation %s: parameter %s: unknown encoding %q", op.Name, p.Name, p.Encoding)
		}
		if p.Encoding != EncodeNone && p.Kind != KindString {
			return fmt.Errorf("operation %s: parameter %s: encoding requires a string parameter", op.Name, p.Name)
		}
	}
	return nil
}

// BuildParams validates caller arguments and produces the wire params object.
// Parameters are emitted in declaration order.
func (op Operation) BuildParams(args *value.Object) (*value.Object, error) {
	declared := make(map[string]bool, len(op.Params))
	for _, p := range op.Params {
		declared[p.Name] = true
	}
	for _, k := range args.Keys() {
		if !declared[k] {
			return nil, &ArgumentError{Operation: op.Name, Param: k, Reason: "unexpected argument"}
		}
	}

	out := value.NewObject()
	for _, p := range op.Params {
		v, ok := args.Get(p.Name)
		if !ok || v.IsNull() {
			if p.Default != nil {
				v, ok = *p.Default, true
			}
		}
		if !ok || v.IsNull() {
			if p.Required {
				return nil, &ArgumentError{Operation: op.Name, Param: p.Name, Reason: "is required"}
			}
			if p.OmitIfNull {
				continue
			}
			out.Set(p.WireName(), value.Null())
			continue
		}

		if !kindMatches(p.Kind, v) {
			return nil, &ArgumentError{Operation: op.Name, Param: p.Name,
				Reason: fmt.Sprintf("expected %s, got %s", p.Kind, v.Kind())}
		}
		if len(p.OneOf) > 0 {
			s, _ := v.AsString()
			if !contains(p.OneOf, s) {
				return nil, &ArgumentError{Operation: op.Name, Param: p.Name,
					Reason: fmt.Sprintf("unsupported value %q", s)}
			}
		}
		switch p.Encoding {
		case EncodeBase64:
			s, _ := v.AsString()
			v = value.String(envelope.EncodeText(s))
		case EncodeCanonicalBase64:
			s, _ := v.AsString()
			v = value.String(envelope.Canonicalize(s))
		}
		out.Set(p.WireName(), v)
	}
	return out, nil
}

func kindMatches(k ParamKind, v value.Value) bool {
	switch k {
	case "", KindAny:
		return true
	case KindString:
		return v.Kind() == value.KindString
	case KindBool:
		return v.Kind() == value.KindBool
	case KindNumber:
		return v.Kind() == value.KindNumber
	case KindInteger:
		_, ok := v.AsInt()
		return ok
	case KindObject:
		return v.Kind() == value.KindObject
	case KindArray:
		return v.Kind() == value.KindArray
	}
	return false
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// ExtractResult turns a successful envelope into the operation's declared result.
// A swallowed legacy error yields the empty value of the result kind.
func (op Operation) ExtractResult(env *envelope.ResponseEnvelope) (value.Value, error) {
	if env.Swallowed {
		return op.emptyResult(), nil
	}
	switch op.Result {
	case "", ResultBody:
		if env.Body == nil {
			return value.FromObject(value.NewObject()), nil
		}
		return value.FromObject(env.Body), nil
	case ResultRaw:
		if !env.HasResult {
			return value.Null(), nil
		}
		return env.Result, nil
	case ResultString:
		if env.HasResult && env.Result.Kind() == value.KindString {
			return env.Result, nil
		}
		return value.Null(), op.shapeError("result", "string", env)
	case ResultBool:
		if env.HasResult && env.Result.Kind() == value.KindBool {
			return env.Result, nil
		}
		return value.Null(), op.shapeError("result", "bool", env)
	case ResultLooseBool:
		b, ok := looseBool(env)
		if !ok {
			return value.Null(), op.shapeError("result", "boolean-like", env)
		}
		return value.Bool(b), nil
	case ResultBytes:
		return op.extractBytes(env)
	}
	return value.Null(), fmt.Errorf("operation %s: unknown result kind %q", op.Name, op.Result)
}

func (op Operation) emptyResult() value.Value {
	switch op.Result {
	case ResultString, ResultBytes:
		return value.String("")
	case ResultBool, ResultLooseBool:
		return value.Bool(false)
	case ResultRaw:
		return value.Null()
	}
	return value.FromObject(value.NewObject())
}

func (op Operation) shapeError(field, want string, env *envelope.ResponseEnvelope) error {
	return &ShapeError{Operation: op.Name, Field: field, Want: want, Got: env.Result.Kind(), Present: env.HasResult}
}

func looseBool(env *envelope.ResponseEnvelope) (bool, bool) {
	if !env.HasResult {
		return false, true
	}
	v := env.Result
	switch v.Kind() {
	case value.KindNull:
		return false, true
	case value.KindBool:
		b, _ := v.AsBool()
		return b, true
	case value.KindNumber:
		n, _ := v.AsNumber()
		return n != 0, true
	case value.KindString:
		s, _ := v.AsString()
		b, err := strconv.ParseBool(s)
		return b, err == nil
	}
	return false, false
}

func (op Operation) extractBytes(env *envelope.ResponseEnvelope) (value.Value, error) {
	data, ok := env.Result.Field("data")
	if !env.HasResult || !ok {
		return value.Null(), &ShapeError{Operation: op.Name, Field: "result.data", Want: "object",
			Got: env.Result.Kind(), Present: env.HasResult}
	}
	inner, ok := data.Field("data")
	if !ok {
		return value.Null(), &ShapeError{Operation: op.Name, Field: "result.data.data", Want: "byte array",
			Got: data.Kind(), Present: false}
	}
	items, ok := inner.AsArray()
	if !ok {
		return value.Null(), &ShapeError{Operation: op.Name, Field: "result.data.data", Want: "byte array",
			Got: inner.Kind(), Present: true}
	}
	buf := make([]byte, len(items))
	for i, item := range items {
		n, ok := item.AsInt()
		if !ok || n < 0 || n > 255 {
			return value.Null(), &ShapeError{Operation: op.Name, Field: fmt.Sprintf("result.data.data[%d]", i),
				Want: "byte", Got: item.Kind(), Present: true}
		}
		buf[i] = byte(n)
	}
	return value.String(envelope.EncodeBytes(buf)), nil
}
