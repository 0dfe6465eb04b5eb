package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"
)

// ErrInvalidUTF8 is returned when a string or object key is not valid UTF-8. JSON text cannot
// carry such bytes without replacing them.
var ErrInvalidUTF8 = errors.New("value: string is not valid UTF-8")

// MarshalJSON encodes v. Object members are written in insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return fmt.Errorf("value: cannot encode number %v", v.n)
		}
		data, err := json.Marshal(v.n)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindString:
		if !utf8.ValidString(v.s) {
			return fmt.Errorf("%w: %q", ErrInvalidUTF8, v.s)
		}
		data, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		return v.obj.encode(buf)
	default:
		return fmt.Errorf("value: unknown kind %d", v.kind)
	}
	return nil
}

// MarshalJSON encodes o with members in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := o.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Object) encode(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	if o != nil {
		for i, k := range o.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if !utf8.ValidString(k) {
				return fmt.Errorf("%w: key %q", ErrInvalidUTF8, k)
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := o.vals[k].encode(buf); err != nil {
				return fmt.Errorf("value: key %s: %w", key, err)
			}
		}
	}
	buf.WriteByte('}')
	return nil
}

// UnmarshalJSON decodes data into v, keeping the source order of object keys.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseBytes(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// UnmarshalJSON decodes a JSON object into o.
func (o *Object) UnmarshalJSON(data []byte) error {
	parsed, err := ParseBytes(data)
	if err != nil {
		return err
	}
	obj, ok := parsed.AsObject()
	if !ok {
		return fmt.Errorf("value: expected object, got %s", parsed.Kind())
	}
	*o = *obj
	return nil
}

// Parse decodes a JSON text.
func Parse(text string) (Value, error) {
	return decodeAll(json.NewDecoder(strings.NewReader(text)))
}

// ParseBytes decodes a JSON document.
func ParseBytes(data []byte) (Value, error) {
	return decodeAll(json.NewDecoder(bytes.NewReader(data)))
}

func decodeAll(dec *json.Decoder) (Value, error) {
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("value: unexpected trailing data")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Value{}, fmt.Errorf("value: unexpected end of input")
		}
		return Value{}, fmt.Errorf("value: %w", err)
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("value: bad number %s: %w", t, err)
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			elems := []Value{}
			for dec.More() {
				e, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				elems = append(elems, e)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("value: %w", err)
			}
			return Array(elems...), nil
		case '{':
			o := NewObject()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, fmt.Errorf("value: %w", err)
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("value: object key is %T", kt)
				}
				e, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				o.Set(key, e)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("value: %w", err)
			}
			return FromObject(o), nil
		}
	}
	return Value{}, fmt.Errorf("value: unexpected token %v", tok)
}
