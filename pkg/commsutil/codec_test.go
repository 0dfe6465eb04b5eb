package commsutil

import (
	"encoding/json"
	"testing"
)

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		want    string
		wantErr bool
	}{
		{name: "simple map", input: map[string]string{"key": "value"}, want: `{"key":"value"}`},
		{name: "struct", input: struct{ Name string }{Name: "test"}, want: `{"Name":"test"}`},
		{name: "nil", input: nil, want: "null"},
		{name: "channel is not serializable", input: make(chan int), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePayload(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("commsutil:codec_test - expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
			}
			if got := string(data); got != tt.want {
				t.Errorf("commsutil:codec_test - EncodePayload() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodePayload_InvalidJSON(t *testing.T) {
	var m map[string]string
	if err := DecodePayload([]byte(`{invalid}`), &m); err == nil {
		t.Fatal("commsutil:codec_test - expected error but got nil")
	}
}

func TestDecodeObject(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKeys int
		wantErr  bool
	}{
		{name: "absent", raw: "", wantKeys: 0},
		{name: "null", raw: "null", wantKeys: 0},
		{name: "object keeps order", raw: `{"b":1,"a":2}`, wantKeys: 2},
		{name: "array rejected", raw: `[1,2]`, wantErr: true},
		{name: "malformed", raw: `{"a":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := DecodeObject(json.RawMessage(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("commsutil:codec_test - expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
			}
			if obj.Len() != tt.wantKeys {
				t.Errorf("commsutil:codec_test - %d keys, want %d", obj.Len(), tt.wantKeys)
			}
			if tt.wantKeys == 2 && obj.Keys()[0] != "b" {
				t.Errorf("commsutil:codec_test - keys = %v, want source order", obj.Keys())
			}
		})
	}
}
