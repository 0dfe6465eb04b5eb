package envelope

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/morezero/wallet-bridge/pkg/value"
)

func TestEncode_FieldOrderAndIdentity(t *testing.T) {
	params := value.NewObject().
		Set("keyID", value.String("k1")).
		Set("plaintext", value.String("hello"))

	got, err := Encode(&CallDescriptor{
		Operation:  "encrypt",
		Params:     params,
		CallID:     "call-1",
		Originator: "go_wallet-bridge",
	})
	if err != nil {
		t.Fatalf("envelope:envelope_test - Encode: %v", err)
	}
	want := `{"type":"CWI","call":"encrypt","params":{"keyID":"k1","plaintext":"hello"},"id":"call-1","originator":"go_wallet-bridge"}`
	if got != want {
		t.Errorf("envelope:envelope_test - got %s\nwant %s", got, want)
	}
}

func TestEncode_OmitsEmptyIDAndOriginator(t *testing.T) {
	got, err := ControlReply("isFocused", value.NewObject().Set("isFocused", value.Bool(true)))
	if err != nil {
		t.Fatalf("envelope:envelope_test - ControlReply: %v", err)
	}
	want := `{"type":"CWI","call":"isFocused","params":{"isFocused":true}}`
	if got != want {
		t.Errorf("envelope:envelope_test - got %s, want %s", got, want)
	}
}

func TestEncode_NilParamsBecomeEmptyObject(t *testing.T) {
	got, err := Encode(&CallDescriptor{Operation: "getVersion", CallID: "x"})
	if err != nil {
		t.Fatalf("envelope:envelope_test - Encode: %v", err)
	}
	if got != `{"type":"CWI","call":"getVersion","params":{},"id":"x"}` {
		t.Errorf("envelope:envelope_test - got %s", got)
	}
}

func TestEncode_RequiresOperation(t *testing.T) {
	if _, err := Encode(&CallDescriptor{}); err == nil {
		t.Error("envelope:envelope_test - expected error for empty operation")
	}
	if _, err := Encode(nil); err == nil {
		t.Error("envelope:envelope_test - expected error for nil descriptor")
	}
}

func TestRoundTrip_EncryptResultDecodesToPlaintext(t *testing.T) {
	if _, err := Encode(&CallDescriptor{
		Operation: "encrypt",
		Params:    value.NewObject().Set("keyID", value.String("k1")).Set("plaintext", value.String("hello")),
		CallID:    "c",
	}); err != nil {
		t.Fatalf("envelope:envelope_test - Encode: %v", err)
	}

	env, err := Decode(`{"status":"ok","result":"aGVsbG8="}`)
	if err != nil {
		t.Fatalf("envelope:envelope_test - Decode: %v", err)
	}
	if env.IsError() {
		t.Fatal("envelope:envelope_test - expected success envelope")
	}
	s, ok := env.Result.AsString()
	if !ok {
		t.Fatalf("envelope:envelope_test - result is %s", env.Result.Kind())
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		t.Fatalf("envelope:envelope_test - base64: %v", err)
	}
	if string(raw) != "hello" {
		t.Errorf("envelope:envelope_test - decoded %q, want hello", raw)
	}
}

func TestDecode_ErrorEnvelope(t *testing.T) {
	env, err := Decode(`{"status":"error","description":"bad key"}`)
	if err != nil {
		t.Fatalf("envelope:envelope_test - Decode: %v", err)
	}
	if !env.IsError() {
		t.Fatal("envelope:envelope_test - expected error status")
	}
	if env.Description != "bad key" {
		t.Errorf("envelope:envelope_test - Description = %q", env.Description)
	}

	env, err = Decode(`{"status":"error"}`)
	if err != nil {
		t.Fatalf("envelope:envelope_test - Decode: %v", err)
	}
	if env.Description != "Unknown Error" {
		t.Errorf("envelope:envelope_test - Description = %q, want Unknown Error", env.Description)
	}
}

func TestDecode_SuccessWithoutResultKeepsBody(t *testing.T) {
	env, err := Decode(`{"status":"success","txid":"abc","rawTx":"00"}`)
	if err != nil {
		t.Fatalf("envelope:envelope_test - Decode: %v", err)
	}
	if env.HasResult {
		t.Error("envelope:envelope_test - expected HasResult=false")
	}
	if txid, ok := env.Body.Get("txid"); !ok || txid.String() != `"abc"` {
		t.Errorf("envelope:envelope_test - body txid = %v", txid)
	}
}

func TestDecode_TransportErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", `{"status":`},
		{"not object", `["status","ok"]`},
		{"missing status", `{"result":"x"}`},
		{"status not string", `{"status":true}`},
		{"empty status", `{"status":""}`},
		{"trailing data", `{"status":"ok"} junk`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.in)
			var te *TransportError
			if !errors.As(err, &te) {
				t.Errorf("envelope:envelope_test - expected TransportError, got %v", err)
			}
		})
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "aGVsbG8="},
		{"aGVsbG8=", "aGVsbG8="},
		{"abcd", "abcd"},
		{"abc", "YWJj"},
		{"with space", "d2l0aCBzcGFjZQ=="},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Canonicalize(tt.in); got != tt.want {
			t.Errorf("envelope:base64_test - Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRandomBase64(t *testing.T) {
	s, err := RandomBase64(32)
	if err != nil {
		t.Fatalf("envelope:base64_test - RandomBase64: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) != 32 {
		t.Errorf("envelope:base64_test - got %d bytes, err %v", len(raw), err)
	}
	if _, err := RandomBase64(0); err == nil {
		t.Error("envelope:base64_test - expected error for zero length")
	}
}
