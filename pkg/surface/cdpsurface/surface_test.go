package cdpsurface

import (
	"strings"
	"testing"
)

func TestDeliverExpression(t *testing.T) {
	expr, err := deliverExpression(`{"type":"CWI","call":"getVersion","params":{}}`)
	if err != nil {
		t.Fatalf("cdpsurface:surface_test - deliverExpression: %v", err)
	}
	if expr != `window.postMessage({"type":"CWI","call":"getVersion","params":{}})` {
		t.Errorf("cdpsurface:surface_test - expr = %s", expr)
	}

	if _, err := deliverExpression(`alert(1)`); err == nil {
		t.Error("cdpsurface:surface_test - script text must be rejected")
	}
}

func TestParseBindingPayload(t *testing.T) {
	tests := []struct {
		payload  string
		wantName string
		wantBody string
		wantErr  bool
	}{
		{`{"name":"openBabbage","body":""}`, "openBabbage", "", false},
		{`{"name":"5f1c","body":"{\"status\":\"success\"}"}`, "5f1c", `{"status":"success"}`, false},
		{`{"body":"x"}`, "", "", true},
		{`not json`, "", "", true},
	}
	for _, tt := range tests {
		name, body, err := parseBindingPayload(tt.payload)
		if (err != nil) != tt.wantErr {
			t.Errorf("cdpsurface:surface_test - %s: err = %v", tt.payload, err)
			continue
		}
		if name != tt.wantName || body != tt.wantBody {
			t.Errorf("cdpsurface:surface_test - %s: got (%q, %q)", tt.payload, name, body)
		}
	}
}

func TestShimScript_UsesBinding(t *testing.T) {
	js := shimScript(BindingName)
	if !strings.Contains(js, `window["`+BindingName+`"]`) {
		t.Errorf("cdpsurface:surface_test - shim does not call the binding:\n%s", js)
	}
	if !strings.Contains(js, "messageHandlers") {
		t.Error("cdpsurface:surface_test - shim does not install messageHandlers")
	}
}
