package wssurface

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type event struct {
	name string
	body string
}

func startSurface(t *testing.T) (*Surface, *httptest.Server, chan event, chan struct{}) {
	t.Helper()
	events := make(chan event, 16)
	loads := make(chan struct{}, 4)
	s := New(Config{}, Handlers{
		OnMessage: func(name, body string) { events <- event{name, body} },
		OnLoad:    func() { loads <- struct{}{} },
	})
	srv := httptest.NewServer(s)
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return s, srv, events, loads
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + Path
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("wssurface:surface_test - dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitLoad(t *testing.T, loads chan struct{}) {
	t.Helper()
	select {
	case <-loads:
	case <-time.After(2 * time.Second):
		t.Fatal("wssurface:surface_test - OnLoad not called")
	}
}

func TestDeliver_WithoutPage(t *testing.T) {
	s := New(Config{}, Handlers{})
	if err := s.Deliver(context.Background(), "{}"); !errors.Is(err, ErrNotAttached) {
		t.Errorf("wssurface:surface_test - err = %v, want ErrNotAttached", err)
	}
}

func TestSurface_RoutesFramesBothWays(t *testing.T) {
	s, srv, events, loads := startSurface(t)
	conn := dial(t, srv)
	waitLoad(t, loads)
	if !s.Attached() {
		t.Fatal("wssurface:surface_test - page not attached")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := wsjson.Write(ctx, conn, Frame{Name: "call-1", Body: `{"status":"success"}`}); err != nil {
		t.Fatalf("wssurface:surface_test - write: %v", err)
	}
	select {
	case ev := <-events:
		if ev.name != "call-1" || ev.body != `{"status":"success"}` {
			t.Errorf("wssurface:surface_test - event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wssurface:surface_test - no event routed")
	}

	want := `{"type":"CWI","call":"getVersion","params":{}}`
	if err := s.Deliver(ctx, want); err != nil {
		t.Fatalf("wssurface:surface_test - Deliver: %v", err)
	}
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("wssurface:surface_test - read: %v", err)
	}
	if typ != websocket.MessageText || string(data) != want {
		t.Errorf("wssurface:surface_test - got %v %s", typ, data)
	}
}

func TestSurface_MalformedFramesKeepPageAttached(t *testing.T) {
	s, srv, events, loads := startSurface(t)
	conn := dial(t, srv)
	waitLoad(t, loads)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	frames := []string{
		`not json`,
		`{"name":"call-1","body":{"status":"success"}}`,
		`{"name":42}`,
		`{"body":"orphan"}`,
		`{"name":"call-2","body":"{\"status\":\"error\"}"}`,
		`{"name":"call-3"}`,
	}
	for _, f := range frames {
		if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
			t.Fatalf("wssurface:surface_test - write %s: %v", f, err)
		}
	}

	want := []event{
		{"call-1", `{"status":"success"}`},
		{"call-2", `{"status":"error"}`},
		{"call-3", ""},
	}
	for _, w := range want {
		select {
		case ev := <-events:
			if ev != w {
				t.Errorf("wssurface:surface_test - event = %+v, want %+v", ev, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("wssurface:surface_test - no event for %s", w.name)
		}
	}
	if !s.Attached() {
		t.Error("wssurface:surface_test - page detached after malformed frames")
	}
	if err := s.Deliver(ctx, `{"n":1}`); err != nil {
		t.Fatalf("wssurface:surface_test - Deliver: %v", err)
	}
	if _, data, err := conn.Read(ctx); err != nil || string(data) != `{"n":1}` {
		t.Errorf("wssurface:surface_test - page got %s, %v", data, err)
	}
}

func TestSurface_NewerPageReplacesOlder(t *testing.T) {
	s, srv, _, loads := startSurface(t)
	first := dial(t, srv)
	waitLoad(t, loads)
	second := dial(t, srv)
	waitLoad(t, loads)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := first.Read(ctx); websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Errorf("wssurface:surface_test - first page close = %v", err)
	}

	if err := s.Deliver(ctx, `{"n":2}`); err != nil {
		t.Fatalf("wssurface:surface_test - Deliver: %v", err)
	}
	if _, data, err := second.Read(ctx); err != nil || string(data) != `{"n":2}` {
		t.Errorf("wssurface:surface_test - second page got %s, %v", data, err)
	}
}
