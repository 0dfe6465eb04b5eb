// Package wssurface lets a wallet page attach to the bridge over a WebSocket.
package wssurface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"nhooyr.io/websocket"
)

const logPrefix = "wssurface:surface"

// Path is where pages attach.
const Path = "/bridge"

// ErrNotAttached is returned by Deliver when no page is attached.
var ErrNotAttached = errors.New("no page attached")

// Handlers receive what the page sends.
type Handlers struct {
	// OnMessage is called for every inbound frame, in order.
	OnMessage func(name, body string)
	// OnLoad is called on its own goroutine whenever a page attaches.
	OnLoad func()
}

// Frame is one inbound page message. Pages may send the body as a JSON string or as a
// JSON value, which is passed on as its raw text.
type Frame struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

func decodeFrame(data []byte) (Frame, error) {
	var raw struct {
		Name string          `json:"name"`
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, err
	}
	frame := Frame{Name: raw.Name}
	if len(raw.Body) == 0 || string(raw.Body) == "null" {
		return frame, nil
	}
	if raw.Body[0] == '"' {
		if err := json.Unmarshal(raw.Body, &frame.Body); err != nil {
			return Frame{}, err
		}
		return frame, nil
	}
	frame.Body = string(raw.Body)
	return frame, nil
}

// Config holds surface settings.
type Config struct {
	// OriginPatterns are the page origins allowed to attach besides same-origin.
	OriginPatterns []string
}

var defaultOrigins = []string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*", "[::1]", "[::1]:*"}

// Surface holds the single attached page connection.
type Surface struct {
	handlers Handlers
	origins  []string

	mu   sync.Mutex
	conn *websocket.Conn
	seq  uint64
}

// New creates a Surface. Mount it at Path.
func New(cfg Config, handlers Handlers) *Surface {
	if handlers.OnMessage == nil {
		handlers.OnMessage = func(string, string) {}
	}
	if handlers.OnLoad == nil {
		handlers.OnLoad = func() {}
	}
	origins := cfg.OriginPatterns
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	return &Surface{handlers: handlers, origins: origins}
}

// ServeHTTP accepts a page connection. A newer page replaces the attached one.
func (s *Surface) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - websocket accept failed: %v", logPrefix, err))
		return
	}

	s.mu.Lock()
	previous := s.conn
	s.conn = conn
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	if previous != nil {
		previous.Close(websocket.StatusGoingAway, "replaced by a newer page")
	}

	slog.Info(fmt.Sprintf("%s - page attached (seq=%d)", logPrefix, seq))
	go s.handlers.OnLoad()

	s.readLoop(r.Context(), conn)

	s.mu.Lock()
	if s.seq == seq {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close(websocket.StatusNormalClosure, "")
	slog.Info(fmt.Sprintf("%s - page detached (seq=%d)", logPrefix, seq))
}

func (s *Surface) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				slog.Debug(fmt.Sprintf("%s - read ended: %v", logPrefix, err))
			}
			return
		}
		if typ != websocket.MessageText {
			slog.Warn(fmt.Sprintf("%s - ignoring binary frame (%d bytes)", logPrefix, len(data)))
			continue
		}
		frame, err := decodeFrame(data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - ignoring malformed frame: %v", logPrefix, err))
			continue
		}
		if frame.Name == "" {
			slog.Warn(fmt.Sprintf("%s - ignoring frame without a name", logPrefix))
			continue
		}
		s.handlers.OnMessage(frame.Name, frame.Body)
	}
}

// Deliver sends wireText to the attached page as a text frame.
func (s *Surface) Deliver(ctx context.Context, wireText string) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotAttached
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(wireText)); err != nil {
		return fmt.Errorf("%s - write failed: %w", logPrefix, err)
	}
	return nil
}

// Attached reports whether a page is connected.
func (s *Surface) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Close detaches the current page.
func (s *Surface) Close() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusGoingAway, "bridge shutting down")
	}
}
