// Package authgate keeps host content hidden until the wallet reports an authenticated session.
package authgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const logPrefix = "authgate:gate"

// State is the gate's position in the authentication sequence.
type State int

const (
	StateUnknown State = iota
	StateChecking
	StateAwaitingAuthentication
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateChecking:
		return "checking"
	case StateAwaitingAuthentication:
		return "awaiting_authentication"
	case StateAuthenticated:
		return "authenticated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrSuperseded is returned by a sequence that a newer page load replaced.
var ErrSuperseded = errors.New("authentication sequence superseded by a newer page load")

// Authenticator queries the wallet's session. *wallet.Client satisfies it.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) (bool, error)
	WaitForAuthentication(ctx context.Context) (bool, error)
}

// Presenter shows and hides host content. Its methods run under the gate lock and must not
// call back into the Gate.
type Presenter interface {
	Show()
	Hide()
}

// Observer is told when the gate reaches Authenticated.
type Observer interface {
	DidAuthenticate(ctx context.Context, status bool)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, status bool)

// DidAuthenticate calls f.
func (f ObserverFunc) DidAuthenticate(ctx context.Context, status bool) { f(ctx, status) }

// NewGateParams holds parameters for NewGate.
type NewGateParams struct {
	Authenticator Authenticator
	Presenter     Presenter
	Observers     []Observer
}

// Gate sequences the authentication check for each page load.
type Gate struct {
	auth      Authenticator
	presenter Presenter
	observers []Observer

	mu         sync.Mutex
	state      State
	generation uint64
	cancel     context.CancelFunc
	changed    chan struct{}
}

// NewGate creates a Gate in StateUnknown.
func NewGate(params NewGateParams) *Gate {
	return &Gate{
		auth:      params.Authenticator,
		presenter: params.Presenter,
		observers: params.Observers,
		changed:   make(chan struct{}),
	}
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// ContentLoaded runs the authentication sequence for a freshly loaded page. It blocks until
// the session is authenticated, the sequence fails, or a newer page load supersedes it.
func (g *Gate) ContentLoaded(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	gen := g.begin(cancel)
	slog.Info(fmt.Sprintf("%s - page loaded, checking authentication (generation=%d)", logPrefix, gen))

	authenticated, err := g.auth.IsAuthenticated(ctx)
	if err != nil {
		return g.fail(gen, "isAuthenticated", err)
	}

	if !authenticated {
		if !g.advance(gen, StateAwaitingAuthentication, g.presenter.Show) {
			return ErrSuperseded
		}
		slog.Info(fmt.Sprintf("%s - waiting for the user to authenticate", logPrefix))
		// Any successful resolution counts as authenticated.
		if _, err := g.auth.WaitForAuthentication(ctx); err != nil {
			return g.fail(gen, "waitForAuthentication", err)
		}
	}

	if !g.advance(gen, StateAuthenticated, g.presenter.Hide) {
		return ErrSuperseded
	}
	slog.Info(fmt.Sprintf("%s - authenticated", logPrefix))
	for _, o := range g.observers {
		o.DidAuthenticate(ctx, true)
	}
	return nil
}

// Wait blocks until the gate is Authenticated or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.state == StateAuthenticated {
			g.mu.Unlock()
			return nil
		}
		changed := g.changed
		g.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (g *Gate) begin(cancel context.CancelFunc) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
	g.generation++
	g.cancel = cancel
	g.setLocked(StateChecking)
	return g.generation
}

// advance moves generation gen to state to and runs present while still holding the lock,
// so a newer page load cannot interleave its own presenter call.
func (g *Gate) advance(gen uint64, to State, present func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.generation {
		return false
	}
	g.setLocked(to)
	present()
	if to == StateAuthenticated {
		g.cancel = nil
	}
	return true
}

func (g *Gate) fail(gen uint64, step string, err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.generation {
		return ErrSuperseded
	}
	g.setLocked(StateUnknown)
	g.cancel = nil
	slog.Error(fmt.Sprintf("%s - %s failed: %v", logPrefix, step, err))
	return fmt.Errorf("%s - %s failed: %w", logPrefix, step, err)
}

func (g *Gate) setLocked(s State) {
	if g.state == s {
		return
	}
	g.state = s
	close(g.changed)
	g.changed = make(chan struct{})
}
