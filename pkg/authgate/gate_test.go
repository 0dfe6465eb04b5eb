package authgate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const testPrefix = "authgate:gate_test"

type reply struct {
	ok  bool
	err error
}

// scriptedAuth answers each query from its channel; a query blocks until a reply arrives.
type scriptedAuth struct {
	isAuth  chan reply
	waitFor chan reply
	waiting chan struct{}
}

func newScriptedAuth() *scriptedAuth {
	return &scriptedAuth{
		isAuth:  make(chan reply, 4),
		waitFor: make(chan reply, 4),
		waiting: make(chan struct{}, 4),
	}
}

func (a *scriptedAuth) IsAuthenticated(ctx context.Context) (bool, error) {
	select {
	case r := <-a.isAuth:
		return r.ok, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (a *scriptedAuth) WaitForAuthentication(ctx context.Context) (bool, error) {
	a.waiting <- struct{}{}
	select {
	case r := <-a.waitFor:
		return r.ok, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

type recordingPresenter struct {
	mu    sync.Mutex
	calls []string
}

func (p *recordingPresenter) Show() { p.add("show") }
func (p *recordingPresenter) Hide() { p.add("hide") }

func (p *recordingPresenter) add(s string) {
	p.mu.Lock()
	p.calls = append(p.calls, s)
	p.mu.Unlock()
}

func (p *recordingPresenter) get() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type countingObserver struct {
	mu    sync.Mutex
	count int
}

func (o *countingObserver) DidAuthenticate(_ context.Context, status bool) {
	o.mu.Lock()
	if status {
		o.count++
	}
	o.mu.Unlock()
}

func (o *countingObserver) get() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}

func newTestGate() (*Gate, *scriptedAuth, *recordingPresenter, *countingObserver) {
	auth := newScriptedAuth()
	pres := &recordingPresenter{}
	obs := &countingObserver{}
	g := NewGate(NewGateParams{Authenticator: auth, Presenter: pres, Observers: []Observer{obs}})
	return g, auth, pres, obs
}

func waitForState(t *testing.T, g *Gate, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for g.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("%s - state = %s, want %s", testPrefix, g.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestContentLoaded_AlreadyAuthenticated(t *testing.T) {
	g, auth, pres, obs := newTestGate()
	auth.isAuth <- reply{ok: true}

	if err := g.ContentLoaded(context.Background()); err != nil {
		t.Fatalf("%s - ContentLoaded: %v", testPrefix, err)
	}
	if g.State() != StateAuthenticated {
		t.Errorf("%s - state = %s", testPrefix, g.State())
	}
	if got := pres.get(); len(got) != 1 || got[0] != "hide" {
		t.Errorf("%s - presenter calls = %v", testPrefix, got)
	}
	if obs.get() != 1 {
		t.Errorf("%s - observer called %d times", testPrefix, obs.get())
	}
}

func TestContentLoaded_WaitsForAuthentication(t *testing.T) {
	g, auth, pres, obs := newTestGate()
	auth.isAuth <- reply{ok: false}

	done := make(chan error, 1)
	go func() { done <- g.ContentLoaded(context.Background()) }()

	<-auth.waiting
	if g.State() != StateAwaitingAuthentication {
		t.Errorf("%s - state = %s, want awaiting", testPrefix, g.State())
	}
	if got := pres.get(); len(got) != 1 || got[0] != "show" {
		t.Errorf("%s - presenter calls = %v, want [show]", testPrefix, got)
	}
	if obs.get() != 0 {
		t.Errorf("%s - observer called before authentication", testPrefix)
	}

	auth.waitFor <- reply{ok: true}
	if err := <-done; err != nil {
		t.Fatalf("%s - ContentLoaded: %v", testPrefix, err)
	}
	if got := pres.get(); len(got) != 2 || got[1] != "hide" {
		t.Errorf("%s - presenter calls = %v, want [show hide]", testPrefix, got)
	}
	if obs.get() != 1 {
		t.Errorf("%s - observer called %d times, want 1", testPrefix, obs.get())
	}
}

func TestContentLoaded_ErrorReturnsToUnknown(t *testing.T) {
	g, auth, _, obs := newTestGate()
	auth.isAuth <- reply{err: errors.New("page crashed")}

	if err := g.ContentLoaded(context.Background()); err == nil {
		t.Fatal(testPrefix + " - expected error")
	}
	if g.State() != StateUnknown {
		t.Errorf("%s - state = %s, want unknown", testPrefix, g.State())
	}
	if obs.get() != 0 {
		t.Errorf("%s - observer must not fire on failure", testPrefix)
	}
}

func TestContentLoaded_NewerLoadSupersedes(t *testing.T) {
	g, auth, _, obs := newTestGate()
	auth.isAuth <- reply{ok: false}

	first := make(chan error, 1)
	go func() { first <- g.ContentLoaded(context.Background()) }()
	<-auth.waiting

	auth.isAuth <- reply{ok: true}
	if err := g.ContentLoaded(context.Background()); err != nil {
		t.Fatalf("%s - second ContentLoaded: %v", testPrefix, err)
	}
	if err := <-first; !errors.Is(err, ErrSuperseded) {
		t.Errorf("%s - first sequence err = %v, want ErrSuperseded", testPrefix, err)
	}
	if g.State() != StateAuthenticated {
		t.Errorf("%s - state = %s", testPrefix, g.State())
	}
	if obs.get() != 1 {
		t.Errorf("%s - observer called %d times, want 1", testPrefix, obs.get())
	}
}

// stallingPresenter blocks its first Hide until release is closed.
type stallingPresenter struct {
	recordingPresenter
	once    sync.Once
	hiding  chan struct{}
	release chan struct{}
}

func (p *stallingPresenter) Hide() {
	p.once.Do(func() {
		close(p.hiding)
		<-p.release
	})
	p.add("hide")
}

func TestContentLoaded_SupersededHideCannotOverrideNewerShow(t *testing.T) {
	auth := newScriptedAuth()
	pres := &stallingPresenter{hiding: make(chan struct{}), release: make(chan struct{})}
	g := NewGate(NewGateParams{Authenticator: auth, Presenter: pres})

	auth.isAuth <- reply{ok: true}
	first := make(chan error, 1)
	go func() { first <- g.ContentLoaded(context.Background()) }()
	<-pres.hiding

	auth.isAuth <- reply{ok: false}
	second := make(chan error, 1)
	go func() { second <- g.ContentLoaded(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	close(pres.release)

	<-auth.waiting
	if err := <-first; err != nil {
		t.Fatalf("%s - first ContentLoaded: %v", testPrefix, err)
	}
	if g.State() != StateAwaitingAuthentication {
		t.Errorf("%s - state = %s, want awaiting", testPrefix, g.State())
	}
	if got := pres.get(); len(got) != 2 || got[0] != "hide" || got[1] != "show" {
		t.Errorf("%s - presenter calls = %v, want [hide show]", testPrefix, got)
	}

	auth.waitFor <- reply{ok: true}
	if err := <-second; err != nil {
		t.Fatalf("%s - second ContentLoaded: %v", testPrefix, err)
	}
}

func TestWait_UnblocksOnAuthentication(t *testing.T) {
	g, auth, _, _ := newTestGate()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("%s - Wait before auth = %v", testPrefix, err)
	}

	waited := make(chan error, 1)
	go func() { waited <- g.Wait(context.Background()) }()

	auth.isAuth <- reply{ok: false}
	go g.ContentLoaded(context.Background())
	waitForState(t, g, StateAwaitingAuthentication)
	<-auth.waiting
	auth.waitFor <- reply{ok: false}

	select {
	case err := <-waited:
		if err != nil {
			t.Errorf("%s - Wait = %v", testPrefix, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal(testPrefix + " - Wait did not return")
	}
}
