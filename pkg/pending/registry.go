// Package pending tracks outstanding calls by id until their single response arrives.
package pending

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/morezero/wallet-bridge/pkg/envelope"
)

const logPrefix = "pending:registry"

var (
	// ErrDuplicateCallID means an id was registered while already pending. It signals a defect.
	ErrDuplicateCallID = errors.New("duplicate call id")
	// ErrUnknownCallID means no pending call has the id: stale, duplicate or post-cancellation delivery.
	ErrUnknownCallID = errors.New("unknown call id")
	// ErrAlreadyResolved means a completion handle was resolved a second time.
	ErrAlreadyResolved = errors.New("completion already resolved")
)

// CallIDError ties a registry failure to the offending call id.
type CallIDError struct {
	CallID string
	Err    error
}

func (e *CallIDError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.CallID)
}

func (e *CallIDError) Unwrap() error { return e.Err }

// Outcome is what a pending call resolves with: a decoded envelope or a failure.
type Outcome struct {
	Envelope *envelope.ResponseEnvelope
	Err      error
}

// Completion is the single-use handle a caller waits on.
type Completion struct {
	id       string
	ch       chan Outcome
	resolved atomic.Bool
}

// ID returns the call id the handle belongs to.
func (c *Completion) ID() string { return c.id }

// Done delivers exactly one Outcome.
func (c *Completion) Done() <-chan Outcome { return c.ch }

func (c *Completion) resolve(out Outcome) error {
	if !c.resolved.CompareAndSwap(false, true) {
		return &CallIDError{CallID: c.id, Err: ErrAlreadyResolved}
	}
	c.ch <- out
	return nil
}

// Registry maps call ids to their waiting completions. All mutations are mutually exclusive.
type Registry struct {
	mu    sync.Mutex
	calls map[string]*Completion
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{calls: make(map[string]*Completion)}
}

// Register adds a pending call and returns the handle its caller waits on.
func (r *Registry) Register(id string) (*Completion, error) {
	if id == "" {
		return nil, fmt.Errorf("%s - call id must not be empty", logPrefix)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[id]; ok {
		return nil, &CallIDError{CallID: id, Err: ErrDuplicateCallID}
	}
	c := &Completion{id: id, ch: make(chan Outcome, 1)}
	r.calls[id] = c
	return c, nil
}

// Resolve removes the pending call and completes it with out. A second resolve for the same id
// fails with ErrUnknownCallID.
func (r *Registry) Resolve(id string, out Outcome) error {
	r.mu.Lock()
	c, ok := r.calls[id]
	delete(r.calls, id)
	r.mu.Unlock()
	if !ok {
		return &CallIDError{CallID: id, Err: ErrUnknownCallID}
	}
	return c.resolve(out)
}

// Remove drops a pending call without completing it (cancellation, deadline expiry).
// It reports whether the call was still pending.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[id]; !ok {
		return false
	}
	delete(r.calls, id)
	return true
}

// FailAll completes every pending call with err and empties the registry.
func (r *Registry) FailAll(err error) int {
	r.mu.Lock()
	calls := r.calls
	r.calls = make(map[string]*Completion)
	r.mu.Unlock()

	for id, c := range calls {
		if rerr := c.resolve(Outcome{Err: err}); rerr != nil {
			slog.Error(fmt.Sprintf("%s - failing %s: %v", logPrefix, id, rerr))
		}
	}
	if len(calls) > 0 {
		slog.Warn(fmt.Sprintf("%s - failed %d pending calls: %v", logPrefix, len(calls), err))
	}
	return len(calls)
}

// Count returns the number of pending calls. Diagnostics only.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// IDs returns the pending call ids, sorted. Diagnostics only.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.calls))
	for id := range r.calls {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}
