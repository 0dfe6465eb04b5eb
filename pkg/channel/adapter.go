// Package channel is the single point of contact with the embedded browser surface.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/wallet-bridge/pkg/envelope"
	"github.com/morezero/wallet-bridge/pkg/pending"
	"github.com/morezero/wallet-bridge/pkg/value"
)

const logPrefix = "channel:adapter"

// Reserved inbound event names. Every other name is a call id.
const (
	EventOpen       = "openBabbage"
	EventClose      = "closeBabbage"
	EventFocusQuery = "isFocused"
)

// Reasons passed to the drop hook.
const (
	DropUnknownCallID   = "unknown_call_id"
	DropAlreadyResolved = "already_resolved"
	DropUndeliverable   = "undeliverable"
)

const defaultDeliverTimeout = 10 * time.Second

// ErrClosed is reported to calls submitted after Close.
var ErrClosed = errors.New("channel closed")

// Surface delivers wire text into the embedded page. Implementations need not be safe for
// concurrent use: the adapter calls Deliver from one goroutine only.
type Surface interface {
	Deliver(ctx context.Context, wireText string) error
}

// Visibility controls presentation of host content.
type Visibility interface {
	Show()
	Hide()
	Visible() bool
}

// NewAdapterParams holds parameters for NewAdapter.
type NewAdapterParams struct {
	Surface  Surface
	Registry *pending.Registry
	View     Visibility
	// DeliverTimeout bounds a single Deliver; zero uses the default.
	DeliverTimeout time.Duration
	// OnDrop, if set, is called for every inbound event or outbound message that is dropped.
	OnDrop func(reason string)
}

type outbound struct {
	callID string
	text   string
}

// Adapter serializes outbound sends onto one writer goroutine and routes inbound events.
type Adapter struct {
	surface        Surface
	registry       *pending.Registry
	view           Visibility
	deliverTimeout time.Duration
	onDrop         func(reason string)

	mu      sync.Mutex
	queue   []outbound
	closed  bool
	started bool
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

// NewAdapter creates an Adapter. Call Start before sending.
func NewAdapter(params NewAdapterParams) *Adapter {
	timeout := params.DeliverTimeout
	if timeout <= 0 {
		timeout = defaultDeliverTimeout
	}
	onDrop := params.OnDrop
	if onDrop == nil {
		onDrop = func(string) {}
	}
	return &Adapter{
		surface:        params.Surface,
		registry:       params.Registry,
		view:           params.View,
		deliverTimeout: timeout,
		onDrop:         onDrop,
		wake:           make(chan struct{}, 1),
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}
}

// Start launches the writer goroutine. It stops when ctx is done or Close is called.
func (a *Adapter) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started || a.closed {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.mu.Unlock()
	go a.writeLoop(ctx)
}

// Close stops the writer and fails any queued calls.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	started := a.started
	a.mu.Unlock()

	close(a.done)
	if started {
		<-a.stopped
	}
	a.failQueued(ErrClosed)
}

// Send queues wire text for delivery. It never blocks and reports nothing.
func (a *Adapter) Send(wireText string) {
	a.enqueue(outbound{text: wireText})
}

// SendCall queues the wire text of a registered call. If delivery fails the call is resolved
// with a TransportError.
func (a *Adapter) SendCall(callID, wireText string) {
	a.enqueue(outbound{callID: callID, text: wireText})
}

func (a *Adapter) enqueue(m outbound) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.failDelivery(m, ErrClosed)
		return
	}
	a.queue = append(a.queue, m)
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *Adapter) writeLoop(ctx context.Context) {
	defer close(a.stopped)
	for {
		select {
		case <-ctx.Done():
			a.mu.Lock()
			a.closed = true
			a.mu.Unlock()
			a.failQueued(ctx.Err())
			return
		case <-a.done:
			return
		case <-a.wake:
		}

		a.mu.Lock()
		batch := a.queue
		a.queue = nil
		a.mu.Unlock()

		for _, m := range batch {
			a.deliver(ctx, m)
		}
	}
}

func (a *Adapter) deliver(ctx context.Context, m outbound) {
	dctx, cancel := context.WithTimeout(ctx, a.deliverTimeout)
	defer cancel()
	if err := a.surface.Deliver(dctx, m.text); err != nil {
		slog.Error(fmt.Sprintf("%s - delivery failed (call=%q): %v", logPrefix, m.callID, err))
		a.failDelivery(m, err)
	}
}

func (a *Adapter) failQueued(err error) {
	a.mu.Lock()
	batch := a.queue
	a.queue = nil
	a.mu.Unlock()
	for _, m := range batch {
		a.failDelivery(m, err)
	}
}

func (a *Adapter) failDelivery(m outbound, err error) {
	a.onDrop(DropUndeliverable)
	if m.callID == "" {
		return
	}
	terr := &envelope.TransportError{Reason: "delivery to surface failed", Err: err}
	if rerr := a.registry.Resolve(m.callID, pending.Outcome{Err: terr}); rerr != nil {
		slog.Debug(fmt.Sprintf("%s - undeliverable call already gone: %v", logPrefix, rerr))
	}
}

// HandleEvent routes one inbound named event. Safe for concurrent use from any goroutine.
func (a *Adapter) HandleEvent(name, body string) {
	switch name {
	case EventOpen:
		a.view.Show()
	case EventClose:
		a.view.Hide()
	case EventFocusQuery:
		a.replyFocus()
	default:
		a.resolve(name, body)
	}
}

func (a *Adapter) replyFocus() {
	reply, err := envelope.ControlReply(EventFocusQuery,
		value.NewObject().Set("isFocused", value.Bool(a.view.Visible())))
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode focus reply: %v", logPrefix, err))
		return
	}
	a.Send(reply)
}

func (a *Adapter) resolve(callID, body string) {
	out := pending.Outcome{}
	env, err := envelope.Decode(body)
	if err != nil {
		out.Err = err
	} else {
		out.Envelope = env
	}

	rerr := a.registry.Resolve(callID, out)
	switch {
	case rerr == nil:
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - call %s resolved with undecodable envelope: %v", logPrefix, callID, err))
		}
	case errors.Is(rerr, pending.ErrUnknownCallID):
		slog.Warn(fmt.Sprintf("%s - dropping event for unknown call %q", logPrefix, callID))
		a.onDrop(DropUnknownCallID)
	default:
		slog.Error(fmt.Sprintf("%s - dropping event for %q: %v", logPrefix, callID, rerr))
		a.onDrop(DropAlreadyResolved)
	}
}
