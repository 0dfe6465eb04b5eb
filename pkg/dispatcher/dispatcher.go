// Package dispatcher turns named wallet operations into correlated calls over the channel.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/wallet-bridge/pkg/envelope"
	"github.com/morezero/wallet-bridge/pkg/pending"
	"github.com/morezero/wallet-bridge/pkg/value"
)

const logPrefix = "dispatcher:dispatch"

// Sender delivers the wire text of a registered call. Delivery failures must be reported by
// resolving the call in the registry.
type Sender interface {
	SendCall(callID, wireText string)
}

// Outcome labels recorded for each call.
const (
	OutcomeOK             = "ok"
	OutcomeRemoteError    = "remote_error"
	OutcomeTransportError = "transport_error"
	OutcomeShapeError     = "shape_error"
	OutcomeTimedOut       = "timed_out"
	OutcomeCancelled      = "cancelled"
	OutcomeArgumentError  = "argument_error"
	OutcomeInternal       = "internal_error"
)

// CallRecord describes one finished call.
type CallRecord struct {
	CallID    string
	Operation string
	Outcome   string
	Duration  time.Duration
	Err       error
	StartedAt time.Time
}

// Recorder observes finished calls. RecordCall must not block.
type Recorder interface {
	RecordCall(rec CallRecord)
}

// Config holds dispatcher settings.
type Config struct {
	// Originator identifies the host application to the wallet.
	Originator string
	// Timeout is the per-call deadline. Zero waits indefinitely.
	Timeout time.Duration
	// Legacy omits the originator and turns remote errors into empty successes.
	Legacy bool
}

// NewDispatcherParams holds parameters for NewDispatcher.
type NewDispatcherParams struct {
	Registry *pending.Registry
	Sender   Sender
	Config   Config
	// Operations replaces the built-in table when non-nil.
	Operations []Operation
	// Recorders observe every finished call.
	Recorders []Recorder
	// NewCallID generates call ids; defaults to random UUIDs.
	NewCallID func() string
}

// Dispatcher issues calls and waits for their correlated responses.
type Dispatcher struct {
	registry  *pending.Registry
	sender    Sender
	cfg       Config
	recorders []Recorder
	newCallID func() string

	mu  sync.RWMutex
	ops map[string]Operation
}

// NewDispatcher creates a Dispatcher. It fails when an operation declaration is invalid.
func NewDispatcher(params NewDispatcherParams) (*Dispatcher, error) {
	if params.Registry == nil || params.Sender == nil {
		return nil, fmt.Errorf("%s - registry and sender are required", logPrefix)
	}
	ops := params.Operations
	if ops == nil {
		ops = Builtin()
	}
	newID := params.NewCallID
	if newID == nil {
		newID = uuid.NewString
	}
	d := &Dispatcher{
		registry:  params.Registry,
		sender:    params.Sender,
		cfg:       params.Config,
		recorders: params.Recorders,
		newCallID: newID,
		ops:       make(map[string]Operation, len(ops)),
	}
	for _, op := range ops {
		if err := d.Register(op); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Register adds or replaces an operation declaration.
func (d *Dispatcher) Register(op Operation) error {
	if err := op.Validate(); err != nil {
		return fmt.Errorf("%s - invalid operation: %w", logPrefix, err)
	}
	d.mu.Lock()
	d.ops[op.Name] = op
	d.mu.Unlock()
	return nil
}

// Operation returns the declaration registered under name.
func (d *Dispatcher) Operation(name string) (Operation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	op, ok := d.ops[name]
	return op, ok
}

// Operations returns all registered declarations sorted by name.
func (d *Dispatcher) Operations() []Operation {
	d.mu.RLock()
	out := make([]Operation, 0, len(d.ops))
	for _, op := range d.ops {
		out = append(out, op)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Pending returns the number of calls awaiting a response.
func (d *Dispatcher) Pending() int { return d.registry.Count() }

// Call runs a declared operation: it validates args, invokes the remote call and shapes the result.
func (d *Dispatcher) Call(ctx context.Context, name string, args *value.Object) (value.Value, error) {
	op, ok := d.Operation(name)
	if !ok {
		return value.Null(), fmt.Errorf("%s - %q: %w", logPrefix, name, ErrUnknownOperation)
	}
	start := time.Now()

	params, err := op.BuildParams(args)
	if err != nil {
		d.record(CallRecord{Operation: name, StartedAt: start, Err: err})
		return value.Null(), err
	}

	timeout := d.cfg.Timeout
	if op.NoDeadline {
		timeout = 0
	}
	env, callID, err := d.invoke(ctx, op.RemoteName(), params, timeout)
	result := value.Null()
	if err == nil {
		result, err = op.ExtractResult(env)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - %s returned an unexpected shape: %v", logPrefix, name, err))
		}
	}
	d.record(CallRecord{CallID: callID, Operation: name, StartedAt: start, Err: err})
	return result, err
}

// Invoke sends an arbitrary remote call and returns its decoded envelope. A remote error
// becomes a RemoteError unless the dispatcher runs in legacy mode.
func (d *Dispatcher) Invoke(ctx context.Context, operation string, params *value.Object) (*envelope.ResponseEnvelope, error) {
	start := time.Now()
	env, callID, err := d.invoke(ctx, operation, params, d.cfg.Timeout)
	d.record(CallRecord{CallID: callID, Operation: operation, StartedAt: start, Err: err})
	return env, err
}

func (d *Dispatcher) invoke(ctx context.Context, operation string, params *value.Object, timeout time.Duration) (*envelope.ResponseEnvelope, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	callID := d.newCallID()
	completion, err := d.registry.Register(callID)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - call id generator produced an unusable id: %v", logPrefix, err))
		return nil, callID, fmt.Errorf("%s - failed to register call: %w", logPrefix, err)
	}

	desc := &envelope.CallDescriptor{Operation: operation, Params: params, CallID: callID}
	if !d.cfg.Legacy {
		desc.Originator = d.cfg.Originator
	}
	text, err := envelope.Encode(desc)
	if err != nil {
		d.registry.Remove(callID)
		return nil, callID, fmt.Errorf("%s - failed to encode %s: %w", logPrefix, operation, err)
	}

	slog.Debug(fmt.Sprintf("%s - call=%s id=%s", logPrefix, operation, callID))
	d.sender.SendCall(callID, text)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case out := <-completion.Done():
		env, err := d.settle(operation, out)
		return env, callID, err
	case <-expired:
		if d.registry.Remove(callID) {
			slog.Warn(fmt.Sprintf("%s - %s (id=%s) timed out after %v", logPrefix, operation, callID, timeout))
			return nil, callID, &TimeoutError{Operation: operation, CallID: callID, After: timeout}
		}
	case <-ctx.Done():
		if d.registry.Remove(callID) {
			return nil, callID, ctx.Err()
		}
	}
	// A response claimed the entry first; it is already on its way.
	env, err := d.settle(operation, <-completion.Done())
	return env, callID, err
}

func (d *Dispatcher) settle(operation string, out pending.Outcome) (*envelope.ResponseEnvelope, error) {
	if out.Err != nil {
		return nil, out.Err
	}
	env := out.Envelope
	if !env.IsError() {
		return env, nil
	}
	if d.cfg.Legacy {
		slog.Warn(fmt.Sprintf("%s - %s failed remotely, reporting success in legacy mode: %s", logPrefix, operation, env.Description))
		return &envelope.ResponseEnvelope{
			Status:      envelope.StatusSuccess,
			Result:      value.Null(),
			Body:        env.Body,
			Description: env.Description,
			Swallowed:   true,
		}, nil
	}
	return nil, &RemoteError{Operation: operation, Description: env.Description}
}

func (d *Dispatcher) record(rec CallRecord) {
	if len(d.recorders) == 0 {
		return
	}
	rec.Duration = time.Since(rec.StartedAt)
	rec.Outcome = Classify(rec.Err)
	for _, r := range d.recorders {
		r.RecordCall(rec)
	}
}

// Classify maps a call error to its outcome label.
func Classify(err error) string {
	var (
		remote    *RemoteError
		shape     *ShapeError
		arg       *ArgumentError
		timeout   *TimeoutError
		transport *envelope.TransportError
	)
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &remote):
		return OutcomeRemoteError
	case errors.As(err, &shape):
		return OutcomeShapeError
	case errors.As(err, &arg), errors.Is(err, ErrUnknownOperation):
		return OutcomeArgumentError
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimedOut
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	case errors.As(err, &transport):
		return OutcomeTransportError
	}
	return OutcomeInternal
}
