package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/wallet-bridge/pkg/commsutil"
	"github.com/morezero/wallet-bridge/pkg/dispatcher"
	"github.com/morezero/wallet-bridge/pkg/value"
)

const logPrefix = "relay:relay"

// Caller looks up and runs declared wallet operations. *dispatcher.Dispatcher satisfies it.
type Caller interface {
	Operation(name string) (dispatcher.Operation, bool)
	Call(ctx context.Context, name string, args *value.Object) (value.Value, error)
}

// Status is the bridge.status result.
type Status struct {
	Originator string `json:"originator"`
	Gate       string `json:"gate"`
	Visible    bool   `json:"visible"`
	Pending    int    `json:"pending"`
	Operations int    `json:"operations"`
}

// Bridge exposes host-side controls to relay clients.
type Bridge interface {
	Status() Status
	Show()
	Hide()
}

// Relay routes COMMS requests to wallet operations and bridge controls.
type Relay struct {
	caller Caller
	bridge Bridge
}

// NewRelay creates a new Relay.
func NewRelay(caller Caller, bridge Bridge) *Relay {
	return &Relay{caller: caller, bridge: bridge}
}

// Dispatch routes a request and returns a response.
func (r *Relay) Dispatch(ctx context.Context, req *Request) *Response {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", logPrefix, req.Method, req.ID))

	switch req.Method {
	case "":
		return errorResponse(req.ID, CodeInvalidRequest, "method is required", false)
	case MethodStatus:
		return &Response{ID: req.ID, Ok: true, Result: r.bridge.Status()}
	case MethodShow:
		r.bridge.Show()
		return &Response{ID: req.ID, Ok: true, Result: r.bridge.Status()}
	case MethodHide:
		r.bridge.Hide()
		return &Response{ID: req.ID, Ok: true, Result: r.bridge.Status()}
	}

	if _, ok := r.caller.Operation(req.Method); !ok {
		return callErrorToResponse(req.ID, req.Method, dispatcher.ErrUnknownOperation)
	}
	args, err := commsutil.DecodeObject(req.Params)
	if err != nil {
		return errorResponse(req.ID, CodeInvalidArgument, fmt.Sprintf("Failed to parse %s params", req.Method), false)
	}
	result, err := r.caller.Call(ctx, req.Method, args)
	if err != nil {
		return callErrorToResponse(req.ID, req.Method, err)
	}
	return &Response{ID: req.ID, Ok: true, Result: result}
}

// SubscribeParams holds parameters for Subscribe.
type SubscribeParams struct {
	// Subject defaults to commsutil.SubjectBridge.
	Subject string
	// Queue, when set, load-balances requests across bridge instances.
	Queue string
	// RequestTimeout bounds each request unless the caller asks for less.
	RequestTimeout time.Duration
}

// Subscribe serves requests on params.Subject until the subscription is removed. Requests run
// under ctx, each on its own goroutine so slow wallet calls do not hold up others.
func (r *Relay) Subscribe(ctx context.Context, nc *comms.Conn, params SubscribeParams) (*comms.Subscription, error) {
	if params.Subject == "" {
		params.Subject = commsutil.SubjectBridge
	}
	handler := func(msg *comms.Msg) {
		go r.handle(ctx, msg, params.RequestTimeout)
	}
	var (
		sub *comms.Subscription
		err error
	)
	if params.Queue != "" {
		sub, err = nc.QueueSubscribe(params.Subject, params.Queue, handler)
	} else {
		sub, err = nc.Subscribe(params.Subject, handler)
	}
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, params.Subject, err)
	}
	return sub, nil
}

func (r *Relay) handle(ctx context.Context, msg *comms.Msg, requestTimeout time.Duration) {
	var req Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
		respond(msg, errorResponse("", CodeInvalidRequest, "Failed to decode request", false))
		return
	}

	reqCtx, cancel := requestContext(ctx, req.Ctx, requestTimeout)
	defer cancel()

	respond(msg, r.Dispatch(reqCtx, &req))
}

// requestContext applies the relay timeout, or the caller's shorter deadline.
func requestContext(ctx context.Context, inv *InvocationContext, requestTimeout time.Duration) (context.Context, context.CancelFunc) {
	timeout := requestTimeout
	if inv != nil {
		ms := inv.DeadlineMs
		if ms <= 0 {
			ms = inv.TimeoutMs
		}
		if d := time.Duration(ms) * time.Millisecond; ms > 0 && (timeout <= 0 || d < timeout) {
			timeout = d
		}
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func respond(msg *comms.Msg, resp *Response) {
	data, err := commsutil.EncodePayload(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
		data, _ = commsutil.EncodePayload(errorResponse(resp.ID, CodeInternalError, "Failed to encode result", false))
	}
	if err := msg.Respond(data); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to respond: %v", logPrefix, err))
	}
}

// --- helpers ---

func errorResponse(id, code, message string, retryable bool) *Response {
	return &Response{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func callErrorToResponse(id, method string, err error) *Response {
	if errors.Is(err, dispatcher.ErrUnknownOperation) {
		return errorResponse(id, CodeMethodNotFound, fmt.Sprintf("Unknown method: %s", method), false)
	}

	var remote *dispatcher.RemoteError
	if errors.As(err, &remote) {
		resp := errorResponse(id, CodeRemoteError, remote.Description, false)
		resp.Error.Details = map[string]string{"operation": remote.Operation}
		return resp
	}

	switch dispatcher.Classify(err) {
	case dispatcher.OutcomeArgumentError:
		return errorResponse(id, CodeInvalidArgument, err.Error(), false)
	case dispatcher.OutcomeShapeError:
		return errorResponse(id, CodeShapeError, err.Error(), false)
	case dispatcher.OutcomeTransportError:
		return errorResponse(id, CodeTransportError, err.Error(), true)
	case dispatcher.OutcomeTimedOut:
		return errorResponse(id, CodeTimedOut, err.Error(), true)
	case dispatcher.OutcomeCancelled:
		return errorResponse(id, CodeCancelled, err.Error(), false)
	}
	return errorResponse(id, CodeInternalError, err.Error(), true)
}
