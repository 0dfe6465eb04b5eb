// Package relay serves the wallet operations to other processes over COMMS request/reply.
package relay

import "encoding/json"

// Request is the JSON envelope for incoming COMMS bridge requests.
type Request struct {
	ID     string             `json:"id"`
	Type   string             `json:"type"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params"`
	Ctx    *InvocationContext `json:"ctx,omitempty"`
}

// Response is the JSON envelope for COMMS bridge responses.
type Response struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	DeadlineMs    int    `json:"deadlineMs,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}

// Error codes returned in ErrorDetail.Code.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeMethodNotFound  = "METHOD_NOT_FOUND"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeRemoteError     = "REMOTE_ERROR"
	CodeTransportError  = "TRANSPORT_ERROR"
	CodeShapeError      = "SHAPE_ERROR"
	CodeTimedOut        = "TIMED_OUT"
	CodeCancelled       = "CANCELLED"
	CodeInternalError   = "INTERNAL_ERROR"
)

// Reserved methods served by the bridge itself.
const (
	MethodStatus = "bridge.status"
	MethodShow   = "bridge.show"
	MethodHide   = "bridge.hide"
)
