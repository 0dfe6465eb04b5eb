package dispatcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/morezero/wallet-bridge/pkg/value"
)

var (
	// ErrUnknownOperation is returned by Call for a name missing from the operation table.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrTimedOut matches every TimeoutError.
	ErrTimedOut = errors.New("call timed out")
)

// RemoteError is a failure reported by the wallet itself.
type RemoteError struct {
	Operation   string
	Description string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: remote error: %s", e.Operation, e.Description)
}

// ShapeError is a successful envelope that lacks the declared result shape.
type ShapeError struct {
	Operation string
	Field     string
	Want      string
	Got       value.Kind
	Present   bool
}

func (e *ShapeError) Error() string {
	if !e.Present {
		return fmt.Sprintf("%s: expected %s field %q, but it is absent", e.Operation, e.Want, e.Field)
	}
	return fmt.Sprintf("%s: expected %s field %q, got %s", e.Operation, e.Want, e.Field, e.Got)
}

// TimeoutError is a call whose response did not arrive before its deadline.
// Its registry entry has been removed; a late response is dropped.
type TimeoutError struct {
	Operation string
	CallID    string
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: call %s timed out after %v", e.Operation, e.CallID, e.After)
}

// Is makes errors.Is(err, ErrTimedOut) hold.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimedOut }

// ArgumentError is an invalid argument caught before anything is sent.
type ArgumentError struct {
	Operation string
	Param     string
	Reason    string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: argument %q: %s", e.Operation, e.Param, e.Reason)
}
