package domainfn

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/specbridge/engine"
	"github.com/pithecene-io/specbridge/types"
)

// ErrMixedSyncAsync is the contract violation raised when a callback
// returns a plain value and also enqueues commands.
var ErrMixedSyncAsync = errors.New("callback mixes sync and async code")

// FlightError is a failure classified for forwarding to the primary.
type FlightError struct {
	Kind types.ErrorKind
	Err  error
}

func (e *FlightError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FlightError) Unwrap() error {
	return e.Err
}

// IsContractViolation returns true if err is a contract violation.
func IsContractViolation(err error) bool {
	var fe *FlightError
	if errors.As(err, &fe) {
		return fe.Kind == types.ErrorKindContractViolation
	}
	return errors.Is(err, ErrMixedSyncAsync)
}

// IsCallbackError returns true if err is a classified callback failure.
func IsCallbackError(err error) bool {
	var fe *FlightError
	return errors.As(err, &fe) && fe.Kind == types.ErrorKindCallback
}

func mixedSyncAsync(value any, queued int) error {
	return &FlightError{
		Kind: types.ErrorKindContractViolation,
		Err: fmt.Errorf("%w: the callback returned %s while %d command(s) were queued; return nothing, the chain or a promise",
			ErrMixedSyncAsync, describeValue(value), queued),
	}
}

// describeValue names a returned value without dumping its contents.
func describeValue(v any) string {
	switch x := v.(type) {
	case string:
		if len(x) > 40 {
			x = x[:40] + "..."
		}
		return fmt.Sprintf("%q", x)
	case []any:
		return fmt.Sprintf("a list of %d item(s)", len(x))
	case map[string]any:
		return fmt.Sprintf("a table with %d key(s)", len(x))
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", x)
	}
	return fmt.Sprintf("a %T", v)
}

// PayloadFromError converts err to its wire form. The kind is taken from a
// wrapped FlightError and defaults to fallback.
func PayloadFromError(err error, fallback types.ErrorKind) *types.ErrorPayload {
	kind := fallback
	msg := err.Error()
	var fe *FlightError
	if errors.As(err, &fe) {
		kind = fe.Kind
		msg = fe.Err.Error()
	}

	p := &types.ErrorPayload{Kind: kind, Name: errorName(err), Message: msg}

	var traced interface{ StackTrace() string }
	if errors.As(err, &traced) {
		if st := traced.StackTrace(); st != "" {
			p.Stack = &st
		}
	}
	return p
}

func errorName(err error) string {
	var (
		assertErr *engine.AssertionError
		configErr *engine.ConfigError
		cmdErr    *engine.CommandError
		traced    interface{ StackTrace() string }
	)
	switch {
	case errors.Is(err, ErrMixedSyncAsync):
		return "MixedSyncAsync"
	case errors.As(err, &assertErr):
		return "AssertionError"
	case errors.As(err, &configErr):
		return "ConfigError"
	case errors.As(err, &cmdErr):
		return "CommandError"
	case errors.Is(err, engine.ErrStopped):
		return "QueueStopped"
	case errors.Is(err, context.DeadlineExceeded):
		return "TimeoutError"
	case errors.As(err, &traced):
		return "ScriptError"
	}
	return "Error"
}
