package types

// ErrorKind classifies a forwarded failure.
type ErrorKind string

const (
	// ErrorKindContractViolation is a callback that returned a plain value
	// while also queueing commands.
	ErrorKindContractViolation ErrorKind = "contract_violation"
	// ErrorKindCallback is an error thrown while evaluating or awaiting the
	// callback, or while preparing the secondary for it.
	ErrorKindCallback ErrorKind = "callback_error"
	// ErrorKindCommand is a queued command failure.
	ErrorKindCommand ErrorKind = "command_failure"
	// ErrorKindLate is a failure that arrived after the flight's terminal event.
	ErrorKindLate ErrorKind = "late_failure"
)

// ErrorPayload is the transferable form of an error.
type ErrorPayload struct {
	// Kind is the failure category.
	Kind ErrorKind `msgpack:"kind" json:"kind"`
	// Name is the error type name, e.g. "MixedSyncAsync".
	Name string `msgpack:"name" json:"name"`
	// Message is the formatted error message.
	Message string `msgpack:"message" json:"message"`
	// Stack is an optional stack or source excerpt.
	Stack *string `msgpack:"stack,omitempty" json:"stack,omitempty"`
}

func (e *ErrorPayload) Error() string {
	if e.Name != "" {
		return e.Name + ": " + e.Message
	}
	return e.Message
}
