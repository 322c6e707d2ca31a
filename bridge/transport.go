package bridge

import (
	"context"
	"errors"

	"github.com/pithecene-io/specbridge/types"
)

// ErrClosed is returned by transports after Close or when the peer hung up.
var ErrClosed = errors.New("bridge transport closed")

// Transport carries envelopes between the primary and secondary contexts.
// Send must be safe for concurrent use; Receive is called from one
// goroutine at a time.
type Transport interface {
	Send(ctx context.Context, env *types.Envelope) error
	Receive(ctx context.Context) (*types.Envelope, error)
	Close() error
}
