package bridge

import (
	"context"
	"sync"

	"github.com/pithecene-io/specbridge/ipc"
	"github.com/pithecene-io/specbridge/types"
)

// pipeBuffer is the number of envelopes each direction can hold unread.
const pipeBuffer = 256

// PipeEnd is one side of an in-process transport pair. Envelopes cross the
// pipe in their encoded form.
type PipeEnd struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

// NewPipe returns two connected transports. Closing either end closes both.
func NewPipe() (*PipeEnd, *PipeEnd) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}
	return &PipeEnd{in: ba, out: ab, done: done, once: once},
		&PipeEnd{in: ab, out: ba, done: done, once: once}
}

// Send implements Transport.
func (p *PipeEnd) Send(ctx context.Context, env *types.Envelope) error {
	b, err := ipc.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- b:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive implements Transport. Envelopes sent before Close are still
// delivered.
func (p *PipeEnd) Receive(ctx context.Context) (*types.Envelope, error) {
	select {
	case b := <-p.in:
		return ipc.DecodeEnvelope(b)
	default:
	}
	select {
	case b := <-p.in:
		return ipc.DecodeEnvelope(b)
	case <-p.done:
		select {
		case b := <-p.in:
			return ipc.DecodeEnvelope(b)
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements Transport.
func (p *PipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
