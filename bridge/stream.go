package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/specbridge/ipc"
	"github.com/pithecene-io/specbridge/iox"
	"github.com/pithecene-io/specbridge/types"
)

// StreamTransport frames envelopes over a byte stream, typically the
// stdio of a child process.
type StreamTransport struct {
	r   io.Reader
	w   io.Writer
	dec *ipc.FrameDecoder
	enc *ipc.FrameEncoder
}

// NewStreamTransport creates a transport reading frames from r and writing
// frames to w.
func NewStreamTransport(r io.Reader, w io.Writer) *StreamTransport {
	return &StreamTransport{
		r:   r,
		w:   w,
		dec: ipc.NewFrameDecoder(r),
		enc: ipc.NewFrameEncoder(w),
	}
}

// Send implements Transport.
func (s *StreamTransport) Send(ctx context.Context, env *types.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.enc.WriteEnvelope(env)
}

// Receive implements Transport. The read itself is not interruptible;
// Close the underlying reader to unblock it.
func (s *StreamTransport) Receive(ctx context.Context) (*types.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env, err := s.dec.ReadEnvelope()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return env, err
}

// Close closes the writer and then the reader, if they are closers.
// Closing an already closed stream is not an error.
func (s *StreamTransport) Close() error {
	var errs []error
	if c, ok := s.w.(io.Closer); ok {
		errs = append(errs, iox.CloseIgnoreClosed(c))
	}
	if c, ok := s.r.(io.Closer); ok {
		errs = append(errs, iox.CloseIgnoreClosed(c))
	}
	return errors.Join(errs...)
}
