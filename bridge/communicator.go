// Package bridge implements the cross-context communicator: a typed event
// bus over a pluggable Transport (in-process pipe, framed byte stream or
// websocket).
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pithecene-io/specbridge/ipc"
	"github.com/pithecene-io/specbridge/log"
	"github.com/pithecene-io/specbridge/metrics"
	"github.com/pithecene-io/specbridge/types"
)

// ErrWrongDirection is returned when an event is sent the wrong way.
var ErrWrongDirection = errors.New("event not allowed in this direction")

// VersionError reports a peer speaking another contract version.
type VersionError struct {
	Got  string
	Want string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("contract version mismatch: got %q, want %q", e.Got, e.Want)
}

// IsVersionError returns true if err is a *VersionError.
func IsVersionError(err error) bool {
	var ve *VersionError
	return errors.As(err, &ve)
}

// Direction tells taps which way an envelope went.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Tap observes every envelope crossing a Communicator.
// Called synchronously; must not block.
type Tap interface {
	Envelope(dir Direction, env *types.Envelope)
}

// Handler handles one received envelope.
type Handler func(ctx context.Context, env *types.Envelope) error

// RunDomainFnHandler handles a decoded run:domain:fn request.
type RunDomainFnHandler func(ctx context.Context, flightID string, opts types.RunDomainFnOptions) error

// Options configures a Communicator.
type Options struct {
	// Transport is required.
	Transport Transport
	// Logger defaults to a no-op logger.
	Logger *log.Logger
	// Metrics may be nil.
	Metrics *metrics.Collector
	// Taps observe sent and received envelopes.
	Taps []Tap
}

// Communicator is one side of the relay channel.
type Communicator struct {
	transport Transport
	logger    *log.Logger
	metrics   *metrics.Collector
	taps      []Tap

	sendMu sync.Mutex
	seq    int64

	mu       sync.RWMutex
	handlers map[types.EventType][]Handler
}

// New creates a Communicator.
func New(opts Options) *Communicator {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Communicator{
		transport: opts.Transport,
		logger:    logger,
		metrics:   opts.Metrics,
		taps:      opts.Taps,
		handlers:  make(map[types.EventType][]Handler),
	}
}

// On registers a handler for an event. Handlers run in registration order.
func (c *Communicator) On(event types.EventType, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// OnRunDomainFn registers a typed run:domain:fn handler. A request whose
// payload cannot be decoded is answered with an errored ran:domain:fn.
func (c *Communicator) OnRunDomainFn(h RunDomainFnHandler) {
	c.On(types.EventRunDomainFn, func(ctx context.Context, env *types.Envelope) error {
		var opts types.RunDomainFnOptions
		if err := ipc.DecodePayload(env, &opts); err != nil {
			c.metrics.IncDecodeError()
			c.logger.Error("undecodable run:domain:fn", map[string]any{
				"flight_id": env.FlightID,
				"error":     err.Error(),
			})
			return c.ToPrimary(ctx, env.FlightID, types.EventRanDomainFn, &types.RanDomainFnPayload{
				Err: &types.ErrorPayload{
					Kind:    types.ErrorKindCallback,
					Name:    "DecodeError",
					Message: err.Error(),
				},
			}, &types.SendOptions{SyncConfig: true})
		}
		return h(ctx, env.FlightID, opts)
	})
}

// ToPrimary sends an outbound event. Implements domainfn.Forwarder.
func (c *Communicator) ToPrimary(ctx context.Context, flightID string, event types.EventType, payload any, opts *types.SendOptions) error {
	if !event.IsOutbound() {
		return fmt.Errorf("%w: %s to primary", ErrWrongDirection, event)
	}
	return c.send(ctx, flightID, event, payload, opts)
}

// ToSecondary sends an inbound event.
func (c *Communicator) ToSecondary(ctx context.Context, flightID string, event types.EventType, payload any, opts *types.SendOptions) error {
	if !event.IsKnown() || event.IsOutbound() {
		return fmt.Errorf("%w: %s to secondary", ErrWrongDirection, event)
	}
	return c.send(ctx, flightID, event, payload, opts)
}

func (c *Communicator) send(ctx context.Context, flightID string, event types.EventType, payload any, opts *types.SendOptions) error {
	body, err := ipc.EncodePayload(payload)
	if err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.seq++
	env := &types.Envelope{
		ContractVersion: types.ContractVersion,
		Event:           event,
		FlightID:        flightID,
		Seq:             c.seq,
		Payload:         body,
		Options:         opts,
	}
	if err := c.transport.Send(ctx, env); err != nil {
		c.seq--
		return fmt.Errorf("send %s: %w", event, err)
	}

	c.metrics.IncFrameSent()
	for _, tap := range c.taps {
		tap.Envelope(DirectionSent, env)
	}
	c.logger.Debug("sent", map[string]any{
		"event":       string(event),
		"flight_id":   flightID,
		"seq":         env.Seq,
		"sync_config": env.SyncConfig(),
	})
	return nil
}

// Serve reads envelopes and dispatches them until the transport closes
// (returns nil), ctx is done, a fatal transport error occurs, or a handler
// fails. Handlers run on the Serve goroutine, so one run:domain:fn is
// handled at a time.
func (c *Communicator) Serve(ctx context.Context) error {
	for {
		env, err := c.transport.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, ErrClosed):
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			case !ipc.IsFatalFrameError(err) && isFrameError(err):
				c.metrics.IncDecodeError()
				c.logger.Warn("dropping undecodable envelope", map[string]any{"error": err.Error()})
				continue
			}
			return err
		}

		c.metrics.IncFrameReceived()
		for _, tap := range c.taps {
			tap.Envelope(DirectionReceived, env)
		}

		if env.ContractVersion != types.ContractVersion {
			return &VersionError{Got: env.ContractVersion, Want: types.ContractVersion}
		}
		if !env.Event.IsKnown() {
			c.logger.Warn("dropping unknown event", map[string]any{"event": string(env.Event)})
			continue
		}

		if err := c.dispatch(ctx, env); err != nil {
			return err
		}
	}
}

func (c *Communicator) dispatch(ctx context.Context, env *types.Envelope) error {
	c.mu.RLock()
	handlers := c.handlers[env.Event]
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debug("no handler", map[string]any{"event": string(env.Event), "flight_id": env.FlightID})
		return nil
	}
	for _, h := range handlers {
		if err := h(ctx, env); err != nil {
			return fmt.Errorf("handle %s: %w", env.Event, err)
		}
	}
	return nil
}

// Close closes the transport.
func (c *Communicator) Close() error {
	return c.transport.Close()
}

func isFrameError(err error) bool {
	var fe *ipc.FrameError
	return errors.As(err, &fe)
}
