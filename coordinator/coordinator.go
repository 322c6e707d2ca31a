// Package coordinator is the primary side of the relay. It sends
// run:domain:fn to the secondary context and folds the events that come
// back into one Outcome per flight.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/specbridge/bridge"
	"github.com/pithecene-io/specbridge/domainfn"
	"github.com/pithecene-io/specbridge/ipc"
	"github.com/pithecene-io/specbridge/log"
	"github.com/pithecene-io/specbridge/metrics"
	"github.com/pithecene-io/specbridge/types"
)

// ErrTransportClosed is returned for flights pending when the channel closed.
var ErrTransportClosed = errors.New("relay channel closed before the flight finished")

// LateFailureFunc receives uncaught:error events.
type LateFailureFunc func(flightID string, err *types.ErrorPayload)

// Options configures a Coordinator.
type Options struct {
	// Communicator is the primary's side of the channel. Required.
	Communicator *bridge.Communicator
	// Logger defaults to a no-op logger.
	Logger *log.Logger
	// Metrics may be nil.
	Metrics *metrics.Collector
	// Observers are notified when a flight's outcome is known.
	Observers []domainfn.FlightObserver
	// OnLateFailure receives failures reported after a flight finished.
	OnLateFailure LateFailureFunc
	// NewFlightID defaults to random UUIDs.
	NewFlightID func() string
}

// Coordinator drives flights from the primary context.
type Coordinator struct {
	comm        *bridge.Communicator
	logger      *log.Logger
	metrics     *metrics.Collector
	observers   []domainfn.FlightObserver
	onLate      LateFailureFunc
	newFlightID func() string

	mu      sync.Mutex
	pending map[string]*pendingFlight
	closed  bool
}

type pendingFlight struct {
	outcome   types.Outcome
	startedAt time.Time
	runnable  *types.SerializedRunnable
	done      chan struct{}
}

// New creates a Coordinator and registers its handlers on the communicator.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	newID := opts.NewFlightID
	if newID == nil {
		newID = uuid.NewString
	}
	c := &Coordinator{
		comm:        opts.Communicator,
		logger:      logger,
		metrics:     opts.Metrics,
		observers:   opts.Observers,
		onLate:      opts.OnLateFailure,
		newFlightID: newID,
		pending:     make(map[string]*pendingFlight),
	}

	c.comm.On(types.EventSyncViewport, c.handleSyncViewport)
	c.comm.On(types.EventRanDomainFn, c.handleRanDomainFn)
	c.comm.On(types.EventQueueFinished, c.handleQueueFinished)
	c.comm.On(types.EventUncaughtError, c.handleUncaughtError)
	return c
}

// Serve runs the communicator's receive loop. When it returns, every
// pending flight ends with a transport error.
func (c *Coordinator) Serve(ctx context.Context) error {
	err := c.comm.Serve(ctx)

	c.mu.Lock()
	c.closed = true
	for id, pf := range c.pending {
		pf.outcome.Status = types.OutcomeTransportError
		pf.outcome.Err = &types.ErrorPayload{
			Name:    "TransportError",
			Message: transportMessage(err),
		}
		c.finishLocked(id, pf)
	}
	c.mu.Unlock()

	return err
}

func transportMessage(err error) string {
	if err == nil {
		return ErrTransportClosed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrTransportClosed, err)
}

// Switch runs opts in the secondary context and waits for the outcome.
// An error is returned only when the request could not be sent or ctx
// ended first; failures inside the flight are reported in the Outcome.
func (c *Coordinator) Switch(ctx context.Context, opts types.RunDomainFnOptions) (*types.Outcome, error) {
	flightID := c.newFlightID()
	pf := &pendingFlight{
		outcome:   types.Outcome{FlightID: flightID},
		startedAt: time.Now(),
		runnable:  opts.State.Runnable,
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrTransportClosed
	}
	c.pending[flightID] = pf
	c.mu.Unlock()

	c.metrics.IncFlightStarted()
	c.logger.Info("switching", map[string]any{"flight_id": flightID, "data_len": len(opts.Data)})

	if err := c.comm.ToSecondary(ctx, flightID, types.EventRunDomainFn, &opts, nil); err != nil {
		c.mu.Lock()
		delete(c.pending, flightID)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case <-pf.done:
		out := pf.outcome
		return &out, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, flightID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *Coordinator) handleSyncViewport(_ context.Context, env *types.Envelope) error {
	var p types.SyncViewportPayload
	if err := ipc.DecodePayload(env, &p); err != nil {
		return c.dropUndecodable(env, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if pf, ok := c.pending[env.FlightID]; ok {
		pf.outcome.Viewport = &p
	}
	return nil
}

func (c *Coordinator) handleRanDomainFn(_ context.Context, env *types.Envelope) error {
	var p types.RanDomainFnPayload
	if err := ipc.DecodePayload(env, &p); err != nil {
		return c.dropUndecodable(env, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	pf, ok := c.pending[env.FlightID]
	if !ok {
		c.logger.Warn("ran:domain:fn for unknown flight", map[string]any{"flight_id": env.FlightID})
		return nil
	}

	switch {
	case p.Err != nil:
		pf.outcome.Status = statusForError(p.Err, types.OutcomeCallbackError)
		pf.outcome.Err = p.Err
	case p.Finished:
		pf.outcome.Status = types.OutcomeSuccess
		pf.outcome.Subject = p.Subject
	default:
		pf.outcome.QueueRan = true
		return nil
	}
	pf.outcome.ConfigSyncRequested = env.SyncConfig()
	c.finishLocked(env.FlightID, pf)
	return nil
}

func (c *Coordinator) handleQueueFinished(_ context.Context, env *types.Envelope) error {
	var p types.QueueFinishedPayload
	if err := ipc.DecodePayload(env, &p); err != nil {
		return c.dropUndecodable(env, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	pf, ok := c.pending[env.FlightID]
	if !ok {
		c.logger.Warn("queue:finished for unknown flight", map[string]any{"flight_id": env.FlightID})
		return nil
	}

	pf.outcome.QueueRan = true
	if p.Err != nil {
		pf.outcome.Status = statusForError(p.Err, types.OutcomeCommandFailure)
		pf.outcome.Err = p.Err
	} else {
		pf.outcome.Status = types.OutcomeSuccess
		pf.outcome.Subject = p.Subject
	}
	pf.outcome.ConfigSyncRequested = env.SyncConfig()
	c.finishLocked(env.FlightID, pf)
	return nil
}

func (c *Coordinator) handleUncaughtError(_ context.Context, env *types.Envelope) error {
	var p types.UncaughtErrorPayload
	if err := ipc.DecodePayload(env, &p); err != nil {
		return c.dropUndecodable(env, err)
	}

	c.metrics.IncLateFailure()
	c.logger.Warn("late failure", map[string]any{"flight_id": env.FlightID, "error": errMessage(p.Err)})
	if c.onLate != nil {
		c.onLate(env.FlightID, p.Err)
	}
	return nil
}

// finishLocked completes a flight. Must be called with c.mu held.
func (c *Coordinator) finishLocked(flightID string, pf *pendingFlight) {
	delete(c.pending, flightID)
	pf.outcome.Duration = time.Since(pf.startedAt)
	close(pf.done)

	rec := types.FlightRecord{
		FlightID:  flightID,
		Phase:     phaseFor(pf.outcome),
		Err:       pf.outcome.Err,
		StartedAt: pf.startedAt,
		Duration:  pf.outcome.Duration,
	}
	if pf.runnable != nil {
		rec.RunnableID = pf.runnable.ID
		rec.TitlePath = pf.runnable.TitlePath
	}

	switch rec.Phase {
	case types.FlightPhaseSyncDone:
		c.metrics.IncFlightSyncDone()
	case types.FlightPhaseQueueDone:
		c.metrics.IncFlightQueueDone()
	default:
		c.metrics.IncFlightErrored()
	}
	if pf.outcome.Status == types.OutcomeContractViolation {
		c.metrics.IncContractViolation()
	}
	c.logger.Info("flight finished", map[string]any{
		"flight_id": flightID,
		"status":    string(pf.outcome.Status),
		"queue_ran": pf.outcome.QueueRan,
	})

	for _, obs := range c.observers {
		obs.FlightCompleted(context.Background(), rec)
	}
}

func (c *Coordinator) dropUndecodable(env *types.Envelope, err error) error {
	c.metrics.IncDecodeError()
	c.logger.Error("undecodable event", map[string]any{
		"event":     string(env.Event),
		"flight_id": env.FlightID,
		"error":     err.Error(),
	})
	return nil
}

func statusForError(p *types.ErrorPayload, fallback types.OutcomeStatus) types.OutcomeStatus {
	switch p.Kind {
	case types.ErrorKindContractViolation:
		return types.OutcomeContractViolation
	case types.ErrorKindCommand:
		return types.OutcomeCommandFailure
	case types.ErrorKindCallback:
		return types.OutcomeCallbackError
	}
	return fallback
}

func phaseFor(o types.Outcome) types.FlightPhase {
	switch {
	case o.QueueRan:
		return types.FlightPhaseQueueDone
	case o.Status == types.OutcomeSuccess:
		return types.FlightPhaseSyncDone
	}
	return types.FlightPhaseErrored
}

func errMessage(p *types.ErrorPayload) string {
	if p == nil {
		return ""
	}
	return p.Error()
}
