package domainfn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pithecene-io/specbridge/engine"
	"github.com/pithecene-io/specbridge/eval"
	"github.com/pithecene-io/specbridge/ipc"
	"github.com/pithecene-io/specbridge/log"
	"github.com/pithecene-io/specbridge/metrics"
	"github.com/pithecene-io/specbridge/types"
)

// Forwarder delivers outbound events to the primary context.
type Forwarder interface {
	ToPrimary(ctx context.Context, flightID string, event types.EventType, payload any, opts *types.SendOptions) error
}

// FlightObserver is notified once per flight, after its terminal event
// was forwarded.
type FlightObserver interface {
	FlightCompleted(ctx context.Context, rec types.FlightRecord)
}

// Options configures a Runner.
type Options struct {
	// Engine is the secondary context's engine. Required.
	Engine *engine.Engine
	// Evaluator runs callback sources. Required.
	Evaluator eval.Evaluator
	// Forwarder carries events to the primary. Required.
	Forwarder Forwarder
	// Viewport additionally receives viewport changes, after the
	// sync:viewport event was forwarded. Optional.
	Viewport ViewportSyncer
	// Logger defaults to a no-op logger.
	Logger *log.Logger
	// Metrics may be nil.
	Metrics *metrics.Collector
	// Observers are notified when a flight completes.
	Observers []FlightObserver
}

// Runner handles run:domain:fn flights. Flights run one at a time.
type Runner struct {
	engine    *engine.Engine
	evaluator eval.Evaluator
	fwd       Forwarder
	viewport  ViewportSyncer
	logger    *log.Logger
	metrics   *metrics.Collector
	observers []FlightObserver

	mu sync.Mutex
}

// NewRunner creates a Runner.
func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Runner{
		engine:    opts.Engine,
		evaluator: opts.Evaluator,
		fwd:       opts.Forwarder,
		viewport:  opts.Viewport,
		logger:    logger,
		metrics:   opts.Metrics,
		observers: opts.Observers,
	}
}

// HandleRunDomainFn runs one flight and returns once its terminal event was
// forwarded. The returned error is non-nil only when forwarding failed;
// callback and command failures are reported to the primary instead.
func (r *Runner) HandleRunDomainFn(ctx context.Context, flightID string, opts types.RunDomainFnOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := &flight{
		id:        flightID,
		runner:    r,
		ctx:       context.WithoutCancel(ctx),
		logger:    r.logger.WithFlight(flightID),
		startedAt: time.Now(),
	}
	r.metrics.IncFlightStarted()
	f.logger.Info("flight started", map[string]any{
		"data_len":               len(opts.Data),
		"skip_config_validation": opts.SkipConfigValidation,
	})

	if err := r.prepare(ctx, f, opts); err != nil {
		return f.errored(ctx, &FlightError{Kind: types.ErrorKindCallback, Err: err})
	}

	r.engine.OnFail(f.handleFail)

	scope := eval.NewScope(r.engine, flightID)
	value, err := r.evaluator.Evaluate(ctx, scope, opts.Fn, opts.Data)
	if err != nil {
		return f.errored(ctx, &FlightError{Kind: types.ErrorKindCallback, Err: err})
	}

	// A failure reported during evaluation already ended the flight.
	if f.isTerminal() {
		return f.forwardErr()
	}

	thenable, isPromise := value.(eval.Thenable)
	_, isChain := value.(*eval.Chain)
	queued := r.engine.Queue().Len()
	if !isPromise && !isChain && eval.Truthy(value) && queued > 0 {
		r.metrics.IncContractViolation()
		return f.errored(ctx, mixedSyncAsync(value, queued))
	}

	if queued == 0 {
		subject := value
		if isChain {
			subject = nil
		}
		if isPromise {
			subject, err = thenable.Await(ctx)
			if err != nil {
				return f.errored(ctx, &FlightError{Kind: types.ErrorKindCallback, Err: err})
			}
		}
		return f.syncDone(ctx, subject)
	}

	// Commands pending: announce without subject or config sync, then drain.
	if err := f.send(ctx, types.EventRanDomainFn, &types.RanDomainFnPayload{Finished: false}, false); err != nil {
		return err
	}

	if f.isTerminal() {
		return f.forwardErr()
	}
	if _, err := r.engine.RunQueue(ctx); err != nil {
		if !f.isTerminal() {
			// Stopped without a reported failure.
			f.handleFail(err)
		}
		return f.forwardErr()
	}
	return f.queueDone(ctx)
}

func (r *Runner) prepare(ctx context.Context, f *flight, opts types.RunDomainFnOptions) error {
	syncer := ViewportSyncers{f.wireViewport(), r.viewport}
	if err := Resync(ctx, r.engine, opts.State, syncer); err != nil {
		return err
	}
	f.runnable = r.engine.Runnable()

	r.engine.SetSkipConfigValidation(opts.SkipConfigValidation)
	if err := r.engine.ApplyConfig(opts.Config); err != nil {
		return err
	}
	r.engine.ApplyEnv(opts.Env)
	return nil
}

// flight is the bookkeeping of one run:domain:fn invocation.
type flight struct {
	id        string
	runner    *Runner
	ctx       context.Context
	logger    *log.Logger
	startedAt time.Time
	runnable  *engine.Runnable

	mu            sync.Mutex
	queueFinished bool
	terminalSent  bool
	sendErr       error
}

func (f *flight) send(ctx context.Context, event types.EventType, payload any, syncConfig bool) error {
	var opts *types.SendOptions
	if syncConfig {
		opts = &types.SendOptions{SyncConfig: true}
	}
	err := f.runner.fwd.ToPrimary(ctx, f.id, event, payload, opts)
	if err != nil {
		f.logger.Error("forward failed", map[string]any{"event": string(event), "error": err.Error()})
	}
	return err
}

// sendTerminal forwards a terminal event. Must be called with f.mu held.
// A subject that cannot be encoded is replaced by an error so the primary
// still receives a terminal event.
func (f *flight) sendTerminal(ctx context.Context, event types.EventType, payload any) error {
	f.terminalSent = true
	err := f.send(ctx, event, payload, true)

	var frameErr *ipc.FrameError
	if errors.As(err, &frameErr) && frameErr.Kind == ipc.FrameErrorEncode {
		fallback := PayloadFromError(err, types.ErrorKindCallback)
		switch event {
		case types.EventQueueFinished:
			err = f.send(ctx, event, &types.QueueFinishedPayload{Err: fallback}, true)
		default:
			err = f.send(ctx, event, &types.RanDomainFnPayload{Err: fallback}, true)
		}
	}
	f.sendErr = err
	return err
}

func (f *flight) markPassed() {
	if f.runnable != nil {
		f.runnable.SetState(engine.RunnablePassed)
	}
}

func (f *flight) isTerminal() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminalSent
}

func (f *flight) forwardErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendErr
}

func (f *flight) errored(ctx context.Context, err error) error {
	f.markPassed()

	f.mu.Lock()
	if f.terminalSent {
		f.mu.Unlock()
		return nil
	}
	payload := PayloadFromError(err, types.ErrorKindCallback)
	sendErr := f.sendTerminal(ctx, types.EventRanDomainFn, &types.RanDomainFnPayload{Err: payload})
	f.mu.Unlock()

	f.runner.metrics.IncFlightErrored()
	f.logger.Warn("flight errored", map[string]any{"kind": string(payload.Kind), "error": payload.Message})
	f.complete(types.FlightPhaseErrored, payload)
	return sendErr
}

func (f *flight) syncDone(ctx context.Context, subject any) error {
	f.mu.Lock()
	if f.terminalSent {
		f.mu.Unlock()
		return nil
	}
	sendErr := f.sendTerminal(ctx, types.EventRanDomainFn, &types.RanDomainFnPayload{Subject: subject, Finished: true})
	f.markPassed()
	f.queueFinished = true
	f.mu.Unlock()

	f.runner.metrics.IncFlightSyncDone()
	f.logger.Info("flight finished", map[string]any{"phase": string(types.FlightPhaseSyncDone)})
	f.complete(types.FlightPhaseSyncDone, nil)
	return sendErr
}

func (f *flight) queueDone(ctx context.Context) error {
	f.mu.Lock()
	f.queueFinished = true
	if f.terminalSent {
		f.mu.Unlock()
		return f.forwardErr()
	}
	f.markPassed()
	sendErr := f.sendTerminal(ctx, types.EventQueueFinished, &types.QueueFinishedPayload{Subject: f.runner.engine.Subject()})
	f.mu.Unlock()

	f.runner.metrics.IncFlightQueueDone()
	f.logger.Info("flight finished", map[string]any{"phase": string(types.FlightPhaseQueueDone)})
	f.complete(types.FlightPhaseQueueDone, nil)
	return sendErr
}

// handleFail is the engine fail handler installed for this flight. It may
// run on any goroutine, including after the flight returned.
func (f *flight) handleFail(err error) {
	f.markPassed()

	f.mu.Lock()
	if f.queueFinished || f.terminalSent {
		payload := PayloadFromError(err, types.ErrorKindLate)
		payload.Kind = types.ErrorKindLate
		_ = f.send(f.ctx, types.EventUncaughtError, &types.UncaughtErrorPayload{Err: payload}, false)
		f.mu.Unlock()

		f.runner.metrics.IncLateFailure()
		f.logger.Warn("late failure", map[string]any{"error": payload.Message})
		return
	}

	f.runner.engine.Stop()
	payload := PayloadFromError(err, types.ErrorKindCommand)
	_ = f.sendTerminal(f.ctx, types.EventQueueFinished, &types.QueueFinishedPayload{Err: payload})
	f.mu.Unlock()

	f.runner.metrics.IncFlightQueueDone()
	f.logger.Warn("queue failed", map[string]any{"error": payload.Message})
	f.complete(types.FlightPhaseQueueDone, payload)
}

func (f *flight) complete(phase types.FlightPhase, errPayload *types.ErrorPayload) {
	rec := types.FlightRecord{
		FlightID:  f.id,
		Phase:     phase,
		Commands:  f.runner.engine.Queue().Len(),
		Err:       errPayload,
		StartedAt: f.startedAt,
		Duration:  time.Since(f.startedAt),
	}
	if f.runnable != nil {
		rec.RunnableID = f.runnable.ID
		rec.TitlePath = f.runnable.TitlePath()
	}
	for _, obs := range f.runner.observers {
		obs.FlightCompleted(f.ctx, rec)
	}
}

// wireViewport forwards sync:viewport for this flight.
func (f *flight) wireViewport() ViewportSyncer {
	return ViewportSyncerFunc(func(ctx context.Context, width, height int) error {
		return f.send(ctx, types.EventSyncViewport, &types.SyncViewportPayload{
			ViewportWidth:  width,
			ViewportHeight: height,
		}, false)
	})
}
