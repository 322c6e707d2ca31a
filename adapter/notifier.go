package adapter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pithecene-io/specbridge/domainfn"
	"github.com/pithecene-io/specbridge/log"
	"github.com/pithecene-io/specbridge/metrics"
	"github.com/pithecene-io/specbridge/types"
)

// DefaultPublishTimeout bounds one notification across all retries.
const DefaultPublishTimeout = 30 * time.Second

// NotifierOptions configures a Notifier.
type NotifierOptions struct {
	// Component and BridgeID label every event.
	Component string
	BridgeID  string
	// Timeout bounds each publish including retries (default 30s).
	Timeout time.Duration
	// Logger defaults to a no-op logger.
	Logger *log.Logger
	// Metrics may be nil.
	Metrics *metrics.Collector
}

// Notifier publishes every completed flight to its adapters. Publishing
// happens in the background so a slow downstream never delays the next
// flight. It implements domainfn.FlightObserver.
type Notifier struct {
	adapters []Adapter
	opts     NotifierOptions
	logger   *log.Logger

	// ctx outlives individual flights; Close cancels it after draining.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewNotifier creates a Notifier over adapters.
func NewNotifier(opts NotifierOptions, adapters ...Adapter) *Notifier {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultPublishTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		adapters: adapters,
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// FlightCompleted publishes rec to every adapter. Flights completing after
// Close are dropped.
func (n *Notifier) FlightCompleted(_ context.Context, rec types.FlightRecord) {
	ev := NewFlightCompletedEvent(rec, n.opts.Component, n.opts.BridgeID, time.Now())

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		n.logger.Warn("notification dropped after close", map[string]any{"flight_id": ev.FlightID})
		return
	}
	for _, a := range n.adapters {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.publish(a, ev)
		}()
	}
}

func (n *Notifier) publish(a Adapter, ev *FlightCompletedEvent) {
	ctx, cancel := context.WithTimeout(n.ctx, n.opts.Timeout)
	defer cancel()

	if err := a.Publish(ctx, ev); err != nil {
		n.opts.Metrics.IncAdapterPublishFailure()
		n.logger.Warn("notification failed", map[string]any{
			"flight_id": ev.FlightID,
			"error":     err.Error(),
		})
		return
	}
	n.opts.Metrics.IncAdapterPublishSuccess()
}

// Wait blocks until in-flight publishes finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Close waits for pending publishes, then closes every adapter.
func (n *Notifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	n.wg.Wait()
	n.cancel()
	var errs []error
	for _, a := range n.adapters {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Verify Notifier observes flights.
var _ domainfn.FlightObserver = (*Notifier)(nil)
