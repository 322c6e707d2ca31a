// Package journal persists relay traffic to a Lode dataset.
//
// A Journal is both a bridge.Tap and a domainfn.FlightObserver: envelopes
// are buffered per flight and written in one snapshot when the flight
// completes, together with a flight record and the current metrics.
// Records are Hive-partitioned by component, day and record_kind.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/specbridge/bridge"
	"github.com/pithecene-io/specbridge/domainfn"
	"github.com/pithecene-io/specbridge/log"
	"github.com/pithecene-io/specbridge/metrics"
	"github.com/pithecene-io/specbridge/types"
)

// DefaultDataset is the dataset ID used when Config.Dataset is empty.
const DefaultDataset = "specbridge"

// DeriveDay computes the partition day (YYYY-MM-DD, UTC).
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Config holds journal partitioning configuration.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Component is the partition key for the emitting side.
	Component string
	// BridgeID identifies the bridge process in every record.
	BridgeID string
}

// Options are the journal's collaborators.
type Options struct {
	// Logger defaults to a no-op logger.
	Logger *log.Logger
	// Metrics is snapshotted into every flush and counts write outcomes.
	// May be nil.
	Metrics *metrics.Collector
	// Now defaults to time.Now.
	Now func() time.Time
}

// Journal writes flight records to Lode.
type Journal struct {
	dataset lode.Dataset
	config  Config
	logger  *log.Logger
	metrics *metrics.Collector
	now     func() time.Time

	mu      sync.Mutex
	flights map[string][]map[string]any // open flights, keyed by flight id
	stray   []map[string]any            // envelopes of flights that are not open
}

// OpenDataset opens the journal dataset with its layout and codec.
// Use it for both the write and the read path.
func OpenDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout("component", "day", "record_kind"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return ds, nil
}

// New creates a journal over a store factory.
// Use lode.NewMemoryFactory() for testing.
func New(cfg Config, factory lode.StoreFactory, opts Options) (*Journal, error) {
	ds, err := OpenDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Component == "" {
		cfg.Component = "bridge"
	}
	return &Journal{
		dataset: ds,
		config:  cfg,
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
		flights: make(map[string][]map[string]any),
	}, nil
}

// NewFS creates a journal with filesystem storage under root.
func NewFS(cfg Config, root string, opts Options) (*Journal, error) {
	return New(cfg, lode.NewFSFactory(root), opts)
}

// Dataset returns the underlying dataset.
func (j *Journal) Dataset() lode.Dataset {
	return j.dataset
}

// Envelope implements bridge.Tap. A run:domain:fn opens its flight; other
// envelopes join their open flight or wait for the next write.
func (j *Journal) Envelope(dir bridge.Direction, env *types.Envelope) {
	rec := toEnvelopeRecordMap(env, dir, j.config, j.now())

	j.mu.Lock()
	defer j.mu.Unlock()
	if env.Event == types.EventRunDomainFn {
		j.flights[env.FlightID] = append(j.flights[env.FlightID], rec)
		return
	}
	if buf, ok := j.flights[env.FlightID]; ok {
		j.flights[env.FlightID] = append(buf, rec)
		return
	}
	j.stray = append(j.stray, rec)
}

// FlightCompleted implements domainfn.FlightObserver. It writes the
// flight's envelopes, its flight record and a metrics record in one
// snapshot. Write failures are logged and counted, never returned.
func (j *Journal) FlightCompleted(ctx context.Context, rec types.FlightRecord) {
	j.mu.Lock()
	records := append(j.takeStrayLocked(), j.flights[rec.FlightID]...)
	delete(j.flights, rec.FlightID)
	j.mu.Unlock()

	records = append(records, toFlightRecordMap(rec, j.config, j.now()))
	if err := j.write(ctx, records); err != nil {
		j.logger.Error("journal write failed", map[string]any{
			"flight_id": rec.FlightID,
			"error":     err.Error(),
		})
	}
}

// Flush writes everything still buffered: open flights and strays.
func (j *Journal) Flush(ctx context.Context) error {
	j.mu.Lock()
	records := j.takeStrayLocked()
	for id, buf := range j.flights {
		records = append(records, buf...)
		delete(j.flights, id)
	}
	j.mu.Unlock()

	if len(records) == 0 {
		return nil
	}
	return j.write(ctx, records)
}

// Close flushes buffered records.
func (j *Journal) Close() error {
	return j.Flush(context.Background())
}

// OpenFlights returns the number of flights with buffered envelopes.
func (j *Journal) OpenFlights() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.flights)
}

func (j *Journal) takeStrayLocked() []map[string]any {
	out := j.stray
	j.stray = nil
	return out
}

// write appends a metrics record, when metrics are configured, and writes
// one snapshot.
func (j *Journal) write(ctx context.Context, records []map[string]any) error {
	if j.metrics != nil {
		records = append(records, toMetricsRecordMap(j.metrics.Snapshot(), j.config, j.now()))
	}

	batch := make([]any, len(records))
	for i, r := range records {
		batch[i] = r
	}
	if _, err := j.dataset.Write(ctx, batch, lode.Metadata{}); err != nil {
		j.metrics.IncJournalWriteFailure()
		return WrapWriteError(err, string(j.dataset.ID()))
	}
	j.metrics.IncJournalWriteSuccess()
	return nil
}

var (
	_ bridge.Tap               = (*Journal)(nil)
	_ domainfn.FlightObserver = (*Journal)(nil)
)
