// Package metrics provides per-process relay counters.
//
// The Collector is a leaf package with no internal dependencies. Every method
// is nil-receiver safe so components can take an optional *Collector.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
type Snapshot struct {
	// Flight lifecycle (secondary side)
	FlightsStarted     int64
	FlightsSyncDone    int64
	FlightsQueueDone   int64
	FlightsErrored     int64
	ContractViolations int64
	LateFailures       int64

	// Command queue
	CommandsRun    int64
	CommandsFailed int64

	// Transport
	FramesSent     int64
	FramesReceived int64
	DecodeErrors   int64

	// Journal / notifications
	JournalWriteSuccess   int64
	JournalWriteFailure   int64
	AdapterPublishSuccess int64
	AdapterPublishFailure int64

	// Dimensions (informational, set at construction)
	Component      string
	Transport      string
	Evaluator      string
	JournalBackend string
	BridgeID       string
}

// Dimensions label a Collector.
type Dimensions struct {
	Component      string
	Transport      string
	Evaluator      string
	JournalBackend string
	BridgeID       string
}

// Collector accumulates counters. Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(dims Dimensions) *Collector {
	return &Collector{s: Snapshot{
		Component:      dims.Component,
		Transport:      dims.Transport,
		Evaluator:      dims.Evaluator,
		JournalBackend: dims.JournalBackend,
		BridgeID:       dims.BridgeID,
	}}
}

func (c *Collector) add(field func(*Snapshot) *int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field(&c.s)++
	c.mu.Unlock()
}

// --- Flight lifecycle ---

// IncFlightStarted records a received run:domain:fn.
func (c *Collector) IncFlightStarted() { c.add(func(s *Snapshot) *int64 { return &s.FlightsStarted }) }

// IncFlightSyncDone records a flight that finished without queued commands.
func (c *Collector) IncFlightSyncDone() { c.add(func(s *Snapshot) *int64 { return &s.FlightsSyncDone }) }

// IncFlightQueueDone records a flight whose queue drained or failed.
func (c *Collector) IncFlightQueueDone() { c.add(func(s *Snapshot) *int64 { return &s.FlightsQueueDone }) }

// IncFlightErrored records a flight whose evaluation failed.
func (c *Collector) IncFlightErrored() { c.add(func(s *Snapshot) *int64 { return &s.FlightsErrored }) }

// IncContractViolation records a callback that mixed sync and async results.
func (c *Collector) IncContractViolation() {
	c.add(func(s *Snapshot) *int64 { return &s.ContractViolations })
}

// IncLateFailure records a failure forwarded as uncaught:error.
func (c *Collector) IncLateFailure() { c.add(func(s *Snapshot) *int64 { return &s.LateFailures }) }

// --- Command queue ---

// IncCommandRun records a started command.
func (c *Collector) IncCommandRun() { c.add(func(s *Snapshot) *int64 { return &s.CommandsRun }) }

// IncCommandFailed records a failed command.
func (c *Collector) IncCommandFailed() { c.add(func(s *Snapshot) *int64 { return &s.CommandsFailed }) }

// --- Transport ---
// Frame counters are per envelope, whatever the transport framing.

// IncFrameSent records an envelope written to the transport.
func (c *Collector) IncFrameSent() { c.add(func(s *Snapshot) *int64 { return &s.FramesSent }) }

// IncFrameReceived records an envelope read from the transport.
func (c *Collector) IncFrameReceived() { c.add(func(s *Snapshot) *int64 { return &s.FramesReceived }) }

// IncDecodeError records an envelope or payload that failed to decode.
func (c *Collector) IncDecodeError() { c.add(func(s *Snapshot) *int64 { return &s.DecodeErrors }) }

// --- Journal / notifications ---

// IncJournalWriteSuccess records a successful journal write (per call).
func (c *Collector) IncJournalWriteSuccess() {
	c.add(func(s *Snapshot) *int64 { return &s.JournalWriteSuccess })
}

// IncJournalWriteFailure records a failed journal write (per call).
func (c *Collector) IncJournalWriteFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.JournalWriteFailure })
}

// IncAdapterPublishSuccess records a delivered completion notification.
func (c *Collector) IncAdapterPublishSuccess() {
	c.add(func(s *Snapshot) *int64 { return &s.AdapterPublishSuccess })
}

// IncAdapterPublishFailure records a notification that exhausted its retries.
func (c *Collector) IncAdapterPublishFailure() {
	c.add(func(s *Snapshot) *int64 { return &s.AdapterPublishFailure })
}

// Snapshot returns a point-in-time copy of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
