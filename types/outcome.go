package types

import "time"

// OutcomeStatus is the primary's view of how a flight ended.
type OutcomeStatus string

const (
	// OutcomeSuccess means the callback (and queue, if any) completed.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeCallbackError means evaluation failed before any queue ran.
	OutcomeCallbackError OutcomeStatus = "callback_error"
	// OutcomeCommandFailure means a queued command failed.
	OutcomeCommandFailure OutcomeStatus = "command_failure"
	// OutcomeContractViolation means sync and async results were mixed.
	OutcomeContractViolation OutcomeStatus = "contract_violation"
	// OutcomeTransportError means the channel failed before a terminal event.
	OutcomeTransportError OutcomeStatus = "transport_error"
)

// Outcome is the folded result of one flight, as seen by the primary.
type Outcome struct {
	// FlightID is the flight identifier.
	FlightID string `json:"flight_id" yaml:"flight_id"`
	// Status is the outcome category.
	Status OutcomeStatus `json:"status" yaml:"status"`
	// Subject is the value yielded by the flight.
	Subject any `json:"subject,omitempty" yaml:"subject,omitempty"`
	// Err is the forwarded failure, if any.
	Err *ErrorPayload `json:"err,omitempty" yaml:"err,omitempty"`
	// QueueRan is true when the secondary drained a command queue.
	QueueRan bool `json:"queue_ran" yaml:"queue_ran"`
	// ConfigSyncRequested is true when the terminal message asked for a
	// configuration resync.
	ConfigSyncRequested bool `json:"config_sync_requested" yaml:"config_sync_requested"`
	// Viewport is the last viewport reported by the secondary.
	Viewport *SyncViewportPayload `json:"viewport,omitempty" yaml:"viewport,omitempty"`
	// Duration is the wall time from send to terminal event.
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// FlightPhase is the terminal state a flight reached in the secondary.
type FlightPhase string

const (
	// FlightPhaseSyncDone means the callback finished without queued commands.
	FlightPhaseSyncDone FlightPhase = "sync_done"
	// FlightPhaseQueueDone means the queued commands drained or failed.
	FlightPhaseQueueDone FlightPhase = "queue_done"
	// FlightPhaseErrored means evaluation failed and no queue ran.
	FlightPhaseErrored FlightPhase = "errored"
)

// FlightRecord summarizes a finished flight for observers.
type FlightRecord struct {
	FlightID   string        `json:"flight_id"`
	RunnableID string        `json:"runnable_id"`
	TitlePath  []string      `json:"title_path"`
	Phase      FlightPhase   `json:"phase"`
	Commands   int           `json:"commands"`
	Err        *ErrorPayload `json:"err,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}
