// Package adapter publishes flight-completed notifications to downstream
// systems.
//
// Concrete adapters live in subpackages (webhook, redis). A Notifier fans a
// finished flight out to every configured adapter.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/specbridge/types"
)

// EventTypeFlightCompleted is the event_type of every notification.
const EventTypeFlightCompleted = "flight_completed"

// DefaultBackoff is the delay before the first retry; each further retry
// doubles it.
const DefaultBackoff = 500 * time.Millisecond

// FlightCompletedEvent is the payload published when a flight finishes.
type FlightCompletedEvent struct {
	ContractVersion string   `json:"contract_version"`
	EventType       string   `json:"event_type"` // always "flight_completed"
	FlightID        string   `json:"flight_id"`
	BridgeID        string   `json:"bridge_id,omitempty"`
	Component       string   `json:"component"`
	RunnableID      string   `json:"runnable_id"`
	TitlePath       []string `json:"title_path"`
	Phase           string   `json:"phase"` // sync_done, queue_done, errored
	ErrorKind       string   `json:"error_kind,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
	Timestamp       string   `json:"timestamp"` // RFC 3339
	Commands        int      `json:"commands"`
	DurationMs      int64    `json:"duration_ms"`
}

// NewFlightCompletedEvent builds the notification for a flight record.
func NewFlightCompletedEvent(rec types.FlightRecord, component, bridgeID string, at time.Time) *FlightCompletedEvent {
	ev := &FlightCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       EventTypeFlightCompleted,
		FlightID:        rec.FlightID,
		BridgeID:        bridgeID,
		Component:       component,
		RunnableID:      rec.RunnableID,
		TitlePath:       rec.TitlePath,
		Phase:           string(rec.Phase),
		Timestamp:       at.UTC().Format(time.RFC3339),
		Commands:        rec.Commands,
		DurationMs:      rec.Duration.Milliseconds(),
	}
	if rec.Err != nil {
		ev.ErrorKind = string(rec.Err.Kind)
		ev.ErrorMessage = rec.Err.Error()
	}
	return ev
}

// Adapter publishes flight completion events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation and
	// deadlines.
	Publish(ctx context.Context, event *FlightCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Backoff returns the delay before retry attempt n (n >= 1).
func Backoff(base time.Duration, n int) time.Duration {
	if base <= 0 {
		base = DefaultBackoff
	}
	return time.Duration(1<<uint(n-1)) * base
}

// Sleep waits for the backoff of retry attempt n or until ctx ends.
func Sleep(ctx context.Context, base time.Duration, n int) error {
	t := time.NewTimer(Backoff(base, n))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
