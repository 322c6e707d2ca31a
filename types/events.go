// Package types defines the wire catalog and domain types shared by the
// primary and secondary sides of the relay.
//
//nolint:revive // types is a common Go package naming convention
package types

// ContractVersion is the relay wire contract version.
const ContractVersion = Version

// EventType identifies a message on the cross-context channel.
type EventType string

// Event catalog. Inbound is primary -> secondary, outbound is secondary -> primary.
const (
	// EventRunDomainFn (inbound) asks the secondary to run a callback.
	EventRunDomainFn EventType = "run:domain:fn"
	// EventRanDomainFn (outbound) reports that the callback body ran.
	// Terminal only when Finished is true or Err is set.
	EventRanDomainFn EventType = "ran:domain:fn"
	// EventQueueFinished (outbound) reports that the command queue drained
	// or failed.
	EventQueueFinished EventType = "queue:finished"
	// EventUncaughtError (outbound) reports a failure that arrived after the
	// flight's terminal event.
	EventUncaughtError EventType = "uncaught:error"
	// EventSyncViewport (outbound) carries viewport dimensions; state only.
	EventSyncViewport EventType = "sync:viewport"
)

// IsKnown returns true if the event is part of the catalog.
func (e EventType) IsKnown() bool {
	switch e {
	case EventRunDomainFn, EventRanDomainFn, EventQueueFinished, EventUncaughtError, EventSyncViewport:
		return true
	}
	return false
}

// IsOutbound returns true for events sent by the secondary context.
func (e EventType) IsOutbound() bool {
	return e.IsKnown() && e != EventRunDomainFn
}

// SendOptions are per-message delivery options.
type SendOptions struct {
	// SyncConfig asks the primary to pull configuration state back from the
	// secondary once it handles the message.
	SyncConfig bool `msgpack:"sync_config" json:"sync_config"`
}

// Envelope is the unit carried by every transport.
// Payload holds the msgpack encoding of the event's payload struct so that
// each event decodes into its own type.
type Envelope struct {
	// ContractVersion is the relay contract version of the sender.
	ContractVersion string `msgpack:"contract_version"`
	// Event is the event discriminator.
	Event EventType `msgpack:"event"`
	// FlightID correlates every message of one run:domain:fn invocation.
	FlightID string `msgpack:"flight_id"`
	// Seq is monotonic per sender, starts at 1.
	Seq int64 `msgpack:"seq"`
	// Payload is the encoded event payload.
	Payload []byte `msgpack:"payload"`
	// Options are delivery options; nil when none were requested.
	Options *SendOptions `msgpack:"options,omitempty"`
}

// SyncConfig reports whether the envelope requests a configuration resync.
func (e *Envelope) SyncConfig() bool {
	return e.Options != nil && e.Options.SyncConfig
}

// RunDomainFnOptions is the run:domain:fn payload. Immutable once sent.
type RunDomainFnOptions struct {
	// Config is the primary's configuration snapshot.
	Config map[string]any `msgpack:"config" json:"config" yaml:"config"`
	// Data is the positional argument data passed to the callback.
	Data []any `msgpack:"data" json:"data" yaml:"data"`
	// Env is the primary's environment-variable snapshot.
	Env map[string]any `msgpack:"env" json:"env" yaml:"env"`
	// Fn is the callback source.
	Fn string `msgpack:"fn" json:"fn" yaml:"fn"`
	// SkipConfigValidation disables validation of Config in the secondary.
	SkipConfigValidation bool `msgpack:"skip_config_validation" json:"skip_config_validation" yaml:"skip_config_validation"`
	// State is the primary's engine-state snapshot.
	State StateSnapshot `msgpack:"state" json:"state" yaml:"state"`
}

// RanDomainFnPayload is the ran:domain:fn payload.
type RanDomainFnPayload struct {
	// Subject is the callback's resolved value. Never set when commands
	// were queued.
	Subject any `msgpack:"subject,omitempty" json:"subject,omitempty"`
	// Err is set when evaluation failed.
	Err *ErrorPayload `msgpack:"err,omitempty" json:"err,omitempty"`
	// Finished is true when no queue run follows.
	Finished bool `msgpack:"finished" json:"finished"`
}

// IsTerminal returns true if no queue:finished will follow this message.
func (p *RanDomainFnPayload) IsTerminal() bool {
	return p.Finished || p.Err != nil
}

// QueueFinishedPayload is the queue:finished payload.
type QueueFinishedPayload struct {
	// Subject is the subject yielded by the last queued command.
	Subject any `msgpack:"subject,omitempty" json:"subject,omitempty"`
	// Err is set when the queue failed.
	Err *ErrorPayload `msgpack:"err,omitempty" json:"err,omitempty"`
}

// UncaughtErrorPayload is the uncaught:error payload.
type UncaughtErrorPayload struct {
	Err *ErrorPayload `msgpack:"err" json:"err"`
}

// SyncViewportPayload is the sync:viewport payload.
type SyncViewportPayload struct {
	ViewportWidth  int `msgpack:"viewport_width" json:"viewport_width"`
	ViewportHeight int `msgpack:"viewport_height" json:"viewport_height"`
}
