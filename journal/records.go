package journal

import (
	"time"

	"github.com/pithecene-io/specbridge/bridge"
	"github.com/pithecene-io/specbridge/ipc"
	"github.com/pithecene-io/specbridge/metrics"
	"github.com/pithecene-io/specbridge/types"
)

// Record kind discriminator values.
const (
	RecordKindEnvelope = "envelope"
	RecordKindFlight   = "flight"
	RecordKindMetrics  = "metrics"
)

// Lode's Hive layout needs records as map[string]any; the field names
// below are the stored schema.

func baseRecord(kind string, cfg Config, at time.Time) map[string]any {
	return map[string]any{
		"record_kind": kind,
		"component":   cfg.Component,
		"bridge_id":   cfg.BridgeID,
		"day":         DeriveDay(at),
		"ts":          at.UTC().Format(time.RFC3339Nano),
	}
}

// toEnvelopeRecordMap converts an envelope. The payload is stored decoded;
// a payload that does not decode is kept as payload_error.
func toEnvelopeRecordMap(env *types.Envelope, dir bridge.Direction, cfg Config, at time.Time) map[string]any {
	r := baseRecord(RecordKindEnvelope, cfg, at)
	r["flight_id"] = env.FlightID
	r["direction"] = string(dir)
	r["event"] = string(env.Event)
	r["seq"] = env.Seq
	r["contract_version"] = env.ContractVersion
	r["sync_config"] = env.SyncConfig()

	var payload any
	if err := ipc.DecodePayload(env, &payload); err != nil {
		r["payload_error"] = err.Error()
	} else {
		r["payload"] = payload
	}
	return r
}

func toFlightRecordMap(rec types.FlightRecord, cfg Config, at time.Time) map[string]any {
	r := baseRecord(RecordKindFlight, cfg, at)
	r["flight_id"] = rec.FlightID
	r["runnable_id"] = rec.RunnableID
	r["title_path"] = rec.TitlePath
	r["phase"] = string(rec.Phase)
	r["commands"] = rec.Commands
	r["started_at"] = rec.StartedAt.UTC().Format(time.RFC3339Nano)
	r["duration_ms"] = rec.Duration.Milliseconds()
	if rec.Err != nil {
		r["error_kind"] = string(rec.Err.Kind)
		r["error_name"] = rec.Err.Name
		r["error_message"] = rec.Err.Message
	}
	return r
}

func toMetricsRecordMap(s metrics.Snapshot, cfg Config, at time.Time) map[string]any {
	r := baseRecord(RecordKindMetrics, cfg, at)
	r["flights_started"] = s.FlightsStarted
	r["flights_sync_done"] = s.FlightsSyncDone
	r["flights_queue_done"] = s.FlightsQueueDone
	r["flights_errored"] = s.FlightsErrored
	r["contract_violations"] = s.ContractViolations
	r["late_failures"] = s.LateFailures
	r["commands_run"] = s.CommandsRun
	r["commands_failed"] = s.CommandsFailed
	r["frames_sent"] = s.FramesSent
	r["frames_received"] = s.FramesReceived
	r["decode_errors"] = s.DecodeErrors
	r["journal_write_success"] = s.JournalWriteSuccess
	r["journal_write_failure"] = s.JournalWriteFailure
	r["adapter_publish_success"] = s.AdapterPublishSuccess
	r["adapter_publish_failure"] = s.AdapterPublishFailure
	r["transport"] = s.Transport
	r["evaluator"] = s.Evaluator
	r["journal_backend"] = s.JournalBackend
	return r
}
