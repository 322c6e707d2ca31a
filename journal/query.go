package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ErrNoMetricsFound is returned when no metrics record matches.
var ErrNoMetricsFound = errors.New("no metrics records found")

// ErrFlightNotFound is returned when a flight has no records.
var ErrFlightNotFound = errors.New("flight not found")

// QueryLatestMetrics returns the most recent metrics record, filtered by
// component when non-empty.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, component string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	// Snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatchesFilter(snap, "record_kind", RecordKindMetrics) ||
			!snapshotMatchesFilter(snap, "component", component) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}

		// Paths are a coarse pre-filter; record fields are authoritative.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindMetrics {
				continue
			}
			if component != "" && toString(record["component"]) != component {
				continue
			}
			return record, nil
		}
	}
	return nil, ErrNoMetricsFound
}

// ReadFlight returns every record of one flight in write order: envelopes
// first, then the flight record.
func ReadFlight(ctx context.Context, ds lode.Dataset, flightID string) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	var out []map[string]any
	for _, snap := range snapshots {
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if ok && toString(record["flight_id"]) == flightID {
				out = append(out, record)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrFlightNotFound, flightID)
	}
	return out, nil
}

// snapshotMatchesFilter reports whether any file of the snapshot lies in
// the key=value partition. An empty value matches everything.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		for part := range strings.SplitSeq(f.Path, "/") {
			if part == segment {
				return true
			}
		}
	}
	return false
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}
