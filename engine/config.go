package engine

import (
	"fmt"
	"maps"
	"math"
	"net/url"
	"slices"
)

// ConfigError reports an invalid config value.
type ConfigError struct {
	Key    string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s=%v: %s", e.Key, e.Value, e.Reason)
}

var (
	dimensionKeys = []string{KeyViewportWidth, KeyViewportHeight}
	timeoutKeys   = []string{
		"defaultCommandTimeout",
		"execTimeout",
		"pageLoadTimeout",
		"requestTimeout",
		"responseTimeout",
		"taskTimeout",
	}
)

// ValidateConfig checks the well-known keys of a config snapshot.
// Unknown keys are accepted. Keys are checked in sorted order so the
// reported error is deterministic.
func ValidateConfig(config map[string]any) error {
	for _, key := range slices.Sorted(maps.Keys(config)) {
		v := config[key]
		switch {
		case slices.Contains(dimensionKeys, key):
			n, ok := ToFloat(v)
			if !ok || n != math.Trunc(n) || n <= 0 {
				return &ConfigError{Key: key, Value: v, Reason: "must be a positive integer"}
			}
		case slices.Contains(timeoutKeys, key):
			n, ok := ToFloat(v)
			if !ok || n < 0 {
				return &ConfigError{Key: key, Value: v, Reason: "must be a non-negative number"}
			}
		case key == "baseUrl":
			if v == nil {
				continue
			}
			s, ok := v.(string)
			if !ok {
				return &ConfigError{Key: key, Value: v, Reason: "must be a string"}
			}
			u, err := url.Parse(s)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return &ConfigError{Key: key, Value: v, Reason: "must be an absolute URL"}
			}
		}
	}
	return nil
}

// ToFloat widens any numeric value decoded from the wire.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
