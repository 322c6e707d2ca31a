package config

import "testing"

func TestExpandEnv(t *testing.T) {
	t.Setenv("SB_SET", "hello")
	t.Setenv("SB_EMPTY", "")
	t.Setenv("SB_A", "alice")
	t.Setenv("SB_B", "bob")

	tests := []struct {
		name, in, want string
	}{
		{"set", "value: ${SB_SET}", "value: hello"},
		{"unset", "value: ${SB_UNSET_12345}", "value: "},
		{"default when unset", "value: ${SB_UNSET_12345:-fallback}", "value: fallback"},
		{"default ignored when set", "value: ${SB_SET:-fallback}", "value: hello"},
		{"default when empty", "value: ${SB_EMPTY:-fallback}", "value: fallback"},
		{"multiple", "${SB_A}:${SB_B}", "alice:bob"},
		{"none", "no variables here", "no variables here"},
		{"bare dollar untouched", "cost: $5 and $SB_SET", "cost: $5 and $SB_SET"},
		{"nested yaml", "adapter:\n  headers:\n    X-User: ${SB_A}", "adapter:\n  headers:\n    X-User: alice"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExpandEnv(tc.in); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
