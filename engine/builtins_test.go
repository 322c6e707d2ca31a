package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestShould(t *testing.T) {
	tests := []struct {
		name    string
		subject any
		args    []any
		wantErr bool
	}{
		{"eq int widths", int64(2), []any{"eq", 2}, false},
		{"eq float int", 2.0, []any{"eq", int64(2)}, false},
		{"eq mismatch", "a", []any{"eq", "b"}, true},
		{"eq map", map[string]any{"a": "b"}, []any{"eq", map[string]any{"a": "b"}}, false},
		{"exist", "x", []any{"exist"}, false},
		{"exist nil", nil, []any{"exist"}, true},
		{"not.exist", nil, []any{"not.exist"}, false},
		{"contain string", "foobar", []any{"contain", "oba"}, false},
		{"contain slice", []any{int64(1), int64(2)}, []any{"contain", 2}, false},
		{"contain key", map[string]any{"k": 1}, []any{"contain", "k"}, false},
		{"contain missing", []any{"a"}, []any{"contain", "b"}, true},
		{"unknown chainer", 1, []any{"be.purple"}, true},
		{"no chainer", 1, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cmdShould(t.Context(), nil, tt.subject, tt.args)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !LooseEqual(got, tt.subject) {
				t.Errorf("should must yield its subject, got %v", got)
			}
		})
	}
}

func TestShould_AssertionError(t *testing.T) {
	_, err := cmdShould(t.Context(), nil, 1, []any{"eq", 2})
	var assertErr *AssertionError
	if !errors.As(err, &assertErr) {
		t.Fatalf("expected AssertionError, got %v", err)
	}
	if assertErr.Error() != "expected 1 to eq 2" {
		t.Errorf("message = %q", assertErr.Error())
	}
}

func TestWait(t *testing.T) {
	start := time.Now()
	got, err := cmdWait(t.Context(), nil, "s", []any{int64(10)})
	if err != nil {
		t.Fatal(err)
	}
	if got != "s" {
		t.Errorf("wait must yield its subject, got %v", got)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("wait returned early")
	}

	if _, err := cmdWait(t.Context(), nil, nil, []any{"soon"}); err == nil {
		t.Error("expected error for non-numeric duration")
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := cmdWait(ctx, nil, nil, []any{60000}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLogAndWrap(t *testing.T) {
	e := New(Options{})
	_ = e.Enqueue("wrap", "x")
	_ = e.Enqueue("log", "hello", 1)

	subject, err := e.RunQueue(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if subject != nil {
		t.Errorf("log yields nil, got %v", subject)
	}
}
