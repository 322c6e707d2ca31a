package eval

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/pithecene-io/specbridge/engine"
)

func newScope() *Scope {
	return NewScope(engine.New(engine.Options{}), "flight-1")
}

func TestRegistry_Evaluate(t *testing.T) {
	r := NewRegistry()
	r.Register("() => 1+1", func(_ context.Context, _ *Scope, _ []any) (any, error) {
		return 2, nil
	})
	r.Register("(a) => cy.wrap(a)", func(_ context.Context, s *Scope, args []any) (any, error) {
		return nil, s.Enqueue("wrap", args...)
	})

	scope := newScope()
	v, err := r.Evaluate(t.Context(), scope, "() => 1+1", nil)
	if err != nil || v != 2 {
		t.Errorf("Evaluate = %v, %v", v, err)
	}

	if _, err := r.Evaluate(t.Context(), scope, "(a) => cy.wrap(a)", []any{"x"}); err != nil {
		t.Fatal(err)
	}
	if scope.Engine.Queue().Len() != 1 {
		t.Errorf("queue length = %d, want 1", scope.Engine.Queue().Len())
	}

	_, err = r.Evaluate(t.Context(), scope, "missing", nil)
	if !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{0, false},
		{int64(0), false},
		{uint64(7), true},
		{0.0, false},
		{math.NaN(), false},
		{-1.5, true},
		{"", false},
		{"x", true},
		{[]any{}, true},
		{map[string]any{}, true},
		{struct{}{}, true},
	}
	for _, tt := range tests {
		if got := Truthy(tt.v); got != tt.want {
			t.Errorf("Truthy(%#v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestScope_Stores(t *testing.T) {
	scope := newScope()
	_ = scope.Engine.ApplyConfig(map[string]any{"baseUrl": "http://localhost:8080"})
	scope.Engine.ApplyEnv(map[string]any{"USER": "alice"})

	if v, ok := scope.Config("baseUrl"); !ok || v != "http://localhost:8080" {
		t.Errorf("Config = %v, %v", v, ok)
	}
	if v, ok := scope.Env("USER"); !ok || v != "alice" {
		t.Errorf("Env = %v, %v", v, ok)
	}
	if _, ok := scope.Env("MISSING"); ok {
		t.Error("missing env key reported present")
	}
}

func TestPromise(t *testing.T) {
	v, err := Resolved(3).Await(t.Context())
	if err != nil || v != 3 {
		t.Errorf("Resolved = %v, %v", v, err)
	}

	boom := errors.New("boom")
	if _, err := Rejected(boom).Await(t.Context()); !errors.Is(err, boom) {
		t.Errorf("Rejected err = %v", err)
	}

	p := NewPromise()
	p.Resolve("first")
	p.Reject(boom)
	p.Resolve("second")
	if v, err := p.Await(t.Context()); v != "first" || err != nil {
		t.Errorf("settled promise changed: %v, %v", v, err)
	}

	g := Go(func() (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "late", nil
	})
	if v, err := g.Await(t.Context()); v != "late" || err != nil {
		t.Errorf("Go = %v, %v", v, err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := NewPromise().Await(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("pending Await on cancelled ctx = %v", err)
	}
}
