package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEngine_EnqueueUnknownCommand(t *testing.T) {
	e := New(Options{})

	err := e.Enqueue("nope")
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if e.Queue().Len() != 0 {
		t.Errorf("queue length = %d, want 0", e.Queue().Len())
	}
}

func TestEngine_RunQueueChainsSubject(t *testing.T) {
	e := New(Options{})

	if err := e.Enqueue("wrap", "hello world"); err != nil {
		t.Fatal(err)
	}
	if err := e.Enqueue("should", "contain", "world"); err != nil {
		t.Fatal(err)
	}

	subject, err := e.RunQueue(t.Context())
	if err != nil {
		t.Fatalf("RunQueue failed: %v", err)
	}
	if subject != "hello world" {
		t.Errorf("subject = %v, want %q", subject, "hello world")
	}
	if e.Subject() != "hello world" {
		t.Errorf("state subject = %v", e.Subject())
	}
	if got := e.Queue().Names(); len(got) != 2 || got[0] != "wrap" || got[1] != "should" {
		t.Errorf("names = %v", got)
	}
}

func TestEngine_RunQueueFailureCallsFailHandler(t *testing.T) {
	e := New(Options{})

	var failed error
	e.OnFail(func(err error) { failed = err })

	_ = e.Enqueue("wrap", 1)
	_ = e.Enqueue("should", "eq", 2)
	_ = e.Enqueue("wrap", "never")

	_, err := e.RunQueue(t.Context())
	if !IsCommandError(err) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	var cmdErr *CommandError
	errors.As(err, &cmdErr)
	if cmdErr.Name != "should" || cmdErr.Index != 1 {
		t.Errorf("command error = %+v", cmdErr)
	}
	var assertErr *AssertionError
	if !errors.As(err, &assertErr) {
		t.Errorf("expected AssertionError inside, got %v", err)
	}
	if failed == nil {
		t.Fatal("fail handler was not called")
	}
	if e.Subject() != 1 {
		t.Errorf("subject = %v, want 1", e.Subject())
	}
}

func TestEngine_StopDuringRun(t *testing.T) {
	e := New(Options{})

	started := make(chan struct{})
	e.Register("block", func(ctx context.Context, _ *Engine, _ any, _ []any) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_ = e.Enqueue("block")
	_ = e.Enqueue("wrap", "after")

	done := make(chan error, 1)
	go func() {
		_, err := e.RunQueue(t.Context())
		done <- err
	}()

	<-started
	e.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("expected ErrStopped, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not stop")
	}
	if e.Subject() != nil {
		t.Errorf("subject = %v, want nil", e.Subject())
	}
}

func TestEngine_StopBeforeRun(t *testing.T) {
	e := New(Options{})
	_ = e.Enqueue("wrap", 1)
	e.Stop()

	_, err := e.RunQueue(t.Context())
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestEngine_Reset(t *testing.T) {
	e := New(Options{})
	e.State().Set("foo", "bar")
	e.OnFail(func(error) {})
	e.SetStable(false, "loading")
	_ = e.Enqueue("wrap", 1)
	e.Stop()
	_ = e.ApplyConfig(map[string]any{"viewportWidth": 800})

	e.Reset()

	if e.State().Len() != 0 {
		t.Errorf("state not cleared: %v", e.State().Snapshot())
	}
	if e.Queue().Len() != 0 {
		t.Errorf("queue not cleared")
	}
	if e.Fail(errors.New("x")) {
		t.Error("fail handler should be cleared")
	}
	if stable, reason := e.Stable(); !stable || reason != "" {
		t.Errorf("stable = %v %q", stable, reason)
	}
	if v, ok := e.ConfigValue("viewportWidth"); !ok || v != 800 {
		t.Errorf("config should survive reset, got %v", v)
	}

	_ = e.Enqueue("wrap", 2)
	subject, err := e.RunQueue(t.Context())
	if err != nil || subject != 2 {
		t.Errorf("queue unusable after reset: %v %v", subject, err)
	}
}

func TestEngine_ApplyConfigOverwrites(t *testing.T) {
	e := New(Options{})
	if err := e.ApplyConfig(map[string]any{"a": 1, "b": 2}); err != nil {
		t.Fatal(err)
	}
	if err := e.ApplyConfig(map[string]any{"c": 3}); err != nil {
		t.Fatal(err)
	}
	cfg := e.Config()
	if len(cfg) != 1 || cfg["c"] != 3 {
		t.Errorf("config = %v, want only c", cfg)
	}

	e.ApplyEnv(map[string]any{"FOO": "1"})
	e.ApplyEnv(nil)
	if len(e.Env()) != 0 {
		t.Errorf("env = %v, want empty", e.Env())
	}
}

func TestEngine_ApplyConfigValidation(t *testing.T) {
	e := New(Options{})
	_ = e.ApplyConfig(map[string]any{"keep": true})

	err := e.ApplyConfig(map[string]any{"viewportWidth": -1})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Key != "viewportWidth" {
		t.Errorf("key = %q", cfgErr.Key)
	}
	if _, ok := e.ConfigValue("keep"); !ok {
		t.Error("rejected config must not overwrite the store")
	}

	e.SetSkipConfigValidation(true)
	if err := e.ApplyConfig(map[string]any{"viewportWidth": -1}); err != nil {
		t.Errorf("validation should be skipped, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantKey string
	}{
		{"empty", nil, ""},
		{"valid", map[string]any{"viewportWidth": int64(1000), "viewportHeight": 660.0, "defaultCommandTimeout": 4000, "baseUrl": "http://localhost:3000"}, ""},
		{"unknown keys accepted", map[string]any{"whatever": "x"}, ""},
		{"nil baseUrl", map[string]any{"baseUrl": nil}, ""},
		{"zero width", map[string]any{"viewportWidth": 0}, "viewportWidth"},
		{"fractional height", map[string]any{"viewportHeight": 1.5}, "viewportHeight"},
		{"string width", map[string]any{"viewportWidth": "wide"}, "viewportWidth"},
		{"negative timeout", map[string]any{"pageLoadTimeout": -5}, "pageLoadTimeout"},
		{"relative baseUrl", map[string]any{"baseUrl": "/foo"}, "baseUrl"},
		{"first key reported", map[string]any{"viewportWidth": 0, "baseUrl": 3}, "baseUrl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.config)
			if tt.wantKey == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Key != tt.wantKey {
				t.Errorf("key = %q, want %q", cfgErr.Key, tt.wantKey)
			}
		})
	}
}

func TestEngine_Viewport(t *testing.T) {
	e := New(Options{})
	e.State().SetAll(map[string]any{KeyViewportWidth: 1280, KeyViewportHeight: 720})

	w, h := e.Viewport()
	if w != 1280 || h != 720 {
		t.Errorf("viewport = %dx%d", w, h)
	}
}

func TestEngine_CommandsSorted(t *testing.T) {
	e := New(Options{})
	e.Register("visit", cmdWrap)

	got := e.Commands()
	want := []string{"log", "should", "visit", "wait", "wrap"}
	if len(got) != len(want) {
		t.Fatalf("commands = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("commands[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
