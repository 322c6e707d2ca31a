package eval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLuaEvaluator_ReturnsValue(t *testing.T) {
	ev := NewLuaEvaluator()

	v, err := ev.Evaluate(t.Context(), newScope(), "function() return 1+1 end", nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if v != int64(2) {
		t.Errorf("value = %#v, want int64(2)", v)
	}
}

func TestLuaEvaluator_PositionalArgs(t *testing.T) {
	ev := NewLuaEvaluator()

	v, err := ev.Evaluate(t.Context(), newScope(),
		"function(a, b, opts) return a .. '-' .. b .. '-' .. opts.suffix end",
		[]any{"x", int64(3), map[string]any{"suffix": "z"}})
	if err != nil {
		t.Fatal(err)
	}
	if v != "x-3-z" {
		t.Errorf("value = %v", v)
	}
}

func TestLuaEvaluator_ConvertsTables(t *testing.T) {
	ev := NewLuaEvaluator()

	v, err := ev.Evaluate(t.Context(), newScope(),
		"function() return { list = {1, 2.5, 'three'}, flag = true } end", nil)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("value = %T", v)
	}
	list, ok := m["list"].([]any)
	if !ok || len(list) != 3 {
		t.Fatalf("list = %#v", m["list"])
	}
	if list[0] != int64(1) || list[1] != 2.5 || list[2] != "three" {
		t.Errorf("list = %#v", list)
	}
	if m["flag"] != true {
		t.Errorf("flag = %v", m["flag"])
	}
}

func TestLuaEvaluator_EnqueuesCommands(t *testing.T) {
	ev := NewLuaEvaluator()
	scope := newScope()

	v, err := ev.Evaluate(t.Context(), scope,
		`function(n) cy.wrap(n):should("eq", n) cy.log("done") end`, []any{int64(4)})
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("value = %v, want nil", v)
	}

	names := scope.Engine.Queue().Names()
	want := []string{"wrap", "should", "log"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("queued = %v, want %v", names, want)
	}

	subject, err := scope.Engine.RunQueue(t.Context())
	if err != nil {
		t.Fatalf("RunQueue: %v", err)
	}
	if subject != nil {
		t.Errorf("log yields nil, got %v", subject)
	}
}

func TestLuaEvaluator_ReturnsChain(t *testing.T) {
	ev := NewLuaEvaluator()
	scope := newScope()

	v, err := ev.Evaluate(t.Context(), scope, `function() return cy.wrap(1):should("eq", 1) end`, nil)
	if err != nil {
		t.Fatal(err)
	}
	chain, ok := v.(*Chain)
	if !ok {
		t.Fatalf("value = %#v, want *Chain", v)
	}
	if chain.Last != "should" {
		t.Errorf("last command = %q, want should", chain.Last)
	}
	if got := scope.Engine.Queue().Names(); len(got) != 2 || got[0] != "wrap" || got[1] != "should" {
		t.Errorf("queued = %v", got)
	}
}

func TestLuaEvaluator_FunctionsDoNotLeakPointers(t *testing.T) {
	ev := NewLuaEvaluator()

	v, err := ev.Evaluate(t.Context(), newScope(), `function() return {f = function() end} end`, nil)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("value = %#v", v)
	}
	if m["f"] != "[function]" {
		t.Errorf("f = %#v", m["f"])
	}
}

func TestLuaEvaluator_Promises(t *testing.T) {
	ev := NewLuaEvaluator()

	v, err := ev.Evaluate(t.Context(), newScope(), `function() return promise.resolve("ok") end`, nil)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := v.(Thenable)
	if !ok {
		t.Fatalf("value = %T, want Thenable", v)
	}
	if got, err := p.Await(t.Context()); got != "ok" || err != nil {
		t.Errorf("Await = %v, %v", got, err)
	}

	v, err = ev.Evaluate(t.Context(), newScope(), `function() return promise.reject("nope") end`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.(Thenable).Await(t.Context()); err == nil || err.Error() != "nope" {
		t.Errorf("rejected Await err = %v", err)
	}
}

func TestLuaEvaluator_PromiseArgumentRoundTrip(t *testing.T) {
	ev := NewLuaEvaluator()
	in := Resolved(9)

	v, err := ev.Evaluate(t.Context(), newScope(), `function(p) return p end`, []any{in})
	if err != nil {
		t.Fatal(err)
	}
	if v != in {
		t.Errorf("promise argument not passed through: %#v", v)
	}
}

func TestLuaEvaluator_Stores(t *testing.T) {
	ev := NewLuaEvaluator()
	scope := newScope()
	_ = scope.Engine.ApplyConfig(map[string]any{"baseUrl": "http://example.test"})
	scope.Engine.ApplyEnv(map[string]any{"NAME": "bob"})

	v, err := ev.Evaluate(t.Context(), scope, `function() return config("baseUrl") .. "/" .. env("NAME") end`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if v != "http://example.test/bob" {
		t.Errorf("value = %v", v)
	}
}

func TestLuaEvaluator_Errors(t *testing.T) {
	ev := NewLuaEvaluator()

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"syntax", "function( return end", ""},
		{"not a function", "42", "must evaluate to a function"},
		{"raised", `function() error("boom") end`, "boom"},
		{"unknown global", `function() return missing.field end`, ""},
		{"no filesystem", `function() return dofile("/etc/passwd") end`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ev.Evaluate(t.Context(), newScope(), tt.source, nil)
			var luaErr *LuaError
			if !errors.As(err, &luaErr) {
				t.Fatalf("expected LuaError, got %v", err)
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestLuaEvaluator_ContextCancel(t *testing.T) {
	ev := NewLuaEvaluator()
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := ev.Evaluate(ctx, newScope(), `function() while true do end end`, nil)
	if err == nil {
		t.Fatal("expected error from cancelled evaluation")
	}
}
