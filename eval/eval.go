// Package eval is the callback evaluation boundary of the secondary context.
//
// An Evaluator turns a callback source plus argument data into a value,
// running it against a Scope that exposes the local engine. Two evaluators
// are provided: Registry (Go callbacks looked up by source) and
// LuaEvaluator (sources are Lua function expressions).
package eval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/pithecene-io/specbridge/engine"
)

// ErrUnknownSource is returned by Registry for an unregistered source.
var ErrUnknownSource = errors.New("no callback registered for source")

// Evaluator evaluates callback sources in the secondary scope.
// A returned value implementing Thenable is treated as a promise.
type Evaluator interface {
	Evaluate(ctx context.Context, scope *Scope, source string, args []any) (any, error)
}

// Scope is what a callback can reach: the local engine and the flight it
// runs for.
type Scope struct {
	Engine   *engine.Engine
	FlightID string
}

// NewScope creates a scope bound to an engine.
func NewScope(e *engine.Engine, flightID string) *Scope {
	return &Scope{Engine: e, FlightID: flightID}
}

// Enqueue queues a command on the scope's engine.
func (s *Scope) Enqueue(name string, args ...any) error {
	return s.Engine.Enqueue(name, args...)
}

// Config returns a config value from the engine.
func (s *Scope) Config(key string) (any, bool) {
	return s.Engine.ConfigValue(key)
}

// Env returns an env value from the engine.
func (s *Scope) Env(key string) (any, bool) {
	return s.Engine.EnvValue(key)
}

// Chain is the command chain a callback may hand back after enqueueing.
// Like a promise, it leaves the result to the queue, so returning it
// alongside queued commands is not a mixed sync/async result.
type Chain struct {
	// Last is the most recently enqueued command.
	Last string
}

// Func is a Go callback registered under a source string.
type Func func(ctx context.Context, scope *Scope, args []any) (any, error)

// Registry evaluates sources by looking up pre-registered Go callbacks.
// Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds fn to source, replacing any previous binding.
func (r *Registry) Register(source string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[source] = fn
}

// Evaluate runs the callback registered for source.
func (r *Registry) Evaluate(ctx context.Context, scope *Scope, source string, args []any) (any, error) {
	r.mu.RLock()
	fn, ok := r.funcs[source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	return fn(ctx, scope, args)
}

// Truthy reports whether v counts as a returned value. nil, false, zero,
// NaN and the empty string do not.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int8:
		return x != 0
	case int16:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case uint:
		return x != 0
	case uint8:
		return x != 0
	case uint16:
		return x != 0
	case uint32:
		return x != 0
	case uint64:
		return x != 0
	case float32:
		return x != 0 && !math.IsNaN(float64(x))
	case float64:
		return x != 0 && !math.IsNaN(x)
	}
	return true
}
