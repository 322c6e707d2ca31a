// Package engine is the local test engine of a browsing context: the state
// store, the command queue, live runnables, the config/env stores and the
// stability flag that callbacks observe.
package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/pithecene-io/specbridge/log"
	"github.com/pithecene-io/specbridge/metrics"
)

// ErrUnknownCommand is returned when enqueueing an unregistered command.
var ErrUnknownCommand = errors.New("unknown command")

// Options configures an Engine.
type Options struct {
	// Logger receives command and failure logs. Defaults to a no-op logger.
	Logger *log.Logger
	// Metrics counts command runs and failures. May be nil.
	Metrics *metrics.Collector
}

// Engine is the explicit engine context shared by the resynchronizer and the
// runner. Safe for concurrent use.
type Engine struct {
	state   *State
	queue   *Queue
	logger  *log.Logger
	metrics *metrics.Collector

	mu             sync.RWMutex
	commands       map[string]CommandFunc
	config         map[string]any
	env            map[string]any
	skipValidation bool
	stable         bool
	stableReason   string
}

// New creates an engine with the builtin commands registered.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	e := &Engine{
		state:    NewState(),
		queue:    NewQueue(),
		logger:   logger,
		metrics:  opts.Metrics,
		commands: make(map[string]CommandFunc),
		config:   make(map[string]any),
		env:      make(map[string]any),
		stable:   true,
	}
	registerBuiltins(e)
	return e
}

// State returns the state store.
func (e *Engine) State() *State { return e.state }

// Queue returns the command queue.
func (e *Engine) Queue() *Queue { return e.queue }

// Logger returns the engine logger.
func (e *Engine) Logger() *log.Logger { return e.logger }

// Register adds or replaces a named command.
func (e *Engine) Register(name string, fn CommandFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands[name] = fn
}

// Commands returns the registered command names, sorted.
func (e *Engine) Commands() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Sorted(maps.Keys(e.commands))
}

// Enqueue appends an invocation of a registered command to the queue.
func (e *Engine) Enqueue(name string, args ...any) error {
	e.mu.RLock()
	fn, ok := e.commands[name]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	e.queue.Enqueue(&Command{
		Name: name,
		Args: args,
		run: func(ctx context.Context, subject any) (any, error) {
			e.metrics.IncCommandRun()
			next, err := fn(ctx, e, subject, args)
			if err != nil {
				return nil, err
			}
			e.state.Set(KeySubject, next)
			return next, nil
		},
	})
	return nil
}

// RunQueue drains the queue. A command failure is reported through Fail
// before it is returned.
func (e *Engine) RunQueue(ctx context.Context) (any, error) {
	subject, err := e.queue.Run(ctx)
	if err != nil && IsCommandError(err) {
		e.metrics.IncCommandFailed()
		e.logger.Warn("command failed", map[string]any{"error": err.Error()})
		e.Fail(err)
	}
	return subject, err
}

// Stop halts the command queue.
func (e *Engine) Stop() {
	e.queue.Stop()
}

// Reset clears the state store, the queue, the fail handler and the
// stability flag. Registered commands and the config/env stores survive.
func (e *Engine) Reset() {
	e.state.Reset()
	e.queue.Reset()
	e.mu.Lock()
	e.stable = true
	e.stableReason = ""
	e.mu.Unlock()
}

// OnFail installs the fail handler.
func (e *Engine) OnFail(h FailHandler) {
	e.state.Set(KeyOnFail, h)
}

// Fail reports err to the installed fail handler.
// Returns false if no handler is installed.
func (e *Engine) Fail(err error) bool {
	h, ok := e.state.Get(KeyOnFail).(FailHandler)
	if !ok || h == nil {
		e.logger.Warn("failure with no fail handler", map[string]any{"error": err.Error()})
		return false
	}
	h(err)
	return true
}

// Subject returns the subject yielded by the last command.
func (e *Engine) Subject() any {
	return e.state.Get(KeySubject)
}

// Runnable returns the current live runnable, or nil.
func (e *Engine) Runnable() *Runnable {
	r, _ := e.state.Get(KeyRunnable).(*Runnable)
	return r
}

// Viewport returns the viewport dimensions held in state.
func (e *Engine) Viewport() (width, height int) {
	width, _ = e.state.Get(KeyViewportWidth).(int)
	height, _ = e.state.Get(KeyViewportHeight).(int)
	return width, height
}

// SetStable sets the page stability flag.
func (e *Engine) SetStable(stable bool, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stable = stable
	e.stableReason = reason
}

// Stable returns the stability flag and the reason it was last set.
func (e *Engine) Stable() (bool, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stable, e.stableReason
}

// SetSkipConfigValidation toggles validation in ApplyConfig.
func (e *Engine) SetSkipConfigValidation(skip bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.skipValidation = skip
}

// ApplyConfig overwrites the config store. Unless validation is skipped, an
// invalid config is rejected and the store is left untouched.
func (e *Engine) ApplyConfig(config map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.skipValidation {
		if err := ValidateConfig(config); err != nil {
			return err
		}
	}
	e.config = maps.Clone(config)
	if e.config == nil {
		e.config = make(map[string]any)
	}
	return nil
}

// ApplyEnv overwrites the env store.
func (e *Engine) ApplyEnv(env map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.env = maps.Clone(env)
	if e.env == nil {
		e.env = make(map[string]any)
	}
}

// Config returns a copy of the config store.
func (e *Engine) Config() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.config)
}

// ConfigValue returns one config value.
func (e *Engine) ConfigValue(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.config[key]
	return v, ok
}

// Env returns a copy of the env store.
func (e *Engine) Env() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.env)
}

// EnvValue returns one env value.
func (e *Engine) EnvValue(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.env[key]
	return v, ok
}
