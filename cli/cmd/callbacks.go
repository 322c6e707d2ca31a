package cmd

import (
	"context"
	"fmt"

	"github.com/pithecene-io/specbridge/eval"
)

// builtinCallbacks are the named Go callbacks served by --evaluator registry.
// The fn of a run:domain:fn request is the callback name.
//
//	echo(value)           returns value
//	config(key)           returns the synced config value
//	env(key)              returns the synced env value
//	state(key)            returns the engine state value
//	visit(url)            queues visit(url)
//	assert(value, expect) queues wrap(value) then should("eq", expect)
func builtinCallbacks() *eval.Registry {
	r := eval.NewRegistry()

	r.Register("echo", func(_ context.Context, _ *eval.Scope, args []any) (any, error) {
		return arg(args, 0), nil
	})
	r.Register("config", lookup("config", func(s *eval.Scope, key string) (any, bool) { return s.Config(key) }))
	r.Register("env", lookup("env", func(s *eval.Scope, key string) (any, bool) { return s.Env(key) }))
	r.Register("state", lookup("state", func(s *eval.Scope, key string) (any, bool) { return s.Engine.State().Get(key), true }))

	r.Register("visit", func(_ context.Context, s *eval.Scope, args []any) (any, error) {
		url, ok := arg(args, 0).(string)
		if !ok {
			return nil, fmt.Errorf("visit: url must be a string, got %T", arg(args, 0))
		}
		return nil, s.Enqueue("visit", url)
	})
	r.Register("assert", func(_ context.Context, s *eval.Scope, args []any) (any, error) {
		if err := s.Enqueue("wrap", arg(args, 0)); err != nil {
			return nil, err
		}
		return nil, s.Enqueue("should", "eq", arg(args, 1))
	})
	return r
}

func lookup(name string, get func(*eval.Scope, string) (any, bool)) eval.Func {
	return func(_ context.Context, s *eval.Scope, args []any) (any, error) {
		key, ok := arg(args, 0).(string)
		if !ok {
			return nil, fmt.Errorf("%s: key must be a string, got %T", name, arg(args, 0))
		}
		v, _ := get(s, key)
		return v, nil
	}
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}
