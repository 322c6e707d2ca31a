package engine

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// AssertionError is returned by a failing should command.
type AssertionError struct {
	Chainer  string
	Subject  any
	Expected any
}

func (e *AssertionError) Error() string {
	if e.Expected == nil {
		return fmt.Sprintf("expected %v to %s", e.Subject, e.Chainer)
	}
	return fmt.Sprintf("expected %v to %s %v", e.Subject, e.Chainer, e.Expected)
}

func registerBuiltins(e *Engine) {
	e.Register("wrap", cmdWrap)
	e.Register("log", cmdLog)
	e.Register("wait", cmdWait)
	e.Register("should", cmdShould)
}

// wrap(value) yields value.
func cmdWrap(_ context.Context, _ *Engine, _ any, args []any) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return args[0], nil
}

// log(message...) yields nil.
func cmdLog(_ context.Context, e *Engine, _ any, args []any) (any, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	fields := map[string]any{"message": strings.Join(parts, " ")}
	if r := e.Runnable(); r != nil {
		fields["runnable_id"] = r.ID
	}
	e.logger.Info("cy.log", fields)
	return nil, nil
}

// wait(ms) yields the previous subject.
func cmdWait(ctx context.Context, _ *Engine, subject any, args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("wait requires a duration in milliseconds")
	}
	ms, ok := ToFloat(args[0])
	if !ok || ms < 0 {
		return nil, fmt.Errorf("wait duration must be a non-negative number, got %v", args[0])
	}

	timer := time.NewTimer(time.Duration(ms * float64(time.Millisecond)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return subject, nil
	}
}

// should(chainer, expected?) asserts on the previous subject and yields it.
// Chainers: eq, exist, not.exist, contain.
func cmdShould(_ context.Context, _ *Engine, subject any, args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("should requires a chainer")
	}
	chainer, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("should chainer must be a string, got %T", args[0])
	}
	var expected any
	if len(args) > 1 {
		expected = args[1]
	}

	var pass bool
	switch chainer {
	case "eq", "equal":
		pass = LooseEqual(subject, expected)
	case "exist":
		pass = subject != nil
	case "not.exist":
		pass = subject == nil
	case "contain", "include":
		pass = containsValue(subject, expected)
	default:
		return nil, fmt.Errorf("unknown chainer %q", chainer)
	}
	if !pass {
		return nil, &AssertionError{Chainer: chainer, Subject: subject, Expected: expected}
	}
	return subject, nil
}

// LooseEqual compares values decoded from different codecs: numbers compare
// by value regardless of width, everything else deeply.
func LooseEqual(a, b any) bool {
	fa, aNum := ToFloat(a)
	fb, bNum := ToFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, fmt.Sprint(needle))
	case []any:
		for _, v := range h {
			if LooseEqual(v, needle) {
				return true
			}
		}
	case map[string]any:
		key, ok := needle.(string)
		if ok {
			_, found := h[key]
			return found
		}
	}
	return false
}
