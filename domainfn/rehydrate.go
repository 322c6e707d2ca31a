// Package domainfn runs forwarded callbacks in the secondary context.
//
// A run:domain:fn flight rebuilds local engine state from the primary's
// snapshot (Resync, using Rehydrate for the runnable), evaluates the
// callback, optionally drains the command queue, and forwards exactly one
// terminal outcome to the primary.
package domainfn

import (
	"github.com/pithecene-io/specbridge/engine"
	"github.com/pithecene-io/specbridge/types"
)

// Rehydrate builds the live runnable chain for a serialized runnable.
// The ctx map is shared with s, not copied; a nil ctx is replaced by an
// empty map on both sides. The title path is pinned to the serialized one.
// Returns nil for a nil input.
func Rehydrate(s *types.SerializedRunnable) *engine.Runnable {
	if s == nil {
		return nil
	}

	var r *engine.Runnable
	if s.Type == types.RunnableTypeTest {
		r = engine.NewTest(s.Title, func() {})
	} else {
		r = engine.NewRunnable(s.Title)
		r.Type = s.Type
	}

	if s.Ctx == nil {
		s.Ctx = make(map[string]any)
	}
	r.Ctx = s.Ctx
	r.ID = s.ID
	r.Timeout = s.Timeout
	r.SetTitlePath(s.TitlePath)

	if s.Parent != nil {
		r.Parent = Rehydrate(s.Parent)
	}

	// Completion is reported by the Runner, never by the runnable itself.
	r.Callback = func() {}

	return r
}
