package engine

import (
	"slices"
	"strings"
	"sync"

	"github.com/pithecene-io/specbridge/types"
)

// RunnableState is the run state of a live runnable.
type RunnableState string

const (
	RunnablePending RunnableState = "pending"
	RunnablePassed  RunnableState = "passed"
	RunnableFailed  RunnableState = "failed"
)

// Runnable is a live test, suite or hook in the engine.
type Runnable struct {
	ID      string
	Type    types.RunnableType
	Title   string
	Ctx     map[string]any
	Timeout int64
	Parent  *Runnable
	// Callback is the runnable body.
	Callback func()

	mu        sync.Mutex
	state     RunnableState
	titlePath []string
	pinned    bool
}

// NewTest creates a test runnable with the given body.
func NewTest(title string, fn func()) *Runnable {
	if fn == nil {
		fn = func() {}
	}
	return &Runnable{
		Type:     types.RunnableTypeTest,
		Title:    title,
		Ctx:      make(map[string]any),
		Callback: fn,
		state:    RunnablePending,
	}
}

// NewRunnable creates an untyped runnable. Callers set Type.
func NewRunnable(title string) *Runnable {
	return &Runnable{
		Title:    title,
		Ctx:      make(map[string]any),
		Callback: func() {},
		state:    RunnablePending,
	}
}

// TitlePath returns the display path from the outermost titled ancestor to
// this runnable. A pinned path is returned as stored.
func (r *Runnable) TitlePath() []string {
	r.mu.Lock()
	if r.pinned {
		defer r.mu.Unlock()
		return slices.Clone(r.titlePath)
	}
	r.mu.Unlock()

	var path []string
	if r.Parent != nil {
		path = r.Parent.TitlePath()
	}
	if r.Title != "" {
		path = append(path, r.Title)
	}
	return path
}

// SetTitlePath pins the display path. Only the first call has an effect.
func (r *Runnable) SetTitlePath(path []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pinned {
		return
	}
	r.titlePath = slices.Clone(path)
	r.pinned = true
}

// FullTitle joins the title path with spaces.
func (r *Runnable) FullTitle() string {
	return strings.Join(r.TitlePath(), " ")
}

// State returns the run state.
func (r *Runnable) State() RunnableState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetState sets the run state.
func (r *Runnable) SetState(s RunnableState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}
