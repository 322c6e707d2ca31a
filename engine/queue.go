package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStopped is returned by Queue.Run when the queue was stopped.
var ErrStopped = errors.New("command queue stopped")

// CommandFunc implements a named command.
// It receives the subject yielded by the previous command and returns the
// new subject.
type CommandFunc func(ctx context.Context, e *Engine, subject any, args []any) (any, error)

// Command is one enqueued command invocation.
type Command struct {
	// Name is the registered command name.
	Name string
	// Args are the invocation arguments.
	Args []any

	run func(ctx context.Context, subject any) (any, error)
}

// CommandError reports a queued command failure.
type CommandError struct {
	// Name is the failing command.
	Name string
	// Index is the command's position in the queue.
	Index int
	// Err is the underlying failure.
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q (#%d) failed: %v", e.Name, e.Index, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsCommandError returns true if err is or wraps a *CommandError.
func IsCommandError(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}

// Queue is the ordered list of commands enqueued by a callback.
// Commands run strictly in order; each one receives the previous subject.
type Queue struct {
	mu       sync.Mutex
	commands []*Command
	stopped  bool
	cancel   context.CancelFunc
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a command.
func (q *Queue) Enqueue(cmd *Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.commands = append(q.commands, cmd)
}

// Len returns the number of enqueued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Names returns the enqueued command names in order.
func (q *Queue) Names() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	names := make([]string, len(q.commands))
	for i, c := range q.commands {
		names[i] = c.Name
	}
	return names
}

// Run executes the commands in order and returns the last subject.
// Commands enqueued while the queue runs are executed too.
//
// Errors:
//   - ErrStopped: Stop was called before or during the run
//   - *CommandError: a command failed
func (q *Queue) Run(ctx context.Context) (any, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil, ErrStopped
	}
	q.cancel = cancel
	q.mu.Unlock()

	var subject any
	for i := 0; ; i++ {
		q.mu.Lock()
		if q.stopped {
			q.mu.Unlock()
			return subject, ErrStopped
		}
		if i >= len(q.commands) {
			q.mu.Unlock()
			return subject, nil
		}
		cmd := q.commands[i]
		q.mu.Unlock()

		next, err := cmd.run(runCtx, subject)
		if err != nil {
			if q.isStopped() {
				return subject, ErrStopped
			}
			return subject, &CommandError{Name: cmd.Name, Index: i, Err: err}
		}
		subject = next
	}
}

// Stop halts the queue. A running command sees its context cancelled and no
// further commands start.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	if q.cancel != nil {
		q.cancel()
	}
}

// Reset empties the queue and clears the stopped flag.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		q.cancel()
	}
	q.commands = nil
	q.stopped = false
	q.cancel = nil
}

func (q *Queue) isStopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}
