package eval

import (
	"context"
	"sync"
)

// Thenable is a value that settles later.
type Thenable interface {
	// Await blocks until the value settles or ctx is done.
	Await(ctx context.Context) (any, error)
}

// Promise is a Thenable settled once by Resolve or Reject.
type Promise struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// NewPromise creates a pending promise.
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolved returns a promise already fulfilled with v.
func Resolved(v any) *Promise {
	p := NewPromise()
	p.Resolve(v)
	return p
}

// Rejected returns a promise already rejected with err.
func Rejected(err error) *Promise {
	p := NewPromise()
	p.Reject(err)
	return p
}

// Go runs fn in a goroutine and settles the promise with its result.
func Go(fn func() (any, error)) *Promise {
	p := NewPromise()
	go func() {
		v, err := fn()
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(v)
	}()
	return p
}

// Resolve fulfils the promise. Later calls are ignored.
func (p *Promise) Resolve(v any) {
	p.once.Do(func() {
		p.value = v
		close(p.done)
	})
}

// Reject rejects the promise. Later calls are ignored.
func (p *Promise) Reject(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Await implements Thenable.
func (p *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
