package dispatch

import (
	"context"
	"sync"
)

// Future is the completion handle of a submitted task
type Future struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewFuture creates a pending future
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done is closed once the task has finished
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes or ctx ends
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task result, nil while the task is pending
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// complete records the result; only the first call counts
func (f *Future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}
