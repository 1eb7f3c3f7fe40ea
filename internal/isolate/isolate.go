// Package isolate runs a function in its own execution context and hands
// back a single value through a Future.
//
// The function only sees the arguments it was given and the context it is
// passed; the caller only sees the returned value. Cancellation is a
// single best-effort attempt: the context is cancelled, but a function that
// ignores it keeps running and its value is simply never read.
package isolate

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrCancelled is returned by Value for a cancelled Future.
	ErrCancelled = errors.New("isolated context was cancelled")

	// ErrNotDone is returned by Value before the function returned.
	ErrNotDone = errors.New("isolated context is still running")
)

// PanicError wraps a value recovered from a panicking function.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("isolated context panicked: %v", e.Value)
}

// Func is the body of an isolated context.
type Func func(ctx context.Context) (any, error)

// Future is the handle of one isolated context.
type Future struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	value     any
	err       error
	cancelled bool
}

// Run starts fn in a new goroutine with a context derived from parent.
func Run(parent context.Context, fn Func) *Future {
	ctx, cancel := context.WithCancel(parent)
	f := &Future{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(f.done)
		defer cancel()

		v, err := invoke(ctx, fn)

		f.mu.Lock()
		f.value, f.err = v, err
		f.mu.Unlock()
	}()

	return f
}

func invoke(ctx context.Context, fn Func) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, &PanicError{Value: r}
		}
	}()
	return fn(ctx)
}

// Call runs fn on the caller's goroutine and returns the finished Future.
// Panics are recovered the same way Run does.
func Call(parent context.Context, fn Func) *Future {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	return Resolved(invoke(ctx, fn))
}

// Resolved returns a Future that already finished with v and err. It is
// used when the body ran synchronously in the caller.
func Resolved(v any, err error) *Future {
	f := &Future{cancel: func() {}, done: make(chan struct{}), value: v, err: err}
	close(f.done)
	return f
}

// Done reports whether the function returned.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait returns a channel closed when the function returned.
func (f *Future) Wait() <-chan struct{} {
	return f.done
}

// Value returns the function's result. It does not block.
func (f *Future) Value() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelled {
		return nil, ErrCancelled
	}
	if !f.Done() {
		return nil, ErrNotDone
	}
	return f.value, f.err
}

// Cancel makes one attempt to stop the context. It returns false if the
// function had already returned or the Future was already cancelled.
func (f *Future) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelled || f.Done() {
		return false
	}
	f.cancelled = true
	f.cancel()
	return true
}

// Cancelled reports whether Cancel succeeded.
func (f *Future) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}
