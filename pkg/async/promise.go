// Package async provides the Promise/await/void primitives. The traversal
// engine does not use this package; its callbacks run synchronously and
// it has no expand hooks. There is no green-thread scheduler in Go, so
// Await selects, in the calling goroutine, between a settlement channel
// and context cancellation, checking ctx.Done() at the one suspension
// point rather than relying on preemption.
package async

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/pathgraph/entitygraph"
)

// ErrDisposed is the rejection error of a Promise disposed while still
// pending: Await returns it and CatchDo callbacks receive it.
var ErrDisposed = errors.New("async: promise disposed before settlement")

// ErrAlreadySettled is returned by Resolve/Reject on a Promise that has
// already fulfilled or rejected.
var ErrAlreadySettled = errors.New("async: promise already settled")

type state int

const (
	pending state = iota
	fulfilled
	rejected
)

// Promise is a single-assignment future: it starts pending, settles
// exactly once (via Resolve or Reject), and fans out to any
// Then/Catch/Await registered before or after settlement. It embeds
// entitygraph.Disposable; disposing a pending Promise rejects it with
// ErrDisposed.
type Promise[T any] struct {
	entitygraph.Disposable

	mu    sync.Mutex
	state state
	value T
	err   error

	onFulfill []func(T)
	onReject  []func(error)
}

// New creates a pending Promise.
func New[T any]() *Promise[T] {
	p := &Promise[T]{}
	p.OnDispose(func() {
		p.reject(ErrDisposed)
	})
	return p
}

// Resolved returns an already-fulfilled Promise, for call sites that have
// a value in hand but want a uniform Promise-returning signature.
func Resolved[T any](v T) *Promise[T] {
	p := New[T]()
	p.Resolve(v)
	return p
}

// Rejected returns an already-rejected Promise.
func Rejected[T any](err error) *Promise[T] {
	p := New[T]()
	p.Reject(err)
	return p
}

// Resolve fulfills the promise with v. A no-op (returns ErrAlreadySettled)
// if the promise already settled.
func (p *Promise[T]) Resolve(v T) error {
	p.mu.Lock()
	if p.state != pending {
		p.mu.Unlock()
		return ErrAlreadySettled
	}
	p.state = fulfilled
	p.value = v
	callbacks := append([]func(T){}, p.onFulfill...)
	p.onFulfill = nil
	p.onReject = nil
	p.mu.Unlock()

	for _, cb := range callbacks {
		entitygraph.SafeCall("promise-then", func() { cb(v) })
	}
	return nil
}

// Reject settles the promise with an error.
func (p *Promise[T]) Reject(err error) error {
	return p.reject(err)
}

func (p *Promise[T]) reject(err error) error {
	p.mu.Lock()
	if p.state != pending {
		p.mu.Unlock()
		return ErrAlreadySettled
	}
	p.state = rejected
	p.err = err
	callbacks := append([]func(error){}, p.onReject...)
	p.onFulfill = nil
	p.onReject = nil
	p.mu.Unlock()

	for _, cb := range callbacks {
		entitygraph.SafeCall("promise-catch", func() { cb(err) })
	}
	return nil
}

// ThenDo registers fn to run with the fulfilled value. If the promise is
// already fulfilled, fn runs synchronously and immediately.
func (p *Promise[T]) ThenDo(fn func(T)) {
	p.mu.Lock()
	switch p.state {
	case fulfilled:
		v := p.value
		p.mu.Unlock()
		entitygraph.SafeCall("promise-then", func() { fn(v) })
		return
	case rejected:
		p.mu.Unlock()
		return
	default:
		p.onFulfill = append(p.onFulfill, fn)
		p.mu.Unlock()
	}
}

// CatchDo registers fn to run with the rejection error. If the promise is
// already rejected, fn runs synchronously and immediately.
func (p *Promise[T]) CatchDo(fn func(error)) {
	p.mu.Lock()
	switch p.state {
	case rejected:
		err := p.err
		p.mu.Unlock()
		entitygraph.SafeCall("promise-catch", func() { fn(err) })
		return
	case fulfilled:
		p.mu.Unlock()
		return
	default:
		p.onReject = append(p.onReject, fn)
		p.mu.Unlock()
	}
}

// Await blocks the calling goroutine until p settles or ctx is done,
// whichever comes first: yield on a pending promise, resume on
// settlement, expressed with Go's native concurrency instead of
// user-space coroutines.
func Await[T any](ctx context.Context, p *Promise[T]) (T, error) {
	done := make(chan struct{})
	var value T
	var err error

	p.ThenDo(func(v T) {
		value = v
		close(done)
	})
	p.CatchDo(func(e error) {
		err = e
		select {
		case <-done:
		default:
			close(done)
		}
	})

	select {
	case <-done:
		return value, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Settle runs fn and converts a panic into an error, returning
// (value, err) instead of propagating.
func Settle[T any](fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errPanic(r)
		}
	}()
	return fn()
}

func errPanic(r any) error {
	return &PanicError{Recovered: r, Stack: debug.Stack()}
}

// PanicError wraps a panic recovered by Settle or Void.
type PanicError struct {
	Recovered any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return "async: recovered panic: " + errorString(e.Recovered)
}

func errorString(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "non-error panic value"
}

// Void runs fn as a detached top-level task on its own goroutine,
// catching and logging any error or panic rather than propagating it.
// The caller does not wait for fn; nothing else in this module calls Void.
func Void(fn func() error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Default().Warn("async: unhandled panic in void task",
					"error", errPanic(r).Error())
			}
		}()
		if err := fn(); err != nil {
			slog.Default().Warn("async: unhandled error in void task", "error", err)
		}
	}()
}
