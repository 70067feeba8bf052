package mediator

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// Future is the pending outcome of an asynchronous dispatch.
type Future[T any] struct {
	done    chan struct{}
	value   T
	err     error
	catcher panics.Catcher
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func resolvedFuture[T any](value T, err error) *Future[T] {
	f := newFuture[T]()
	f.complete(value, err)
	return f
}

// goFuture runs fn on its own goroutine. A panic in fn is caught and raised
// again on the goroutine that reads the result.
func goFuture[T any](fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	go func() {
		var (
			value T
			err   error
		)
		f.catcher.Try(func() {
			value, err = fn()
		})
		f.complete(value, err)
	}()
	return f
}

func (f *Future[T]) complete(value T, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// Done is closed once the dispatch has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the dispatch finishes or ctx is done. Giving up on the
// wait does not stop the dispatch itself. If a handler panicked, Await panics
// with the *panics.Recovered holding the original value.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.catcher.Repanic()
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result blocks until the dispatch finishes. It panics like Await.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	f.catcher.Repanic()
	return f.value, f.err
}
