// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

// Package task provides the concurrent fan-out/fan-in primitive that backs
// every multi-record graph operation, plus an explicit async entry point for
// call sites that want a handle instead of a blocking call.
package task

import (
	"context"

	"golang.org/x/sync/errgroup"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
)

// Func is a deferred unit of work producing a typed result.
type Func[T any] func(ctx context.Context) (T, error)

// Batch collects deferred operations and executes them concurrently on
// Gather. The zero value is ready to use.
type Batch[T any] struct {
	fns []Func[T]
}

// Add appends a task to the batch and returns the batch for chaining.
func (b *Batch[T]) Add(fn Func[T]) *Batch[T] {
	b.fns = append(b.fns, fn)
	return b
}

// Len reports the number of queued tasks.
func (b *Batch[T]) Len() int { return len(b.fns) }

// Gather starts every queued task concurrently and waits for all of them.
//
// The first failure cancels the context passed to the remaining tasks; every
// task is awaited before Gather returns, so no task outlives its caller's
// view of the failure. Exactly one failure propagates unwrapped. Two or more
// propagate as a single aggregate carrying every underlying error. An empty
// batch returns immediately.
func (b *Batch[T]) Gather(ctx context.Context) ([]T, error) {
	if len(b.fns) == 0 {
		return nil, nil
	}

	results := make([]T, len(b.fns))
	errs := make([]error, len(b.fns))

	g, gctx := errgroup.WithContext(ctx)
	for i, fn := range b.fns {
		g.Go(func() error {
			v, err := fn(gctx)
			if err != nil {
				errs[i] = err
				return err
			}
			results[i] = v
			return nil
		})
	}
	// Wait returns the first error; the full set is in errs.
	_ = g.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	switch len(failed) {
	case 0:
		return results, nil
	case 1:
		return nil, failed[0]
	default:
		return nil, linerr.Join(failed...)
	}
}

// Future is the handle returned by Go. Await blocks until the task finishes.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go runs fn on its own goroutine and returns a handle to its result. It is
// the always-concurrent counterpart of calling fn directly.
func Go[T any](ctx context.Context, fn Func[T]) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Await blocks until the task completes and returns its result.
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.val, f.err
}

// Done is closed when the task has completed.
func (f *Future[T]) Done() <-chan struct{} { return f.done }
