package scheduler

import (
	"context"
	"errors"
)

// Future is the pending result of an invocation.
type Future struct {
	id   string
	done chan struct{}
	res  any
	err  error
}

func newFuture(id string) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

func failedFuture(err error) *Future {
	f := newFuture("")
	f.resolve(nil, err)
	return f
}

func (f *Future) resolve(res any, err error) {
	f.res, f.err = res, err
	close(f.done)
}

// ID returns the invocation id, empty if the invocation was rejected before queueing.
func (f *Future) ID() string {
	return f.id
}

// Done is closed once the action settled and its locks were released.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the action settles or ctx is done.
// Giving up on ctx does not cancel the action.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitAll waits for every future and joins their errors.
func WaitAll(ctx context.Context, futures ...*Future) error {
	var errs []error
	for _, f := range futures {
		if _, err := f.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
