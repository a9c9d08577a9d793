package workerpool

import (
	"context"
	"sync"
)

// Future is the eventual outcome of a submitted task
type Future struct {
	name string

	mu        sync.Mutex
	done      chan struct{}
	err       error
	callbacks []func(*Future)
}

func newFuture(name string) *Future {
	return &Future{name: name, done: make(chan struct{})}
}

// Resolved returns a Future that has already completed with err. Fakes of
// Submitter use it to hand back outcomes without running anything.
func Resolved(name string, err error) *Future {
	f := newFuture(name)
	f.complete(err)
	return f
}

// Name is the label the task was submitted under
func (f *Future) Name() string {
	return f.name
}

// Done is closed when the task has finished
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the task's error, or nil if it succeeded or is still running
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Wait blocks until the task finishes or ctx is done
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnComplete registers cb to run once the task finishes. If it already has,
// cb runs immediately on the calling goroutine.
func (f *Future) OnComplete(cb func(*Future)) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		cb(f)
		return
	default:
	}
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()
}

func (f *Future) complete(err error) {
	f.mu.Lock()
	f.err = err
	close(f.done)
	callbacks := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(f)
	}
}
