package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/cuemby/heartbeat/pkg/metrics"
	"golang.org/x/sync/semaphore"
)

var ErrPoolClosed = errors.New("worker pool is shut down")

// Task is a unit of work. ctx is cancelled when the pool shuts down.
type Task func(ctx context.Context) error

// Submitter is the part of Pool that routers and schedulers depend on
type Submitter interface {
	Submit(name string, task Task) *Future
}

// PanicError is the error a Future carries when its task panicked
type PanicError struct {
	Value    any
	Location string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Pool runs tasks on their own goroutines, at most size at a time. Submit
// never blocks; tasks beyond the limit wait for a slot.
type Pool struct {
	sem    *semaphore.Weighted
	size   int64
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a pool running at most size tasks concurrently
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   int64(size),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Size returns the concurrency limit
func (p *Pool) Size() int {
	return int(p.size)
}

// Submit schedules task and returns a Future for its outcome. A pool that has
// been shut down returns an already failed Future.
func (p *Pool) Submit(name string, task Task) *Future {
	f := newFuture(name)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		f.complete(ErrPoolClosed)
		return f
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			f.complete(err)
			return
		}
		metrics.PoolTasksActive.Inc()

		err := run(p.ctx, task)

		metrics.PoolTasksActive.Dec()
		p.sem.Release(1)
		f.complete(err)
	}()

	return f
}

// Shutdown stops accepting tasks, cancels the context handed to running
// tasks and waits for them to return or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run calls task, converting a panic into a PanicError
func run(ctx context.Context, task Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Location: panicLocation()}
		}
	}()
	return task(ctx)
}

// panicLocation returns file:line of the frame that panicked. It must be
// called from the deferred recover.
func panicLocation() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	panicking := false
	for {
		frame, more := frames.Next()
		if frame.Function == "runtime.gopanic" {
			panicking = true
		} else if panicking && !strings.HasPrefix(frame.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", frame.File, frame.Line)
		}
		if !more {
			return "unknown"
		}
	}
}
