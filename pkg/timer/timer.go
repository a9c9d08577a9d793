package timer

import (
	"sync"
	"time"
)

// Timer calls fn after an interval, once or repeatedly, until stopped. fn
// runs on the timer's own goroutine, so it should be short or hand its work
// off elsewhere.
type Timer struct {
	interval func() time.Duration
	repeat   bool
	fn       func()

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a timer with a fixed interval
func New(interval time.Duration, repeat bool, fn func()) *Timer {
	return NewFunc(func() time.Duration { return interval }, repeat, fn)
}

// NewFunc creates a timer whose interval is recomputed before every wait,
// which lets callers randomize the period of each cycle
func NewFunc(interval func() time.Duration, repeat bool, fn func()) *Timer {
	return &Timer{
		interval: interval,
		repeat:   repeat,
		fn:       fn,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins counting down. Starting twice, or after Stop, does nothing.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started || t.stopped {
		return
	}
	t.started = true
	go t.run()
}

// Stop cancels any pending call. It does not wait for a call already in
// progress; use Done for that.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.stopped = true
	close(t.stopCh)
	if !t.started {
		close(t.doneCh)
	}
}

// Done is closed once the timer goroutine has exited
func (t *Timer) Done() <-chan struct{} {
	return t.doneCh
}

// run is the timer loop
func (t *Timer) run() {
	defer close(t.doneCh)

	for {
		wait := time.NewTimer(t.interval())

		select {
		case <-wait.C:
		case <-t.stopCh:
			wait.Stop()
			return
		}

		// Stop may race with expiry
		select {
		case <-t.stopCh:
			return
		default:
		}

		t.fn()

		if !t.repeat {
			return
		}
	}
}
