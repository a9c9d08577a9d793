/*
Package workerpool runs named tasks with bounded concurrency and reports
their outcome, recovered panics included, through futures.

Both the event router and the monitor handler submit their callbacks here.
Submit never blocks the caller: a task waits on a weighted semaphore in its
own goroutine, so a slow subscriber delays only itself.

# Architecture

	┌──────────────────── WORKER POOL ────────────────────┐
	│                                                      │
	│  Submit(name, task) ──► Future (returned at once)    │
	│          │                                           │
	│          ▼                                           │
	│  ┌──────────────────────────────┐                    │
	│  │ semaphore.Weighted(size)     │  one slot per task │
	│  └──────────────┬───────────────┘                    │
	│                 ▼                                    │
	│  task(ctx) ── panic? ──► PanicError{Location}        │
	│                 │                                    │
	│                 ▼                                    │
	│  Future.complete(err) ──► OnComplete callbacks       │
	│                                                      │
	│  Shutdown(ctx): cancel task ctx, join outstanding    │
	└──────────────────────────────────────────────────────┘

Realtime producers hold their slot for the life of the process, so the
daemon sizes the pool to cover them plus the periodic producers and
subscribers.

# Usage

	pool := workerpool.New(16)
	f := pool.Submit("pulse.Monitor.Receive", func(ctx context.Context) error {
		return monitor.Receive(ctx, e)
	})
	f.OnComplete(func(f *workerpool.Future) {
		if err := f.Err(); err != nil {
			logger.Error().Err(err).Msg("subscriber failed")
		}
	})

	defer pool.Shutdown(ctx)
*/
package workerpool
