package monitor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/workerpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPool keeps submissions instead of running them
type recordingPool struct {
	mu       sync.Mutex
	names    []string
	tasks    []workerpool.Task
	shutdown bool
	result   error
}

func (p *recordingPool) Submit(name string, task workerpool.Task) *workerpool.Future {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, name)
	p.tasks = append(p.tasks, task)
	return workerpool.Resolved(name, p.result)
}

func (p *recordingPool) Shutdown(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdown = true
	return nil
}

func (p *recordingPool) submitted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.names...)
}

func noop(context.Context, events.Emit) error { return nil }

func TestAddAfterStart(t *testing.T) {
	h := NewHandler(&recordingPool{}, func(*events.Event) {}, time.Hour)
	require.NoError(t, h.Start())
	defer h.Terminate(context.Background())

	err := h.AddPeriodicMonitor("late", noop)
	assert.ErrorIs(t, err, ErrIllegalState)

	err = h.AddRealtimeMonitor("late", noop)
	assert.ErrorIs(t, err, ErrIllegalState)
}

func TestStartTwice(t *testing.T) {
	h := NewHandler(&recordingPool{}, func(*events.Event) {}, time.Hour)
	require.NoError(t, h.Start())
	defer h.Terminate(context.Background())

	assert.ErrorIs(t, h.Start(), ErrIllegalState)
}

func TestScanSubmitsEachPeriodicOnce(t *testing.T) {
	pool := &recordingPool{}
	h := NewHandler(pool, func(*events.Event) {}, time.Hour)

	require.NoError(t, h.AddPeriodicMonitor("disks", noop))
	require.NoError(t, h.AddPeriodicMonitor("services", noop))
	require.NoError(t, h.AddRealtimeMonitor("pulse", noop))

	h.Scan()
	assert.Equal(t, []string{"disks", "services"}, pool.submitted())

	h.Scan()
	assert.Len(t, pool.submitted(), 4)
}

func TestStartSubmitsRealtimeThenScans(t *testing.T) {
	pool := &recordingPool{}
	h := NewHandler(pool, func(*events.Event) {}, time.Hour)

	require.NoError(t, h.AddRealtimeMonitor("pulse", noop))
	require.NoError(t, h.AddPeriodicMonitor("disks", noop))

	require.NoError(t, h.Start())
	defer h.Terminate(context.Background())

	assert.Equal(t, StateStarted, h.State())
	assert.Equal(t, []string{"pulse", "disks"}, pool.submitted())
}

func TestProducerReceivesEmit(t *testing.T) {
	pool := &recordingPool{}

	var got []*events.Event
	h := NewHandler(pool, func(e *events.Event) { got = append(got, e) }, time.Hour)
	require.NoError(t, h.AddPeriodicMonitor("producer", func(ctx context.Context, emit events.Emit) error {
		emit(events.MustNew("found", "something"))
		return nil
	}))

	h.Scan()
	require.Len(t, pool.tasks, 1)
	require.NoError(t, pool.tasks[0](context.Background()))

	require.Len(t, got, 1)
	assert.Equal(t, "found", got[0].Title)
}

func TestPeriodicRepeats(t *testing.T) {
	pool := &recordingPool{}
	h := NewHandler(pool, func(*events.Event) {}, 5*time.Millisecond)
	require.NoError(t, h.AddPeriodicMonitor("disks", noop))

	require.NoError(t, h.Start())
	assert.Eventually(t, func() bool { return len(pool.submitted()) >= 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Terminate(context.Background()))
	assert.Equal(t, StateTerminated, h.State())
	assert.True(t, pool.shutdown)
	<-h.timer.Done()

	n := len(pool.submitted())
	h.Scan()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, len(pool.submitted()), "no scans after terminate")
}

func TestProducerFailureLogged(t *testing.T) {
	var buf bytes.Buffer
	pool := &recordingPool{result: errors.New("smartctl missing")}
	h := NewHandler(pool, func(*events.Event) {}, time.Hour)
	h.SetLogger(zerolog.New(&buf))

	require.NoError(t, h.AddPeriodicMonitor("disks", noop))
	require.NoError(t, h.AddPeriodicMonitor("services", noop))

	h.Scan()

	// both producers were still submitted
	assert.Len(t, pool.submitted(), 2)
	assert.Equal(t, 2, strings.Count(buf.String(), "smartctl missing"))
	assert.Contains(t, buf.String(), `"producer":"disks"`)
}

func TestCancelledRealtimeNotLogged(t *testing.T) {
	var buf bytes.Buffer
	pool := &recordingPool{result: context.Canceled}
	h := NewHandler(pool, func(*events.Event) {}, time.Hour)
	h.SetLogger(zerolog.New(&buf))
	require.NoError(t, h.AddRealtimeMonitor("pulse", noop))

	require.NoError(t, h.Start())
	defer h.Terminate(context.Background())

	assert.NotContains(t, buf.String(), `"level":"error"`)
}

func TestRealtimeRunsUntilTerminate(t *testing.T) {
	pool := workerpool.New(2)
	h := NewHandler(pool, func(*events.Event) {}, time.Hour)

	stopped := make(chan struct{})
	require.NoError(t, h.AddRealtimeMonitor("loop", func(ctx context.Context, emit events.Emit) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	}))

	require.NoError(t, h.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Terminate(ctx))

	select {
	case <-stopped:
	default:
		t.Fatal("realtime producer still running after terminate")
	}
}

func TestCounts(t *testing.T) {
	h := NewHandler(&recordingPool{}, func(*events.Event) {}, 0)
	require.NoError(t, h.AddRealtimeMonitor("a", noop))
	require.NoError(t, h.AddPeriodicMonitor("b", noop))
	require.NoError(t, h.AddPeriodicMonitor("c", noop))

	rt, per := h.Counts()
	assert.Equal(t, 1, rt)
	assert.Equal(t, 2, per)
	assert.Equal(t, DefaultInterval, h.interval)
}
