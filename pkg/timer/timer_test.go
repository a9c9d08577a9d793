package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOneShot(t *testing.T) {
	var calls atomic.Int32
	tm := New(10*time.Millisecond, false, func() { calls.Add(1) })
	tm.Start()

	select {
	case <-tm.Done():
	case <-time.After(time.Second):
		t.Fatal("timer did not finish")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestRepeating(t *testing.T) {
	var calls atomic.Int32
	tm := New(5*time.Millisecond, true, func() { calls.Add(1) })
	tm.Start()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	tm.Stop()
	<-tm.Done()

	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "no calls after stop")
}

func TestStopBeforeFire(t *testing.T) {
	var calls atomic.Int32
	tm := New(time.Hour, false, func() { calls.Add(1) })
	tm.Start()
	tm.Stop()

	select {
	case <-tm.Done():
	case <-time.After(time.Second):
		t.Fatal("timer did not exit after stop")
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestStopIdempotent(t *testing.T) {
	tm := New(time.Hour, true, func() {})
	tm.Stop()
	tm.Stop()
	tm.Start() // no-op after stop

	select {
	case <-tm.Done():
	default:
		t.Fatal("Done should be closed for a timer stopped before start")
	}
}

func TestIntervalFuncEvaluatedPerCycle(t *testing.T) {
	var evaluated atomic.Int32
	var calls atomic.Int32

	tm := NewFunc(func() time.Duration {
		evaluated.Add(1)
		return time.Millisecond
	}, true, func() { calls.Add(1) })
	tm.Start()
	defer tm.Stop()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, evaluated.Load(), calls.Load())
}
