package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, timer.Duration(), first)
}

func TestTimerObserveDuration(t *testing.T) {
	scans := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_scan_duration_seconds",
		Help:    "Scan duration for tests",
		Buckets: prometheus.DefBuckets,
	})

	assert.NotPanics(t, func() { NewTimer().ObserveDuration(scans) })
	assert.Equal(t, 1, testutil.CollectAndCount(scans))
}

func TestTimerObserveDurationVec(t *testing.T) {
	requests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_request_duration_seconds",
		Help: "Request duration for tests",
	}, []string{"method"})

	timer := NewTimer()
	timer.ObserveDurationVec(requests, "GET")
	timer.ObserveDurationVec(requests, "HEAD")

	assert.Equal(t, 2, testutil.CollectAndCount(requests))
}
