package routing

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/heartbeat/pkg/cache"
	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, store storage.Store) *RateLimitHandler {
	t.Helper()
	if store == nil {
		var err error
		store, err = storage.NewFileStore(t.TempDir())
		require.NoError(t, err)
	}
	return NewRateLimitHandler(
		cache.New(PreviousCacheName, store, nil),
		cache.New(TimeCacheName, store, nil),
	)
}

func event(t *testing.T, title string, topic events.Topic) *events.Event {
	t.Helper()
	e, err := events.New(title, "m", events.WithType(topic), events.WithSource("test.Producer"))
	require.NoError(t, err)
	return e
}

func TestAllowEvent(t *testing.T) {
	tests := []struct {
		name  string
		first *events.Event
		next  *events.Event
		want  bool
	}{
		{
			name:  "repeat from same source rejected",
			first: event(t, "disk full", events.TopicWarning),
			next:  event(t, "disk full", events.TopicWarning),
			want:  false,
		},
		{
			name:  "different event from same source allowed",
			first: event(t, "disk full", events.TopicWarning),
			next:  event(t, "disk ok", events.TopicWarning),
			want:  true,
		},
		{
			name:  "heartbeat never suppressed",
			first: event(t, "beat", events.TopicHeartbeat),
			next:  event(t, "beat", events.TopicHeartbeat),
			want:  true,
		},
		{
			name:  "startup never suppressed",
			first: event(t, "up", events.TopicStartup),
			next:  event(t, "up", events.TopicStartup),
			want:  true,
		},
		{
			name:  "ack never suppressed",
			first: event(t, "ack", events.TopicAck),
			next:  event(t, "ack", events.TopicAck),
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := newLimiter(t, nil)

			assert.True(t, limiter.AllowEvent(tt.first), "first event from a new source is always allowed")
			assert.Equal(t, tt.want, limiter.AllowEvent(tt.next))
		})
	}
}

func TestAllowEventOneTime(t *testing.T) {
	limiter := newLimiter(t, nil)

	e := event(t, "disk full", events.TopicWarning)
	require.True(t, limiter.AllowEvent(e))

	again := event(t, "disk full", events.TopicWarning)
	again.OneTime = true
	assert.True(t, limiter.AllowEvent(again))
}

func TestAllowEventRecordsState(t *testing.T) {
	limiter := newLimiter(t, nil)
	e := event(t, "disk full", events.TopicWarning)

	require.True(t, limiter.AllowEvent(e))

	hash, ok := limiter.LastHash("test.Producer")
	require.True(t, ok)
	assert.Equal(t, e.ContentHash(), hash)
	assert.False(t, limiter.EventDelayPassed(e))
}

func TestSuppressionSurvivesRestart(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.True(t, newLimiter(t, store).AllowEvent(event(t, "disk full", events.TopicWarning)))

	restarted := newLimiter(t, store)
	assert.False(t, restarted.AllowEvent(event(t, "disk full", events.TopicWarning)))
}

func TestEventDelayPassed(t *testing.T) {
	limiter := newLimiter(t, nil)
	limiter.SetStrategy(events.TopicWarning, limiter.EventDelayPassed)

	e := event(t, "disk full", events.TopicWarning)
	require.True(t, limiter.AllowEvent(e))

	// same hash, within the window
	assert.False(t, limiter.AllowEvent(event(t, "disk full", events.TopicWarning)))

	limiter.now = func() time.Time { return e.Timestamp.Add(2*time.Hour + time.Second) }
	assert.True(t, limiter.AllowEvent(event(t, "disk full", events.TopicWarning)))
}

func TestSetDelayWindow(t *testing.T) {
	limiter := newLimiter(t, nil)
	limiter.SetDelayWindow(time.Minute)

	e := event(t, "disk full", events.TopicWarning)
	require.True(t, limiter.AllowEvent(e))

	limiter.now = func() time.Time { return e.Timestamp.Add(59 * time.Second) }
	assert.False(t, limiter.EventDelayPassed(e))

	limiter.now = func() time.Time { return e.Timestamp.Add(61 * time.Second) }
	assert.True(t, limiter.EventDelayPassed(e))
}

func TestAllowEventConcurrentDuplicates(t *testing.T) {
	tests := []struct {
		name     string
		strategy func(*RateLimitHandler) Strategy
	}{
		{"different from previous", func(h *RateLimitHandler) Strategy { return h.EventDifferentFromPrevious }},
		{"delay passed", func(h *RateLimitHandler) Strategy { return h.EventDelayPassed }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := newLimiter(t, nil)
			limiter.SetStrategy(events.TopicWarning, tt.strategy(limiter))

			const n = 32
			batch := make([]*events.Event, n)
			for i := range batch {
				batch[i] = event(t, "disk full", events.TopicWarning)
			}

			var allowed atomic.Int32
			var wg sync.WaitGroup
			start := make(chan struct{})
			for _, e := range batch {
				wg.Add(1)
				go func(e *events.Event) {
					defer wg.Done()
					<-start
					if limiter.AllowEvent(e) {
						allowed.Add(1)
					}
				}(e)
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int32(1), allowed.Load())
		})
	}
}
