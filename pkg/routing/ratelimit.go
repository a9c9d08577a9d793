package routing

import (
	"sync"
	"time"

	"github.com/cuemby/heartbeat/pkg/cache"
	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/rs/zerolog"
)

const (
	// PreviousCacheName maps event source to the hash of its last event
	PreviousCacheName = "router-event-previous"

	// TimeCacheName maps event hash to the epoch it was last allowed
	TimeCacheName = "router-event-time"

	// DefaultDelayWindow is how long EventDelayPassed suppresses a repeat
	DefaultDelayWindow = 2 * time.Hour
)

// Strategy decides whether an event may be forwarded
type Strategy func(e *events.Event) bool

// RateLimitHandler decides per topic whether a new event is forwarded or
// suppressed as a repeat. Allowed events are recorded in two caches that
// are flushed to disk, so suppression survives restarts.
type RateLimitHandler struct {
	mu          sync.Mutex
	strategies  map[events.Topic]Strategy
	eventCache  *cache.Cache
	timeCache   *cache.Cache
	delayWindow time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

// NewRateLimitHandler creates a handler with the default strategies:
// liveness topics are always allowed, everything else must differ from the
// previous event of the same source.
func NewRateLimitHandler(eventCache, timeCache *cache.Cache) *RateLimitHandler {
	h := &RateLimitHandler{
		eventCache:  eventCache,
		timeCache:   timeCache,
		delayWindow: DefaultDelayWindow,
		now:         time.Now,
		logger:      log.WithComponent("ratelimit"),
	}

	h.strategies = map[events.Topic]Strategy{
		events.TopicWarning:   h.EventDifferentFromPrevious,
		events.TopicInfo:      h.EventDifferentFromPrevious,
		events.TopicDebug:     h.EventDifferentFromPrevious,
		events.TopicVirt:      h.EventDifferentFromPrevious,
		events.TopicHeartbeat: AlwaysAllow,
		events.TopicStartup:   AlwaysAllow,
		events.TopicAck:       AlwaysAllow,
	}
	return h
}

// SetStrategy replaces the strategy for a topic
func (h *RateLimitHandler) SetStrategy(topic events.Topic, s Strategy) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.strategies[topic] = s
}

// SetDelayWindow changes the window used by EventDelayPassed
func (h *RateLimitHandler) SetDelayWindow(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delayWindow = d
}

// AlwaysAllow is the strategy for topics that must never be suppressed
func AlwaysAllow(*events.Event) bool {
	return true
}

// AllowEvent reports whether e should be forwarded. Evaluating and
// recording happen under one lock, so two identical events racing through
// cannot both be allowed.
func (h *RateLimitHandler) AllowEvent(e *events.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	allow := e.OneTime
	if !allow {
		strategy, ok := h.strategies[e.Type]
		if !ok {
			strategy = h.EventDifferentFromPrevious
		}
		allow = strategy(e)
	}

	if allow {
		h.logEvent(e)
	}
	return allow
}

// EventDifferentFromPrevious is true unless the last event recorded for
// e's source has the same content hash. A source seen for the first time
// is always different.
func (h *RateLimitHandler) EventDifferentFromPrevious(e *events.Event) bool {
	var previous string
	if err := h.eventCache.Read(e.Source, &previous); err != nil {
		return true
	}
	return previous != e.ContentHash()
}

// EventDelayPassed is true unless an identical event was allowed within
// the delay window
func (h *RateLimitHandler) EventDelayPassed(e *events.Event) bool {
	var lastSeen float64
	if err := h.timeCache.Read(e.ContentHash(), &lastSeen); err != nil {
		return true
	}

	seen := time.Unix(0, int64(lastSeen*float64(time.Second)))
	return h.now().Sub(seen) > h.delayWindow
}

// logEvent records e as the latest event of its source and the time its
// hash was last seen, then flushes both caches
func (h *RateLimitHandler) logEvent(e *events.Event) {
	hash := e.ContentHash()

	if err := h.timeCache.Write(hash, e.When()); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to record event time")
	}
	if err := h.eventCache.Write(e.Source, hash); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to record event hash")
	}

	for _, c := range []*cache.Cache{h.timeCache, h.eventCache} {
		if err := c.WriteToDisk(); err != nil {
			h.logger.Warn().Err(err).Str("cache", c.Name()).Msg("Failed to flush rate limit cache")
		}
	}
}

// LastHash returns the hash recorded for source, if any
func (h *RateLimitHandler) LastHash(source string) (string, bool) {
	var hash string
	if err := h.eventCache.Read(source, &hash); err != nil {
		return "", false
	}
	return hash, true
}
