package pulse

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cuemby/heartbeat/pkg/cache"
	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/cuemby/heartbeat/pkg/metrics"
	"github.com/cuemby/heartbeat/pkg/monitor"
	"github.com/cuemby/heartbeat/pkg/plugin"
	"github.com/cuemby/heartbeat/pkg/routing"
	"github.com/rs/zerolog"
)

const (
	// CacheName is the cache known peers are kept in
	CacheName = "known-pulses"

	// DefaultFlatline is how long a peer may stay silent before it is
	// declared flatlined
	DefaultFlatline = 300 * time.Second
)

// Owner decides whether a host name refers to this node
type Owner interface {
	IsOwn(host string) bool
}

// Monitor tracks when each peer last pulsed and reports peers that appear
// or go silent
type Monitor struct {
	plugin.Base

	cache    *cache.Cache
	owner    Owner
	emit     events.Emit
	flatline time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewMonitor creates a pulse monitor. Every peer remembered from a previous
// run is treated as seen now, so peers that pulsed while this node was down
// are not immediately flatlined.
func NewMonitor(c *cache.Cache, owner Owner, emit events.Emit, flatline time.Duration) (*Monitor, error) {
	if flatline <= 0 {
		flatline = DefaultFlatline
	}

	m := &Monitor{
		cache:    c,
		owner:    owner,
		emit:     emit,
		flatline: flatline,
		now:      time.Now,
		logger:   log.WithPlugin("pulse.Monitor"),
	}

	if err := c.ResetValuesTo(epoch(m.now())); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Monitor) Subscriptions() map[events.Topic]routing.Callback {
	return map[events.Topic]routing.Callback{
		events.TopicHeartbeat: m.Receive,
	}
}

func (m *Monitor) Producers() map[plugin.ProducerKind]monitor.Producer {
	return map[plugin.ProducerKind]monitor.Producer{
		plugin.Periodic: m.CleanupHosts,
	}
}

func (m *Monitor) RequiredServices() []string {
	return []string{plugin.ServiceEventReceive}
}

// Halt persists the known peers
func (m *Monitor) Halt(context.Context) error {
	return m.cache.WriteToDisk()
}

// KnownPeers returns the number of peers currently tracked
func (m *Monitor) KnownPeers() int {
	return m.cache.Len()
}

// Receive records a heartbeat. Heartbeats from this node are ignored.
func (m *Monitor) Receive(_ context.Context, e *events.Event) error {
	if m.owner.IsOwn(e.Host) {
		return nil
	}
	return m.logHost(e.Host)
}

// logHost stamps host as seen now and announces it the first time
func (m *Monitor) logHost(host string) error {
	isNew := false
	err := m.cache.Update(host, func(current json.RawMessage) (any, bool, error) {
		isNew = current == nil
		return epoch(m.now()), false, nil
	})
	if err != nil {
		return err
	}

	if isNew {
		m.logger.Info().Str("host", host).Msg("New heartbeat discovered")
		m.emit(events.MustNew("New Heartbeat", "New heartbeat discovered", events.WithHost(host)))
	}
	return nil
}

// CleanupHosts reports and forgets every peer silent for longer than the
// flatline threshold. The staleness check and the removal happen under the
// cache lock, so a heartbeat arriving mid-pass keeps its peer. The cache is
// flushed after each removal so a forgotten peer cannot come back after a
// crash.
func (m *Monitor) CleanupHosts(_ context.Context, emit events.Emit) error {
	now := m.now()

	for _, host := range m.cache.Keys() {
		removed, err := m.forgetIfStale(host, now)
		if err != nil {
			return err
		}
		if !removed {
			continue
		}

		metrics.PeersFlatlined.Inc()
		m.logger.Warn().Str("host", host).Msg("Host flatlined")

		if err := m.cache.WriteToDisk(); err != nil {
			return err
		}
		emit(events.MustNew("Flatlined Host", "Host flatlined (heartbeat lost)", events.WithHost(host)))
	}

	return m.cache.WriteToDisk()
}

// forgetIfStale removes host if it was last seen more than the flatline
// threshold before now
func (m *Monitor) forgetIfStale(host string, now time.Time) (bool, error) {
	removed := false
	err := m.cache.Update(host, func(current json.RawMessage) (any, bool, error) {
		if current == nil {
			// gone already; deleting an absent key is a no-op
			return nil, true, nil
		}

		var seen float64
		if err := json.Unmarshal(current, &seen); err != nil || now.Sub(fromEpoch(seen)) <= m.flatline {
			return current, false, nil
		}
		removed = true
		return nil, true, nil
	})
	return removed, err
}

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromEpoch(secs float64) time.Time {
	return time.Unix(0, int64(secs*float64(time.Second)))
}
