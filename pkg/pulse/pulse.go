package pulse

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/cuemby/heartbeat/pkg/monitor"
	"github.com/cuemby/heartbeat/pkg/plugin"
	"github.com/cuemby/heartbeat/pkg/timer"
	"github.com/rs/zerolog"
)

// RandomInterval picks a beat period of 20, 40, 60, 80 or 100 seconds so
// nodes sharing a network do not all broadcast together
func RandomInterval() time.Duration {
	return 20 * time.Second * time.Duration(rand.IntN(5)+1)
}

// Pulse periodically emits a HEARTBEAT event carrying this node's identity
type Pulse struct {
	plugin.Base

	identity string
	timer    *timer.Timer
	logger   zerolog.Logger

	mu   sync.Mutex
	emit events.Emit
}

// NewPulse creates a pulse for identity. A zero interval picks one with
// RandomInterval.
func NewPulse(identity string, interval time.Duration) *Pulse {
	if interval <= 0 {
		interval = RandomInterval()
	}

	p := &Pulse{
		identity: identity,
		logger:   log.WithPlugin("pulse.Pulse"),
	}
	p.timer = timer.New(interval, true, p.beat)
	p.logger.Debug().Dur("interval", interval).Msg("Pulse configured")
	return p
}

func (p *Pulse) Producers() map[plugin.ProducerKind]monitor.Producer {
	return map[plugin.ProducerKind]monitor.Producer{
		plugin.Realtime: p.Run,
	}
}

func (p *Pulse) RequiredServices() []string {
	return []string{plugin.ServiceEventTransmit}
}

// Run starts beating and blocks until ctx is cancelled
func (p *Pulse) Run(ctx context.Context, emit events.Emit) error {
	p.mu.Lock()
	p.emit = emit
	p.mu.Unlock()

	p.timer.Start()
	<-ctx.Done()
	p.timer.Stop()
	return nil
}

// Halt stops the heartbeat
func (p *Pulse) Halt(context.Context) error {
	p.timer.Stop()
	return nil
}

func (p *Pulse) beat() {
	p.mu.Lock()
	emit := p.emit
	p.mu.Unlock()

	if emit == nil {
		return
	}
	emit(events.MustNew("System heartbeat", "",
		events.WithType(events.TopicHeartbeat),
		events.WithHost(p.identity),
	))
}

// Startup emits a single STARTUP event when the daemon comes up
type Startup struct {
	plugin.Base
	identity string
}

// NewStartup creates the startup notifier
func NewStartup(identity string) *Startup {
	return &Startup{identity: identity}
}

func (s *Startup) Producers() map[plugin.ProducerKind]monitor.Producer {
	return map[plugin.ProducerKind]monitor.Producer{
		plugin.Realtime: s.Run,
	}
}

// Run emits the startup event and returns
func (s *Startup) Run(_ context.Context, emit events.Emit) error {
	emit(events.MustNew("Startup Notification", "Heartbeat has started",
		events.WithType(events.TopicStartup),
		events.WithHost(s.identity),
	))
	return nil
}
