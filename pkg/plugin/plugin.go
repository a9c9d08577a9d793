package plugin

import (
	"context"

	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/monitor"
	"github.com/cuemby/heartbeat/pkg/routing"
)

// ProducerKind selects how the monitor handler schedules a producer
type ProducerKind string

const (
	// Realtime producers are started once and run until shutdown
	Realtime ProducerKind = "REALTIME"
	// Periodic producers run to completion on every scan
	Periodic ProducerKind = "PERIODIC"
)

// Plugin is a unit of capability. It may subscribe to topics, produce
// events, and provide or require named services that order activation.
type Plugin interface {
	Subscriptions() map[events.Topic]routing.Callback
	Producers() map[ProducerKind]monitor.Producer
	Services() []string
	RequiredServices() []string

	// Halt releases the plugin's resources. The caller may stop waiting
	// once ctx is done.
	Halt(ctx context.Context) error
}

// Base provides empty defaults for every Plugin method. Plugins embed it
// and override what they need.
type Base struct{}

func (Base) Subscriptions() map[events.Topic]routing.Callback { return nil }

func (Base) Producers() map[ProducerKind]monitor.Producer { return nil }

func (Base) Services() []string { return nil }

func (Base) RequiredServices() []string { return nil }

func (Base) Halt(context.Context) error { return nil }

// RequirementsSatisfied reports whether every service p requires is in
// available
func RequirementsSatisfied(p Plugin, available map[string]bool) bool {
	for _, svc := range p.RequiredServices() {
		if !available[svc] {
			return false
		}
	}
	return true
}

// Well-known services. Pulse needs events to leave the node and the pulse
// monitor needs them to arrive; the histamine sender and listener provide
// them.
const (
	ServiceEventTransmit = "5be95170-2279-4db4-9c07-862ad3c9dfb3"
	ServiceEventReceive  = "dbb651d2-bce4-466b-9c01-2c5df2ead863"
)
