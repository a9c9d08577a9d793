package histamine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/cuemby/heartbeat/pkg/metrics"
	"github.com/cuemby/heartbeat/pkg/monitor"
	"github.com/cuemby/heartbeat/pkg/network"
	"github.com/cuemby/heartbeat/pkg/plugin"
	"github.com/cuemby/heartbeat/pkg/routing"
	"github.com/rs/zerolog"
)

// SenderConfig configures a Sender
type SenderConfig struct {
	Codec *Codec

	// Destination is the host events are sent to. Empty broadcasts.
	Destination string
	Port        int

	// PulsePort, when set, carries HEARTBEAT events instead of Port
	PulsePort int

	// Topics limits what is sent. Empty sends every topic.
	Topics []events.Topic

	Acking      bool
	MaxAttempts int
}

// Sender ships locally produced events to peers. With acking enabled every
// event is kept until a peer acknowledges it and resent on each scan until
// MaxAttempts is reached.
type Sender struct {
	plugin.Base

	cfg    SenderConfig
	push   network.Pusher
	pulse  network.Pusher
	dial   func(host string, port int) network.Pusher
	logger zerolog.Logger

	mu      sync.Mutex
	unacked map[string]*events.Event
	direct  map[string]network.Pusher
}

// NewSender creates a sender broadcasting to cfg.Destination
func NewSender(cfg SenderConfig) *Sender {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Codec == nil {
		cfg.Codec = &Codec{}
	}

	s := &Sender{
		cfg:     cfg,
		push:    network.NewBroadcaster(cfg.Destination, cfg.Port),
		dial:    func(host string, port int) network.Pusher { return network.NewBroadcaster(host, port) },
		logger:  log.WithPlugin("histamine.Sender"),
		unacked: make(map[string]*events.Event),
		direct:  make(map[string]network.Pusher),
	}
	if cfg.PulsePort != 0 && cfg.PulsePort != cfg.Port {
		s.pulse = network.NewBroadcaster(cfg.Destination, cfg.PulsePort)
	}
	return s
}

func (s *Sender) Services() []string {
	return []string{plugin.ServiceEventTransmit}
}

func (s *Sender) Subscriptions() map[events.Topic]routing.Callback {
	topics := s.cfg.Topics
	if len(topics) == 0 {
		topics = events.Topics
	}

	subs := make(map[events.Topic]routing.Callback, len(topics)+1)
	for _, t := range topics {
		subs[t] = s.Send
	}
	if s.cfg.Acking {
		subs[events.TopicAck] = s.Send
	}
	return subs
}

func (s *Sender) Producers() map[plugin.ProducerKind]monitor.Producer {
	if !s.cfg.Acking {
		return nil
	}
	return map[plugin.ProducerKind]monitor.Producer{
		plugin.Periodic: s.Resend,
	}
}

// Send transmits e. Events that arrived from the network are never sent
// again; an ACK among them settles the event it acknowledges. A push the
// network refuses is counted and logged, not returned: with acking on the
// event is retried by Resend, otherwise it is lost like any datagram.
func (s *Sender) Send(_ context.Context, e *events.Event) error {
	if e.Payload.Has(events.PayloadOrigin) {
		if id, ok := e.Payload.String(events.PayloadAcking); ok && e.Type == events.TopicAck {
			s.acknowledge(id)
		}
		return nil
	}

	if e.Type == events.TopicAck {
		dest, _ := e.Payload.String(events.PayloadDest)
		return s.dropUnsent(s.transmit(e, s.pusherFor(dest)))
	}

	if s.cfg.Acking {
		e = e.Clone()
		e.Payload[events.PayloadAttempt] = 1
		s.mu.Lock()
		s.unacked[e.ID] = e
		metrics.HistamineUnacked.Set(float64(len(s.unacked)))
		s.mu.Unlock()
	}

	return s.dropUnsent(s.transmit(e, s.route(e)))
}

// dropUnsent swallows ErrNotSent; encoding errors are still returned
func (s *Sender) dropUnsent(err error) error {
	if errors.Is(err, ErrNotSent) {
		s.logger.Debug().Err(err).Msg("Event not sent")
		return nil
	}
	return err
}

// Resend sends every unacknowledged event again and drops the ones that
// have used up their attempts
func (s *Sender) Resend(context.Context, events.Emit) error {
	var due []*events.Event

	s.mu.Lock()
	for id, e := range s.unacked {
		attempt, _ := e.Payload.Int(events.PayloadAttempt)
		if attempt >= s.cfg.MaxAttempts {
			delete(s.unacked, id)
			s.logger.Warn().Str("event_id", id).Int("attempts", attempt).Msg("Event never acknowledged, dropping")
			continue
		}

		next := e.Clone()
		next.Payload[events.PayloadAttempt] = attempt + 1
		s.unacked[id] = next
		due = append(due, next)
	}
	metrics.HistamineUnacked.Set(float64(len(s.unacked)))
	s.mu.Unlock()

	var errs []error
	failed := 0
	for _, e := range due {
		metrics.HistamineRetransmits.Inc()
		err := s.transmit(e, s.route(e))
		switch {
		case errors.Is(err, ErrNotSent):
			failed++
		case err != nil:
			errs = append(errs, err)
		}
	}
	if failed > 0 {
		s.logger.Debug().Int("failed", failed).Int("due", len(due)).Msg("Retransmissions not sent")
	}
	return errors.Join(errs...)
}

// Unacked returns the ids awaiting acknowledgment
func (s *Sender) Unacked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.unacked))
	for id := range s.unacked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Sender) acknowledge(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.unacked[id]; !ok {
		return
	}
	delete(s.unacked, id)
	metrics.HistamineAcked.Inc()
	metrics.HistamineUnacked.Set(float64(len(s.unacked)))
	s.logger.Debug().Str("event_id", id).Msg("Event acknowledged")
}

func (s *Sender) transmit(e *events.Event, p network.Pusher) error {
	frame, err := s.cfg.Codec.Encode(e)
	if err != nil {
		metrics.HistamineSent.WithLabelValues("error").Inc()
		return err
	}

	if !p.Push(frame) {
		metrics.HistamineSent.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %s", ErrNotSent, e.ID)
	}
	metrics.HistamineSent.WithLabelValues("ok").Inc()
	return nil
}

// route picks the port e travels on
func (s *Sender) route(e *events.Event) network.Pusher {
	if e.Type == events.TopicHeartbeat && s.pulse != nil {
		return s.pulse
	}
	return s.push
}

// pusherFor returns a pusher aimed at host, or the default one when host is
// empty
func (s *Sender) pusherFor(host string) network.Pusher {
	if host == "" {
		return s.push
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.direct[host]
	if !ok {
		p = s.dial(host, s.cfg.Port)
		s.direct[host] = p
	}
	return p
}
