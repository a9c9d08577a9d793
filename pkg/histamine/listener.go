package histamine

import (
	"context"
	"net"
	"strconv"

	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/cuemby/heartbeat/pkg/metrics"
	"github.com/cuemby/heartbeat/pkg/monitor"
	"github.com/cuemby/heartbeat/pkg/network"
	"github.com/cuemby/heartbeat/pkg/plugin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultSeenIDs is how many recent event ids the listener remembers
const DefaultSeenIDs = 1024

// Owner decides whether a host name refers to this node
type Owner interface {
	IsOwn(host string) bool
}

// ListenerConfig configures a Listener
type ListenerConfig struct {
	Codec *Codec

	// Addr is the local address to bind, e.g. ":22000"
	Addr string

	// PulseAddr is a second address to receive HEARTBEAT traffic on
	PulseAddr string

	// Identity is the host name put on synthesized ACK events
	Identity string
	Owner    Owner
	Acking   bool
	SeenIDs  int
}

// Listener receives events from peers and hands them to the router
type Listener struct {
	plugin.Base

	cfg    ListenerConfig
	seen   *lru.Cache[string, struct{}]
	logger zerolog.Logger

	// bound is signalled with the listen address once Run is serving
	bound chan *net.UDPAddr
}

// NewListener creates a listener
func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":" + strconv.Itoa(DefaultPort)
	}
	if cfg.SeenIDs <= 0 {
		cfg.SeenIDs = DefaultSeenIDs
	}
	if cfg.Codec == nil {
		cfg.Codec = &Codec{}
	}

	seen, err := lru.New[string, struct{}](cfg.SeenIDs)
	if err != nil {
		return nil, err
	}

	return &Listener{
		cfg:    cfg,
		seen:   seen,
		logger: log.WithPlugin("histamine.Listener"),
		bound:  make(chan *net.UDPAddr, 1),
	}, nil
}

func (l *Listener) Services() []string {
	return []string{plugin.ServiceEventReceive}
}

func (l *Listener) Producers() map[plugin.ProducerKind]monitor.Producer {
	return map[plugin.ProducerKind]monitor.Producer{
		plugin.Realtime: l.Run,
	}
}

// Bound delivers the listen address once Run is serving
func (l *Listener) Bound() <-chan *net.UDPAddr {
	return l.bound
}

// Run receives datagrams until ctx is cancelled
func (l *Listener) Run(ctx context.Context, emit events.Emit) error {
	addrs := []string{l.cfg.Addr}
	if l.cfg.PulseAddr != "" && l.cfg.PulseAddr != l.cfg.Addr {
		addrs = append(addrs, l.cfg.PulseAddr)
	}

	conns := make([]*network.Listener, 0, len(addrs))
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	for _, addr := range addrs {
		conn, err := network.Listen(addr, func(data []byte, from *net.UDPAddr) {
			l.Receive(data, from, emit)
		})
		if err != nil {
			return err
		}
		conns = append(conns, conn)
		l.logger.Info().Str("addr", conn.Addr().String()).Msg("Listening for events")
	}

	select {
	case l.bound <- conns[0].Addr():
	default:
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, c := range conns {
		g.Go(func() error { return c.Serve(ctx) })
	}
	return g.Wait()
}

// Receive decodes one datagram and emits the event it carries. Anything
// that does not decode is dropped quietly.
func (l *Listener) Receive(data []byte, from *net.UDPAddr, emit events.Emit) {
	e, err := l.cfg.Codec.Decode(data)
	if err != nil {
		metrics.HistamineDropped.WithLabelValues("decode").Inc()
		l.logger.Debug().Err(err).Str("from", from.String()).Msg("Dropped undecodable datagram")
		return
	}

	if l.cfg.Owner != nil && l.cfg.Owner.IsOwn(e.Host) {
		metrics.HistamineDropped.WithLabelValues("own").Inc()
		return
	}

	ip := from.IP.String()
	e.Host = e.Host + "@" + ip
	e.Payload[events.PayloadOrigin] = ip

	if l.cfg.Acking && !e.Payload.Has(events.PayloadAcking) {
		emit(l.ack(e.ID, ip))
	}

	if ok, _ := l.seen.ContainsOrAdd(e.ID, struct{}{}); ok {
		metrics.HistamineDropped.WithLabelValues("duplicate").Inc()
		return
	}

	metrics.HistamineReceived.Inc()
	emit(e)
}

func (l *Listener) ack(id, dest string) *events.Event {
	return events.MustNew("Histamine ACK", "",
		events.WithType(events.TopicAck),
		events.WithHost(l.cfg.Identity),
		events.WithPayload(events.PayloadAcking, id),
		events.WithPayload(events.PayloadDest, dest),
	)
}
