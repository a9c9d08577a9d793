package network

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BroadcastAddress is the limited broadcast address used when no
// destination is configured
const BroadcastAddress = "255.255.255.255"

// Pusher sends one datagram and reports whether it went out
type Pusher interface {
	Push(data []byte) bool
}

// Broadcaster sends datagrams to a fixed destination, or to the local
// network broadcast address. Repeated send failures open a circuit breaker
// so a dead route fails fast instead of blocking every subscriber.
type Broadcaster struct {
	addr    string
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewBroadcaster creates a broadcaster for port. An empty destination
// broadcasts.
func NewBroadcaster(destination string, port int) *Broadcaster {
	if destination == "" || destination == "<broadcast>" {
		destination = BroadcastAddress
	}
	addr := net.JoinHostPort(destination, strconv.Itoa(port))
	logger := log.WithComponent("broadcaster").With().Str("addr", addr).Logger()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "udp-" + addr,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Broadcast circuit changed state")
		},
	})

	return &Broadcaster{addr: addr, breaker: breaker, logger: logger}
}

// Addr returns the host:port datagrams are sent to
func (b *Broadcaster) Addr() string {
	return b.addr
}

// Push sends data. Errors are logged at debug level and reported as false.
func (b *Broadcaster) Push(data []byte) bool {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.send(data)
	})
	if err != nil {
		b.logger.Debug().Err(err).Msg("Broadcast failed")
		return false
	}
	return true
}

func (b *Broadcaster) send(data []byte) error {
	raddr, err := net.ResolveUDPAddr("udp4", b.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", b.addr, err)
	}

	conn, err := dialBroadcast(raddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	_, err = conn.WriteToUDP(data, raddr)
	return err
}

// dialBroadcast opens an unconnected UDP socket with SO_BROADCAST set
func dialBroadcast(raddr *net.UDPAddr) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket: %w", err)
	}
	if raddr.IP.Equal(net.IPv4bcast) || isBroadcast(raddr.IP) {
		if err := setBroadcast(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to enable broadcast: %w", err)
		}
	}
	return conn, nil
}

// isBroadcast reports whether ip looks like a directed broadcast address
func isBroadcast(ip net.IP) bool {
	ip4 := ip.To4()
	return ip4 != nil && ip4[3] == 255
}
