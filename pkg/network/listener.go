package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/rs/zerolog"
)

// MaxDatagramSize is the largest datagram the listener reads
const MaxDatagramSize = 64 * 1024

// Handler receives one datagram. data is only valid during the call.
type Handler func(data []byte, from *net.UDPAddr)

// Listener receives UDP datagrams on a port and hands them to a Handler
type Listener struct {
	conn    *net.UDPConn
	handler Handler
	logger  zerolog.Logger

	closeOnce sync.Once
}

// Listen binds addr, e.g. ":22000"
func Listen(addr string, handler Handler) (*Listener, error) {
	laddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}

	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return &Listener{
		conn:    conn,
		handler: handler,
		logger:  log.WithComponent("listener").With().Str("addr", conn.LocalAddr().String()).Logger(),
	}, nil
}

// Addr returns the bound address
func (l *Listener) Addr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Serve reads datagrams until ctx is cancelled or the listener is closed.
// A handler panic is recovered so one bad datagram cannot stop the loop.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Debug().Err(err).Msg("Receive failed")
			continue
		}
		l.handle(buf[:n], from)
	}
}

func (l *Listener) handle(data []byte, from *net.UDPAddr) {
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.Error().Interface("panic", rec).Str("from", from.String()).Msg("Datagram handler panic")
		}
	}()
	l.handler(data, from)
}

// Close stops the listener
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.conn.Close()
	})
	return err
}
