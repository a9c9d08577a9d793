package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/cuemby/heartbeat/pkg/monitor"
	"github.com/cuemby/heartbeat/pkg/plugin"
	"github.com/rs/zerolog"
)

const (
	// DefaultSocketPath is where the daemon accepts local events
	DefaultSocketPath = "/tmp/heartbeat.sock"

	// Source is set on every event received over the socket
	Source = "LocalSocket"

	maxEventSize = 64 * 1024
	readTimeout  = 5 * time.Second
)

// Socket accepts events from local processes over a unix socket. Each
// connection carries exactly one JSON encoded event.
type Socket struct {
	plugin.Base

	path   string
	logger zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewSocket creates a control socket at path
func NewSocket(path string) *Socket {
	if path == "" {
		path = DefaultSocketPath
	}
	return &Socket{
		path:   path,
		logger: log.WithPlugin("control.Socket").With().Str("path", path).Logger(),
		ready:  make(chan struct{}),
	}
}

func (s *Socket) Producers() map[plugin.ProducerKind]monitor.Producer {
	return map[plugin.ProducerKind]monitor.Producer{
		plugin.Realtime: s.Run,
	}
}

// Ready is closed once the socket accepts connections
func (s *Socket) Ready() <-chan struct{} {
	return s.ready
}

// Run accepts connections until ctx is cancelled or the plugin is halted
func (s *Socket) Run(ctx context.Context, emit events.Emit) error {
	// a socket left behind by an unclean exit blocks the bind
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("failed to restrict socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	go func() {
		<-ctx.Done()
		s.close()
	}()

	s.logger.Info().Msg("Control socket listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn().Err(err).Msg("Accept failed")
			continue
		}
		go s.handle(conn, emit)
	}
}

// Halt closes the socket
func (s *Socket) Halt(context.Context) error {
	s.close()
	return nil
}

func (s *Socket) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return
	}
	s.listener.Close()
	s.listener = nil
}

func (s *Socket) handle(conn net.Conn, emit events.Emit) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	data, err := io.ReadAll(io.LimitReader(conn, maxEventSize))
	if err != nil {
		s.logger.Debug().Err(err).Msg("Failed to read event")
		return
	}

	e, err := events.Unmarshal(data)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Dropped malformed event")
		return
	}

	e.Source = Source
	emit(e)
}

// Send delivers e to the control socket at path
func Send(path string, e *events.Event) error {
	if path == "" {
		path = DefaultSocketPath
	}

	data, err := e.Marshal()
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("unix", path, readTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", path, err)
	}
	defer conn.Close()

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	return nil
}
