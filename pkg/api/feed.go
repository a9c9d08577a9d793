package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/cuemby/heartbeat/pkg/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// DefaultClientBuffer is how many events may queue for one feed client
	// before further events are dropped for it
	DefaultClientBuffer = 64

	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Feed streams dispatched events to websocket clients. Publish is attached
// to the router as a subscriber of every topic.
type Feed struct {
	upgrader websocket.Upgrader
	buffer   int
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[chan *events.Event]struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFeed creates an empty feed
func NewFeed() *Feed {
	return &Feed{
		// the default origin check rejects pages served from other origins;
		// clients that send no Origin, like curl or another daemon, pass
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		buffer:  DefaultClientBuffer,
		logger:  log.WithComponent("feed"),
		clients: make(map[chan *events.Event]struct{}),
		closed:  make(chan struct{}),
	}
}

// Close disconnects every client
func (f *Feed) Close() {
	f.closeOnce.Do(func() { close(f.closed) })
}

// Publish hands e to every connected client. A client that cannot keep up
// misses events instead of slowing down the router.
func (f *Feed) Publish(_ context.Context, e *events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for ch := range f.clients {
		select {
		case ch <- e:
		default:
			f.logger.Debug().Str("event_id", e.ID).Msg("Feed client too slow, event dropped")
		}
	}
	return nil
}

// Clients returns the number of connected clients
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *Feed) subscribe() chan *events.Event {
	ch := make(chan *events.Event, f.buffer)

	f.mu.Lock()
	f.clients[ch] = struct{}{}
	metrics.FeedClients.Set(float64(len(f.clients)))
	f.mu.Unlock()
	return ch
}

func (f *Feed) unsubscribe(ch chan *events.Event) {
	f.mu.Lock()
	delete(f.clients, ch)
	metrics.FeedClients.Set(float64(len(f.clients)))
	f.mu.Unlock()
}

// ServeHTTP upgrades the request and streams events until the client goes
// away
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer ws.Close()

	ch := f.subscribe()
	defer f.unsubscribe(ch)

	f.logger.Debug().Str("remote", r.RemoteAddr).Msg("Feed client connected")

	// the read side only exists to notice the client closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case <-f.closed:
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeTimeout))
			return
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case e := <-ch:
			data, err := e.Marshal()
			if err != nil {
				f.logger.Error().Err(err).Msg("Failed to marshal feed event")
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				f.logger.Debug().Err(err).Msg("Feed send failed")
				return
			}
		}
	}
}
