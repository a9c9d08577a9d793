// Package notify holds the built-in notifiers
package notify

import (
	"context"

	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/cuemby/heartbeat/pkg/plugin"
	"github.com/cuemby/heartbeat/pkg/routing"
	"github.com/rs/zerolog"
)

// Log writes every routed event to the daemon log
type Log struct {
	plugin.Base
	logger zerolog.Logger
}

// NewLog creates a log notifier
func NewLog() *Log {
	return &Log{logger: log.WithPlugin("notify.Log")}
}

// SetLogger replaces the logger events are written to
func (l *Log) SetLogger(logger zerolog.Logger) {
	l.logger = logger
}

func (l *Log) Subscriptions() map[events.Topic]routing.Callback {
	subs := make(map[events.Topic]routing.Callback, len(events.Topics))
	for _, t := range events.Topics {
		subs[t] = l.Notify
	}
	return subs
}

// Notify logs e at a level matching its topic
func (l *Log) Notify(_ context.Context, e *events.Event) error {
	var entry *zerolog.Event
	switch e.Type {
	case events.TopicWarning:
		entry = l.logger.Warn()
	case events.TopicDebug, events.TopicHeartbeat, events.TopicAck:
		entry = l.logger.Debug()
	default:
		entry = l.logger.Info()
	}

	entry.
		Str("event_id", e.ID).
		Str("type", string(e.Type)).
		Str("host", e.Host).
		Str("source", e.Source).
		Msg(e.String())
	return nil
}
