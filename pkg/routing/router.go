package routing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sync"

	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/cuemby/heartbeat/pkg/metrics"
	"github.com/cuemby/heartbeat/pkg/workerpool"
	"github.com/rs/zerolog"
)

// Callback receives one dispatched event. ctx is cancelled at shutdown.
type Callback func(ctx context.Context, e *events.Event) error

// Limiter is the admission check the router consults before dispatch
type Limiter interface {
	AllowEvent(e *events.Event) bool
}

type subscriber struct {
	name     string
	callback Callback
}

// Router fans events out to the subscribers of their topic. Every
// subscriber call runs on the worker pool; a failing subscriber is logged
// and never affects the producer or the other subscribers.
type Router struct {
	mu      sync.RWMutex
	topics  map[events.Topic][]subscriber
	limiter Limiter
	pool    workerpool.Submitter
	logger  zerolog.Logger
}

// NewRouter creates a router dispatching on pool
func NewRouter(pool workerpool.Submitter, limiter Limiter) *Router {
	topics := make(map[events.Topic][]subscriber, len(events.Topics))
	for _, t := range events.Topics {
		topics[t] = nil
	}

	return &Router{
		topics:  topics,
		limiter: limiter,
		pool:    pool,
		logger:  log.WithComponent("router"),
	}
}

// SetLogger replaces the router's logger
func (r *Router) SetLogger(logger zerolog.Logger) {
	r.logger = logger
}

// Attach subscribes callback to topic. Subscribers of one topic are
// submitted in the order they attached. An empty name is replaced by the
// callback's function name.
func (r *Router) Attach(topic events.Topic, name string, callback Callback) error {
	if !topic.Valid() {
		return fmt.Errorf("%w: %q", events.ErrInvalidTopic, topic)
	}
	if name == "" {
		name = funcName(callback)
	}

	r.mu.Lock()
	r.topics[topic] = append(r.topics[topic], subscriber{name: name, callback: callback})
	r.mu.Unlock()

	r.logger.Debug().
		Str("subscriber", name).
		Str("topic", string(topic)).
		Msg("Subscribed")
	return nil
}

// Subscribers returns the names attached to topic, in dispatch order
func (r *Router) Subscribers(topic events.Topic) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.topics[topic]))
	for _, s := range r.topics[topic] {
		names = append(names, s.name)
	}
	return names
}

// PutEvent is the entry point for every producer. Events the limiter
// rejects are dropped; the rest are submitted once per subscriber.
func (r *Router) PutEvent(e *events.Event) {
	r.logger.Info().
		Str("event_id", e.ID).
		Str("topic", string(e.Type)).
		Str("source", e.Source).
		Msgf("Event Generated: %s", e)
	metrics.EventsPublished.WithLabelValues(string(e.Type)).Inc()

	if r.limiter != nil && !r.limiter.AllowEvent(e) {
		r.logger.Debug().Str("event_id", e.ID).Msg("Skipping dispatch per limit strategy")
		metrics.EventsSuppressed.WithLabelValues(string(e.Type)).Inc()
		return
	}

	r.forward(e)
}

// forward submits a call per subscriber. Each gets its own copy so a
// subscriber mutating the payload cannot affect another.
func (r *Router) forward(e *events.Event) {
	r.mu.RLock()
	subs := append([]subscriber(nil), r.topics[e.Type]...)
	r.mu.RUnlock()

	topic := string(e.Type)
	for _, s := range subs {
		ev := e.Clone()
		callback := s.callback

		f := r.pool.Submit(s.name, func(ctx context.Context) error {
			return callback(ctx, ev)
		})
		metrics.EventsDispatched.WithLabelValues(topic).Inc()

		f.OnComplete(func(f *workerpool.Future) {
			if r.checkCallStatus(f) != nil {
				metrics.SubscriberFailures.WithLabelValues(topic).Inc()
			}
		})
	}
}

// checkCallStatus logs the error of a finished subscriber call, if any,
// with the location it failed at
func (r *Router) checkCallStatus(f *workerpool.Future) error {
	err := f.Err()
	if err == nil {
		return nil
	}

	r.logger.Error().
		Err(err).
		Str("subscriber", f.Name()).
		Str("location", location(f, err)).
		Msgf("Handler: %s", err)
	return err
}

// location is the panicking frame for a recovered panic, otherwise the
// name the call was submitted under
func location(f *workerpool.Future, err error) string {
	var perr *workerpool.PanicError
	if errors.As(err, &perr) {
		return perr.Location
	}
	if f.Name() != "" {
		return f.Name()
	}
	return " -- "
}

func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return ""
}
