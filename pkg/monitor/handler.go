package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/cuemby/heartbeat/pkg/metrics"
	"github.com/cuemby/heartbeat/pkg/timer"
	"github.com/cuemby/heartbeat/pkg/workerpool"
	"github.com/rs/zerolog"
)

// DefaultInterval is the time between periodic scans
const DefaultInterval = 60 * time.Second

var ErrIllegalState = errors.New("illegal monitor handler state")

// Producer generates events through emit. Realtime producers loop until
// ctx is cancelled; periodic producers do one pass and return.
type Producer func(ctx context.Context, emit events.Emit) error

// Pool is the worker pool producers run on
type Pool interface {
	workerpool.Submitter
	Shutdown(ctx context.Context) error
}

// State is the lifecycle position of a Handler
type State int

const (
	StateUnstarted State = iota
	StateStarted
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateStarted:
		return "started"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type producer struct {
	name string
	run  Producer
}

// Handler schedules producers on the worker pool. Realtime producers are
// submitted once at Start; periodic producers are submitted on every scan.
// Producers can only be added before Start.
type Handler struct {
	mu       sync.Mutex
	state    State
	scanning bool
	realtime []producer
	periodic []producer

	pool     Pool
	emit     events.Emit
	interval time.Duration
	timer    *timer.Timer
	logger   zerolog.Logger
}

// NewHandler creates a handler whose producers emit through emit
func NewHandler(pool Pool, emit events.Emit, interval time.Duration) *Handler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Handler{
		pool:     pool,
		emit:     emit,
		interval: interval,
		logger:   log.WithComponent("monitor"),
	}
}

// SetLogger replaces the handler's logger
func (h *Handler) SetLogger(logger zerolog.Logger) {
	h.logger = logger
}

// State returns the current lifecycle state
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// AddRealtimeMonitor registers a producer that runs for the life of the
// process
func (h *Handler) AddRealtimeMonitor(name string, p Producer) error {
	return h.add(&h.realtime, name, p)
}

// AddPeriodicMonitor registers a producer that runs on every scan
func (h *Handler) AddPeriodicMonitor(name string, p Producer) error {
	return h.add(&h.periodic, name, p)
}

func (h *Handler) add(list *[]producer, name string, p Producer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateUnstarted {
		return fmt.Errorf("%w: cannot add producer %s to a %s handler", ErrIllegalState, name, h.state)
	}
	*list = append(*list, producer{name: name, run: p})
	return nil
}

// Counts returns the number of realtime and periodic producers
func (h *Handler) Counts() (realtime, periodic int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.realtime), len(h.periodic)
}

// Start submits every realtime producer, scans once, then scans again on
// every interval
func (h *Handler) Start() error {
	h.mu.Lock()
	if h.state != StateUnstarted {
		state := h.state
		h.mu.Unlock()
		return fmt.Errorf("%w: cannot start a %s handler", ErrIllegalState, state)
	}
	h.state = StateStarted
	h.timer = timer.New(h.interval, true, h.Scan)
	realtime := append([]producer(nil), h.realtime...)
	h.mu.Unlock()

	h.logger.Info().
		Int("realtime", len(realtime)).
		Dur("interval", h.interval).
		Msg("Starting monitors")

	for _, p := range realtime {
		h.submit(p)
	}

	h.Scan()
	h.timer.Start()
	return nil
}

// Scan submits every periodic producer once and is a no-op after
// Terminate. Outcomes are checked asynchronously, so a slow or failing
// producer never delays the others.
func (h *Handler) Scan() {
	h.mu.Lock()
	if h.state == StateTerminated || h.scanning {
		h.mu.Unlock()
		return
	}
	h.scanning = true
	periodic := append([]producer(nil), h.periodic...)
	h.mu.Unlock()

	t := metrics.NewTimer()
	for _, p := range periodic {
		h.submit(p)
	}
	t.ObserveDuration(metrics.ScanDuration)
	metrics.ScansTotal.Inc()

	h.mu.Lock()
	h.scanning = false
	h.mu.Unlock()
}

func (h *Handler) submit(p producer) {
	emit := h.emit
	run := p.run
	f := h.pool.Submit(p.name, func(ctx context.Context) error {
		return run(ctx, emit)
	})
	f.OnComplete(h.checkCallStatus)
}

// checkCallStatus logs the error of a finished producer run, if any
func (h *Handler) checkCallStatus(f *workerpool.Future) {
	err := f.Err()
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	location := f.Name()
	var perr *workerpool.PanicError
	if errors.As(err, &perr) {
		location = perr.Location
	}

	metrics.ProducerFailures.Inc()
	h.logger.Error().
		Err(err).
		Str("producer", f.Name()).
		Str("location", location).
		Msg("Producer failed")
}

// Terminate stops scanning and shuts down the pool, waiting for running
// producers until ctx expires
func (h *Handler) Terminate(ctx context.Context) error {
	h.mu.Lock()
	if h.state == StateTerminated {
		h.mu.Unlock()
		return nil
	}
	h.state = StateTerminated
	t := h.timer
	h.mu.Unlock()

	if t != nil {
		t.Stop()
	}

	h.logger.Info().Msg("Terminating monitors")
	return h.pool.Shutdown(ctx)
}
