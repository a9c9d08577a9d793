package daemon

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cuemby/heartbeat/pkg/api"
	"github.com/cuemby/heartbeat/pkg/cache"
	"github.com/cuemby/heartbeat/pkg/config"
	"github.com/cuemby/heartbeat/pkg/control"
	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/histamine"
	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/cuemby/heartbeat/pkg/metrics"
	"github.com/cuemby/heartbeat/pkg/monitor"
	"github.com/cuemby/heartbeat/pkg/network"
	"github.com/cuemby/heartbeat/pkg/notify"
	"github.com/cuemby/heartbeat/pkg/plugin"
	"github.com/cuemby/heartbeat/pkg/pulse"
	"github.com/cuemby/heartbeat/pkg/routing"
	"github.com/cuemby/heartbeat/pkg/security"
	"github.com/cuemby/heartbeat/pkg/storage"
	"github.com/cuemby/heartbeat/pkg/workerpool"
	"github.com/rs/zerolog"
)

const collectInterval = 15 * time.Second

// Daemon wires the router, the monitor handler and the plugins together
type Daemon struct {
	cfg    *config.Config
	info   *network.Info
	cipher security.Cipher
	logger zerolog.Logger

	store    storage.Store
	limiter  *routing.RateLimitHandler
	registry *plugin.Registry
	report   plugin.Report

	pool    *workerpool.Pool
	router  *routing.Router
	handler *monitor.Handler

	peers     *pulse.Monitor
	collector *metrics.Collector
	feed      *api.Feed
	server    *api.Server
}

// Run starts a daemon for cfg and blocks until ctx is cancelled, then shuts
// it down
func Run(ctx context.Context, cfg *config.Config) error {
	d, err := New(ctx, cfg)
	if err != nil {
		return err
	}

	if err := d.Start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Monitor.HaltGrace)
		defer cancel()
		_ = d.Stop(shutdownCtx)
		return err
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.Monitor.HaltGrace+time.Second)
	defer cancel()
	return d.Stop(shutdownCtx)
}

// New discovers the node identity, opens the caches and registers every
// whitelisted built-in plugin. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:    cfg,
		logger: log.WithComponent("daemon"),
		cipher: security.Plaintext{},
	}

	if cfg.Encryption.Enabled {
		enc, err := security.NewEncryptor(cfg.Encryption.Password)
		if err != nil {
			return nil, err
		}
		d.cipher = enc
	}

	d.info = network.Discover(ctx, network.Options{
		WANLookupURL: cfg.WANLookupURL,
		FQDN:         cfg.Identity,
	})
	d.logger.Info().
		Str("identity", d.info.Identity()).
		Str("lan_ip", d.info.LANIP).
		Str("wan_ip", d.info.WANIP).
		Msg("Node identity discovered")

	store, err := storage.Open(cfg.Cache.Backend, cfg.Cache.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	d.store = store

	d.limiter = routing.NewRateLimitHandler(
		cache.New(routing.PreviousCacheName, store, d.cipher),
		cache.New(routing.TimeCacheName, store, d.cipher),
	)

	d.registry = plugin.NewRegistry()
	d.registry.SetMaxPasses(cfg.Monitor.ActivationPasses)
	if err := d.registry.PopulateWhitelist(cfg.Plugins); err != nil {
		store.Close()
		return nil, err
	}

	factories := d.factories()
	for _, name := range cfg.Plugins {
		factory, ok := factories[name]
		if !ok {
			d.logger.Warn().Str("plugin", name).Msg("Whitelisted plugin is not built in")
			continue
		}
		if err := d.registry.Register(name, factory); err != nil {
			store.Close()
			return nil, err
		}
	}

	return d, nil
}

// emit is the event sink handed to plugins. The router is created after
// the plugins, but before any of them can produce.
func (d *Daemon) emit(e *events.Event) {
	d.router.PutEvent(e)
}

func (d *Daemon) codec() *histamine.Codec {
	codec := &histamine.Codec{
		Secret:          []byte(d.cfg.SecretKey),
		AcceptPlaintext: d.cfg.Encryption.AcceptPlaintext,
	}
	if d.cfg.Encryption.Enabled {
		codec.Cipher = d.cipher
	}
	return codec
}

func (d *Daemon) factories() map[string]plugin.Factory {
	identity := d.info.Identity()

	return map[string]plugin.Factory{
		config.PluginStartup: func() (plugin.Plugin, error) {
			return pulse.NewStartup(identity), nil
		},
		config.PluginPulse: func() (plugin.Plugin, error) {
			return pulse.NewPulse(identity, d.cfg.Pulse.Interval), nil
		},
		config.PluginPulseMonitor: func() (plugin.Plugin, error) {
			c := cache.New(pulse.CacheName, d.store, d.cipher)
			return pulse.NewMonitor(c, d.info, d.emit, d.cfg.Pulse.Flatline)
		},
		config.PluginHistamineSender: func() (plugin.Plugin, error) {
			return histamine.NewSender(histamine.SenderConfig{
				Codec:       d.codec(),
				Destination: d.cfg.MonitorServer,
				Port:        d.cfg.Histamine.Port,
				PulsePort:   d.cfg.Pulse.Port,
				Topics:      d.cfg.HistamineTopics(),
				Acking:      d.cfg.Histamine.Acking,
				MaxAttempts: d.cfg.Histamine.MaxAttempts,
			}), nil
		},
		config.PluginHistamineListen: func() (plugin.Plugin, error) {
			return histamine.NewListener(histamine.ListenerConfig{
				Codec:     d.codec(),
				Addr:      ":" + strconv.Itoa(d.cfg.Histamine.Port),
				PulseAddr: ":" + strconv.Itoa(d.cfg.Pulse.Port),
				Identity:  identity,
				Owner:     d.info,
				Acking:    d.cfg.Histamine.Acking,
			})
		},
		config.PluginControlSocket: func() (plugin.Plugin, error) {
			return control.NewSocket(d.cfg.Control.Socket), nil
		},
		config.PluginLogNotifier: func() (plugin.Plugin, error) {
			return notify.NewLog(), nil
		},
	}
}

// Start activates the plugins, sizes the worker pool for them, attaches
// their subscriptions and starts the monitor handler and HTTP surface
func (d *Daemon) Start(ctx context.Context) error {
	d.report = d.registry.ActivatePlugins(ctx)
	active := d.registry.Active()

	// only a monitor that made it through activation is sampled
	for _, a := range active {
		if m, ok := a.Plugin.(*pulse.Monitor); ok {
			d.peers = m
		}
	}

	if d.cfg.HTTP.Addr != "" {
		d.feed = api.NewFeed()
	}

	realtime, periodic, subscribers := 0, 0, 0
	for _, a := range active {
		for kind := range a.Plugin.Producers() {
			if kind == plugin.Realtime {
				realtime++
			} else {
				periodic++
			}
		}
		subscribers += len(a.Plugin.Subscriptions())
	}
	if d.feed != nil {
		subscribers += len(events.Topics)
	}

	// realtime producers hold their slot for the life of the process
	d.pool = workerpool.New(realtime + periodic + subscribers + d.cfg.Monitor.PoolHeadroom)
	d.router = routing.NewRouter(d.pool, d.limiter)
	d.handler = monitor.NewHandler(d.pool, d.emit, d.cfg.Monitor.ScanInterval)

	for _, a := range active {
		for topic, cb := range a.Plugin.Subscriptions() {
			if err := d.router.Attach(topic, a.Name, cb); err != nil {
				return fmt.Errorf("failed to attach %s: %w", a.Name, err)
			}
		}
		for kind, p := range a.Plugin.Producers() {
			var err error
			switch kind {
			case plugin.Realtime:
				err = d.handler.AddRealtimeMonitor(a.Name, p)
			case plugin.Periodic:
				err = d.handler.AddPeriodicMonitor(a.Name, p)
			}
			if err != nil {
				return err
			}
		}
	}
	metrics.RegisterComponent("router", true, "")

	if d.feed != nil {
		for _, topic := range events.Topics {
			if err := d.router.Attach(topic, "api.Feed", d.feed.Publish); err != nil {
				return err
			}
		}

		d.server = api.NewServer(d.cfg.HTTP.Addr, d.feed)
		if err := d.server.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	if err := d.handler.Start(); err != nil {
		return err
	}
	metrics.RegisterComponent("monitor", true, "")

	if d.peers != nil {
		d.collector = metrics.NewCollector(d.peers, collectInterval)
		d.collector.Start()
	}

	d.logger.Info().
		Strs("active", d.report.Active).
		Int("failed", len(d.report.Failed)).
		Int("pool", d.pool.Size()).
		Msg("Heartbeat started")
	return nil
}

// Stop terminates the monitor handler, halts the plugins within the
// configured grace, then stops the HTTP surface and closes the store
func (d *Daemon) Stop(ctx context.Context) error {
	d.logger.Info().Msg("Heartbeat stopping")
	metrics.UpdateComponent("monitor", false, "stopping")

	var errs []error

	// realtime producers such as the histamine listener go first, so no
	// heartbeat lands after pulse.Monitor's final flush in HaltAll
	if d.handler != nil {
		if err := d.handler.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate monitors: %w", err))
		}
	}

	if late := d.registry.HaltAll(ctx, d.cfg.Monitor.HaltGrace); len(late) > 0 {
		errs = append(errs, fmt.Errorf("plugins did not halt in time: %v", late))
	}

	if d.collector != nil {
		d.collector.Stop()
	}

	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
		}
	}

	if err := d.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}

	for _, name := range []string{"router", "monitor", "registry"} {
		metrics.RemoveComponent(name)
	}
	// active plugins are removed by HaltAll
	for _, f := range d.report.Failed {
		metrics.RemoveComponent("plugin:" + f.Name)
	}
	return errors.Join(errs...)
}

// Report returns the outcome of plugin activation
func (d *Daemon) Report() plugin.Report {
	return d.report
}

// Router returns the event router. It is nil before Start.
func (d *Daemon) Router() *routing.Router {
	return d.router
}

// Info returns the discovered node identity
func (d *Daemon) Info() *network.Info {
	return d.info
}

// HTTPAddr returns the address the HTTP surface is bound to, if running
func (d *Daemon) HTTPAddr() string {
	if d.server == nil {
		return ""
	}
	return d.server.Addr()
}
