package plugin

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/cuemby/heartbeat/pkg/metrics"
	"github.com/rs/zerolog"
)

// DefaultMaxPasses bounds how many passes ActivatePlugins makes over the
// waiting plugins without progress before giving up on them
const DefaultMaxPasses = 10

var (
	ErrAlreadyConfigured = errors.New("plugin whitelist already populated")
	ErrNotWhitelisted    = errors.New("plugin not whitelisted")
)

// Factory constructs a plugin instance
type Factory func() (Plugin, error)

// Active is an activated plugin and the name it was registered under
type Active struct {
	Name   string
	Plugin Plugin
}

// Failure describes a plugin that could not be activated
type Failure struct {
	Name    string
	Missing []string
	Err     error
}

func (f Failure) String() string {
	switch {
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Name, f.Err)
	case len(f.Missing) > 0:
		return fmt.Sprintf("%s: missing services %s", f.Name, strings.Join(f.Missing, ", "))
	default:
		return f.Name
	}
}

// Report is the outcome of ActivatePlugins
type Report struct {
	Active []string
	Failed []Failure
	Passes int
}

type candidate struct {
	name     string
	factory  Factory
	instance Plugin
	err      error
}

// Registry holds the plugins allowed to run and activates them in
// dependency order
type Registry struct {
	mu         sync.Mutex
	whitelist  map[string]bool
	configured bool
	candidates []*candidate
	active     []Active

	maxPasses int
	backoff   *backoff.ExponentialBackOff
	shuffle   func(n int, swap func(i, j int))
	logger    zerolog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	return &Registry{
		whitelist: make(map[string]bool),
		maxPasses: DefaultMaxPasses,
		backoff:   b,
		shuffle:   rand.Shuffle,
		logger:    log.WithComponent("registry"),
	}
}

// SetMaxPasses changes the pass budget of ActivatePlugins
func (r *Registry) SetMaxPasses(n int) {
	if n > 0 {
		r.maxPasses = n
	}
}

// SetLogger replaces the registry's logger
func (r *Registry) SetLogger(logger zerolog.Logger) {
	r.logger = logger
}

// PopulateWhitelist sets the plugin names allowed to register. It may only
// be called once.
func (r *Registry) PopulateWhitelist(names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.configured {
		return ErrAlreadyConfigured
	}
	for _, name := range names {
		r.whitelist[name] = true
	}
	r.configured = true
	return nil
}

// Whitelisted reports whether name may register
func (r *Registry) Whitelisted(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.whitelist[name]
}

// Register adds a plugin factory under name if the name is whitelisted.
// Registering the same name twice keeps the first factory.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.whitelist[name] {
		return fmt.Errorf("%w: %s", ErrNotWhitelisted, name)
	}
	for _, c := range r.candidates {
		if c.name == name {
			return nil
		}
	}

	r.candidates = append(r.candidates, &candidate{name: name, factory: factory})
	r.logger.Debug().Str("plugin", name).Msg("Plugin registered")
	return nil
}

// Candidates returns the registered plugin names in registration order
func (r *Registry) Candidates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.candidates))
	for _, c := range r.candidates {
		names = append(names, c.name)
	}
	return names
}

// Active returns the activated plugins in activation order
func (r *Registry) Active() []Active {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Active(nil), r.active...)
}

// ActivatePlugins constructs every registered plugin and activates those
// whose required services are provided by plugins already active. Each
// pass visits the waiting plugins in random order. A plugin whose factory
// fails is retried on later passes after a backoff delay. Plugins still
// waiting after the pass budget, or once no further progress is possible,
// are reported as failed; this is never fatal.
func (r *Registry) ActivatePlugins(ctx context.Context) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	available := make(map[string]bool)
	for _, a := range r.active {
		for _, svc := range a.Plugin.Services() {
			available[svc] = true
		}
	}

	var waiting []*candidate
	for _, c := range r.candidates {
		if !r.isActive(c.name) {
			waiting = append(waiting, c)
		}
	}

	var report Report
	r.backoff.Reset()

	stalled := 0
	for len(waiting) > 0 && stalled < r.maxPasses {
		report.Passes++
		r.shuffle(len(waiting), func(i, j int) { waiting[i], waiting[j] = waiting[j], waiting[i] })

		progress := false
		constructionFailed := false
		var next []*candidate

		for _, c := range waiting {
			if c.instance == nil {
				inst, err := c.factory()
				if err != nil {
					c.err = err
					constructionFailed = true
					next = append(next, c)
					r.logger.Warn().Err(err).Str("plugin", c.name).Msg("Plugin construction failed")
					continue
				}
				c.instance, c.err = inst, nil
			}

			if !RequirementsSatisfied(c.instance, available) {
				next = append(next, c)
				continue
			}

			r.active = append(r.active, Active{Name: c.name, Plugin: c.instance})
			for _, svc := range c.instance.Services() {
				available[svc] = true
			}
			progress = true

			metrics.RegisterComponent("plugin:"+c.name, true, "active")
			r.logger.Info().
				Str("plugin", c.name).
				Strs("services", c.instance.Services()).
				Msg("Plugin activated")
		}

		waiting = next
		if progress {
			stalled = 0
			continue
		}
		stalled++

		// Missing services can only appear through another activation, so
		// without a construction failure to retry nothing can change.
		if !constructionFailed {
			break
		}
		if len(waiting) > 0 && stalled < r.maxPasses {
			select {
			case <-time.After(r.backoff.NextBackOff()):
			case <-ctx.Done():
				stalled = r.maxPasses
			}
		}
	}

	for _, a := range r.active {
		report.Active = append(report.Active, a.Name)
	}
	for _, c := range waiting {
		f := Failure{Name: c.name, Err: c.err}
		if c.instance != nil {
			f.Missing = missing(c.instance, available)
		}
		report.Failed = append(report.Failed, f)

		metrics.RegisterComponent("plugin:"+c.name, false, f.String())
		r.logger.Error().Str("plugin", c.name).Msgf("Plugin activation failed: %s", f)
	}

	metrics.PluginsActive.Set(float64(len(report.Active)))
	metrics.PluginsFailed.Set(float64(len(report.Failed)))
	metrics.RegisterComponent("registry", true, "")
	return report
}

func (r *Registry) isActive(name string) bool {
	for _, a := range r.active {
		if a.Name == name {
			return true
		}
	}
	return false
}

func missing(p Plugin, available map[string]bool) []string {
	var out []string
	for _, svc := range p.RequiredServices() {
		if !available[svc] {
			out = append(out, svc)
		}
	}
	sort.Strings(out)
	return out
}

// HaltAll halts every active plugin concurrently and waits up to grace.
// It returns the names of plugins that had not finished halting in time.
func (r *Registry) HaltAll(ctx context.Context, grace time.Duration) []string {
	active := r.Active()

	ctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	var mu sync.Mutex
	pending := make(map[string]bool, len(active))
	for _, a := range active {
		pending[a.Name] = true
	}

	var wg sync.WaitGroup
	for _, a := range active {
		wg.Add(1)
		go func(a Active) {
			defer wg.Done()
			if err := a.Plugin.Halt(ctx); err != nil {
				r.logger.Warn().Err(err).Str("plugin", a.Name).Msg("Plugin halt failed")
			}
			mu.Lock()
			delete(pending, a.Name)
			mu.Unlock()
			metrics.RemoveComponent("plugin:" + a.Name)
		}(a)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	var late []string
	for name := range pending {
		late = append(late, name)
	}
	sort.Strings(late)
	if len(late) > 0 {
		r.logger.Warn().Strs("plugins", late).Dur("grace", grace).Msg("Plugins did not halt in time")
	}
	return late
}
