package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/cuemby/heartbeat/pkg/storage"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownFormat = errors.New("unknown config file format")
	ErrInvalid       = errors.New("invalid config")
)

// Built-in plugin names, as used in the plugin whitelist
const (
	PluginStartup         = "pulse.Startup"
	PluginPulse           = "pulse.Pulse"
	PluginPulseMonitor    = "pulse.Monitor"
	PluginHistamineSender = "histamine.Sender"
	PluginHistamineListen = "histamine.Listener"
	PluginControlSocket   = "control.Socket"
	PluginLogNotifier     = "notify.Log"
)

// Config is the daemon configuration. It is built once at startup and
// passed by pointer to whatever needs it.
type Config struct {
	// Identity overrides the discovered fully qualified host name
	Identity  string `yaml:"identity" toml:"identity"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`

	// MonitorServer is where events are sent. Empty broadcasts.
	MonitorServer string `yaml:"monitor_server" toml:"monitor_server"`
	WANLookupURL  string `yaml:"wan_lookup_url" toml:"wan_lookup_url"`

	Plugins []string `yaml:"plugins" toml:"plugins"`

	Pulse      PulseConfig      `yaml:"pulse" toml:"pulse"`
	Histamine  HistamineConfig  `yaml:"histamine" toml:"histamine"`
	Encryption EncryptionConfig `yaml:"encryption" toml:"encryption"`
	Cache      CacheConfig      `yaml:"cache" toml:"cache"`
	Monitor    MonitorConfig    `yaml:"monitor" toml:"monitor"`
	Control    ControlConfig    `yaml:"control" toml:"control"`
	HTTP       HTTPConfig       `yaml:"http" toml:"http"`
	Log        LogConfig        `yaml:"log" toml:"log"`
}

type PulseConfig struct {
	Port int `yaml:"port" toml:"port"`

	// Interval between beats. Zero picks a random interval per run.
	Interval time.Duration `yaml:"interval" toml:"interval"`

	// Flatline is how long a peer may stay silent
	Flatline time.Duration `yaml:"flatline" toml:"flatline"`
}

type HistamineConfig struct {
	Port        int      `yaml:"port" toml:"port"`
	Topics      []string `yaml:"topics" toml:"topics"`
	Acking      bool     `yaml:"acking" toml:"acking"`
	MaxAttempts int      `yaml:"max_attempts" toml:"max_attempts"`
}

type EncryptionConfig struct {
	Enabled         bool   `yaml:"enabled" toml:"enabled"`
	Password        string `yaml:"password" toml:"password"`
	AcceptPlaintext bool   `yaml:"accept_plaintext" toml:"accept_plaintext"`
}

type CacheConfig struct {
	Dir     string `yaml:"dir" toml:"dir"`
	Backend string `yaml:"backend" toml:"backend"`
}

type MonitorConfig struct {
	ScanInterval     time.Duration `yaml:"scan_interval" toml:"scan_interval"`
	HaltGrace        time.Duration `yaml:"halt_grace" toml:"halt_grace"`
	ActivationPasses int           `yaml:"activation_passes" toml:"activation_passes"`
	PoolHeadroom     int           `yaml:"pool_headroom" toml:"pool_headroom"`
}

type ControlConfig struct {
	Socket string `yaml:"socket" toml:"socket"`
}

type HTTPConfig struct {
	// Addr is where metrics, health and the live feed are served. Empty
	// disables the HTTP surface.
	Addr string `yaml:"addr" toml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
	JSON  bool   `yaml:"json" toml:"json"`
}

// Default returns a configuration with every value set
func Default() *Config {
	return &Config{
		SecretKey: "heartbeat",
		Plugins: []string{
			PluginStartup,
			PluginPulse,
			PluginPulseMonitor,
			PluginHistamineSender,
			PluginHistamineListen,
			PluginControlSocket,
			PluginLogNotifier,
		},
		Pulse: PulseConfig{
			Port:     21999,
			Flatline: 300 * time.Second,
		},
		Histamine: HistamineConfig{
			Port:        22000,
			Acking:      true,
			MaxAttempts: 4,
		},
		Cache: CacheConfig{
			Dir:     defaultCacheDir(),
			Backend: storage.BackendFile,
		},
		Monitor: MonitorConfig{
			ScanInterval:     60 * time.Second,
			HaltGrace:        5 * time.Second,
			ActivationPasses: 10,
			PoolHeadroom:     4,
		},
		Control: ControlConfig{
			Socket: "/tmp/heartbeat.sock",
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:9721",
		},
		Log: LogConfig{
			Level: string(log.InfoLevel),
		},
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "heartbeat")
	}
	return filepath.Join(os.TempDir(), "heartbeat")
}

// Load reads path over the defaults. The format follows the extension:
// .yaml, .yml or .toml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting the daemon cannot run with
func (c *Config) Validate() error {
	switch {
	case !validPort(c.Pulse.Port):
		return fmt.Errorf("%w: pulse.port %d out of range", ErrInvalid, c.Pulse.Port)
	case !validPort(c.Histamine.Port):
		return fmt.Errorf("%w: histamine.port %d out of range", ErrInvalid, c.Histamine.Port)
	case c.Pulse.Interval < 0:
		return fmt.Errorf("%w: pulse.interval must not be negative", ErrInvalid)
	case c.Pulse.Flatline <= 0:
		return fmt.Errorf("%w: pulse.flatline must be positive", ErrInvalid)
	case c.Histamine.MaxAttempts < 1:
		return fmt.Errorf("%w: histamine.max_attempts must be at least 1", ErrInvalid)
	case c.Encryption.Enabled && c.Encryption.Password == "":
		return fmt.Errorf("%w: encryption.password required when encryption is enabled", ErrInvalid)
	case c.Cache.Dir == "":
		return fmt.Errorf("%w: cache.dir required", ErrInvalid)
	case c.Cache.Backend != storage.BackendFile && c.Cache.Backend != storage.BackendBolt:
		return fmt.Errorf("%w: cache.backend %q, want %q or %q", ErrInvalid, c.Cache.Backend, storage.BackendFile, storage.BackendBolt)
	case c.Monitor.ScanInterval <= 0:
		return fmt.Errorf("%w: monitor.scan_interval must be positive", ErrInvalid)
	case c.Monitor.HaltGrace < 0:
		return fmt.Errorf("%w: monitor.halt_grace must not be negative", ErrInvalid)
	case c.Monitor.ActivationPasses < 1:
		return fmt.Errorf("%w: monitor.activation_passes must be at least 1", ErrInvalid)
	case c.Monitor.PoolHeadroom < 0:
		return fmt.Errorf("%w: monitor.pool_headroom must not be negative", ErrInvalid)
	}

	for _, t := range c.Histamine.Topics {
		if !events.Topic(t).Valid() {
			return fmt.Errorf("%w: histamine.topics: %w: %q", ErrInvalid, events.ErrInvalidTopic, t)
		}
	}
	return nil
}

// HistamineTopics returns the configured topics as events.Topic values
func (c *Config) HistamineTopics() []events.Topic {
	topics := make([]events.Topic, 0, len(c.Histamine.Topics))
	for _, t := range c.Histamine.Topics {
		topics = append(topics, events.Topic(t))
	}
	return topics
}

func validPort(p int) bool {
	return p > 0 && p < 65536
}
