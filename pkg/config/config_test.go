package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 21999, cfg.Pulse.Port)
	assert.Equal(t, 22000, cfg.Histamine.Port)
	assert.Equal(t, 300*time.Second, cfg.Pulse.Flatline)
	assert.Equal(t, 60*time.Second, cfg.Monitor.ScanInterval)
	assert.Equal(t, 5*time.Second, cfg.Monitor.HaltGrace)
	assert.Equal(t, 10, cfg.Monitor.ActivationPasses)
	assert.Equal(t, 4, cfg.Histamine.MaxAttempts)
	assert.Equal(t, "/tmp/heartbeat.sock", cfg.Control.Socket)
	assert.Equal(t, storage.BackendFile, cfg.Cache.Backend)
	assert.Contains(t, cfg.Plugins, PluginPulse)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "heartbeat.yaml", `
identity: node-a.example
secret_key: s3cret
monitor_server: 10.0.0.1
plugins: [pulse.Pulse, histamine.Sender]
pulse:
  interval: 40s
  flatline: 2m
histamine:
  topics: [WARNING, INFO]
  acking: false
encryption:
  enabled: true
  password: hunter2
cache:
  backend: bolt
  dir: /var/cache/heartbeat
log:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node-a.example", cfg.Identity)
	assert.Equal(t, "s3cret", cfg.SecretKey)
	assert.Equal(t, "10.0.0.1", cfg.MonitorServer)
	assert.Equal(t, []string{PluginPulse, PluginHistamineSender}, cfg.Plugins)
	assert.Equal(t, 40*time.Second, cfg.Pulse.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Pulse.Flatline)
	assert.Equal(t, []events.Topic{events.TopicWarning, events.TopicInfo}, cfg.HistamineTopics())
	assert.False(t, cfg.Histamine.Acking)
	assert.True(t, cfg.Encryption.Enabled)
	assert.Equal(t, storage.BackendBolt, cfg.Cache.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)

	// untouched keys keep their defaults
	assert.Equal(t, 22000, cfg.Histamine.Port)
	assert.Equal(t, 60*time.Second, cfg.Monitor.ScanInterval)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "heartbeat.toml", `
identity = "node-b"
plugins = ["pulse.Monitor"]

[pulse]
port = 31999
flatline = "90s"

[monitor]
scan_interval = "15s"
halt_grace = "1s"

[control]
socket = "/run/heartbeat.sock"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node-b", cfg.Identity)
	assert.Equal(t, []string{PluginPulseMonitor}, cfg.Plugins)
	assert.Equal(t, 31999, cfg.Pulse.Port)
	assert.Equal(t, 90*time.Second, cfg.Pulse.Flatline)
	assert.Equal(t, 15*time.Second, cfg.Monitor.ScanInterval)
	assert.Equal(t, time.Second, cfg.Monitor.HaltGrace)
	assert.Equal(t, "/run/heartbeat.sock", cfg.Control.Socket)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "heartbeat.ini", "x=1"))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "pulse: [nope"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "invalid.yaml", "histamine:\n  port: 70000\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"pulse port", func(c *Config) { c.Pulse.Port = 0 }},
		{"histamine port", func(c *Config) { c.Histamine.Port = 65536 }},
		{"negative interval", func(c *Config) { c.Pulse.Interval = -time.Second }},
		{"flatline", func(c *Config) { c.Pulse.Flatline = 0 }},
		{"attempts", func(c *Config) { c.Histamine.MaxAttempts = 0 }},
		{"password", func(c *Config) { c.Encryption.Enabled = true }},
		{"cache dir", func(c *Config) { c.Cache.Dir = "" }},
		{"backend", func(c *Config) { c.Cache.Backend = "redis" }},
		{"scan interval", func(c *Config) { c.Monitor.ScanInterval = 0 }},
		{"halt grace", func(c *Config) { c.Monitor.HaltGrace = -time.Second }},
		{"passes", func(c *Config) { c.Monitor.ActivationPasses = 0 }},
		{"headroom", func(c *Config) { c.Monitor.PoolHeadroom = -1 }},
		{"topic", func(c *Config) { c.Histamine.Topics = []string{"CRITICAL"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestValidateTopicWrapsEventError(t *testing.T) {
	cfg := Default()
	cfg.Histamine.Topics = []string{"CRITICAL"}
	assert.ErrorIs(t, cfg.Validate(), events.ErrInvalidTopic)
}
