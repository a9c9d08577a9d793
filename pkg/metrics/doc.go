/*
Package metrics provides Prometheus metrics and component health for
Heartbeat.

Every metric is a package-level collector registered with the default
Prometheus registry at init, so any package can record into it without
plumbing. The HTTP surface exposes them through Handler.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Router: published, suppressed, dispatched  │          │
	│  │  Monitor: scans, scan duration, failures    │          │
	│  │  Pool: active tasks                         │          │
	│  │  Plugins: active, failed                    │          │
	│  │  Peers: known, flatlined                    │          │
	│  │  Histamine: sent, received, dropped, acks   │          │
	│  │  API: requests, duration, feed clients      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Health Checker                       │          │
	│  │  - Components register healthy/unhealthy    │          │
	│  │  - /health: every component                 │          │
	│  │  - /ready: router, monitor, registry        │          │
	│  │  - /live: process is up                     │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

Recording a counter by topic:

	metrics.EventsPublished.WithLabelValues(string(e.Type)).Inc()

Timing an operation:

	timer := metrics.NewTimer()
	scan()
	timer.ObserveDuration(metrics.ScanDuration)

Sampling state into gauges:

	collector := metrics.NewCollector(pulseMonitor, 15*time.Second)
	collector.Start()
	defer collector.Stop()

Reporting component health:

	metrics.RegisterComponent("plugin:pulse.Pulse", true, "active")
	metrics.RegisterComponent("plugin:pulse.Monitor", false, "missing services")

# Readiness

The daemon is ready once the router, the monitor handler and the plugin
registry have registered healthy. Failed plugins show up in /health but
never block readiness; a node without a listener still routes local
events.
*/
package metrics
