/*
Package log provides structured logging for Heartbeat using zerolog.

The log package wraps zerolog with a process-wide logger, a one-shot Init for
level and format, and child-logger helpers that tag lines with the component
or plugin they concern. Every long-lived Heartbeat component keeps its
own child logger so that log lines can be filtered per subsystem.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Safe for concurrent use                  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("router")                  │          │
	│  │  - WithPlugin("pulse.Monitor")              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

Initializing the Logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Component Loggers:

	logger := log.WithComponent("router")
	logger.Error().
		Str("location", "pulse/monitor.go:88").
		Err(err).
		Msg("subscriber failed")

# Conventions

Failures inside subscribers and producers are logged at error level with a
"location" field. Datagrams that fail to decode are logged at debug level
only, so hostile traffic cannot flood the log.
*/
package log
