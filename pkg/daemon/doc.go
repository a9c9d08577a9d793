// Package daemon assembles a running heartbeat node from its configuration.
package daemon
