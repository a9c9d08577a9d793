// Package monitor schedules event producers. Realtime producers are
// submitted once at Start and run until the pool shuts down; periodic
// producers are submitted on every scan.
package monitor
