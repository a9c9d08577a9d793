// Package timer provides a background timer that calls a function after an
// interval, once or repeatedly, until stopped. The interval may be a
// function evaluated before every wait. The monitor handler drives its scans
// with it and pulse.Pulse its heartbeats.
package timer
