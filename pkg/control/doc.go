/*
Package control lets local processes inject events into a running daemon.

The daemon listens on a unix stream socket (default /tmp/heartbeat.sock).
A client connects, writes one JSON encoded event and closes the
connection. Accepted events are tagged with the source "LocalSocket" and
routed like any other event; anything that does not decode is dropped.

	err := control.Send(control.DefaultSocketPath, events.MustNew(
		"Backup", "nightly backup finished",
		events.WithType(events.TopicInfo),
	))

The heartbeat send command is a thin wrapper around Send.
*/
package control
