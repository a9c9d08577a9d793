/*
Package pulse tracks which peers are alive.

Pulse emits a HEARTBEAT event carrying this node's identity every 20 to
100 seconds; the interval is picked at random per node so nodes sharing a
network do not beat in step. The histamine sender ships the heartbeat to
peers.

Monitor receives heartbeats from peers, remembers when each peer last beat
in the known-pulses cache and reports transitions:

	New Heartbeat    first heartbeat from a peer
	Flatlined Host   no heartbeat for longer than the flatline threshold

Known peers survive restarts. On startup every remembered peer is treated
as seen now, so peers are not flatlined for the time this node was down.
*/
package pulse
