/*
Package histamine ships events between nodes over UDP.

# Wire format

	┌──────────────┬──────────────────────────────────────────┐
	│ shared secret│ event JSON, or its encrypted envelope     │
	└──────────────┴──────────────────────────────────────────┘

Datagrams that do not start with the secret, fail to decrypt or fail to
decode are dropped and logged at debug level only.

# Acknowledgment

With acking enabled the Sender keeps every event it sends until a peer
acknowledges it, and sends it again on each scan up to MaxAttempts
attempts:

	node A                                   node B
	Sender ── event (id X, attempt 1) ──────▶ Listener ─▶ router
	                                         Listener ─▶ ACK(acking=X, dest=A)
	Listener ◀──────────────── ACK ────────── Sender
	router ─▶ Sender: X settled

The Listener acknowledges every copy it receives but dispatches each event
id only once, so a retransmission after a lost ACK is not seen twice.
Events that arrived from the network are never sent on again.
*/
package histamine
