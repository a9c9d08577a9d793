/*
Package network provides node identity discovery and the UDP plumbing
events travel over.

# Identity

Discover gathers the hostname, fully qualified name, LAN address and,
when a lookup URL is configured, the WAN address of this node. Lookups
that fail degrade to the hostname or UnknownIP; discovery never fails.

IsOwn decides whether a host name seen on the wire refers to this node.
It matches any of the four identities, ignoring case and a trailing dot,
and understands the name@address form the histamine listener tags
received events with:

	info := network.Discover(ctx, network.Options{})
	info.IsOwn("node-a.lan")        // true
	info.IsOwn("other@192.168.1.20") // true when 192.168.1.20 is our LAN IP

# Transport

	┌──────────── Broadcaster ────────────┐      ┌────── Listener ───────┐
	│ Push(data) bool                      │ UDP  │ Serve(ctx)            │
	│ gobreaker: 5 failures open 30s       │─────▶│ 64KiB datagrams       │
	│ SO_BROADCAST for broadcast targets   │      │ handler panics caught │
	└─────────────────────────────────────┘      └───────────────────────┘

A Broadcaster sends to a fixed host or to the limited broadcast address.
Repeated send failures open its circuit breaker so a dead route costs
nothing until the breaker half-opens again.
*/
package network
