/*
Package events defines the Event, the unit of information flowing through Heartbeat.

An Event is typed by a Topic, timestamped, attributed to the component that
produced it, and content-addressable through ContentHash. Producers build
events with New; the router, the rate limiter and the network transport only
ever read them.

# Architecture

	┌──────────────────────── EVENT ───────────────────────────┐
	│                                                            │
	│  ID ────────── fresh uuid per instance                    │
	│  Title, Message, Host, Source, Type ──┐                    │
	│                                        ├─► ContentHash()   │
	│                                        │   sha256, stable  │
	│                                        │   across restarts │
	│  Timestamp ── creation instant (When() as epoch seconds)  │
	│  OneTime ──── exempt from repeat suppression               │
	│  Payload ──── ip, ip_type, histamine_attempt,              │
	│               histamine_acking, dest, histamine_origin     │
	└────────────────────────────────────────────────────────┘

# Topics

The topic set is closed: WARNING, INFO, DEBUG, VIRT, HEARTBEAT, STARTUP and
ACK. New rejects anything else with ErrInvalidTopic, and Unmarshal rejects
unknown type names with ErrUnsupportedType.

# Wire Format

Events serialize to a versioned JSON object:

	{"v":1,"id":"…","title":"System heartbeat","message":"",
	 "host":"node-1.lan","type":"HEARTBEAT","source":"pulse.Pulse",
	 "one_time":false,"when":1729339200.25,"payload":{}}

Title, message and type are required when decoding. Missing host, source,
one_time, payload or id fall back to defaults so events from older senders
still decode.

# Usage

	e, err := events.New("Flatlined Host", "Host flatlined (heartbeat lost)",
		events.WithHost(host),
		events.WithType(events.TopicWarning),
	)
	if err != nil {
		return err
	}
	emit(e)
*/
package events
