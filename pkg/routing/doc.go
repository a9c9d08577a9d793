/*
Package routing delivers events from producers to subscribers.

Every event enters through Router.PutEvent. The RateLimitHandler decides
whether it is new enough to forward; if so, each subscriber of the event's
topic gets its own copy, run on the worker pool. PutEvent never waits for
a subscriber and a failing subscriber never affects the others.

	┌──────────┐  PutEvent   ┌──────────────────┐  allowed  ┌─────────────┐
	│ producer │────────────▶│ RateLimitHandler │──────────▶│ worker pool │
	└──────────┘             │  per topic       │           │ one task    │
	                         │  strategy        │           │ per         │
	                         └────────┬─────────┘           │ subscriber  │
	                                  │ record              └──────┬──────┘
	                         ┌────────▼─────────┐                  │
	                         │ previous / time  │         OnComplete: log
	                         │ caches (on disk) │         failures with
	                         └──────────────────┘         their location

# Suppression

WARNING, INFO, DEBUG and VIRT events are forwarded only when they differ
from the previous event of the same source, so a check that keeps
reporting the same problem alerts once. HEARTBEAT, STARTUP and ACK events
are always forwarded. One-time events skip suppression entirely.

EventDelayPassed is an alternative strategy that lets a repeat through
once the delay window has elapsed since it was last allowed:

	limiter.SetStrategy(events.TopicWarning, limiter.EventDelayPassed)

Both caches are written to disk whenever an event is allowed, so a
restarted daemon does not re-alert on what it already reported.
*/
package routing
