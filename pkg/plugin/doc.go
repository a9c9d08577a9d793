/*
Package plugin defines the unit of capability the daemon is assembled
from, and the registry that activates plugins in dependency order.

A plugin may subscribe to topics, produce events, provide named services
and require services from other plugins. Only whitelisted names can be
registered. ActivatePlugins activates a plugin once everything it
requires is provided by plugins already active:

	reg := plugin.NewRegistry()
	reg.PopulateWhitelist([]string{"histamine.Sender", "pulse.Pulse"})
	reg.Register("pulse.Pulse", newPulse)         // requires the transmit service
	reg.Register("histamine.Sender", newSender)   // provides it

	report := reg.ActivatePlugins(ctx)
	// report.Active: [histamine.Sender pulse.Pulse]

Activation order within a pass is randomized so plugins cannot depend on
registration order. A plugin whose factory fails is retried after an
exponential backoff; one whose requirements can never be met is reported
as failed once a pass makes no progress. Neither stops the daemon.
*/
package plugin
