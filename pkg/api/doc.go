/*
Package api provides the read-only HTTP surface of the heartbeat daemon.

# Endpoints

	GET /metrics   Prometheus metrics
	GET /health    overall component health (503 when any is unhealthy)
	GET /ready     readiness of the router, monitor handler and registry
	GET /live      liveness, always 200 while the process runs
	GET /events    websocket stream of every dispatched event

Every other method is rejected with 405. Events enter the daemon through
the control socket or the network, never over HTTP.

# Live feed

The Feed is attached to the router as a subscriber of every topic. Each
websocket client receives events as JSON text messages in the same
encoding used on the wire. A client that falls DefaultClientBuffer events
behind misses events rather than slowing the router down.

	feed := api.NewFeed()
	for _, topic := range events.Topics {
		router.Attach(topic, "api.Feed", feed.Publish)
	}

	srv := api.NewServer(cfg.HTTPAddr, feed)
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Shutdown(ctx)
*/
package api
