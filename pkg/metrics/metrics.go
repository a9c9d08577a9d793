package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Router metrics
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartbeat_events_published_total",
			Help: "Total number of events handed to the router by topic",
		},
		[]string{"topic"},
	)

	EventsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartbeat_events_suppressed_total",
			Help: "Total number of events rejected by the rate limiter by topic",
		},
		[]string{"topic"},
	)

	EventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartbeat_events_dispatched_total",
			Help: "Total number of subscriber calls submitted by topic",
		},
		[]string{"topic"},
	)

	SubscriberFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartbeat_subscriber_failures_total",
			Help: "Total number of subscriber calls that returned an error or panicked",
		},
		[]string{"topic"},
	)

	// Monitor metrics
	ScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_scans_total",
			Help: "Total number of periodic producer scans",
		},
	)

	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "heartbeat_scan_duration_seconds",
			Help:    "Time taken to submit one periodic scan in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProducerFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_producer_failures_total",
			Help: "Total number of producer runs that returned an error or panicked",
		},
	)

	// Worker pool metrics
	PoolTasksActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heartbeat_pool_tasks_active",
			Help: "Number of worker pool tasks currently holding a slot",
		},
	)

	// Plugin metrics
	PluginsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heartbeat_plugins_active",
			Help: "Number of activated plugins",
		},
	)

	PluginsFailed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heartbeat_plugins_failed",
			Help: "Number of plugins that could not be activated",
		},
	)

	// Peer metrics
	PeersKnown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heartbeat_peers_known",
			Help: "Number of peers with a recent heartbeat",
		},
	)

	PeersFlatlined = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_peers_flatlined_total",
			Help: "Total number of peers declared flatlined",
		},
	)

	// Histamine metrics
	HistamineSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartbeat_histamine_sent_total",
			Help: "Total number of datagrams sent by result",
		},
		[]string{"result"},
	)

	HistamineReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_histamine_received_total",
			Help: "Total number of datagrams accepted by the listener",
		},
	)

	HistamineDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartbeat_histamine_dropped_total",
			Help: "Total number of datagrams dropped by the listener by reason",
		},
		[]string{"reason"},
	)

	HistamineRetransmits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_histamine_retransmits_total",
			Help: "Total number of unacknowledged events sent again",
		},
	)

	HistamineAcked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_histamine_acked_total",
			Help: "Total number of sent events acknowledged by a peer",
		},
	)

	HistamineUnacked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heartbeat_histamine_unacked",
			Help: "Number of sent events awaiting acknowledgment",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heartbeat_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heartbeat_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	FeedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heartbeat_feed_clients",
			Help: "Number of connected live event feed clients",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(EventsSuppressed)
	prometheus.MustRegister(EventsDispatched)
	prometheus.MustRegister(SubscriberFailures)
	prometheus.MustRegister(ScansTotal)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(ProducerFailures)
	prometheus.MustRegister(PoolTasksActive)
	prometheus.MustRegister(PluginsActive)
	prometheus.MustRegister(PluginsFailed)
	prometheus.MustRegister(PeersKnown)
	prometheus.MustRegister(PeersFlatlined)
	prometheus.MustRegister(HistamineSent)
	prometheus.MustRegister(HistamineReceived)
	prometheus.MustRegister(HistamineDropped)
	prometheus.MustRegister(HistamineRetransmits)
	prometheus.MustRegister(HistamineAcked)
	prometheus.MustRegister(HistamineUnacked)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(FeedClients)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
