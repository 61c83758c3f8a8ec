package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "serverinfo_connections_active",
		Help: "Number of HTTP connections being served",
	})

	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serverinfo_connections_total",
		Help: "Total number of accepted HTTP connections",
	})

	RejectedConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serverinfo_connections_rejected_total",
		Help: "Total number of connections closed because max_connections was reached",
	})

	AcceptErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serverinfo_accept_errors_total",
		Help: "Total number of failed accept calls while running",
	})

	// Request metrics
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serverinfo_requests_total",
		Help: "Total number of HTTP requests by method and status code",
	}, []string{"method", "status"})

	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "serverinfo_request_latency_seconds",
		Help:    "Request handling latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~200ms
	}, []string{"method"})

	HandlerFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serverinfo_handler_faults_total",
		Help: "Total number of handler errors and panics converted to 500",
	})

	// Player cache metrics
	CachedPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "serverinfo_cached_players",
		Help: "Number of players in the cache",
	})

	PlayerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serverinfo_player_events_total",
		Help: "Total number of host join/leave events applied",
	}, []string{"type"})

	EventErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serverinfo_player_event_errors_total",
		Help: "Total number of host events that could not be applied",
	}, []string{"reason"})
)

// IncEventError increments the event error counter
func IncEventError(reason string) {
	EventErrors.WithLabelValues(reason).Inc()
}
