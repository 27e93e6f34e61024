// Package metrics defines Prometheus instrumentation for BizFinder.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizfinder_messages_received_total",
			Help: "Count of inbound webhook messages",
		},
		[]string{"state"},
	)
	RepliesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bizfinder_replies_sent_total",
			Help: "Count of outbound replies",
		},
	)
	LookupFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizfinder_lookup_failures_total",
			Help: "Count of failed collaborator lookups",
		},
		[]string{"collaborator", "kind"},
	)
	LookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bizfinder_lookup_duration_seconds",
			Help:    "Time taken by the two-step lookup pipeline",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"collaborator"},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bizfinder_active_sessions",
			Help: "Current number of live conversation sessions",
		},
	)
	SessionsTerminated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bizfinder_sessions_terminated_total",
			Help: "Count of sessions removed by an explicit goodbye",
		},
	)
)

// Init registers all collectors with the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(
		MessagesReceived,
		RepliesSent,
		LookupFailures,
		LookupDuration,
		ActiveSessions,
		SessionsTerminated,
	)
}
