package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nls_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nls_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	TxRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nls_tx_transient_aborts_total",
			Help: "Transactions aborted with a transient error",
		},
		[]string{"operation"},
	)

	BroadcastFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nls_realtime_frames_total",
			Help: "Realtime frames offered to peers",
		},
		[]string{"result"}, // result: queued, dropped
	)

	RealtimePeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nls_realtime_peers",
			Help: "Currently connected realtime peers",
		},
	)

	OutboundCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nls_outbound_calls_total",
			Help: "Calls to external services",
		},
		[]string{"service", "status"}, // status: success, failed, rejected
	)
)

func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
	HTTPRequests.WithLabelValues(method, route, status).Inc()
}

func RecordOutboundCall(service, status string) {
	OutboundCalls.WithLabelValues(service, status).Inc()
}
