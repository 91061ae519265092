package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AuthHeadersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyclob_auth_headers_total",
		Help: "Authentication header sets computed, by tier",
	}, []string{"tier"})

	OrdersSigned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyclob_orders_signed_total",
		Help: "The total number of orders signed locally",
	}, []string{"side", "neg_risk"})

	StreamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyclob_stream_events_total",
		Help: "Stream events dispatched to listeners",
	}, []string{"channel", "event_type"})

	StreamReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyclob_stream_reconnects_total",
		Help: "Reconnect attempts scheduled by stream clients",
	}, []string{"channel"})

	StreamState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "polyclob_stream_state",
		Help: "Current stream client state (0 idle, 1 connecting, 2 open, 3 reconnecting, 4 closing, 5 closed)",
	}, []string{"channel"})

	ListenerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyclob_stream_listener_errors_total",
		Help: "Errors and panics raised by stream listeners",
	}, []string{"channel"})

	RiskRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyclob_risk_rejects_total",
		Help: "Orders refused by the pre-trade checks, by reason",
	}, []string{"reason"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polyclob_http_request_duration_seconds",
		Help:    "HTTP latency in seconds for outbound REST calls and the ops server",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
