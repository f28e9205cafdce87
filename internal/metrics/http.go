package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robohub_http_requests_total",
		Help: "Total HTTP requests handled by the management API, by route and status class.",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "robohub_http_request_duration_seconds",
		Help:    "Latency of management API requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)
