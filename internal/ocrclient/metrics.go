package ocrclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	clientRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocrbench_client_requests_total",
			Help: "Total number of OCR endpoint calls by outcome",
		},
		[]string{"status"}, // status: ok, http_<code>, transport_error, parse_error, cache_hit
	)

	clientRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ocrbench_client_request_duration_seconds",
			Help:    "OCR endpoint call duration in seconds, retries included",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	clientRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ocrbench_client_retries_total",
			Help: "Total number of retried OCR endpoint attempts",
		},
	)
)
