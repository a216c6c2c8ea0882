package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinkloop_llm_requests_total",
		Help: "Chat completion requests by outcome",
	}, []string{"model", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "thinkloop_llm_request_duration_seconds",
		Help:    "Chat completion latency including retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"model"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinkloop_llm_retries_total",
		Help: "Chat completion attempts retried after a transient failure",
	}, []string{"model"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinkloop_llm_tokens_total",
		Help: "Tokens reported by the backend",
	}, []string{"model", "kind"})
)
