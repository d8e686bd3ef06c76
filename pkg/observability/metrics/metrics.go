// Package metrics exposes Prometheus instrumentation for the query router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoutingDecisions counts terminal routing decisions by layer and category.
	RoutingDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_routing_decisions_total",
			Help: "The total number of terminal routing decisions by layer",
		},
		[]string{"layer", "category"},
	)

	// RoutingLatency tracks end-to-end router pipeline latency.
	RoutingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "concierge_routing_latency_seconds",
			Help:    "The duration of a full router pipeline evaluation in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// EmbeddingLatency tracks embedding provider call latency.
	EmbeddingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "concierge_embedding_latency_seconds",
			Help:    "The duration of embedding provider calls in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// EmbeddingErrors counts failed embedding provider calls.
	EmbeddingErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "concierge_embedding_errors_total",
			Help: "The total number of failed embedding provider calls",
		},
	)

	// RetrievalTopScore tracks the best similarity score per retrieval.
	RetrievalTopScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "concierge_retrieval_top_score",
			Help:    "The top similarity score returned per retrieval fallback",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	// Requests counts concierge requests by outcome status.
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_requests_total",
			Help: "The total number of concierge requests by status",
		},
		[]string{"status"},
	)
)

// RecordRoutingDecision records a terminal decision for the given layer.
func RecordRoutingDecision(layer, category string) {
	if category == "" {
		category = "none"
	}
	RoutingDecisions.WithLabelValues(layer, category).Inc()
}

// RecordRoutingLatency records a completed pipeline evaluation.
func RecordRoutingLatency(seconds float64) {
	RoutingLatency.Observe(seconds)
}

// RecordEmbedding records one embedding provider call.
func RecordEmbedding(seconds float64, err error) {
	EmbeddingLatency.Observe(seconds)
	if err != nil {
		EmbeddingErrors.Inc()
	}
}

// RecordRetrievalTopScore records the best score of a retrieval fallback.
func RecordRetrievalTopScore(score float64) {
	RetrievalTopScore.Observe(score)
}

// RecordRequest records one request outcome ("ok", "invalid", "provider_error", "error").
func RecordRequest(status string) {
	Requests.WithLabelValues(status).Inc()
}
