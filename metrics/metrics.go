// Package metrics exposes Prometheus instrumentation for the engine.
// Collectors register on the default registry; serve them with
// promhttp.Handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsIngested counts documents accepted into the graph,
	// re-ingests included.
	DocumentsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kennisgraaf_documents_ingested_total",
		Help: "Documents ingested into the knowledge graph.",
	})

	// DocumentsRemoved counts documents removed from the graph.
	DocumentsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kennisgraaf_documents_removed_total",
		Help: "Documents removed from the knowledge graph.",
	})

	// MentionsExtracted counts entity mentions produced by extraction.
	MentionsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kennisgraaf_mentions_extracted_total",
		Help: "Entity mentions extracted from document text.",
	})

	// Assessments counts compliance assessments by disclosure outcome.
	Assessments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kennisgraaf_assessments_total",
		Help: "Compliance assessments by disclosure outcome.",
	}, []string{"disclosure"})

	// InvariantViolations counts graph integrity violations. Any nonzero
	// value is a bug.
	InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kennisgraaf_graph_invariant_violations_total",
		Help: "Knowledge graph integrity violations detected and repaired.",
	})

	// SuggestDuration times the full suggestion pipeline.
	SuggestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kennisgraaf_suggest_duration_seconds",
		Help:    "Duration of the metadata suggestion pipeline.",
		Buckets: prometheus.DefBuckets,
	})

	// GraphNodes tracks the current node count.
	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kennisgraaf_graph_nodes",
		Help: "Current number of nodes in the knowledge graph.",
	})

	// GraphEdges tracks the current edge count.
	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kennisgraaf_graph_edges",
		Help: "Current number of edges in the knowledge graph.",
	})

	// HTTPRequests counts API requests by method, route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kennisgraaf_http_requests_total",
		Help: "API requests by method, route and status class.",
	}, []string{"method", "route", "status"})
)
