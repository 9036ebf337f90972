// Package metrics exposes the pipeline's Prometheus counters. The dashboard
// server mounts the scrape handler on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChunksCaptured counts audio chunks delivered by the capture callback.
	ChunksCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anchor_capture_chunks_total",
		Help: "Audio chunks delivered by the capture device callback.",
	})

	// BridgeDropped counts chunks shed because the producer bridge queue
	// was full.
	BridgeDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchor_bridge_dropped_total",
		Help: "Items dropped by producer bridges on queue-full.",
	}, []string{"topic"})

	// BusPublished counts messages published per topic.
	BusPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchor_bus_published_total",
		Help: "Messages published on the bus, by topic.",
	}, []string{"topic"})

	// AnalysesRun counts detection engine invocations.
	AnalysesRun = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anchor_analyses_total",
		Help: "Detection engine analysis cycles run.",
	})

	// InterventionsFired counts spoken warnings actually triggered.
	InterventionsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchor_interventions_total",
		Help: "Interventions fired, by scam category.",
	}, []string{"category"})

	// CollaboratorFailures counts model collaborator calls that errored and
	// were substituted with a fallback.
	CollaboratorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchor_collaborator_failures_total",
		Help: "Collaborator failures substituted with deterministic fallbacks.",
	}, []string{"collaborator"})
)
