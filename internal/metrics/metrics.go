// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recurrence outcomes recorded by the event list pipeline.
const (
	OutcomeKept        = "kept"        // future start, no resolution needed
	OutcomeProjected   = "projected"   // moved to its next occurrence
	OutcomeExhausted   = "exhausted"   // no occurrence within the horizon
	OutcomeUntilSkip   = "until_skip"  // UNTIL present, excluded by policy
	OutcomeMalformed   = "malformed"   // rule could not be parsed or built
	OutcomeUnsupported = "unsupported" // frequency outside the supported set
)

// Registry is the registry served by the HTTP layer. It is separate from the
// global default registry so tests and embedders get a predictable set.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	PipelineRuns = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "gcalfeed_pipeline_runs_total",
		Help: "Event list pipeline invocations by mode.",
	}, []string{"mode"})

	Recurrence = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "gcalfeed_recurrence_total",
		Help: "Recurring events handled by the pipeline, by outcome.",
	}, []string{"outcome"})

	FeedFetches = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "gcalfeed_feed_fetch_total",
		Help: "Calendar feed fetches by result (fresh, cached, error).",
	}, []string{"result"})

	FeedEvents = factory.NewGauge(prometheus.GaugeOpts{
		Name: "gcalfeed_feed_events",
		Help: "Number of events held after the last feed refresh.",
	})
)
