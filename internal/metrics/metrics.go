// Package metrics holds the Prometheus collectors for upgrade runs.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// Registry holds the facetctl collectors.
	Registry = prometheus.NewRegistry()

	stepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facetctl",
			Subsystem: "upgrade",
			Name:      "step_runs_total",
			Help:      "Total number of orchestrator steps by outcome.",
		},
		[]string{"step", "status"},
	)

	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "facetctl",
			Subsystem: "upgrade",
			Name:      "step_duration_seconds",
			Help:      "Duration of orchestrator steps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"step"},
	)

	collisions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "facetctl",
			Subsystem: "selectors",
			Name:      "collisions_total",
			Help:      "Selectors dropped because an earlier module already claimed them.",
		},
	)

	routedSelectors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "facetctl",
			Subsystem: "selectors",
			Name:      "routed",
			Help:      "Selectors in the most recent cut batch.",
		},
	)

	warnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facetctl",
			Subsystem: "upgrade",
			Name:      "warnings_total",
			Help:      "Non-fatal warnings raised during upgrades.",
		},
		[]string{"step"},
	)

	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facetctl",
			Subsystem: "upgrade",
			Name:      "runs_total",
			Help:      "Completed orchestrator runs by terminal state.",
		},
		[]string{"state"},
	)
)

func init() {
	Registry.MustRegister(
		stepRuns,
		stepDuration,
		collisions,
		routedSelectors,
		warnings,
		runs,
	)
}

// RecordStep records the outcome and duration of one orchestrator step.
func RecordStep(step, status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	stepRuns.WithLabelValues(step, status).Inc()
	stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordCollisions adds n dropped selectors.
func RecordCollisions(n int) {
	if n > 0 {
		collisions.Add(float64(n))
	}
}

// SetRoutedSelectors records the size of the cut batch.
func SetRoutedSelectors(n int) { routedSelectors.Set(float64(n)) }

// RecordWarning counts a non-fatal warning raised by step.
func RecordWarning(step string) { warnings.WithLabelValues(step).Inc() }

// RecordRun counts a finished run by terminal state.
func RecordRun(state string) { runs.WithLabelValues(state).Inc() }

// Push sends the registry to a Prometheus Pushgateway under job.
func Push(ctx context.Context, url, job string, grouping map[string]string) error {
	p := push.New(url, job).Gatherer(Registry)
	for k, v := range grouping {
		p = p.Grouping(k, v)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
