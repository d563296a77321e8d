// Package metrics exports protocol run statistics to Prometheus through the
// engine's lifecycle hooks.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chanflow"

// Collector counts runs and times steps.
type Collector struct {
	runs       *prometheus.CounterVec
	suspends   *prometheus.CounterVec
	steps      *prometheus.HistogramVec
	stepErrors *prometheus.CounterVec
}

// NewCollector creates the collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Protocol runs by outcome.",
			},
			[]string{"protocol", "role", "outcome"},
		),
		suspends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "run_suspensions_total",
				Help:      "Times a run suspended waiting for a reply.",
			},
			[]string{"protocol", "role"},
		),
		steps: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of flow steps.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"protocol", "step"},
		),
		stepErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_errors_total",
				Help:      "Flow steps that failed.",
			},
			[]string{"protocol", "step"},
		),
	}
	for _, col := range []prometheus.Collector{c.runs, c.suspends, c.steps, c.stepErrors} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Hooks returns lifecycle hooks feeding the collector.
func (c *Collector) Hooks() domain.LifecycleHooks {
	outcome := func(name string) func(context.Context, *domain.RunEvent) {
		return func(_ context.Context, e *domain.RunEvent) {
			c.runs.WithLabelValues(string(e.Protocol), strconv.Itoa(e.Role), name).Inc()
		}
	}
	return domain.LifecycleHooks{
		OnRunStart:    outcome("started"),
		OnRunComplete: outcome("completed"),
		OnRunFail:     outcome("failed"),
		OnRunSuspend: func(_ context.Context, e *domain.RunEvent) {
			c.suspends.WithLabelValues(string(e.Protocol), strconv.Itoa(e.Role)).Inc()
		},
		OnStep: func(_ context.Context, e *domain.StepEvent) {
			c.steps.WithLabelValues(string(e.Protocol), e.Name).Observe(e.Duration.Seconds())
			if e.IsError {
				c.stepErrors.WithLabelValues(string(e.Protocol), e.Name).Inc()
			}
		},
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
