package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/lockstep/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the scheduler collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	actions *prometheus.CounterVec
	wait    *prometheus.HistogramVec
	run     *prometheus.HistogramVec
	queued  prometheus.Gauge
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lockstep_actions_total",
				Help: "Total number of settled actions",
			},
			[]string{"action", "outcome"},
		),
		wait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lockstep_action_wait_seconds",
				Help:    "Time actions spent queued before their locks were granted",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"action"},
		),
		run: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "lockstep_action_run_seconds",
				Help: "Duration of action bodies, including transfers",
			},
			[]string{"action"},
		),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lockstep_actions_queued",
			Help: "Number of actions currently waiting for their locks",
		}),
	}
	m.registry.MustRegister(m.actions, m.wait, m.run, m.queued)
	return m
}

// Registry exposes the underlying registry, e.g. to add process collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks records every lifecycle event.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnQueued: func(ctx context.Context, e *domain.ActionEvent) {
			m.queued.Inc()
		},
		OnGranted: func(ctx context.Context, e *domain.ActionEvent) {
			if e.Queued {
				m.queued.Dec()
				m.wait.WithLabelValues(e.Action).Observe(e.Waited.Seconds())
				return
			}
			m.wait.WithLabelValues(e.Action).Observe(0)
		},
		OnSettled: func(ctx context.Context, e *domain.ActionEvent) {
			outcome := OutcomeOK
			if e.Err != nil {
				outcome = OutcomeError
			}
			m.actions.WithLabelValues(e.Action, outcome).Inc()
			m.run.WithLabelValues(e.Action).Observe(e.Ran.Seconds())
		},
	}
}
