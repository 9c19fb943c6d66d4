// Package metrics exports editor activity as Prometheus metrics. Metrics
// implements session.Observer, so wiring it is one session.WithObserver.
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vk/nodegrid/internal/canvas"
	"github.com/vk/nodegrid/internal/executor"
	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/session"
)

const namespace = "nodegrid"

// Metrics holds every collector, registered on one registerer.
type Metrics struct {
	Mutations      *prometheus.CounterVec
	Gestures       *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	RunSteps       prometheus.Histogram
	Runs           *prometheus.CounterVec
	CatalogReloads *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_mutations_total",
			Help:      "Graph store mutations by operation and result",
		}, []string{"op", "result"}),
		Gestures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "canvas_gestures_total",
			Help:      "Finished canvas gestures by kind and outcome",
		}, []string{"gesture", "outcome"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Open editor sessions",
		}),
		RunSteps: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_steps",
			Help:      "Handler invocations per graph run",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 10000},
		}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Graph runs by result",
		}, []string{"result"}),
		CatalogReloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_reloads_total",
			Help:      "Node kind catalog reloads by result",
		}, []string{"result"}),
	}
}

var _ session.Observer = (*Metrics)(nil)

func (m *Metrics) SessionOpened(context.Context, string) { m.ActiveSessions.Inc() }

func (m *Metrics) SessionClosed(context.Context, string) { m.ActiveSessions.Dec() }

func (m *Metrics) GraphChanged(_ context.Context, _ string, c graph.Change) {
	m.Mutations.WithLabelValues(string(c.Op), "ok").Inc()
}

func (m *Metrics) MutationRejected(_ context.Context, _ string, op graph.Op, _ error) {
	m.Mutations.WithLabelValues(string(op), "rejected").Inc()
}

func (m *Metrics) GestureEnded(_ context.Context, _ string, r canvas.Result) {
	m.Gestures.WithLabelValues(r.Gesture.String(), string(r.Outcome)).Inc()
}

func (m *Metrics) RunFinished(_ context.Context, _ string, r executor.Report, err error) {
	m.RunSteps.Observe(float64(r.Steps))
	m.Runs.WithLabelValues(runResult(err)).Inc()
}

// CatalogReloaded counts one catalog reload attempt.
func (m *Metrics) CatalogReloaded(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CatalogReloads.WithLabelValues(result).Inc()
}

func runResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, executor.ErrStepLimit):
		return "step_limit"
	case errors.Is(err, executor.ErrCycle):
		return "cycle"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
