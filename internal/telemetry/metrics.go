package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors of the analysis pipeline. A nil
// *Metrics records nothing.
type Metrics struct {
	runs       *prometheus.CounterVec
	steps      *prometheus.CounterVec
	completion *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyst_runs_total",
			Help: "Analysis runs by final status.",
		}, []string{"status"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyst_agent_steps_total",
			Help: "Executed plan steps by agent and outcome.",
		}, []string{"agent", "status"}),
		completion: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analyst_completion_seconds",
			Help:    "Latency of completion calls by pipeline stage.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"stage"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.steps, m.completion)
	}
	return m
}

// RunFinished counts a run that ended in status ("done" or an error kind).
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

// StepFinished counts one plan step.
func (m *Metrics) StepFinished(agent string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.steps.WithLabelValues(agent, status).Inc()
}

// ObserveCompletion records the latency of one completion call.
func (m *Metrics) ObserveCompletion(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.completion.WithLabelValues(stage).Observe(d.Seconds())
}
