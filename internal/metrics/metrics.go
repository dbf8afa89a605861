package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	perrors "github.com/vmanchik/sparkify-pipeline/internal/errors"
	"github.com/vmanchik/sparkify-pipeline/internal/etl"
	"github.com/vmanchik/sparkify-pipeline/internal/runner"
)

// Metrics holds the Prometheus collectors for pipeline runs.
type Metrics struct {
	// Task lifecycle
	TaskEvents *prometheus.CounterVec
	TaskErrors *prometheus.CounterVec

	// Quality gate
	QualityRows *prometheus.GaugeVec

	// Runs
	Runs         *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	TaskAttempts *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		TaskEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sparkify_task_events_total",
				Help: "Task lifecycle events by task and stage",
			},
			[]string{"task", "stage"},
		),
		TaskErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sparkify_task_errors_total",
				Help: "Failed task attempts by task and error code",
			},
			[]string{"task", "code"},
		),
		QualityRows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sparkify_quality_rows",
				Help: "Row count observed by the last passing quality check",
			},
			[]string{"table"},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sparkify_runs_total",
				Help: "Completed pipeline runs by final status",
			},
			[]string{"status"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sparkify_run_duration_seconds",
				Help:    "Wall time of a pipeline run",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		TaskAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sparkify_task_attempts",
				Help:    "Attempts a task needed within one run",
				Buckets: []float64{1, 2, 3, 4, 6},
			},
			[]string{"task"},
		),
	}
}

// Observe makes Metrics usable as a task event observer.
func (m *Metrics) Observe(_ context.Context, e etl.Event) {
	m.TaskEvents.WithLabelValues(e.Task, string(e.Stage)).Inc()
	switch e.Stage {
	case etl.StageQualityPassed:
		m.QualityRows.WithLabelValues(e.Table).Set(float64(e.Rows))
	case etl.StageFailed:
		code := string(perrors.Code(e.Err))
		if code == "" {
			code = "UNKNOWN"
		}
		m.TaskErrors.WithLabelValues(e.Task, code).Inc()
	}
}

func (m *Metrics) ObserveRun(res *runner.RunResult) {
	m.Runs.WithLabelValues(string(res.Status)).Inc()
	m.RunDuration.Observe(res.Duration().Seconds())
	for _, t := range res.Tasks {
		if t.Attempts > 0 {
			m.TaskAttempts.WithLabelValues(t.Task).Observe(float64(t.Attempts))
		}
	}
}
