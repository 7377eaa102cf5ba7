package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exposes service operation metrics through a
// Prometheus registry: a duration histogram and an outcome counter, both
// labelled by operation.
type PrometheusMetricsRecorder struct {
	durations *prometheus.HistogramVec
	outcomes  *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder constructs a recorder and registers its
// collectors with the supplied registerer. A nil registerer falls back to the
// default registry.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rec := &PrometheusMetricsRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storagecore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of storage service operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storagecore",
			Name:      "operation_results_total",
			Help:      "Storage service operation outcomes by status.",
		}, []string{"operation", "status"}),
	}
	if err := reg.Register(rec.durations); err != nil {
		return nil, err
	}
	if err := reg.Register(rec.outcomes); err != nil {
		return nil, err
	}
	return rec, nil
}

// Observe implements the MetricsRecorder interface.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.outcomes.WithLabelValues(operation, status).Inc()
}
