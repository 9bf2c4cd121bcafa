// Package metrics exposes sweep job outcomes as Prometheus metrics.
package metrics

import (
	"github.com/pingcap/errors"
	"github.com/prometheus/client_golang/prometheus"

	"awacsweep/internal/core"
	"awacsweep/internal/sweep"
)

const namespace = "awacsweep"

// Collector owns a private registry with the sweep metrics. It implements
// sweep.Observer.
type Collector struct {
	registry *prometheus.Registry

	// JobsTotal counts finished jobs by terminal state.
	JobsTotal *prometheus.CounterVec

	// JobDuration records wall time (s) of executed jobs.
	JobDuration prometheus.Histogram

	// JobsRunning is the number of children currently alive.
	JobsRunning prometheus.Gauge
}

// NewCollector creates the metrics and registers them on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Total count of sweep jobs by outcome.",
			}, []string{"outcome"}),
		JobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Bucketed histogram of wall time (s) of a training job.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
			}),
		JobsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_running",
				Help:      "Number of training jobs currently running.",
			}),
	}
	c.registry.MustRegister(c.JobsTotal, c.JobDuration, c.JobsRunning)
	return c
}

func (c *Collector) JobStarted(core.Invocation) {
	c.JobsRunning.Inc()
}

func (c *Collector) JobFinished(_ core.Invocation, out sweep.Outcome) {
	c.JobsTotal.WithLabelValues(outcomeLabel(out.State)).Inc()
	// Skipped and resumed jobs never reached RUNNING.
	if out.State != sweep.JobSucceeded && out.State != sweep.JobFailed {
		return
	}
	c.JobsRunning.Dec()
	if out.Result != nil {
		c.JobDuration.Observe(out.Result.Duration.Seconds())
	}
}

// WriteFile writes all metrics in the text exposition format, for use with
// the node_exporter textfile collector.
func (c *Collector) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return errors.Annotatef(err, "write metrics to %s", path)
	}
	return nil
}

func outcomeLabel(s sweep.JobState) string {
	switch s {
	case sweep.JobSucceeded:
		return "succeeded"
	case sweep.JobFailed:
		return "failed"
	case sweep.JobSkipped:
		return "skipped"
	case sweep.JobResumed:
		return "resumed"
	default:
		return "unknown"
	}
}
