// Package metrics exposes Prometheus instruments for the scheduler and the
// artifact registry on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "benchgrid"

// Collector holds the instruments. A nil *Collector is valid and records
// nothing, so components can take one optionally.
type Collector struct {
	registry *prometheus.Registry

	jobsAdmitted  prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobsPending   prometheus.Gauge
	jobDuration   *prometheus.HistogramVec
	artifactsRegd *prometheus.CounterVec
}

// NewCollector registers every instrument on a fresh registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		jobsAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_admitted_total",
			Help:      "Number of run descriptors admitted to an execution slot",
		}),
		jobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Number of run descriptors that reached a terminal status",
		}, []string{"status"}),
		jobsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Jobs currently occupying an execution slot",
		}),
		jobsPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_pending",
			Help:      "Jobs waiting for an execution slot",
		}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of executed jobs",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"status"}),
		artifactsRegd: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_registered_total",
			Help:      "Artifacts registered, by kind",
		}, []string{"kind"}),
	}
}

// Registry returns the private registry, e.g. for testutil.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) SetPending(n int) {
	if c == nil {
		return
	}
	c.jobsPending.Set(float64(n))
}

// JobAdmitted records a job taking a slot.
func (c *Collector) JobAdmitted() {
	if c == nil {
		return
	}
	c.jobsAdmitted.Inc()
	c.jobsRunning.Inc()
}

// JobFinished records a terminal status. Jobs that never ran pass a zero
// duration and admitted=false.
func (c *Collector) JobFinished(status string, d time.Duration, admitted bool) {
	if c == nil {
		return
	}
	c.jobsFinished.WithLabelValues(status).Inc()
	if admitted {
		c.jobsRunning.Dec()
		c.jobDuration.WithLabelValues(status).Observe(d.Seconds())
	}
}

func (c *Collector) ArtifactRegistered(kind string) {
	if c == nil {
		return
	}
	c.artifactsRegd.WithLabelValues(kind).Inc()
}
