// Package metrics exposes job counters and timings in Prometheus format.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vslice/internal/models"
)

// Metrics holds the collectors of one server instance.
type Metrics struct {
	registry *prometheus.Registry

	started     prometheus.Counter
	finished    *prometheus.CounterVec
	running     prometheus.Gauge
	duration    prometheus.Histogram
	uploadBytes prometheus.Counter

	mu   sync.Mutex
	seen map[string]string // last observed status of non-terminal jobs
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vslice_jobs_started_total",
			Help: "Split jobs whose ffmpeg process was started.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vslice_jobs_finished_total",
			Help: "Split jobs that reached a terminal status.",
		}, []string{"status"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vslice_jobs_running",
			Help: "Split jobs currently running.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vslice_job_duration_seconds",
			Help:    "Wall time from start to terminal status.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vslice_upload_bytes_total",
			Help: "Bytes of uploaded source video saved to disk.",
		}),
		seen: make(map[string]string),
	}
	m.registry.MustRegister(
		m.started, m.finished, m.running, m.duration, m.uploadBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveJob records status transitions; register it as a registry observer.
func (m *Metrics) ObserveJob(job models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, known := m.seen[job.ID]
	if known && prev == job.Status {
		return
	}

	switch {
	case job.Status == models.JobStatusRunning:
		m.started.Inc()
		m.running.Inc()
		m.seen[job.ID] = job.Status
	case job.IsTerminal():
		if prev == models.JobStatusRunning {
			m.running.Dec()
		}
		m.finished.WithLabelValues(job.Status).Inc()
		if job.StartedAt != nil {
			m.duration.Observe(job.Elapsed().Seconds())
		}
		delete(m.seen, job.ID)
	default:
		m.seen[job.ID] = job.Status
	}
}

// AddUpload counts saved upload bytes.
func (m *Metrics) AddUpload(n int64) {
	if n > 0 {
		m.uploadBytes.Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
