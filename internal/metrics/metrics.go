// Package metrics exports cracking job metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/CZERTAINLY/Cracker/internal/crack"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cracker"

// Metrics implements crack.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	JobsStarted      *prometheus.CounterVec
	JobsFinished     *prometheus.CounterVec
	ActiveJobs       *prometheus.GaugeVec
	CandidatesTested prometheus.Counter
	JobDuration      *prometheus.HistogramVec
}

var _ crack.Metrics = (*Metrics)(nil)

// New creates the collectors and registers them, together with the Go and
// process collectors, in a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		JobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Total number of started cracking jobs",
		}, []string{"strategy"}),
		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Total number of finished cracking jobs by outcome",
		}, []string{"strategy", "outcome"}),
		ActiveJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Number of jobs currently running",
		}, []string{"strategy"}),
		CandidatesTested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_tested_total",
			Help:      "Total number of candidate passwords tested by finished jobs",
		}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from job start to its outcome",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 12),
		}, []string{"strategy", "outcome"}),
	}
	m.registry.MustRegister(
		m.JobsStarted,
		m.JobsFinished,
		m.ActiveJobs,
		m.CandidatesTested,
		m.JobDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) JobStarted(strategy string) {
	m.JobsStarted.WithLabelValues(strategy).Inc()
	m.ActiveJobs.WithLabelValues(strategy).Inc()
}

func (m *Metrics) JobFinished(strategy string, kind crack.OutcomeKind, tested int64, took time.Duration) {
	outcome := kind.String()
	m.ActiveJobs.WithLabelValues(strategy).Dec()
	m.JobsFinished.WithLabelValues(strategy, outcome).Inc()
	m.CandidatesTested.Add(float64(tested))
	m.JobDuration.WithLabelValues(strategy, outcome).Observe(took.Seconds())
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	stop := context.AfterFunc(ctx, func() {
		shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	})
	defer stop()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
