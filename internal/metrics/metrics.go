// Package metrics exposes daemon runtime counters and gauges for Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for streamkeep.
type Metrics struct {
	registry       *prometheus.Registry
	activeSessions prometheus.Gauge
	queueLength    prometheus.Gauge
	monitorRunning prometheus.Gauge
	probesTotal    *prometheus.CounterVec
	sessionsEnded  *prometheus.CounterVec
	mergesTotal    *prometheus.CounterVec
	mergeDuration  prometheus.Histogram
	replications   *prometheus.CounterVec
}

// New creates and registers the metric set on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "streamkeep_active_sessions",
		Help: "Number of capture sessions currently in the active set",
	})
	queueLength := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "streamkeep_queue_length",
		Help: "Number of segment batches waiting to be merged",
	})
	monitorRunning := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "streamkeep_monitor_running",
		Help: "1 when the liveness monitor loop is running",
	})
	probesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkeep_probes_total",
		Help: "Liveness probes by result",
	}, []string{"result"})
	sessionsEnded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkeep_sessions_ended_total",
		Help: "Capture sessions that ended, by mode and outcome",
	}, []string{"mode", "outcome"})
	mergesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkeep_merges_total",
		Help: "Queue items attempted by the merger, by outcome",
	}, []string{"outcome"})
	mergeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamkeep_merge_duration_seconds",
		Help:    "Time spent merging one segment batch",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	replications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkeep_replications_total",
		Help: "Replication attempts by target and result",
	}, []string{"target", "result"})

	registry.MustRegister(
		activeSessions,
		queueLength,
		monitorRunning,
		probesTotal,
		sessionsEnded,
		mergesTotal,
		mergeDuration,
		replications,
	)

	return &Metrics{
		registry:       registry,
		activeSessions: activeSessions,
		queueLength:    queueLength,
		monitorRunning: monitorRunning,
		probesTotal:    probesTotal,
		sessionsEnded:  sessionsEnded,
		mergesTotal:    mergesTotal,
		mergeDuration:  mergeDuration,
		replications:   replications,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGauges refreshes point-in-time values.
func (m *Metrics) SetGauges(active, queued int, monitorRunning bool) {
	m.activeSessions.Set(float64(active))
	m.queueLength.Set(float64(queued))
	if monitorRunning {
		m.monitorRunning.Set(1)
	} else {
		m.monitorRunning.Set(0)
	}
}

// ObserveProbe counts one liveness probe.
func (m *Metrics) ObserveProbe(result string) {
	m.probesTotal.WithLabelValues(result).Inc()
}

// ObserveSessionEnded counts one finished capture session.
func (m *Metrics) ObserveSessionEnded(mode, outcome string) {
	m.sessionsEnded.WithLabelValues(mode, outcome).Inc()
}

// ObserveMerge counts one merged queue item and its duration.
func (m *Metrics) ObserveMerge(outcome string, took time.Duration) {
	m.mergesTotal.WithLabelValues(outcome).Inc()
	if outcome == "merged" {
		m.mergeDuration.Observe(took.Seconds())
	}
}

// ObserveReplication counts one replication attempt.
func (m *Metrics) ObserveReplication(target string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.replications.WithLabelValues(target, result).Inc()
}

// Handler returns a router serving /metrics and /healthz. updateGauges is
// called before each scrape.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	r := chi.NewRouter()
	prom := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		prom.ServeHTTP(w, req)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// Server serves a Handler on a TCP address.
type Server struct {
	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// Start begins serving handler on bind.
func (s *Server) Start(bind string, handler http.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("metrics server already running")
	}
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	s.srv = srv
	s.listener = ln
	go func() {
		_ = srv.Serve(ln)
	}()
	return nil
}

// Addr returns the bound address, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
