// Package metrics provides Prometheus metrics for builds and staging runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds metrics configuration.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // e.g., ":9464"
}

// ApplyDefaults sets default values for metrics config.
func (c *Config) ApplyDefaults() {
	if c.Address == "" {
		c.Address = ":9464"
	}
}

// Metrics holds the build metrics. A nil *Metrics, or one created with
// Enabled false, records nothing.
type Metrics struct {
	FilesProcessed   *prometheus.CounterVec
	FilesSkipped     *prometheus.CounterVec
	RowsLoaded       prometheus.Counter
	PagesLoaded      prometheus.Counter
	ExtractionIssues *prometheus.CounterVec
	ActiveWorkers    prometheus.Gauge

	ParseDuration *prometheus.HistogramVec
	LoadDuration  prometheus.Histogram

	registry *prometheus.Registry
	enabled  bool
}

// New creates a new metrics instance.
func New(cfg Config) *Metrics {
	cfg.ApplyDefaults()

	m := &Metrics{
		enabled:  cfg.Enabled,
		registry: prometheus.NewRegistry(),
	}
	if !cfg.Enabled {
		return m
	}

	m.FilesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "budgetdb",
			Name:      "files_processed_total",
			Help:      "Source files parsed, by kind and outcome",
		},
		[]string{"kind", "status"}, // "ok", "error"
	)

	m.FilesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "budgetdb",
			Name:      "files_skipped_total",
			Help:      "Source files skipped without parsing",
		},
		[]string{"reason"}, // "resumed", "unchanged", "staged"
	)

	m.RowsLoaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "budgetdb",
		Name:      "budget_lines_loaded_total",
		Help:      "Budget lines inserted into the store",
	})

	m.PagesLoaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "budgetdb",
		Name:      "pdf_pages_loaded_total",
		Help:      "PDF pages inserted into the store",
	})

	m.ExtractionIssues = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "budgetdb",
			Name:      "pdf_extraction_issues_total",
			Help:      "PDF pages whose table extraction failed",
		},
		[]string{"type"}, // "timeout", "error"
	)

	m.ActiveWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "budgetdb",
		Name:      "parse_workers_active",
		Help:      "Parser goroutines currently running",
	})

	m.ParseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "budgetdb",
			Name:      "parse_duration_seconds",
			Help:      "Time to parse one source file",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	m.LoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "budgetdb",
		Name:      "load_duration_seconds",
		Help:      "Time to load one parse result in a transaction",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	m.registry.MustRegister(
		m.FilesProcessed,
		m.FilesSkipped,
		m.RowsLoaded,
		m.PagesLoaded,
		m.ExtractionIssues,
		m.ActiveWorkers,
		m.ParseDuration,
		m.LoadDuration,
	)
	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Registry returns the registry the metrics are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if !m.IsEnabled() {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// IsEnabled returns true if metrics are enabled.
func (m *Metrics) IsEnabled() bool {
	return m != nil && m.enabled
}

// RecordParse records one parsed file and how long it took.
func (m *Metrics) RecordParse(kind string, duration time.Duration, failed bool) {
	if !m.IsEnabled() {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.FilesProcessed.WithLabelValues(kind, status).Inc()
	m.ParseDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordSkip increments the skipped-file counter.
func (m *Metrics) RecordSkip(reason string) {
	if m.IsEnabled() {
		m.FilesSkipped.WithLabelValues(reason).Inc()
	}
}

// RecordLoad records rows and pages written by one load.
func (m *Metrics) RecordLoad(rows, pages int, duration time.Duration) {
	if !m.IsEnabled() {
		return
	}
	m.RowsLoaded.Add(float64(rows))
	m.PagesLoaded.Add(float64(pages))
	m.LoadDuration.Observe(duration.Seconds())
}

// RecordIssue increments the extraction issue counter.
func (m *Metrics) RecordIssue(issueType string) {
	if m.IsEnabled() {
		m.ExtractionIssues.WithLabelValues(issueType).Inc()
	}
}

// WorkerStarted and WorkerDone track the active parser gauge.
func (m *Metrics) WorkerStarted() {
	if m.IsEnabled() {
		m.ActiveWorkers.Inc()
	}
}

func (m *Metrics) WorkerDone() {
	if m.IsEnabled() {
		m.ActiveWorkers.Dec()
	}
}
