package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
)

// AnalysisMetrics records ingestion, analysis and batch outcomes.
type AnalysisMetrics struct {
	service  string
	registry *prometheus.Registry

	ingestTotal      *prometheus.CounterVec
	ingestPages      *prometheus.HistogramVec
	analysisTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	analysisAttempts *prometheus.HistogramVec
	rateLimitWait    *prometheus.HistogramVec
	batchTotal       *prometheus.CounterVec
	batchDocuments   *prometheus.HistogramVec
	batchProgress    *prometheus.GaugeVec
}

var (
	_ ports.AnalysisObserver = (*AnalysisMetrics)(nil)
	_ ports.ProgressReporter = (*AnalysisMetrics)(nil)
)

func NewAnalysisMetrics(service string) *AnalysisMetrics {
	registry := prometheus.NewRegistry()

	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total ingested documents by status.",
		},
		[]string{"service", "status"},
	)
	ingestPages := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "processed_pages",
			Help:      "Pages with extracted text per ingested document.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 10, 20},
		},
		[]string{"service"},
	)
	analysisTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "requests_total",
			Help:      "Total analyses by mode and error kind.",
		},
		[]string{"service", "mode", "status"},
	)
	analysisDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Analysis duration in seconds, including rate-limit waits.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"service", "mode"},
	)
	analysisAttempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "attempts",
			Help:      "Provider calls per analysis.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)
	rateLimitWait := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for the request interval.",
			Buckets:   []float64{0, 0.1, 0.5, 1, 2, 4, 6, 10},
		},
		[]string{"service"},
	)
	batchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Total batch runs by status.",
		},
		[]string{"service", "status"},
	)
	batchDocuments := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "documents",
			Help:      "Documents per batch run.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	batchProgress := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "progress_ratio",
			Help:      "Completed fraction of the most recent batch.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		ingestTotal,
		ingestPages,
		analysisTotal,
		analysisDuration,
		analysisAttempts,
		rateLimitWait,
		batchTotal,
		batchDocuments,
		batchProgress,
	)

	return &AnalysisMetrics{
		service:          service,
		registry:         registry,
		ingestTotal:      ingestTotal,
		ingestPages:      ingestPages,
		analysisTotal:    analysisTotal,
		analysisDuration: analysisDuration,
		analysisAttempts: analysisAttempts,
		rateLimitWait:    rateLimitWait,
		batchTotal:       batchTotal,
		batchDocuments:   batchDocuments,
		batchProgress:    batchProgress,
	}
}

func (m *AnalysisMetrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *AnalysisMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *AnalysisMetrics) ObserveIngest(status string, processedPages int) {
	if status == "" {
		status = "unknown"
	}
	m.ingestTotal.WithLabelValues(m.service, status).Inc()
	if status == "ok" {
		m.ingestPages.WithLabelValues(m.service).Observe(float64(processedPages))
	}
}

func (m *AnalysisMetrics) ObserveAnalysis(mode domain.AnalysisMode, kind domain.ErrorKind, attempts int, duration time.Duration) {
	status := "success"
	if kind != domain.KindNone {
		status = string(kind)
	}
	m.analysisTotal.WithLabelValues(m.service, string(mode), status).Inc()
	m.analysisDuration.WithLabelValues(m.service, string(mode)).Observe(duration.Seconds())
	m.analysisAttempts.WithLabelValues(m.service).Observe(float64(attempts))
}

func (m *AnalysisMetrics) ObserveRateLimitWait(wait time.Duration) {
	if wait < 0 {
		return
	}
	m.rateLimitWait.WithLabelValues(m.service).Observe(wait.Seconds())
}

func (m *AnalysisMetrics) ObserveBatch(total, failed int) {
	status := "success"
	switch {
	case total > 0 && failed == total:
		status = "failed"
	case failed > 0:
		status = "partial"
	}
	m.batchTotal.WithLabelValues(m.service, status).Inc()
	m.batchDocuments.WithLabelValues(m.service).Observe(float64(total))
}

func (m *AnalysisMetrics) ReportProgress(_ context.Context, progress domain.BatchProgress) {
	if progress.Total <= 0 {
		return
	}
	m.batchProgress.WithLabelValues(m.service).Set(float64(progress.Completed) / float64(progress.Total))
}
