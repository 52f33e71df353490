package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	batchTotal      *prometheus.CounterVec
	batchDuration   *prometheus.HistogramVec
	batchInFlight   prometheus.Gauge
	batchSize       *prometheus.HistogramVec
	articlesByState *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	batchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "batch_process_total",
			Help:      "Total processed ingestion batches by status.",
		},
		[]string{"service", "status"},
	)
	batchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "batch_process_duration_seconds",
			Help:      "Ingestion batch duration in seconds by status.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	batchInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "batch_process_in_flight",
			Help:      "Number of in-flight ingestion batches.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	batchSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "batch_articles",
			Help:      "Articles per ingestion batch.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		},
		[]string{"service"},
	)
	articlesByState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "articles",
			Help:      "Tracked articles by ingestion status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(batchTotal, batchDuration, batchInFlight, batchSize, articlesByState)

	return &WorkerMetrics{
		registry:        registry,
		batchTotal:      batchTotal,
		batchDuration:   batchDuration,
		batchInFlight:   batchInFlight,
		batchSize:       batchSize,
		articlesByState: articlesByState,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartBatch(service string, size int) {
	m.batchInFlight.Inc()
	m.batchSize.WithLabelValues(service).Observe(float64(size))
}

func (m *WorkerMetrics) FinishBatch(service string, duration time.Duration, err error) {
	m.batchInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.batchTotal.WithLabelValues(service, status).Inc()
	m.batchDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

// SetArticleCounts replaces the per-status gauge with a fresh snapshot.
func (m *WorkerMetrics) SetArticleCounts(service string, counts map[domain.ArticleStatus]int) {
	for _, status := range []domain.ArticleStatus{
		domain.StatusQueued,
		domain.StatusProcessing,
		domain.StatusReady,
		domain.StatusSkipped,
		domain.StatusFailed,
	} {
		m.articlesByState.WithLabelValues(service, string(status)).Set(float64(counts[status]))
	}
}
