package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

// RetrievalMetrics records per-stage timings of the retrieval engine.
type RetrievalMetrics struct {
	service string

	stageDuration *prometheus.HistogramVec
	stageResults  *prometheus.HistogramVec
	filterRetries *prometheus.CounterVec
	results       *prometheus.CounterVec
	resultSize    *prometheus.HistogramVec
}

func NewRetrievalMetrics(registerer prometheus.Registerer, service string) *RetrievalMetrics {
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "stage_duration_seconds",
			Help:      "Retrieval stage duration in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"service", "stage"},
	)
	stageResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "stage_results",
			Help:      "Number of items produced by a retrieval stage.",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200},
		},
		[]string{"service", "stage"},
	)
	filterRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "filter_retries_total",
			Help:      "Searches repeated without the metadata filter.",
		},
		[]string{"service", "stage"},
	)
	results := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "results_total",
			Help:      "Retrieval results by mode and kind.",
		},
		[]string{"service", "mode", "kind"},
	)
	resultSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "returned_passages",
			Help:      "Passages returned per retrieval by mode.",
			Buckets:   []float64{0, 1, 3, 5, 10, 15, 20, 30},
		},
		[]string{"service", "mode"},
	)

	registerer.MustRegister(stageDuration, stageResults, filterRetries, results, resultSize)

	return &RetrievalMetrics{
		service:       service,
		stageDuration: stageDuration,
		stageResults:  stageResults,
		filterRetries: filterRetries,
		results:       results,
		resultSize:    resultSize,
	}
}

func (m *RetrievalMetrics) ObserveStage(stage string, duration time.Duration, count int) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(duration.Seconds())
	m.stageResults.WithLabelValues(m.service, stage).Observe(float64(count))
}

func (m *RetrievalMetrics) ObserveFilterRetry(stage string) {
	m.filterRetries.WithLabelValues(m.service, stage).Inc()
}

func (m *RetrievalMetrics) ObserveResult(mode domain.RetrievalMode, kind domain.ResultKind, count int) {
	m.results.WithLabelValues(m.service, string(mode), string(kind)).Inc()
	if kind == domain.ResultPassages {
		m.resultSize.WithLabelValues(m.service, string(mode)).Observe(float64(count))
	}
}
