package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	InferencesTotal   *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec

	TokensTotal *prometheus.CounterVec

	StorageWriteFailuresTotal prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		InferencesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "t0_inferences_total",
				Help: "Total number of inference calls",
			},
			[]string{"function", "variant", "status"},
		),
		InferenceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "t0_inference_duration_seconds",
				Help:    "Inference call duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"function"},
		),
		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "t0_tokens_total",
				Help: "Tokens reported by the provider",
			},
			[]string{"model", "kind"},
		),
		StorageWriteFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "t0_storage_write_failures_total",
				Help: "Inference rows that could not be written to storage",
			},
		),
	}
}

func (m *Metrics) RecordInference(function, variant, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.InferencesTotal.WithLabelValues(function, variant, status).Inc()
	m.InferenceDuration.WithLabelValues(function).Observe(duration.Seconds())
}

func (m *Metrics) RecordTokens(model string, input, output int) {
	if m == nil {
		return
	}
	m.TokensTotal.WithLabelValues(model, "input").Add(float64(input))
	m.TokensTotal.WithLabelValues(model, "output").Add(float64(output))
}

func (m *Metrics) RecordStorageFailure() {
	if m == nil {
		return
	}
	m.StorageWriteFailuresTotal.Inc()
}

// WriteTextfile dumps g in the text exposition format for the node exporter
// textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
