package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "heartrisk", Subsystem: "pipeline", Name: "predictions_total", Help: "Completed risk assessments by label."},
		[]string{"label"},
	)
	failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "heartrisk", Subsystem: "pipeline", Name: "failures_total", Help: "Failed risk assessments by pipeline stage."},
		[]string{"stage"},
	)
	latencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "heartrisk", Subsystem: "pipeline", Name: "duration_seconds", Help: "End-to-end pipeline latency.", Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8)},
		[]string{"outcome"},
	)
	defaultedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "heartrisk", Subsystem: "features", Name: "defaulted_total", Help: "Features zero-filled during alignment, by feature name."},
		[]string{"feature"},
	)
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "heartrisk", Subsystem: "events", Name: "processed_total", Help: "Assessment events consumed from Kafka by result type."},
		[]string{"type"},
	)

	registry = prometheus.NewRegistry()
	initOnce sync.Once
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	initOnce.Do(func() {
		registry.MustRegister(predictionsTotal, failuresTotal, latencySeconds, defaultedTotal, eventsTotal)
		registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

func ObservePrediction(label string, elapsed time.Duration) {
	predictionsTotal.WithLabelValues(label).Inc()
	latencySeconds.WithLabelValues("success").Observe(elapsed.Seconds())
}

func ObserveFailure(stage string, elapsed time.Duration) {
	failuresTotal.WithLabelValues(stage).Inc()
	latencySeconds.WithLabelValues("failure").Observe(elapsed.Seconds())
}

func ObserveDefaulted(names []string) {
	for _, name := range names {
		defaultedTotal.WithLabelValues(name).Inc()
	}
}

func ObserveEvent(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
