package monitoring

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the agent's own Prometheus metrics.
type Metrics struct {
	TickCounter       prometheus.Counter
	DimensionTriggers *prometheus.CounterVec
	DetectedGauge     prometheus.Gauge
	ProbeFailures     prometheus.Counter
	registry          *prometheus.Registry
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// NewMetrics creates and registers all metrics (singleton pattern for tests).
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		registry := prometheus.NewRegistry()

		m := &Metrics{
			TickCounter: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "loadsentry_ticks_total",
				Help: "Total number of detection ticks executed",
			}),
			DimensionTriggers: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "loadsentry_dimension_triggers_total",
					Help: "Total number of ticks on which a dimension was triggered",
				},
				[]string{"dimension"},
			),
			DetectedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "loadsentry_bottleneck_detected",
				Help: "1 when the current verdict is bottleneck_detected",
			}),
			ProbeFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "loadsentry_rpc_probe_failures_total",
				Help: "Total number of failed RPC liveness probes",
			}),
			registry: registry,
		}

		registry.MustRegister(m.TickCounter)
		registry.MustRegister(m.DimensionTriggers)
		registry.MustRegister(m.DetectedGauge)
		registry.MustRegister(m.ProbeFailures)

		metricsInstance = m
	})

	return metricsInstance
}

// ObserveTick records one engine invocation.
func (m *Metrics) ObserveTick(detected bool, triggered []string) {
	m.TickCounter.Inc()
	for _, dim := range triggered {
		m.DimensionTriggers.WithLabelValues(dim).Inc()
	}
	if detected {
		m.DetectedGauge.Set(1)
	} else {
		m.DetectedGauge.Set(0)
	}
}

// Handler returns the scrape handler for the agent's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
