package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds resolve and relay metrics for direct instrumentation in
// the request path.
type Metrics struct {
	ResolveTotal     *prometheus.CounterVec
	ResolveDuration  prometheus.Histogram
	RelayRequests    prometheus.Counter
	RelayBytes       prometheus.Counter
	RelayOpenStreams prometheus.Gauge
}

// New creates and registers request-path metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResolveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anibridge",
			Subsystem: "resolver",
			Name:      "resolves_total",
			Help:      "Total resolve attempts by outcome.",
		}, []string{"outcome"}),
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "anibridge",
			Subsystem: "resolver",
			Name:      "resolve_duration_seconds",
			Help:      "Duration of resolve operations.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		RelayRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anibridge",
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Total stream relay requests.",
		}),
		RelayBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anibridge",
			Subsystem: "relay",
			Name:      "bytes_total",
			Help:      "Total bytes relayed to clients.",
		}),
		RelayOpenStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anibridge",
			Subsystem: "relay",
			Name:      "open_streams",
			Help:      "Number of currently open relay streams.",
		}),
	}

	reg.MustRegister(
		m.ResolveTotal,
		m.ResolveDuration,
		m.RelayRequests,
		m.RelayBytes,
		m.RelayOpenStreams,
	)

	return m
}
