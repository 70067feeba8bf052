package mediator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors the mediator and bus report to.
type Metrics struct {
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	MatchedHandlers  *prometheus.HistogramVec
	BusMessages      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediator_dispatch_total",
			Help: "Total number of dispatched requests by outcome",
		}, []string{"operation", "marker", "outcome"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediator_dispatch_duration_seconds",
			Help:    "Dispatch latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "marker"}),
		MatchedHandlers: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediator_dispatch_matched_handlers",
			Help:    "Number of thunks matched per dispatch",
			Buckets: []float64{0, 1, 2, 4, 8, 16},
		}, []string{"marker"}),
		BusMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediator_bus_messages_total",
			Help: "Messages sent and received by the bus",
		}, []string{"direction", "outcome"}),
	}

	for _, c := range []prometheus.Collector{m.DispatchTotal, m.DispatchDuration, m.MatchedHandlers, m.BusMessages} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeDispatch(operation string, marker Marker, outcome string, matched int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(operation, string(marker), outcome).Inc()
	m.DispatchDuration.WithLabelValues(operation, string(marker)).Observe(elapsed.Seconds())
	m.MatchedHandlers.WithLabelValues(string(marker)).Observe(float64(matched))
}

func (m *Metrics) observeBus(direction, outcome string) {
	if m == nil {
		return
	}
	m.BusMessages.WithLabelValues(direction, outcome).Inc()
}
