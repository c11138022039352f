package hub

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Connections prometheus.Gauge
	Published   *prometheus.CounterVec
	Dropped     prometheus.Counter
}

// NewMetrics registers the hub collectors on reg; a nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Active websocket connections",
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_events_published_total",
			Help: "Events queued to websocket clients, by event name",
		}, []string{"event"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ws_slow_clients_dropped_total",
			Help: "Connections closed because their send buffer was full",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Connections, m.Published, m.Dropped)
	}
	return m
}
