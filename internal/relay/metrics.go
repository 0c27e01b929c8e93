package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes relay counters. A nil *Metrics records nothing.
type Metrics struct {
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	messages    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

// NewMetrics creates the relay collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamrtc",
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Live signaling connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamrtc",
			Subsystem: "relay",
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamrtc",
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Valid messages received from clients, by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamrtc",
			Subsystem: "relay",
			Name:      "dropped_messages_total",
			Help:      "Messages the relay did not deliver, by reason.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(m.connections, m.rooms, m.messages, m.dropped)
	}
	return m
}

func (m *Metrics) connected() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) disconnected() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) setRooms(n int) {
	if m != nil {
		m.rooms.Set(float64(n))
	}
}

func (m *Metrics) received(t string) {
	if m != nil {
		m.messages.WithLabelValues(t).Inc()
	}
}

func (m *Metrics) drop(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}
