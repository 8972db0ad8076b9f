// Package metrics provides Prometheus metrics for the signaling service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the signaling collectors registered on one registry.
type Metrics struct {
	// Connections tracks live websocket connections.
	Connections prometheus.Gauge

	// Rooms tracks non-empty rooms.
	Rooms prometheus.Gauge

	// Received counts inbound messages by type.
	Received *prometheus.CounterVec

	// Relayed counts messages delivered to another connection by type.
	Relayed *prometheus.CounterVec

	// Errors counts error frames returned to senders by code.
	Errors *prometheus.CounterVec

	// SlowConsumers counts connections dropped for a full outbound queue.
	SlowConsumers prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "warpcall_connections",
			Help: "Number of live signaling connections",
		}),
		Rooms: f.NewGauge(prometheus.GaugeOpts{
			Name: "warpcall_rooms",
			Help: "Number of non-empty rooms",
		}),
		Received: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warpcall_messages_received_total",
			Help: "Total number of signaling messages received",
		}, []string{"type"}),
		Relayed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warpcall_messages_relayed_total",
			Help: "Total number of signaling messages delivered to a peer",
		}, []string{"type"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warpcall_relay_errors_total",
			Help: "Total number of error frames returned to senders",
		}, []string{"code"}),
		SlowConsumers: f.NewCounter(prometheus.CounterOpts{
			Name: "warpcall_slow_consumers_total",
			Help: "Total number of connections closed for a full outbound queue",
		}),
	}
}

func (m *Metrics) Connected()            { m.Connections.Inc() }
func (m *Metrics) Disconnected()         { m.Connections.Dec() }
func (m *Metrics) SetRooms(n int)        { m.Rooms.Set(float64(n)) }
func (m *Metrics) ReceivedMsg(t string)  { m.Received.WithLabelValues(t).Inc() }
func (m *Metrics) RelayedMsg(t string)   { m.Relayed.WithLabelValues(t).Inc() }
func (m *Metrics) ErrorSent(code string) { m.Errors.WithLabelValues(code).Inc() }
func (m *Metrics) SlowConsumer()         { m.SlowConsumers.Inc() }
