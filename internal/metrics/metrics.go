// Package metrics exposes prometheus collectors for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Relay bundles the relay's prometheus collectors.
type Relay struct {
	registry *prometheus.Registry

	connections  prometheus.Gauge
	eventsRouted *prometheus.CounterVec
	deliveries   prometheus.Counter
	drops        prometheus.Counter
	authFailures *prometheus.CounterVec
}

// NewRelay creates and registers the relay collectors on a fresh registry.
func NewRelay() *Relay {
	reg := prometheus.NewRegistry()
	m := &Relay{
		registry: reg,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Number of live WebSocket connections.",
		}),
		eventsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_routed_total",
			Help: "Domain events routed, by kind.",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Frames handed to member connections at routing time.",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_dropped_frames_total",
			Help: "Frames dropped because a member's outbound buffer was full.",
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_auth_failures_total",
			Help: "Authentication failures, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.connections, m.eventsRouted, m.deliveries, m.drops, m.authFailures)
	return m
}

// ConnectionOpened increments the live-connection gauge.
func (m *Relay) ConnectionOpened() { m.connections.Inc() }

// ConnectionClosed decrements the live-connection gauge.
func (m *Relay) ConnectionClosed() { m.connections.Dec() }

// EventRouted records one routed event with its delivery and drop counts.
func (m *Relay) EventRouted(kind string, delivered, dropped int) {
	m.eventsRouted.WithLabelValues(kind).Inc()
	m.deliveries.Add(float64(delivered))
	m.drops.Add(float64(dropped))
}

// AuthFailure records a rejected credential. The reason label distinguishes
// deployment defects (misconfiguration) from ordinary client failures.
func (m *Relay) AuthFailure(reason string) {
	m.authFailures.WithLabelValues(reason).Inc()
}

// Handler serves the collected metrics.
func (m *Relay) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
