package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the process-local Prometheus registry and the collectors the
// core components report into.
type Metrics struct {
	registry *prometheus.Registry

	SessionsCreated  prometheus.Counter
	Logins           prometheus.Counter
	Reactions        prometheus.Counter
	Broadcasts       prometheus.Counter
	ConnectedClients prometheus.Gauge
}

// NewMetrics constructs and registers all collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: reg,
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podium_sessions_created_total",
			Help: "Sessions created.",
		}),
		Logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podium_logins_total",
			Help: "Audience login calls that succeeded.",
		}),
		Reactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podium_reactions_total",
			Help: "Reactions appended to the ledger.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podium_broadcasts_total",
			Help: "State-change fanouts through the connection hub.",
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "podium_connected_clients",
			Help: "Currently registered live connections.",
		}),
	}

	reg.MustRegister(m.SessionsCreated, m.Logins, m.Reactions, m.Broadcasts, m.ConnectedClients)
	return m
}

// HTTPHandler serves the registry for /metrics.
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
