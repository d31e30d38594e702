package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the server collectors. Each instance owns its registry so
// tests can build several without clashing.
type Metrics struct {
	registry *prometheus.Registry

	Connections prometheus.Gauge
	Messages    *prometheus.CounterVec
	AIReplies   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "elowy_ws_connections",
			Help: "Authenticated websocket connections",
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "elowy_messages_total",
			Help: "Messages accepted by the realtime hub",
		}, []string{"kind"}),
		AIReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "elowy_ai_replies_total",
			Help: "AI responder attempts by outcome",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.Connections,
		m.Messages,
		m.AIReplies,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
