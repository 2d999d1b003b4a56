package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for the broadcast relay.
type WebSocketMetrics struct {
	ActiveConnections prometheus.Gauge
	MessagesRelayed   *prometheus.CounterVec
	ClientsDropped    prometheus.Counter
}

// NewWebSocketMetrics creates and registers relay metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active WebSocket connections.",
		}),
		MessagesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_relayed_total",
			Help:      "Total number of relayed messages, by path (local, bridge, fallback).",
		}, []string{"path"}),
		ClientsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "clients_dropped_total",
			Help:      "Total number of clients dropped because their send buffer was full.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.MessagesRelayed, m.ClientsDropped)
	return m
}
