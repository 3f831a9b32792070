package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpRequestsTotal       *prometheus.CounterVec
	httpLatencySeconds      *prometheus.HistogramVec
	ordersPlacedTotal       *prometheus.CounterVec
	orderTransitionsTotal   *prometheus.CounterVec
	realtimeClientsActive   prometheus.Gauge
	realtimeEventsTotal     *prometheus.CounterVec
	chatMessagesTotal       *prometheus.CounterVec
	notificationFanoutTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the gateway.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of HTTP requests served by the gateway.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "Latency distribution for gateway HTTP requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		ordersPlacedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_placed_total",
			Help: "Total number of order placement attempts by outcome.",
		}, []string{"outcome"})

		orderTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Total number of order status transitions applied.",
		}, []string{"status"})

		realtimeClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_clients_active",
			Help: "Number of websocket clients currently connected.",
		})

		realtimeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_total",
			Help: "Total number of realtime events broadcast by kind.",
		}, []string{"event"})

		chatMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total number of chat messages accepted by sender type.",
		}, []string{"sender_type"})

		notificationFanoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_fanout_total",
			Help: "Total number of notifications delivered to room subscribers.",
		}, []string{"room"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			ordersPlacedTotal,
			orderTransitionsTotal,
			realtimeClientsActive,
			realtimeEventsTotal,
			chatMessagesTotal,
			notificationFanoutTotal,
		)
	})
}

// HTTPRequests exposes the counter for served HTTP requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for HTTP requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// OrdersPlaced exposes the counter for order placement outcomes.
func OrdersPlaced() *prometheus.CounterVec {
	RegisterMetrics()
	return ordersPlacedTotal
}

// OrderTransitions exposes the counter for status transitions.
func OrderTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return orderTransitionsTotal
}

// RealtimeClients exposes the connected websocket client gauge.
func RealtimeClients() prometheus.Gauge {
	RegisterMetrics()
	return realtimeClientsActive
}

// RealtimeEvents exposes the broadcast event counter.
func RealtimeEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeEventsTotal
}

// ChatMessages exposes the accepted chat message counter.
func ChatMessages() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesTotal
}

// NotificationFanout exposes the per-room notification delivery counter.
func NotificationFanout() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationFanoutTotal
}
