package chat

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the chat layer.
type Metrics struct {
	events        *prometheus.CounterVec
	subscriptions *prometheus.GaugeVec
	clients       prometheus.Gauge
	dropped       prometheus.Counter
}

// NewMetrics registers the chat metrics against registerer, falling back to
// the default registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_chat_events_total",
		Help: "Push events handled partitioned by event, scope and outcome.",
	}, []string{"event", "scope", "outcome"})
	subscriptions := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_chat_subscriptions",
		Help: "Channels currently subscribed on the realtime transport.",
	}, []string{"scope"})
	clients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_chat_stream_clients",
		Help: "Connected event stream clients.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_chat_stream_dropped_total",
		Help: "Changes dropped because a stream client fell behind.",
	})
	registerer.MustRegister(events, subscriptions, clients, dropped)
	return &Metrics{events: events, subscriptions: subscriptions, clients: clients, dropped: dropped}
}

func (m *Metrics) observeEvent(event string, scope Scope, err error) {
	if m == nil {
		return
	}
	switch event {
	case EventMessageReceived, EventMessageSent, EventConversationUpdated, EventMessageStatusUpdated:
	default:
		event = "unknown"
	}
	outcome := "applied"
	if err != nil {
		outcome = "failed"
	}
	m.events.WithLabelValues(event, scope.String(), outcome).Inc()
}

func (m *Metrics) subscribed(scope Scope, delta float64) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(scope.String()).Add(delta)
}

func (m *Metrics) streamClients(delta float64) {
	if m == nil {
		return
	}
	m.clients.Add(delta)
}

func (m *Metrics) droppedChange() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
