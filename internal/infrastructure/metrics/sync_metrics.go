package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lllypuk/inboxsync/internal/infrastructure/websocket"
)

// SyncMetrics contains Prometheus metrics for the notification sync layer.
type SyncMetrics struct {
	GatewayRequests        *prometheus.CounterVec
	GatewayRequestDuration *prometheus.HistogramVec
	RealtimeEvents         *prometheus.CounterVec
	RealtimeState          *prometheus.GaugeVec
	PollTotal              *prometheus.CounterVec
	PollDuration           prometheus.Histogram
	UnreadCount            prometheus.Gauge
	WindowItems            prometheus.Gauge
	PendingActions         prometheus.Gauge
	NativeShown            prometheus.Counter
}

// NewSyncMetrics creates and registers sync metrics with the given registerer.
func NewSyncMetrics(registerer prometheus.Registerer) *SyncMetrics {
	metrics := &SyncMetrics{
		GatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inboxsync_gateway_requests_total",
				Help: "Total number of notification gateway requests",
			},
			[]string{"operation", "outcome"}, // outcome: success/unauthorized/transport/not_found/status_NNN/error
		),
		GatewayRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inboxsync_gateway_request_duration_seconds",
				Help:    "Latency of notification gateway requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RealtimeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inboxsync_realtime_events_total",
				Help: "Realtime channel lifecycle and notification events",
			},
			[]string{"event"},
		),
		RealtimeState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "inboxsync_realtime_state",
				Help: "Current realtime connection state (1 for the active state)",
			},
			[]string{"state"},
		),
		PollTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inboxsync_unread_poll_total",
				Help: "Total number of unread count refreshes",
			},
			[]string{"outcome"},
		),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "inboxsync_unread_poll_duration_seconds",
			Help:    "Latency of unread count refreshes",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		UnreadCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inboxsync_unread_count",
			Help: "Current unread counter of the inbox",
		}),
		WindowItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inboxsync_window_items",
			Help: "Number of notifications in the recency window",
		}),
		PendingActions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inboxsync_pending_actions",
			Help: "Optimistic actions awaiting gateway confirmation",
		}),
		NativeShown: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inboxsync_native_notifications_total",
			Help: "Native notifications handed to the platform",
		}),
	}

	registerer.MustRegister(
		metrics.GatewayRequests,
		metrics.GatewayRequestDuration,
		metrics.RealtimeEvents,
		metrics.RealtimeState,
		metrics.PollTotal,
		metrics.PollDuration,
		metrics.UnreadCount,
		metrics.WindowItems,
		metrics.PendingActions,
		metrics.NativeShown,
	)

	return metrics
}

// ObserveRequest records a gateway request.
func (m *SyncMetrics) ObserveRequest(op string, outcome string, duration time.Duration) {
	m.GatewayRequests.WithLabelValues(op, outcome).Inc()
	m.GatewayRequestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveEvent records a realtime channel event.
func (m *SyncMetrics) ObserveEvent(event string) {
	m.RealtimeEvents.WithLabelValues(event).Inc()
}

// ObserveState records a realtime state change.
func (m *SyncMetrics) ObserveState(state websocket.State) {
	m.RealtimeState.Reset()
	m.RealtimeState.WithLabelValues(state.String()).Set(1)
}

// ObservePoll records an unread count refresh.
func (m *SyncMetrics) ObservePoll(outcome string, d time.Duration) {
	m.PollTotal.WithLabelValues(outcome).Inc()
	m.PollDuration.Observe(d.Seconds())
}

// ObserveInbox records the inbox gauges.
func (m *SyncMetrics) ObserveInbox(unread, items, pending int) {
	m.UnreadCount.Set(float64(unread))
	m.WindowItems.Set(float64(items))
	m.PendingActions.Set(float64(pending))
}

// ObserveNativeShown records a native notification.
func (m *SyncMetrics) ObserveNativeShown() {
	m.NativeShown.Inc()
}
