// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_events_dispatched_total",
			Help: "Total number of domain events accepted by the dispatcher",
		},
		[]string{"event_type"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_events_dropped_total",
			Help: "Total number of domain events dropped before dispatch",
		},
		[]string{"event_type", "reason"},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Total number of notification deliveries by final status",
		},
		[]string{"channel", "status"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_retries_total",
			Help: "Total number of provider-level send retries",
		},
		[]string{"channel"},
	)

	SendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "notification_send_duration_seconds",
			Help: "Duration of provider send attempts in seconds",
		},
		[]string{"provider"},
	)

	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "push_subscriptions_active",
			Help: "Number of active push subscriptions",
		},
	)

	SubscriptionsDeactivated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_subscriptions_deactivated_total",
			Help: "Total number of push subscriptions deactivated",
		},
		[]string{"reason"},
	)
)
