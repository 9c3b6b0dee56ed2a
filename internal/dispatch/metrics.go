package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "helpdesk"

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_published_total",
			Help:      "Lifecycle events published",
		},
		[]string{"type"},
	)

	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a listener buffer was full",
		},
		[]string{"type"},
	)

	subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "subscribers",
			Help:      "Currently attached subscriptions",
		},
	)

	listenerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "listener_panics_total",
			Help:      "Listener callbacks that panicked during delivery",
		},
	)
)

func recordPublished(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

func recordDropped(eventType string) {
	eventsDropped.WithLabelValues(eventType).Inc()
}

func recordSubscribed() { subscribers.Inc() }

func recordUnsubscribed() { subscribers.Dec() }

func recordListenerPanic() { listenerPanics.Inc() }
