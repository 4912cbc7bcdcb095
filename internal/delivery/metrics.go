package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what the multiplexer observes on both delivery paths.
type Metrics struct {
	Delivered           *prometheus.CounterVec
	Duplicates          *prometheus.CounterVec
	PollFailures        prometheus.Counter
	PushFailures        prometheus.Counter
	ActiveSubscriptions prometheus.Gauge
}

// NewMetrics creates the delivery metrics and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Delivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linked",
			Subsystem: "delivery",
			Name:      "messages_delivered_total",
			Help:      "Messages handed to subscribers, by the path that won the race.",
		}, []string{"path"}),
		Duplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linked",
			Subsystem: "delivery",
			Name:      "duplicates_dropped_total",
			Help:      "Messages dropped because their id was already delivered.",
		}, []string{"path"}),
		PollFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "linked",
			Subsystem: "delivery",
			Name:      "poll_failures_total",
			Help:      "Poll ticks that failed and will be retried on the next tick.",
		}),
		PushFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "linked",
			Subsystem: "delivery",
			Name:      "push_failures_total",
			Help:      "Realtime connections that dropped or could not be established.",
		}),
		ActiveSubscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "linked",
			Subsystem: "delivery",
			Name:      "active_subscriptions",
			Help:      "Conversation subscriptions currently live.",
		}),
	}
}
