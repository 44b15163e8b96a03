package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatcher_events_triggered_total",
			Help: "Total number of events handed to the fan-out coordinator.",
		},
	)

	DeliveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_delivery_attempts_total",
			Help: "Total number of delivery attempts by outcome.",
		},
		[]string{"outcome"}, // success | failed
	)

	RetriesScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatcher_retries_scheduled_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)

	SubscribersDisabledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatcher_subscribers_disabled_total",
			Help: "Total number of subscribers disabled after retry exhaustion.",
		},
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatcher_delivery_duration_seconds",
			Help:    "Duration of individual delivery attempts.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		EventsTriggeredTotal,
		DeliveryAttemptsTotal,
		RetriesScheduledTotal,
		SubscribersDisabledTotal,
		DeliveryDuration,
	)
}
