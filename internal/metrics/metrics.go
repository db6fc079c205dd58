package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	engineTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dynasty",
			Name:      "engine_ticks_total",
			Help:      "Lifecycle engine sweep passes.",
		},
	)

	autoConfirmed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dynasty",
			Name:      "bookings_auto_confirmed_total",
			Help:      "Bookings confirmed by the engine timeout rule.",
		},
	)

	storeWrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dynasty",
			Name:      "store_writes_total",
			Help:      "Partition persist operations.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dynasty",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	mailDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dynasty",
			Name:      "mail_dispatches_total",
			Help:      "Notification email attempts by outcome.",
		},
		[]string{"recipient", "outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(engineTicks, autoConfirmed, storeWrites, httpRequests, mailDispatches)
	})
}

// IncEngineTick counts one sweep pass.
func IncEngineTick() {
	engineTicks.Inc()
}

// AddAutoConfirmed counts bookings flipped by the timeout rule.
func AddAutoConfirmed(n int) {
	autoConfirmed.Add(float64(n))
}

// IncStoreWrite counts one partition persist.
func IncStoreWrite() {
	storeWrites.Inc()
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncMail records one email attempt outcome ("ok" or "error").
func IncMail(recipient, outcome string) {
	mailDispatches.WithLabelValues(recipient, outcome).Inc()
}
