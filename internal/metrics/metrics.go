package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igw_events_total",
			Help: "Domain events accepted by the emitter, by result",
		},
		[]string{"result"}, // emitted|rejected
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igw_deliveries_total",
			Help: "Delivery attempts by terminal row status",
		},
		[]string{"status"}, // delivered|failed|dead
	)

	ScheduleFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "igw_schedule_failures_total",
			Help: "Delivery jobs that could not be scheduled at emit time",
		},
	)

	AuthTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igw_auth_total",
			Help: "API key authentication decisions",
		},
		[]string{"result"}, // ok|unauthenticated|forbidden|rate_limited
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsTotal,
		DeliveriesTotal,
		ScheduleFailures,
		AuthTotal,
	)
}
