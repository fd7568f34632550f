package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Payments      *prometheus.CounterVec
	Compensations prometheus.Counter
	PhaseDuration *prometheus.HistogramVec
	ExpiredOrders prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: "payment",
			Name:      "attempts_total",
			Help:      "Payment attempts by outcome.",
		}, []string{"result"}),
		Compensations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: "payment",
			Name:      "compensations_total",
			Help:      "Saga compensations executed.",
		}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shop",
			Subsystem: "payment",
			Name:      "phase_duration_seconds",
			Help:      "Duration of saga phases.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		ExpiredOrders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: "orders",
			Name:      "expired_total",
			Help:      "Orders expired by the reclaimer.",
		}),
	}
	reg.MustRegister(m.Payments, m.Compensations, m.PhaseDuration, m.ExpiredOrders)
	return m
}
