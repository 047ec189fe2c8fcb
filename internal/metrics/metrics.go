package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Connections prometheus.Gauge

	QueueDepth *prometheus.GaugeVec // queue=kitchen|floor

	ClaimsTotal    *prometheus.CounterVec // flow=kitchen|floor, result=success|conflict|fail
	BroadcastsSent prometheus.Counter
	PagesTotal     *prometheus.CounterVec // result=success|fail

	OldestClaimAge prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "venue_ws_connections",
			Help: "Number of live websocket connections",
		}),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "venue_queue_depth",
				Help: "Orders currently waiting in a work queue",
			},
			[]string{"queue"},
		),
		ClaimsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venue_claims_total",
				Help: "Claim attempts by flow and result",
			},
			[]string{"flow", "result"},
		),
		BroadcastsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "venue_broadcasts_total",
			Help: "Events fanned out to broadcast groups",
		}),
		PagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "venue_pages_total",
				Help: "Side-channel pages by result",
			},
			[]string{"result"},
		),
		OldestClaimAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "venue_oldest_claim_age_seconds",
			Help: "Age of the oldest unadvanced claim, refreshed by reconciliation",
		}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.Connections, m.QueueDepth, m.ClaimsTotal,
		m.BroadcastsSent, m.PagesTotal, m.OldestClaimAge,
	)
}
