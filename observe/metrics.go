package observe

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudx-io/pullauction/core"
)

// MetricsSink counts events by kind and tracks the bid and payout totals.
type MetricsSink struct {
	events     *prometheus.CounterVec
	highestBid prometheus.Gauge
	withdrawn  prometheus.Counter
	ended      prometheus.Gauge
}

// NewMetricsSink creates the collectors and registers them with reg.
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	s := &MetricsSink{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auction_events_total",
				Help: "Total number of auction state-transition events by kind.",
			},
			[]string{"kind"},
		),
		highestBid: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auction_highest_bid",
			Help: "Current highest bid in base units.",
		}),
		withdrawn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auction_withdrawn_total",
			Help: "Total value paid out through successful withdrawals, in base units.",
		}),
		ended: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auction_ended",
			Help: "1 once the auction has ended.",
		}),
	}

	// Pre-create every label so absent kinds export as zero
	for _, kind := range core.AllEventKinds {
		s.events.WithLabelValues(string(kind))
	}

	reg.MustRegister(s.events, s.highestBid, s.withdrawn, s.ended)
	return s
}

func (s *MetricsSink) Emit(e core.Event) {
	s.events.WithLabelValues(string(e.Kind())).Inc()

	switch ev := e.(type) {
	case core.NewHighestBid:
		s.highestBid.Set(float64(ev.NewAmount))
	case core.Ended:
		s.ended.Set(1)
	case core.Withdrawal:
		s.withdrawn.Add(float64(ev.Amount))
	}
}
