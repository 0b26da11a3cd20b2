package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// SettlementMetrics records swap settlement outcomes and escrow flows.
type SettlementMetrics struct {
	settled  *prometheus.CounterVec
	fees     prometheus.Counter
	disputes *prometheus.CounterVec
	swept    *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swap_settlements_total",
		Help: "Swap terminations by outcome.",
	}, []string{"outcome"})
	fees := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "valor_fees_collected_total",
		Help: "Total commission collected in valor.",
	})
	disputes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispute_resolutions_total",
		Help: "Dispute resolutions by outcome.",
	}, []string{"outcome"})
	swept := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_processed_total",
		Help: "Swaps processed by the timeout sweeps.",
	}, []string{"job"})
	reg.MustRegister(settled, fees, disputes, swept)
	return &SettlementMetrics{
		settled:  settled,
		fees:     fees,
		disputes: disputes,
		swept:    swept,
	}
}

// IncSettled increments the settlement counter for the given outcome.
func (s *SettlementMetrics) IncSettled(outcome string) {
	if s == nil || s.settled == nil {
		return
	}
	s.settled.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddFees adds the collected commission to the running total.
func (s *SettlementMetrics) AddFees(fee decimal.Decimal) {
	if s == nil || s.fees == nil {
		return
	}
	value, _ := fee.Float64()
	if value <= 0 {
		return
	}
	s.fees.Add(value)
}

// IncDisputeResolved increments the dispute resolution counter.
func (s *SettlementMetrics) IncDisputeResolved(outcome string) {
	if s == nil || s.disputes == nil {
		return
	}
	s.disputes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddSwept records how many swaps a sweep job touched.
func (s *SettlementMetrics) AddSwept(job string, count int) {
	if s == nil || s.swept == nil || count <= 0 {
		return
	}
	s.swept.WithLabelValues(normalizeLabel(job)).Add(float64(count))
}
