package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func TestSettlementMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewSettlementMetrics(reg)

	metrics.IncSettled("completed")
	metrics.IncSettled("completed")
	metrics.AddFees(decimal.RequireFromString("12.50"))
	metrics.IncDisputeResolved("refund")
	metrics.AddSwept("swap-auto-cancel", 3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "swap_settlements_total", "outcome", "completed"); err != nil {
		t.Fatalf("fetch settlements: %v", err)
	} else if got != 2 {
		t.Fatalf("expected settlements=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "sweep_processed_total", "job", "swap-auto-cancel"); err != nil {
		t.Fatalf("fetch swept: %v", err)
	} else if got != 3 {
		t.Fatalf("expected swept=3, got %f", got)
	}

	mf := findMetricFamily(mfs, "valor_fees_collected_total")
	if mf == nil {
		t.Fatal("fee counter not registered")
	}
	if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 12.5 {
		t.Fatalf("expected fees=12.5, got %f", got)
	}
}

func TestSettlementMetricsNilSafe(t *testing.T) {
	var metrics *SettlementMetrics
	metrics.IncSettled("completed")
	metrics.AddFees(decimal.NewFromInt(1))
	metrics.AddSwept("job", 1)
}
