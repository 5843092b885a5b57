package cycle

import (
	"testing"

	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestReductionFactorFor_UrgencyBands(t *testing.T) {
	require.Equal(t, 0.6, reductionFactorFor(2))
	require.Equal(t, 0.5, reductionFactorFor(5))
	require.Equal(t, 0.4, reductionFactorFor(10))
	require.Equal(t, 0.3, reductionFactorFor(30))
}

func TestReductionFactorFor_BandBoundaries(t *testing.T) {
	require.Equal(t, 0.5, reductionFactorFor(3))
	require.Equal(t, 0.4, reductionFactorFor(7))
	require.Equal(t, 0.3, reductionFactorFor(14))
}

func rejectedDecision(sku string, currentStock, threshold, leadTime, qty int, dailyDemand float64) core.Decision {
	return core.Decision{
		SKU: sku, OrderQuantity: qty,
		Details: map[string]any{
			"current_stock":    currentStock,
			"threshold":        threshold,
			"lead_time_days":   leadTime,
			"daily_avg_demand": dailyDemand,
			"unit_price":       10.0,
		},
		FinanceMetrics: &core.FinanceMetrics{TotalCost: decimal.NewFromInt(int64(qty * 10))},
	}
}

func TestNegotiationStage_SkipsWhenStockAtOrAboveThreshold(t *testing.T) {
	st := NewState("cycle-1", decimal.Zero, 1)
	st.FinanceRejections = []core.Decision{rejectedDecision("SKU-A", 50, 20, 5, 100, 3.0)}

	NegotiationStage(st, nil)

	require.Empty(t, st.NegotiationProposals)
	require.Equal(t, 1, st.NegotiationRounds)
}

func TestNegotiationStage_SkipsZeroThresholdSKUSinceStockIsAlwaysAtOrAboveIt(t *testing.T) {
	st := NewState("cycle-1", decimal.Zero, 1)
	st.FinanceRejections = []core.Decision{rejectedDecision("SKU-A", 0, 0, 5, 100, 3.0)}

	NegotiationStage(st, nil)

	require.Empty(t, st.NegotiationProposals)
}

func TestNegotiationStage_ProposesReducedQuantity(t *testing.T) {
	st := NewState("cycle-1", decimal.Zero, 1)
	// currentStock=5, dailyDemand=2 -> daysUntilStockout=2.5 -> band <3 -> factor 0.6
	st.FinanceRejections = []core.Decision{rejectedDecision("SKU-A", 5, 20, 5, 100, 2.0)}

	NegotiationStage(st, nil)

	require.Len(t, st.NegotiationProposals, 1)
	p := st.NegotiationProposals[0]
	require.Equal(t, "SKU-A", p.SKU)
	require.Equal(t, 100, p.OriginalQuantity)
	require.Equal(t, 60, p.NewQuantity) // floor(100*0.6)
	require.Equal(t, 0.6, p.ReductionFactor)
	require.Len(t, st.AgentDialogues, 1)
	require.Equal(t, core.DialoguePropose, st.AgentDialogues[0].Type)
}

func TestNegotiationStage_FloorsTinyQuantitiesToMinimumTen(t *testing.T) {
	st := NewState("cycle-1", decimal.Zero, 1)
	// qty=20, factor 0.3 (far band) -> floor(20*0.3)=6 < 10 -> max(10, floor(20*0.3))=10
	st.FinanceRejections = []core.Decision{rejectedDecision("SKU-A", 5, 20, 5, 20, 0.1)}

	NegotiationStage(st, nil)

	require.Len(t, st.NegotiationProposals, 1)
	require.Equal(t, 10, st.NegotiationProposals[0].NewQuantity)
}
