package cycle

import (
	"math"
	"time"

	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/shopspring/decimal"
)

// NegotiationStage is stage 7's first half (spec §4.6). It is only called
// when the driver's conditional edge fires: finance_rejections non-empty,
// negotiation_rounds < max, and no prior negotiation this cycle.
func NegotiationStage(st *State, emitter core.EventEmitter) {
	proposals := make([]core.NegotiationProposal, 0, len(st.FinanceRejections))

	for _, d := range st.FinanceRejections {
		currentStock, _ := d.Details["current_stock"].(int)
		threshold := 0
		if ct, ok := d.Details["threshold"].(int); ok {
			threshold = ct
		}
		if currentStock >= threshold {
			continue
		}

		dailyDemand, _ := d.Details["daily_avg_demand"].(float64)
		daysUntilStockout := float64(currentStock) / math.Max(dailyDemand, 0.1)

		reductionFactor := reductionFactorFor(daysUntilStockout)
		newQty := int(math.Floor(float64(d.OrderQuantity) * reductionFactor))
		if newQty < 10 {
			newQty = maxInt(10, int(math.Floor(float64(d.OrderQuantity)*0.3)))
		}

		unitCost := unitCostFor(d)
		newCost := unitCost.Mul(decimal.NewFromInt(int64(newQty)))

		proposal := core.NegotiationProposal{
			SKU:              d.SKU,
			OriginalQuantity: d.OrderQuantity,
			NewQuantity:      newQty,
			OriginalCost:     d.FinanceMetrics.TotalCost,
			NewCost:          newCost,
			ReductionFactor:  reductionFactor,
		}
		proposals = append(proposals, proposal)

		st.AgentDialogues = append(st.AgentDialogues, core.Dialogue{
			Agent: "Decision", Target: "Finance",
			Message: "PROPOSE: reduce " + d.SKU + " order quantity to accommodate budget",
			Type:    core.DialoguePropose,
			SKU:     d.SKU,
			Fipa: core.FipaEnvelope{
				Performative: core.PerformativePropose, Sender: "Decision", Receiver: "Finance",
				Content: map[string]any{"sku": d.SKU, "new_quantity": newQty, "new_cost": newCost.String()},
			},
		})
		if emitter != nil {
			emitter.Emit(st.CycleID, core.Event{Type: core.EventAgentDialogue, Stage: "negotiation",
				Message: "proposing reduced quantity for " + d.SKU, Timestamp: time.Now()})
		}
	}

	st.NegotiationProposals = proposals
	st.NegotiationRounds++
}

// reductionFactorFor implements the urgency-band table in spec §4.6.
func reductionFactorFor(daysUntilStockout float64) float64 {
	switch {
	case daysUntilStockout < 3:
		return 0.6
	case daysUntilStockout < 7:
		return 0.5
	case daysUntilStockout < 14:
		return 0.4
	default:
		return 0.3
	}
}
