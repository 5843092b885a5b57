package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/shopspring/decimal"
)

// FinanceConfig holds the budget-solver tunables from spec §6.
type FinanceConfig struct {
	DefaultBudget              decimal.Decimal
	RevenueReinvestmentRate    decimal.Decimal
	StockoutRiskHighMultiplier float64
	StockoutRiskMedMultiplier  float64
	CriticalStockROIMultiplier float64
}

// DefaultFinanceConfig matches the recommended defaults in spec §6.
func DefaultFinanceConfig() FinanceConfig {
	return FinanceConfig{
		DefaultBudget:              decimal.NewFromInt(600),
		RevenueReinvestmentRate:    decimal.NewFromFloat(0.1),
		StockoutRiskHighMultiplier: 10,
		StockoutRiskMedMultiplier:  2,
		CriticalStockROIMultiplier: 1.5,
	}
}

// FinanceStage is stage 6 / the re-optimize half of stage 7 (spec §4.5).
// On negotiation_rounds == 0 it runs the initial review; on
// negotiation_rounds > 0 it consumes NegotiationProposals and re-optimizes.
func FinanceStage(ctx context.Context, st *State, cfg FinanceConfig, dialogue core.DialogueService, emitter core.EventEmitter) {
	budget := cfg.DefaultBudget.Add(cfg.RevenueReinvestmentRate.Mul(st.RecentRevenueIn))
	st.Budget = budget

	if st.NegotiationRounds == 0 {
		runInitialReview(ctx, st, cfg, budget, dialogue, emitter)
		return
	}
	runReoptimize(ctx, st, cfg, budget, dialogue, emitter)
}

func runInitialReview(ctx context.Context, st *State, cfg FinanceConfig, budget decimal.Decimal, dialogue core.DialogueService, emitter core.EventEmitter) {
	reorders := st.Decisions
	st.Decisions = nil
	st.FinanceRejections = nil

	if len(reorders) == 0 {
		st.BudgetRemaining = budget
		emitFinanceFeedback(st, emitter, fmt.Sprintf("Budget: %s. No orders proposed.", budget.StringFixed(2)))
		return
	}

	items := make([]KnapsackItem, len(reorders))
	for i := range reorders {
		d := &reorders[i]
		unitCost := unitCostFor(*d)
		qty := decimal.NewFromInt(int64(d.OrderQuantity))
		totalCost := qty.Mul(unitCost)

		dailyDemand, _ := d.Details["daily_avg_demand"].(float64)
		leadTime, _ := d.Details["lead_time_days"].(int)
		currentStock, _ := d.Details["current_stock"].(int)

		daysUntilStockout := 999.0
		if dailyDemand > 0 {
			daysUntilStockout = float64(currentStock) / dailyDemand
		}
		riskMultiplier := 1.0
		switch {
		case daysUntilStockout < float64(leadTime):
			riskMultiplier = cfg.StockoutRiskHighMultiplier
		case daysUntilStockout < 2*float64(leadTime):
			riskMultiplier = cfg.StockoutRiskMedMultiplier
		}

		projectedValue := unitCost.Mul(decimal.NewFromFloat(0.5 * dailyDemand * 30 * riskMultiplier))
		roi := 0.0
		if !totalCost.IsZero() {
			roi, _ = projectedValue.Div(decimal.Max(totalCost, decimal.NewFromInt(1))).Float64()
		}

		d.FinanceMetrics = &core.FinanceMetrics{
			TotalCost:          totalCost,
			ROI:                roi,
			StockoutRiskFactor: riskMultiplier,
			DaysUntilStockout:  daysUntilStockout,
			ProjectedValue:     projectedValue,
		}
		items[i] = KnapsackItem{SKU: d.SKU, Cost: totalCost, Value: projectedValue}
	}

	result := SolveKnapsack(items, budget)
	approved, rejected, spend, totalValue := partitionDecisions(reorders, result)

	for i := range rejected {
		d := &rejected[i]
		msg := renderDialogue(ctx, dialogue, core.DialogueRequest{
			Kind:        core.DialogueRejection,
			Agent:       "Finance",
			SKU:         d.SKU,
			ProductName: d.ProductName,
			Cost:        d.FinanceMetrics.TotalCost,
			BudgetLeft:  budget.Sub(spend),
			Reason:      "Budget Optimization (Knapsack Solver)",
		})
		d.RejectionReason = "Budget Optimization (Knapsack Solver)"
		st.AgentDialogues = append(st.AgentDialogues, core.Dialogue{
			Agent: "Finance", Target: "Decision", Message: msg, Type: core.DialogueRejection, SKU: d.SKU,
			Fipa: core.FipaEnvelope{Performative: core.PerformativeRefuse, Sender: "Finance", Receiver: "Decision",
				Content: map[string]any{"sku": d.SKU, "cost": d.FinanceMetrics.TotalCost.String()}},
		})
		emitDialogueEvent(st, emitter, msg)
	}

	overrides := 0
	for i := range approved {
		d := &approved[i]
		if !d.OverrideApproved {
			continue
		}
		overrides++
		msg := renderDialogue(ctx, dialogue, core.DialogueRequest{
			Kind: core.DialogueOverrideApprove, Agent: "Finance", SKU: d.SKU, ProductName: d.ProductName,
			Cost: d.FinanceMetrics.TotalCost, ROI: d.FinanceMetrics.ROI, Reason: "Counter-argument accepted (High ROI/Projected Value).",
		})
		st.AgentDialogues = append(st.AgentDialogues, core.Dialogue{
			Agent: "Finance", Target: "Decision", Message: msg, Type: core.DialogueOverrideApprove, SKU: d.SKU,
			Fipa: core.FipaEnvelope{Performative: core.PerformativeAgree, Sender: "Finance", Receiver: "Decision",
				Content: map[string]any{"sku": d.SKU, "roi": d.FinanceMetrics.ROI}},
		})
		emitDialogueEvent(st, emitter, msg)
	}

	st.Decisions = approved
	st.FinanceRejections = rejected
	st.BudgetRemaining = budget.Sub(spend)

	feedback := fmt.Sprintf("Budget: %s | Spent: %s | Approved: %d | Rejected: %d",
		budget.StringFixed(2), spend.StringFixed(2), len(approved), len(rejected))
	if overrides > 0 {
		feedback += fmt.Sprintf(" | %d override(s) granted", overrides)
	}
	_ = totalValue
	emitFinanceFeedback(st, emitter, feedback)
}

// runReoptimize implements spec §4.5 round >= 1: consume
// NegotiationProposals, rebuild candidates from the matching original
// rejection, and re-run the knapsack solver. finance_rejections is
// OVERWRITTEN with the new rejection set (DESIGN.md Open Question 1 —
// the source overwrites, not unions).
func runReoptimize(ctx context.Context, st *State, cfg FinanceConfig, budget decimal.Decimal, dialogue core.DialogueService, emitter core.EventEmitter) {
	candidates := make([]core.Decision, 0, len(st.NegotiationProposals))

	for _, proposal := range st.NegotiationProposals {
		var original *core.Decision
		for i := range st.FinanceRejections {
			if st.FinanceRejections[i].SKU == proposal.SKU {
				original = &st.FinanceRejections[i]
				break
			}
		}
		if original == nil {
			continue
		}

		reduced := *original
		reduced.OrderQuantity = proposal.NewQuantity
		reduced.Negotiated = true
		reduced.OriginalQuantity = proposal.OriginalQuantity
		fm := *original.FinanceMetrics
		fm.TotalCost = proposal.NewCost

		if fm.ProjectedValue.Cmp(decimal.NewFromInt(1)) <= 0 {
			fm.ProjectedValue = proposal.NewCost.Mul(decimal.NewFromFloat(cfg.CriticalStockROIMultiplier))
		}
		roi := 0.0
		if !fm.TotalCost.IsZero() {
			roi, _ = fm.ProjectedValue.Div(decimal.Max(fm.TotalCost, decimal.NewFromInt(1))).Float64()
		}
		fm.ROI = roi
		reduced.FinanceMetrics = &fm

		candidates = append(candidates, reduced)
	}

	if len(candidates) == 0 {
		st.BudgetRemaining = budget
		emitFinanceFeedback(st, emitter, "No proposals could be processed.")
		return
	}

	items := make([]KnapsackItem, len(candidates))
	for i, c := range candidates {
		items[i] = KnapsackItem{SKU: c.SKU, Cost: c.FinanceMetrics.TotalCost, Value: c.FinanceMetrics.ProjectedValue}
	}
	result := SolveKnapsack(items, budget)
	approved, rejected, spend, _ := partitionDecisions(candidates, result)

	for i := range approved {
		d := &approved[i]
		msg := renderDialogue(ctx, dialogue, core.DialogueRequest{
			Kind: core.DialogueAcceptProposal, Agent: "Finance", SKU: d.SKU, ProductName: d.ProductName,
			Cost: d.FinanceMetrics.TotalCost,
			ExtraArgs: map[string]any{"new_quantity": d.OrderQuantity, "original_quantity": d.OriginalQuantity},
		})
		st.AgentDialogues = append(st.AgentDialogues, core.Dialogue{
			Agent: "Finance", Target: "Decision", Message: msg, Type: core.DialogueAcceptProposal, SKU: d.SKU,
			Fipa: core.FipaEnvelope{Performative: core.PerformativeAcceptProposal, Sender: "Finance", Receiver: "Decision",
				Content: map[string]any{"sku": d.SKU, "approved_quantity": d.OrderQuantity, "cost": d.FinanceMetrics.TotalCost.String()}},
		})
		emitDialogueEvent(st, emitter, msg)
	}
	for i := range rejected {
		d := &rejected[i]
		msg := renderDialogue(ctx, dialogue, core.DialogueRequest{
			Kind: core.DialogueRejectProposal, Agent: "Finance", SKU: d.SKU, ProductName: d.ProductName,
			Reason: "Budget exhausted after optimizing approvals",
		})
		st.AgentDialogues = append(st.AgentDialogues, core.Dialogue{
			Agent: "Finance", Target: "Decision", Message: msg, Type: core.DialogueRejectProposal, SKU: d.SKU,
			Fipa: core.FipaEnvelope{Performative: core.PerformativeRejectProposal, Sender: "Finance", Receiver: "Decision",
				Content: map[string]any{"sku": d.SKU}},
		})
		emitDialogueEvent(st, emitter, msg)
	}

	st.Decisions = approved
	st.FinanceRejections = rejected // overwrite, per DESIGN.md Open Question 1
	st.BudgetRemaining = budget.Sub(spend)

	emitFinanceFeedback(st, emitter, fmt.Sprintf("Re-Optimized: Budget %s | Spent %s | Approved %d | Rejected %d",
		budget.StringFixed(2), spend.StringFixed(2), len(approved), len(rejected)))
}

func partitionDecisions(all []core.Decision, result KnapsackResult) (approved, rejected []core.Decision, spend, totalValue decimal.Decimal) {
	spend, totalValue = decimal.Zero, decimal.Zero
	for _, idx := range result.Approved {
		approved = append(approved, all[idx])
		spend = spend.Add(all[idx].FinanceMetrics.TotalCost)
		totalValue = totalValue.Add(all[idx].FinanceMetrics.ProjectedValue)
	}
	for _, idx := range result.Rejected {
		rejected = append(rejected, all[idx])
	}
	return
}

// unitCostFor implements the fallback lookup order in spec §4.5:
// cost_analysis.purchasing_cost_per_unit -> details.unit_price -> 10.0.
func unitCostFor(d core.Decision) decimal.Decimal {
	if !d.CostAnalysis.PurchasingCostPerUnit.IsZero() {
		return d.CostAnalysis.PurchasingCostPerUnit
	}
	if up, ok := d.Details["unit_price"].(float64); ok && up > 0 {
		return decimal.NewFromFloat(up)
	}
	return decimal.NewFromInt(10)
}

// dialogueTimeout is the independent per-call timeout for dialogue
// rendering (spec §5, recommended 15s).
const dialogueTimeout = 15 * time.Second

// renderDialogue always has a deterministic templated string ready before
// attempting the pluggable dialogue service; a remote failure or timeout
// never blocks the pipeline (spec §9 "external estimator isolation",
// applied identically to the dialogue port).
func renderDialogue(ctx context.Context, svc core.DialogueService, req core.DialogueRequest) string {
	fallback := templateDialogue(req)
	if svc == nil {
		return fallback
	}
	cctx, cancel := context.WithTimeout(ctx, dialogueTimeout)
	defer cancel()
	if msg, err := svc.Render(cctx, req); err == nil && msg != "" {
		return msg
	}
	return fallback
}

func templateDialogue(req core.DialogueRequest) string {
	switch req.Kind {
	case core.DialogueRejection:
		return fmt.Sprintf("REFUSE: %s (%s) rejected — %s. Cost %s, budget remaining %s.",
			req.ProductName, req.SKU, req.Reason, req.Cost.StringFixed(2), req.BudgetLeft.StringFixed(2))
	case core.DialogueOverrideApprove:
		return fmt.Sprintf("AGREE: %s (%s) approved via override — ROI %.2fx, cost %s. %s",
			req.ProductName, req.SKU, req.ROI, req.Cost.StringFixed(2), req.Reason)
	case core.DialogueAcceptProposal:
		newQty, _ := req.ExtraArgs["new_quantity"].(int)
		origQty, _ := req.ExtraArgs["original_quantity"].(int)
		pct := 0.0
		if origQty > 0 {
			pct = float64(newQty) / float64(origQty) * 100
		}
		return fmt.Sprintf("ACCEPT-PROPOSAL: %s (%s) approved with reduced quantity (%d units, %.0f%% of original). Cost: %s",
			req.ProductName, req.SKU, newQty, pct, req.Cost.StringFixed(2))
	case core.DialogueRejectProposal:
		return fmt.Sprintf("REJECT-PROPOSAL: %s (%s) — %s", req.ProductName, req.SKU, req.Reason)
	default:
		return fmt.Sprintf("%s (%s): %s", req.ProductName, req.SKU, req.Reason)
	}
}

func emitFinanceFeedback(st *State, emitter core.EventEmitter, msg string) {
	if emitter == nil {
		return
	}
	emitter.Emit(st.CycleID, core.Event{Type: core.EventFinanceFeedback, Stage: "finance", Message: msg})
}

func emitDialogueEvent(st *State, emitter core.EventEmitter, msg string) {
	if emitter == nil {
		return
	}
	emitter.Emit(st.CycleID, core.Event{Type: core.EventAgentDialogue, Stage: "finance", Message: msg})
}
