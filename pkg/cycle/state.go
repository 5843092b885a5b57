// Package cycle implements the replenishment cycle engine: the pipeline
// driver and its seven stages, threaded through one shared CycleState
// value per run (spec §3, §9 — concrete tagged records instead of
// dynamically typed maps).
package cycle

import (
	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/shopspring/decimal"
)

// Snapshot is the immutable output of the Fetch stage (spec §4.2). Once
// built it is never mutated by later stages.
type Snapshot struct {
	InventoryData      map[string]core.InventoryRecord
	SalesData          []core.SalesEvent
	SalesBySKU         map[string][]core.SalesEvent
	OrdersData         []core.OrderRecord
	PendingOrdersBySKU map[string]int
	OverdueOrders      []core.OrderRecord
	AlertsData         []core.Alert
	RecentSalesRevenue decimal.Decimal
}

// State is the single record threaded through all seven stages of one
// cycle. It is owned exclusively by the driver running that cycle; no
// concurrent cycle may touch it (spec §3 ownership rule).
type State struct {
	CycleID     string
	RecentRevenueIn decimal.Decimal

	Snapshot Snapshot

	Forecasts map[string]core.Forecast

	Analyzed map[string]core.Metrics

	// Held holds SKUs that Check Constraints removed from the pipeline
	// (inactive, or low-confidence with adequate stock) along with the
	// reason, satisfying testable property 6 (cycle completeness).
	Held map[string]string

	Decisions            []core.Decision
	FinanceRejections    []core.Decision
	NegotiationProposals []core.NegotiationProposal
	Actions              []core.ActionResult
	AgentDialogues       []core.Dialogue

	NegotiationRounds    int
	MaxNegotiationRounds int

	Budget          decimal.Decimal
	BudgetRemaining decimal.Decimal

	Errors     []string
	FailedSKUs []string
}

// NewState seeds an empty cycle state for cycleID, with the negotiation
// round cap from configuration.
func NewState(cycleID string, recentRevenue decimal.Decimal, maxNegotiationRounds int) *State {
	return &State{
		CycleID:              cycleID,
		RecentRevenueIn:      recentRevenue,
		Forecasts:            make(map[string]core.Forecast),
		Analyzed:             make(map[string]core.Metrics),
		Held:                 make(map[string]string),
		MaxNegotiationRounds: maxNegotiationRounds,
	}
}

// RecordStageError appends a per-SKU error and marks the SKU failed,
// without aborting the cycle (spec §7 "per-SKU logic error").
func (s *State) RecordStageError(stage, sku string, err error) {
	se := &core.StageError{Stage: stage, SKU: sku, Err: err}
	s.Errors = append(s.Errors, se.Error())
	if sku != "" {
		s.FailedSKUs = append(s.FailedSKUs, sku)
	}
}
