package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/shopspring/decimal"
)

// Config bundles every stage's tunables plus the pluggable collaborators
// the driver threads through a cycle (spec §4.1, §6).
type Config struct {
	Forecast ForecastConfig
	Optimize OptimizeConfig
	Finance  FinanceConfig
	Action   ActionConfig

	MaxNegotiationRounds int
	CycleNumber          int
}

// DefaultConfig matches the recommended defaults across spec §6.
func DefaultConfig() Config {
	return Config{
		Forecast:             DefaultForecastConfig(),
		Optimize:             DefaultOptimizeConfig(),
		Finance:              DefaultFinanceConfig(),
		Action:               DefaultActionConfig(),
		MaxNegotiationRounds: 1,
	}
}

// Driver runs replenishment cycles end to end, owning the store and the
// pluggable external collaborators (spec §4.1, §9).
type Driver struct {
	Store      core.Store
	Estimator  core.ExternalForecaster
	Dialogue   core.DialogueService
	Emitter    core.EventEmitter
	Config     Config
}

// NewDriver wires a Driver with the given collaborators and defaulted
// configuration. Estimator, Dialogue, and Emitter may be nil: every stage
// degrades to its fallback path when its pluggable collaborator is absent.
func NewDriver(store core.Store, estimator core.ExternalForecaster, dialogue core.DialogueService, emitter core.EventEmitter) *Driver {
	return &Driver{Store: store, Estimator: estimator, Dialogue: dialogue, Emitter: emitter, Config: DefaultConfig()}
}

// RunCycle executes the full seven-stage pipeline (spec §4.1) and returns
// its CycleResult. A stage-fatal error aborts the remainder of the
// pipeline and the result comes back with Status "failed"; any other error
// is recorded per-SKU and the cycle completes with Status "completed" (or
// "partial" in spirit, though the wire status is binary per spec §6).
func (d *Driver) RunCycle(ctx context.Context, cycleID string) (core.CycleResult, error) {
	now := time.Now()
	emitStatus(d.Emitter, cycleID, "fetch", "cycle started")

	snap, err := Fetch(ctx, d.Store, now)
	if err != nil {
		return d.failed(cycleID, err), err
	}

	st := NewState(cycleID, snap.RecentSalesRevenue, d.Config.MaxNegotiationRounds)
	st.Snapshot = snap

	emitStatus(d.Emitter, cycleID, "forecast", "forecasting demand")
	ForecastStage(ctx, st, d.Estimator, d.Config.Forecast, d.Emitter)

	emitStatus(d.Emitter, cycleID, "analyze", "analyzing trends")
	AnalyzeTrends(st)

	emitStatus(d.Emitter, cycleID, "constraints", "checking constraints")
	passing := CheckConstraints(st, d.Config.Optimize)

	emitStatus(d.Emitter, cycleID, "optimize", "optimizing reorder cost")
	OptimizeCost(st, passing, d.Config.Optimize)
	emitDecisions(d.Emitter, st)

	emitStatus(d.Emitter, cycleID, "finance", "reviewing budget")
	FinanceStage(ctx, st, d.Config.Finance, d.Dialogue, d.Emitter)

	// Conditional edge (spec §4.1): negotiation fires exactly once per
	// cycle, only when Finance rejected something on round 0 and the
	// negotiation round cap allows it.
	if len(st.FinanceRejections) > 0 && st.NegotiationRounds == 0 && st.NegotiationRounds < st.MaxNegotiationRounds {
		emitStatus(d.Emitter, cycleID, "negotiation", "negotiating reduced quantities")
		NegotiationStage(st, d.Emitter)

		emitStatus(d.Emitter, cycleID, "finance", "re-optimizing budget")
		FinanceStage(ctx, st, d.Config.Finance, d.Dialogue, d.Emitter)
		emitDecisions(d.Emitter, st)
	}

	emitStatus(d.Emitter, cycleID, "action", "executing approved orders")
	ActionStage(ctx, st, d.Store, d.Config.Action, d.Emitter)

	status := "completed"

	emitStatus(d.Emitter, cycleID, "memory", "recording episode")
	MemoryStage(ctx, st, d.Store, d.Config.CycleNumber, status, d.Emitter)

	result := core.CycleResult{
		CycleID:       cycleID,
		Decisions:     st.Decisions,
		Actions:       st.Actions,
		Dialogues:     st.AgentDialogues,
		Forecasts:     forecastSlice(st.Forecasts),
		SKUsProcessed: len(st.Snapshot.InventoryData),
		Errors:        st.Errors,
		Status:        status,
	}
	emitStatus(d.Emitter, cycleID, "done", fmt.Sprintf("cycle %s: %s", status, cycleID))
	return result, nil
}

func (d *Driver) failed(cycleID string, err error) core.CycleResult {
	return core.CycleResult{CycleID: cycleID, Status: "failed", Errors: []string{err.Error()}}
}

func forecastSlice(m map[string]core.Forecast) []core.Forecast {
	out := make([]core.Forecast, 0, len(m))
	for _, f := range m {
		out = append(out, f)
	}
	return out
}

func emitStatus(emitter core.EventEmitter, cycleID, stage, msg string) {
	if emitter == nil {
		return
	}
	emitter.Emit(cycleID, core.Event{Type: core.EventStatus, Stage: stage, Message: msg, Timestamp: time.Now()})
}

func emitDecisions(emitter core.EventEmitter, st *State) {
	if emitter == nil {
		return
	}
	for _, dec := range st.Decisions {
		cost := decimal.Zero
		if dec.FinanceMetrics != nil {
			cost = dec.FinanceMetrics.TotalCost
		}
		emitter.Emit(st.CycleID, core.Event{
			Type: core.EventDecisionItem, Stage: "optimize", Timestamp: time.Now(),
			Message: fmt.Sprintf("%s: reorder %d units (%s)", dec.SKU, dec.OrderQuantity, dec.Urgency),
			Details: map[string]any{"sku": dec.SKU, "quantity": dec.OrderQuantity, "urgency": string(dec.Urgency), "cost": cost.String()},
		})
	}
}
