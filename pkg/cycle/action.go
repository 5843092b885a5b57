package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/shopspring/decimal"
)

// ActionConfig carries the tunables the Action Executor needs beyond what's
// already attached to each Decision (spec §4.7, §6).
type ActionConfig struct {
	AutoApprovalThreshold decimal.Decimal
	// SimulationMode, when true, immediately adjusts inventory quantity to
	// model instant receipt of a placed order instead of waiting for the
	// lead time to elapse. Defaults to false: enabling it in production
	// risks double-counting inventory against orders already in flight
	// (DESIGN.md Open Question 2).
	SimulationMode bool
}

// DefaultActionConfig matches the recommended defaults in spec §6.
func DefaultActionConfig() ActionConfig {
	return ActionConfig{
		AutoApprovalThreshold: decimal.NewFromInt(1000),
		SimulationMode:        false,
	}
}

// ActionStage is the Action stage (spec §4.7): place an order and raise an alert for
// every reorder-required decision still standing after Finance approval. A
// failure on one SKU is recorded and the SKU skipped; it never aborts the
// stage for the rest.
func ActionStage(ctx context.Context, st *State, store core.Store, cfg ActionConfig, emitter core.EventEmitter) {
	for _, d := range st.Decisions {
		if !d.ReorderRequired || d.OrderQuantity <= 0 {
			continue
		}

		result, err := placeOrder(ctx, store, cfg, d)
		if err != nil {
			st.RecordStageError("action", d.SKU, err)
			st.Actions = append(st.Actions, core.ActionResult{Executed: false, SKU: d.SKU, Error: err.Error()})
			emitActionEvent(st, emitter, fmt.Sprintf("order failed for %s: %v", d.SKU, err))
			continue
		}

		st.Actions = append(st.Actions, result)
		emitActionEvent(st, emitter, fmt.Sprintf("order placed for %s: %d units (%s)", d.SKU, d.OrderQuantity, result.OrderID))
	}
}

func placeOrder(ctx context.Context, store core.Store, cfg ActionConfig, d core.Decision) (core.ActionResult, error) {
	rec, ok, err := store.GetInventory(ctx, d.SKU)
	if err != nil {
		return core.ActionResult{}, err
	}
	if !ok {
		return core.ActionResult{}, fmt.Errorf("inventory record for %s no longer exists", d.SKU)
	}

	unitCost := unitCostFor(d)
	totalCost := unitCost.Mul(decimal.NewFromInt(int64(d.OrderQuantity)))

	status := core.OrderPending
	if totalCost.Cmp(cfg.AutoApprovalThreshold) > 0 {
		status = core.OrderNeedsApproval
	}

	order := core.OrderRecord{
		ID:        uuid.New(),
		SKU:       d.SKU,
		Quantity:  d.OrderQuantity,
		OrderDate: time.Now(),
		Status:    status,
		Notes: fmt.Sprintf("reason=%s urgency=%s supplier=%s unit_cost=%s total_cost=%s negotiated=%v",
			d.Reason, d.Urgency, rec.Supplier, unitCost.StringFixed(2), totalCost.StringFixed(2), d.Negotiated),
	}
	if err := store.CreateOrder(ctx, order); err != nil {
		return core.ActionResult{}, err
	}

	alert := core.Alert{
		ID:        uuid.New(),
		SKU:       d.SKU,
		Type:      "reorder_placed",
		Priority:  core.AlertPriority(d.Urgency),
		Message:   fmt.Sprintf("Reorder placed for %s: %d units, urgency %s", d.SKU, d.OrderQuantity, d.Urgency),
		CreatedAt: time.Now(),
	}
	if status == core.OrderNeedsApproval {
		alert.Type = "reorder_needs_approval"
		alert.Message = fmt.Sprintf("Reorder for %s needs approval: cost %s exceeds auto-approval threshold", d.SKU, totalCost.StringFixed(2))
	}
	if err := store.CreateAlert(ctx, alert); err != nil {
		return core.ActionResult{}, err
	}

	if cfg.SimulationMode && status == core.OrderPending {
		if err := store.AdjustQuantity(ctx, d.SKU, d.OrderQuantity); err != nil {
			return core.ActionResult{}, err
		}
	}

	return core.ActionResult{
		Executed:    true,
		OrderID:     order.ID,
		SKU:         d.SKU,
		Quantity:    d.OrderQuantity,
		Urgency:     d.Urgency,
		Supplier:    rec.Supplier,
		CostPerUnit: unitCost.StringFixed(2),
		TotalCost:   totalCost.StringFixed(2),
	}, nil
}

func emitActionEvent(st *State, emitter core.EventEmitter, msg string) {
	if emitter == nil {
		return
	}
	emitter.Emit(st.CycleID, core.Event{Type: core.EventActionItem, Stage: "action", Message: msg, Timestamp: time.Now()})
}
