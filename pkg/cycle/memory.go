package cycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelsupply/replenisher-agent/core"
)

// MemoryStage is the Memory stage (spec §4.8): persist one checkpoint and one
// episode describing the cycle just run. Failures here are logged but
// never fail the cycle itself (spec §7 "memory persistence failure").
// cycleStatus is the driver's own terminal status ("completed" or
// "failed"), not a tally of per-SKU errors: a cycle that completes with
// a handful of routine per-item errors is still a stable checkpoint.
func MemoryStage(ctx context.Context, st *State, store core.Store, cycleNumber int, cycleStatus string, emitter core.EventEmitter) {
	outcome := core.OutcomeSuccess
	if cycleStatus != "completed" {
		outcome = core.OutcomePartial
	}

	summary := fmt.Sprintf("%d decisions, %d actions, %d errors", len(st.Decisions), len(st.Actions), len(st.Errors))

	blob, err := json.Marshal(struct {
		CycleID   string              `json:"cycle_id"`
		Decisions []core.Decision     `json:"decisions"`
		Actions   []core.ActionResult `json:"actions"`
		Errors    []string            `json:"errors"`
	}{CycleID: st.CycleID, Decisions: st.Decisions, Actions: st.Actions, Errors: st.Errors})
	if err != nil {
		blob = nil
	}

	cp := core.Checkpoint{
		CheckpointID: uuid.New(),
		Timestamp:    time.Now(),
		CycleNumber:  cycleNumber,
		Goal:         "replenishment_cycle",
		StateBlob:    blob,
		IsStable:     outcome == core.OutcomeSuccess,
		IsActive:     true,
	}
	if err := store.SaveCheckpoint(ctx, cp); err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("memory[checkpoint]: %v", err))
	}

	ep := core.Episode{
		EventID:     uuid.New(),
		Timestamp:   time.Now(),
		EventType:   "replenishment_cycle",
		Description: summary,
		Context:     map[string]any{"cycle_id": st.CycleID, "skus_processed": len(st.Forecasts)},
		Outcome:     outcome,
	}
	if err := store.SaveEpisode(ctx, ep); err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("memory[episode]: %v", err))
	}

	if emitter != nil {
		emitter.Emit(st.CycleID, core.Event{
			Type: core.EventStatus, Stage: "memory",
			Message: "cycle " + string(outcome) + ": " + summary, Timestamp: time.Now(),
		})
	}
}
