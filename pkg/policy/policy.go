// Package policy enforces the operator-facing spending guardrails around
// the replenisher: the per-order auto-approval threshold and a running
// daily-spend cap, independent of what the Finance stage already budgeted
// for a single cycle.
package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Limits are the configured guardrails (spec §6).
type Limits struct {
	AutoApprovalThreshold decimal.Decimal
	DailySpendCap         decimal.Decimal
}

// DefaultLimits matches the recommended defaults.
func DefaultLimits() Limits {
	return Limits{
		AutoApprovalThreshold: decimal.NewFromInt(1000),
		DailySpendCap:         decimal.NewFromInt(5000),
	}
}

// Engine tracks today's spend against Limits.DailySpendCap and decides
// whether an order needs manual approval, independent of per-order cost.
// It is safe for concurrent use by the scheduler's worker pool.
type Engine struct {
	mu      sync.Mutex
	limits  Limits
	day     time.Time
	spentUSD decimal.Decimal
}

// NewEngine constructs an Engine with the given limits.
func NewEngine(limits Limits) *Engine {
	return &Engine{limits: limits, day: dayOf(time.Now())}
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (e *Engine) rolloverLocked(now time.Time) {
	today := dayOf(now)
	if !today.Equal(e.day) {
		e.day = today
		e.spentUSD = decimal.Zero
	}
}

// NeedsApproval reports whether an order of the given cost requires manual
// approval: either it exceeds the per-order threshold, or today's
// cumulative spend would exceed the daily cap if it were auto-approved.
func (e *Engine) NeedsApproval(cost decimal.Decimal) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rolloverLocked(time.Now())

	if cost.Cmp(e.limits.AutoApprovalThreshold) > 0 {
		return true
	}
	return e.spentUSD.Add(cost).Cmp(e.limits.DailySpendCap) > 0
}

// RecordSpend books a cost against today's running total. Call this only
// for orders that were actually auto-approved and placed.
func (e *Engine) RecordSpend(cost decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rolloverLocked(time.Now())
	e.spentUSD = e.spentUSD.Add(cost)
}

// Remaining returns today's remaining headroom under the daily cap.
func (e *Engine) Remaining() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rolloverLocked(time.Now())
	rem := e.limits.DailySpendCap.Sub(e.spentUSD)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// Status summarizes the engine's current state for the HTTP surface.
func (e *Engine) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rolloverLocked(time.Now())
	return fmt.Sprintf("spent %s of %s today (threshold %s)",
		e.spentUSD.StringFixed(2), e.limits.DailySpendCap.StringFixed(2), e.limits.AutoApprovalThreshold.StringFixed(2))
}
