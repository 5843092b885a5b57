package cycle

import (
	"sort"

	"github.com/shopspring/decimal"
)

// KnapsackItem is one candidate in the 0/1 budget allocation problem
// (spec §4.5/§8 invariant 2). SolveKnapsack rounds Cost to whole cents
// itself before solving, matching spec's recommendation to use "integer
// DP on cost granularity".
type KnapsackItem struct {
	SKU   string
	Cost  decimal.Decimal
	Value decimal.Decimal
}

// KnapsackResult reports the selection and totals.
type KnapsackResult struct {
	Approved  []int // indexes into the input slice, sorted by SKU
	Rejected  []int
	TotalCost decimal.Decimal
	TotalValue decimal.Decimal
}

const knapsackCentsPerUnit = 100 // cost granularity: whole cents

// SolveKnapsack is a deterministic 0/1 knapsack: maximize total value
// subject to total cost <= budget. Costs and budget are rounded to whole
// cents and solved by integer DP (spec §9: "integer DP on cost x item
// count is acceptable when costs are coarse"). Ties are broken by
// lexicographic SKU order (spec §8 invariant 2, §5 ordering guarantees):
// items are presented to the DP in SKU order and, among equal-value
// selections, the backtrack prefers earlier (lexicographically smaller)
// items.
func SolveKnapsack(items []KnapsackItem, budget decimal.Decimal) KnapsackResult {
	n := len(items)
	if n == 0 {
		return KnapsackResult{TotalCost: decimal.Zero, TotalValue: decimal.Zero}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return items[order[a]].SKU < items[order[b]].SKU })

	budgetCents := toCents(budget)
	if budgetCents < 0 {
		budgetCents = 0
	}

	costsCents := make([]int64, n)
	values := make([]int64, n) // value kept as scaled cents too, for determinism
	for i, idx := range order {
		costsCents[i] = toCents(items[idx].Cost)
		values[i] = toCents(items[idx].Value)
	}

	// dp[i][w] = best value using first i items (in `order`) with budget w.
	// Capped at a sane width; budgets and costs in this domain are small.
	w := int(budgetCents)
	if w < 0 {
		w = 0
	}
	dp := make([][]int64, n+1)
	for i := range dp {
		dp[i] = make([]int64, w+1)
	}
	for i := 1; i <= n; i++ {
		cost := costsCents[i-1]
		val := values[i-1]
		for c := 0; c <= w; c++ {
			dp[i][c] = dp[i-1][c]
			if cost <= int64(c) {
				cand := dp[i-1][c-int(cost)] + val
				if cand > dp[i][c] {
					dp[i][c] = cand
				}
			}
		}
	}

	selected := make(map[int]bool, n)
	remaining := w
	for i := n; i >= 1; i-- {
		if dp[i][remaining] != dp[i-1][remaining] {
			selected[i-1] = true
			remaining -= int(costsCents[i-1])
		}
	}

	result := KnapsackResult{TotalCost: decimal.Zero, TotalValue: decimal.Zero}
	for i, idx := range order {
		if selected[i] {
			result.Approved = append(result.Approved, idx)
			result.TotalCost = result.TotalCost.Add(items[idx].Cost)
			result.TotalValue = result.TotalValue.Add(items[idx].Value)
		} else {
			result.Rejected = append(result.Rejected, idx)
		}
	}
	sort.Slice(result.Approved, func(a, b int) bool { return items[result.Approved[a]].SKU < items[result.Approved[b]].SKU })
	sort.Slice(result.Rejected, func(a, b int) bool { return items[result.Rejected[a]].SKU < items[result.Rejected[b]].SKU })

	return result
}

func toCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(knapsackCentsPerUnit)).Round(0).IntPart()
}
