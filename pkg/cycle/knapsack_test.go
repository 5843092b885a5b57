package cycle

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSolveKnapsack_Empty(t *testing.T) {
	res := SolveKnapsack(nil, dec("100"))
	require.Empty(t, res.Approved)
	require.Empty(t, res.Rejected)
	require.True(t, res.TotalCost.IsZero())
	require.True(t, res.TotalValue.IsZero())
}

func TestSolveKnapsack_FitsEverything(t *testing.T) {
	items := []KnapsackItem{
		{SKU: "A", Cost: dec("10"), Value: dec("20")},
		{SKU: "B", Cost: dec("15"), Value: dec("10")},
	}
	res := SolveKnapsack(items, dec("100"))
	require.ElementsMatch(t, []int{0, 1}, res.Approved)
	require.Empty(t, res.Rejected)
	require.True(t, res.TotalCost.Equal(dec("25")))
	require.True(t, res.TotalValue.Equal(dec("30")))
}

func TestSolveKnapsack_PicksHigherValueUnderConstraint(t *testing.T) {
	items := []KnapsackItem{
		{SKU: "A", Cost: dec("10"), Value: dec("5")},
		{SKU: "B", Cost: dec("10"), Value: dec("50")},
	}
	res := SolveKnapsack(items, dec("10"))
	require.Equal(t, []int{1}, res.Approved)
	require.Equal(t, []int{0}, res.Rejected)
	require.True(t, res.TotalValue.Equal(dec("50")))
}

// Equal value, equal cost candidates must resolve in favor of the
// lexicographically smaller SKU (spec §8 invariant 2).
func TestSolveKnapsack_TieBreaksBySKU(t *testing.T) {
	items := []KnapsackItem{
		{SKU: "Z-LAST", Cost: dec("10"), Value: dec("5")},
		{SKU: "A-FIRST", Cost: dec("10"), Value: dec("5")},
	}
	res := SolveKnapsack(items, dec("10"))
	require.Len(t, res.Approved, 1)
	require.Equal(t, "A-FIRST", items[res.Approved[0]].SKU)
}

func TestSolveKnapsack_TieBreaksBySKU_ThreeWay(t *testing.T) {
	items := []KnapsackItem{
		{SKU: "C", Cost: dec("10"), Value: dec("5")},
		{SKU: "A", Cost: dec("10"), Value: dec("5")},
		{SKU: "B", Cost: dec("10"), Value: dec("5")},
	}
	res := SolveKnapsack(items, dec("20"))
	require.Len(t, res.Approved, 2)
	got := []string{items[res.Approved[0]].SKU, items[res.Approved[1]].SKU}
	require.Equal(t, []string{"A", "B"}, got)
	require.Equal(t, "C", items[res.Rejected[0]].SKU)
}

func TestSolveKnapsack_NothingFitsUnderBudget(t *testing.T) {
	items := []KnapsackItem{
		{SKU: "A", Cost: dec("500"), Value: dec("1")},
	}
	res := SolveKnapsack(items, dec("10"))
	require.Empty(t, res.Approved)
	require.Equal(t, []int{0}, res.Rejected)
	require.True(t, res.TotalCost.IsZero())
}

func TestSolveKnapsack_NegativeBudgetClampedToZero(t *testing.T) {
	items := []KnapsackItem{
		{SKU: "A", Cost: dec("10"), Value: dec("5")},
	}
	res := SolveKnapsack(items, dec("-50"))
	require.Empty(t, res.Approved)
	require.Equal(t, []int{0}, res.Rejected)
}

func TestSolveKnapsack_ApprovedTotalsNeverExceedBudget(t *testing.T) {
	items := []KnapsackItem{
		{SKU: "A", Cost: dec("37.50"), Value: dec("12")},
		{SKU: "B", Cost: dec("22.10"), Value: dec("9")},
		{SKU: "C", Cost: dec("58.00"), Value: dec("40")},
		{SKU: "D", Cost: dec("5.25"), Value: dec("3")},
	}
	budget := dec("80")
	res := SolveKnapsack(items, budget)
	require.True(t, res.TotalCost.LessThanOrEqual(budget))
	require.Equal(t, len(items), len(res.Approved)+len(res.Rejected))
}
