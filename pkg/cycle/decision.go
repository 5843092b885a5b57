package cycle

import (
	"math"

	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/shopspring/decimal"
)

// OptimizeConfig carries the tunables the Optimize Cost sub-stage needs
// beyond what's in the inventory record itself. ServiceLevel is not in
// spec §6's configuration table; this module defaults it to 0.95 (a
// common target fill rate).
type OptimizeConfig struct {
	ServiceLevel  float64
	MinConfidence float64
}

// DefaultOptimizeConfig returns the recommended defaults.
func DefaultOptimizeConfig() OptimizeConfig {
	return OptimizeConfig{ServiceLevel: 0.95, MinConfidence: 0.3}
}

// zTable implements the service-level -> z-score lookup from spec §4.4.3,
// linearly interpolating (and extrapolating) outside the tabulated points.
var zTable = []struct {
	level float64
	z     float64
}{
	{0.90, 1.28},
	{0.95, 1.65},
	{0.99, 2.33},
	{0.999, 3.09},
}

func zScore(serviceLevel float64) float64 {
	if serviceLevel <= zTable[0].level {
		if len(zTable) < 2 {
			return zTable[0].z
		}
		return interp(serviceLevel, zTable[0], zTable[1])
	}
	if serviceLevel >= zTable[len(zTable)-1].level {
		return interp(serviceLevel, zTable[len(zTable)-2], zTable[len(zTable)-1])
	}
	for i := 0; i < len(zTable)-1; i++ {
		if serviceLevel >= zTable[i].level && serviceLevel <= zTable[i+1].level {
			return interp(serviceLevel, zTable[i], zTable[i+1])
		}
	}
	return zTable[len(zTable)-1].z
}

func interp(x float64, a, b struct {
	level float64
	z     float64
}) float64 {
	if b.level == a.level {
		return a.z
	}
	t := (x - a.level) / (b.level - a.level)
	return a.z + t*(b.z-a.z)
}

// AnalyzeTrends is sub-stage 4.4.1: derive Metrics for every forecast SKU.
func AnalyzeTrends(st *State) {
	snap := st.Snapshot
	analyzed := make(map[string]core.Metrics, len(st.Forecasts))

	for sku, fc := range st.Forecasts {
		rec, ok := snap.InventoryData[sku]
		if !ok {
			continue
		}
		sales := snap.SalesBySKU[sku]
		q := make([]float64, len(sales))
		for i, ev := range sales {
			q[i] = float64(ev.SoldQuantity)
		}

		dailyAvgDemand := mean(fc.Daily[:])

		volatility := 0.3
		if len(q) >= 2 {
			m := mean(q)
			volatility = stdev(q, m) / math.Max(0.1, m)
		}

		effectiveStock := rec.Quantity + snap.PendingOrdersBySKU[sku]
		daysOutOfStock := 0.0
		if dailyAvgDemand > 0 {
			daysOutOfStock = math.Max(0, 7+float64(rec.LeadTimeDays)-float64(effectiveStock)/dailyAvgDemand)
		} else {
			daysOutOfStock = math.Max(0, 7+float64(rec.LeadTimeDays))
		}

		criticality := 1.0
		coverage := math.Inf(1)
		if dailyAvgDemand > 0 {
			coverage = float64(effectiveStock) / dailyAvgDemand
		}
		switch {
		case effectiveStock == 0:
			criticality = 5.0
		case coverage < float64(rec.LeadTimeDays):
			criticality = 2.0
		}

		dailyRevenue, _ := rec.UnitPrice.Mul(decimal.NewFromFloat(dailyAvgDemand)).Float64()
		utilityPenalty := daysOutOfStock * dailyRevenue * criticality

		analyzed[sku] = core.Metrics{
			SKU:                sku,
			CurrentStock:       rec.Quantity,
			PendingOrders:      snap.PendingOrdersBySKU[sku],
			DailyAvgDemand:     dailyAvgDemand,
			DemandVolatility:   volatility,
			LeadTimeDays:       rec.LeadTimeDays,
			UnitCost:           rec.UnitPrice,
			HoldingCostPercent: rec.HoldingCostPercent,
			ReorderCost:        rec.ReorderCost,
			SafetyStock:        rec.SafetyStock,
			MinOrderQty:        rec.MinOrderQty,
			MaxOrderQty:        rec.MaxOrderQty,
			ForecastConfidence: fc.Confidence,
			Forecast7Day:       fc.Total7Day(),
			Threshold:          rec.Threshold,
			IsActive:           rec.IsActive,
			UtilityPenalty:     utilityPenalty,
		}
	}

	st.Analyzed = analyzed
}

// CheckConstraints is sub-stage 4.4.2. It returns the SKUs that pass
// through to Optimize Cost; inactive SKUs are dropped and low-confidence
// SKUs either get an immediate threshold-fallback decision or are held.
func CheckConstraints(st *State, cfg OptimizeConfig) []string {
	passing := make([]string, 0, len(st.Analyzed))

	for sku, m := range st.Analyzed {
		if !m.IsActive {
			st.Held[sku] = "obsolete"
			continue
		}
		if m.ForecastConfidence < cfg.MinConfidence {
			if m.CurrentStock < m.Threshold {
				qty := maxInt(m.MinOrderQty, 2*m.Threshold-m.CurrentStock)
				st.Decisions = append(st.Decisions, core.Decision{
					SKU:             sku,
					ProductName:     sku,
					ReorderRequired: true,
					OrderQuantity:   qty,
					Urgency:         core.UrgencyHigh,
					Reason:          "threshold_fallback",
					Details:         detailsFor(m),
					CostAnalysis:    costAnalysisFor(m, qty),
				})
				continue
			}
			st.Held[sku] = "low_confidence_adequate_stock"
			continue
		}
		passing = append(passing, sku)
	}

	return passing
}

// OptimizeCost is sub-stage 4.4.3: EOQ/ROP for every SKU that passed
// constraint checking, including the hard threshold-override rule.
func OptimizeCost(st *State, passing []string, cfg OptimizeConfig) {
	for _, sku := range passing {
		m := st.Analyzed[sku]

		if m.CurrentStock < m.Threshold {
			qty := maxInt(m.MinOrderQty, 2*m.Threshold-m.CurrentStock)
			st.Decisions = append(st.Decisions, core.Decision{
				SKU:             sku,
				ProductName:     sku,
				ReorderRequired: true,
				OrderQuantity:   qty,
				Urgency:         core.UrgencyHigh,
				Reason:          "threshold_override",
				Details:         detailsFor(m),
				CostAnalysis:    costAnalysisFor(m, qty),
			})
			continue
		}

		annualDemand := m.DailyAvgDemand * 365
		eoq := computeEOQ(annualDemand, m)
		rop := computeROP(m, cfg.ServiceLevel)
		effectiveStock := m.CurrentStock + m.PendingOrders

		reorderRequired := float64(effectiveStock) < rop || effectiveStock == 0
		orderQty := 0
		if reorderRequired {
			orderQty = maxInt(0, int(math.Round(rop+float64(eoq)))-effectiveStock)
		}

		daysUntilStockout := 999.0
		if m.DailyAvgDemand > 0 {
			daysUntilStockout = float64(effectiveStock) / m.DailyAvgDemand
		}
		urgency := classifyUrgency(daysUntilStockout, float64(m.LeadTimeDays), float64(effectiveStock), rop, m.ForecastConfidence)

		if !reorderRequired {
			st.Held[sku] = "above_reorder_point"
			continue
		}

		st.Decisions = append(st.Decisions, core.Decision{
			SKU:             sku,
			ProductName:     sku,
			ReorderRequired: true,
			OrderQuantity:   orderQty,
			Urgency:         urgency,
			Reason:          "eoq_rop",
			Details:         detailsFor(m),
			CostAnalysis:    costAnalysisFor(m, orderQty),
		})
	}
}

func computeEOQ(annualDemand float64, m core.Metrics) int {
	holdingCost, _ := m.UnitCost.Mul(decimal.NewFromFloat(m.HoldingCostPercent)).Float64()
	if annualDemand <= 0 || holdingCost <= 1e-9 {
		return m.MinOrderQty
	}
	reorderCost, _ := m.ReorderCost.Float64()
	eoq := math.Round(math.Sqrt(2 * annualDemand * reorderCost / holdingCost))
	clamped := int(eoq)
	if clamped < m.MinOrderQty {
		clamped = m.MinOrderQty
	}
	if m.MaxOrderQty != nil && clamped > *m.MaxOrderQty {
		clamped = *m.MaxOrderQty
	}
	return clamped
}

func computeROP(m core.Metrics, serviceLevel float64) float64 {
	volatilityFactor := clamp(m.DemandVolatility, 0.5, 2.0)
	z := zScore(serviceLevel)
	return m.DailyAvgDemand*float64(m.LeadTimeDays) + z*m.DailyAvgDemand*volatilityFactor
}

func classifyUrgency(daysUntilStockout, leadTime, effectiveStock, rop, confidence float64) core.Urgency {
	switch {
	case daysUntilStockout < 0 || daysUntilStockout < 0.5*leadTime:
		return core.UrgencyCritical
	case daysUntilStockout < leadTime:
		return core.UrgencyHigh
	case daysUntilStockout < 2*leadTime:
		return core.UrgencyMedium
	}
	switch {
	case effectiveStock < 0.5*rop:
		return core.UrgencyCritical
	case effectiveStock < rop:
		return core.UrgencyHigh
	case effectiveStock < 1.5*rop:
		return core.UrgencyMedium
	}
	_ = confidence // both confidence branches resolve to Low per spec §4.4.3
	return core.UrgencyLow
}

func detailsFor(m core.Metrics) map[string]any {
	unitPrice, _ := m.UnitCost.Float64()
	return map[string]any{
		"daily_avg_demand": m.DailyAvgDemand,
		"lead_time_days":   m.LeadTimeDays,
		"current_stock":    m.CurrentStock,
		"unit_price":       unitPrice,
		"threshold":        m.Threshold,
	}
}

func costAnalysisFor(m core.Metrics, orderQty int) core.CostAnalysis {
	annualDemand := m.DailyAvgDemand * 365
	denom := orderQty
	if denom <= 0 {
		denom = 1
	}
	annualOrderingCost := m.ReorderCost.Mul(decimal.NewFromFloat(annualDemand / float64(denom)))
	avgInventory := float64(orderQty)/2 + float64(m.SafetyStock)
	annualHoldingCost := m.UnitCost.Mul(decimal.NewFromFloat(m.HoldingCostPercent)).Mul(decimal.NewFromFloat(avgInventory))

	return core.CostAnalysis{
		PurchasingCostPerUnit: m.UnitCost,
		AnnualOrderingCost:    annualOrderingCost,
		AverageInventory:      avgInventory,
		AnnualHoldingCost:     annualHoldingCost,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
