package cycle

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/shopspring/decimal"
)

// ForecastConfig configures the hybrid forecast engine (spec §4.3).
type ForecastConfig struct {
	MaxExternalCalls int
	ExternalTimeout  time.Duration
	MinConfidence    float64 // not read by the forecast stage
}

// DefaultForecastConfig matches the recommended defaults in spec §4.3/§6.
func DefaultForecastConfig() ForecastConfig {
	return ForecastConfig{
		MaxExternalCalls: 10,
		ExternalTimeout:  30 * time.Second,
	}
}

type skuPriority struct {
	sku      string
	priority int
}

// ForecastStage runs stage 2 over every SKU in the snapshot, producing a
// Forecast for each and emitting a high-demand event for any SKU whose
// 7-day total exceeds 100.
func ForecastStage(ctx context.Context, st *State, estimator core.ExternalForecaster, cfg ForecastConfig, emitter core.EventEmitter) {
	snap := st.Snapshot
	statistical := make(map[string]*core.Forecast, len(snap.InventoryData))
	priorities := make([]skuPriority, 0, len(snap.InventoryData))

	for sku, rec := range snap.InventoryData {
		sf := statisticalForecast(sku, snap.SalesBySKU[sku])
		statistical[sku] = sf

		priority := 0
		if sf == nil {
			priority = 3
		} else if sf.Confidence < 0.3 {
			priority = 2
		}
		if rec.UnitPrice.Cmp(unitPriceHighThreshold) > 0 {
			priority++
		}
		priorities = append(priorities, skuPriority{sku: sku, priority: priority})
	}

	sort.SliceStable(priorities, func(i, j int) bool {
		return priorities[i].priority > priorities[j].priority
	})

	externalCalls := 0
	forecasts := make(map[string]core.Forecast, len(priorities))

	for _, p := range priorities {
		sf := statistical[p.sku]
		needsExternal := p.priority >= 2

		if needsExternal && externalCalls < cfg.MaxExternalCalls && estimator != nil {
			externalCalls++
			result, err := callExternalForecaster(ctx, estimator, cfg, p.sku, snap)
			if err == nil {
				confidence := result.Confidence
				if confidence < 0.45 {
					confidence = 0.45
				}
				f := core.Forecast{SKU: p.sku, Daily: result.Daily, Confidence: confidence, Explanation: result.Explanation}
				forecasts[p.sku] = f
				emitForecastEvents(st, emitter, f)
				continue
			}
			st.RecordStageError("forecast", p.sku, err)
		}

		if sf != nil {
			forecasts[p.sku] = *sf
			emitForecastEvents(st, emitter, *sf)
			continue
		}

		zero := core.Forecast{SKU: p.sku, Confidence: 0, Explanation: "insufficient sales history; zero-forecast fallback"}
		forecasts[p.sku] = zero
		emitForecastEvents(st, emitter, zero)
	}

	st.Forecasts = forecasts
}

var unitPriceHighThreshold = decimal.NewFromInt(100)

func callExternalForecaster(ctx context.Context, estimator core.ExternalForecaster, cfg ForecastConfig, sku string, snap Snapshot) (core.ExternalForecastResult, error) {
	rec := snap.InventoryData[sku]
	cctx, cancel := context.WithTimeout(ctx, cfg.ExternalTimeout)
	defer cancel()

	invSnippet := core.InventorySnippet{
		SKU:           rec.SKU,
		ProductName:   rec.ProductName,
		CurrentStock:  rec.Quantity,
		Threshold:     rec.Threshold,
		UnitPrice:     rec.UnitPrice,
		LeadTimeDays:  rec.LeadTimeDays,
		SemanticFacts: rec.SemanticFacts,
	}
	recent := snap.SalesBySKU[sku]
	daily := make([]int, 0, len(recent))
	for _, ev := range recent {
		daily = append(daily, ev.SoldQuantity)
	}
	salesSnippet := core.SalesSnippet{SKU: sku, RecentDaily: daily}

	return estimator.Forecast(cctx, invSnippet, salesSnippet)
}

func emitForecastEvents(st *State, emitter core.EventEmitter, f core.Forecast) {
	if emitter == nil {
		return
	}
	emitter.Emit(st.CycleID, core.Event{
		Type:      core.EventForecast,
		Stage:     "forecast",
		Message:   "forecast produced for " + f.SKU,
		Timestamp: time.Now(),
		Details:   map[string]any{"sku": f.SKU, "confidence": f.Confidence},
	})
	if f.Total7Day() > 100 {
		emitter.Emit(st.CycleID, core.Event{
			Type:      core.EventProgress,
			Stage:     "forecast",
			Message:   "high demand forecast for " + f.SKU,
			Timestamp: time.Now(),
			Details:   map[string]any{"sku": f.SKU, "total_7day": f.Total7Day()},
		})
	}
}

// statisticalForecast implements the statistical baseline in spec §4.3.
// It returns nil when fewer than 3 observations exist.
func statisticalForecast(sku string, sales []core.SalesEvent) *core.Forecast {
	if len(sales) < 3 {
		return nil
	}
	// sales is sorted newest-first by Fetch.
	q := make([]float64, len(sales))
	for i, ev := range sales {
		q[i] = float64(ev.SoldQuantity)
	}

	avg := mean(q)

	recentN := min(3, len(q))
	priorStart := recentN
	priorEnd := min(priorStart+3, len(q))

	dampenedTrend := 0.0
	if len(q) >= 6 && priorEnd > priorStart {
		recentMean := mean(q[0:recentN])
		priorMean := mean(q[priorStart:priorEnd])
		if priorMean >= 5 {
			trend := (recentMean - priorMean) / priorMean
			trend = clamp(trend, -0.5, 0.5)
			dampenedTrend = trend * 0.5
		}
	}

	dailyValue := math.Max(0, math.Round(avg*(1+dampenedTrend)))
	var daily [7]float64
	for i := range daily {
		daily[i] = dailyValue
	}

	sd := stdev(q, avg)
	confidence := math.Max(0.1, 1-sd/math.Max(1, avg))

	return &core.Forecast{
		SKU:         sku,
		Daily:       daily,
		Confidence:  confidence,
		Explanation: "statistical baseline from recent sales history",
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

