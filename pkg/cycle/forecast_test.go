package cycle

import (
	"context"
	"testing"
	"time"

	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/kestrelsupply/replenisher-agent/tools"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestStatisticalForecast_NilBelowThreeObservations(t *testing.T) {
	require.Nil(t, statisticalForecast("SKU-A", nil))
	require.Nil(t, statisticalForecast("SKU-A", []core.SalesEvent{{SoldQuantity: 1}, {SoldQuantity: 2}}))
}

func TestStatisticalForecast_FlatDemandHighConfidence(t *testing.T) {
	sales := []core.SalesEvent{
		{SoldQuantity: 5}, {SoldQuantity: 5}, {SoldQuantity: 5}, {SoldQuantity: 5}, {SoldQuantity: 5}, {SoldQuantity: 5},
	}
	f := statisticalForecast("SKU-A", sales)
	require.NotNil(t, f)
	require.InDelta(t, 5.0, f.Daily[0], 1e-9)
	require.InDelta(t, 1.0, f.Confidence, 1e-9) // zero variance -> full confidence
}

func TestStatisticalForecast_ConfidenceFloorsAtPointOne(t *testing.T) {
	sales := []core.SalesEvent{
		{SoldQuantity: 100}, {SoldQuantity: 0}, {SoldQuantity: 90}, {SoldQuantity: 2}, {SoldQuantity: 110}, {SoldQuantity: 1},
	}
	f := statisticalForecast("SKU-A", sales)
	require.NotNil(t, f)
	require.GreaterOrEqual(t, f.Confidence, 0.1)
}

func TestStatisticalForecast_NoTrendBelowSixObservations(t *testing.T) {
	sales := []core.SalesEvent{
		{SoldQuantity: 20}, {SoldQuantity: 20}, {SoldQuantity: 20}, {SoldQuantity: 1}, {SoldQuantity: 1},
	}
	f := statisticalForecast("SKU-A", sales)
	require.NotNil(t, f)
	require.InDelta(t, 12.0, f.Daily[0], 1e-9) // round(avg), no trend applied below 6 observations
}

func TestStatisticalForecast_NoTrendWhenPriorWindowMeanBelowFive(t *testing.T) {
	sales := []core.SalesEvent{
		{SoldQuantity: 50}, {SoldQuantity: 50}, {SoldQuantity: 50}, {SoldQuantity: 2}, {SoldQuantity: 2}, {SoldQuantity: 2},
	}
	f := statisticalForecast("SKU-A", sales)
	require.NotNil(t, f)
	require.InDelta(t, 26.0, f.Daily[0], 1e-9) // prior window mean (2) below 5 -> trend dampened to zero
}

func TestMeanAndStdev(t *testing.T) {
	xs := []float64{2, 4, 6}
	require.InDelta(t, 4.0, mean(xs), 1e-9)
	require.InDelta(t, 0.0, stdev([]float64{5}, 5), 1e-9)
	require.InDelta(t, 2.0, stdev(xs, mean(xs)), 1e-9)
}

func TestClamp(t *testing.T) {
	require.Equal(t, 0.5, clamp(0.1, 0.5, 2.0))
	require.Equal(t, 2.0, clamp(9.0, 0.5, 2.0))
	require.Equal(t, 1.0, clamp(1.0, 0.5, 2.0))
}

func TestForecastStage_FallsBackToZeroForecastWithoutHistory(t *testing.T) {
	st := NewState("cycle-1", decimal.Zero, 1)
	st.Snapshot = Snapshot{
		InventoryData: map[string]core.InventoryRecord{"SKU-A": {SKU: "SKU-A"}},
		SalesBySKU:    map[string][]core.SalesEvent{},
	}

	ForecastStage(context.Background(), st, tools.NilEstimator{}, DefaultForecastConfig(), nil)

	require.Contains(t, st.Forecasts, "SKU-A")
	require.Equal(t, 0.0, st.Forecasts["SKU-A"].Confidence)
}

func TestForecastStage_UsesStatisticalForecastWhenHistorySuffices(t *testing.T) {
	now := time.Now()
	sales := []core.SalesEvent{
		{SKU: "SKU-A", SoldQuantity: 5, Date: now}, {SKU: "SKU-A", SoldQuantity: 5, Date: now}, {SKU: "SKU-A", SoldQuantity: 5, Date: now},
	}
	st := NewState("cycle-1", decimal.Zero, 1)
	st.Snapshot = Snapshot{
		InventoryData: map[string]core.InventoryRecord{"SKU-A": {SKU: "SKU-A"}},
		SalesBySKU:    map[string][]core.SalesEvent{"SKU-A": sales},
	}

	ForecastStage(context.Background(), st, nil, DefaultForecastConfig(), nil)

	f, ok := st.Forecasts["SKU-A"]
	require.True(t, ok)
	require.InDelta(t, 5.0, f.Daily[0], 1e-9)
}
