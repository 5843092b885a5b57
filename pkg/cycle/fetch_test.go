package cycle

import (
	"context"
	"testing"
	"time"

	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/kestrelsupply/replenisher-agent/store/memstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFetch_InjectsActiveFactsOnly(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	now := time.Now()

	require.NoError(t, store.UpsertInventory(ctx, core.InventoryRecord{SKU: "SKU-A", IsActive: true}))
	require.NoError(t, store.UpsertFact(ctx, core.SemanticFact{SKU: "SKU-A", Category: "note", Key: "k1", Value: "v1", IsActive: true}))
	require.NoError(t, store.UpsertFact(ctx, core.SemanticFact{SKU: "SKU-A", Category: "note", Key: "k2", Value: "stale", IsActive: false}))

	snap, err := Fetch(ctx, store, now)
	require.NoError(t, err)
	require.Len(t, snap.InventoryData["SKU-A"].SemanticFacts, 1)
	require.Equal(t, "v1", snap.InventoryData["SKU-A"].SemanticFacts[0].Value)
}

func TestFetch_RevenueIgnoresSalesForMissingSKU(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	now := time.Now()

	require.NoError(t, store.UpsertInventory(ctx, core.InventoryRecord{SKU: "SKU-A", UnitPrice: decimal.NewFromInt(10)}))
	require.NoError(t, store.RecordSale(ctx, core.SalesEvent{SKU: "SKU-A", SoldQuantity: 3, Date: now.Add(-time.Hour)}))
	require.NoError(t, store.RecordSale(ctx, core.SalesEvent{SKU: "SKU-GONE", SoldQuantity: 100, Date: now.Add(-time.Hour)}))

	snap, err := Fetch(ctx, store, now)
	require.NoError(t, err)
	require.True(t, snap.RecentSalesRevenue.Equal(decimal.NewFromInt(30)))
}

func TestFetch_ExcludesSalesOutsideWindow(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	now := time.Now()

	require.NoError(t, store.UpsertInventory(ctx, core.InventoryRecord{SKU: "SKU-A", UnitPrice: decimal.NewFromInt(10)}))
	require.NoError(t, store.RecordSale(ctx, core.SalesEvent{SKU: "SKU-A", SoldQuantity: 5, Date: now.AddDate(0, 0, -10)}))

	snap, err := Fetch(ctx, store, now)
	require.NoError(t, err)
	require.Empty(t, snap.SalesBySKU["SKU-A"])
}

func TestFetch_DetectsOverdueOrders(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	now := time.Now()

	require.NoError(t, store.UpsertInventory(ctx, core.InventoryRecord{SKU: "SKU-A", LeadTimeDays: 3}))
	require.NoError(t, store.CreateOrder(ctx, core.OrderRecord{
		SKU: "SKU-A", Status: core.OrderPending, Quantity: 10, OrderDate: now.AddDate(0, 0, -5),
	}))

	snap, err := Fetch(ctx, store, now)
	require.NoError(t, err)
	require.Len(t, snap.OverdueOrders, 1)
	require.Equal(t, 10, snap.PendingOrdersBySKU["SKU-A"])
}

func TestFetch_NonPendingOrdersAreNotOverdue(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	now := time.Now()

	require.NoError(t, store.UpsertInventory(ctx, core.InventoryRecord{SKU: "SKU-A", LeadTimeDays: 3}))
	require.NoError(t, store.CreateOrder(ctx, core.OrderRecord{
		SKU: "SKU-A", Status: core.OrderCompleted, Quantity: 10, OrderDate: now.AddDate(0, 0, -30),
	}))

	snap, err := Fetch(ctx, store, now)
	require.NoError(t, err)
	require.Empty(t, snap.OverdueOrders)
	require.Equal(t, 0, snap.PendingOrdersBySKU["SKU-A"])
}

func TestFetch_IsIdempotentOnUnchangedStore(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	now := time.Now()

	require.NoError(t, store.UpsertInventory(ctx, core.InventoryRecord{SKU: "SKU-A", UnitPrice: decimal.NewFromInt(5)}))
	require.NoError(t, store.RecordSale(ctx, core.SalesEvent{SKU: "SKU-A", SoldQuantity: 2, Date: now.Add(-time.Hour)}))

	snap1, err := Fetch(ctx, store, now)
	require.NoError(t, err)
	snap2, err := Fetch(ctx, store, now)
	require.NoError(t, err)

	require.Equal(t, len(snap1.SalesBySKU["SKU-A"]), len(snap2.SalesBySKU["SKU-A"]))
	require.True(t, snap1.RecentSalesRevenue.Equal(snap2.RecentSalesRevenue))
}
