package cycle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/shopspring/decimal"
)

const salesWindow = 7 * 24 * time.Hour

// Fetch is stage 1 (spec §4.2). It snapshots inventory, the last-7-day
// sales grouped by SKU, open and overdue orders, and recent alerts, then
// injects any active semantic facts into the inventory snapshot.
//
// Running Fetch twice against the same store state yields byte-equal
// InventoryData, SalesBySKU, and RecentSalesRevenue (spec testable
// property 8) — nothing here depends on wall-clock time except the
// window/overdue cutoffs, which are passed in explicitly as `now`.
func Fetch(ctx context.Context, store core.Store, now time.Time) (Snapshot, error) {
	inventory, err := store.ListInventory(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch: list inventory: %w", err)
	}
	invData := make(map[string]core.InventoryRecord, len(inventory))
	for _, rec := range inventory {
		invData[rec.SKU] = rec
	}

	facts, err := store.ListActiveFacts(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch: list facts: %w", err)
	}
	for _, f := range facts {
		if f.SKU == "" {
			continue
		}
		if rec, ok := invData[f.SKU]; ok {
			rec.SemanticFacts = append(rec.SemanticFacts, f)
			invData[f.SKU] = rec
		}
	}

	since := now.Add(-salesWindow)
	sales, err := store.ListSalesSince(ctx, since)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch: list sales: %w", err)
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].Date.After(sales[j].Date) })

	salesBySKU := make(map[string][]core.SalesEvent)
	revenue := decimal.Zero
	for _, ev := range sales {
		salesBySKU[ev.SKU] = append(salesBySKU[ev.SKU], ev)
		if rec, ok := invData[ev.SKU]; ok {
			revenue = revenue.Add(rec.UnitPrice.Mul(decimal.NewFromInt(int64(ev.SoldQuantity))))
		}
		// Missing SKUs contribute 0 to revenue per spec §4.2.
	}

	orders, err := store.ListOrders(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch: list orders: %w", err)
	}
	pendingBySKU := make(map[string]int)
	var overdue []core.OrderRecord
	for _, ord := range orders {
		if ord.Status != core.OrderPending {
			continue
		}
		pendingBySKU[ord.SKU] += ord.Quantity
		leadTime := 0
		if rec, ok := invData[ord.SKU]; ok {
			leadTime = rec.LeadTimeDays
		}
		if ord.IsOverdue(leadTime, now) {
			overdue = append(overdue, ord)
		}
	}

	alerts, err := store.ListAlerts(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch: list alerts: %w", err)
	}

	return Snapshot{
		InventoryData:      invData,
		SalesData:          sales,
		SalesBySKU:         salesBySKU,
		OrdersData:         orders,
		PendingOrdersBySKU: pendingBySKU,
		OverdueOrders:      overdue,
		AlertsData:         alerts,
		RecentSalesRevenue: revenue,
	}, nil
}
