// Command seed populates a store with demo inventory, sales history, and
// semantic facts, then optionally runs a batch of cycles against it —
// the quickest way to see the full pipeline produce decisions end to end.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/kestrelsupply/replenisher-agent/config"
	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/kestrelsupply/replenisher-agent/pkg/cycle"
	"github.com/kestrelsupply/replenisher-agent/store/memstore"
	"github.com/kestrelsupply/replenisher-agent/store/pgstore"
	"github.com/kestrelsupply/replenisher-agent/tools"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	cycles     int
	seedOnly   bool
)

func main() {
	root := &cobra.Command{
		Use:   "seed",
		Short: "Seeds demo data and optionally runs a batch of replenishment cycles",
		RunE:  run,
	}
	root.Flags().StringVar(&configFile, "config", "", "path to a YAML/JSON/TOML config file")
	root.Flags().IntVar(&cycles, "cycles", 1, "number of cycles to run after seeding")
	root.Flags().BoolVar(&seedOnly, "seed-only", false, "seed demo data and exit without running any cycle")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

// demoCatalog is a small, varied product set: some understocked and
// critical, some comfortably above their reorder point, one inactive SKU
// to exercise Check Constraints' obsolete-drop path.
var demoCatalog = []core.InventoryRecord{
	{SKU: "SKU-ESPRESSO-001", ProductName: "Espresso Beans 1kg", Quantity: 8, Threshold: 20,
		UnitPrice: decimal.NewFromFloat(14.50), HoldingCostPercent: 0.2, ReorderCost: decimal.NewFromFloat(25),
		LeadTimeDays: 5, Supplier: "Roastworks Co", MinOrderQty: 20, SafetyStock: 10, IsActive: true, Category: "beverage"},
	{SKU: "SKU-OATMILK-014", ProductName: "Oat Milk Carton", Quantity: 120, Threshold: 30,
		UnitPrice: decimal.NewFromFloat(3.20), HoldingCostPercent: 0.25, ReorderCost: decimal.NewFromFloat(15),
		LeadTimeDays: 3, Supplier: "Northfield Dairy Alt", MinOrderQty: 50, SafetyStock: 20, IsActive: true, Category: "beverage"},
	{SKU: "SKU-CUPLID-077", ProductName: "12oz Cup Lids (sleeve of 100)", Quantity: 4, Threshold: 15,
		UnitPrice: decimal.NewFromFloat(6.75), HoldingCostPercent: 0.1, ReorderCost: decimal.NewFromFloat(10),
		LeadTimeDays: 7, Supplier: "Packline Supply", MinOrderQty: 40, SafetyStock: 15, IsActive: true, Category: "packaging"},
	{SKU: "SKU-VANSYR-009", ProductName: "Vanilla Syrup 750ml", Quantity: 60, Threshold: 10,
		UnitPrice: decimal.NewFromFloat(9.00), HoldingCostPercent: 0.15, ReorderCost: decimal.NewFromFloat(12),
		LeadTimeDays: 4, Supplier: "Flavorhouse Imports", MinOrderQty: 12, SafetyStock: 6, IsActive: true, Category: "syrup"},
	{SKU: "SKU-DISCONT-099", ProductName: "Seasonal Pumpkin Cup Sleeve", Quantity: 2, Threshold: 10,
		UnitPrice: decimal.NewFromFloat(4.00), HoldingCostPercent: 0.1, ReorderCost: decimal.NewFromFloat(8),
		LeadTimeDays: 10, Supplier: "Packline Supply", MinOrderQty: 25, SafetyStock: 5, IsActive: false, Category: "packaging"},
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("seed: load config: %w", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("seed: build logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx := context.Background()

	var store core.Store
	if cfg.DatabaseDSN == "" {
		store = memstore.New()
	} else {
		pg, err := pgstore.Open(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("seed: open postgres: %w", err)
		}
		defer pg.Close()
		store = pg
	}

	if err := seedInventory(ctx, store); err != nil {
		return err
	}
	if err := seedSalesHistory(ctx, store); err != nil {
		return err
	}
	if err := seedFacts(ctx, store); err != nil {
		return err
	}
	sugar.Infow("seeded demo catalog", "skus", len(demoCatalog), "sales_days", 14)

	if seedOnly {
		return nil
	}

	driver := cycle.NewDriver(store, tools.NilEstimator{}, nil, nil)

	for i := 0; i < cycles; i++ {
		driver.Config.CycleNumber = i + 1
		result, err := driver.RunCycle(ctx, fmt.Sprintf("demo-cycle-%d", i+1))
		if err != nil {
			return fmt.Errorf("seed: run cycle %d: %w", i+1, err)
		}
		sugar.Infow("cycle complete", "cycle", i+1, "status", result.Status,
			"decisions", len(result.Decisions), "actions", len(result.Actions), "errors", len(result.Errors))
		for _, d := range result.Decisions {
			sugar.Infow("decision", "sku", d.SKU, "quantity", d.OrderQuantity, "urgency", d.Urgency, "reason", d.Reason)
		}
	}
	return nil
}

func seedInventory(ctx context.Context, store core.Store) error {
	for _, rec := range demoCatalog {
		if err := store.UpsertInventory(ctx, rec); err != nil {
			return fmt.Errorf("seed: upsert %s: %w", rec.SKU, err)
		}
	}
	return nil
}

func seedSalesHistory(ctx context.Context, store core.Store) error {
	rng := rand.New(rand.NewSource(42))
	now := time.Now()
	for _, rec := range demoCatalog {
		baseDemand := 3 + rng.Intn(8)
		for day := 13; day >= 0; day-- {
			qty := baseDemand + rng.Intn(3) - 1
			if qty < 0 {
				qty = 0
			}
			ev := core.SalesEvent{SKU: rec.SKU, SoldQuantity: qty, Date: now.AddDate(0, 0, -day)}
			if err := store.RecordSale(ctx, ev); err != nil {
				return fmt.Errorf("seed: record sale %s: %w", rec.SKU, err)
			}
		}
	}
	return nil
}

func seedFacts(ctx context.Context, store core.Store) error {
	return store.UpsertFact(ctx, core.SemanticFact{
		SKU: "SKU-ESPRESSO-001", Category: "supplier_note", Key: "contract_review",
		Value: "Roastworks renewing Q3 contract; expect +8% cost", Confidence: 0.8,
		Source: "procurement_notes", IsActive: true,
	})
}
