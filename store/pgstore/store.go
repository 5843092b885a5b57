// Package pgstore implements core.Store against PostgreSQL via sqlx and
// lib/pq. See schema.sql for the table definitions.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/shopspring/decimal"
)

// Store wraps an *sqlx.DB and implements core.Store.
type Store struct {
	db *sqlx.DB
}

// Open connects to PostgreSQL at dsn and verifies connectivity.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

type inventoryRow struct {
	SKU                string          `db:"sku"`
	ProductName        string          `db:"product_name"`
	Quantity           int             `db:"quantity"`
	Threshold          int             `db:"threshold"`
	UnitPrice          decimal.Decimal `db:"unit_price"`
	HoldingCostPercent float64         `db:"holding_cost_percent"`
	ReorderCost        decimal.Decimal `db:"reorder_cost"`
	LeadTimeDays       int             `db:"lead_time_days"`
	Supplier           string          `db:"supplier"`
	MinOrderQty        int             `db:"min_order_qty"`
	MaxOrderQty        sql.NullInt64   `db:"max_order_qty"`
	SafetyStock        int             `db:"safety_stock"`
	IsActive           bool            `db:"is_active"`
	Category           string          `db:"category"`
	LastUpdated        time.Time       `db:"last_updated"`
}

func (r inventoryRow) toRecord() core.InventoryRecord {
	rec := core.InventoryRecord{
		SKU: r.SKU, ProductName: r.ProductName, Quantity: r.Quantity, Threshold: r.Threshold,
		UnitPrice: r.UnitPrice, HoldingCostPercent: r.HoldingCostPercent, ReorderCost: r.ReorderCost,
		LeadTimeDays: r.LeadTimeDays, Supplier: r.Supplier, MinOrderQty: r.MinOrderQty,
		SafetyStock: r.SafetyStock, IsActive: r.IsActive, Category: r.Category, LastUpdated: r.LastUpdated,
	}
	if r.MaxOrderQty.Valid {
		v := int(r.MaxOrderQty.Int64)
		rec.MaxOrderQty = &v
	}
	return rec
}

func (s *Store) ListInventory(ctx context.Context) ([]core.InventoryRecord, error) {
	var rows []inventoryRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT sku, product_name, quantity, threshold, unit_price,
		holding_cost_percent, reorder_cost, lead_time_days, supplier, min_order_qty, max_order_qty,
		safety_stock, is_active, category, last_updated FROM inventory ORDER BY sku`); err != nil {
		return nil, fmt.Errorf("pgstore: list inventory: %w", err)
	}
	out := make([]core.InventoryRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toRecord()
	}
	return out, nil
}

func (s *Store) GetInventory(ctx context.Context, sku string) (core.InventoryRecord, bool, error) {
	var r inventoryRow
	err := s.db.GetContext(ctx, &r, `SELECT sku, product_name, quantity, threshold, unit_price,
		holding_cost_percent, reorder_cost, lead_time_days, supplier, min_order_qty, max_order_qty,
		safety_stock, is_active, category, last_updated FROM inventory WHERE sku = $1`, sku)
	if err == sql.ErrNoRows {
		return core.InventoryRecord{}, false, nil
	}
	if err != nil {
		return core.InventoryRecord{}, false, fmt.Errorf("pgstore: get inventory: %w", err)
	}
	return r.toRecord(), true, nil
}

func (s *Store) UpsertInventory(ctx context.Context, rec core.InventoryRecord) error {
	var maxQty sql.NullInt64
	if rec.MaxOrderQty != nil {
		maxQty = sql.NullInt64{Int64: int64(*rec.MaxOrderQty), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO inventory (sku, product_name, quantity, threshold,
		unit_price, holding_cost_percent, reorder_cost, lead_time_days, supplier, min_order_qty,
		max_order_qty, safety_stock, is_active, category, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now())
		ON CONFLICT (sku) DO UPDATE SET product_name=$2, quantity=$3, threshold=$4, unit_price=$5,
		holding_cost_percent=$6, reorder_cost=$7, lead_time_days=$8, supplier=$9, min_order_qty=$10,
		max_order_qty=$11, safety_stock=$12, is_active=$13, category=$14, last_updated=now()`,
		rec.SKU, rec.ProductName, rec.Quantity, rec.Threshold, rec.UnitPrice, rec.HoldingCostPercent,
		rec.ReorderCost, rec.LeadTimeDays, rec.Supplier, rec.MinOrderQty, maxQty, rec.SafetyStock,
		rec.IsActive, rec.Category)
	if err != nil {
		return fmt.Errorf("pgstore: upsert inventory: %w", err)
	}
	return nil
}

func (s *Store) AdjustQuantity(ctx context.Context, sku string, delta int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE inventory SET quantity = GREATEST(0, quantity + $2),
		last_updated = now() WHERE sku = $1`, sku, delta)
	if err != nil {
		return fmt.Errorf("pgstore: adjust quantity: %w", err)
	}
	return nil
}

type salesRow struct {
	SKU          string    `db:"sku"`
	SoldQuantity int       `db:"sold_quantity"`
	Date         time.Time `db:"sale_date"`
}

func (s *Store) ListSalesSince(ctx context.Context, since time.Time) ([]core.SalesEvent, error) {
	var rows []salesRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT sku, sold_quantity, sale_date
		FROM sales_events WHERE sale_date > $1 ORDER BY sale_date DESC`, since); err != nil {
		return nil, fmt.Errorf("pgstore: list sales: %w", err)
	}
	out := make([]core.SalesEvent, len(rows))
	for i, r := range rows {
		out[i] = core.SalesEvent{SKU: r.SKU, SoldQuantity: r.SoldQuantity, Date: r.Date}
	}
	return out, nil
}

func (s *Store) RecordSale(ctx context.Context, ev core.SalesEvent) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sales_events (sku, sold_quantity, sale_date)
		VALUES ($1,$2,$3)`, ev.SKU, ev.SoldQuantity, ev.Date)
	if err != nil {
		return fmt.Errorf("pgstore: record sale: %w", err)
	}
	return nil
}

type orderRow struct {
	ID        uuid.UUID `db:"id"`
	SKU       string    `db:"sku"`
	Quantity  int       `db:"quantity"`
	OrderDate time.Time `db:"order_date"`
	Status    string    `db:"status"`
	Notes     string    `db:"notes"`
}

func (r orderRow) toRecord() core.OrderRecord {
	return core.OrderRecord{ID: r.ID, SKU: r.SKU, Quantity: r.Quantity, OrderDate: r.OrderDate,
		Status: core.OrderStatus(r.Status), Notes: r.Notes}
}

func (s *Store) ListOrders(ctx context.Context) ([]core.OrderRecord, error) {
	var rows []orderRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, sku, quantity, order_date, status, notes
		FROM orders ORDER BY order_date DESC`); err != nil {
		return nil, fmt.Errorf("pgstore: list orders: %w", err)
	}
	out := make([]core.OrderRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toRecord()
	}
	return out, nil
}

func (s *Store) ListPendingOrders(ctx context.Context) ([]core.OrderRecord, error) {
	var rows []orderRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, sku, quantity, order_date, status, notes
		FROM orders WHERE status = $1 ORDER BY order_date`, core.OrderPending); err != nil {
		return nil, fmt.Errorf("pgstore: list pending orders: %w", err)
	}
	out := make([]core.OrderRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toRecord()
	}
	return out, nil
}

func (s *Store) CreateOrder(ctx context.Context, ord core.OrderRecord) error {
	if ord.ID == uuid.Nil {
		ord.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO orders (id, sku, quantity, order_date, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6)`, ord.ID, ord.SKU, ord.Quantity, ord.OrderDate, ord.Status, ord.Notes)
	if err != nil {
		return fmt.Errorf("pgstore: create order: %w", err)
	}
	return nil
}

type alertRow struct {
	ID        uuid.UUID `db:"id"`
	SKU       string    `db:"sku"`
	Type      string    `db:"type"`
	Message   string    `db:"message"`
	Priority  int       `db:"priority"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) ListAlerts(ctx context.Context) ([]core.Alert, error) {
	var rows []alertRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, sku, type, message, priority, created_at
		FROM alerts ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("pgstore: list alerts: %w", err)
	}
	out := make([]core.Alert, len(rows))
	for i, r := range rows {
		out[i] = core.Alert{ID: r.ID, SKU: r.SKU, Type: r.Type, Message: r.Message, Priority: r.Priority, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

func (s *Store) CreateAlert(ctx context.Context, a core.Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO alerts (id, sku, type, message, priority, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`, a.ID, a.SKU, a.Type, a.Message, a.Priority, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: create alert: %w", err)
	}
	return nil
}

type factRow struct {
	SKU        string  `db:"sku"`
	Category   string  `db:"category"`
	Key        string  `db:"key"`
	Value      string  `db:"value"`
	Confidence float64 `db:"confidence"`
	Source     string  `db:"source"`
	IsActive   bool    `db:"is_active"`
}

func (s *Store) ListActiveFacts(ctx context.Context) ([]core.SemanticFact, error) {
	var rows []factRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT sku, category, key, value, confidence, source,
		is_active FROM semantic_facts WHERE is_active = TRUE`); err != nil {
		return nil, fmt.Errorf("pgstore: list active facts: %w", err)
	}
	out := make([]core.SemanticFact, len(rows))
	for i, r := range rows {
		out[i] = core.SemanticFact{SKU: r.SKU, Category: r.Category, Key: r.Key, Value: r.Value,
			Confidence: r.Confidence, Source: r.Source, IsActive: r.IsActive}
	}
	return out, nil
}

func (s *Store) UpsertFact(ctx context.Context, f core.SemanticFact) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO semantic_facts (sku, category, key, value,
		confidence, source, is_active) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (sku, category, key) DO UPDATE SET value=$4, confidence=$5, source=$6, is_active=$7`,
		f.SKU, f.Category, f.Key, f.Value, f.Confidence, f.Source, f.IsActive)
	if err != nil {
		return fmt.Errorf("pgstore: upsert fact: %w", err)
	}
	return nil
}

func (s *Store) SaveCheckpoint(ctx context.Context, cp core.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO checkpoints (checkpoint_id, cycle_number, goal,
		state_blob, is_stable, is_active, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		cp.CheckpointID, cp.CycleNumber, cp.Goal, cp.StateBlob, cp.IsStable, cp.IsActive, cp.Timestamp)
	if err != nil {
		return fmt.Errorf("pgstore: save checkpoint: %w", err)
	}
	return nil
}

type checkpointRow struct {
	CheckpointID uuid.UUID `db:"checkpoint_id"`
	CycleNumber  int       `db:"cycle_number"`
	Goal         string    `db:"goal"`
	StateBlob    []byte    `db:"state_blob"`
	IsStable     bool      `db:"is_stable"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
}

func (s *Store) LatestStableCheckpoint(ctx context.Context) (core.Checkpoint, bool, error) {
	var row checkpointRow
	err := s.db.GetContext(ctx, &row, `SELECT checkpoint_id, cycle_number, goal, state_blob,
		is_stable, is_active, created_at FROM checkpoints WHERE is_stable = TRUE
		ORDER BY created_at DESC LIMIT 1`)
	if err == sql.ErrNoRows {
		return core.Checkpoint{}, false, nil
	}
	if err != nil {
		return core.Checkpoint{}, false, fmt.Errorf("pgstore: latest checkpoint: %w", err)
	}
	return core.Checkpoint{
		CheckpointID: row.CheckpointID, CycleNumber: row.CycleNumber, Goal: row.Goal,
		StateBlob: row.StateBlob, IsStable: row.IsStable, IsActive: row.IsActive, Timestamp: row.CreatedAt,
	}, true, nil
}

func (s *Store) SaveEpisode(ctx context.Context, ep core.Episode) error {
	ctxJSON, err := json.Marshal(ep.Context)
	if err != nil {
		return fmt.Errorf("pgstore: marshal episode context: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO episodes (event_id, event_type, sku, description,
		context, outcome, learning, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		ep.EventID, ep.EventType, ep.SKU, ep.Description, ctxJSON, ep.Outcome, ep.Learning, ep.Timestamp)
	if err != nil {
		return fmt.Errorf("pgstore: save episode: %w", err)
	}
	return nil
}

func (s *Store) ListEpisodes(ctx context.Context) ([]core.Episode, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT event_id, event_type, sku, description, context,
		outcome, learning, created_at FROM episodes ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list episodes: %w", err)
	}
	defer rows.Close()

	var out []core.Episode
	for rows.Next() {
		var ep core.Episode
		var ctxJSON []byte
		if err := rows.Scan(&ep.EventID, &ep.EventType, &ep.SKU, &ep.Description, &ctxJSON,
			&ep.Outcome, &ep.Learning, &ep.Timestamp); err != nil {
			return nil, fmt.Errorf("pgstore: scan episode: %w", err)
		}
		if len(ctxJSON) > 0 {
			if err := json.Unmarshal(ctxJSON, &ep.Context); err != nil {
				return nil, fmt.Errorf("pgstore: unmarshal episode context: %w", err)
			}
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}
