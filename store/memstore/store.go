// Package memstore is the in-memory core.Store, used by the daemon's
// default configuration, the seed/demo harness, and tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kestrelsupply/replenisher-agent/core"
)

// Store guards every table behind one mutex. Throughput is not a concern
// here: this backend exists for development and tests, not production
// scale (spec §1 scope).
type Store struct {
	mu sync.RWMutex

	inventory   map[string]core.InventoryRecord
	sales       []core.SalesEvent
	orders      []core.OrderRecord
	alerts      []core.Alert
	facts       []core.SemanticFact
	checkpoints []core.Checkpoint
	episodes    []core.Episode
}

// New constructs an empty Store.
func New() *Store {
	return &Store{inventory: make(map[string]core.InventoryRecord)}
}

func (s *Store) ListInventory(_ context.Context) ([]core.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.InventoryRecord, 0, len(s.inventory))
	for _, rec := range s.inventory {
		rec.SemanticFacts = nil // Fetch injects facts fresh each cycle
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *Store) GetInventory(_ context.Context, sku string) (core.InventoryRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.inventory[sku]
	return rec, ok, nil
}

func (s *Store) UpsertInventory(_ context.Context, rec core.InventoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.LastUpdated = time.Now()
	s.inventory[rec.SKU] = rec
	return nil
}

func (s *Store) AdjustQuantity(_ context.Context, sku string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.inventory[sku]
	if !ok {
		return nil
	}
	rec.Quantity += delta
	if rec.Quantity < 0 {
		rec.Quantity = 0
	}
	rec.LastUpdated = time.Now()
	s.inventory[sku] = rec
	return nil
}

func (s *Store) ListSalesSince(_ context.Context, since time.Time) ([]core.SalesEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.SalesEvent, 0)
	for _, ev := range s.sales {
		if ev.Date.After(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *Store) RecordSale(_ context.Context, ev core.SalesEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = append(s.sales, ev)
	return nil
}

func (s *Store) ListOrders(_ context.Context) ([]core.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.OrderRecord, len(s.orders))
	copy(out, s.orders)
	return out, nil
}

func (s *Store) ListPendingOrders(_ context.Context) ([]core.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.OrderRecord, 0)
	for _, o := range s.orders {
		if o.Status == core.OrderPending {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Store) CreateOrder(_ context.Context, ord core.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, ord)
	return nil
}

func (s *Store) ListAlerts(_ context.Context) ([]core.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out, nil
}

func (s *Store) CreateAlert(_ context.Context, a core.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *Store) ListActiveFacts(_ context.Context) ([]core.SemanticFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.SemanticFact, 0)
	for _, f := range s.facts {
		if f.IsActive {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Store) UpsertFact(_ context.Context, f core.SemanticFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.facts {
		if existing.SKU == f.SKU && existing.Category == f.Category && existing.Key == f.Key {
			s.facts[i] = f
			return nil
		}
	}
	s.facts = append(s.facts, f)
	return nil
}

func (s *Store) SaveCheckpoint(_ context.Context, cp core.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints = append(s.checkpoints, cp)
	return nil
}

func (s *Store) LatestStableCheckpoint(_ context.Context) (core.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.checkpoints) - 1; i >= 0; i-- {
		if s.checkpoints[i].IsStable {
			return s.checkpoints[i], true, nil
		}
	}
	return core.Checkpoint{}, false, nil
}

func (s *Store) SaveEpisode(_ context.Context, ep core.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes = append(s.episodes, ep)
	return nil
}

func (s *Store) ListEpisodes(_ context.Context) ([]core.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Episode, len(s.episodes))
	copy(out, s.episodes)
	return out, nil
}
