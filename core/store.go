package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the transactional persistence port. Every stage that touches
// durable state does so only through this interface — no SQL, no schema,
// leaks above it. spec §1 treats the concrete backend as an external
// collaborator; this interface is the contract it must offer.
type Store interface {
	// Inventory
	ListInventory(ctx context.Context) ([]InventoryRecord, error)
	GetInventory(ctx context.Context, sku string) (InventoryRecord, bool, error)
	UpsertInventory(ctx context.Context, rec InventoryRecord) error
	AdjustQuantity(ctx context.Context, sku string, delta int) error

	// Sales
	ListSalesSince(ctx context.Context, since time.Time) ([]SalesEvent, error)
	RecordSale(ctx context.Context, ev SalesEvent) error

	// Orders
	ListOrders(ctx context.Context) ([]OrderRecord, error)
	ListPendingOrders(ctx context.Context) ([]OrderRecord, error)
	CreateOrder(ctx context.Context, ord OrderRecord) error

	// Alerts
	ListAlerts(ctx context.Context) ([]Alert, error)
	CreateAlert(ctx context.Context, a Alert) error

	// Semantic facts
	ListActiveFacts(ctx context.Context) ([]SemanticFact, error)
	UpsertFact(ctx context.Context, f SemanticFact) error

	// Checkpoints and episodes
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
	LatestStableCheckpoint(ctx context.Context) (Checkpoint, bool, error)
	SaveEpisode(ctx context.Context, ep Episode) error
	ListEpisodes(ctx context.Context) ([]Episode, error)
}

// JobStatus enumerates a background cycle job's lifecycle state.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is the persisted record backing /agent/run_once, /agent/job/{id},
// and /agent/jobs.
type Job struct {
	ID          uuid.UUID
	Status      JobStatus
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      *CycleResult
	Summary     string
	Error       string
}

// CycleResult is the Pipeline Driver's return contract (spec §4.1).
type CycleResult struct {
	CycleID       string
	Decisions     []Decision
	Actions       []ActionResult
	Dialogues     []Dialogue
	Forecasts     []Forecast
	SKUsProcessed int
	Errors        []string
	Status        string // "completed" | "failed"
}

// JobStore persists the background job records backing the async HTTP
// surface (spec §4.13, §6). Implementations: jobs/memjobs (in-process) and
// jobs/redisjobs (shared across replicas).
type JobStore interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id uuid.UUID) (Job, bool, error)
	Update(ctx context.Context, job Job) error
	List(ctx context.Context) ([]Job, error)
	// MarkOrphansFailed transitions every job left in JobRunning to
	// JobFailed, used once at startup (spec §4.13 resume rule: a job that
	// was running when the process died did not survive).
	MarkOrphansFailed(ctx context.Context) error
}

// ActionResult is the per-item result of the Action Executor (spec §4.7).
type ActionResult struct {
	Executed    bool
	OrderID     uuid.UUID
	SKU         string
	Quantity    int
	Urgency     Urgency
	Supplier    string
	CostPerUnit string
	TotalCost   string
	Error       string
}
