// Package core defines the domain types and the narrow ports the cycle
// engine uses to reach outside itself: a transactional store, an external
// forecaster, and a dialogue-text renderer. Nothing in this package knows
// about HTTP, SQL, or any concrete vendor.
package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus enumerates the lifecycle states of an OrderRecord.
type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderNeedsApproval  OrderStatus = "needs_approval"
	OrderCompleted      OrderStatus = "completed"
	OrderFailed         OrderStatus = "failed"
)

// Urgency bands a Decision's priority.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
	UrgencyDeferred Urgency = "deferred"
	UrgencyObsolete Urgency = "obsolete"
)

// InventoryRecord is the persisted shape of one SKU.
type InventoryRecord struct {
	SKU                 string
	ProductName         string
	Quantity            int
	Threshold           int
	UnitPrice           decimal.Decimal
	HoldingCostPercent  float64
	ReorderCost         decimal.Decimal
	LeadTimeDays        int
	Supplier            string
	MinOrderQty         int
	MaxOrderQty         *int
	SafetyStock         int
	IsActive            bool
	Category            string
	SemanticFacts       []SemanticFact
	LastUpdated         time.Time
}

// SalesEvent is one recorded sale.
type SalesEvent struct {
	SKU          string
	SoldQuantity int
	Date         time.Time
}

// OrderRecord is a placed (or proposed) purchase order.
type OrderRecord struct {
	ID        uuid.UUID
	SKU       string
	Quantity  int
	OrderDate time.Time
	Status    OrderStatus
	Notes     string
}

// IsOverdue reports whether a pending order has blown past its lead time.
func (o OrderRecord) IsOverdue(leadTimeDays int, now time.Time) bool {
	if o.Status != OrderPending {
		return false
	}
	return o.OrderDate.AddDate(0, 0, leadTimeDays).Before(now)
}

// Alert is a short operator-facing notice with a priority derived from
// decision urgency.
type Alert struct {
	ID        uuid.UUID
	Message   string
	Type      string
	SKU       string
	Priority  int
	CreatedAt time.Time
}

// AlertPriority maps an Urgency to the alert priority scale in spec §4.7
// (1 = most urgent).
func AlertPriority(u Urgency) int {
	switch u {
	case UrgencyCritical:
		return 1
	case UrgencyHigh:
		return 2
	case UrgencyMedium:
		return 3
	case UrgencyLow:
		return 4
	default:
		return 5
	}
}

// Forecast is the hybrid estimator's 7-day demand vector for one SKU.
type Forecast struct {
	SKU         string
	Daily       [7]float64
	Confidence  float64
	Explanation string
}

// Total7Day returns sum(daily), the demand figure the decision kernel uses.
func (f Forecast) Total7Day() float64 {
	total := 0.0
	for _, d := range f.Daily {
		total += d
	}
	return total
}

// Metrics is the derived, unpersisted per-SKU summary the decision kernel
// consumes.
type Metrics struct {
	SKU                string
	CurrentStock       int
	PendingOrders      int
	DailyAvgDemand     float64
	DemandVolatility   float64
	LeadTimeDays       int
	UnitCost           decimal.Decimal
	HoldingCostPercent float64
	ReorderCost        decimal.Decimal
	SafetyStock        int
	MinOrderQty        int
	MaxOrderQty        *int
	ForecastConfidence float64
	Forecast7Day       float64
	Threshold          int
	IsActive           bool
	UtilityPenalty     float64
}

// CostAnalysis is the annual cost breakdown attached to a Decision.
type CostAnalysis struct {
	PurchasingCostPerUnit decimal.Decimal
	AnnualOrderingCost    decimal.Decimal
	AverageInventory      float64
	AnnualHoldingCost     decimal.Decimal
}

// FinanceMetrics is populated by the Finance stage on top of a Decision.
type FinanceMetrics struct {
	TotalCost          decimal.Decimal
	ROI                float64
	StockoutRiskFactor float64
	DaysUntilStockout  float64
	ProjectedValue     decimal.Decimal
}

// Decision is one SKU's reorder proposal as it flows through Finance and
// Negotiation.
type Decision struct {
	SKU               string
	ProductName       string
	ReorderRequired   bool
	OrderQuantity     int
	Urgency           Urgency
	Reason            string
	Details           map[string]any
	CostAnalysis      CostAnalysis
	FinanceMetrics    *FinanceMetrics
	Negotiated        bool
	OriginalQuantity  int
	OverrideApproved  bool
	OverrideReason    string
	RejectionReason   string
}

// FipaPerformative enumerates the speech-act types used in dialogue
// envelopes.
type FipaPerformative string

const (
	PerformativeRefuse         FipaPerformative = "REFUSE"
	PerformativePropose        FipaPerformative = "PROPOSE"
	PerformativeAgree          FipaPerformative = "AGREE"
	PerformativeAcceptProposal FipaPerformative = "ACCEPT-PROPOSAL"
	PerformativeRejectProposal FipaPerformative = "REJECT-PROPOSAL"
)

// FipaEnvelope is the structured half of a dialogue entry.
type FipaEnvelope struct {
	Performative FipaPerformative
	Sender       string
	Receiver     string
	Content      map[string]any
	Language     string
	Ontology     string
	Protocol     string
}

// DialogueType enumerates the kinds of dialogue entries appended to
// agent_dialogues.
type DialogueType string

const (
	DialogueRejection       DialogueType = "rejection"
	DialogueAcceptProposal  DialogueType = "accept_proposal"
	DialogueRejectProposal  DialogueType = "reject_proposal"
	DialogueOverrideApprove DialogueType = "override_approval"
	DialoguePropose         DialogueType = "propose"
)

// Dialogue is one Finance<->Decision exchange recorded for traceability.
type Dialogue struct {
	Agent   string
	Target  string
	Message string
	Type    DialogueType
	SKU     string
	Fipa    FipaEnvelope
}

// NegotiationProposal is a quantity-reduced counter-proposal produced by
// the Negotiation stage.
type NegotiationProposal struct {
	SKU              string
	OriginalQuantity int
	NewQuantity      int
	OriginalCost     decimal.Decimal
	NewCost          decimal.Decimal
	ReductionFactor  float64
}

// Checkpoint is an immutable snapshot of cycle progress.
type Checkpoint struct {
	CheckpointID uuid.UUID
	Timestamp    time.Time
	CycleNumber  int
	Goal         string
	StateBlob    []byte
	IsStable     bool
	IsActive     bool
}

// EpisodeOutcome enumerates how a cycle's episode is classified.
type EpisodeOutcome string

const (
	OutcomeSuccess EpisodeOutcome = "success"
	OutcomePartial EpisodeOutcome = "partial"
)

// Episode is one long-term memory record describing a cycle's outcome.
type Episode struct {
	EventID     uuid.UUID
	Timestamp   time.Time
	EventType   string
	SKU         string
	Description string
	Context     map[string]any
	Outcome     EpisodeOutcome
	Learning    string
}

// SemanticFact is a (category, key) -> value fact with a confidence and
// source, injected into inventory records at Fetch time.
type SemanticFact struct {
	Category   string
	Key        string
	Value      string
	Confidence float64
	Source     string
	SKU        string
	IsActive   bool
}

// InventorySnippet and SalesSnippet are the minimal, PII-free context
// handed to the external estimator — never the full snapshot.
type InventorySnippet struct {
	SKU                string
	ProductName        string
	CurrentStock       int
	Threshold          int
	UnitPrice          decimal.Decimal
	LeadTimeDays       int
	SemanticFacts      []SemanticFact
}

type SalesSnippet struct {
	SKU          string
	RecentDaily  []int
}

// ExternalForecastResult is what the external estimator returns on success.
type ExternalForecastResult struct {
	Daily       [7]float64
	Confidence  float64
	Explanation string
}

// ExternalForecaster is the pluggable estimator port (spec §4.3, §9).
// Implementations MAY be synchronous or asynchronous; callers are expected
// to apply their own timeout via ctx.
type ExternalForecaster interface {
	Forecast(ctx context.Context, inv InventorySnippet, sales SalesSnippet) (ExternalForecastResult, error)
}

// DialogueRequest carries what a dialogue renderer needs to produce a
// human-readable message.
type DialogueRequest struct {
	Kind        DialogueType
	Agent       string
	SKU         string
	ProductName string
	Cost        decimal.Decimal
	ROI         float64
	BudgetLeft  decimal.Decimal
	Reason      string
	ExtraArgs   map[string]any
}

// DialogueService is the pluggable dialogue-text port (spec §9).
type DialogueService interface {
	Render(ctx context.Context, req DialogueRequest) (string, error)
}

// StageError wraps an error with the stage and (optionally) SKU it
// occurred in. State.RecordStageError uses it for per-SKU failures
// (recorded, SKU skipped); stage-fatal failures are not wrapped in it.
type StageError struct {
	Stage string
	SKU   string
	Err   error
}

func (e *StageError) Error() string {
	if e.SKU != "" {
		return e.Stage + "[" + e.SKU + "]: " + e.Err.Error()
	}
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }
