// Package anomalies flags unusual month-over-month movements in a deal's P&L
// and reconciles P&L lines against the general ledger.
package anomalies

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type classifies the movement.
type Type string

const (
	TypeSpike       Type = "variance_spike"
	TypeDrop        Type = "variance_drop"
	TypeNewLineItem Type = "new_line_item"
)

// Severity ranks an anomaly for review.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Confidence returns the fixed confidence attached to a severity.
func (s Severity) Confidence() int {
	switch s {
	case SeverityHigh:
		return 90
	case SeverityMedium:
		return 70
	default:
		return 50
	}
}

// Anomaly is a stored finding on one P&L line item.
type Anomaly struct {
	ID                 uuid.UUID           `json:"id"`
	OrganizationID     uuid.UUID           `json:"organization_id"`
	DealID             uuid.UUID           `json:"deal_id"`
	PLLineItemID       uuid.UUID           `json:"pl_line_item_id"`
	Type               Type                `json:"anomaly_type"`
	Severity           Severity            `json:"severity"`
	CurrentAmount      decimal.Decimal     `json:"current_amount"`
	TrailingAverage    decimal.NullDecimal `json:"trailing_average"`
	VarianceMultiple   decimal.NullDecimal `json:"variance_multiple"`
	Summary            string              `json:"summary"`
	IsAddbackCandidate bool                `json:"is_addback_candidate"`
	Confidence         int                 `json:"confidence"`
	CreatedAt          time.Time           `json:"created_at"`
}

// Point is one P&L line item placed on the deal's timeline.
type Point struct {
	LineItemID   uuid.UUID
	PeriodStart  time.Time
	LineName     string
	LineCategory string
	Amount       decimal.Decimal
	IsSubtotal   bool
}

// History is every period and line item of a deal.
type History struct {
	Periods []time.Time
	Points  []Point
}

// Candidate is an anomaly proposed by Scan, not yet stored.
type Candidate struct {
	Point   Point
	Finding Finding
	Priors  int
	Addback bool
	Summary string
}

// DetectResult reports one detection run.
type DetectResult struct {
	DealID    uuid.UUID `json:"deal_id"`
	Period    string    `json:"period"`
	Evaluated int       `json:"evaluated"`
	Existing  int       `json:"existing"`
	Detected  []Anomaly `json:"detected"`
}

// ReconLine is a mapped P&L line awaiting reconciliation.
type ReconLine struct {
	LineItemID uuid.UUID
	LineName   string
	COACode    string
	Amount     decimal.Decimal
}

// Reconciled is a P&L line compared against the GL rows mapped to its COA.
type Reconciled struct {
	LineItemID      uuid.UUID       `json:"pl_line_item_id"`
	LineName        string          `json:"line_name"`
	COACode         string          `json:"mapped_coa_code"`
	Amount          decimal.Decimal `json:"amount"`
	GLDerivedAmount decimal.Decimal `json:"gl_derived_amount"`
	Variance        decimal.Decimal `json:"variance"`
}

// ReconcileResult reports one reconciliation run.
type ReconcileResult struct {
	DealID        uuid.UUID       `json:"deal_id"`
	Period        string          `json:"period"`
	Lines         []Reconciled    `json:"lines"`
	TotalVariance decimal.Decimal `json:"total_variance"`
}
