// Package mappings classifies client accounts against the standard chart of
// accounts and drives each proposal through review. Every client account has
// at most one mapping; classification proposes it, analysts approve, reject
// or override it, and approved mappings feed back into the golden corpus.
package mappings

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Status is the review state of a mapping. Green and yellow are proposal
// tiers; approved and rejected are terminal until a remap.
type Status string

const (
	StatusGreen    Status = "green"
	StatusYellow   Status = "yellow"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether s is a reviewed state.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Action is an analyst or system operation on a mapping.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionOverride Action = "override"
	ActionRemap    Action = "remap"
	ActionClassify Action = "classify"
)

// Mapping is the proposed or reviewed COA for one client account.
type Mapping struct {
	ID              uuid.UUID  `json:"id"`
	OrganizationID  uuid.UUID  `json:"organization_id"`
	DealID          uuid.UUID  `json:"deal_id"`
	ClientAccountID uuid.UUID  `json:"client_account_id"`
	COACode         *string    `json:"coa_code"`
	Confidence      int        `json:"confidence"`
	Rationale       string     `json:"rationale"`
	Status          Status     `json:"status"`
	ReviewedBy      *string    `json:"reviewed_by"`
	ReviewedAt      *time.Time `json:"reviewed_at"`
	RejectReason    *string    `json:"reject_reason"`
	ClassifiedAt    time.Time  `json:"classified_at"`
}

// Outcome describes what a classification did to the stored mapping.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// Result is the classification of one client account.
type Result struct {
	ClientAccountID uuid.UUID `json:"client_account_id"`
	Outcome         Outcome   `json:"outcome"`
	Mapping         *Mapping  `json:"mapping,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// DealResult is the classification of every client account of a deal.
type DealResult struct {
	DealID    uuid.UUID `json:"deal_id"`
	Total     int       `json:"total"`
	Green     int       `json:"green"`
	Yellow    int       `json:"yellow"`
	Unchanged int       `json:"unchanged"`
	Failed    int       `json:"failed"`
	Results   []Result  `json:"results"`
}

// OverrideCommand assigns a COA manually.
type OverrideCommand struct {
	COACode   string `json:"coa_code"`
	Rationale string `json:"rationale"`
}

// RejectCommand carries the analyst's reason for a rejection.
type RejectCommand struct {
	Reason string `json:"reason"`
}

// BulkApproveCommand approves every green mapping at or above MinConfidence.
type BulkApproveCommand struct {
	MinConfidence int `json:"min_confidence"`
}

// BulkResult reports the mappings a bulk approval touched.
type BulkResult struct {
	Approved []uuid.UUID   `json:"approved"`
	Failures []BulkFailure `json:"failures"`
}

// BulkFailure is a mapping a bulk approval could not approve.
type BulkFailure struct {
	MappingID uuid.UUID `json:"mapping_id"`
	Error     string    `json:"error"`
}

// Summary is the review progress of a deal.
type Summary struct {
	DealID      uuid.UUID `json:"deal_id"`
	Accounts    int       `json:"accounts"`
	Total       int       `json:"total"`
	Approved    int       `json:"approved"`
	NeedsReview int       `json:"needs_review"`
	Rejected    int       `json:"rejected"`
	Unmapped    int       `json:"unmapped"`
	Progress    float64   `json:"progress"`
}

// Verified is an approved mapping of the organization together with its
// account's features, used as the fallback retrieval corpus.
type Verified struct {
	MappingID   uuid.UUID
	AccountName string
	Description string
	Vendor      string
	COACode     string
	Embedding   []float32
}

// NewSummary derives review progress from per-status counts. Progress is the
// reviewed share of the deal's client accounts, in percent.
func NewSummary(dealID uuid.UUID, accounts int, counts map[Status]int) Summary {
	s := Summary{
		DealID:      dealID,
		Accounts:    accounts,
		Approved:    counts[StatusApproved],
		NeedsReview: counts[StatusGreen] + counts[StatusYellow],
		Rejected:    counts[StatusRejected],
	}
	s.Total = s.Approved + s.NeedsReview + s.Rejected
	s.Unmapped = max(0, accounts-s.Total)
	if accounts > 0 {
		s.Progress = math.Round(float64(s.Approved+s.Rejected)/float64(accounts)*1000) / 10
	}
	return s
}
