// Package adjustments manages quality-of-earnings adjustments: proposed
// changes to reported EBITDA that move from draft through review, optionally
// linked to the GL transactions that support them.
package adjustments

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JaimeStill/tally/internal/ledger"
)

// Status is the review state of an adjustment.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether the adjustment can only be reopened.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Source records where an adjustment came from.
type Source string

const (
	SourceAIDetected  Source = "ai_detected"
	SourceDrillDown   Source = "drill_down"
	SourceManual      Source = "manual"
	SourceExcelImport Source = "excel_import"
)

func (s Source) valid() bool {
	switch s {
	case SourceAIDetected, SourceDrillDown, SourceManual, SourceExcelImport:
		return true
	}
	return false
}

// Category is the fixed adjustment taxonomy.
type Category string

const (
	CategoryOwnerCompensation Category = "owner_compensation"
	CategoryNonRecurring      Category = "non_recurring"
	CategoryProfessionalFees  Category = "professional_fees"
	CategoryRelatedParty      Category = "related_party"
	CategoryProForma          Category = "pro_forma"
	CategoryOutOfPeriod       Category = "out_of_period"
	CategoryPersonalExpense   Category = "personal_expense"
	CategoryOther             Category = "other"
)

// Categories lists the taxonomy in display order.
var Categories = []Category{
	CategoryOwnerCompensation,
	CategoryNonRecurring,
	CategoryProfessionalFees,
	CategoryRelatedParty,
	CategoryProForma,
	CategoryOutOfPeriod,
	CategoryPersonalExpense,
	CategoryOther,
}

// Valid reports whether c belongs to the taxonomy.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Adjustment is a proposed change to reported earnings.
type Adjustment struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	DealID         uuid.UUID       `json:"deal_id"`
	Status         Status          `json:"status"`
	Source         Source          `json:"source"`
	SourceRefID    *uuid.UUID      `json:"source_ref_id,omitempty"`
	Category       Category        `json:"category"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	PeriodStart    *ledger.Date    `json:"period_start,omitempty"`
	PeriodEnd      *ledger.Date    `json:"period_end,omitempty"`
	Rationale      string          `json:"rationale"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	SubmittedBy    *string         `json:"submitted_by,omitempty"`
	SubmittedAt    *time.Time      `json:"submitted_at,omitempty"`
	ApprovedBy     *string         `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	RejectedBy     *string         `json:"rejected_by,omitempty"`
	RejectedAt     *time.Time      `json:"rejected_at,omitempty"`
	ApprovalNotes  *string         `json:"approval_notes,omitempty"`
	Links          []uuid.UUID     `json:"gl_transaction_ids,omitempty"`
}

// CreateCommand is the input for creating a draft adjustment.
type CreateCommand struct {
	Source         Source          `json:"source"`
	SourceRefID    *uuid.UUID      `json:"source_ref_id,omitempty"`
	Category       Category        `json:"category"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	PeriodStart    *ledger.Date    `json:"period_start,omitempty"`
	PeriodEnd      *ledger.Date    `json:"period_end,omitempty"`
	Rationale      string          `json:"rationale"`
	TransactionIDs []uuid.UUID     `json:"gl_transaction_ids,omitempty"`
}

// UpdateCommand edits a draft. Nil fields are left unchanged.
type UpdateCommand struct {
	Category    *Category        `json:"category,omitempty"`
	Description *string          `json:"description,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	PeriodStart *ledger.Date     `json:"period_start,omitempty"`
	PeriodEnd   *ledger.Date     `json:"period_end,omitempty"`
	Rationale   *string          `json:"rationale,omitempty"`
}

// TransitionCommand moves an adjustment to Status.
type TransitionCommand struct {
	Status Status `json:"status"`
	Notes  string `json:"notes"`
}

// LinkCommand attaches GL transactions to a draft.
type LinkCommand struct {
	TransactionIDs []uuid.UUID `json:"gl_transaction_ids"`
}

// Draft builds a draft from cmd. Source defaults to manual.
func Draft(dealID uuid.UUID, actor string, cmd CreateCommand) (Adjustment, error) {
	if cmd.Source == "" {
		cmd.Source = SourceManual
	}
	if !cmd.Source.valid() {
		return Adjustment{}, fmt.Errorf("%w: %q", ErrInvalidSource, cmd.Source)
	}

	a := Adjustment{
		DealID:      dealID,
		Status:      StatusDraft,
		Source:      cmd.Source,
		SourceRefID: cmd.SourceRefID,
		Category:    cmd.Category,
		Description: strings.TrimSpace(cmd.Description),
		Amount:      cmd.Amount,
		PeriodStart: cmd.PeriodStart,
		PeriodEnd:   cmd.PeriodEnd,
		Rationale:   strings.TrimSpace(cmd.Rationale),
		CreatedBy:   actor,
	}
	return a, a.validate()
}

// Apply returns a copy of a with the command's fields set.
func (cmd UpdateCommand) Apply(a Adjustment) (Adjustment, error) {
	if cmd.Category != nil {
		a.Category = *cmd.Category
	}
	if cmd.Description != nil {
		a.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Amount != nil {
		a.Amount = *cmd.Amount
	}
	if cmd.PeriodStart != nil {
		a.PeriodStart = cmd.PeriodStart
	}
	if cmd.PeriodEnd != nil {
		a.PeriodEnd = cmd.PeriodEnd
	}
	if cmd.Rationale != nil {
		a.Rationale = strings.TrimSpace(*cmd.Rationale)
	}
	return a, a.validate()
}

func (a Adjustment) validate() error {
	if !a.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, a.Category)
	}
	if a.Description == "" {
		return ErrDescriptionRequired
	}
	if a.PeriodStart != nil && a.PeriodEnd != nil && a.PeriodEnd.Before(a.PeriodStart.Time) {
		return ErrInvalidPeriod
	}
	return nil
}

// Successor returns the draft that reopens a: same fields and links, source
// reference pointing back at a.
func (a Adjustment) Successor(actor string) Adjustment {
	ref := a.ID
	return Adjustment{
		DealID:      a.DealID,
		Status:      StatusDraft,
		Source:      a.Source,
		SourceRefID: &ref,
		Category:    a.Category,
		Description: a.Description,
		Amount:      a.Amount,
		PeriodStart: a.PeriodStart,
		PeriodEnd:   a.PeriodEnd,
		Rationale:   a.Rationale,
		CreatedBy:   actor,
		Links:       append([]uuid.UUID(nil), a.Links...),
	}
}
