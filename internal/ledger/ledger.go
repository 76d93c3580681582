// Package ledger ingests the structured general-ledger transactions and
// monthly P&L periods of a deal. Parsing source spreadsheets happens upstream;
// rows arrive here already typed. Amounts, dates and account names never
// change after insert.
package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Date is a calendar date encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidInput, s)
	}
	return Date{t}, nil
}

// MarshalJSON encodes the date as YYYY-MM-DD.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(time.DateOnly))
}

// UnmarshalJSON decodes a YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Transaction is a stored GL row.
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	OrganizationID  uuid.UUID       `json:"organization_id"`
	DealID          uuid.UUID       `json:"deal_id"`
	ClientAccountID *uuid.UUID      `json:"client_account_id"`
	TxnDate         time.Time       `json:"txn_date"`
	AccountName     string          `json:"account_name"`
	Description     string          `json:"description"`
	Vendor          string          `json:"vendor"`
	Amount          decimal.Decimal `json:"amount"`
	MappedCOACode   *string         `json:"mapped_coa_code"`
	Confidence      *int            `json:"confidence"`
	IsVerified      bool            `json:"is_verified"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TransactionInput is one GL row offered for ingest.
type TransactionInput struct {
	TxnDate     Date            `json:"txn_date"`
	AccountName string          `json:"account_name"`
	Description string          `json:"description"`
	Vendor      string          `json:"vendor"`
	Amount      decimal.Decimal `json:"amount"`
}

// Period is one monthly P&L period of a deal.
type Period struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	DealID         uuid.UUID  `json:"deal_id"`
	PeriodStart    time.Time  `json:"period_start"`
	PeriodEnd      time.Time  `json:"period_end"`
	Lines          []LineItem `json:"lines,omitempty"`
}

// LineItem is one P&L line in a period.
type LineItem struct {
	ID              uuid.UUID           `json:"id"`
	PeriodID        uuid.UUID           `json:"period_id"`
	LineName        string              `json:"line_name"`
	LineCategory    string              `json:"line_category"`
	Amount          decimal.Decimal     `json:"amount"`
	DisplayOrder    int                 `json:"display_order"`
	IsSubtotal      bool                `json:"is_subtotal"`
	MappedCOACode   *string             `json:"mapped_coa_code"`
	GLDerivedAmount decimal.NullDecimal `json:"gl_derived_amount"`
	Variance        decimal.NullDecimal `json:"variance"`
}

// LineInput is one P&L line offered for ingest.
type LineInput struct {
	LineName      string          `json:"line_name"`
	LineCategory  string          `json:"line_category"`
	Amount        decimal.Decimal `json:"amount"`
	DisplayOrder  int             `json:"display_order"`
	IsSubtotal    bool            `json:"is_subtotal"`
	MappedCOACode *string         `json:"mapped_coa_code"`
}

// PeriodInput is a P&L period with its lines offered for ingest.
type PeriodInput struct {
	PeriodStart Date        `json:"period_start"`
	PeriodEnd   Date        `json:"period_end"`
	Lines       []LineInput `json:"lines"`
}

// IngestResult reports how many rows were stored.
type IngestResult struct {
	DealID   uuid.UUID `json:"deal_id"`
	Inserted int       `json:"inserted"`
}

// ValidateTransactions checks a GL batch against the size limit and
// required fields.
func ValidateTransactions(rows []TransactionInput, maxBatch int) error {
	if len(rows) == 0 {
		return fmt.Errorf("%w: no transactions", ErrInvalidInput)
	}
	if maxBatch > 0 && len(rows) > maxBatch {
		return fmt.Errorf("%w: %d rows exceeds limit of %d", ErrBatchTooLarge, len(rows), maxBatch)
	}
	for i, r := range rows {
		if strings.TrimSpace(r.AccountName) == "" {
			return fmt.Errorf("%w: row %d has no account name", ErrInvalidInput, i)
		}
		if r.TxnDate.IsZero() {
			return fmt.Errorf("%w: row %d has no date", ErrInvalidInput, i)
		}
	}
	return nil
}

// Validate checks that the period is well formed.
func (p PeriodInput) Validate(maxBatch int) error {
	if p.PeriodStart.IsZero() || p.PeriodEnd.IsZero() {
		return fmt.Errorf("%w: period start and end are required", ErrInvalidInput)
	}
	if p.PeriodEnd.Before(p.PeriodStart.Time) {
		return fmt.Errorf("%w: period ends before it starts", ErrInvalidInput)
	}
	if maxBatch > 0 && len(p.Lines) > maxBatch {
		return fmt.Errorf("%w: %d lines exceeds limit of %d", ErrBatchTooLarge, len(p.Lines), maxBatch)
	}
	for i, l := range p.Lines {
		if strings.TrimSpace(l.LineName) == "" {
			return fmt.Errorf("%w: line %d has no name", ErrInvalidInput, i)
		}
	}
	return nil
}
