// Package deals manages the engagements every other domain is scoped to. A
// deal belongs to one organization and owns its accounts, ledger, periods,
// anomalies, adjustments and open items.
package deals

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Deal is one engagement under review.
type Deal struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	Industry       string    `json:"industry"`
	Notes          string    `json:"notes"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateCommand holds the fields for opening a deal.
type CreateCommand struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
	Notes    string `json:"notes"`
}

// Normalize trims the command and checks that a name is present.
func (c CreateCommand) Normalize() (CreateCommand, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Industry = strings.TrimSpace(c.Industry)
	c.Notes = strings.TrimSpace(c.Notes)
	if c.Name == "" {
		return c, ErrNameRequired
	}
	return c, nil
}

// Counts are the raw row counts behind a deal's progress.
type Counts struct {
	Accounts         int `json:"accounts"`
	MappedAccounts   int `json:"mapped_accounts"`
	ApprovedAccounts int `json:"approved_accounts"`

	Transactions         int `json:"transactions"`
	MappedTransactions   int `json:"mapped_transactions"`
	VerifiedTransactions int `json:"verified_transactions"`
	LowConfidence        int `json:"low_confidence_transactions"`

	Periods         int `json:"periods"`
	Anomalies       int `json:"anomalies"`
	OpenAdjustments int `json:"open_adjustments"`
	OpenItems       int `json:"open_items"`
}

// Stats summarizes how far the review of a deal has progressed.
type Stats struct {
	DealID uuid.UUID `json:"deal_id"`
	Counts

	MappingPercent      float64 `json:"mapping_percent"`
	VerificationPercent float64 `json:"verification_percent"`
}

// Stats derives the progress percentages. Percentages are of transactions
// and are rounded to one decimal; a deal without transactions reports zero.
func (c Counts) Stats(dealID uuid.UUID) Stats {
	return Stats{
		DealID:              dealID,
		Counts:              c,
		MappingPercent:      percent(c.MappedTransactions, c.Transactions),
		VerificationPercent: percent(c.VerifiedTransactions, c.Transactions),
	}
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)*1000/float64(whole)) / 10
}
