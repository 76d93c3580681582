// Package accounts aggregates raw general-ledger rows into the distinct client
// accounts of a deal and keeps their embeddings current. Client accounts are
// immutable once created apart from their embedding.
package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JaimeStill/tally/pkg/formatting"
)

// Account is a distinct (account name, description) pair observed in a deal's GL.
type Account struct {
	ID               uuid.UUID       `json:"id"`
	OrganizationID   uuid.UUID       `json:"organization_id"`
	DealID           uuid.UUID       `json:"deal_id"`
	AccountKey       string          `json:"account_key"`
	AccountName      string          `json:"account_name"`
	Description      string          `json:"description"`
	Vendor           string          `json:"vendor"`
	TransactionCount int             `json:"transaction_count"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Embedding        []float32       `json:"-"`
	EmbeddedAt       *time.Time      `json:"embedded_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Embedded reports whether the account has a stored embedding.
func (a Account) Embedded() bool {
	return len(a.Embedding) > 0
}

// RawRow is the slice of a GL transaction the aggregator reads.
type RawRow struct {
	ID          uuid.UUID
	AccountName string
	Description string
	Vendor      string
	Amount      decimal.Decimal
}

// Group is one distinct account key with the GL rows that carry it.
type Group struct {
	Key              string
	AccountName      string
	Description      string
	Vendor           string
	TransactionCount int
	TotalAmount      decimal.Decimal
	RowIDs           []uuid.UUID
}

// AggregateResult summarizes an aggregation run.
type AggregateResult struct {
	DealID    uuid.UUID   `json:"deal_id"`
	TotalKeys int         `json:"total_keys"`
	Inserted  int         `json:"inserted"`
	Existing  int         `json:"existing"`
	NewIDs    []uuid.UUID `json:"new_ids"`
}

// RefreshResult summarizes an embedding refresh.
type RefreshResult struct {
	DealID   uuid.UUID `json:"deal_id"`
	Total    int       `json:"total"`
	Embedded int       `json:"embedded"`
	Failed   int       `json:"failed"`
}

// Key returns the dedup key of an account: normalized name and description
// joined by " | ".
func Key(accountName, description string) string {
	return formatting.Normalize(accountName) + " | " + formatting.Normalize(description)
}

// GroupRows folds rows into distinct account keys, preserving first-seen
// order. The first row of a key supplies its display name and description;
// the vendor is the first non-empty vendor seen.
func GroupRows(rows []RawRow) []Group {
	index := make(map[string]int)
	groups := make([]Group, 0)

	for _, row := range rows {
		key := Key(row.AccountName, row.Description)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{
				Key:         key,
				AccountName: row.AccountName,
				Description: row.Description,
				TotalAmount: decimal.Zero,
			})
		}

		g := &groups[i]
		if g.Vendor == "" {
			g.Vendor = row.Vendor
		}
		g.TransactionCount++
		g.TotalAmount = g.TotalAmount.Add(row.Amount)
		g.RowIDs = append(g.RowIDs, row.ID)
	}

	return groups
}
