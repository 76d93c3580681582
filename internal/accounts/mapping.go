package accounts

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "client_accounts", "ca").
	Project("id", "ID").
	Project("organization_id", "OrganizationID").
	Project("deal_id", "DealID").
	Project("account_key", "AccountKey").
	Project("account_name", "AccountName").
	Project("description", "Description").
	Project("vendor", "Vendor").
	Project("transaction_count", "TransactionCount").
	Project("total_amount", "TotalAmount").
	Project("embedding", "Embedding").
	Project("embedded_at", "EmbeddedAt").
	Project("created_at", "CreatedAt")

const returning = `id, organization_id, deal_id, account_key, account_name, description,
	vendor, transaction_count, total_amount, embedding, embedded_at, created_at`

var defaultSort = query.SortField{
	Field: "AccountName",
}

// Filters contains optional filtering criteria for client account queries.
type Filters struct {
	Vendor       *string `json:"vendor,omitempty"`
	MinTxnCount  *int    `json:"min_transaction_count,omitempty"`
	EmbeddedOnly *bool   `json:"embedded_only,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	b.WhereContains("Vendor", f.Vendor)
	if f.MinTxnCount != nil {
		b.WhereCompare("TransactionCount", ">=", *f.MinTxnCount)
	}
	if f.EmbeddedOnly != nil && *f.EmbeddedOnly {
		b.WhereNotNull("EmbeddedAt")
	}
	return b
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if v := values.Get("vendor"); v != "" {
		f.Vendor = &v
	}

	if n := values.Get("min_transaction_count"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			f.MinTxnCount = &v
		}
	}

	if e := values.Get("embedded_only"); e != "" {
		if v, err := strconv.ParseBool(e); err == nil {
			f.EmbeddedOnly = &v
		}
	}

	return f
}

func scanAccount(s repository.Scanner) (Account, error) {
	var a Account
	var embedding []byte

	err := s.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.DealID,
		&a.AccountKey,
		&a.AccountName,
		&a.Description,
		&a.Vendor,
		&a.TransactionCount,
		&a.TotalAmount,
		&embedding,
		&a.EmbeddedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return a, err
	}

	if len(embedding) > 0 {
		if err := json.Unmarshal(embedding, &a.Embedding); err != nil {
			return a, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}

	return a, nil
}
