package ledger

import (
	"net/url"

	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "gl_transactions", "gl").
	Project("id", "ID").
	Project("organization_id", "OrganizationID").
	Project("deal_id", "DealID").
	Project("client_account_id", "ClientAccountID").
	Project("txn_date", "TxnDate").
	Project("account_name", "AccountName").
	Project("description", "Description").
	Project("vendor", "Vendor").
	Project("amount", "Amount").
	Project("mapped_coa_code", "MappedCOACode").
	Project("confidence", "Confidence").
	Project("is_verified", "IsVerified").
	Project("created_at", "CreatedAt")

var defaultSort = query.SortField{
	Field: "TxnDate",
}

// Filters contains optional filtering criteria for GL transaction queries.
type Filters struct {
	AccountName *string `json:"account_name,omitempty"`
	Vendor      *string `json:"vendor,omitempty"`
	From        *Date   `json:"from,omitempty"`
	To          *Date   `json:"to,omitempty"`
	Unlinked    bool    `json:"unlinked,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	b.WhereContains("AccountName", f.AccountName).
		WhereContains("Vendor", f.Vendor)

	if f.From != nil {
		b.WhereCompare("TxnDate", ">=", f.From.Time)
	}
	if f.To != nil {
		b.WhereCompare("TxnDate", "<=", f.To.Time)
	}
	if f.Unlinked {
		b.WhereNullable("ClientAccountID", nil)
	}
	return b
}

// FiltersFromQuery extracts filter values from URL query parameters.
// Malformed dates are ignored.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if v := values.Get("account_name"); v != "" {
		f.AccountName = &v
	}

	if v := values.Get("vendor"); v != "" {
		f.Vendor = &v
	}

	if v := values.Get("from"); v != "" {
		if d, err := ParseDate(v); err == nil {
			f.From = &d
		}
	}

	if v := values.Get("to"); v != "" {
		if d, err := ParseDate(v); err == nil {
			f.To = &d
		}
	}

	f.Unlinked = values.Get("unlinked") == "true"

	return f
}

func scanTransaction(s repository.Scanner) (Transaction, error) {
	var t Transaction
	err := s.Scan(
		&t.ID,
		&t.OrganizationID,
		&t.DealID,
		&t.ClientAccountID,
		&t.TxnDate,
		&t.AccountName,
		&t.Description,
		&t.Vendor,
		&t.Amount,
		&t.MappedCOACode,
		&t.Confidence,
		&t.IsVerified,
		&t.CreatedAt,
	)
	return t, err
}

func scanPeriod(s repository.Scanner) (Period, error) {
	var p Period
	err := s.Scan(&p.ID, &p.OrganizationID, &p.DealID, &p.PeriodStart, &p.PeriodEnd)
	return p, err
}

func scanLineItem(s repository.Scanner) (LineItem, error) {
	var l LineItem
	err := s.Scan(
		&l.ID,
		&l.PeriodID,
		&l.LineName,
		&l.LineCategory,
		&l.Amount,
		&l.DisplayOrder,
		&l.IsSubtotal,
		&l.MappedCOACode,
		&l.GLDerivedAmount,
		&l.Variance,
	)
	return l, err
}
