package audit

import (
	"net/url"

	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "open_items", "oi").
	Project("id", "ID").
	Project("organization_id", "OrganizationID").
	Project("deal_id", "DealID").
	Project("gl_transaction_id", "GLTransactionID").
	Project("reason", "Reason").
	Project("detail", "Detail").
	Project("question", "Question").
	Project("status", "Status").
	Project("resolution", "Resolution").
	Project("updated_by", "UpdatedBy").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

const returning = `id, organization_id, deal_id, gl_transaction_id, reason, detail,
	question, status, resolution, updated_by, created_at, updated_at`

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for open item queries.
type Filters struct {
	Status *string `json:"status,omitempty"`
	Reason *string `json:"reason,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("Reason", f.Reason)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("status"); s != "" {
		f.Status = &s
	}

	if r := values.Get("reason"); r != "" {
		f.Reason = &r
	}

	return f
}

func scanOpenItem(s repository.Scanner) (OpenItem, error) {
	var o OpenItem
	err := s.Scan(
		&o.ID,
		&o.OrganizationID,
		&o.DealID,
		&o.GLTransactionID,
		&o.Reason,
		&o.Detail,
		&o.Question,
		&o.Status,
		&o.Resolution,
		&o.UpdatedBy,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	return o, err
}
