package mappings

import (
	"net/url"
	"strconv"

	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "account_mappings", "am").
	Project("id", "ID").
	Project("organization_id", "OrganizationID").
	Project("deal_id", "DealID").
	Project("client_account_id", "ClientAccountID").
	Project("coa_code", "COACode").
	Project("confidence", "Confidence").
	Project("rationale", "Rationale").
	Project("status", "Status").
	Project("reviewed_by", "ReviewedBy").
	Project("reviewed_at", "ReviewedAt").
	Project("reject_reason", "RejectReason").
	Project("classified_at", "ClassifiedAt")

const returning = `id, organization_id, deal_id, client_account_id, coa_code, confidence,
	rationale, status, reviewed_by, reviewed_at, reject_reason, classified_at`

var defaultSort = query.SortField{
	Field:      "Confidence",
	Descending: true,
}

// Filters contains optional filtering criteria for mapping queries.
type Filters struct {
	Status        *string `json:"status,omitempty"`
	COACode       *string `json:"coa_code,omitempty"`
	MinConfidence *int    `json:"min_confidence,omitempty"`
	MaxConfidence *int    `json:"max_confidence,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	b.WhereEquals("Status", f.Status).
		WhereEquals("COACode", f.COACode)

	if f.MinConfidence != nil {
		b.WhereCompare("Confidence", ">=", *f.MinConfidence)
	}
	if f.MaxConfidence != nil {
		b.WhereCompare("Confidence", "<=", *f.MaxConfidence)
	}
	return b
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("status"); s != "" {
		f.Status = &s
	}

	if c := values.Get("coa_code"); c != "" {
		f.COACode = &c
	}

	if n := values.Get("min_confidence"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			f.MinConfidence = &v
		}
	}

	if n := values.Get("max_confidence"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			f.MaxConfidence = &v
		}
	}

	return f
}

func scanMapping(s repository.Scanner) (Mapping, error) {
	var m Mapping
	err := s.Scan(
		&m.ID,
		&m.OrganizationID,
		&m.DealID,
		&m.ClientAccountID,
		&m.COACode,
		&m.Confidence,
		&m.Rationale,
		&m.Status,
		&m.ReviewedBy,
		&m.ReviewedAt,
		&m.RejectReason,
		&m.ClassifiedAt,
	)
	return m, err
}
