package anomalies

import (
	"net/url"
	"strconv"

	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "anomalies", "an").
	Project("id", "ID").
	Project("organization_id", "OrganizationID").
	Project("deal_id", "DealID").
	Project("pl_line_item_id", "PLLineItemID").
	Project("anomaly_type", "Type").
	Project("severity", "Severity").
	Project("current_amount", "CurrentAmount").
	Project("trailing_average", "TrailingAverage").
	Project("variance_multiple", "VarianceMultiple").
	Project("summary", "Summary").
	Project("is_addback_candidate", "IsAddbackCandidate").
	Project("confidence", "Confidence").
	Project("created_at", "CreatedAt")

const returning = `id, organization_id, deal_id, pl_line_item_id, anomaly_type, severity,
	current_amount, trailing_average, variance_multiple, summary, is_addback_candidate,
	confidence, created_at`

var defaultSort = query.SortField{
	Field:      "Confidence",
	Descending: true,
}

// Filters contains optional filtering criteria for anomaly queries.
type Filters struct {
	Type     *string `json:"anomaly_type,omitempty"`
	Severity *string `json:"severity,omitempty"`
	Addback  *bool   `json:"is_addback_candidate,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Type", f.Type).
		WhereEquals("Severity", f.Severity).
		WhereEquals("IsAddbackCandidate", f.Addback)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if t := values.Get("anomaly_type"); t != "" {
		f.Type = &t
	}

	if s := values.Get("severity"); s != "" {
		f.Severity = &s
	}

	if a := values.Get("is_addback_candidate"); a != "" {
		if v, err := strconv.ParseBool(a); err == nil {
			f.Addback = &v
		}
	}

	return f
}

func scanAnomaly(s repository.Scanner) (Anomaly, error) {
	var a Anomaly
	err := s.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.DealID,
		&a.PLLineItemID,
		&a.Type,
		&a.Severity,
		&a.CurrentAmount,
		&a.TrailingAverage,
		&a.VarianceMultiple,
		&a.Summary,
		&a.IsAddbackCandidate,
		&a.Confidence,
		&a.CreatedAt,
	)
	return a, err
}
