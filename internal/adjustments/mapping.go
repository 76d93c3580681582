package adjustments

import (
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/internal/ledger"
	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "adjustments", "adj").
	Project("id", "ID").
	Project("organization_id", "OrganizationID").
	Project("deal_id", "DealID").
	Project("status", "Status").
	Project("source", "Source").
	Project("source_ref_id", "SourceRefID").
	Project("category", "Category").
	Project("description", "Description").
	Project("amount", "Amount").
	Project("period_start", "PeriodStart").
	Project("period_end", "PeriodEnd").
	Project("rationale", "Rationale").
	Project("created_by", "CreatedBy").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt").
	Project("submitted_by", "SubmittedBy").
	Project("submitted_at", "SubmittedAt").
	Project("approved_by", "ApprovedBy").
	Project("approved_at", "ApprovedAt").
	Project("rejected_by", "RejectedBy").
	Project("rejected_at", "RejectedAt").
	Project("approval_notes", "ApprovalNotes")

const returning = `id, organization_id, deal_id, status, source, source_ref_id, category,
	description, amount, period_start, period_end, rationale, created_by, created_at,
	updated_at, submitted_by, submitted_at, approved_by, approved_at, rejected_by,
	rejected_at, approval_notes`

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for adjustment queries.
type Filters struct {
	Status   *string `json:"status,omitempty"`
	Category *string `json:"category,omitempty"`
	Source   *string `json:"source,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("Category", f.Category).
		WhereEquals("Source", f.Source)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("status"); s != "" {
		f.Status = &s
	}

	if c := values.Get("category"); c != "" {
		f.Category = &c
	}

	if s := values.Get("source"); s != "" {
		f.Source = &s
	}

	return f
}

func scanAdjustment(s repository.Scanner) (Adjustment, error) {
	var (
		a          Adjustment
		sourceRef  uuid.NullUUID
		start, end *time.Time
	)
	err := s.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.DealID,
		&a.Status,
		&a.Source,
		&sourceRef,
		&a.Category,
		&a.Description,
		&a.Amount,
		&start,
		&end,
		&a.Rationale,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.SubmittedBy,
		&a.SubmittedAt,
		&a.ApprovedBy,
		&a.ApprovedAt,
		&a.RejectedBy,
		&a.RejectedAt,
		&a.ApprovalNotes,
	)
	if err != nil {
		return a, err
	}
	if sourceRef.Valid {
		a.SourceRefID = &sourceRef.UUID
	}
	a.PeriodStart = dateOf(start)
	a.PeriodEnd = dateOf(end)
	return a, nil
}

func dateOf(t *time.Time) *ledger.Date {
	if t == nil {
		return nil
	}
	return &ledger.Date{Time: *t}
}

func timeOf(d *ledger.Date) *time.Time {
	if d == nil {
		return nil
	}
	return &d.Time
}
