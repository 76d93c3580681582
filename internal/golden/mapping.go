package golden

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "golden_mappings", "g").
	Project("id", "ID").
	Project("account_name", "AccountName").
	Project("description", "Description").
	Project("vendor", "Vendor").
	Project("coa_code", "COACode").
	Project("category", "Category").
	Project("embedding", "Embedding").
	Project("source", "Source").
	Project("created_at", "CreatedAt")

var defaultSort = query.SortField{
	Field: "AccountName",
}

// Filters contains optional filtering criteria for golden mapping queries.
type Filters struct {
	COACode  *string `json:"coa_code,omitempty"`
	Category *string `json:"category,omitempty"`
	Source   *Source `json:"source,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("COACode", f.COACode).
		WhereEquals("Category", f.Category).
		WhereEquals("Source", f.Source)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if c := values.Get("coa_code"); c != "" {
		f.COACode = &c
	}

	if c := values.Get("category"); c != "" {
		f.Category = &c
	}

	if s := values.Get("source"); s != "" {
		src := Source(s)
		f.Source = &src
	}

	return f
}

func scanMapping(s repository.Scanner) (Mapping, error) {
	var m Mapping
	var embedding []byte

	err := s.Scan(
		&m.ID,
		&m.AccountName,
		&m.Description,
		&m.Vendor,
		&m.COACode,
		&m.Category,
		&embedding,
		&m.Source,
		&m.CreatedAt,
	)
	if err != nil {
		return m, err
	}

	if len(embedding) > 0 {
		if err := json.Unmarshal(embedding, &m.Embedding); err != nil {
			return m, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}

	return m, nil
}
