package chart

import (
	"net/url"

	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "chart_of_accounts", "coa").
	Project("code", "Code").
	Project("name", "Name").
	Project("category", "Category").
	Project("subcategory", "Subcategory")

var defaultSort = query.SortField{
	Field: "Code",
}

// Filters contains optional filtering criteria for chart queries.
type Filters struct {
	Category    *string `json:"category,omitempty"`
	Subcategory *string `json:"subcategory,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Category", f.Category).
		WhereEquals("Subcategory", f.Subcategory)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if c := values.Get("category"); c != "" {
		f.Category = &c
	}

	if s := values.Get("subcategory"); s != "" {
		f.Subcategory = &s
	}

	return f
}

func scanAccount(s repository.Scanner) (Account, error) {
	var a Account
	err := s.Scan(
		&a.Code,
		&a.Name,
		&a.Category,
		&a.Subcategory,
	)
	return a, err
}
