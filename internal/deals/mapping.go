package deals

import (
	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "deals", "d").
	Project("id", "ID").
	Project("organization_id", "OrganizationID").
	Project("name", "Name").
	Project("industry", "Industry").
	Project("notes", "Notes").
	Project("created_by", "CreatedBy").
	Project("created_at", "CreatedAt")

const returning = `id, organization_id, name, industry, notes, created_by, created_at`

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

func scanDeal(s repository.Scanner) (Deal, error) {
	var d Deal
	err := s.Scan(
		&d.ID,
		&d.OrganizationID,
		&d.Name,
		&d.Industry,
		&d.Notes,
		&d.CreatedBy,
		&d.CreatedAt,
	)
	return d, err
}
