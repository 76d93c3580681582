package prompts

import (
	"net/url"
	"strconv"

	"github.com/JaimeStill/tally/pkg/query"
	"github.com/JaimeStill/tally/pkg/repository"
)

const columns = "id, name, stage, instructions, description, active"

var projection = query.
	NewProjectionMap("public", "prompts", "p").
	Project("id", "ID").
	Project("name", "Name").
	Project("stage", "Stage").
	Project("instructions", "Instructions").
	Project("description", "Description").
	Project("active", "Active")

// Overrides list grouped by stage with the active one first.
var defaultSort = []query.SortField{
	{Field: "Stage"},
	{Field: "Active", Descending: true},
	{Field: "Name"},
}

// Filters narrows a prompt listing. Unknown stages and unparsable booleans
// in the query string are ignored.
type Filters struct {
	Stage  *Stage
	Name   *string
	Active *bool
}

func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Stage", f.Stage).
		WhereContains("Name", f.Name).
		WhereEquals("Active", f.Active)
}

// FiltersFromQuery reads stage, name, and active from URL query values.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters
	if stage, err := ParseStage(values.Get("stage")); err == nil {
		f.Stage = &stage
	}
	if n := values.Get("name"); n != "" {
		f.Name = &n
	}
	if v, err := strconv.ParseBool(values.Get("active")); err == nil {
		f.Active = &v
	}
	return f
}

func scanPrompt(s repository.Scanner) (Prompt, error) {
	var p Prompt
	err := s.Scan(&p.ID, &p.Name, &p.Stage, &p.Instructions, &p.Description, &p.Active)
	return p, err
}
