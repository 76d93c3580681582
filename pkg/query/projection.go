// Package query builds parameterized SQL over projection maps that pair
// qualified columns with the view names callers filter and sort by.
package query

import "strings"

// ProjectionMap maps view names to qualified columns for one table and its
// joins.
type ProjectionMap struct {
	schema     string
	table      string
	alias      string
	joins      []string
	columns    map[string]string
	folded     map[string]string
	columnList []string
}

// NewProjectionMap starts a projection over schema.table aliased as alias.
func NewProjectionMap(schema, table, alias string) *ProjectionMap {
	return &ProjectionMap{
		schema:  schema,
		table:   table,
		alias:   alias,
		columns: make(map[string]string),
		folded:  make(map[string]string),
	}
}

// Project maps column of the base table to viewName.
func (p *ProjectionMap) Project(column, viewName string) *ProjectionMap {
	return p.ProjectAs(p.alias, column, viewName)
}

// ProjectAs maps column of a joined table, identified by alias, to viewName.
func (p *ProjectionMap) ProjectAs(alias, column, viewName string) *ProjectionMap {
	qualified := alias + "." + column
	p.columns[viewName] = qualified
	p.folded[strings.ToLower(viewName)] = qualified
	p.folded[strings.ToLower(column)] = qualified
	p.columnList = append(p.columnList, qualified)
	return p
}

// Join appends a join clause verbatim, e.g.
// "JOIN public.client_accounts ca ON ca.id = m.client_account_id".
func (p *ProjectionMap) Join(clause string) *ProjectionMap {
	p.joins = append(p.joins, clause)
	return p
}

func (p *ProjectionMap) Alias() string { return p.alias }

// Table returns "schema.table alias".
func (p *ProjectionMap) Table() string {
	return p.schema + "." + p.table + " " + p.alias
}

// From returns the table reference followed by its joins.
func (p *ProjectionMap) From() string {
	if len(p.joins) == 0 {
		return p.Table()
	}
	return p.Table() + " " + strings.Join(p.joins, " ")
}

// Column returns the qualified column for viewName. Unmapped names pass
// through unchanged, so raw expressions remain available to trusted code.
func (p *ProjectionMap) Column(viewName string) string {
	if col, ok := p.columns[viewName]; ok {
		return col
	}
	return viewName
}

// Lookup resolves name against view names and column names without regard
// to case. Only mapped columns are returned.
func (p *ProjectionMap) Lookup(name string) (string, bool) {
	if col, ok := p.columns[name]; ok {
		return col, true
	}
	col, ok := p.folded[strings.ToLower(name)]
	return col, ok
}

// Columns returns the projected columns as a select list.
func (p *ProjectionMap) Columns() string {
	return strings.Join(p.columnList, ", ")
}

func (p *ProjectionMap) ColumnList() []string {
	return p.columnList
}
