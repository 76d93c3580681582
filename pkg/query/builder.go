package query

import (
	"fmt"
	"strings"
)

// Builder assembles parameterized SELECTs over a ProjectionMap. Filter
// fields are trusted code; sort fields may come from clients and are
// dropped unless the projection maps them.
type Builder struct {
	projection        *ProjectionMap
	conditions        []condition
	orderByFields     []SortField
	defaultSortFields []SortField
}

// NewBuilder returns a Builder that sorts by defaultSort unless
// OrderByFields supplies an order.
func NewBuilder(projection *ProjectionMap, defaultSort ...SortField) *Builder {
	return &Builder{
		projection:        projection,
		defaultSortFields: defaultSort,
	}
}

// OrderByFields replaces the default sort.
func (b *Builder) OrderByFields(fields []SortField) *Builder {
	b.orderByFields = fields
	return b
}

func (b *Builder) selectFrom() string {
	return "SELECT " + b.projection.Columns() + " FROM " + b.projection.From()
}

// Build returns the filtered, ordered SELECT.
func (b *Builder) Build() (string, []any) {
	where, args := b.render(1)
	return b.selectFrom() + where + b.orderBy(), args
}

// BuildCount returns COUNT(*) over the filtered rows.
func (b *Builder) BuildCount() (string, []any) {
	where, args := b.render(1)
	return "SELECT COUNT(*) FROM " + b.projection.From() + where, args
}

// BuildPage returns one page of the ordered SELECT. page is 1-based.
func (b *Builder) BuildPage(page, pageSize int) (string, []any) {
	sql, args := b.Build()
	offset := max(page-1, 0) * pageSize
	return fmt.Sprintf("%s LIMIT %d OFFSET %d", sql, pageSize, offset), args
}

// BuildSingle selects the row whose idField equals id. Existing conditions
// are ANDed after the id match so scope filters still apply.
func (b *Builder) BuildSingle(idField string, id any) (string, []any) {
	where, args := b.render(2)
	where = strings.Replace(where, " WHERE ", " AND ", 1)
	sql := fmt.Sprintf("%s WHERE %s = $1%s", b.selectFrom(), b.projection.Column(idField), where)
	return sql, append([]any{id}, args...)
}

// BuildSingleOrNull returns at most one filtered row, unordered.
func (b *Builder) BuildSingleOrNull() (string, []any) {
	where, args := b.render(1)
	return b.selectFrom() + where + " LIMIT 1", args
}
