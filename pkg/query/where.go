package query

import (
	"reflect"
	"strconv"
	"strings"
)

// condition renders one WHERE term, binding its values through bind.
type condition func(bind func(any) string) string

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern wraps s for a substring ILIKE match with LIKE wildcards in
// s matched literally.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func (b *Builder) where(c condition) *Builder {
	b.conditions = append(b.conditions, c)
	return b
}

// WhereEquals adds col = value. Nil values are skipped.
func (b *Builder) WhereEquals(field string, value any) *Builder {
	if isNil(value) {
		return b
	}
	col := b.projection.Column(field)
	return b.where(func(bind func(any) string) string {
		return col + " = " + bind(value)
	})
}

// WhereCompare adds col op value for op in =, <>, <, <=, >, >=. Nil values
// and other operators are skipped.
func (b *Builder) WhereCompare(field, op string, value any) *Builder {
	if isNil(value) {
		return b
	}
	switch op {
	case "=", "<>", "<", "<=", ">", ">=":
	default:
		return b
	}
	col := b.projection.Column(field)
	return b.where(func(bind func(any) string) string {
		return col + " " + op + " " + bind(value)
	})
}

// WhereContains adds a case-insensitive substring match. Nil or empty values
// are skipped.
func (b *Builder) WhereContains(field string, value *string) *Builder {
	if value == nil || *value == "" {
		return b
	}
	col := b.projection.Column(field)
	pattern := containsPattern(*value)
	return b.where(func(bind func(any) string) string {
		return col + " ILIKE " + bind(pattern)
	})
}

// WhereSearch matches search as a substring of any of fields.
func (b *Builder) WhereSearch(search *string, fields ...string) *Builder {
	if search == nil || *search == "" || len(fields) == 0 {
		return b
	}
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = b.projection.Column(f)
	}
	pattern := containsPattern(*search)
	return b.where(func(bind func(any) string) string {
		terms := make([]string, len(cols))
		for i, col := range cols {
			terms[i] = col + " ILIKE " + bind(pattern)
		}
		return "(" + strings.Join(terms, " OR ") + ")"
	})
}

// WhereIn adds col IN (...). An empty list is skipped.
func (b *Builder) WhereIn(field string, values []any) *Builder {
	if len(values) == 0 {
		return b
	}
	col := b.projection.Column(field)
	return b.where(func(bind func(any) string) string {
		marks := make([]string, len(values))
		for i, v := range values {
			marks[i] = bind(v)
		}
		return col + " IN (" + strings.Join(marks, ", ") + ")"
	})
}

// WhereNullable matches value exactly, or IS NULL when value is nil.
func (b *Builder) WhereNullable(field string, value any) *Builder {
	if isNil(value) {
		return b.WhereNull(field)
	}
	return b.WhereEquals(field, value)
}

// WhereNull adds col IS NULL.
func (b *Builder) WhereNull(field string) *Builder {
	col := b.projection.Column(field)
	return b.where(func(func(any) string) string { return col + " IS NULL" })
}

// WhereNotNull adds col IS NOT NULL.
func (b *Builder) WhereNotNull(field string) *Builder {
	col := b.projection.Column(field)
	return b.where(func(func(any) string) string { return col + " IS NOT NULL" })
}

// render joins the conditions into a WHERE clause whose placeholders start
// at $first.
func (b *Builder) render(first int) (string, []any) {
	if len(b.conditions) == 0 {
		return "", nil
	}

	var args []any
	bind := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(first+len(args)-1)
	}

	terms := make([]string, len(b.conditions))
	for i, c := range b.conditions {
		terms[i] = c(bind)
	}
	return " WHERE " + strings.Join(terms, " AND "), args
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}
