package database

import (
	"fmt"
	"strings"
)

// UpdateBuilder assembles a single-statement partial update. Optional
// columns are merged with COALESCE, so a nil pointer keeps the stored
// value instead of overwriting it with NULL. Parameters are numbered as
// assignments are added, which keeps the placeholder list aligned with the
// argument list for any number of columns.
type UpdateBuilder struct {
	table     string
	sets      []string
	args      []any
	where     string
	returning []string
}

func NewUpdate(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

// Coalesce adds "col = COALESCE($n, col)". value is typically a pointer
// from an optional request field; database/sql binds a nil pointer as NULL.
func (b *UpdateBuilder) Coalesce(column string, value any) *UpdateBuilder {
	b.args = append(b.args, value)
	b.sets = append(b.sets, fmt.Sprintf("%s = COALESCE($%d, %s)", column, len(b.args), column))
	return b
}

// SetExpr adds an assignment to a raw SQL expression, e.g.
// updated_at = CURRENT_TIMESTAMP. The expression carries no parameters.
func (b *UpdateBuilder) SetExpr(column, expr string) *UpdateBuilder {
	b.sets = append(b.sets, column+" = "+expr)
	return b
}

// Where restricts the update to rows where column equals value.
func (b *UpdateBuilder) Where(column string, value any) *UpdateBuilder {
	b.args = append(b.args, value)
	b.where = fmt.Sprintf("%s = $%d", column, len(b.args))
	return b
}

// Returning appends a RETURNING clause for fetch-after-write.
func (b *UpdateBuilder) Returning(columns ...string) *UpdateBuilder {
	b.returning = append(b.returning, columns...)
	return b
}

// Build renders the statement and its argument list.
func (b *UpdateBuilder) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(b.table)
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(b.sets, ", "))
	if b.where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(b.where)
	}
	if len(b.returning) > 0 {
		sb.WriteString(" RETURNING ")
		sb.WriteString(strings.Join(b.returning, ", "))
	}
	return sb.String(), b.args
}
