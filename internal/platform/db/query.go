package db

import (
	"fmt"
	"strings"
)

// Conditions accumulates WHERE clauses with positional arguments.
type Conditions struct {
	clauses []string
	args    []any
}

// Add appends clause, replacing each "?" with the next positional placeholder.
func (c *Conditions) Add(clause string, args ...any) {
	for _, arg := range args {
		c.args = append(c.args, arg)
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", len(c.args)), 1)
	}
	c.clauses = append(c.clauses, clause)
}

// Where renders the clause list, or an empty string when nothing was added.
func (c *Conditions) Where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(c.clauses, " AND ")
}

// Args returns the accumulated arguments.
func (c *Conditions) Args() []any {
	return c.args
}

// Next returns the placeholder for an argument appended after the conditions,
// along with the extended argument list.
func (c *Conditions) Next(args ...any) ([]string, []any) {
	all := append(append([]any(nil), c.args...), args...)
	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", len(c.args)+i+1)
	}
	return placeholders, all
}

// Assignments accumulates SET clauses for a dynamic UPDATE.
type Assignments struct {
	sets []string
	args []any
}

// Set records column = value.
func (a *Assignments) Set(column string, value any) {
	a.args = append(a.args, value)
	a.sets = append(a.sets, fmt.Sprintf("%s = $%d", column, len(a.args)))
}

// Empty reports whether no columns were set.
func (a *Assignments) Empty() bool {
	return len(a.sets) == 0
}

// Update renders "UPDATE table SET ..., updated_at = NOW() WHERE id = $n AND deleted_at IS NULL".
func (a *Assignments) Update(table string, id int64) (string, []any) {
	args := append(append([]any(nil), a.args...), id)
	sets := append(append([]string(nil), a.sets...), "updated_at = NOW()")
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d AND deleted_at IS NULL", table, strings.Join(sets, ", "), len(args)), args
}
