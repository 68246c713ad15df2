package criteria

import (
	"fmt"
	"strings"
)

// Order is one ORDER BY term.
type Order struct {
	Expression Expression
	Descending bool
}

// Query is the statement a specification contributes to. Specifications may
// toggle Distinct or add orderings; the WHERE clause comes from the predicate
// they return.
type Query struct {
	root     *Root
	distinct bool
	orders   []Order
}

// NewQuery returns a query selecting from root.
func NewQuery(root *Root) *Query {
	return &Query{root: root}
}

func (q *Query) Root() *Root { return q.root }

func (q *Query) Distinct(distinct bool) *Query {
	q.distinct = distinct
	return q
}

func (q *Query) IsDistinct() bool { return q.distinct }

// OrderBy appends orderings.
func (q *Query) OrderBy(orders ...Order) *Query {
	q.orders = append(q.orders, orders...)
	return q
}

func (q *Query) Orders() []Order {
	out := make([]Order, len(q.orders))
	copy(out, q.orders)
	return out
}

// From renders "table alias".
func (q *Query) From() string {
	mapping := q.root.Mapping()
	if q.root.Alias() == "" {
		return mapping.Table
	}
	return mapping.Table + " " + q.root.Alias()
}

// Select renders a SELECT statement for columns, applying where when non-nil.
// Orderings are rendered with NULLS LAST; fallback is used when none were added.
func (q *Query) Select(columns []string, where Predicate, fallback string) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if q.distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(q.From())
	if where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(where.SQL())
	}

	orderings := make([]string, 0, len(q.orders))
	for _, order := range q.orders {
		direction := "ASC"
		if order.Descending {
			direction = "DESC"
		}
		orderings = append(orderings, fmt.Sprintf("%s %s NULLS LAST", order.Expression.SQL(), direction))
	}
	switch {
	case len(orderings) > 0:
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(orderings, ", "))
	case fallback != "":
		sb.WriteString(" ORDER BY ")
		sb.WriteString(fallback)
	}
	return sb.String()
}

// Count renders a COUNT(*) statement applying where when non-nil.
func (q *Query) Count(where Predicate) string {
	sql := "SELECT COUNT(*) FROM " + q.From()
	if q.distinct {
		sql = "SELECT COUNT(DISTINCT " + q.root.qualify("id") + ") FROM " + q.From()
	}
	if where != nil {
		sql += " WHERE " + where.SQL()
	}
	return sql
}
