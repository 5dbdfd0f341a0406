package search

import (
	"fmt"
	"strings"
)

const (
	rootAlias = "r"
	joinAlias = "j"
)

// Query builds one "SELECT id FROM table WHERE ..." statement. Clauses are
// ANDed; arguments are bound positionally in the order they are added.
type Query struct {
	dialect  Dialect
	table    string
	idColumn string
	where    []string
	args     []interface{}
}

// NewQuery starts a query selecting the id column of the resource's table.
func NewQuery(d Dialect, def *ResourceDef) *Query {
	return &Query{dialect: d, table: def.Table, idColumn: def.IDColumn}
}

// Arg binds a value and returns its placeholder.
func (q *Query) Arg(v interface{}) string {
	q.args = append(q.args, v)
	return q.dialect.Placeholder(len(q.args))
}

// Where appends a raw clause fragment (without leading "AND").
func (q *Query) Where(clause string) {
	q.where = append(q.where, clause)
}

// Restrict limits the result to ids. An empty set adds nothing: it stands for
// "not constrained yet", never for "nothing allowed".
func (q *Query) Restrict(ids IDSet) {
	if len(ids) == 0 {
		return
	}
	q.Where(q.dialect.InIDs(q, q.IDRef(), ids.Sorted()))
}

// IDRef is the qualified id column of the root table.
func (q *Query) IDRef() string { return rootAlias + "." + q.idColumn }

// Column qualifies a parameter's column with the alias it is read through.
func (q *Query) Column(def ParamDef, column string) string {
	if def.Join != nil {
		return joinAlias + "." + column
	}
	return rootAlias + "." + column
}

// Scoped wraps a predicate over a parameter's columns so it can be ANDed onto
// the root query. Joined columns are tested inside an EXISTS sub-select.
func (q *Query) Scoped(def ParamDef, predicate string) string {
	if def.Join == nil {
		return "(" + predicate + ")"
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s WHERE %s.%s = %s AND (%s))",
		def.Join.Table, joinAlias, joinAlias, def.Join.ForeignKey, q.IDRef(), predicate)
}

// NotScoped is the anti-join counterpart of Scoped.
func (q *Query) NotScoped(def ParamDef, predicate string) string {
	if def.Join == nil {
		return "NOT (" + predicate + ")"
	}
	return "NOT " + q.Scoped(def, predicate)
}

// SQL renders the statement.
func (q *Query) SQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s %s", q.IDRef(), q.table, rootAlias)
	if len(q.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.where, " AND "))
	}
	return b.String()
}

// Args returns the bound arguments in placeholder order.
func (q *Query) Args() []interface{} {
	return q.args
}
