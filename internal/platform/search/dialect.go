package search

import (
	"fmt"
	"strconv"
	"time"
)

// Dialect supplies the SQL fragments that differ between stores. The
// predicate builders only ever compose these fragments, so supporting a new
// store means adding one Dialect.
type Dialect interface {
	Name() string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// DateGreaterOrEqual and DateLessOrEqual compare a date column against a
	// bound argument produced by DateArg.
	DateGreaterOrEqual(column, placeholder string) string
	DateLessOrEqual(column, placeholder string) string
	DateArg(t time.Time) interface{}
	// InIDs restricts column to ids, binding whatever arguments it needs on q.
	InIDs(q *Query, column string, ids []int64) string
	// ILike is a case-insensitive LIKE.
	ILike(column, placeholder string) string
}

// Postgres targets PostgreSQL through pgx or lib/pq.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Postgres) DateGreaterOrEqual(column, placeholder string) string {
	return fmt.Sprintf("%s >= %s", column, placeholder)
}

func (Postgres) DateLessOrEqual(column, placeholder string) string {
	return fmt.Sprintf("%s <= %s", column, placeholder)
}

func (Postgres) DateArg(t time.Time) interface{} { return t.UTC() }

func (Postgres) InIDs(q *Query, column string, ids []int64) string {
	return fmt.Sprintf("%s = ANY(%s)", column, q.Arg(ids))
}

func (Postgres) ILike(column, placeholder string) string {
	return fmt.Sprintf("%s ILIKE %s", column, placeholder)
}

// SQLite targets SQLite through mattn/go-sqlite3. Dates are stored as ISO-8601
// text and compared through julianday so fractional seconds survive.
type SQLite struct{}

const sqliteTimeLayout = "2006-01-02 15:04:05.000"

func (SQLite) Name() string { return "sqlite3" }

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) DateGreaterOrEqual(column, placeholder string) string {
	return fmt.Sprintf("julianday(%s) >= julianday(%s)", column, placeholder)
}

func (SQLite) DateLessOrEqual(column, placeholder string) string {
	return fmt.Sprintf("julianday(%s) <= julianday(%s)", column, placeholder)
}

func (SQLite) DateArg(t time.Time) interface{} { return t.UTC().Format(sqliteTimeLayout) }

// InIDs binds the whole list as one JSON array argument so a large running
// set never hits SQLite's host parameter limit.
func (SQLite) InIDs(q *Query, column string, ids []int64) string {
	return fmt.Sprintf("%s IN (SELECT value FROM json_each(%s))", column, q.Arg(jsonIDs(ids)))
}

func jsonIDs(ids []int64) string {
	buf := make([]byte, 0, len(ids)*8+2)
	buf = append(buf, '[')
	for i, id := range ids {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, id, 10)
	}
	return string(append(buf, ']'))
}

func (SQLite) ILike(column, placeholder string) string {
	return fmt.Sprintf("%s LIKE %s", column, placeholder)
}

// DialectFor returns the dialect matching a database/sql or pgx driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return Postgres{}, nil
	case "sqlite3", "sqlite":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("no search dialect for driver %q", driver)
	}
}
