package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type txBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PgxStore runs id-selecting statements on PostgreSQL through pgx. When the
// request context carries a connection (see SchemaMiddleware) the statement
// runs on it, otherwise on a pooled one.
type PgxStore struct {
	pool *pgxpool.Pool
}

func NewPgxStore(pool *pgxpool.Pool) *PgxStore {
	return &PgxStore{pool: pool}
}

func (s *PgxStore) beginner(ctx context.Context) txBeginner {
	if c := ConnFromContext(ctx); c != nil {
		return c
	}
	return s.pool
}

// QueryIDs runs query in a read-only transaction. A positive timeout is
// applied with SET LOCAL statement_timeout so it ends with the transaction.
func (s *PgxStore) QueryIDs(ctx context.Context, timeout time.Duration, query string, args ...interface{}) ([]int64, error) {
	tx, err := s.beginner(ctx).BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if timeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())); err != nil {
			return nil, fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		if schema := SchemaFromContext(ctx); schema != "" {
			return nil, fmt.Errorf("schema %s: %w", schema, err)
		}
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	return ids, tx.Commit(ctx)
}

// SQLStore runs id-selecting statements through database/sql via sqlx. The
// timeout becomes a context deadline.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) QueryIDs(ctx context.Context, timeout time.Duration, query string, args ...interface{}) ([]int64, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if s.db.DriverName() == DriverPostgres {
		args = pqArrays(args)
	}

	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, err
	}
	return ids, nil
}

// pqArrays wraps slice arguments so lib/pq sends them as PostgreSQL arrays.
func pqArrays(args []interface{}) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		if ids, ok := a.([]int64); ok {
			out[i] = pq.Array(ids)
			continue
		}
		out[i] = a
	}
	return out
}
