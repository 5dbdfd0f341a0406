package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	SchemaKey contextKey = "cdm_schema"
	DBConnKey contextKey = "db_conn"
)

var schemaPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidSchema reports whether name is safe to interpolate into search_path.
func ValidSchema(name string) bool {
	return schemaPattern.MatchString(name)
}

// SchemaMiddleware acquires one connection per request, points its
// search_path at the OMOP CDM schema and stores it in the request context so
// every search statement and entity read of the request shares it.
func SchemaMiddleware(pool *pgxpool.Pool, schema string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !ValidSchema(schema) {
				return echo.NewHTTPError(http.StatusInternalServerError, "invalid cdm schema")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			_, err = conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", schema))
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "schema resolution failed")
			}

			ctx = context.WithValue(ctx, SchemaKey, schema)
			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("db", conn)

			return next(c)
		}
	}
}

// ConnFromContext retrieves the request-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// SchemaFromContext retrieves the CDM schema from context.
func SchemaFromContext(ctx context.Context) string {
	s, _ := ctx.Value(SchemaKey).(string)
	return s
}

// CreateSchema creates the CDM schema if needed and runs all migrations
// against it. Migrations are skipped when migrationsDir is empty.
func CreateSchema(ctx context.Context, pool *pgxpool.Pool, schema string, migrationsDir string) error {
	if !ValidSchema(schema) {
		return fmt.Errorf("invalid schema name: %s", schema)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	if err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrationsDir != "" {
		migrator := NewMigrator(pool, migrationsDir)
		if _, err := migrator.Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}

	return nil
}
