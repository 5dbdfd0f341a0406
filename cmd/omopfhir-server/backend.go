package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/omopfhir/internal/config"
	"github.com/ehr/omopfhir/internal/domain/encounter"
	"github.com/ehr/omopfhir/internal/domain/patient"
	"github.com/ehr/omopfhir/internal/platform/db"
	"github.com/ehr/omopfhir/internal/platform/search"
)

// backend bundles everything that depends on DB_DRIVER: the id store behind
// the search compiler, the entity repositories and the health check.
type backend struct {
	store     search.Store
	dialect   search.Dialect
	persons   patient.PersonRepository
	visits    encounter.VisitRepository
	checker   db.Checker
	requestMW []echo.MiddlewareFunc
	close     func()

	pool  *pgxpool.Pool
	sqlDB *sqlx.DB
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	dialect, err := search.DialectFor(cfg.DBDriver)
	if err != nil {
		return nil, err
	}

	if cfg.DBDriver == db.DriverPgx {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return newPgxBackend(pool, cfg.DBSchema, dialect), nil
	}

	conn, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, int(cfg.DBMaxConns))
	if err != nil {
		return nil, err
	}
	return newSQLBackend(conn, dialect), nil
}

func newPgxBackend(pool *pgxpool.Pool, schema string, dialect search.Dialect) *backend {
	return &backend{
		store:     db.NewPgxStore(pool),
		dialect:   dialect,
		persons:   patient.NewPersonRepoPG(pool),
		visits:    encounter.NewVisitRepoPG(pool),
		checker:   db.PgxChecker(pool),
		requestMW: []echo.MiddlewareFunc{db.SchemaMiddleware(pool, schema)},
		close:     pool.Close,
		pool:      pool,
	}
}

func newSQLBackend(conn *sqlx.DB, dialect search.Dialect) *backend {
	return &backend{
		store:   db.NewSQLStore(conn),
		dialect: dialect,
		persons: patient.NewPersonRepoSQL(conn),
		visits:  encounter.NewVisitRepoSQL(conn),
		checker: db.SQLChecker(conn),
		close:   func() { conn.Close() },
		sqlDB:   conn,
	}
}

// newCompiler builds the search compiler from the configured policies.
func newCompiler(cfg *config.Config, b *backend, logger zerolog.Logger) (*search.Compiler, error) {
	policy, err := search.ParseEmptySearchPolicy(cfg.EmptySearchPolicy)
	if err != nil {
		return nil, err
	}
	return search.NewCompiler(b.store, b.dialect, search.Options{
		StatementTimeout: cfg.StatementTimeout,
		EmptySearch:      policy,
		Logger:           logger,
	}), nil
}

// loadRegistry returns the built-in mappings overlaid with SEARCH_PARAMS_FILE.
func loadRegistry(cfg *config.Config) (*search.Registry, error) {
	reg := search.DefaultRegistry()
	if cfg.SearchParamsFile != "" {
		if err := reg.LoadRegistryFile(cfg.SearchParamsFile); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func resourceDef(reg *search.Registry, name string) (*search.ResourceDef, error) {
	def, ok := reg.Resource(name)
	if !ok {
		return nil, fmt.Errorf("resource %s is not registered", name)
	}
	return def, nil
}
