package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/omopfhir/internal/config"
	"github.com/ehr/omopfhir/internal/platform/db"
	"github.com/ehr/omopfhir/internal/platform/search"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "omopfhir-server",
		Short: "FHIR search over an OMOP CDM database",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(searchCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the FHIR API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	reg, err := loadRegistry(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load search parameters")
	}

	ctx := context.Background()
	b, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer b.close()
	logger.Info().Str("driver", cfg.DBDriver).Msg("connected to database")

	e, err := newServer(cfg, b, reg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir := migrationsDir(cmd, cfg)

			ctx := context.Background()
			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.close()

			count, err := migrateUp(ctx, b, cfg.DBSchema, dir)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir := migrationsDir(cmd, cfg)

			ctx := context.Background()
			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.close()

			statuses, err := migrationStatus(ctx, b, cfg.DBSchema, dir)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrationsDir(cmd *cobra.Command, cfg *config.Config) string {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir
	}
	return cfg.MigrationsDir
}

// migrateUp applies pending migrations. On pgx the CDM schema is created
// first; database/sql drivers migrate whatever schema the DSN selects.
func migrateUp(ctx context.Context, b *backend, schema, dir string) (int, error) {
	if b.pool != nil {
		if err := db.CreateSchema(ctx, b.pool, schema, ""); err != nil {
			return 0, err
		}
		return db.NewMigrator(b.pool, dir).Up(ctx, schema)
	}
	return db.NewSQLMigrator(b.sqlDB, dir).Up(ctx)
}

func migrationStatus(ctx context.Context, b *backend, schema, dir string) ([]db.MigrationStatus, error) {
	if b.pool != nil {
		return db.NewMigrator(b.pool, dir).Status(ctx, schema)
	}
	return db.NewSQLMigrator(b.sqlDB, dir).Status(ctx)
}

func printStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <Resource> <query>",
		Short: "Print the ids matching a FHIR search query",
		Example: `  omopfhir-server search Patient 'gender=female&birthdate=ge1990'
  omopfhir-server search Encounter 'patient=12&date=2021'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, err := loadRegistry(cfg)
			if err != nil {
				return err
			}

			ctx := context.Background()
			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.close()

			compiler, err := newCompiler(cfg, b, newLogger(cfg))
			if err != nil {
				return err
			}
			ids, err := runSearch(ctx, compiler, reg, args[0], args[1])
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

// runSearch evaluates a raw query string for one resource type and returns
// the matching ids in ascending order.
func runSearch(ctx context.Context, s *search.Compiler, reg *search.Registry, resource, query string) ([]int64, error) {
	def, err := resourceDef(reg, resource)
	if err != nil {
		return nil, err
	}
	values, err := url.ParseQuery(strings.TrimPrefix(query, "?"))
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	params, err := search.ParseQuery(def, values)
	if err != nil {
		return nil, err
	}
	ids, err := s.Search(ctx, def, params)
	if err != nil {
		return nil, err
	}
	return ids.Sorted(), nil
}
