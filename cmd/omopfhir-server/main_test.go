package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/omopfhir/internal/config"
	"github.com/ehr/omopfhir/internal/platform/db"
	"github.com/ehr/omopfhir/internal/platform/fhir"
	"github.com/ehr/omopfhir/internal/platform/search"
)

const fixtures = `
INSERT INTO person (person_id, gender_concept_id, year_of_birth, birth_datetime) VALUES
    (1, 8532, 1990, '1990-03-15 08:00:00'),
    (2, 8507, 2001, '2001-07-04 00:00:00');

INSERT INTO f_person (person_id, family_name, given1_name) VALUES
    (1, 'Smith', 'Jane'),
    (2, 'Jones', 'Tom');

INSERT INTO visit_occurrence (visit_occurrence_id, person_id, visit_concept_id, visit_start_datetime, visit_source_value) VALUES
    (10, 1, 9202, '2021-06-01 10:00:00', 'AMB');
`

func testConfig() *config.Config {
	return &config.Config{
		Port:              "8000",
		Env:               "development",
		LogLevel:          "info",
		DatabaseURL:       ":memory:",
		DBDriver:          db.DriverSQLite,
		DBSchema:          "public",
		MigrationsDir:     filepath.Join("..", "..", "migrations"),
		EmptySearchPolicy: string(search.MatchAll),
	}
}

func openTestBackend(t *testing.T, cfg *config.Config) *backend {
	t.Helper()
	ctx := context.Background()

	b, err := openBackend(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(b.close)

	n, err := migrateUp(ctx, b, cfg.DBSchema, cfg.MigrationsDir)
	require.NoError(t, err)
	require.Positive(t, n)

	_, err = b.sqlDB.ExecContext(ctx, fixtures)
	require.NoError(t, err)
	return b
}

func get(t *testing.T, h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_SQLiteRoutes(t *testing.T) {
	cfg := testConfig()
	b := openTestBackend(t, cfg)

	e, err := newServer(cfg, b, search.DefaultRegistry(), zerolog.Nop())
	require.NoError(t, err)

	rec := get(t, e, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = get(t, e, "/fhir/metadata", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cs fhir.CapabilityStatement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cs))
	require.Len(t, cs.Rest, 1)
	var types []string
	for _, r := range cs.Rest[0].Resource {
		types = append(types, r.Type)
	}
	assert.ElementsMatch(t, []string{"Patient", "Encounter"}, types)

	rec = get(t, e, "/fhir/Patient?family=smi", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var bundle fhir.Bundle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	require.NotNil(t, bundle.Total)
	assert.Equal(t, 1, *bundle.Total)
	require.Len(t, bundle.Entry, 1)
	assert.Equal(t, "Patient/1", bundle.Entry[0].FullURL)

	rec = get(t, e, "/fhir/Patient/2", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, e, "/fhir/Encounter?patient=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bundle = fhir.Bundle{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundle))
	assert.Equal(t, 1, *bundle.Total)

	rec = get(t, e, "/fhir/Patient?_id=1&_id=2", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_RequiresBearerWhenKeyConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.AuthSigningKey = "server-test-key"
	b := openTestBackend(t, cfg)

	e, err := newServer(cfg, b, search.DefaultRegistry(), zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, get(t, e, "/fhir/Patient", nil).Code)
	assert.Equal(t, http.StatusOK, get(t, e, "/fhir/metadata", nil).Code)
	assert.Equal(t, http.StatusOK, get(t, e, "/health", nil).Code)
}

func TestRunSearch(t *testing.T) {
	cfg := testConfig()
	b := openTestBackend(t, cfg)
	compiler, err := newCompiler(cfg, b, zerolog.Nop())
	require.NoError(t, err)
	reg := search.DefaultRegistry()
	ctx := context.Background()

	ids, err := runSearch(ctx, compiler, reg, "Patient", "?birthdate=ge2000")
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	ids, err = runSearch(ctx, compiler, reg, "Patient", "")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	_, err = runSearch(ctx, compiler, reg, "Medication", "code=1")
	assert.Error(t, err)
}

func TestMigrationStatus_SQLite(t *testing.T) {
	cfg := testConfig()
	b := openTestBackend(t, cfg)

	statuses, err := migrationStatus(context.Background(), b, cfg.DBSchema, cfg.MigrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, s := range statuses {
		assert.True(t, s.Applied, "migration %d should be applied", s.Version)
	}
}

func TestLoadRegistry_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
resources:
  - name: Patient
    params:
      - name: mrn
        type: token
        column: person_source_value
`), 0o644))
	cfg := testConfig()
	cfg.SearchParamsFile = path

	reg, err := loadRegistry(cfg)
	require.NoError(t, err)
	def, ok := reg.Resource("Patient")
	require.True(t, ok)
	_, ok = def.SearchParam("mrn")
	assert.True(t, ok)
	_, ok = def.SearchParam("gender")
	assert.True(t, ok)

	cfg.SearchParamsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = loadRegistry(cfg)
	assert.Error(t, err)
}
