package integration

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/omopfhir/internal/domain/encounter"
	"github.com/ehr/omopfhir/internal/domain/patient"
	"github.com/ehr/omopfhir/internal/platform/db"
	"github.com/ehr/omopfhir/internal/platform/fhir"
	"github.com/ehr/omopfhir/internal/platform/search"
)

const seed = `
INSERT INTO person (person_id, gender_concept_id, year_of_birth, birth_datetime, gender_source_value, person_source_value, care_site_id) VALUES
    (1, 8532, 1990, '1990-03-15 08:00:00', 'F', 'MRN-1', 7),
    (2, 8507, 2001, '2001-07-04 00:00:00', 'M', 'MRN-2', NULL),
    (3, 8532, 1975, '1975-11-30 00:00:00', 'F', NULL, 7),
    (4, 0, 1960, NULL, NULL, 'MRN-4', NULL);

INSERT INTO f_person (person_id, family_name, given1_name, deleted_at) VALUES
    (1, 'Smith', 'Jane', NULL),
    (2, 'Smithers', 'Tom', NULL),
    (3, 'Jones', 'Ann', '2024-01-01 00:00:00');

INSERT INTO death (person_id, death_date) VALUES (4, '2020-02-02');

INSERT INTO visit_occurrence (visit_occurrence_id, person_id, visit_concept_id, visit_start_datetime, visit_end_datetime, visit_source_value, care_site_id) VALUES
    (10, 1, 9201, '2021-01-01 09:00:00', '2021-01-03 12:00:00', 'IMP', 7),
    (11, 2, 9202, '2021-06-01 10:00:00', NULL, 'AMB', NULL),
    (12, 1, 9202, '2022-01-01 00:00:00', NULL, 'AMB', NULL);
`

type searchCase struct {
	name     string
	resource string
	query    string
	want     []int64
}

var searchCases = []searchCase{
	{"all patients", "Patient", "", []int64{1, 2, 3, 4}},
	{"family prefix", "Patient", "family=smi", []int64{1, 2}},
	{"family exact", "Patient", "family:exact=Smith", []int64{1}},
	{"gender or", "Patient", "gender=F,M", []int64{1, 2, 3}},
	{"gender and birthdate", "Patient", "gender=F&birthdate=ge1980", []int64{1}},
	{"birthdate year", "Patient", "birthdate=2001", []int64{2}},
	{"gender missing", "Patient", "gender:missing=true", []int64{4}},
	{"identifier", "Patient", "identifier=MRN-4", []int64{4}},
	{"death date", "Patient", "death-date=2020", []int64{4}},
	{"organization", "Patient", "organization=Organization/7", []int64{1, 3}},
	{"id and family", "Patient", "_id=1,2,3&family=smi", []int64{1, 2}},
	{"short circuit", "Patient", "family=zzz&gender=F", []int64{}},
	{"undeclared ignored", "Patient", "shoe-size=12&gender=M", []int64{2}},
	{"encounters of patient", "Encounter", "patient=1", []int64{10, 12}},
	{"encounter class", "Encounter", "patient=Patient/1&class=AMB", []int64{12}},
	{"encounter date range", "Encounter", "date=ge2021-05-01&date=lt2022-01-01", []int64{11}},
	{"encounter open", "Encounter", "end-date:missing=true", []int64{11, 12}},
}

func runCases(t *testing.T, ctx context.Context, compiler *search.Compiler) {
	t.Helper()
	reg := search.DefaultRegistry()
	for _, tc := range searchCases {
		t.Run(tc.name, func(t *testing.T) {
			def, ok := reg.Resource(tc.resource)
			require.True(t, ok)
			values, err := url.ParseQuery(tc.query)
			require.NoError(t, err)
			params, err := search.ParseQuery(def, values)
			require.NoError(t, err)

			ids, err := compiler.Search(ctx, def, params)
			require.NoError(t, err)
			assert.Equal(t, tc.want, nonNil(ids.Sorted()))
		})
	}
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func TestSearch_PgxStore(t *testing.T) {
	ctx := context.Background()
	schema := uniqueSchema("cdm_pgx")
	createSchema(t, ctx, schema, seed)

	compiler := search.NewCompiler(db.NewPgxStore(globalDB.Pool), search.Postgres{}, search.Options{Logger: zerolog.Nop()})
	err := withSchemaConn(ctx, schema, func(ctx context.Context) error {
		runCases(t, ctx, compiler)
		return nil
	})
	require.NoError(t, err)
}

func TestSearch_PgxPoolSchema(t *testing.T) {
	ctx := context.Background()
	schema := uniqueSchema("cdm_pool")
	createSchema(t, ctx, schema, seed)

	pool, err := db.NewPool(ctx, globalDB.ConnStr, schema, 4, 1)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	// No request-scoped connection: the pool itself resolves the schema, as
	// for the search command.
	compiler := search.NewCompiler(db.NewPgxStore(pool), search.Postgres{}, search.Options{Logger: zerolog.Nop()})
	runCases(t, ctx, compiler)
}

func TestSearch_SQLStoreLibPQ(t *testing.T) {
	ctx := context.Background()
	schema := uniqueSchema("cdm_pq")
	createSchema(t, ctx, schema, seed)

	conn, err := db.Open(ctx, db.DriverPostgres, globalDB.ConnStr+"&search_path="+schema, 4)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	compiler := search.NewCompiler(db.NewSQLStore(conn), search.Postgres{}, search.Options{Logger: zerolog.Nop()})
	runCases(t, ctx, compiler)
}

func TestSearch_UnsupportedQuery(t *testing.T) {
	ctx := context.Background()
	schema := uniqueSchema("cdm_err")
	createSchema(t, ctx, schema, "")

	compiler := search.NewCompiler(db.NewPgxStore(globalDB.Pool), search.Postgres{}, search.Options{Logger: zerolog.Nop()})
	def := search.PatientDef()
	params, err := search.ParseQuery(def, url.Values{"_id": {"1", "2"}})
	require.NoError(t, err)

	err = withSchemaConn(ctx, schema, func(ctx context.Context) error {
		_, err := compiler.Search(ctx, def, params)
		return err
	})
	assert.True(t, errors.Is(err, fhir.ErrUnsupportedQuery), "got %v", err)
}

func TestResourceDAO_Pgx(t *testing.T) {
	ctx := context.Background()
	schema := uniqueSchema("cdm_dao")
	createSchema(t, ctx, schema, seed)

	compiler := search.NewCompiler(db.NewPgxStore(globalDB.Pool), search.Postgres{}, search.Options{Logger: zerolog.Nop()})
	patients := patient.NewService(patient.NewPersonRepoPG(globalDB.Pool), compiler, search.PatientDef(), zerolog.Nop())
	visits := encounter.NewService(encounter.NewVisitRepoPG(globalDB.Pool), compiler, search.EncounterDef(), zerolog.Nop())

	err := withSchemaConn(ctx, schema, func(ctx context.Context) error {
		p, err := patients.Read(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, "Smith", *p.FamilyName)
		assert.Equal(t, "female", p.ToFHIR()["gender"])

		_, err = patients.Read(ctx, "3")
		assert.True(t, errors.Is(err, fhir.ErrGone), "got %v", err)

		_, err = patients.Read(ctx, "99")
		assert.True(t, errors.Is(err, fhir.ErrNotFound), "got %v", err)

		params, err := search.ParseQuery(search.PatientDef(), url.Values{"gender": {"F"}})
		require.NoError(t, err)
		items, total, err := patients.SearchResources(ctx, params, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, items, 1)
		assert.Equal(t, int64(1), items[0].PersonID)

		v, err := visits.Read(ctx, "10")
		require.NoError(t, err)
		assert.Equal(t, "finished", v.ToFHIR()["status"])
		return nil
	})
	require.NoError(t, err)
}
