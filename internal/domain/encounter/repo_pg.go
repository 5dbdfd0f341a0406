package encounter

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/omopfhir/internal/platform/db"
	"github.com/ehr/omopfhir/internal/platform/fhir"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type visitRepoPG struct{ pool *pgxpool.Pool }

func NewVisitRepoPG(pool *pgxpool.Pool) VisitRepository {
	return &visitRepoPG{pool: pool}
}

func (r *visitRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *visitRepoPG) scanRow(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.VisitOccurrenceID, &v.PersonID, &v.VisitConceptID, &v.VisitStartDate, &v.VisitStartDatetime,
		&v.VisitEndDate, &v.VisitEndDatetime, &v.ProviderID, &v.CareSiteID, &v.VisitSourceValue,
		&v.AdmittingSourceValue, &v.DischargeToSourceValue, &v.PrecedingVisitID)
	return &v, err
}

func (r *visitRepoPG) GetByID(ctx context.Context, id int64) (*Visit, error) {
	v, err := r.scanRow(r.conn(ctx).QueryRow(ctx, visitSelect+` WHERE visit_occurrence_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fhir.NotFoundError("Encounter", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *visitRepoPG) ListByIDs(ctx context.Context, ids []int64) ([]*Visit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, visitSelect+` WHERE visit_occurrence_id = ANY($1) ORDER BY visit_occurrence_id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Visit
	for rows.Next() {
		v, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}
