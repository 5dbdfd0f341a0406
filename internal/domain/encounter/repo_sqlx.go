package encounter

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/ehr/omopfhir/internal/platform/fhir"
)

type visitRepoSQL struct{ db *sqlx.DB }

func NewVisitRepoSQL(db *sqlx.DB) VisitRepository {
	return &visitRepoSQL{db: db}
}

func (r *visitRepoSQL) GetByID(ctx context.Context, id int64) (*Visit, error) {
	var v Visit
	err := r.db.GetContext(ctx, &v, r.db.Rebind(visitSelect+` WHERE visit_occurrence_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fhir.NotFoundError("Encounter", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *visitRepoSQL) ListByIDs(ctx context.Context, ids []int64) ([]*Visit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(visitSelect+` WHERE visit_occurrence_id IN (?) ORDER BY visit_occurrence_id`, ids)
	if err != nil {
		return nil, err
	}
	var items []*Visit
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return items, nil
}
