package patient

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/ehr/omopfhir/internal/platform/fhir"
)

type personRepoSQL struct{ db *sqlx.DB }

// NewPersonRepoSQL reads persons through database/sql (lib/pq or go-sqlite3).
func NewPersonRepoSQL(db *sqlx.DB) PersonRepository {
	return &personRepoSQL{db: db}
}

func (r *personRepoSQL) GetByID(ctx context.Context, id int64) (*Person, error) {
	var p Person
	err := r.db.GetContext(ctx, &p, r.db.Rebind(personSelect+` WHERE p.person_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fhir.NotFoundError("Patient", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *personRepoSQL) ListByIDs(ctx context.Context, ids []int64) ([]*Person, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(personSelect+` WHERE p.person_id IN (?) ORDER BY p.person_id`, ids)
	if err != nil {
		return nil, err
	}
	var items []*Person
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return items, nil
}
