package patient

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

type personRepoPG struct{ pool *pgxpool.Pool }

func NewPersonRepoPG(pool *pgxpool.Pool) PersonRepository {
	return &personRepoPG{pool: pool}
}

func (r *personRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *personRepoPG) scanRow(row pgx.Row) (*Person, error) {
	var p Person
	err := row.Scan(&p.PersonID, &p.GenderConceptID, &p.YearOfBirth, &p.MonthOfBirth, &p.DayOfBirth,
		&p.BirthDatetime, &p.ProviderID, &p.CareSiteID, &p.PersonSourceValue, &p.GenderSourceValue,
		&p.FamilyName, &p.Given1Name, &p.Given2Name, &p.PrefixName, &p.SuffixName, &p.PreferredLanguage,
		&p.Active, &p.ContactPoint1, &p.ContactPoint2, &p.MaritalStatus, &p.DeletedAt,
		&p.DeathDate)
	return &p, err
}

func (r *personRepoPG) GetByID(ctx context.Context, id int64) (*Person, error) {
	p, err := r.scanRow(r.conn(ctx).QueryRow(ctx, personSelect+` WHERE p.person_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fhir.NotFoundError("Patient", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *personRepoPG) ListByIDs(ctx context.Context, ids []int64) ([]*Person, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, personSelect+` WHERE p.person_id = ANY($1) ORDER BY p.person_id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Person
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
