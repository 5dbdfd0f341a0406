package patient

import (
	"context"
)

// PersonRepository loads Person entities by primary key. GetByID returns a
// fhir.ErrNotFound error when no person row exists.
type PersonRepository interface {
	GetByID(ctx context.Context, id int64) (*Person, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*Person, error)
}

const personSelect = `SELECT p.person_id, p.gender_concept_id, p.year_of_birth, p.month_of_birth, p.day_of_birth,
	p.birth_datetime, p.provider_id, p.care_site_id, p.person_source_value, p.gender_source_value,
	f.family_name, f.given1_name, f.given2_name, f.prefix_name, f.suffix_name, f.preferred_language,
	f.active, f.contact_point1, f.contact_point2, f.marital_status, f.deleted_at,
	d.death_date
FROM person p
LEFT JOIN f_person f ON f.person_id = p.person_id
LEFT JOIN death d ON d.person_id = p.person_id`
