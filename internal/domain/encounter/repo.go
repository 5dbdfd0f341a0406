package encounter

import (
	"context"
)

// VisitRepository loads visit_occurrence rows by primary key. GetByID
// returns a fhir.ErrNotFound error when the row does not exist.
type VisitRepository interface {
	GetByID(ctx context.Context, id int64) (*Visit, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*Visit, error)
}

const visitSelect = `SELECT visit_occurrence_id, person_id, visit_concept_id, visit_start_date, visit_start_datetime,
	visit_end_date, visit_end_datetime, provider_id, care_site_id, visit_source_value,
	admitting_source_value, discharge_to_source_value, preceding_visit_occurrence_id
FROM visit_occurrence`
