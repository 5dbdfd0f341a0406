package encounter

import (
	"strconv"
	"time"

	"github.com/ehr/omopfhir/internal/platform/fhir"
)

const actCodeSystem = "http://terminology.hl7.org/CodeSystem/v3-ActCode"

// OMOP visit concepts and their v3 ActCode class.
var visitClasses = map[int32]fhir.Coding{
	9201:   {System: actCodeSystem, Code: "IMP", Display: "inpatient encounter"},
	9202:   {System: actCodeSystem, Code: "AMB", Display: "ambulatory"},
	9203:   {System: actCodeSystem, Code: "EMER", Display: "emergency"},
	581476: {System: actCodeSystem, Code: "HH", Display: "home health"},
}

// Visit maps the OMOP visit_occurrence table.
type Visit struct {
	VisitOccurrenceID      int64      `db:"visit_occurrence_id" json:"visit_occurrence_id"`
	PersonID               int64      `db:"person_id" json:"person_id"`
	VisitConceptID         int32      `db:"visit_concept_id" json:"visit_concept_id"`
	VisitStartDate         *time.Time `db:"visit_start_date" json:"visit_start_date,omitempty"`
	VisitStartDatetime     *time.Time `db:"visit_start_datetime" json:"visit_start_datetime,omitempty"`
	VisitEndDate           *time.Time `db:"visit_end_date" json:"visit_end_date,omitempty"`
	VisitEndDatetime       *time.Time `db:"visit_end_datetime" json:"visit_end_datetime,omitempty"`
	ProviderID             *int64     `db:"provider_id" json:"provider_id,omitempty"`
	CareSiteID             *int64     `db:"care_site_id" json:"care_site_id,omitempty"`
	VisitSourceValue       *string    `db:"visit_source_value" json:"visit_source_value,omitempty"`
	AdmittingSourceValue   *string    `db:"admitting_source_value" json:"admitting_source_value,omitempty"`
	DischargeToSourceValue *string    `db:"discharge_to_source_value" json:"discharge_to_source_value,omitempty"`
	PrecedingVisitID       *int64     `db:"preceding_visit_occurrence_id" json:"preceding_visit_occurrence_id,omitempty"`
}

// FHIRID is the logical id exposed over FHIR.
func (v *Visit) FHIRID() string { return strconv.FormatInt(v.VisitOccurrenceID, 10) }

func (v *Visit) start() *time.Time {
	if v.VisitStartDatetime != nil {
		return v.VisitStartDatetime
	}
	return v.VisitStartDate
}

func (v *Visit) end() *time.Time {
	if v.VisitEndDatetime != nil {
		return v.VisitEndDatetime
	}
	return v.VisitEndDate
}

// class prefers the source code, which is what the class search parameter
// matches, and falls back to the standard visit concept.
func (v *Visit) class() fhir.Coding {
	known, ok := visitClasses[v.VisitConceptID]
	if v.VisitSourceValue != nil {
		c := fhir.Coding{System: actCodeSystem, Code: *v.VisitSourceValue}
		if ok && known.Code == c.Code {
			c.Display = known.Display
		}
		return c
	}
	if ok {
		return known
	}
	return fhir.Coding{System: actCodeSystem, Code: "AMB", Display: "ambulatory"}
}

func (v *Visit) ToFHIR() map[string]interface{} {
	status := "in-progress"
	if v.end() != nil {
		status = "finished"
	}
	result := map[string]interface{}{
		"resourceType": "Encounter",
		"id":           v.FHIRID(),
		"status":       status,
		"class":        v.class(),
		"subject": fhir.Reference{
			Reference: fhir.FormatReference("Patient", strconv.FormatInt(v.PersonID, 10)),
		},
		"meta": fhir.Meta{
			Profile: []string{"http://hl7.org/fhir/StructureDefinition/Encounter"},
		},
	}
	if start, end := v.start(), v.end(); start != nil || end != nil {
		result["period"] = fhir.Period{Start: start, End: end}
	}
	if v.ProviderID != nil {
		result["participant"] = []map[string]interface{}{
			{"individual": fhir.Reference{Reference: fhir.FormatReference("Practitioner", strconv.FormatInt(*v.ProviderID, 10))}},
		}
	}
	if v.CareSiteID != nil {
		result["serviceProvider"] = fhir.Reference{
			Reference: fhir.FormatReference("Organization", strconv.FormatInt(*v.CareSiteID, 10)),
		}
	}
	if v.AdmittingSourceValue != nil || v.DischargeToSourceValue != nil {
		hosp := map[string]interface{}{}
		if v.AdmittingSourceValue != nil {
			hosp["admitSource"] = fhir.CodeableConcept{Text: *v.AdmittingSourceValue}
		}
		if v.DischargeToSourceValue != nil {
			hosp["dischargeDisposition"] = fhir.CodeableConcept{Text: *v.DischargeToSourceValue}
		}
		result["hospitalization"] = hosp
	}
	if v.PrecedingVisitID != nil {
		result["partOf"] = fhir.Reference{
			Reference: fhir.FormatReference("Encounter", strconv.FormatInt(*v.PrecedingVisitID, 10)),
		}
	}
	return result
}
