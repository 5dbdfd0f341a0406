package patient

import (
	"strconv"
	"time"

	"github.com/ehr/omopfhir/internal/platform/fhir"
)

// OMOP gender concepts.
const (
	genderConceptMale   = 8507
	genderConceptFemale = 8532
)

// Person maps the OMOP person table, its f_person extension and the death
// record. Extension and death columns are nil when no row exists.
type Person struct {
	PersonID          int64      `db:"person_id" json:"person_id"`
	GenderConceptID   int32      `db:"gender_concept_id" json:"gender_concept_id"`
	YearOfBirth       *int32     `db:"year_of_birth" json:"year_of_birth,omitempty"`
	MonthOfBirth      *int32     `db:"month_of_birth" json:"month_of_birth,omitempty"`
	DayOfBirth        *int32     `db:"day_of_birth" json:"day_of_birth,omitempty"`
	BirthDatetime     *time.Time `db:"birth_datetime" json:"birth_datetime,omitempty"`
	ProviderID        *int64     `db:"provider_id" json:"provider_id,omitempty"`
	CareSiteID        *int64     `db:"care_site_id" json:"care_site_id,omitempty"`
	PersonSourceValue *string    `db:"person_source_value" json:"person_source_value,omitempty"`
	GenderSourceValue *string    `db:"gender_source_value" json:"gender_source_value,omitempty"`

	FamilyName        *string    `db:"family_name" json:"family_name,omitempty"`
	Given1Name        *string    `db:"given1_name" json:"given1_name,omitempty"`
	Given2Name        *string    `db:"given2_name" json:"given2_name,omitempty"`
	PrefixName        *string    `db:"prefix_name" json:"prefix_name,omitempty"`
	SuffixName        *string    `db:"suffix_name" json:"suffix_name,omitempty"`
	PreferredLanguage *string    `db:"preferred_language" json:"preferred_language,omitempty"`
	Active            *int32     `db:"active" json:"active,omitempty"`
	ContactPoint1     *string    `db:"contact_point1" json:"contact_point1,omitempty"`
	ContactPoint2     *string    `db:"contact_point2" json:"contact_point2,omitempty"`
	MaritalStatus     *string    `db:"marital_status" json:"marital_status,omitempty"`
	DeletedAt         *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`

	DeathDate *time.Time `db:"death_date" json:"death_date,omitempty"`
}

// FHIRID is the logical id exposed over FHIR.
func (p *Person) FHIRID() string { return strconv.FormatInt(p.PersonID, 10) }

// IsDeleted reports whether the extension row carries a deletion timestamp.
func (p *Person) IsDeleted() bool { return p.DeletedAt != nil }

func (p *Person) gender() string {
	switch p.GenderConceptID {
	case genderConceptMale:
		return "male"
	case genderConceptFemale:
		return "female"
	}
	switch strVal(p.GenderSourceValue) {
	case "M", "m", "male":
		return "male"
	case "F", "f", "female":
		return "female"
	case "":
		return ""
	default:
		return "unknown"
	}
}

func (p *Person) birthDate() string {
	if p.BirthDatetime != nil {
		return p.BirthDatetime.Format("2006-01-02")
	}
	if p.YearOfBirth == nil {
		return ""
	}
	month, day := time.January, 1
	if p.MonthOfBirth != nil {
		month = time.Month(*p.MonthOfBirth)
	}
	if p.DayOfBirth != nil {
		day = int(*p.DayOfBirth)
	}
	return time.Date(int(*p.YearOfBirth), month, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

func (p *Person) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Patient",
		"id":           p.FHIRID(),
		"meta": fhir.Meta{
			Profile: []string{"http://hl7.org/fhir/StructureDefinition/Patient"},
		},
	}
	if p.Active != nil {
		result["active"] = *p.Active != 0
	}
	if p.PersonSourceValue != nil {
		result["identifier"] = []fhir.Identifier{{Use: "usual", Value: *p.PersonSourceValue}}
	}
	if p.FamilyName != nil || p.Given1Name != nil {
		name := fhir.HumanName{Use: "official", Family: strVal(p.FamilyName)}
		for _, g := range []*string{p.Given1Name, p.Given2Name} {
			if g != nil {
				name.Given = append(name.Given, *g)
			}
		}
		if p.PrefixName != nil {
			name.Prefix = []string{*p.PrefixName}
		}
		if p.SuffixName != nil {
			name.Suffix = []string{*p.SuffixName}
		}
		result["name"] = []fhir.HumanName{name}
	}
	if g := p.gender(); g != "" {
		result["gender"] = g
	}
	if bd := p.birthDate(); bd != "" {
		result["birthDate"] = bd
	}
	if p.DeathDate != nil {
		result["deceasedDateTime"] = p.DeathDate.Format("2006-01-02")
	}
	var telecom []fhir.ContactPoint
	for _, cp := range []*string{p.ContactPoint1, p.ContactPoint2} {
		if cp != nil {
			telecom = append(telecom, fhir.ContactPoint{Value: *cp})
		}
	}
	if len(telecom) > 0 {
		result["telecom"] = telecom
	}
	if p.MaritalStatus != nil {
		result["maritalStatus"] = fhir.CodeableConcept{Text: *p.MaritalStatus}
	}
	if p.PreferredLanguage != nil {
		result["communication"] = []map[string]interface{}{
			{"language": fhir.CodeableConcept{Text: *p.PreferredLanguage}, "preferred": true},
		}
	}
	if p.ProviderID != nil {
		result["generalPractitioner"] = []fhir.Reference{
			{Reference: fhir.FormatReference("Practitioner", strconv.FormatInt(*p.ProviderID, 10))},
		}
	}
	if p.CareSiteID != nil {
		result["managingOrganization"] = fhir.Reference{
			Reference: fhir.FormatReference("Organization", strconv.FormatInt(*p.CareSiteID, 10)),
		}
	}
	return result
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
