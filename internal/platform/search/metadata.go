package search

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Join names a child table holding indexed values for a parameter. Rows of
// the child table reference the resource row through ForeignKey.
type Join struct {
	Table      string `yaml:"table"`
	ForeignKey string `yaml:"foreignKey"`
}

// ParamDef maps a FHIR search parameter onto the column holding its indexed
// value. Columns without a Join live on the resource's own table.
type ParamDef struct {
	Name         string
	Type         ParamType
	Column       string
	SystemColumn string // token system column, optional
	UnitColumn   string // quantity unit code column, optional
	Target       string // referenced resource type for reference params
	Join         *Join
}

// ResourceDef describes the table backing one FHIR resource type and the
// search parameters declared for it.
type ResourceDef struct {
	Name     string
	Table    string
	IDColumn string
	Params   map[string]ParamDef
}

// SearchParam looks up the declared definition of a parameter.
func (d *ResourceDef) SearchParam(name string) (ParamDef, bool) {
	p, ok := d.Params[name]
	return p, ok
}

// Validate checks that every declared parameter can be compiled.
func (d *ResourceDef) Validate() error {
	if d.Name == "" || d.Table == "" || d.IDColumn == "" {
		return fmt.Errorf("resource definition requires name, table and id column")
	}
	for name, p := range d.Params {
		if p.Type == 0 {
			return fmt.Errorf("%s.%s: missing type", d.Name, name)
		}
		if p.Column == "" && p.Type != ParamComposite {
			return fmt.Errorf("%s.%s: missing column", d.Name, name)
		}
		if p.Join != nil && (p.Join.Table == "" || p.Join.ForeignKey == "") {
			return fmt.Errorf("%s.%s: join requires table and foreignKey", d.Name, name)
		}
	}
	return nil
}

// Registry maps FHIR resource types to their definitions.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]*ResourceDef
}

// NewRegistry creates a registry holding the given definitions.
func NewRegistry(defs ...*ResourceDef) *Registry {
	r := &Registry{resources: make(map[string]*ResourceDef)}
	for _, d := range defs {
		r.resources[d.Name] = d
	}
	return r
}

// Register adds or replaces a resource definition.
func (r *Registry) Register(def *ResourceDef) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[def.Name] = def
	return nil
}

// Resource returns the definition for a resource type.
func (r *Registry) Resource(name string) (*ResourceDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.resources[name]
	return d, ok
}

// Names returns the registered resource types, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.resources))
	for n := range r.resources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns the built-in OMOP CDM mappings.
func DefaultRegistry() *Registry {
	return NewRegistry(PatientDef(), EncounterDef(), ObservationDef())
}

// PatientDef maps Patient onto OMOP person plus the f_person extension.
func PatientDef() *ResourceDef {
	ext := &Join{Table: "f_person", ForeignKey: "person_id"}
	return &ResourceDef{
		Name:     "Patient",
		Table:    "person",
		IDColumn: "person_id",
		Params: map[string]ParamDef{
			"birthdate":            {Name: "birthdate", Type: ParamDate, Column: "birth_datetime"},
			"gender":               {Name: "gender", Type: ParamToken, Column: "gender_source_value"},
			"identifier":           {Name: "identifier", Type: ParamToken, Column: "person_source_value"},
			"family":               {Name: "family", Type: ParamString, Column: "family_name", Join: ext},
			"given":                {Name: "given", Type: ParamString, Column: "given1_name", Join: ext},
			"name":                 {Name: "name", Type: ParamString, Column: "family_name", Join: ext},
			"death-date":           {Name: "death-date", Type: ParamDate, Column: "death_date", Join: &Join{Table: "death", ForeignKey: "person_id"}},
			"organization":         {Name: "organization", Type: ParamReference, Column: "care_site_id", Target: "Organization"},
			"general-practitioner": {Name: "general-practitioner", Type: ParamReference, Column: "provider_id", Target: "Practitioner"},
		},
	}
}

// EncounterDef maps Encounter onto OMOP visit_occurrence.
func EncounterDef() *ResourceDef {
	return &ResourceDef{
		Name:     "Encounter",
		Table:    "visit_occurrence",
		IDColumn: "visit_occurrence_id",
		Params: map[string]ParamDef{
			"date":             {Name: "date", Type: ParamDate, Column: "visit_start_datetime"},
			"end-date":         {Name: "end-date", Type: ParamDate, Column: "visit_end_datetime"},
			"patient":          {Name: "patient", Type: ParamReference, Column: "person_id", Target: "Patient"},
			"subject":          {Name: "subject", Type: ParamReference, Column: "person_id", Target: "Patient"},
			"class":            {Name: "class", Type: ParamToken, Column: "visit_source_value"},
			"practitioner":     {Name: "practitioner", Type: ParamReference, Column: "provider_id", Target: "Practitioner"},
			"service-provider": {Name: "service-provider", Type: ParamReference, Column: "care_site_id", Target: "Organization"},
		},
	}
}

// ObservationDef maps Observation onto OMOP measurement.
func ObservationDef() *ResourceDef {
	return &ResourceDef{
		Name:     "Observation",
		Table:    "measurement",
		IDColumn: "measurement_id",
		Params: map[string]ParamDef{
			"date":                {Name: "date", Type: ParamDate, Column: "measurement_datetime"},
			"patient":             {Name: "patient", Type: ParamReference, Column: "person_id", Target: "Patient"},
			"subject":             {Name: "subject", Type: ParamReference, Column: "person_id", Target: "Patient"},
			"encounter":           {Name: "encounter", Type: ParamReference, Column: "visit_occurrence_id", Target: "Encounter"},
			"code":                {Name: "code", Type: ParamToken, Column: "measurement_source_value"},
			"value-quantity":      {Name: "value-quantity", Type: ParamQuantity, Column: "value_as_number", UnitColumn: "unit_source_value"},
			"value-number":        {Name: "value-number", Type: ParamNumber, Column: "value_as_number"},
			"code-value-quantity": {Name: "code-value-quantity", Type: ParamComposite},
		},
	}
}

// ---------------------------------------------------------------------------
// YAML overlay
// ---------------------------------------------------------------------------

type registryFile struct {
	Resources []resourceFile `yaml:"resources"`
}

type resourceFile struct {
	Name     string      `yaml:"name"`
	Table    string      `yaml:"table"`
	IDColumn string      `yaml:"idColumn"`
	Params   []paramFile `yaml:"params"`
}

type paramFile struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	Column       string `yaml:"column"`
	SystemColumn string `yaml:"systemColumn"`
	UnitColumn   string `yaml:"unitColumn"`
	Target       string `yaml:"target"`
	Join         *Join  `yaml:"join"`
}

// LoadRegistryFile overlays the definitions found in a YAML file onto the
// registry. Resources are matched by name; a parameter in the file replaces
// the parameter of the same name, other declared parameters are kept.
func (r *Registry) LoadRegistryFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read search parameter file %s: %w", path, err)
	}
	return r.LoadRegistryYAML(data)
}

// LoadRegistryYAML is LoadRegistryFile over an in-memory document.
func (r *Registry) LoadRegistryYAML(data []byte) error {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse search parameter file: %w", err)
	}

	for _, rf := range f.Resources {
		def := &ResourceDef{Name: rf.Name, Table: rf.Table, IDColumn: rf.IDColumn, Params: map[string]ParamDef{}}
		if existing, ok := r.Resource(rf.Name); ok {
			if def.Table == "" {
				def.Table = existing.Table
			}
			if def.IDColumn == "" {
				def.IDColumn = existing.IDColumn
			}
			for k, v := range existing.Params {
				def.Params[k] = v
			}
		}
		for _, pf := range rf.Params {
			t, ok := ParseParamType(pf.Type)
			if !ok {
				return fmt.Errorf("%s.%s: unknown parameter type %q", rf.Name, pf.Name, pf.Type)
			}
			def.Params[pf.Name] = ParamDef{
				Name:         pf.Name,
				Type:         t,
				Column:       pf.Column,
				SystemColumn: pf.SystemColumn,
				UnitColumn:   pf.UnitColumn,
				Target:       pf.Target,
				Join:         pf.Join,
			}
		}
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}
