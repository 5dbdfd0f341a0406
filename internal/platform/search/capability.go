package search

import (
	"sort"

	"github.com/ehr/omopfhir/internal/platform/fhir"
)

// Capabilities renders the declared search parameters of the named resource
// types for the CapabilityStatement. _id is always listed. Unknown names
// are skipped.
func (r *Registry) Capabilities(served ...string) []fhir.CSResource {
	out := make([]fhir.CSResource, 0, len(served))
	for _, name := range served {
		def, ok := r.Resource(name)
		if !ok {
			continue
		}
		names := make([]string, 0, len(def.Params))
		for n := range def.Params {
			names = append(names, n)
		}
		sort.Strings(names)

		params := make([]fhir.CSSearchParam, 0, len(names)+1)
		params = append(params, fhir.CSSearchParam{Name: "_id", Type: ParamToken.String()})
		for _, n := range names {
			if n == "_id" {
				continue
			}
			params = append(params, fhir.CSSearchParam{Name: n, Type: def.Params[n].Type.String()})
		}
		out = append(out, fhir.ResourceCapability(def.Name, params))
	}
	return out
}
