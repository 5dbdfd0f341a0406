package search

import (
	"sort"
	"strings"
)

// ParamType is the declared FHIR type of a search parameter.
type ParamType int

const (
	ParamDate ParamType = iota + 1
	ParamID
	ParamToken
	ParamString
	ParamNumber
	ParamQuantity
	ParamReference
	ParamComposite
	ParamURI
)

var paramTypeNames = map[ParamType]string{
	ParamDate:      "date",
	ParamID:        "id",
	ParamToken:     "token",
	ParamString:    "string",
	ParamNumber:    "number",
	ParamQuantity:  "quantity",
	ParamReference: "reference",
	ParamComposite: "composite",
	ParamURI:       "uri",
}

func (t ParamType) String() string {
	if s, ok := paramTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseParamType converts a SearchParameter.type code ("date", "token", ...)
// into a ParamType. The second result is false for unknown codes.
func ParseParamType(s string) (ParamType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range paramTypeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// Special parameter names handled by the compiler itself.
const (
	ParamNameID       = "_id"
	ParamNameLanguage = "_language"
)

// OrGroup is one occurrence of a parameter: any of its values may match.
type OrGroup []Value

// ParameterMap maps a parameter name to its AND-groups.
type ParameterMap map[string][]OrGroup

// Add appends an AND-group holding the given OR values.
func (m ParameterMap) Add(name string, values ...Value) ParameterMap {
	m[name] = append(m[name], OrGroup(values))
	return m
}

// Names returns the parameter names in a stable order. AND is commutative so
// the order does not change results, only the sequence of store round-trips.
func (m ParameterMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsEmpty reports whether the map holds no non-empty AND-group.
func (m ParameterMap) IsEmpty() bool {
	for _, groups := range m {
		for _, g := range groups {
			if len(g) > 0 {
				return false
			}
		}
	}
	return true
}
