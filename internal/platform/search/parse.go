package search

import (
	"net/url"
	"sort"
	"strings"

	"github.com/ehr/omopfhir/internal/platform/fhir"
)

// controlParams shape the response rather than the match set.
var controlParams = map[string]bool{
	"_count":      true,
	"_offset":     true,
	"_sort":       true,
	"_format":     true,
	"_pretty":     true,
	"_total":      true,
	"_summary":    true,
	"_elements":   true,
	"_include":    true,
	"_revinclude": true,
}

// IsControlParam reports whether name is a result-shaping parameter.
func IsControlParam(name string) bool { return controlParams[name] }

// ParseQuery converts REST query parameters into a ParameterMap for def.
// Each occurrence of a name is one AND-group and its comma separated values
// are the OR tokens. Parameters not declared for the resource are kept as
// StringParam so the compiler can decide to ignore them.
func ParseQuery(def *ResourceDef, values url.Values) (ParameterMap, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := ParameterMap{}
	for _, key := range keys {
		name, modifier := splitModifier(key)
		if name == "" || IsControlParam(name) {
			continue
		}
		for _, raw := range values[key] {
			var group OrGroup
			for _, token := range splitOr(raw) {
				if token == "" {
					continue
				}
				v, err := parseValue(def, name, modifier, token)
				if err != nil {
					return nil, err
				}
				group = append(group, v)
			}
			if len(group) > 0 {
				params[name] = append(params[name], group)
			}
		}
	}
	return params, nil
}

func splitModifier(key string) (string, SearchModifier) {
	if i := strings.Index(key, ":"); i >= 0 {
		return key[:i], SearchModifier(key[i+1:])
	}
	return key, ""
}

// splitOr splits on commas not escaped with a backslash.
func splitOr(raw string) []string {
	var (
		out []string
		b   strings.Builder
	)
	for i := 0; i < len(raw); i++ {
		switch {
		case raw[i] == '\\' && i+1 < len(raw) && raw[i+1] == ',':
			b.WriteByte(',')
			i++
		case raw[i] == ',':
			out = append(out, b.String())
			b.Reset()
		default:
			b.WriteByte(raw[i])
		}
	}
	return append(out, b.String())
}

func parseValue(def *ResourceDef, name string, modifier SearchModifier, token string) (Value, error) {
	if modifier == ModifierMissing {
		switch strings.ToLower(token) {
		case "true":
			return MissingParam{Missing: true}, nil
		case "false":
			return MissingParam{Missing: false}, nil
		default:
			return nil, fhir.InvalidValueError(name, ":missing expects true or false, got %q", token)
		}
	}

	if name == ParamNameID {
		return IDParam{Raw: token}, nil
	}
	p, ok := def.SearchParam(name)
	if !ok {
		return StringParam{Value: token, Modifier: modifier}, nil
	}

	switch p.Type {
	case ParamDate:
		d, err := NewDateParam(token)
		if err != nil {
			return nil, fhir.InvalidValueError(name, "%v", err)
		}
		return d, nil
	case ParamToken:
		return NewTokenParam(token, modifier), nil
	case ParamNumber:
		n, err := NewNumberParam(token)
		if err != nil {
			return nil, fhir.InvalidValueError(name, "%v", err)
		}
		return n, nil
	case ParamQuantity:
		qp, err := NewQuantityParam(token)
		if err != nil {
			return nil, fhir.InvalidValueError(name, "%v", err)
		}
		return qp, nil
	case ParamReference:
		r := ParseReference(token)
		// subject:Patient=42
		if r.ResourceType == "" && modifier != "" {
			r.ResourceType = string(modifier)
		}
		return r, nil
	case ParamComposite:
		return CompositeParam{Raw: token}, nil
	case ParamID:
		return IDParam{Raw: token}, nil
	default:
		return StringParam{Value: token, Modifier: modifier}, nil
	}
}
