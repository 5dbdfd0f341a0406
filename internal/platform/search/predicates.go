package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ehr/omopfhir/internal/platform/fhir"
)

// ClauseFunc renders the predicate for one OR token over a parameter's
// columns, binding its arguments on q. Tokens of one OR-group are ORed by the
// compiler, so a ClauseFunc never sees more than one value.
type ClauseFunc func(q *Query, def ParamDef, v Value) (string, error)

// DefaultClauses is the type → builder table used by NewCompiler. Composite
// parameters have no entry and are ignored.
func DefaultClauses() map[ParamType]ClauseFunc {
	return map[ParamType]ClauseFunc{
		ParamDate:      DateClause,
		ParamID:        IDClause,
		ParamToken:     TokenClause,
		ParamString:    StringClause,
		ParamNumber:    NumberClause,
		ParamQuantity:  QuantityClause,
		ParamReference: ReferenceClause,
		ParamURI:       URIClause,
	}
}

// never is a predicate that matches no row.
const never = "1=0"

// ---------------------------------------------------------------------------
// date
// ---------------------------------------------------------------------------

// DateClause turns a DateParam or DateRange into bound comparisons. Both
// bounds are inclusive; a range whose lower bound is after its upper bound
// simply matches nothing.
func DateClause(q *Query, def ParamDef, v Value) (string, error) {
	var bounds []DateBounds
	switch d := v.(type) {
	case DateParam:
		if d.Time.IsZero() {
			return "", fhir.InvalidValueError(def.Name, "empty date value")
		}
		bounds = d.Bounds()
	case DateRange:
		if d.Lower == nil && d.Upper == nil {
			return "", fhir.InvalidValueError(def.Name, "date range has neither a lower nor an upper bound")
		}
		bounds = []DateBounds{d.Bounds()}
	default:
		return "", fhir.InvalidValueError(def.Name, "%q is not a date", v.QueryToken())
	}

	col := q.Column(def, def.Column)
	parts := make([]string, 0, len(bounds))
	for _, b := range bounds {
		parts = append(parts, dateBoundsClause(q, col, b))
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

func dateBoundsClause(q *Query, col string, b DateBounds) string {
	var lb, ub string
	if b.Lower != nil {
		lb = q.dialect.DateGreaterOrEqual(col, q.Arg(q.dialect.DateArg(*b.Lower)))
	}
	if b.Upper != nil {
		ub = q.dialect.DateLessOrEqual(col, q.Arg(q.dialect.DateArg(*b.Upper)))
	}
	switch {
	case lb != "" && ub != "":
		return "(" + lb + " AND " + ub + ")"
	case lb != "":
		return lb
	default:
		return ub
	}
}

// ---------------------------------------------------------------------------
// token / string / uri
// ---------------------------------------------------------------------------

// TokenClause handles "system|code", "|code", "system|" and "code", plus the
// :not and :text modifiers. Without a system column the system is not checked.
func TokenClause(q *Query, def ParamDef, v Value) (string, error) {
	var t TokenParam
	switch tv := v.(type) {
	case TokenParam:
		t = tv
	case StringParam:
		t = NewTokenParam(tv.Value, tv.Modifier)
	default:
		return "", fhir.InvalidValueError(def.Name, "%q is not a token", v.QueryToken())
	}

	codeCol := q.Column(def, def.Column)
	if t.Modifier == ModifierText {
		return q.dialect.ILike(codeCol, q.Arg("%"+t.Code+"%")), nil
	}

	var parts []string
	if t.HasSystem && def.SystemColumn != "" {
		sysCol := q.Column(def, def.SystemColumn)
		if t.System == "" {
			// "|code": the code must carry no system.
			parts = append(parts, sysCol+" IS NULL")
		} else {
			parts = append(parts, fmt.Sprintf("%s = %s", sysCol, q.Arg(t.System)))
		}
	}
	if t.Code != "" {
		parts = append(parts, fmt.Sprintf("%s = %s", codeCol, q.Arg(t.Code)))
	}
	if len(parts) == 0 {
		parts = append(parts, codeCol+" IS NOT NULL")
	}
	clause := strings.Join(parts, " AND ")
	if t.Modifier == ModifierNot {
		return "NOT (" + clause + ")", nil
	}
	if len(parts) > 1 {
		return "(" + clause + ")", nil
	}
	return clause, nil
}

// StringClause is a case-insensitive prefix match by default; :exact and
// :contains behave as in FHIR.
func StringClause(q *Query, def ParamDef, v Value) (string, error) {
	s, ok := v.(StringParam)
	if !ok {
		return "", fhir.InvalidValueError(def.Name, "%q is not a string", v.QueryToken())
	}
	col := q.Column(def, def.Column)
	switch s.Modifier {
	case ModifierExact:
		return fmt.Sprintf("%s = %s", col, q.Arg(s.Value)), nil
	case ModifierContains, ModifierText:
		return q.dialect.ILike(col, q.Arg("%"+s.Value+"%")), nil
	default:
		return q.dialect.ILike(col, q.Arg(s.Value+"%")), nil
	}
}

// URIClause is an exact match.
func URIClause(q *Query, def ParamDef, v Value) (string, error) {
	return fmt.Sprintf("%s = %s", q.Column(def, def.Column), q.Arg(v.QueryToken())), nil
}

// ---------------------------------------------------------------------------
// number / quantity
// ---------------------------------------------------------------------------

// NumberClause compares against a decimal honouring its implicit precision:
// eq100 matches [99.5, 100.5), ap matches within 10% of the value.
func NumberClause(q *Query, def ParamDef, v Value) (string, error) {
	n, ok := v.(NumberParam)
	if !ok {
		return "", fhir.InvalidValueError(def.Name, "%q is not a number", v.QueryToken())
	}
	return numberClause(q, q.Column(def, def.Column), n), nil
}

func numberClause(q *Query, col string, n NumberParam) string {
	switch n.Prefix {
	case PrefixGt, PrefixSa:
		return fmt.Sprintf("%s > %s", col, q.Arg(n.Value))
	case PrefixLt, PrefixEb:
		return fmt.Sprintf("%s < %s", col, q.Arg(n.Value))
	case PrefixGe:
		return fmt.Sprintf("%s >= %s", col, q.Arg(n.Value))
	case PrefixLe:
		return fmt.Sprintf("%s <= %s", col, q.Arg(n.Value))
	case PrefixNe:
		lo, hi := n.ImplicitRange()
		return fmt.Sprintf("(%s < %s OR %s >= %s)", col, q.Arg(lo), col, q.Arg(hi))
	case PrefixAp:
		delta := n.Value.Abs().Mul(decimal.NewFromFloat(0.1))
		return fmt.Sprintf("(%s >= %s AND %s <= %s)", col, q.Arg(n.Value.Sub(delta)), col, q.Arg(n.Value.Add(delta)))
	default:
		lo, hi := n.ImplicitRange()
		return fmt.Sprintf("(%s >= %s AND %s < %s)", col, q.Arg(lo), col, q.Arg(hi))
	}
}

// QuantityClause is a number comparison on the value column, narrowed to the
// unit code when both the token and the definition carry one.
func QuantityClause(q *Query, def ParamDef, v Value) (string, error) {
	var qp QuantityParam
	switch qv := v.(type) {
	case QuantityParam:
		qp = qv
	case NumberParam:
		qp = QuantityParam{Number: qv}
	default:
		return "", fhir.InvalidValueError(def.Name, "%q is not a quantity", v.QueryToken())
	}
	clause := numberClause(q, q.Column(def, def.Column), qp.Number)
	if qp.Code != "" && def.UnitColumn != "" {
		clause = fmt.Sprintf("(%s AND %s = %s)", clause, q.Column(def, def.UnitColumn), q.Arg(qp.Code))
	}
	return clause, nil
}

// ---------------------------------------------------------------------------
// reference
// ---------------------------------------------------------------------------

// ReferenceClause matches a numeric OMOP foreign key. References to another
// resource type, or with a non-numeric id, cannot exist in the store and
// match nothing.
func ReferenceClause(q *Query, def ParamDef, v Value) (string, error) {
	var r ReferenceParam
	switch rv := v.(type) {
	case ReferenceParam:
		r = rv
	case StringParam:
		r = ParseReference(rv.Value)
	default:
		return "", fhir.InvalidValueError(def.Name, "%q is not a reference", v.QueryToken())
	}
	if r.ResourceType != "" && def.Target != "" && r.ResourceType != def.Target {
		return never, nil
	}
	id, err := strconv.ParseInt(r.ID, 10, 64)
	if err != nil {
		return never, nil
	}
	return fmt.Sprintf("%s = %s", q.Column(def, def.Column), q.Arg(id)), nil
}

// IDClause matches a declared id-typed parameter against its column. The
// token may be a bare id, "Type/id" or a full URL; ids that cannot be a row
// id match nothing.
func IDClause(q *Query, def ParamDef, v Value) (string, error) {
	var r ReferenceParam
	switch iv := v.(type) {
	case IDParam:
		r = ParseReference(strings.TrimSpace(iv.Raw))
	case ReferenceParam:
		r = iv
	case StringParam:
		r = ParseReference(strings.TrimSpace(iv.Value))
	default:
		return "", fhir.InvalidValueError(def.Name, "%q is not an id", v.QueryToken())
	}
	if r.ResourceType != "" && def.Target != "" && r.ResourceType != def.Target {
		return never, nil
	}
	id, err := strconv.ParseInt(r.ID, 10, 64)
	if err != nil {
		return never, nil
	}
	return fmt.Sprintf("%s = %s", q.Column(def, def.Column), q.Arg(id)), nil
}

// ParseReference splits "Type/id", a full URL or a bare id. A trailing
// "_history/n" version suffix is dropped.
func ParseReference(raw string) ReferenceParam {
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if n := len(parts); n >= 2 && parts[n-2] == "_history" {
		parts = parts[:n-2]
	}
	switch n := len(parts); n {
	case 0:
		return ReferenceParam{}
	case 1:
		return ReferenceParam{ID: parts[0]}
	default:
		return ReferenceParam{ResourceType: parts[n-2], ID: parts[n-1]}
	}
}
