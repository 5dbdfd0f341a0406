package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Value is one search token. The concrete types below form a closed variant;
// the compiler dispatches on the parameter's declared type and each predicate
// builder type-switches on the variants it understands.
type Value interface {
	// QueryToken renders the value the way it would appear in a query string.
	QueryToken() string
}

// SearchPrefix represents a FHIR search prefix for ordered values.
type SearchPrefix string

const (
	PrefixEq SearchPrefix = "eq"
	PrefixNe SearchPrefix = "ne"
	PrefixGt SearchPrefix = "gt"
	PrefixLt SearchPrefix = "lt"
	PrefixGe SearchPrefix = "ge"
	PrefixLe SearchPrefix = "le"
	PrefixSa SearchPrefix = "sa" // starts after
	PrefixEb SearchPrefix = "eb" // ends before
	PrefixAp SearchPrefix = "ap" // approximately
)

// SplitPrefix extracts the prefix from a FHIR search value.
// Examples: "gt2023-01-01" -> (gt, "2023-01-01"), "100" -> (eq, "100")
func SplitPrefix(raw string) (SearchPrefix, string) {
	if len(raw) >= 2 {
		prefix := SearchPrefix(strings.ToLower(raw[:2]))
		switch prefix {
		case PrefixEq, PrefixNe, PrefixGt, PrefixLt, PrefixGe, PrefixLe, PrefixSa, PrefixEb, PrefixAp:
			return prefix, raw[2:]
		}
	}
	return PrefixEq, raw
}

func prefixToken(p SearchPrefix) string {
	if p == "" || p == PrefixEq {
		return ""
	}
	return string(p)
}

// ---------------------------------------------------------------------------
// Dates
// ---------------------------------------------------------------------------

// DatePrecision is the precision a date value was written with.
type DatePrecision int

const (
	PrecisionYear DatePrecision = iota + 1
	PrecisionMonth
	PrecisionDay
	PrecisionMinute
	PrecisionSecond
	PrecisionMilli
)

var dateLayouts = []struct {
	layout    string
	precision DatePrecision
}{
	{time.RFC3339Nano, PrecisionSecond},
	{"2006-01-02T15:04:05", PrecisionSecond},
	{"2006-01-02T15:04Z07:00", PrecisionMinute},
	{"2006-01-02T15:04", PrecisionMinute},
	{"2006-01-02", PrecisionDay},
	{"2006-01", PrecisionMonth},
	{"2006", PrecisionYear},
}

// ParseDate parses a FHIR date, dateTime or instant and reports the precision
// it was written with. Values without a zone are read as UTC.
func ParseDate(s string) (time.Time, DatePrecision, error) {
	for _, l := range dateLayouts {
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		p := l.precision
		if p == PrecisionSecond && strings.Contains(s, ".") {
			p = PrecisionMilli
		}
		return t, p, nil
	}
	return time.Time{}, 0, fmt.Errorf("unable to parse date: %s", s)
}

// DateBounds is an inclusive interval; a nil bound is open.
type DateBounds struct {
	Lower *time.Time
	Upper *time.Time
}

// DateParam is a single date/instant, optionally prefixed.
type DateParam struct {
	Prefix    SearchPrefix
	Time      time.Time
	Precision DatePrecision
}

// NewDateParam parses a raw token such as "ge2000-01" into a DateParam.
func NewDateParam(raw string) (DateParam, error) {
	prefix, v := SplitPrefix(raw)
	t, p, err := ParseDate(v)
	if err != nil {
		return DateParam{}, err
	}
	return DateParam{Prefix: prefix, Time: t, Precision: p}, nil
}

func (d DateParam) QueryToken() string {
	var layout string
	switch d.Precision {
	case PrecisionYear:
		layout = "2006"
	case PrecisionMonth:
		layout = "2006-01"
	case PrecisionDay:
		layout = "2006-01-02"
	case PrecisionMinute:
		layout = "2006-01-02T15:04Z07:00"
	case PrecisionMilli:
		layout = "2006-01-02T15:04:05.000Z07:00"
	default:
		layout = time.RFC3339
	}
	return prefixToken(d.Prefix) + d.Time.Format(layout)
}

// Covering returns the first and last instant covered by the value at its
// precision: "2000" covers 2000-01-01T00:00:00 through 2000-12-31T23:59:59.999999999.
func (d DateParam) Covering() (time.Time, time.Time) {
	var lo, next time.Time
	t := d.Time
	switch d.Precision {
	case PrecisionYear:
		lo = time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
		next = lo.AddDate(1, 0, 0)
	case PrecisionMonth:
		lo = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		next = lo.AddDate(0, 1, 0)
	case PrecisionDay:
		lo = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		next = lo.AddDate(0, 0, 1)
	case PrecisionMinute:
		lo = t.Truncate(time.Minute)
		next = lo.Add(time.Minute)
	case PrecisionMilli:
		lo = t.Truncate(time.Millisecond)
		next = lo.Add(time.Millisecond)
	default:
		lo = t.Truncate(time.Second)
		next = lo.Add(time.Second)
	}
	return lo, next.Add(-time.Nanosecond)
}

// Bounds normalises the value into one or more inclusive intervals. Only the
// ne prefix yields two.
func (d DateParam) Bounds() []DateBounds {
	lo, hi := d.Covering()
	before := lo.Add(-time.Nanosecond)
	after := hi.Add(time.Nanosecond)
	switch d.Prefix {
	case PrefixGe:
		return []DateBounds{{Lower: &lo}}
	case PrefixGt, PrefixSa:
		return []DateBounds{{Lower: &after}}
	case PrefixLe:
		return []DateBounds{{Upper: &hi}}
	case PrefixLt, PrefixEb:
		return []DateBounds{{Upper: &before}}
	case PrefixNe:
		return []DateBounds{{Upper: &before}, {Lower: &after}}
	case PrefixAp:
		// Approximate: widen the covered range by one day on either side.
		low := lo.Add(-24 * time.Hour)
		high := hi.Add(24 * time.Hour)
		return []DateBounds{{Lower: &low, Upper: &high}}
	default:
		return []DateBounds{{Lower: &lo, Upper: &hi}}
	}
}

// DateRange is an explicit range. Lower contributes the first instant it
// covers, Upper the last, so a day-precision upper bound includes that day.
type DateRange struct {
	Lower *DateParam
	Upper *DateParam
}

func (r DateRange) QueryToken() string {
	var parts []string
	if r.Lower != nil {
		parts = append(parts, "ge"+DateParam{Time: r.Lower.Time, Precision: r.Lower.Precision}.QueryToken())
	}
	if r.Upper != nil {
		parts = append(parts, "le"+DateParam{Time: r.Upper.Time, Precision: r.Upper.Precision}.QueryToken())
	}
	return strings.Join(parts, "&")
}

// Bounds returns the single inclusive interval of the range.
func (r DateRange) Bounds() DateBounds {
	var b DateBounds
	if r.Lower != nil {
		lo, _ := r.Lower.Covering()
		b.Lower = &lo
	}
	if r.Upper != nil {
		_, hi := r.Upper.Covering()
		b.Upper = &hi
	}
	return b
}

// ---------------------------------------------------------------------------
// Identifiers, references and modifiers
// ---------------------------------------------------------------------------

// IDParam is a raw _id token: "42", "Patient/42" or a full URL.
type IDParam struct {
	Raw string
}

func (p IDParam) QueryToken() string { return p.Raw }

// MissingParam is the :missing modifier. Missing=true asks for resources with
// no value for the parameter; false asks for resources that have one.
type MissingParam struct {
	Missing bool
}

func (p MissingParam) QueryToken() string {
	if p.Missing {
		return "true"
	}
	return "false"
}

// ReferenceParam targets another resource by type and id.
type ReferenceParam struct {
	ResourceType string
	ID           string
}

func (p ReferenceParam) QueryToken() string {
	if p.ResourceType == "" {
		return p.ID
	}
	return p.ResourceType + "/" + p.ID
}

// ---------------------------------------------------------------------------
// Token, string, number, quantity, composite
// ---------------------------------------------------------------------------

// SearchModifier represents a FHIR search modifier.
type SearchModifier string

const (
	ModifierExact    SearchModifier = "exact"
	ModifierContains SearchModifier = "contains"
	ModifierText     SearchModifier = "text"
	ModifierNot      SearchModifier = "not"
	ModifierMissing  SearchModifier = "missing"
)

// TokenParam is a system|code pair; HasSystem distinguishes "|code" (no
// system) from "code" (any system).
type TokenParam struct {
	System    string
	Code      string
	HasSystem bool
	Modifier  SearchModifier
}

// NewTokenParam parses "system|code", "|code", "system|" or "code".
func NewTokenParam(raw string, modifier SearchModifier) TokenParam {
	if i := strings.Index(raw, "|"); i >= 0 {
		return TokenParam{System: raw[:i], Code: raw[i+1:], HasSystem: true, Modifier: modifier}
	}
	return TokenParam{Code: raw, Modifier: modifier}
}

func (p TokenParam) QueryToken() string {
	if p.HasSystem {
		return p.System + "|" + p.Code
	}
	return p.Code
}

// StringParam is a string search value.
type StringParam struct {
	Value    string
	Modifier SearchModifier
}

func (p StringParam) QueryToken() string { return p.Value }

// NumberParam is a prefixed decimal.
type NumberParam struct {
	Prefix SearchPrefix
	Value  decimal.Decimal
}

// NewNumberParam parses a raw token such as "ge5.40".
func NewNumberParam(raw string) (NumberParam, error) {
	prefix, v := SplitPrefix(raw)
	d, err := decimal.NewFromString(v)
	if err != nil {
		return NumberParam{}, fmt.Errorf("unable to parse number: %s", v)
	}
	return NumberParam{Prefix: prefix, Value: d}, nil
}

func (p NumberParam) QueryToken() string { return prefixToken(p.Prefix) + p.Value.String() }

// ImplicitRange returns the half-open interval [lo, hi) implied by the
// number of significant digits: 100 covers [99.5, 100.5), 5.40 covers [5.395, 5.405).
func (p NumberParam) ImplicitRange() (decimal.Decimal, decimal.Decimal) {
	half := decimal.New(5, p.Value.Exponent()-1)
	return p.Value.Sub(half), p.Value.Add(half)
}

// QuantityParam is "[prefix]number|system|code".
type QuantityParam struct {
	Number NumberParam
	System string
	Code   string
}

// NewQuantityParam parses a quantity token.
func NewQuantityParam(raw string) (QuantityParam, error) {
	parts := strings.SplitN(raw, "|", 3)
	n, err := NewNumberParam(parts[0])
	if err != nil {
		return QuantityParam{}, err
	}
	q := QuantityParam{Number: n}
	if len(parts) > 1 {
		q.System = parts[1]
	}
	if len(parts) > 2 {
		q.Code = parts[2]
	}
	return q, nil
}

func (p QuantityParam) QueryToken() string {
	if p.System == "" && p.Code == "" {
		return p.Number.QueryToken()
	}
	return p.Number.QueryToken() + "|" + p.System + "|" + p.Code
}

// CompositeParam keeps the raw "a$b" token of a composite parameter.
type CompositeParam struct {
	Raw string
}

func (p CompositeParam) QueryToken() string { return p.Raw }
