package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/omopfhir/internal/platform/fhir"
)

// Store runs a compiled statement and returns the ids it selects.
type Store interface {
	QueryIDs(ctx context.Context, timeout time.Duration, query string, args ...interface{}) ([]int64, error)
}

// EmptySearchPolicy decides what a search with no effective criteria returns.
type EmptySearchPolicy string

const (
	MatchAll  EmptySearchPolicy = "all"
	MatchNone EmptySearchPolicy = "none"
)

// ParseEmptySearchPolicy accepts "all" and "none"; "" means MatchAll.
func ParseEmptySearchPolicy(s string) (EmptySearchPolicy, error) {
	switch EmptySearchPolicy(strings.ToLower(s)) {
	case "", MatchAll:
		return MatchAll, nil
	case MatchNone:
		return MatchNone, nil
	default:
		return "", fmt.Errorf("unknown empty search policy %q", s)
	}
}

// Options tune a Compiler.
type Options struct {
	// StatementTimeout bounds every store round-trip; zero means no limit.
	StatementTimeout time.Duration
	EmptySearch      EmptySearchPolicy
	Logger           zerolog.Logger
}

// Compiler turns a ParameterMap into the set of matching resource ids by
// running one statement per AND-group and intersecting the results.
type Compiler struct {
	store   Store
	dialect Dialect
	clauses map[ParamType]ClauseFunc
	opts    Options
	logger  zerolog.Logger
}

// NewCompiler creates a compiler using the default clause builders.
func NewCompiler(store Store, dialect Dialect, opts Options) *Compiler {
	if opts.EmptySearch == "" {
		opts.EmptySearch = MatchAll
	}
	return &Compiler{
		store:   store,
		dialect: dialect,
		clauses: DefaultClauses(),
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "search").Logger(),
	}
}

// RegisterClause installs or replaces the builder for a parameter type.
func (c *Compiler) RegisterClause(t ParamType, fn ClauseFunc) {
	c.clauses[t] = fn
}

// Search evaluates params against the resource and returns the matching ids.
//
// Parameter names are ANDed, as are repeated occurrences of one name; the
// values of one occurrence are ORed. The map is validated as a whole before
// the first statement runs, and evaluation stops at the first step that
// leaves no candidates.
func (c *Compiler) Search(ctx context.Context, def *ResourceDef, params ParameterMap) (IDSet, error) {
	if err := c.validate(def, params); err != nil {
		return nil, err
	}

	var pids IDSet
	for _, name := range params.Names() {
		groups := params[name]

		if name == ParamNameID {
			if len(groups) == 0 {
				continue
			}
			found, err := c.IDPredicate(ctx, def, pids, parseIDGroup(def, groups[0]))
			if err != nil {
				return nil, err
			}
			pids = narrow(pids, found)
			if len(pids) == 0 {
				return IDSet{}, nil
			}
			continue
		}
		if name == ParamNameLanguage {
			continue
		}

		p, ok := def.SearchParam(name)
		if !ok {
			c.logger.Debug().Str("resource", def.Name).Str("param", name).Msg("ignoring undeclared search parameter")
			continue
		}
		clause, ok := c.clauses[p.Type]
		if !ok {
			c.logger.Warn().Str("resource", def.Name).Str("param", name).Stringer("type", p.Type).Msg("search parameter type not supported, ignoring")
			continue
		}

		for _, group := range groups {
			if len(group) == 0 {
				continue
			}
			var (
				found IDSet
				err   error
			)
			if isMissingTrue(group) {
				found, err = c.MissingPredicate(ctx, def, pids, p)
			} else {
				found, err = c.orPredicate(ctx, def, pids, p, group, clause)
			}
			if err != nil {
				return nil, err
			}
			pids = narrow(pids, found)
			if len(pids) == 0 {
				return IDSet{}, nil
			}
		}
	}

	if pids == nil {
		return c.matchEmpty(ctx, def)
	}
	return pids, nil
}

// DatePredicate narrows existing to the rows whose date parameter falls in
// any range of the OR-group.
func (c *Compiler) DatePredicate(ctx context.Context, def *ResourceDef, name string, existing IDSet, group OrGroup) (IDSet, error) {
	p, ok := def.SearchParam(name)
	if !ok || p.Type != ParamDate {
		return nil, fhir.InvalidRequestError(name, "%s is not a date parameter of %s", name, def.Name)
	}
	return c.orPredicate(ctx, def, existing, p, group, DateClause)
}

// IDPredicate returns the candidates that exist in the resource table,
// restricted to existing when it is constrained.
func (c *Compiler) IDPredicate(ctx context.Context, def *ResourceDef, existing, candidates IDSet) (IDSet, error) {
	if len(candidates) == 0 {
		return IDSet{}, nil
	}
	if existing != nil {
		candidates = candidates.Intersect(existing)
		if len(candidates) == 0 {
			return IDSet{}, nil
		}
	}
	q := NewQuery(c.dialect, def)
	q.Where(c.dialect.InIDs(q, q.IDRef(), candidates.Sorted()))
	return c.run(ctx, q)
}

// MissingPredicate returns the rows with no value for the parameter.
func (c *Compiler) MissingPredicate(ctx context.Context, def *ResourceDef, existing IDSet, p ParamDef) (IDSet, error) {
	c.logger.Debug().Str("resource", def.Name).Str("param", p.Name).Msg("adding :missing qualifier")
	q := NewQuery(c.dialect, def)
	q.Where(q.NotScoped(p, q.Column(p, p.Column)+" IS NOT NULL"))
	q.Restrict(existing)
	return c.run(ctx, q)
}

func (c *Compiler) orPredicate(ctx context.Context, def *ResourceDef, existing IDSet, p ParamDef, group OrGroup, clause ClauseFunc) (IDSet, error) {
	q := NewQuery(c.dialect, def)
	preds, err := orClauses(q, p, group, clause)
	if err != nil {
		return nil, err
	}
	q.Where(q.Scoped(p, strings.Join(preds, " OR ")))
	q.Restrict(existing)
	return c.run(ctx, q)
}

// orClauses renders each token of the group. :missing=false tokens become a
// presence test on the parameter's column.
func orClauses(q *Query, p ParamDef, group OrGroup, clause ClauseFunc) ([]string, error) {
	preds := make([]string, 0, len(group))
	for _, v := range group {
		if _, ok := v.(MissingParam); ok {
			preds = append(preds, q.Column(p, p.Column)+" IS NOT NULL")
			continue
		}
		s, err := clause(q, p, v)
		if err != nil {
			return nil, err
		}
		preds = append(preds, s)
	}
	return preds, nil
}

func (c *Compiler) matchEmpty(ctx context.Context, def *ResourceDef) (IDSet, error) {
	if c.opts.EmptySearch == MatchNone {
		return IDSet{}, nil
	}
	return c.run(ctx, NewQuery(c.dialect, def))
}

func (c *Compiler) run(ctx context.Context, q *Query) (IDSet, error) {
	sql := q.SQL()
	start := time.Now()
	ids, err := c.store.QueryIDs(ctx, c.opts.StatementTimeout, sql, q.Args()...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	c.logger.Debug().
		Str("sql", sql).
		Int("matches", len(ids)).
		Dur("elapsed", time.Since(start)).
		Msg("search statement")
	return NewIDSet(ids...), nil
}

// validate rejects malformed maps before anything is sent to the store.
func (c *Compiler) validate(def *ResourceDef, params ParameterMap) error {
	for _, name := range params.Names() {
		groups := params[name]
		switch name {
		case ParamNameID:
			if len(groups) > 1 {
				return fhir.UnsupportedQueryError(name, "only one _id= parameter is supported, got %d", len(groups))
			}
			continue
		case ParamNameLanguage:
			continue
		}

		p, ok := def.SearchParam(name)
		if !ok {
			continue
		}
		if err := validateMissing(name, groups); err != nil {
			return err
		}
		clause, ok := c.clauses[p.Type]
		if !ok {
			continue
		}
		for _, group := range groups {
			if isMissingTrue(group) && p.Column == "" {
				return fhir.InvalidRequestError(name, ":missing is not supported for %s", name)
			}
			if _, err := orClauses(NewQuery(c.dialect, def), p, group, clause); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateMissing(name string, groups []OrGroup) error {
	for _, group := range groups {
		if !containsMissingTrue(group) {
			continue
		}
		if len(group) > 1 || len(groups) > 1 {
			return fhir.InvalidRequestError(name,
				"multiple %q parameters where at least one is :missing=true are not supported", name)
		}
	}
	return nil
}

func containsMissingTrue(group OrGroup) bool {
	for _, v := range group {
		if m, ok := v.(MissingParam); ok && m.Missing {
			return true
		}
	}
	return false
}

func isMissingTrue(group OrGroup) bool {
	return len(group) == 1 && containsMissingTrue(group)
}

// narrow intersects the running set with a builder result; a nil running set
// is unconstrained.
func narrow(pids, found IDSet) IDSet {
	if found == nil {
		found = IDSet{}
	}
	if pids == nil {
		return found
	}
	return pids.Intersect(found)
}

// parseIDGroup collects the numeric ids of an _id OR-group. Tokens naming
// another resource type or carrying a non-numeric id are dropped.
func parseIDGroup(def *ResourceDef, group OrGroup) IDSet {
	ids := IDSet{}
	for _, v := range group {
		ref := ParseReference(strings.TrimSpace(v.QueryToken()))
		if ref.ResourceType != "" && ref.ResourceType != def.Name {
			continue
		}
		id, err := strconv.ParseInt(ref.ID, 10, 64)
		if err != nil {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}
