package patient

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/omopfhir/internal/platform/fhir"
	"github.com/ehr/omopfhir/internal/platform/search"
)

// Searcher resolves a parameter map to matching primary keys.
type Searcher interface {
	Search(ctx context.Context, def *search.ResourceDef, params search.ParameterMap) (search.IDSet, error)
}

type Service struct {
	repo     PersonRepository
	searcher Searcher
	def      *search.ResourceDef
	logger   zerolog.Logger
}

func NewService(repo PersonRepository, searcher Searcher, def *search.ResourceDef, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		searcher: searcher,
		def:      def,
		logger:   logger.With().Str("resource", def.Name).Logger(),
	}
}

// Def returns the search metadata the service translates against.
func (s *Service) Def() *search.ResourceDef { return s.def }

// Read returns the live Patient for id. A person whose extension row is
// marked deleted yields a Gone error.
func (s *Service) Read(ctx context.Context, id string) (*Person, error) {
	start := time.Now()
	p, err := s.ReadEntity(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted() {
		return nil, fhir.GoneError(s.def.Name, id, p.DeletedAt.UTC().Format(time.RFC3339))
	}
	s.logger.Debug().
		Str("id", id).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("processed read")
	return p, nil
}

// ReadEntity loads the row behind id without the deletion check. Person ids
// are numeric; with checkForcedID a non-numeric id is treated as an unknown
// client-assigned id (not found) rather than a malformed value.
func (s *Service) ReadEntity(ctx context.Context, id string, checkForcedID bool) (*Person, error) {
	pid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		if checkForcedID {
			return nil, fhir.NotFoundError(s.def.Name, id)
		}
		return nil, fhir.InvalidValueError("_id", "%q is not a numeric id", id)
	}
	return s.repo.GetByID(ctx, pid)
}

func (s *Service) Search(ctx context.Context, params search.ParameterMap) (search.IDSet, error) {
	return s.searcher.Search(ctx, s.def, params)
}

// SearchResources runs the search and hydrates one page of matches in id
// order. The total counts every matched id; deleted persons are dropped from
// the page only.
func (s *Service) SearchResources(ctx context.Context, params search.ParameterMap, limit, offset int) ([]*Person, int, error) {
	ids, err := s.Search(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	sorted := ids.Sorted()
	total := len(sorted)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	items, err := s.repo.ListByIDs(ctx, sorted[offset:end])
	if err != nil {
		return nil, 0, err
	}
	live := items[:0]
	for _, p := range items {
		if !p.IsDeleted() {
			live = append(live, p)
		}
	}
	return live, total, nil
}
