package encounter

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
	repo     VisitRepository
	searcher Searcher
	def      *search.ResourceDef
	logger   zerolog.Logger
}

func NewService(repo VisitRepository, searcher Searcher, def *search.ResourceDef, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		searcher: searcher,
		def:      def,
		logger:   logger.With().Str("resource", def.Name).Logger(),
	}
}

func (s *Service) Def() *search.ResourceDef { return s.def }

// Read returns the Encounter for id. visit_occurrence has no deletion marker,
// so a missing row is the only failure besides store errors.
func (s *Service) Read(ctx context.Context, id string) (*Visit, error) {
	start := time.Now()
	v, err := s.ReadEntity(ctx, id, true)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().
		Str("id", id).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("processed read")
	return v, nil
}

// ReadEntity loads the row behind id. With checkForcedID a non-numeric id is
// reported as not found instead of as an invalid value.
func (s *Service) ReadEntity(ctx context.Context, id string, checkForcedID bool) (*Visit, error) {
	vid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		if checkForcedID {
			return nil, fhir.NotFoundError(s.def.Name, id)
		}
		return nil, fhir.InvalidValueError("_id", "%q is not a numeric id", id)
	}
	return s.repo.GetByID(ctx, vid)
}

func (s *Service) Search(ctx context.Context, params search.ParameterMap) (search.IDSet, error) {
	return s.searcher.Search(ctx, s.def, params)
}

// SearchResources runs the search and hydrates one page of matches in id order.
func (s *Service) SearchResources(ctx context.Context, params search.ParameterMap, limit, offset int) ([]*Visit, int, error) {
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
	return items, total, nil
}
