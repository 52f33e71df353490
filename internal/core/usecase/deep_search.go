package usecase

import (
	"context"
	"time"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

// searchRestricted has no unfiltered retry: dropping the PMID predicate
// would turn it into a global search.
func (e *RetrievalEngine) searchRestricted(ctx context.Context, query string, candidates []string) ([]domain.ScoredPassage, error) {
	started := time.Now()
	out, err := e.bodies.Search(ctx, query, e.tunables.ChunkTopK, domain.SearchFilter{PMIDs: candidates})
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, stageRestricted+" search", err)
	}
	e.observer.ObserveStage(stageRestricted, time.Since(started), len(out))
	return out, nil
}

func (e *RetrievalEngine) searchGlobal(ctx context.Context, query string, filter *domain.MetadataFilter) ([]domain.ScoredPassage, error) {
	started := time.Now()
	out, err := e.searchWithFilterFallback(ctx, e.bodies, stageGlobal, query, 2*e.tunables.ChunkTopK, filter)
	if err != nil {
		return nil, err
	}
	e.observer.ObserveStage(stageGlobal, time.Since(started), len(out))
	return out, nil
}
