package usecase

import (
	"context"
	"time"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

// narrowCandidates searches the abstract collection and returns up to
// AbstractTopN distinct PMIDs in rank order.
func (e *RetrievalEngine) narrowCandidates(ctx context.Context, query string, filter *domain.MetadataFilter) ([]string, error) {
	started := time.Now()
	k := e.tunables.AbstractFanout * e.tunables.AbstractTopN

	hits, err := e.searchWithFilterFallback(ctx, e.abstracts, stageNarrowing, query, k, filter)
	if err != nil {
		return nil, err
	}

	candidates := uniquePMIDs(hits, e.tunables.AbstractTopN)
	e.observer.ObserveStage(stageNarrowing, time.Since(started), len(candidates))
	e.logger.Debug("retrieval_candidates", "hits", len(hits), "candidates", len(candidates))
	return candidates, nil
}

func uniquePMIDs(hits []domain.ScoredPassage, limit int) []string {
	seen := make(map[string]struct{}, limit)
	out := make([]string, 0, limit)
	for _, hit := range hits {
		pmid := hit.Passage.PMID
		if pmid == "" {
			continue
		}
		if _, ok := seen[pmid]; ok {
			continue
		}
		seen[pmid] = struct{}{}
		out = append(out, pmid)
		if len(out) == limit {
			break
		}
	}
	return out
}
