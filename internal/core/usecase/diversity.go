package usecase

import "github.com/kirillkom/biomed-literature-assistant/internal/core/domain"

// selectDiverse admits passages in rank order while their article is under
// the per-article cap, stopping at the target size.
func selectDiverse(ranked []domain.ScoredPassage, limits SelectionLimits) []domain.ScoredPassage {
	target := limits.TargetReturnSize
	if target > len(ranked) {
		target = len(ranked)
	}
	out := make([]domain.ScoredPassage, 0, target)
	perArticle := make(map[string]int)
	for _, p := range ranked {
		if len(out) >= limits.TargetReturnSize {
			break
		}
		if perArticle[p.Passage.PMID] >= limits.MaxChunksPerArticle {
			continue
		}
		perArticle[p.Passage.PMID]++
		out = append(out, p)
	}
	return out
}
