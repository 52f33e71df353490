package qdrant

import (
	"context"
	"fmt"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
	"github.com/kirillkom/biomed-literature-assistant/internal/core/ports"
)

// Searcher answers text queries against one collection by embedding the
// query first.
type Searcher struct {
	client   *Client
	embedder ports.Embedder
}

func NewSearcher(client *Client, embedder ports.Embedder) *Searcher {
	return &Searcher{client: client, embedder: embedder}
}

func (s *Searcher) Search(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.ScoredPassage, error) {
	if k <= 0 {
		return []domain.ScoredPassage{}, nil
	}
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	out, err := s.client.SearchVector(ctx, vector, k, filter)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.client.Collection(), err)
	}
	return out, nil
}
