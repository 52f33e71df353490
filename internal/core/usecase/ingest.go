package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
	"github.com/kirillkom/biomed-literature-assistant/internal/core/ports"
)

const (
	defaultIngestLimit     = 10
	defaultIngestBatchSize = 20
)

type IngestArticlesUseCase struct {
	repo      ports.ArticleRepository
	source    ports.ArticleSource
	queue     ports.MessageQueue
	batchSize int
	now       func() time.Time
}

func NewIngestArticlesUseCase(
	repo ports.ArticleRepository,
	source ports.ArticleSource,
	queue ports.MessageQueue,
	batchSize int,
) *IngestArticlesUseCase {
	if batchSize <= 0 {
		batchSize = defaultIngestBatchSize
	}
	return &IngestArticlesUseCase{
		repo:      repo,
		source:    source,
		queue:     queue,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Submit resolves the requested articles, records them as queued and
// publishes them in batches. Articles already indexed are skipped.
func (uc *IngestArticlesUseCase) Submit(ctx context.Context, req domain.IngestRequest) (*domain.IngestReceipt, error) {
	pmids, err := normalizePMIDs(req.PMIDs)
	if err != nil {
		return nil, err
	}

	keywords := nonEmpty(req.Keywords)
	if len(keywords) > 0 {
		limit := req.Limit
		if limit <= 0 {
			limit = defaultIngestLimit
		}
		found, err := uc.source.SearchKeywords(ctx, keywords, limit)
		if err != nil {
			return nil, fmt.Errorf("search pubmed: %w", err)
		}
		pmids = appendUnique(pmids, found)
	}
	if len(pmids) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit ingestion", errors.New("no articles selected"))
	}

	receipt := &domain.IngestReceipt{Queued: []string{}, Skipped: []string{}}
	now := uc.now().UTC()
	for _, pmid := range pmids {
		existing, err := uc.repo.GetByPMID(ctx, pmid)
		switch {
		case err == nil && existing.Status == domain.StatusReady:
			receipt.Skipped = append(receipt.Skipped, pmid)
			continue
		case err != nil && !domain.IsKind(err, domain.ErrArticleNotFound):
			return nil, fmt.Errorf("load article %s: %w", pmid, err)
		}

		article := &domain.Article{PMID: pmid, Status: domain.StatusQueued, CreatedAt: now, UpdatedAt: now}
		if err := uc.repo.Upsert(ctx, article); err != nil {
			return nil, fmt.Errorf("record article %s: %w", pmid, err)
		}
		receipt.Queued = append(receipt.Queued, pmid)
	}

	for start := 0; start < len(receipt.Queued); start += uc.batchSize {
		end := min(start+uc.batchSize, len(receipt.Queued))
		if err := uc.queue.PublishArticlesQueued(ctx, receipt.Queued[start:end]); err != nil {
			return nil, fmt.Errorf("publish ingestion batch: %w", err)
		}
	}
	return receipt, nil
}

func normalizePMIDs(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		pmid := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(item)), "PMID:")
		pmid = strings.TrimSpace(pmid)
		if pmid == "" {
			continue
		}
		if !isDigits(pmid) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "submit ingestion", fmt.Errorf("invalid pmid %q", item))
		}
		out = appendUnique(out, []string{pmid})
	}
	return out, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func appendUnique(dst []string, items []string) []string {
	for _, item := range items {
		dup := false
		for _, existing := range dst {
			if existing == item {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, item)
		}
	}
	return dst
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
