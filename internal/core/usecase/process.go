package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
	"github.com/kirillkom/biomed-literature-assistant/internal/core/ports"
)

const (
	defaultBodyWorkers  = 5
	defaultMinBodyChars = 500
	abstractHeaderPath  = "Abstract"
)

var errBodyUnavailable = errors.New("full-text body unavailable or too short")

type ProcessArticlesUseCase struct {
	repo         ports.ArticleRepository
	source       ports.ArticleSource
	extractor    ports.BodyExtractor
	chunker      ports.Chunker
	embedder     ports.Embedder
	abstracts    ports.PassageIndexer
	bodies       ports.PassageIndexer
	storage      ports.ObjectStorage
	pool         *ants.Pool
	minBodyChars int
	logger       *slog.Logger
}

type ProcessOption func(*ProcessArticlesUseCase)

func WithProcessLogger(logger *slog.Logger) ProcessOption {
	return func(uc *ProcessArticlesUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

// WithMinBodyChars sets the shortest cleaned body that still counts as full text.
func WithMinBodyChars(n int) ProcessOption {
	return func(uc *ProcessArticlesUseCase) {
		if n > 0 {
			uc.minBodyChars = n
		}
	}
}

func NewProcessArticlesUseCase(
	repo ports.ArticleRepository,
	source ports.ArticleSource,
	extractor ports.BodyExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	abstracts ports.PassageIndexer,
	bodies ports.PassageIndexer,
	storage ports.ObjectStorage,
	workers int,
	opts ...ProcessOption,
) (*ProcessArticlesUseCase, error) {
	if workers <= 0 {
		workers = defaultBodyWorkers
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create body fetch pool: %w", err)
	}

	uc := &ProcessArticlesUseCase{
		repo:         repo,
		source:       source,
		extractor:    extractor,
		chunker:      chunker,
		embedder:     embedder,
		abstracts:    abstracts,
		bodies:       bodies,
		storage:      storage,
		pool:         pool,
		minBodyChars: defaultMinBodyChars,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc, nil
}

func (uc *ProcessArticlesUseCase) Release() {
	if uc.pool != nil {
		uc.pool.Release()
	}
}

// ProcessBatch fetches, chunks, embeds and indexes a batch of articles.
// A failing article is marked failed without stopping the rest of the batch.
func (uc *ProcessArticlesUseCase) ProcessBatch(ctx context.Context, pmids []string) error {
	if len(pmids) == 0 {
		return nil
	}
	for _, pmid := range pmids {
		if err := uc.repo.UpdateStatus(ctx, pmid, domain.StatusProcessing, ""); err != nil {
			return fmt.Errorf("set status=processing for %s: %w", pmid, err)
		}
	}

	records, err := uc.source.FetchRecords(ctx, pmids)
	if err != nil {
		err = fmt.Errorf("fetch pubmed records: %w", err)
		return errors.Join(err, uc.markAllFailed(ctx, pmids, err))
	}

	links, err := uc.source.LinkFullText(ctx, pmids)
	if err != nil {
		uc.logger.Warn("article_pmc_link_failed", "pmids", len(pmids), "error", err)
		links = map[string]string{}
	}

	bodies := uc.fetchBodies(ctx, links)

	var errs []error
	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		pmid := record.Metadata.PMID
		seen[pmid] = struct{}{}
		record.PMCID = links[pmid]
		body, ok := bodies[pmid]
		if !ok {
			uc.logger.Info("article_skipped", "pmid", pmid, "reason", errBodyUnavailable.Error())
			if err := uc.repo.UpdateStatus(ctx, pmid, domain.StatusSkipped, errBodyUnavailable.Error()); err != nil {
				errs = append(errs, fmt.Errorf("set status=skipped for %s: %w", pmid, err))
			}
			continue
		}
		record.Body = body

		if err := uc.processRecord(ctx, record); err != nil {
			err = fmt.Errorf("process article %s: %w", pmid, err)
			errs = append(errs, err, uc.markFailed(ctx, pmid, err))
		}
	}

	for _, pmid := range pmids {
		if _, ok := seen[pmid]; ok {
			continue
		}
		err := domain.WrapError(domain.ErrArticleNotFound, "fetch pubmed records", fmt.Errorf("pmid %s", pmid))
		errs = append(errs, err, uc.markFailed(ctx, pmid, err))
	}
	return errors.Join(errs...)
}

// fetchBodies downloads and cleans full texts on the bounded pool. Each
// task's failure only drops that article's body.
func (uc *ProcessArticlesUseCase) fetchBodies(ctx context.Context, links map[string]string) map[string]string {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		bodies = make(map[string]string, len(links))
	)
	for pmid, pmcid := range links {
		wg.Add(1)
		err := uc.pool.Submit(func() {
			defer wg.Done()
			body, err := uc.fetchBody(ctx, pmcid)
			if err != nil {
				uc.logger.Warn("article_body_failed", "pmid", pmid, "pmcid", pmcid, "error", err)
				return
			}
			mu.Lock()
			bodies[pmid] = body
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			uc.logger.Warn("article_body_submit_failed", "pmid", pmid, "error", err)
		}
	}
	wg.Wait()
	return bodies
}

func (uc *ProcessArticlesUseCase) fetchBody(ctx context.Context, pmcid string) (string, error) {
	raw, err := uc.source.FetchFullText(ctx, pmcid)
	if err != nil {
		return "", fmt.Errorf("fetch full text: %w", err)
	}
	body, err := uc.extractor.Extract(raw)
	if err != nil {
		return "", fmt.Errorf("clean full text: %w", err)
	}
	if utf8.RuneCountInString(body) < uc.minBodyChars {
		return "", errBodyUnavailable
	}
	return body, nil
}

func (uc *ProcessArticlesUseCase) processRecord(ctx context.Context, record domain.ArticleRecord) error {
	abstractPassages := uc.abstractPassages(record)
	bodyPassages := uc.bodyPassages(record)
	if len(bodyPassages) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "chunk body", errors.New("chunking produced zero passages"))
	}

	key, err := uc.archive(ctx, record)
	if err != nil {
		return err
	}
	if err := uc.index(ctx, uc.abstracts, abstractPassages); err != nil {
		return fmt.Errorf("index abstract: %w", err)
	}
	if err := uc.index(ctx, uc.bodies, bodyPassages); err != nil {
		return fmt.Errorf("index body: %w", err)
	}

	now := time.Now().UTC()
	meta := record.Metadata
	article := &domain.Article{
		PMID:        meta.PMID,
		PMCID:       record.PMCID,
		Title:       meta.Title,
		Journal:     meta.Journal,
		PubYear:     meta.PubYear,
		StoragePath: key,
		Chunks:      len(abstractPassages) + len(bodyPassages),
		Status:      domain.StatusReady,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Upsert(ctx, article); err != nil {
		return fmt.Errorf("save article state: %w", err)
	}
	uc.logger.Info("article_indexed", "pmid", meta.PMID, "abstract_passages", len(abstractPassages), "body_passages", len(bodyPassages))
	return nil
}

func (uc *ProcessArticlesUseCase) abstractPassages(record domain.ArticleRecord) []domain.Passage {
	out := make([]domain.Passage, 0, 2)
	for _, text := range uc.chunker.Split(record.Abstract) {
		out = append(out, newPassage(record.Metadata, domain.SectionAbstract, abstractHeaderPath, text, len(out)))
	}
	return out
}

func (uc *ProcessArticlesUseCase) bodyPassages(record domain.ArticleRecord) []domain.Passage {
	out := make([]domain.Passage, 0, 16)
	for _, section := range uc.chunker.SplitSections(record.Body) {
		for _, text := range uc.chunker.Split(section.Text) {
			out = append(out, newPassage(record.Metadata, domain.SectionBody, section.HeaderPath, text, len(out)))
		}
	}
	return out
}

// newPassage derives a stable ID so re-ingesting an article overwrites its points.
func newPassage(meta domain.ArticleMetadata, section domain.SectionKind, header, text string, index int) domain.Passage {
	name := fmt.Sprintf("%s/%s/%d", meta.PMID, section, index)
	return domain.Passage{
		ID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String(),
		PMID:       meta.PMID,
		Section:    section,
		HeaderPath: header,
		Text:       text,
		Metadata:   meta,
	}
}

func (uc *ProcessArticlesUseCase) archive(ctx context.Context, record domain.ArticleRecord) (string, error) {
	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode article record: %w", err)
	}
	key := fmt.Sprintf("records/%s.json", record.Metadata.PMID)
	if err := uc.storage.Save(ctx, key, bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("archive article record: %w", err)
	}
	return key, nil
}

func (uc *ProcessArticlesUseCase) index(ctx context.Context, indexer ports.PassageIndexer, passages []domain.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		texts = append(texts, p.Text)
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed passages: %w", err)
	}
	if len(vectors) != len(passages) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embed passages",
			fmt.Errorf("vectors/passages mismatch: %d/%d", len(vectors), len(passages)),
		)
	}
	if err := indexer.Upsert(ctx, passages, vectors); err != nil {
		return fmt.Errorf("upsert passages: %w", err)
	}
	return nil
}

func (uc *ProcessArticlesUseCase) markFailed(ctx context.Context, pmid string, processErr error) error {
	if err := uc.repo.UpdateStatus(ctx, pmid, domain.StatusFailed, processErr.Error()); err != nil {
		return fmt.Errorf("mark %s failed: %w", pmid, err)
	}
	return nil
}

func (uc *ProcessArticlesUseCase) markAllFailed(ctx context.Context, pmids []string, processErr error) error {
	var errs []error
	for _, pmid := range pmids {
		errs = append(errs, uc.markFailed(ctx, pmid, processErr))
	}
	return errors.Join(errs...)
}
