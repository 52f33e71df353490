package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
	"github.com/kirillkom/biomed-literature-assistant/internal/core/ports"
)

const (
	stageNarrowing  = "narrowing"
	stageRestricted = "restricted"
	stageGlobal     = "global"
	stageRerank     = "rerank"
	stageDiversity  = "diversity"
)

// SelectionLimits bounds the diversity stage for one retrieval mode.
type SelectionLimits struct {
	MaxChunksPerArticle int
	TargetReturnSize    int
}

type RetrievalTunables struct {
	AbstractTopN      int
	AbstractFanout    int
	ChunkTopK         int
	Standard          SelectionLimits
	Override          SelectionLimits
	Global            SelectionLimits
	RecencyWeight     float64
	RecencyDecayYears float64
}

func DefaultRetrievalTunables() RetrievalTunables {
	return RetrievalTunables{
		AbstractTopN:      50,
		AbstractFanout:    2,
		ChunkTopK:         80,
		Standard:          SelectionLimits{MaxChunksPerArticle: 3, TargetReturnSize: 15},
		Override:          SelectionLimits{MaxChunksPerArticle: 5, TargetReturnSize: 30},
		Global:            SelectionLimits{MaxChunksPerArticle: 3, TargetReturnSize: 20},
		RecencyWeight:     0.25,
		RecencyDecayYears: 8,
	}
}

func (t RetrievalTunables) normalize() RetrievalTunables {
	def := DefaultRetrievalTunables()
	if t.AbstractTopN <= 0 {
		t.AbstractTopN = def.AbstractTopN
	}
	if t.AbstractFanout <= 0 {
		t.AbstractFanout = def.AbstractFanout
	}
	if t.ChunkTopK <= 0 {
		t.ChunkTopK = def.ChunkTopK
	}
	t.Standard = t.Standard.withDefaults(def.Standard)
	t.Override = t.Override.withDefaults(def.Override)
	t.Global = t.Global.withDefaults(def.Global)
	if t.RecencyWeight < 0 {
		t.RecencyWeight = def.RecencyWeight
	}
	if t.RecencyDecayYears <= 0 {
		t.RecencyDecayYears = def.RecencyDecayYears
	}
	return t
}

func (l SelectionLimits) withDefaults(def SelectionLimits) SelectionLimits {
	if l.MaxChunksPerArticle <= 0 {
		l.MaxChunksPerArticle = def.MaxChunksPerArticle
	}
	if l.TargetReturnSize <= 0 {
		l.TargetReturnSize = def.TargetReturnSize
	}
	return l
}

func (t RetrievalTunables) limitsFor(mode domain.RetrievalMode) SelectionLimits {
	switch mode {
	case domain.ModeOverride:
		return t.Override
	case domain.ModeGlobal:
		return t.Global
	default:
		return t.Standard
	}
}

// RetrievalEngine runs the two-tier search pipeline. It keeps no per-call
// state, so one instance serves concurrent requests.
type RetrievalEngine struct {
	abstracts ports.PassageSearcher
	bodies    ports.PassageSearcher
	tunables  RetrievalTunables
	now       func() time.Time
	logger    *slog.Logger
	observer  ports.RetrievalObserver
}

type RetrievalOption func(*RetrievalEngine)

func WithRetrievalLogger(logger *slog.Logger) RetrievalOption {
	return func(e *RetrievalEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithRetrievalObserver(observer ports.RetrievalObserver) RetrievalOption {
	return func(e *RetrievalEngine) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// WithClock overrides the time source used for the recency bonus.
func WithClock(now func() time.Time) RetrievalOption {
	return func(e *RetrievalEngine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewRetrievalEngine(
	abstracts ports.PassageSearcher,
	bodies ports.PassageSearcher,
	tunables RetrievalTunables,
	opts ...RetrievalOption,
) *RetrievalEngine {
	e := &RetrievalEngine{
		abstracts: abstracts,
		bodies:    bodies,
		tunables:  tunables.normalize(),
		now:       time.Now,
		logger:    slog.Default(),
		observer:  noopRetrievalObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RetrieveRestricted narrows to candidate articles (or explicit PMIDs in the
// raw query) and searches body passages of those articles only.
func (e *RetrievalEngine) RetrieveRestricted(
	ctx context.Context,
	rawQuery string,
	directive domain.SearchDirective,
) (domain.RetrievalResult, error) {
	if result, ok := clarificationFor(directive); ok {
		e.observer.ObserveResult(domain.ModeStandard, result.Kind, 0)
		return result, nil
	}

	query := searchText(rawQuery, directive)
	mode := domain.ModeStandard
	candidates := extractPMIDOverrides(rawQuery)
	if len(candidates) > 0 {
		mode = domain.ModeOverride
		e.logger.Info("retrieval_pmid_override", "pmids", candidates)
	} else {
		var err error
		candidates, err = e.narrowCandidates(ctx, query, directive.Filter)
		if err != nil {
			return domain.RetrievalResult{}, err
		}
		if len(candidates) == 0 {
			return e.finish(mode, nil), nil
		}
	}

	passages, err := e.searchRestricted(ctx, query, candidates)
	if err != nil {
		return domain.RetrievalResult{}, err
	}
	return e.finish(mode, passages), nil
}

// RetrieveGlobal searches the whole body collection, honoring the metadata
// filter. Callers use it as a fallback when the restricted pass was not enough.
func (e *RetrievalEngine) RetrieveGlobal(
	ctx context.Context,
	rawQuery string,
	directive domain.SearchDirective,
) (domain.RetrievalResult, error) {
	if result, ok := clarificationFor(directive); ok {
		e.observer.ObserveResult(domain.ModeGlobal, result.Kind, 0)
		return result, nil
	}

	passages, err := e.searchGlobal(ctx, searchText(rawQuery, directive), directive.Filter)
	if err != nil {
		return domain.RetrievalResult{}, err
	}
	return e.finish(domain.ModeGlobal, passages), nil
}

func (e *RetrievalEngine) finish(mode domain.RetrievalMode, passages []domain.ScoredPassage) domain.RetrievalResult {
	result := domain.RetrievalResult{
		Kind:     domain.ResultPassages,
		Mode:     mode,
		Passages: []domain.ScoredPassage{},
	}
	if len(passages) == 0 {
		e.observer.ObserveResult(mode, result.Kind, 0)
		return result
	}

	started := time.Now()
	ranked := rerankPassages(passages, e.now().Year(), e.tunables.RecencyWeight, e.tunables.RecencyDecayYears)
	e.observer.ObserveStage(stageRerank, time.Since(started), len(ranked))

	started = time.Now()
	result.Passages = selectDiverse(ranked, e.tunables.limitsFor(mode))
	e.observer.ObserveStage(stageDiversity, time.Since(started), len(result.Passages))

	e.observer.ObserveResult(mode, result.Kind, len(result.Passages))
	return result
}

// searchWithFilterFallback retries once without the metadata filter when
// the filtered search fails.
func (e *RetrievalEngine) searchWithFilterFallback(
	ctx context.Context,
	searcher ports.PassageSearcher,
	stage string,
	query string,
	k int,
	filter *domain.MetadataFilter,
) ([]domain.ScoredPassage, error) {
	if filter.IsEmpty() {
		out, err := searcher.Search(ctx, query, k, domain.SearchFilter{})
		if err != nil {
			return nil, domain.WrapError(domain.ErrIndexUnavailable, stage+" search", err)
		}
		return out, nil
	}

	out, err := searcher.Search(ctx, query, k, domain.SearchFilter{Metadata: filter})
	if err == nil {
		return out, nil
	}
	e.logger.Warn("retrieval_filter_retry", "stage", stage, "error", err)
	e.observer.ObserveFilterRetry(stage)

	out, err = searcher.Search(ctx, query, k, domain.SearchFilter{})
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, stage+" unfiltered retry", err)
	}
	return out, nil
}

func clarificationFor(directive domain.SearchDirective) (domain.RetrievalResult, bool) {
	text := strings.TrimSpace(directive.Clarification)
	if text == "" {
		return domain.RetrievalResult{}, false
	}
	return domain.RetrievalResult{
		Kind:          domain.ResultClarification,
		Clarification: text,
		Passages:      []domain.ScoredPassage{},
	}, true
}

func searchText(rawQuery string, directive domain.SearchDirective) string {
	if q := strings.TrimSpace(directive.OptimizedQuery); q != "" {
		return q
	}
	return strings.TrimSpace(rawQuery)
}

type noopRetrievalObserver struct{}

func (noopRetrievalObserver) ObserveStage(string, time.Duration, int) {}
func (noopRetrievalObserver) ObserveFilterRetry(string) {}
func (noopRetrievalObserver) ObserveResult(domain.RetrievalMode, domain.ResultKind, int) {}
