package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

type searchCall struct {
	query  string
	k      int
	filter domain.SearchFilter
}

type searcherFake struct {
	hits        []domain.ScoredPassage
	filteredErr error
	err         error
	calls       []searchCall
}

func (f *searcherFake) Search(_ context.Context, query string, k int, filter domain.SearchFilter) ([]domain.ScoredPassage, error) {
	f.calls = append(f.calls, searchCall{query: query, k: k, filter: filter})
	if filter.Metadata != nil && f.filteredErr != nil {
		return nil, f.filteredErr
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(filter.PMIDs) == 0 {
		return f.hits, nil
	}
	allowed := make(map[string]struct{}, len(filter.PMIDs))
	for _, pmid := range filter.PMIDs {
		allowed[pmid] = struct{}{}
	}
	out := make([]domain.ScoredPassage, 0, len(f.hits))
	for _, hit := range f.hits {
		if _, ok := allowed[hit.Passage.PMID]; ok {
			out = append(out, hit)
		}
	}
	return out, nil
}

type observerFake struct {
	filterRetries []string
	results       []domain.RetrievalMode
}

func (f *observerFake) ObserveStage(string, time.Duration, int) {}
func (f *observerFake) ObserveFilterRetry(stage string) {
	f.filterRetries = append(f.filterRetries, stage)
}
func (f *observerFake) ObserveResult(mode domain.RetrievalMode, _ domain.ResultKind, _ int) {
	f.results = append(f.results, mode)
}

var fixedNow = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

func scored(pmid, header string, year int, base float64, types ...string) domain.ScoredPassage {
	return domain.ScoredPassage{
		Passage: domain.Passage{
			PMID:       pmid,
			Section:    domain.SectionBody,
			HeaderPath: header,
			Text:       pmid + " " + header,
			Metadata: domain.ArticleMetadata{
				PMID:             pmid,
				PubYear:          year,
				PublicationTypes: types,
			},
		},
		BaseScore: base,
	}
}

func abstractHit(pmid string, base float64) domain.ScoredPassage {
	p := scored(pmid, "", 0, base)
	p.Passage.Section = domain.SectionAbstract
	return p
}

func newTestEngine(abstracts, bodies *searcherFake, tunables RetrievalTunables, opts ...RetrievalOption) *RetrievalEngine {
	opts = append([]RetrievalOption{
		WithClock(func() time.Time { return fixedNow }),
		WithRetrievalLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return NewRetrievalEngine(abstracts, bodies, tunables, opts...)
}

func pmidsOf(passages []domain.ScoredPassage) []string {
	out := make([]string, 0, len(passages))
	for _, p := range passages {
		out = append(out, p.Passage.PMID)
	}
	return out
}

func TestRetrieveRestrictedClarificationSkipsSearch(t *testing.T) {
	abstracts := &searcherFake{hits: []domain.ScoredPassage{abstractHit("1111111", 0.9)}}
	bodies := &searcherFake{}
	engine := newTestEngine(abstracts, bodies, DefaultRetrievalTunables())

	result, err := engine.RetrieveRestricted(context.Background(), "what does APC do?", domain.SearchDirective{
		Clarification: "APC could mean the APC gene or antigen-presenting cells.",
	})
	if err != nil {
		t.Fatalf("RetrieveRestricted() error = %v", err)
	}
	if result.Kind != domain.ResultClarification {
		t.Fatalf("expected clarification result, got %s", result.Kind)
	}
	if result.Clarification != "APC could mean the APC gene or antigen-presenting cells." {
		t.Fatalf("unexpected clarification text %q", result.Clarification)
	}
	if len(result.Passages) != 0 {
		t.Fatalf("expected no passages, got %d", len(result.Passages))
	}
	if len(abstracts.calls) != 0 || len(bodies.calls) != 0 {
		t.Fatalf("expected no searches, got abstracts=%d bodies=%d", len(abstracts.calls), len(bodies.calls))
	}
}

func TestRetrieveGlobalClarificationSkipsSearch(t *testing.T) {
	bodies := &searcherFake{}
	engine := newTestEngine(&searcherFake{}, bodies, DefaultRetrievalTunables())

	result, err := engine.RetrieveGlobal(context.Background(), "q", domain.SearchDirective{Clarification: "which HHT type?"})
	if err != nil {
		t.Fatalf("RetrieveGlobal() error = %v", err)
	}
	if !result.IsClarification() {
		t.Fatalf("expected clarification, got %s", result.Kind)
	}
	if len(bodies.calls) != 0 {
		t.Fatalf("expected no body search, got %d", len(bodies.calls))
	}
}

func TestRetrieveRestrictedPMIDOverrideSkipsNarrowing(t *testing.T) {
	abstracts := &searcherFake{hits: []domain.ScoredPassage{abstractHit("9999999", 0.9)}}
	bodies := &searcherFake{hits: []domain.ScoredPassage{
		scored("1234567", "Results", 2020, 0.8),
		scored("7654321", "Methods", 2021, 0.7),
		scored("9999999", "Results", 2022, 0.9),
	}}
	engine := newTestEngine(abstracts, bodies, DefaultRetrievalTunables())

	result, err := engine.RetrieveRestricted(context.Background(), "Summarize PMID: 1234567 and PMID:7654321", domain.SearchDirective{
		OptimizedQuery: "summary of findings",
	})
	if err != nil {
		t.Fatalf("RetrieveRestricted() error = %v", err)
	}
	if len(abstracts.calls) != 0 {
		t.Fatalf("expected stage 1 to be skipped, got %d calls", len(abstracts.calls))
	}
	if len(bodies.calls) != 1 {
		t.Fatalf("expected one body search, got %d", len(bodies.calls))
	}
	if want := []string{"1234567", "7654321"}; !reflect.DeepEqual(bodies.calls[0].filter.PMIDs, want) {
		t.Fatalf("expected candidate set %v, got %v", want, bodies.calls[0].filter.PMIDs)
	}
	if bodies.calls[0].query != "summary of findings" {
		t.Fatalf("expected optimized query, got %q", bodies.calls[0].query)
	}
	if result.Mode != domain.ModeOverride {
		t.Fatalf("expected override mode, got %s", result.Mode)
	}
	if got := pmidsOf(result.Passages); !reflect.DeepEqual(got, []string{"1234567", "7654321"}) {
		t.Fatalf("unexpected passages %v", got)
	}
}

func TestRetrieveRestrictedOverrideUsesOverrideLimits(t *testing.T) {
	hits := make([]domain.ScoredPassage, 0, 8)
	for i := 0; i < 8; i++ {
		hits = append(hits, scored("1234567", "Results", 2020, 0.9-float64(i)*0.01))
	}
	engine := newTestEngine(&searcherFake{}, &searcherFake{hits: hits}, DefaultRetrievalTunables())

	result, err := engine.RetrieveRestricted(context.Background(), "pmid 1234567", domain.SearchDirective{})
	if err != nil {
		t.Fatalf("RetrieveRestricted() error = %v", err)
	}
	if len(result.Passages) != 5 {
		t.Fatalf("expected 5 passages under override cap, got %d", len(result.Passages))
	}
}

func TestRetrieveRestrictedNoCandidatesSkipsDeepSearch(t *testing.T) {
	bodies := &searcherFake{hits: []domain.ScoredPassage{scored("1111111", "Results", 2020, 0.5)}}
	engine := newTestEngine(&searcherFake{}, bodies, DefaultRetrievalTunables())

	result, err := engine.RetrieveRestricted(context.Background(), "rare query", domain.SearchDirective{})
	if err != nil {
		t.Fatalf("RetrieveRestricted() error = %v", err)
	}
	if !result.IsEmpty() {
		t.Fatalf("expected empty passage result, got kind=%s len=%d", result.Kind, len(result.Passages))
	}
	if len(bodies.calls) != 0 {
		t.Fatalf("expected stage 2 not to run, got %d calls", len(bodies.calls))
	}
}

func TestRetrieveRestrictedNarrowingDedupesAndTruncates(t *testing.T) {
	abstracts := &searcherFake{hits: []domain.ScoredPassage{
		abstractHit("3000003", 0.9),
		abstractHit("1000001", 0.8),
		abstractHit("3000003", 0.7),
		abstractHit("", 0.6),
		abstractHit("2000002", 0.5),
		abstractHit("4000004", 0.4),
	}}
	bodies := &searcherFake{}
	tunables := DefaultRetrievalTunables()
	tunables.AbstractTopN = 3
	tunables.AbstractFanout = 2
	tunables.ChunkTopK = 7
	engine := newTestEngine(abstracts, bodies, tunables)

	if _, err := engine.RetrieveRestricted(context.Background(), "  raw query  ", domain.SearchDirective{}); err != nil {
		t.Fatalf("RetrieveRestricted() error = %v", err)
	}
	if abstracts.calls[0].k != 6 {
		t.Fatalf("expected stage 1 k=6, got %d", abstracts.calls[0].k)
	}
	if abstracts.calls[0].query != "raw query" {
		t.Fatalf("expected raw query fallback, got %q", abstracts.calls[0].query)
	}
	if bodies.calls[0].k != 7 {
		t.Fatalf("expected stage 2 k=7, got %d", bodies.calls[0].k)
	}
	if want := []string{"3000003", "1000001", "2000002"}; !reflect.DeepEqual(bodies.calls[0].filter.PMIDs, want) {
		t.Fatalf("expected candidates %v, got %v", want, bodies.calls[0].filter.PMIDs)
	}
	if bodies.calls[0].filter.Metadata != nil {
		t.Fatalf("expected restricted search without metadata filter")
	}
}

func TestRetrieveRestrictedFilterFailureMatchesUnfilteredSearch(t *testing.T) {
	year := 2021
	filter := &domain.MetadataFilter{PublicationYear: &year}
	abstractHits := []domain.ScoredPassage{abstractHit("1000001", 0.9), abstractHit("2000002", 0.8)}
	bodyHits := []domain.ScoredPassage{
		scored("1000001", "Introduction", 2010, 0.9),
		scored("2000002", "Results", 2020, 0.5, "Randomized Controlled Trial"),
	}

	observer := &observerFake{}
	failing := &searcherFake{hits: abstractHits, filteredErr: errors.New("bad request: unknown field")}
	filtered := newTestEngine(failing, &searcherFake{hits: bodyHits}, DefaultRetrievalTunables(), WithRetrievalObserver(observer))
	got, err := filtered.RetrieveRestricted(context.Background(), "q", domain.SearchDirective{Filter: filter})
	if err != nil {
		t.Fatalf("RetrieveRestricted() error = %v", err)
	}

	plain := newTestEngine(&searcherFake{hits: abstractHits}, &searcherFake{hits: bodyHits}, DefaultRetrievalTunables())
	want, err := plain.RetrieveRestricted(context.Background(), "q", domain.SearchDirective{})
	if err != nil {
		t.Fatalf("RetrieveRestricted() unfiltered error = %v", err)
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected retry result to equal unfiltered result\n got: %+v\nwant: %+v", got, want)
	}
	if len(failing.calls) != 2 || failing.calls[0].filter.Metadata == nil || failing.calls[1].filter.Metadata != nil {
		t.Fatalf("expected filtered call then unfiltered retry, got %+v", failing.calls)
	}
	if !reflect.DeepEqual(observer.filterRetries, []string{stageNarrowing}) {
		t.Fatalf("expected one narrowing retry, got %v", observer.filterRetries)
	}
}

func TestRetrieveRestrictedRetryFailureIsIndexUnavailable(t *testing.T) {
	human := true
	abstracts := &searcherFake{err: errors.New("connection refused")}
	bodies := &searcherFake{}
	engine := newTestEngine(abstracts, bodies, DefaultRetrievalTunables())

	_, err := engine.RetrieveRestricted(context.Background(), "q", domain.SearchDirective{
		Filter: &domain.MetadataFilter{IsHuman: &human},
	})
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected index unavailable, got %v", err)
	}
	if len(abstracts.calls) != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", len(abstracts.calls))
	}
	if len(bodies.calls) != 0 {
		t.Fatalf("expected stage 2 not to run")
	}
}

func TestRetrieveRestrictedUnfilteredFailureDoesNotRetry(t *testing.T) {
	abstracts := &searcherFake{err: errors.New("timeout")}
	engine := newTestEngine(abstracts, &searcherFake{}, DefaultRetrievalTunables())

	_, err := engine.RetrieveRestricted(context.Background(), "q", domain.SearchDirective{Filter: &domain.MetadataFilter{}})
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected index unavailable, got %v", err)
	}
	if len(abstracts.calls) != 1 {
		t.Fatalf("expected a single call for an empty filter, got %d", len(abstracts.calls))
	}
}

func TestRetrieveRestrictedDeepSearchErrorPropagates(t *testing.T) {
	abstracts := &searcherFake{hits: []domain.ScoredPassage{abstractHit("1000001", 0.9)}}
	bodies := &searcherFake{err: errors.New("503 from index")}
	engine := newTestEngine(abstracts, bodies, DefaultRetrievalTunables())

	_, err := engine.RetrieveRestricted(context.Background(), "q", domain.SearchDirective{})
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected index unavailable, got %v", err)
	}
	if len(bodies.calls) != 1 {
		t.Fatalf("expected no retry of restricted search, got %d calls", len(bodies.calls))
	}
}

func TestRetrieveGlobalSearchesWholeCollectionWithFilter(t *testing.T) {
	author := "Shovlin"
	filter := &domain.MetadataFilter{FirstAuthorLastName: author}
	abstracts := &searcherFake{}
	bodies := &searcherFake{hits: []domain.ScoredPassage{
		scored("1000001", "Results", 2020, 0.5),
		scored("2000002", "Discussion", 2020, 0.5),
	}}
	tunables := DefaultRetrievalTunables()
	tunables.ChunkTopK = 40
	engine := newTestEngine(abstracts, bodies, tunables)

	result, err := engine.RetrieveGlobal(context.Background(), "PMID: 1234567 epistaxis", domain.SearchDirective{Filter: filter})
	if err != nil {
		t.Fatalf("RetrieveGlobal() error = %v", err)
	}
	if len(abstracts.calls) != 0 {
		t.Fatalf("expected no abstract search in global mode")
	}
	if len(bodies.calls) != 1 {
		t.Fatalf("expected one body search, got %d", len(bodies.calls))
	}
	call := bodies.calls[0]
	if call.k != 80 {
		t.Fatalf("expected k=80, got %d", call.k)
	}
	if call.filter.Metadata != filter || len(call.filter.PMIDs) != 0 {
		t.Fatalf("expected metadata filter without PMID restriction, got %+v", call.filter)
	}
	if result.Mode != domain.ModeGlobal {
		t.Fatalf("expected global mode, got %s", result.Mode)
	}
	if got := pmidsOf(result.Passages); !reflect.DeepEqual(got, []string{"1000001", "2000002"}) {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestRetrieveGlobalFilterFailureRetriesOnce(t *testing.T) {
	animal := false
	bodies := &searcherFake{
		hits:        []domain.ScoredPassage{scored("1000001", "Results", 2020, 0.5)},
		filteredErr: errors.New("unsupported filter"),
	}
	engine := newTestEngine(&searcherFake{}, bodies, DefaultRetrievalTunables())

	result, err := engine.RetrieveGlobal(context.Background(), "q", domain.SearchDirective{
		Filter: &domain.MetadataFilter{IsAnimal: &animal},
	})
	if err != nil {
		t.Fatalf("RetrieveGlobal() error = %v", err)
	}
	if len(bodies.calls) != 2 {
		t.Fatalf("expected filtered call plus retry, got %d", len(bodies.calls))
	}
	if len(result.Passages) != 1 {
		t.Fatalf("expected 1 passage, got %d", len(result.Passages))
	}
}

func TestRetrieveRestrictedEnforcesDiversityAndSize(t *testing.T) {
	abstractHits := make([]domain.ScoredPassage, 0, 10)
	bodyHits := make([]domain.ScoredPassage, 0, 60)
	for a := 0; a < 10; a++ {
		pmid := fmt.Sprintf("%07d", 1000000+a)
		abstractHits = append(abstractHits, abstractHit(pmid, 0.9))
		for c := 0; c < 6; c++ {
			bodyHits = append(bodyHits, scored(pmid, "Results", 2020, 0.9-float64(c)*0.01))
		}
	}
	engine := newTestEngine(&searcherFake{hits: abstractHits}, &searcherFake{hits: bodyHits}, DefaultRetrievalTunables())

	result, err := engine.RetrieveRestricted(context.Background(), "q", domain.SearchDirective{})
	if err != nil {
		t.Fatalf("RetrieveRestricted() error = %v", err)
	}
	if len(result.Passages) != 15 {
		t.Fatalf("expected target size 15, got %d", len(result.Passages))
	}
	counts := map[string]int{}
	for _, p := range result.Passages {
		counts[p.Passage.PMID]++
		if counts[p.Passage.PMID] > 3 {
			t.Fatalf("article %s exceeded per-article cap", p.Passage.PMID)
		}
	}
}

func TestRetrieveRestrictedKeepsBaseAndRerankScores(t *testing.T) {
	abstracts := &searcherFake{hits: []domain.ScoredPassage{abstractHit("1000001", 0.9), abstractHit("2000002", 0.8)}}
	bodies := &searcherFake{hits: []domain.ScoredPassage{
		scored("1000001", "Introduction", 0, 0.95),
		scored("2000002", "Results", 0, 0.40, "Meta-Analysis"),
	}}
	engine := newTestEngine(abstracts, bodies, DefaultRetrievalTunables())

	result, err := engine.RetrieveRestricted(context.Background(), "q", domain.SearchDirective{})
	if err != nil {
		t.Fatalf("RetrieveRestricted() error = %v", err)
	}
	if result.Passages[0].Passage.PMID != "2000002" {
		t.Fatalf("expected meta-analysis result first, got %s", result.Passages[0].Passage.PMID)
	}
	if result.Passages[0].BaseScore != 0.40 {
		t.Fatalf("expected base score retained, got %v", result.Passages[0].BaseScore)
	}
	if !almostEqual(result.Passages[0].RerankScore, 0.40+1.00+1.5) {
		t.Fatalf("unexpected rerank score %v", result.Passages[0].RerankScore)
	}
	if !almostEqual(result.Passages[1].RerankScore, 0.95+0.60-0.5) {
		t.Fatalf("unexpected rerank score %v", result.Passages[1].RerankScore)
	}
}

func TestNewRetrievalEngineNormalizesTunables(t *testing.T) {
	engine := NewRetrievalEngine(&searcherFake{}, &searcherFake{}, RetrievalTunables{})
	if !reflect.DeepEqual(engine.tunables, DefaultRetrievalTunables()) {
		t.Fatalf("expected defaults, got %+v", engine.tunables)
	}
}
