package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

type parserFake struct {
	directive domain.SearchDirective
	err       error
	calls     int
}

func (f *parserFake) ParseQuery(context.Context, string) (domain.SearchDirective, error) {
	f.calls++
	if f.err != nil {
		return domain.SearchDirective{}, f.err
	}
	return f.directive, nil
}

type retrieverFake struct {
	restricted    domain.RetrievalResult
	global        domain.RetrievalResult
	restrictedErr error
	globalErr     error
	directives    []domain.SearchDirective
	globalCalls   int
}

func (f *retrieverFake) RetrieveRestricted(_ context.Context, _ string, d domain.SearchDirective) (domain.RetrievalResult, error) {
	f.directives = append(f.directives, d)
	return f.restricted, f.restrictedErr
}

func (f *retrieverFake) RetrieveGlobal(_ context.Context, _ string, d domain.SearchDirective) (domain.RetrievalResult, error) {
	f.directives = append(f.directives, d)
	f.globalCalls++
	return f.global, f.globalErr
}

type generatorFake struct {
	responses []string
	err       error
	seen      [][]domain.ScoredPassage
}

func (f *generatorFake) GenerateAnswer(_ context.Context, _ string, passages []domain.ScoredPassage) (string, error) {
	f.seen = append(f.seen, passages)
	if f.err != nil {
		return "", f.err
	}
	out := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return out, nil
}

func passagesResult(mode domain.RetrievalMode, pmids ...string) domain.RetrievalResult {
	out := domain.RetrievalResult{Kind: domain.ResultPassages, Mode: mode, Passages: []domain.ScoredPassage{}}
	for _, pmid := range pmids {
		out.Passages = append(out.Passages, scored(pmid, "Results", 2020, 0.5))
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAnswerUsesRestrictedResult(t *testing.T) {
	retriever := &retrieverFake{restricted: passagesResult(domain.ModeStandard, "1000001")}
	generator := &generatorFake{responses: []string{"Bevacizumab reduces epistaxis (Smith, 2022) [PMID: 1000001]."}}
	uc := NewAnswerUseCase(&parserFake{directive: domain.SearchDirective{OptimizedQuery: "bevacizumab epistaxis"}}, retriever, generator, WithAnswerLogger(quietLogger()))

	answer, err := uc.Answer(context.Background(), "does bevacizumab help?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.UsedGlobal {
		t.Fatalf("expected no global fallback")
	}
	if retriever.globalCalls != 0 {
		t.Fatalf("expected no global retrieval, got %d", retriever.globalCalls)
	}
	if len(answer.Sources) != 1 || answer.Sources[0].Passage.PMID != "1000001" {
		t.Fatalf("unexpected sources %+v", answer.Sources)
	}
	if retriever.directives[0].OptimizedQuery != "bevacizumab epistaxis" {
		t.Fatalf("expected parsed directive to reach retrieval")
	}
}

func TestAnswerReturnsClarificationVerbatim(t *testing.T) {
	retriever := &retrieverFake{restricted: domain.RetrievalResult{Kind: domain.ResultClarification, Clarification: "Which APC do you mean?"}}
	generator := &generatorFake{responses: []string{"unused"}}
	uc := NewAnswerUseCase(&parserFake{}, retriever, generator, WithAnswerLogger(quietLogger()))

	answer, err := uc.Answer(context.Background(), "APC function")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !answer.Clarification || answer.Text != "Which APC do you mean?" {
		t.Fatalf("unexpected answer %+v", answer)
	}
	if len(generator.seen) != 0 || retriever.globalCalls != 0 {
		t.Fatalf("expected no generation and no global retrieval")
	}
}

func TestAnswerFallsBackToGlobalWhenRestrictedEmpty(t *testing.T) {
	retriever := &retrieverFake{
		restricted: passagesResult(domain.ModeStandard),
		global:     passagesResult(domain.ModeGlobal, "2000002"),
	}
	generator := &generatorFake{responses: []string{"global answer [PMID: 2000002]"}}
	uc := NewAnswerUseCase(&parserFake{}, retriever, generator, WithAnswerLogger(quietLogger()))

	answer, err := uc.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !answer.UsedGlobal || retriever.globalCalls != 1 {
		t.Fatalf("expected one global fallback, got used=%v calls=%d", answer.UsedGlobal, retriever.globalCalls)
	}
	if answer.Text != "global answer [PMID: 2000002]" {
		t.Fatalf("unexpected text %q", answer.Text)
	}
}

func TestAnswerFallsBackToGlobalOnInsufficientEvidence(t *testing.T) {
	retriever := &retrieverFake{
		restricted: passagesResult(domain.ModeStandard, "1000001"),
		global:     passagesResult(domain.ModeGlobal, "2000002"),
	}
	generator := &generatorFake{responses: []string{domain.InsufficientEvidenceAnswer, "better answer"}}
	uc := NewAnswerUseCase(&parserFake{}, retriever, generator, WithAnswerLogger(quietLogger()))

	answer, err := uc.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Text != "better answer" || !answer.UsedGlobal {
		t.Fatalf("unexpected answer %+v", answer)
	}
	if len(generator.seen) != 2 || generator.seen[1][0].Passage.PMID != "2000002" {
		t.Fatalf("expected second generation over global passages")
	}
}

func TestAnswerKeepsFirstAnswerWhenGlobalEmpty(t *testing.T) {
	retriever := &retrieverFake{
		restricted: passagesResult(domain.ModeStandard, "1000001"),
		global:     passagesResult(domain.ModeGlobal),
	}
	generator := &generatorFake{responses: []string{domain.InsufficientEvidenceAnswer}}
	uc := NewAnswerUseCase(&parserFake{}, retriever, generator, WithAnswerLogger(quietLogger()))

	answer, err := uc.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Text != domain.InsufficientEvidenceAnswer || answer.UsedGlobal {
		t.Fatalf("unexpected answer %+v", answer)
	}
}

func TestAnswerNoLiteratureWhenBothPassesEmpty(t *testing.T) {
	retriever := &retrieverFake{
		restricted: passagesResult(domain.ModeStandard),
		global:     passagesResult(domain.ModeGlobal),
	}
	uc := NewAnswerUseCase(&parserFake{}, retriever, &generatorFake{responses: []string{"unused"}}, WithAnswerLogger(quietLogger()))

	answer, err := uc.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Text != domain.NoLiteratureAnswer {
		t.Fatalf("unexpected text %q", answer.Text)
	}
}

func TestAnswerParserFailureFallsBackToRawQuery(t *testing.T) {
	retriever := &retrieverFake{restricted: passagesResult(domain.ModeStandard, "1000001")}
	uc := NewAnswerUseCase(&parserFake{err: errors.New("llm down")}, retriever, &generatorFake{responses: []string{"ok"}}, WithAnswerLogger(quietLogger()))

	if _, err := uc.Answer(context.Background(), "  raw question "); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if got := retriever.directives[0]; got.OptimizedQuery != "raw question" || got.Filter != nil || got.Clarification != "" {
		t.Fatalf("expected raw-query directive, got %+v", got)
	}
}

func TestAnswerPropagatesIndexUnavailable(t *testing.T) {
	retriever := &retrieverFake{restrictedErr: domain.WrapError(domain.ErrIndexUnavailable, "narrowing search", errors.New("down"))}
	uc := NewAnswerUseCase(&parserFake{}, retriever, &generatorFake{responses: []string{"unused"}}, WithAnswerLogger(quietLogger()))

	_, err := uc.Answer(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected index unavailable, got %v", err)
	}
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	uc := NewAnswerUseCase(&parserFake{}, &retrieverFake{}, &generatorFake{}, WithAnswerLogger(quietLogger()))
	_, err := uc.Answer(context.Background(), "   ")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSearchSelectsEntryPoint(t *testing.T) {
	retriever := &retrieverFake{
		restricted: passagesResult(domain.ModeStandard, "1000001"),
		global:     passagesResult(domain.ModeGlobal, "2000002"),
	}
	uc := NewAnswerUseCase(&parserFake{}, retriever, &generatorFake{}, WithAnswerLogger(quietLogger()))

	restricted, err := uc.Search(context.Background(), "q", false)
	if err != nil || restricted.Mode != domain.ModeStandard {
		t.Fatalf("expected restricted result, got %+v err=%v", restricted, err)
	}
	global, err := uc.Search(context.Background(), "q", true)
	if err != nil || global.Mode != domain.ModeGlobal {
		t.Fatalf("expected global result, got %+v err=%v", global, err)
	}
}
