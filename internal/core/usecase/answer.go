package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
	"github.com/kirillkom/biomed-literature-assistant/internal/core/ports"
)

// AnswerUseCase turns a question into a cited answer. It owns the decision
// to fall back to a global search.
type AnswerUseCase struct {
	parser    ports.QueryUnderstanding
	retriever ports.PassageRetriever
	generator ports.AnswerGenerator
	logger    *slog.Logger
}

type AnswerOption func(*AnswerUseCase)

func WithAnswerLogger(logger *slog.Logger) AnswerOption {
	return func(uc *AnswerUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func NewAnswerUseCase(
	parser ports.QueryUnderstanding,
	retriever ports.PassageRetriever,
	generator ports.AnswerGenerator,
	opts ...AnswerOption,
) *AnswerUseCase {
	uc := &AnswerUseCase{
		parser:    parser,
		retriever: retriever,
		generator: generator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *AnswerUseCase) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("question is required"))
	}

	directive := uc.directive(ctx, question)
	restricted, err := uc.retriever.RetrieveRestricted(ctx, question, directive)
	if err != nil {
		return nil, fmt.Errorf("retrieve restricted: %w", err)
	}
	if restricted.IsClarification() {
		return &domain.Answer{Text: restricted.Clarification, Clarification: true, Sources: []domain.ScoredPassage{}}, nil
	}

	var first *domain.Answer
	if !restricted.IsEmpty() {
		text, err := uc.generate(ctx, question, restricted.Passages)
		if err != nil {
			return nil, err
		}
		first = &domain.Answer{Text: text, Sources: restricted.Passages}
		if !isInsufficientEvidence(text) {
			return first, nil
		}
		uc.logger.Info("answer_global_fallback", "reason", "insufficient_evidence")
	} else {
		uc.logger.Info("answer_global_fallback", "reason", "empty_restricted")
	}

	global, err := uc.retriever.RetrieveGlobal(ctx, question, directive)
	if err != nil {
		return nil, fmt.Errorf("retrieve global: %w", err)
	}
	if global.IsEmpty() {
		if first != nil {
			return first, nil
		}
		return &domain.Answer{Text: domain.NoLiteratureAnswer, Sources: []domain.ScoredPassage{}}, nil
	}

	text, err := uc.generate(ctx, question, global.Passages)
	if err != nil {
		return nil, err
	}
	return &domain.Answer{Text: text, UsedGlobal: true, Sources: global.Passages}, nil
}

// Search returns ranked passages without generating an answer.
func (uc *AnswerUseCase) Search(ctx context.Context, question string, global bool) (domain.RetrievalResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.RetrievalResult{}, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("question is required"))
	}

	directive := uc.directive(ctx, question)
	if global {
		return uc.retriever.RetrieveGlobal(ctx, question, directive)
	}
	return uc.retriever.RetrieveRestricted(ctx, question, directive)
}

// directive degrades to the raw question when query understanding fails.
func (uc *AnswerUseCase) directive(ctx context.Context, question string) domain.SearchDirective {
	directive, err := uc.parser.ParseQuery(ctx, question)
	if err != nil {
		uc.logger.Warn("query_parse_failed", "error", err)
		return domain.SearchDirective{OptimizedQuery: question}
	}
	return directive
}

func (uc *AnswerUseCase) generate(ctx context.Context, question string, passages []domain.ScoredPassage) (string, error) {
	text, err := uc.generator.GenerateAnswer(ctx, question, passages)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func isInsufficientEvidence(text string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(domain.InsufficientEvidenceAnswer))
}
