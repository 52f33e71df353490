package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

// PassageSearcher runs top-k similarity search over one collection.
type PassageSearcher interface {
	Search(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.ScoredPassage, error)
}

// PassageIndexer writes passages and their vectors into one collection.
type PassageIndexer interface {
	Upsert(ctx context.Context, passages []domain.Passage, vectors [][]float32) error
}

// QueryUnderstanding turns raw user text into a search directive.
type QueryUnderstanding interface {
	ParseQuery(ctx context.Context, rawQuery string) (domain.SearchDirective, error)
}

// QueryReformulator rewrites a follow-up into a standalone query.
type QueryReformulator interface {
	Reformulate(ctx context.Context, history []domain.ConversationMessage, input string) (string, error)
}

// AnswerGenerator creates the final cited answer.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, passages []domain.ScoredPassage) (string, error)
}

// Embedder builds vectors for passages and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits article text into indexable windows.
type Chunker interface {
	Split(text string) []string
	SplitSections(markdown string) []domain.TextSection
}

// ArticleRepository persists ingestion state per article.
type ArticleRepository interface {
	Upsert(ctx context.Context, article *domain.Article) error
	GetByPMID(ctx context.Context, pmid string) (*domain.Article, error)
	UpdateStatus(ctx context.Context, pmid string, status domain.ArticleStatus, errMessage string) error
}

// ArticleSource reads PubMed/PMC records.
type ArticleSource interface {
	SearchKeywords(ctx context.Context, keywords []string, limit int) ([]string, error)
	FetchRecords(ctx context.Context, pmids []string) ([]domain.ArticleRecord, error)
	LinkFullText(ctx context.Context, pmids []string) (map[string]string, error)
	FetchFullText(ctx context.Context, pmcid string) ([]byte, error)
}

// BodyExtractor converts full-text XML into markdown with section headers.
type BodyExtractor interface {
	Extract(raw []byte) (string, error)
}

// ObjectStorage stores archived article records.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion batches.
type MessageQueue interface {
	PublishArticlesQueued(ctx context.Context, pmids []string) error
	SubscribeArticlesQueued(ctx context.Context, handler func(context.Context, []string) error) error
}

// ConversationStore persists chat sessions and messages.
type ConversationStore interface {
	EnsureConversation(ctx context.Context, sessionID string) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, message domain.ConversationMessage) error
	ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.ConversationMessage, error)
	ClearConversation(ctx context.Context, sessionID string) error
}

// RetrievalObserver receives per-stage retrieval telemetry.
type RetrievalObserver interface {
	ObserveStage(stage string, duration time.Duration, count int)
	ObserveFilterRetry(stage string)
	ObserveResult(mode domain.RetrievalMode, kind domain.ResultKind, count int)
}
