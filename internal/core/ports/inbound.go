package ports

import (
	"context"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

// PassageRetriever is the inbound contract for two-tier retrieval.
type PassageRetriever interface {
	RetrieveRestricted(ctx context.Context, rawQuery string, directive domain.SearchDirective) (domain.RetrievalResult, error)
	RetrieveGlobal(ctx context.Context, rawQuery string, directive domain.SearchDirective) (domain.RetrievalResult, error)
}

// LiteratureAnswerer is the inbound contract for cited answer synthesis.
type LiteratureAnswerer interface {
	Answer(ctx context.Context, question string) (*domain.Answer, error)
}

// LiteratureSearcher parses a raw query and returns ranked passages.
type LiteratureSearcher interface {
	Search(ctx context.Context, question string, global bool) (domain.RetrievalResult, error)
}

// ChatService is the inbound contract for conversational sessions.
type ChatService interface {
	Chat(ctx context.Context, sessionID, input string) (*domain.Answer, error)
	ClearHistory(ctx context.Context, sessionID string) error
}

// ArticleIngestor is the inbound contract for ingestion submission.
type ArticleIngestor interface {
	Submit(ctx context.Context, req domain.IngestRequest) (*domain.IngestReceipt, error)
}

// ArticleReader is the inbound read model for article state.
type ArticleReader interface {
	GetByPMID(ctx context.Context, pmid string) (*domain.Article, error)
}

// ArticleProcessor is the inbound contract for asynchronous article processing.
type ArticleProcessor interface {
	ProcessBatch(ctx context.Context, pmids []string) error
}
