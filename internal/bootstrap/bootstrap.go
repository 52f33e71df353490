package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/biomed-literature-assistant/internal/config"
	"github.com/kirillkom/biomed-literature-assistant/internal/core/ports"
	"github.com/kirillkom/biomed-literature-assistant/internal/core/usecase"
	"github.com/kirillkom/biomed-literature-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/biomed-literature-assistant/internal/infrastructure/extractor/jats"
	"github.com/kirillkom/biomed-literature-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/biomed-literature-assistant/internal/infrastructure/ncbi"
	"github.com/kirillkom/biomed-literature-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/biomed-literature-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/biomed-literature-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/biomed-literature-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/biomed-literature-assistant/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Articles  *postgres.ArticleRepository
	Source    *ncbi.Client
	Retrieval *usecase.RetrievalEngine
	AnswerUC  *usecase.AnswerUseCase
	ChatUC    ports.ChatService
	IngestUC  ports.ArticleIngestor
	ProcessUC *usecase.ProcessArticlesUseCase

	closeFn func()
}

type options struct {
	logger   *slog.Logger
	observer ports.RetrievalObserver
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRetrievalObserver attaches per-stage retrieval telemetry.
func WithRetrievalObserver(observer ports.RetrievalObserver) Option {
	return func(o *options) {
		o.observer = observer
	}
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	articles := postgres.NewArticleRepository(db)
	conversations := postgres.NewConversationRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	resilienceCfg := cfg.ResilienceConfig()
	executor := resilience.NewExecutor(
		resilienceCfg,
		resilience.WithLogger(logger),
		resilience.WithStateObserver(breakerLogger(logger)),
	)
	// Search calls sit on the request path; a retry there only adds latency
	// before the engine's own unfiltered fallback.
	searchExecutor := resilience.NewExecutor(
		resilience.SingleAttempt(resilienceCfg),
		resilience.WithLogger(logger),
		resilience.WithStateObserver(breakerLogger(logger)),
	)

	ncbiExecutor := resilience.NewExecutor(
		resilience.WithBackoff(resilienceCfg, time.Second, 8*time.Second),
		resilience.WithLogger(logger),
		resilience.WithStateObserver(breakerLogger(logger)),
	)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	httpClient := &http.Client{Timeout: 120 * time.Second}
	ollamaClient := ollama.New(
		cfg.OllamaURL,
		cfg.OllamaGenModel,
		cfg.OllamaEmbedModel,
		ollama.WithExecutor(executor),
		ollama.WithHTTPClient(httpClient),
	)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)
	parser := ollama.NewQueryParser(ollamaClient, cfg.MedicalSubject)
	reformulator := ollama.NewReformulator(ollamaClient)

	abstractIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantAbstractCollection, qdrant.WithAPIKey(cfg.QdrantAPIKey), qdrant.WithExecutor(executor))
	bodyIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantBodyCollection, qdrant.WithAPIKey(cfg.QdrantAPIKey), qdrant.WithExecutor(executor))
	abstractSearch := qdrant.NewSearcher(
		qdrant.New(cfg.QdrantURL, cfg.QdrantAbstractCollection, qdrant.WithAPIKey(cfg.QdrantAPIKey), qdrant.WithExecutor(searchExecutor)),
		embedder,
	)
	bodySearch := qdrant.NewSearcher(
		qdrant.New(cfg.QdrantURL, cfg.QdrantBodyCollection, qdrant.WithAPIKey(cfg.QdrantAPIKey), qdrant.WithExecutor(searchExecutor)),
		embedder,
	)

	source := ncbi.New(
		cfg.NCBIBaseURL,
		ncbi.WithAPIKey(cfg.NCBIAPIKey),
		ncbi.WithEmail(cfg.NCBIEmail),
		ncbi.WithRequestsPerSecond(cfg.NCBIRPS),
		ncbi.WithExecutor(ncbiExecutor),
	)

	retrievalOpts := []usecase.RetrievalOption{usecase.WithRetrievalLogger(logger)}
	if o.observer != nil {
		retrievalOpts = append(retrievalOpts, usecase.WithRetrievalObserver(o.observer))
	}
	retrieval := usecase.NewRetrievalEngine(abstractSearch, bodySearch, cfg.RetrievalTunables(), retrievalOpts...)
	answerUC := usecase.NewAnswerUseCase(parser, retrieval, generator, usecase.WithAnswerLogger(logger))
	chatUC := usecase.NewChatUseCase(
		answerUC,
		reformulator,
		conversations,
		usecase.WithChatLogger(logger),
		usecase.WithHistoryLimit(cfg.ChatHistoryMessages),
	)
	ingestUC := usecase.NewIngestArticlesUseCase(articles, source, queue, cfg.IngestBatchSize)
	processUC, err := usecase.NewProcessArticlesUseCase(
		articles,
		source,
		jats.NewExtractor(),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		abstractIndex,
		bodyIndex,
		storage,
		cfg.IngestWorkers,
		usecase.WithProcessLogger(logger),
		usecase.WithMinBodyChars(cfg.MinBodyChars),
	)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init article processor: %w", err)
	}

	return &App{
		Config: cfg,

		Queue:     queue,
		Articles:  articles,
		Source:    source,
		Retrieval: retrieval,
		AnswerUC:  answerUC,
		ChatUC:    chatUC,
		IngestUC:  ingestUC,
		ProcessUC: processUC,

		closeFn: func() {
			processUC.Release()
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func breakerLogger(logger *slog.Logger) resilience.StateObserver {
	return func(operation string, from, to gobreaker.State) {
		logger.Warn("circuit_breaker_state_changed", "operation", operation, "from", from.String(), "to", to.String())
	}
}
