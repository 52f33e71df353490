package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/biomed-literature-assistant/internal/config"
	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
	"github.com/kirillkom/biomed-literature-assistant/internal/core/ports"
	"github.com/kirillkom/biomed-literature-assistant/internal/observability/metrics"
)

const (
	serviceName     = "api"
	maxRequestBytes = 1 << 20
)

type Router struct {
	cfg      config.Config
	chat     ports.ChatService
	searcher ports.LiteratureSearcher
	ingestor ports.ArticleIngestor
	articles ports.ArticleReader
	metrics  *metrics.HTTPServerMetrics
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func NewRouter(
	cfg config.Config,
	chat ports.ChatService,
	searcher ports.LiteratureSearcher,
	ingestor ports.ArticleIngestor,
	articles ports.ArticleReader,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		cfg:      cfg,
		chat:     chat,
		searcher: searcher,
		ingestor: ingestor,
		articles: articles,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/chat", rt.postChat)
	mux.HandleFunc("DELETE /v1/chat/{session_id}", rt.deleteChat)
	mux.HandleFunc("POST /v1/retrieve", rt.postRetrieve)
	mux.HandleFunc("POST /v1/articles", rt.postArticles)
	mux.HandleFunc("GET /v1/articles/{pmid}", rt.getArticle)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIBackpressureMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	*domain.Answer
}

func (rt *Router) postChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	started := time.Now()
	answer, err := rt.chat.Chat(r.Context(), req.SessionID, req.Query)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAnswer(serviceName, "chat", answerOutcome(answer), len(answer.Sources), time.Since(started))
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = "default"
	}
	writeJSON(w, http.StatusOK, chatResponse{SessionID: sessionID, Answer: answer})
}

func (rt *Router) deleteChat(w http.ResponseWriter, r *http.Request) {
	if err := rt.chat.ClearHistory(r.Context(), r.PathValue("session_id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type retrieveRequest struct {
	Query  string `json:"query"`
	Global bool   `json:"global"`
}

func (rt *Router) postRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, err := rt.searcher.Search(r.Context(), req.Query, req.Global)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if result.Passages == nil {
		result.Passages = []domain.ScoredPassage{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) postArticles(w http.ResponseWriter, r *http.Request) {
	var req domain.IngestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	receipt, err := rt.ingestor.Submit(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordIngestSubmission(serviceName, len(receipt.Queued), len(receipt.Skipped))
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

func (rt *Router) getArticle(w http.ResponseWriter, r *http.Request) {
	pmid := strings.TrimSpace(r.PathValue("pmid"))
	if pmid == "" {
		writeError(w, http.StatusBadRequest, "pmid is required")
		return
	}

	article, err := rt.articles.GetByPMID(r.Context(), pmid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func answerOutcome(answer *domain.Answer) string {
	switch {
	case answer.Clarification:
		return "clarification"
	case len(answer.Sources) == 0:
		return "no_literature"
	case answer.UsedGlobal:
		return "global"
	default:
		return "cited"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
