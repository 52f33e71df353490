package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
	"github.com/kirillkom/biomed-literature-assistant/internal/infrastructure/resilience"
)

const pmidPayloadKey = "metadata.pmid"

// Client talks to one Qdrant collection over the REST API.
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

type Option func(*Client)

func WithAPIKey(apiKey string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(apiKey)
	}
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Collection() string {
	return c.collection
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Upsert writes passages as points, creating the collection on first use.
func (c *Client) Upsert(ctx context.Context, passages []domain.Passage, vectors [][]float32) error {
	if len(passages) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(passages) != len(vectors) {
		return fmt.Errorf("passages/vectors mismatch: %d/%d", len(passages), len(vectors))
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]point, 0, len(passages))
	for i, p := range passages {
		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		points = append(points, point{ID: id, Vector: vectors[i], Payload: encodePayload(p)})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	err := c.execute(ctx, "upsert", func(callCtx context.Context) error {
		return c.doJSON(callCtx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil)
	})
	return resilience.WrapTemporary("qdrant upsert", err, nil)
}

type queryResponse struct {
	Result struct {
		Points []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	} `json:"result"`
}

// SearchVector runs a nearest-neighbour query. A rejected filter surfaces
// as a *resilience.StatusError with a 4xx code.
func (c *Client) SearchVector(
	ctx context.Context,
	vector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.ScoredPassage, error) {
	reqBody := map[string]any{
		"query":        vector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}

	path := fmt.Sprintf("/collections/%s/points/query", c.collection)
	var resp queryResponse
	err := c.execute(ctx, "search", func(callCtx context.Context) error {
		resp = queryResponse{}
		return c.doJSON(callCtx, "search", http.MethodPost, path, reqBody, &resp)
	})
	if err != nil {
		return nil, resilience.WrapTemporary("qdrant search", err, nil)
	}

	out := make([]domain.ScoredPassage, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		out = append(out, domain.ScoredPassage{
			Passage:   decodePayload(p.Payload),
			BaseScore: p.Score,
		})
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	path := fmt.Sprintf("/collections/%s", c.collection)
	err := c.doJSON(ctx, "ensure collection", http.MethodPut, path, reqBody, nil)
	if err != nil && !isConflict(err) {
		return err
	}

	if err := c.ensurePMIDIndex(ctx); err != nil {
		return err
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

// ensurePMIDIndex creates the keyword index used by PMID-restricted searches.
func (c *Client) ensurePMIDIndex(ctx context.Context) error {
	reqBody := map[string]any{
		"field_name":   pmidPayloadKey,
		"field_schema": "keyword",
	}
	path := fmt.Sprintf("/collections/%s/index?wait=true", c.collection)
	err := c.doJSON(ctx, "ensure pmid index", http.MethodPut, path, reqBody, nil)
	if err != nil && !isConflict(err) {
		return err
	}
	return nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, "qdrant."+operation, fn, resilience.ClassifyHTTPError)
}

func (c *Client) doJSON(ctx context.Context, operation, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &resilience.StatusError{
			Service:    "qdrant",
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(msg),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func isConflict(err error) bool {
	var statusErr *resilience.StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict
}
