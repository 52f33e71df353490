// Package ncbi reads PubMed and PMC records through the NCBI E-utilities.
package ncbi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/biomed-literature-assistant/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	defaultTool    = "biomed-literature-assistant"

	// Unauthenticated clients are limited to 3 requests per second, keyed
	// clients to 10.
	anonymousRPS = 3
	keyedRPS     = 10

	maxResponseBytes = 64 << 20
)

type Client struct {
	baseURL    string
	apiKey     string
	email      string
	tool       string
	rps        float64
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

type Option func(*Client)

func WithAPIKey(apiKey string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(apiKey)
	}
}

func WithEmail(email string) Option {
	return func(c *Client) {
		c.email = strings.TrimSpace(email)
	}
}

// WithRequestsPerSecond overrides the E-utilities rate limit.
func WithRequestsPerSecond(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.rps = rps
		}
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

func New(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tool:       defaultTool,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rps <= 0 {
		c.rps = anonymousRPS
		if c.apiKey != "" {
			c.rps = keyedRPS
		}
	}
	c.limiter = rate.NewLimiter(rate.Limit(c.rps), 1)
	return c
}

// get issues one rate-limited E-utilities request and returns the raw body.
func (c *Client) get(ctx context.Context, operation, endpoint string, params url.Values) ([]byte, error) {
	params.Set("tool", c.tool)
	if c.email != "" {
		params.Set("email", c.email)
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	target := c.baseURL + "/" + endpoint + "?" + params.Encode()

	fetch := func(callCtx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(callCtx); err != nil {
			return nil, err
		}
		return c.do(callCtx, operation, target)
	}
	body, err := resilience.Call(ctx, c.executor, "ncbi."+operation, fetch, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("ncbi "+operation, err, nil)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, operation, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ncbi %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &resilience.StatusError{
			Service:    "ncbi",
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(msg),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", operation, err)
	}
	return body, nil
}
