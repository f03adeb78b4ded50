// Package subgraph queries the indexing service for restaking tokens and
// historical deposits.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"restakeRates/internal/metrics"
	"restakeRates/internal/retry"
)

// Config controls the indexing service client.
type Config struct {
	URL          string
	Timeout      time.Duration
	Interval     time.Duration
	Burst        int
	MaxRetries   int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
}

// Client is a rate-limited GraphQL client for the indexing service.
type Client struct {
	url        string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// NewClient creates an indexing service client. cfg.URL is required.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("subgraph url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}

	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		url:        cfg.URL,
		http:       httpClient,
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		logger:     logger,
	}, nil
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// query posts a GraphQL query and decodes data into out. Every attempt waits
// for the limiter, so callers never sleep on their own.
func (c *Client) query(ctx context.Context, operation string, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", operation, err)
	}

	return retry.Do(ctx, c.maxRetries, c.backoff, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		start := time.Now()
		err := c.post(ctx, body, out)
		metrics.IndexerRequests.WithLabelValues(operation, requestOutcome(err)).Inc()
		metrics.IndexerLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		if err != nil {
			c.logger.Warn("subgraph query failed", zap.String("operation", operation), zap.Error(err))
		}
		return err
	})
}

func (c *Client) post(ctx context.Context, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("subgraph returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return retry.Permanent(fmt.Errorf("subgraph returned status %d", resp.StatusCode))
	}

	var envelope graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return retry.Permanent(fmt.Errorf("subgraph errors: %s", strings.Join(msgs, "; ")))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return retry.Permanent(fmt.Errorf("decode data: %w", err))
	}
	return nil
}

func requestOutcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
