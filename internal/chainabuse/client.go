// Package chainabuse implements the client for the chainabuse.com
// graphql-proxy endpoint: a paginated GetReports operation guarded by a rate
// limiter, a jittered retry policy, and a circuit breaker.
package chainabuse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 16 << 20

// StatusError reports a non-200 response from the proxy.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("chainabuse API returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status code is transient.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// GraphQLError reports an errors array in an otherwise-200 response.
type GraphQLError struct {
	Messages []string
}

// Error implements the error interface.
func (e *GraphQLError) Error() string {
	return fmt.Sprintf("graphql errors: %v", e.Messages)
}

// Config controls the Client.
type Config struct {
	URL         string
	Token       string
	PageSize    int
	Timeout     time.Duration
	MaxRetries  int
	RPS         float64
	HTTPClient  *http.Client
	BreakerName string
}

// Client fetches report pages from the graphql-proxy endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	retry   retryPolicy
	breaker *gobreaker.CircuitBreaker[*ReportsPage]
	logger  *zap.Logger
}

// NewClient builds a Client. The token is mandatory; everything else has
// workable defaults.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("api url is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("api token is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "chainabuse-api"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}

	c := &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		retry:   newRetryPolicy(cfg.MaxRetries),
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*ReportsPage](gobreaker.Settings{
		Name:     cfg.BreakerName,
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c, nil
}

// ReportsPage fetches one page of reports for a chain. An empty after cursor
// requests the first page. Retries happen inside the breaker so an upstream
// outage trips it open instead of multiplying attempts.
func (c *Client) ReportsPage(ctx context.Context, chain, after string) (*ReportsPage, error) {
	page, err := c.breaker.Execute(func() (*ReportsPage, error) {
		return c.fetchWithRetry(ctx, chain, after)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("chainabuse API unavailable: %w", err)
		}
		return nil, err
	}
	return page, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, chain, after string) (*ReportsPage, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		page, err := c.fetchPage(ctx, chain, after)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !c.retry.shouldRetry(err, attempt) {
			return nil, lastErr
		}
		wait := c.retry.backoff(attempt)
		c.logger.Warn("retrying reports page",
			zap.String("chain", chain),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, chain, after string) (*ReportsPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	payload := reportsRequest{
		OperationName: "GetReports",
		Variables: reportsVariables{
			Input: reportsInput{
				Chains:         []string{chain},
				ScamCategories: []string{},
				OrderBy:        orderBy{Field: "UPVOTES_COUNT", Direction: "DESC"},
			},
			First: c.cfg.PageSize,
			After: after,
		},
		Query: getReportsQuery,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal reports request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build reports request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post reports request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read reports response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}

	var decoded reportsResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode reports response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		msgs := make([]string, 0, len(decoded.Errors))
		for _, e := range decoded.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, &GraphQLError{Messages: msgs}
	}
	if decoded.Data == nil || decoded.Data.Reports == nil {
		return nil, fmt.Errorf("reports response missing data")
	}

	conn := decoded.Data.Reports
	return &ReportsPage{
		PageInfo:   conn.PageInfo,
		Edges:      conn.Edges,
		Count:      conn.Count,
		TotalCount: conn.TotalCount,
		Raw:        raw,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
