package googlebooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

// DefaultBaseURL is the public Google Books API endpoint
const DefaultBaseURL = "https://www.googleapis.com/books/v1"

// maxResultsCap is the largest page the volumes endpoint accepts
const maxResultsCap = 40

const maxAttempts = 3

// Client handles communication with the Google Books volumes API
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	rateLimiter *rate.Limiter
	backoff     func(attempt int) time.Duration
	logger      *slog.Logger
}

// NewClient creates a new Google Books client. requestsPerSecond <= 0 disables
// client-side quota limiting.
func NewClient(apiKey, baseURL string, requestsPerSecond float64, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiKey:      apiKey,
		baseURL:     baseURL,
		rateLimiter: rate.NewLimiter(limit, 5),
		backoff:     exponentialBackoff,
		logger:      logging.NewComponentLogger(logger, "googlebooks"),
	}
}

// exponentialBackoff returns the wait before the next attempt: 500ms, 1s, 2s, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

// doRequest executes an HTTP GET request with proper headers and error handling
func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "BookLens/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}

	return resp, nil
}

// Search queries the volumes endpoint. No hits is an empty slice and a nil
// error. Network failures and non-2xx answers wrap domain.ErrTransport; an
// unreadable body wraps domain.ErrDecode.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.CatalogRecord, error) {
	if limit <= 0 || limit > maxResultsCap {
		limit = maxResultsCap
	}

	params := url.Values{}
	params.Add("q", query)
	params.Add("maxResults", strconv.Itoa(limit))
	params.Add("printType", "books")
	if c.apiKey != "" {
		params.Add("key", c.apiKey)
	}
	reqURL := fmt.Sprintf("%s/volumes?%s", c.baseURL, params.Encode())

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		resp, err := c.doRequest(ctx, reqURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			c.logger.Warn("request failed", logging.Int("attempt", attempt), logging.Error(err))
			lastErr = err
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%w: read body: %v", domain.ErrTransport, err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("%w: status %d", domain.ErrTransport, resp.StatusCode)
			if !retryable(resp.StatusCode) {
				c.logger.Warn("search rejected",
					logging.Int("status", resp.StatusCode),
					logging.String("body", truncate(string(body), 200)),
				)
				return nil, lastErr
			}
			c.logger.Warn("search failed",
				logging.Int("attempt", attempt),
				logging.Int("status", resp.StatusCode),
			)
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		var volumes VolumesResponse
		if err := json.Unmarshal(body, &volumes); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
		}

		records := MapToCatalogRecords(volumes.Items)
		c.logger.Debug("search complete",
			logging.String("query", query),
			logging.Int("total_items", volumes.TotalItems),
			logging.Int("records", len(records)),
		)
		return records, nil
	}

	return nil, lastErr
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= http.StatusInternalServerError
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
