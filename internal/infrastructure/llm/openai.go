package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

const (
	defaultOpenAIURL      = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

// OpenAIClient calls an OpenAI-compatible chat completions endpoint
// (OpenAI, OpenRouter, vLLM, ...)
type OpenAIClient struct {
	cfg        Config
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// OpenAIOption customizes the client.
type OpenAIOption func(*OpenAIClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(c *OpenAIClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) OpenAIOption {
	return func(c *OpenAIClient) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) OpenAIOption {
	return func(c *OpenAIClient) {
		c.sleeper = sleeper
	}
}

// NewOpenAIClient constructs a chat completions client
func NewOpenAIClient(cfg Config, logger *slog.Logger, opts ...OpenAIOption) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	endpoint := strings.TrimSpace(cfg.BaseURL)
	if endpoint == "" {
		endpoint = defaultOpenAIURL
	}

	client := &OpenAIClient{
		cfg:              cfg,
		endpoint:         endpoint,
		httpClient:       &http.Client{Timeout: timeout},
		logger:           logging.NewComponentLogger(logger, "llm-openai"),
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

// chatMessage content is either a string or a list of content parts
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, summarizePayloadSnippet(e.Body))
}

func (e *httpStatusError) Unwrap() error { return domain.ErrTransport }

type emptyContentError struct {
	FinishReason string
	Refusal      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("llm request: empty content (finish_reason=%q, refusal=%q)", e.FinishReason, e.Refusal)
}

func (e *emptyContentError) Unwrap() error { return domain.ErrProviderMalformedResponse }

// Complete sends the request, retrying rate limits, server errors, timeouts
// and empty replies with exponential backoff
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", errors.New("llm complete: prompt required")
	}

	payload := chatCompletionRequest{
		Model:       c.cfg.modelFor(req, defaultOpenAIModel),
		Messages:    buildMessages(req),
		Temperature: c.cfg.Temperature,
	}
	if req.JSON {
		payload.ResponseFormat = map[string]string{"type": "json_object"}
	}

	attempts := c.retryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		content, err := c.sendOnce(ctx, payload)
		if err == nil {
			return content, nil
		}
		lastErr = err

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return "", err
		}
		c.logger.Warn("llm request failed; retrying",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("llm complete: failed after %d attempts: %w", attempts, lastErr)
}

func buildMessages(req Request) []chatMessage {
	var messages []chatMessage
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}

	if len(req.Images) == 0 {
		return append(messages, chatMessage{Role: "user", Content: req.Prompt})
	}

	parts := []contentPart{{Type: "text", Text: req.Prompt}}
	for _, img := range req.Images {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: dataURI(img)},
		})
	}
	return append(messages, chatMessage{Role: "user", Content: parts})
}

func dataURI(img domain.ImageHandle) string {
	format := img.Format
	if format == "" {
		format = "jpeg"
	}
	return "data:image/" + format + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func (c *OpenAIClient) sendOnce(ctx context.Context, payload chatCompletionRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("llm request: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(c.cfg.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: llm request: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: llm request: read body: %w", domain.ErrTransport, err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			RetryAfter: retryAfter,
		}
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("%w: llm request: decode response: %v", domain.ErrProviderMalformedResponse, err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("%w: llm api error: %s", domain.ErrTransport, strings.TrimSpace(completion.Error.Message))
	}

	empty := &emptyContentError{}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
		if empty.FinishReason == "" {
			empty.FinishReason = choice.FinishReason
		}
		if empty.Refusal == "" {
			empty.Refusal = choice.Message.Refusal
		}
	}
	return "", empty
}

func (c *OpenAIClient) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var emptyErr *emptyContentError
	if errors.As(err, &emptyErr) {
		return c.backoffDelay(attempt), true
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}

	return 0, false
}

// backoffDelay doubles from the base delay: attempt 1 -> base, 2 -> 2*base, ...
func (c *OpenAIClient) backoffDelay(attempt int) time.Duration {
	if c.retryBaseDelay <= 0 {
		return 0
	}
	delay := c.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > c.retryMaxDelay/2 {
			return c.capDelay(c.retryMaxDelay)
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *OpenAIClient) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *OpenAIClient) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
