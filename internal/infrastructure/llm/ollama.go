package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.1"
)

// OllamaClient calls a local Ollama server's /api/generate endpoint
type OllamaClient struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates an Ollama client
func NewOllamaClient(cfg Config, logger *slog.Logger) *OllamaClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaClient{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "llm-ollama"),
	}
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images,omitempty"`
	Format  string         `json:"format,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Complete sends a single non-streaming generate request
func (o *OllamaClient) Complete(ctx context.Context, req Request) (string, error) {
	body := ollamaRequest{
		Model:  o.cfg.modelFor(req, defaultOllamaModel),
		System: strings.TrimSpace(req.System),
		Prompt: req.Prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": o.cfg.Temperature,
		},
	}
	if req.JSON {
		body.Format = "json"
	}
	for _, img := range req.Images {
		body.Images = append(body.Images, base64.StdEncoding.EncodeToString(img.Data))
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: ollama request: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: ollama status %d: %s", domain.ErrTransport, resp.StatusCode, summarizePayloadSnippet(string(raw)))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: failed to decode ollama response: %v", domain.ErrProviderMalformedResponse, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: ollama error: %s", domain.ErrTransport, out.Error)
	}

	content := strings.TrimSpace(out.Response)
	if content == "" {
		return "", fmt.Errorf("%w: ollama returned an empty response", domain.ErrProviderMalformedResponse)
	}

	o.logger.Debug("completion received", logging.String("model", body.Model), logging.Int("length", len(content)))
	return content, nil
}
