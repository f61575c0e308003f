package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiClient calls Google Gemini through the generative-ai SDK
type GeminiClient struct {
	cfg    Config
	client *genai.Client
	logger *slog.Logger
}

// NewGeminiClient creates a Gemini client; Close releases it
func NewGeminiClient(ctx context.Context, cfg Config, logger *slog.Logger) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if endpoint := strings.TrimSpace(cfg.BaseURL); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}

	return &GeminiClient{
		cfg:    cfg,
		client: client,
		logger: logging.NewComponentLogger(logger, "llm-gemini"),
	}, nil
}

// Close releases the underlying SDK client
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// Complete generates content for the prompt and any attached images
func (g *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	model := g.client.GenerativeModel(g.cfg.modelFor(req, defaultGeminiModel))
	model.SetTemperature(float32(g.cfg.Temperature))
	if system := strings.TrimSpace(req.System); system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	for _, img := range req.Images {
		format := img.Format
		if format == "" {
			format = "jpeg"
		}
		parts = append(parts, genai.ImageData(format, img.Data))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: failed to generate content: %w", domain.ErrTransport, err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates returned from Gemini", domain.ErrProviderMalformedResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty content returned from Gemini", domain.ErrProviderMalformedResponse)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", fmt.Errorf("%w: unexpected response format from Gemini", domain.ErrProviderMalformedResponse)
	}

	return strings.TrimSpace(text.String()), nil
}
