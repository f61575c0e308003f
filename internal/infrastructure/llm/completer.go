package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/booklens/backend/internal/domain"
)

// Request is a single completion request
type Request struct {
	System string
	Prompt string
	Images []domain.ImageHandle
	// JSON asks the backend for a JSON-only reply where it supports that
	JSON bool
}

// Completer returns the model's text reply to a request
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config selects and configures a backend
type Config struct {
	Provider    string // "openai", "ollama" or "gemini"
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string // used for requests carrying images; falls back to Model
	Timeout     time.Duration
	Temperature float64
}

func (c Config) modelFor(req Request, fallback string) string {
	if len(req.Images) > 0 && strings.TrimSpace(c.VisionModel) != "" {
		return strings.TrimSpace(c.VisionModel)
	}
	if model := strings.TrimSpace(c.Model); model != "" {
		return model
	}
	return fallback
}

// NewCompleter builds the backend named by cfg.Provider. Backends that hold
// resources implement io.Closer.
func NewCompleter(ctx context.Context, cfg Config, logger *slog.Logger) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai", "":
		return NewOpenAIClient(cfg, logger), nil
	case "ollama":
		return NewOllamaClient(cfg, logger), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
