package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

// TokenExtractor implements domain.TextTokenExtractor with a vision model
type TokenExtractor struct {
	completer Completer
	logger    *slog.Logger
}

// NewTokenExtractor creates a cover text extractor
func NewTokenExtractor(completer Completer, logger *slog.Logger) *TokenExtractor {
	return &TokenExtractor{
		completer: completer,
		logger:    logging.NewComponentLogger(logger, "ocr"),
	}
}

type linesReply struct {
	Lines []string `json:"lines"`
}

// ExtractTokens returns cover text lines, most prominent first. An empty list
// is domain.ErrNoTokens.
func (e *TokenExtractor) ExtractTokens(ctx context.Context, img domain.ImageHandle) ([]string, error) {
	content, err := e.completer.Complete(ctx, Request{
		Prompt: coverTokensPrompt,
		Images: []domain.ImageHandle{img},
		JSON:   true,
	})
	if err != nil {
		return nil, err
	}

	reply, err := decodeReply[linesReply](content)
	if err != nil {
		return nil, err
	}

	tokens := cleanLines(reply.Lines)
	if len(tokens) == 0 {
		return nil, domain.ErrNoTokens
	}
	e.logger.Debug("cover tokens extracted", logging.Int("tokens", len(tokens)))
	return tokens, nil
}

// ExtractFullText transcribes the whole image and splits it into lines
func (e *TokenExtractor) ExtractFullText(ctx context.Context, img domain.ImageHandle) ([]string, error) {
	content, err := e.completer.Complete(ctx, Request{
		Prompt: fullTextOCRPrompt,
		Images: []domain.ImageHandle{img},
	})
	if err != nil {
		return nil, err
	}

	tokens := cleanLines(strings.Split(stripCodeFenceBlock(content), "\n"))
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: full-image OCR found no text", domain.ErrNoTokens)
	}
	e.logger.Debug("full-image OCR", logging.Int("lines", len(tokens)))
	return tokens, nil
}

func cleanLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
