// Package tool exposes book identification and recommendation as MCP tools.
package tool

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/infrastructure/imaging"
	"github.com/booklens/backend/internal/logging"
)

const (
	serverName    = "booklens"
	serverVersion = "1.0.0"
)

// Identifier identifies books from OCR tokens or cover photos
type Identifier interface {
	IdentifyFromTokens(ctx context.Context, tokens []string, reference *domain.ImageHandle) (*domain.Identification, error)
	IdentifyFromImage(ctx context.Context, img domain.ImageHandle) (*domain.Identification, error)
}

// Recommender runs the recommendation pipeline
type Recommender interface {
	Recommend(ctx context.Context, request domain.RecommendationRequest) (*domain.Recommendation, error)
}

// Tools binds the MCP tool handlers to the book services
type Tools struct {
	identifier    Identifier
	recommender   Recommender
	maxImageBytes int64
	logger        *slog.Logger
}

// NewTools creates the tool handlers. maxImageBytes <= 0 uses the imaging default.
func NewTools(identifier Identifier, recommender Recommender, maxImageBytes int64, logger *slog.Logger) *Tools {
	if maxImageBytes <= 0 {
		maxImageBytes = imaging.DefaultMaxBytes
	}
	return &Tools{
		identifier:    identifier,
		recommender:   recommender,
		maxImageBytes: maxImageBytes,
		logger:        logging.NewComponentLogger(logger, "mcp"),
	}
}

// NewServer builds an MCP server with every configured tool registered.
// Tools whose service is nil are left out.
func NewServer(tools *Tools) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	if tools.identifier != nil {
		mcp.AddTool(server, MetadataIdentifyBook, tools.IdentifyBook)
	}
	if tools.recommender != nil {
		mcp.AddTool(server, MetadataRecommendBooks, tools.RecommendBooks)
	}
	return server
}

// MetadataIdentifyBook describes the identify_book tool.
var MetadataIdentifyBook = &mcp.Tool{
	Name: "identify_book",
	Description: "Identify a book from text read off its cover. " +
		"Pass the OCR lines in reading order as tokens, or a base64 cover photo as image, or both. " +
		"With both, the photo is used to pick between close catalog candidates. " +
		"Returns the best catalog record plus the candidates considered.",
	InputSchema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tokens": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Cover text lines in reading order, most prominent first",
			},
			"image": map[string]interface{}{
				"type":        "string",
				"description": "Optional cover photo, base64 or a data URI. Used for OCR when tokens are omitted.",
			},
		},
	},
}

// InputIdentifyBook is the input for the IdentifyBook tool.
type InputIdentifyBook struct {
	Tokens []string `json:"tokens"`
	Image  string   `json:"image"`
}

// OutputIdentifyBook is the output for the IdentifyBook tool.
type OutputIdentifyBook struct {
	Book       domain.CatalogRecord   `json:"book"`
	Candidates []domain.CatalogRecord `json:"candidates"`
	// VisualScore is -1 when no cover comparison ran.
	VisualScore float64 `json:"visual_score"`
	FullTextOCR bool    `json:"full_text_ocr"`
}

// IdentifyBook resolves cover text (or a cover photo) to a catalog record.
func (t *Tools) IdentifyBook(ctx context.Context, _ *mcp.CallToolRequest, input InputIdentifyBook) (*mcp.CallToolResult, OutputIdentifyBook, error) {
	tokens := nonBlank(input.Tokens)
	if len(tokens) == 0 && input.Image == "" {
		return nil, OutputIdentifyBook{}, fmt.Errorf("tokens or image is required")
	}

	var photo *domain.ImageHandle
	if input.Image != "" {
		img, err := t.decodeImage(input.Image)
		if err != nil {
			return nil, OutputIdentifyBook{}, err
		}
		photo = &img
	}

	var (
		identification *domain.Identification
		err            error
	)
	if len(tokens) > 0 {
		identification, err = t.identifier.IdentifyFromTokens(ctx, tokens, photo)
	} else {
		identification, err = t.identifier.IdentifyFromImage(ctx, *photo)
	}
	if err != nil {
		t.logger.Info("identify_book failed", logging.Error(err))
		return nil, OutputIdentifyBook{}, err
	}

	return nil, OutputIdentifyBook{
		Book:        identification.Record,
		Candidates:  identification.Candidates,
		VisualScore: identification.VisualScore,
		FullTextOCR: identification.FullTextOCR,
	}, nil
}

// MetadataRecommendBooks describes the recommend_books tool.
var MetadataRecommendBooks = &mcp.Tool{
	Name: "recommend_books",
	Description: "Recommend books that exist in the catalog. " +
		"Ask a question (e.g. \"novels about lighthouses\") and optionally list books the reader owns; " +
		"or list owned books alone to get similar titles. " +
		"Every recommended book is verified against the catalog before it is returned. " +
		"The error field is set when the result is partial.",
	InputSchema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"question": map[string]interface{}{
				"type":        "string",
				"description": "What the reader is looking for. Optional when owned_books is given.",
			},
			"owned_books": map[string]interface{}{
				"type":        "array",
				"description": "Books the reader already has",
				"items": map[string]interface{}{
					"type":     "object",
					"required": []string{"title"},
					"properties": map[string]interface{}{
						"id":     map[string]interface{}{"type": "string", "description": "Usually the ISBN"},
						"title":  map[string]interface{}{"type": "string"},
						"author": map[string]interface{}{"type": "string"},
					},
				},
			},
		},
	},
}

// InputRecommendBooks is the input for the RecommendBooks tool.
type InputRecommendBooks struct {
	Question   string             `json:"question"`
	OwnedBooks []domain.OwnedBook `json:"owned_books"`
}

// OutputRecommendBooks is the output for the RecommendBooks tool.
type OutputRecommendBooks struct {
	OwnedMatches []domain.OwnedBook     `json:"owned_matches"`
	NewBooks     []domain.CatalogRecord `json:"new_books"`
	Explanation  string                 `json:"explanation,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// RecommendBooks runs the recommendation pipeline. Degraded results are
// returned as output with Error set; only invalid input and cancellation fail
// the call.
func (t *Tools) RecommendBooks(ctx context.Context, _ *mcp.CallToolRequest, input InputRecommendBooks) (*mcp.CallToolResult, OutputRecommendBooks, error) {
	result, err := t.recommender.Recommend(ctx, domain.RecommendationRequest{
		Question:   input.Question,
		OwnedBooks: input.OwnedBooks,
	})
	if err != nil {
		t.logger.Info("recommend_books failed", logging.Error(err))
		return nil, OutputRecommendBooks{}, err
	}

	return nil, OutputRecommendBooks{
		OwnedMatches: result.OwnedMatches,
		NewBooks:     result.NewBooks,
		Explanation:  result.Explanation,
		Error:        result.Error,
	}, nil
}

func (t *Tools) decodeImage(encoded string) (domain.ImageHandle, error) {
	if idx := strings.Index(encoded, ";base64,"); idx >= 0 {
		encoded = encoded[idx+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.ImageHandle{}, fmt.Errorf("%w: image is not valid base64", domain.ErrValidation)
	}
	return imaging.ReadImage(bytes.NewReader(data), t.maxImageBytes)
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
