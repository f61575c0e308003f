package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/infrastructure/imaging"
	"github.com/booklens/backend/internal/logging"
)

const (
	serviceName = "booklens-backend"
	version     = "1.0.0"
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

// HandlerConfig holds request limits for the HTTP handlers
type HandlerConfig struct {
	RequestTimeout time.Duration
	MaxImageBytes  int64
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	identifier     Identifier
	recommender    Recommender
	requestTimeout time.Duration
	maxImageBytes  int64
	logger         *slog.Logger
}

// NewHandler creates a new HTTP handler. Either service may be nil, in which
// case its endpoints answer 501.
func NewHandler(identifier Identifier, recommender Recommender, config HandlerConfig, logger *slog.Logger) *Handler {
	maxBytes := config.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = imaging.DefaultMaxBytes
	}
	return &Handler{
		identifier:     identifier,
		recommender:    recommender,
		requestTimeout: config.RequestTimeout,
		maxImageBytes:  maxBytes,
		logger:         logging.NewComponentLogger(logger, "http"),
	}
}

// IdentifyRequest is the body of POST /api/v1/books/identify
type IdentifyRequest struct {
	Tokens []string `json:"tokens"`
	// ReferenceImage is an optional base64 cover photo used to break ties
	ReferenceImage string `json:"referenceImage,omitempty"`
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": version,
	})
}

// IdentifyBook resolves OCR tokens to a catalog record
func (h *Handler) IdentifyBook(c *gin.Context) {
	if h.identifier == nil {
		h.notConfigured(c, "identification")
		return
	}

	var req IdentifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	tokens := nonBlank(req.Tokens)
	if len(tokens) == 0 {
		h.writeError(c, fmt.Errorf("%w: at least one token is required", domain.ErrValidation))
		return
	}

	var reference *domain.ImageHandle
	if req.ReferenceImage != "" {
		img, err := h.decodeReference(req.ReferenceImage)
		if err != nil {
			h.writeError(c, err)
			return
		}
		reference = &img
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	identification, err := h.identifier.IdentifyFromTokens(ctx, tokens, reference)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, identification)
}

// IdentifyBookImage identifies a book from an uploaded cover photo
// (multipart field "image")
func (h *Handler) IdentifyBookImage(c *gin.Context) {
	if h.identifier == nil {
		h.notConfigured(c, "identification")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImageBytes+1<<20)

	header, err := c.FormFile("image")
	if err != nil {
		h.writeError(c, fmt.Errorf("%w: multipart field \"image\" is required", domain.ErrValidation))
		return
	}
	if header.Size > h.maxImageBytes {
		h.writeError(c, fmt.Errorf("%w: image exceeds %d bytes", domain.ErrValidation, h.maxImageBytes))
		return
	}

	file, err := header.Open()
	if err != nil {
		h.writeError(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}
	defer file.Close()

	img, err := imaging.ReadImage(file, h.maxImageBytes)
	if err != nil {
		h.writeError(c, err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	identification, err := h.identifier.IdentifyFromImage(ctx, img)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, identification)
}

// RecommendBooks runs the recommendation pipeline. Degraded results are still
// 200 with their error message set.
func (h *Handler) RecommendBooks(c *gin.Context) {
	if h.recommender == nil {
		h.notConfigured(c, "recommendation")
		return
	}

	var req domain.RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.recommender.Recommend(ctx, req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.requestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.requestTimeout)
}

func (h *Handler) decodeReference(encoded string) (domain.ImageHandle, error) {
	// Accept data URIs as well as bare base64
	if idx := strings.Index(encoded, ";base64,"); idx >= 0 {
		encoded = encoded[idx+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.ImageHandle{}, fmt.Errorf("%w: referenceImage is not valid base64", domain.ErrValidation)
	}
	return imaging.ReadImage(bytes.NewReader(data), h.maxImageBytes)
}

func (h *Handler) notConfigured(c *gin.Context, feature string) {
	c.JSON(http.StatusNotImplemented, ErrorResponse{
		Error:     feature + " is not configured",
		Code:      "not_configured",
		RequestID: requestID(c),
	})
}

// writeError maps domain errors to status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	status, code := statusFor(err)

	attrs := []any{
		logging.String("request_id", requestID(c)),
		logging.String("path", c.FullPath()),
		logging.Int("status", status),
		logging.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", attrs...)
	} else {
		h.logger.Info("request rejected", attrs...)
	}

	c.JSON(status, ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: requestID(c),
	})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, domain.ErrNoEvidence), errors.Is(err, domain.ErrNoTokens):
		return http.StatusNotFound, "no_evidence"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "cancelled"
	case errors.Is(err, domain.ErrTransport), errors.Is(err, domain.ErrDecode), errors.Is(err, domain.ErrProviderMalformedResponse):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
