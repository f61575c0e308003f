package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booklens/backend/config"
	"github.com/booklens/backend/internal/domain"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeIdentifier struct {
	result       *domain.Identification
	err          error
	gotTokens    []string
	gotReference *domain.ImageHandle
	gotImage     domain.ImageHandle
}

func (f *fakeIdentifier) IdentifyFromTokens(ctx context.Context, tokens []string, reference *domain.ImageHandle) (*domain.Identification, error) {
	f.gotTokens = tokens
	f.gotReference = reference
	return f.result, f.err
}

func (f *fakeIdentifier) IdentifyFromImage(ctx context.Context, img domain.ImageHandle) (*domain.Identification, error) {
	f.gotImage = img
	return f.result, f.err
}

type fakeRecommender struct {
	result *domain.Recommendation
	err    error
	got    domain.RecommendationRequest
}

func (f *fakeRecommender) Recommend(ctx context.Context, request domain.RecommendationRequest) (*domain.Recommendation, error) {
	f.got = request
	return f.result, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"http://localhost:*"},
		},
		RateLimit: config.RateLimitConfig{PerIP: 0},
	}
}

// setupTestRouter creates a test router; nil services answer 501
func setupTestRouter(identifier Identifier, recommender Recommender) *gin.Engine {
	handler := NewHandler(identifier, recommender, HandlerConfig{}, nil)
	return SetupRouter(testConfig(), handler, nil)
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.SetGray(1, 1, color.Gray{Y: 200})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func TestHealthCheckEndpoint(t *testing.T) {
	router := setupTestRouter(nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "booklens-backend", response["service"])
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestIdentifyEndpoint(t *testing.T) {
	dune := domain.CatalogRecord{ID: "1", Title: "Dune", Author: "Frank Herbert"}

	t.Run("returns the identification", func(t *testing.T) {
		identifier := &fakeIdentifier{result: &domain.Identification{Record: dune, Candidates: []domain.CatalogRecord{dune}, VisualScore: -1}}
		router := setupTestRouter(identifier, nil)

		w := postJSON(router, "/api/v1/books/identify", `{"tokens": ["Dune", " ", "Frank Herbert"]}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"Dune", "Frank Herbert"}, identifier.gotTokens)
		assert.Nil(t, identifier.gotReference)

		var got domain.Identification
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "Dune", got.Record.Title)
	})

	t.Run("decodes a data URI reference image", func(t *testing.T) {
		identifier := &fakeIdentifier{result: &domain.Identification{Record: dune}}
		router := setupTestRouter(identifier, nil)

		encoded := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t))
		w := postJSON(router, "/api/v1/books/identify", fmt.Sprintf(`{"tokens": ["Dune"], "referenceImage": %q}`, encoded))

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, identifier.gotReference)
		assert.Equal(t, "png", identifier.gotReference.Format)
	})

	t.Run("status mapping", func(t *testing.T) {
		tests := []struct {
			name       string
			body       string
			err        error
			wantStatus int
			wantCode   string
		}{
			{"no tokens", `{"tokens": []}`, nil, http.StatusBadRequest, "validation_error"},
			{"bad json", `{"tokens": `, nil, http.StatusBadRequest, "validation_error"},
			{"bad reference", `{"tokens": ["x"], "referenceImage": "%%%"}`, nil, http.StatusBadRequest, "validation_error"},
			{"no evidence", `{"tokens": ["x"]}`, domain.ErrNoEvidence, http.StatusNotFound, "no_evidence"},
			{"transport", `{"tokens": ["x"]}`, fmt.Errorf("search: %w", domain.ErrTransport), http.StatusBadGateway, "upstream_error"},
			{"cancelled", `{"tokens": ["x"]}`, fmt.Errorf("%w: %w", domain.ErrCancelled, context.Canceled), http.StatusRequestTimeout, "cancelled"},
			{"rate limited", `{"tokens": ["x"]}`, domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				router := setupTestRouter(&fakeIdentifier{err: tt.err}, nil)

				w := postJSON(router, "/api/v1/books/identify", tt.body)

				assert.Equal(t, tt.wantStatus, w.Code)
				response := decodeError(t, w)
				assert.Equal(t, tt.wantCode, response.Code)
				assert.NotEmpty(t, response.RequestID)
			})
		}
	})

	t.Run("not configured", func(t *testing.T) {
		w := postJSON(setupTestRouter(nil, nil), "/api/v1/books/identify", `{"tokens": ["x"]}`)
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})
}

func TestIdentifyImageEndpoint(t *testing.T) {
	upload := func(t *testing.T, router *gin.Engine, field string, data []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		part, err := writer.CreateFormFile(field, "cover.png")
		require.NoError(t, err)
		_, _ = part.Write(data)
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/books/identify/image", &body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("identifies an uploaded cover", func(t *testing.T) {
		identifier := &fakeIdentifier{result: &domain.Identification{Record: domain.CatalogRecord{Title: "Stoner"}, FullTextOCR: true}}
		w := upload(t, setupTestRouter(identifier, nil), "image", pngBytes(t))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "png", identifier.gotImage.Format)
		assert.Contains(t, w.Body.String(), `"fullTextOcr":true`)
	})

	t.Run("rejects non-images", func(t *testing.T) {
		w := upload(t, setupTestRouter(&fakeIdentifier{}, nil), "image", []byte("hello"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("requires the image field", func(t *testing.T) {
		w := upload(t, setupTestRouter(&fakeIdentifier{}, nil), "photo", pngBytes(t))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRecommendEndpoint(t *testing.T) {
	t.Run("returns the recommendation", func(t *testing.T) {
		recommender := &fakeRecommender{result: &domain.Recommendation{
			Question:     "books about deserts",
			OwnedMatches: []domain.OwnedBook{},
			NewBooks:     []domain.CatalogRecord{{ID: "1", Title: "Dune"}},
			Explanation:  "Arrakis is a desert.",
		}}
		router := setupTestRouter(nil, recommender)

		w := postJSON(router, "/api/v1/books/recommend",
			`{"question": "books about deserts", "ownedBooks": [{"id": "42", "title": "Sand", "author": "Hugh Howey"}]}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "books about deserts", recommender.got.Question)
		require.Len(t, recommender.got.OwnedBooks, 1)
		assert.Equal(t, "42", recommender.got.OwnedBooks[0].ID)

		var got domain.Recommendation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "Arrakis is a desert.", got.Explanation)
	})

	t.Run("degraded results are still 200", func(t *testing.T) {
		recommender := &fakeRecommender{result: &domain.Recommendation{Error: "Could not get book suggestions right now. Please try again."}}
		w := postJSON(setupTestRouter(nil, recommender), "/api/v1/books/recommend", `{"question": "anything good?"}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Could not get book suggestions")
	})

	t.Run("validation errors are 400", func(t *testing.T) {
		recommender := &fakeRecommender{
			result: &domain.Recommendation{Error: "invalid request: question must be at least 4 characters"},
			err:    fmt.Errorf("%w: question must be at least 4 characters", domain.ErrValidation),
		}
		w := postJSON(setupTestRouter(nil, recommender), "/api/v1/books/recommend", `{"question": "hi"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation_error", decodeError(t, w).Code)
	})
}

func TestAPIVersioning(t *testing.T) {
	router := setupTestRouter(&fakeIdentifier{}, &fakeRecommender{})

	for _, path := range []string{"/api/books/identify", "/api/v2/books/identify", "/books/identify"} {
		w := postJSON(router, path, `{"tokens": ["x"]}`)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: Status = %d, want %d", path, w.Code, http.StatusNotFound)
		}
	}
}
