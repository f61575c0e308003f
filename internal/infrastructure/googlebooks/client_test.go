package googlebooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booklens/backend/internal/domain"
)

func newTestClient(serverURL string) *Client {
	client := NewClient("test-api-key", serverURL, 0, nil)
	client.backoff = func(int) time.Duration { return time.Millisecond }
	return client
}

func TestNewClient(t *testing.T) {
	client := NewClient("test-api-key", "", 2, nil)

	assert.NotNil(t, client)
	assert.Equal(t, "test-api-key", client.apiKey)
	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.rateLimiter)
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1000 * time.Millisecond},
		{3, 2000 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
		})
	}
}

const duneVolumes = `{
  "totalItems": 2,
  "items": [
    {
      "id": "B1hSG45JCX4C",
      "volumeInfo": {
        "title": "Dune",
        "authors": ["Frank Herbert"],
        "publisher": "Penguin",
        "industryIdentifiers": [
          {"type": "ISBN_10", "identifier": "0441013597"},
          {"type": "ISBN_13", "identifier": "9780441013593"}
        ],
        "imageLinks": {"thumbnail": "http://books.google.com/books/content?id=B1hSG45JCX4C"},
        "canonicalVolumeLink": "https://books.google.com/books/about/Dune.html?id=B1hSG45JCX4C"
      }
    },
    {
      "id": "untitled",
      "volumeInfo": {"authors": ["Nobody"]}
    }
  ]
}`

func TestSearch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/volumes", r.URL.Path)
		assert.Equal(t, "Dune Frank Herbert", r.URL.Query().Get("q"))
		assert.Equal(t, "10", r.URL.Query().Get("maxResults"))
		assert.Equal(t, "test-api-key", r.URL.Query().Get("key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(duneVolumes))
	}))
	defer server.Close()

	records, err := newTestClient(server.URL).Search(context.Background(), "Dune Frank Herbert", 10)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "B1hSG45JCX4C", records[0].ID)
	assert.Equal(t, "Dune", records[0].Title)
	assert.Equal(t, "Frank Herbert", records[0].Author)
	assert.Equal(t, "9780441013593", records[0].ISBN)
	assert.Equal(t, "https://books.google.com/books/content?id=B1hSG45JCX4C", records[0].CoverImageRef)
}

func TestSearch_ISBNHintIsSentAsFieldedQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Dune isbn:9780441013593", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(duneVolumes))
	}))
	defer server.Close()

	records, err := newTestClient(server.URL).Search(context.Background(), "Dune isbn:9780441013593", 10)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "9780441013593", records[0].ISBN)
}

func TestSearch_NoItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"totalItems": 0}`))
	}))
	defer server.Close()

	records, err := newTestClient(server.URL).Search(context.Background(), "zzzz", 10)

	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestSearch_LimitIsCapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "40", r.URL.Query().Get("maxResults"))
		_, _ = w.Write([]byte(`{"totalItems": 0}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Search(context.Background(), "dune", 500)
	require.NoError(t, err)
}

func TestSearch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(duneVolumes))
	}))
	defer server.Close()

	records, err := newTestClient(server.URL).Search(context.Background(), "dune", 10)

	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_TransportError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Search(context.Background(), "dune", 10)

	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, int32(maxAttempts), calls.Load())
}

func TestSearch_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"message": "API key not valid"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Search(context.Background(), "dune", 10)

	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearch_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": [`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Search(context.Background(), "dune", 10)

	assert.ErrorIs(t, err, domain.ErrDecode)
}

func TestSearch_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(duneVolumes))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL).Search(ctx, "dune", 10)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
