package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booklens/backend/internal/domain"
)

func newTestOpenAI(serverURL string) *OpenAIClient {
	return NewOpenAIClient(Config{APIKey: "sk-test", BaseURL: serverURL, Model: "test-model"}, nil,
		WithSleeper(func(time.Duration) {}))
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"content": content}, "finish_reason": "stop"}},
	})
}

func TestOpenAIComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
		messages := body["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])

		writeCompletion(w, `{"ok":true}`)
	}))
	defer server.Close()

	got, err := newTestOpenAI(server.URL).Complete(context.Background(), Request{System: "sys", Prompt: "hi", JSON: true})

	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, got)
}

func TestOpenAIComplete_ImagesUseVisionModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []contentPart `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "vision-model", body.Model)
		require.Len(t, body.Messages, 1)
		require.Len(t, body.Messages[0].Content, 2)
		assert.Equal(t, "data:image/png;base64,AQI=", body.Messages[0].Content[1].ImageURL.URL)
		writeCompletion(w, "text")
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{BaseURL: server.URL, Model: "m", VisionModel: "vision-model"}, nil)
	_, err := client.Complete(context.Background(), Request{
		Prompt: "read",
		Images: []domain.ImageHandle{{Data: []byte{1, 2}, Format: "png"}},
	})
	require.NoError(t, err)
}

func TestOpenAIComplete_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeCompletion(w, "done")
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewOpenAIClient(Config{BaseURL: server.URL}, nil, WithSleeper(func(d time.Duration) { slept = append(slept, d) }))
	got, err := client.Complete(context.Background(), Request{Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, []time.Duration{time.Second}, slept)
}

func TestOpenAIComplete_ClientErrorIsTransport(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	_, err := newTestOpenAI(server.URL).Complete(context.Background(), Request{Prompt: "hi"})

	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIComplete_EmptyContentIsMalformed(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeCompletion(w, "  ")
	}))
	defer server.Close()

	_, err := newTestOpenAI(server.URL).Complete(context.Background(), Request{Prompt: "hi"})

	assert.ErrorIs(t, err, domain.ErrProviderMalformedResponse)
	assert.Equal(t, int32(defaultRetryAttempts), calls.Load())
}

func TestBackoffDelay(t *testing.T) {
	client := NewOpenAIClient(Config{}, nil, WithRetryBackoff(time.Second, 5*time.Second))

	assert.Equal(t, time.Second, client.backoffDelay(1))
	assert.Equal(t, 2*time.Second, client.backoffDelay(2))
	assert.Equal(t, 4*time.Second, client.backoffDelay(3))
	assert.Equal(t, 5*time.Second, client.backoffDelay(4))
}

func TestParseRetryAfter(t *testing.T) {
	d, ok := parseRetryAfter("3")
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	_, ok = parseRetryAfter("")
	assert.False(t, ok)

	_, ok = parseRetryAfter("soon")
	assert.False(t, ok)
}

func TestNewCompleter(t *testing.T) {
	ctx := context.Background()

	c, err := NewCompleter(ctx, Config{Provider: "openai"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	c, err = NewCompleter(ctx, Config{Provider: "Ollama"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, c)

	_, err = NewCompleter(ctx, Config{Provider: "gemini"}, nil)
	assert.Error(t, err, "gemini requires an api key")

	_, err = NewCompleter(ctx, Config{Provider: "bard"}, nil)
	assert.Error(t, err)
}
