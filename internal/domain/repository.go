package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CatalogSearchClient searches the external book index.
// An empty slice with a nil error means no match.
type CatalogSearchClient interface {
	Search(ctx context.Context, query string, limit int) ([]CatalogRecord, error)
}

// SuggestionProvider generates title/author guesses and explanations
type SuggestionProvider interface {
	SuggestForQuestion(ctx context.Context, question string, owned []OwnedBook) (*QuestionSuggestion, error)
	SuggestFromOwned(ctx context.Context, owned []OwnedBook) (*OwnedSuggestion, error)
	SuggestAlternative(ctx context.Context, question string, previous []RawGuess) (RawGuess, error)
	Explain(ctx context.Context, question string, books []RawGuess) (string, error)
}

// TextTokenExtractor reads text lines off a cover photo.
// ExtractTokens returns ErrNoTokens when nothing was found; callers then
// fall back to ExtractFullText, a plain full-image OCR pass.
type TextTokenExtractor interface {
	ExtractTokens(ctx context.Context, img ImageHandle) ([]string, error)
	ExtractFullText(ctx context.Context, img ImageHandle) ([]string, error)
}

// ImageComparer scores the visual similarity of two images in [0,1], or -1
// when either image could not be processed
type ImageComparer interface {
	Similarity(ctx context.Context, a, b ImageHandle) float64
	// Prepare processes a reference once for comparison with many candidates
	Prepare(ctx context.Context, reference ImageHandle) ImageReference
}

// ImageReference is a prepared reference image. An unusable reference
// scores every candidate -1.
type ImageReference interface {
	Similarity(ctx context.Context, candidate ImageHandle) float64
}

// ImageFetcher downloads an image by reference (usually a URL)
type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) (ImageHandle, error)
}
