package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

// Resolver defaults
const (
	defaultSearchLimit = 10
	defaultConvergeAt  = 3
	defaultSearchDelay = 500 * time.Millisecond
)

// ResolverConfig holds configuration for progressive query resolution
type ResolverConfig struct {
	SearchLimit int           // results requested per search
	ConvergeAt  int           // stop once a search returns this many results or fewer
	SearchDelay time.Duration // minimum spacing between searches of one chain; negative disables
}

// ProgressiveQueryResolver turns an ordered list of OCR tokens into a short
// list of catalog records by broadening the query one token at a time
type ProgressiveQueryResolver struct {
	client       domain.CatalogSearchClient
	preprocessor *QueryPreprocessor
	searchLimit  int
	convergeAt   int
	searchDelay  time.Duration
	logger       *slog.Logger
}

// NewProgressiveQueryResolver creates a resolver; zero config values take defaults
func NewProgressiveQueryResolver(
	client domain.CatalogSearchClient,
	preprocessor *QueryPreprocessor,
	config ResolverConfig,
	logger *slog.Logger,
) *ProgressiveQueryResolver {
	limit := config.SearchLimit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	convergeAt := config.ConvergeAt
	if convergeAt <= 0 {
		convergeAt = defaultConvergeAt
	}

	delay := config.SearchDelay
	if delay == 0 {
		delay = defaultSearchDelay
	}

	if preprocessor == nil {
		preprocessor = NewQueryPreprocessor(logger)
	}

	return &ProgressiveQueryResolver{
		client:       client,
		preprocessor: preprocessor,
		searchLimit:  limit,
		convergeAt:   convergeAt,
		searchDelay:  delay,
		logger:       logging.NewComponentLogger(logger, "resolver"),
	}
}

// Resolve accumulates tokens into a space-joined query, searching after each
// token. It stops as soon as a search returns convergeAt results or fewer and
// returns the last non-empty result set; after the final token it returns
// that token's results if any. Search failures propagate unchanged in kind.
func (r *ProgressiveQueryResolver) Resolve(ctx context.Context, tokens []string) ([]domain.CatalogRecord, error) {
	tokens = r.preprocessor.CleanTokens(tokens)
	if len(tokens) == 0 {
		return []domain.CatalogRecord{}, nil
	}

	limiter := newThrottle(r.searchDelay)
	lastNonEmpty := []domain.CatalogRecord{}
	query := ""

	for i, token := range tokens {
		if query == "" {
			query = token
		} else {
			query += " " + token
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		results, err := r.client.Search(ctx, query, r.searchLimit)
		if err != nil {
			if cerr := cancellationError(ctx, err); cerr != nil {
				return nil, cerr
			}
			return nil, fmt.Errorf("progressive search %q: %w", query, err)
		}

		r.logger.Debug("progressive search",
			logging.String("query", query),
			logging.Int("token_index", i),
			logging.Int("results", len(results)),
		)

		if len(results) > 0 {
			lastNonEmpty = results
		}

		if len(results) <= r.convergeAt {
			return lastNonEmpty, nil
		}

		if i == len(tokens)-1 {
			return results, nil
		}
	}

	return lastNonEmpty, nil
}
