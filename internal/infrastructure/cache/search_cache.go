package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

// CachedSearchClient caches successful catalog searches by normalized query
// and limit. Failures are never cached.
type CachedSearchClient struct {
	next   domain.CatalogSearchClient
	cache  domain.CacheRepository
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSearchClient wraps next with cache
func NewCachedSearchClient(next domain.CatalogSearchClient, cache domain.CacheRepository, ttl time.Duration, logger *slog.Logger) *CachedSearchClient {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedSearchClient{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logging.NewComponentLogger(logger, "search-cache"),
	}
}

// Search returns cached records when present, otherwise delegates and stores
// the result. Cache errors are logged and never fail the search.
func (c *CachedSearchClient) Search(ctx context.Context, query string, limit int) ([]domain.CatalogRecord, error) {
	key := searchCacheKey(query, limit)

	if data, err := c.cache.Get(ctx, key); err == nil {
		var records []domain.CatalogRecord
		if err := json.Unmarshal(data, &records); err == nil {
			c.logger.Debug("cache hit", logging.String("key", key), logging.Int("records", len(records)))
			return records, nil
		}
		c.logger.Warn("dropping unreadable cache entry", logging.String("key", key))
		_ = c.cache.Delete(ctx, key)
	}

	records, err := c.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(records)
	if err == nil {
		err = c.cache.Set(ctx, key, data, c.ttl)
	}
	if err != nil {
		c.logger.Warn("cache write failed", logging.String("key", key), logging.Error(err))
	}

	return records, nil
}

func searchCacheKey(query string, limit int) string {
	return fmt.Sprintf("search:%d:%s", limit, normalizeForCacheKey(query))
}

// normalizeForCacheKey lowercases and collapses whitespace
func normalizeForCacheKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}
