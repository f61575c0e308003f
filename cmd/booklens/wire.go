package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/booklens/backend/config"
	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/infrastructure/cache"
	"github.com/booklens/backend/internal/infrastructure/googlebooks"
	"github.com/booklens/backend/internal/infrastructure/imaging"
	"github.com/booklens/backend/internal/infrastructure/llm"
	"github.com/booklens/backend/internal/infrastructure/openlibrary"
	"github.com/booklens/backend/internal/logging"
	"github.com/booklens/backend/internal/usecase"
)

// services is the wired application; Close releases caches and provider clients
type services struct {
	identifier  *usecase.IdentificationService
	recommender *usecase.RecommendationService
	closers     []io.Closer
}

func (s *services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services, error) {
	svc := &services{}

	catalog, err := buildCatalog(ctx, cfg, logger, svc)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}

	completer, err := llm.NewCompleter(ctx, llm.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		VisionModel: cfg.LLM.VisionModel,
		Timeout:     cfg.LLM.Timeout,
		Temperature: cfg.LLM.Temperature,
	}, logger)
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	if closer, ok := completer.(io.Closer); ok {
		svc.closers = append(svc.closers, closer)
	}

	suggester := llm.NewSuggester(completer, 0, logger)
	extractor := llm.NewTokenExtractor(completer, logger)

	// Interface-typed so a disabled comparer stays a nil interface
	var (
		fetcher  domain.ImageFetcher
		comparer domain.ImageComparer
	)
	if cfg.Image.Enabled {
		fetcher = imaging.NewFetcher(cfg.Image.MaxBytes, logger)
		comparer = imaging.NewComparer(logger)
	}

	matcher := usecase.NewMatchingService(usecase.MatchConfig{
		TitleWeight:     cfg.Matching.TitleWeight,
		TitleThreshold:  cfg.Matching.TitleThreshold,
		AuthorThreshold: cfg.Matching.AuthorThreshold,
	}, logger)

	resolver := usecase.NewProgressiveQueryResolver(
		catalog,
		usecase.NewQueryPreprocessor(logger),
		usecase.ResolverConfig{
			SearchLimit: cfg.Resolver.SearchLimit,
			ConvergeAt:  cfg.Resolver.ConvergeAt,
			SearchDelay: cfg.Resolver.SearchDelay,
		},
		logger,
	)

	reconciler := usecase.NewCandidateReconciler(catalog, suggester, matcher, usecase.ReconcilerConfig{
		MaxRetries:       cfg.Matching.MaxRetries,
		SearchLimit:      cfg.Resolver.SearchLimit,
		SearchDelay:      cfg.Resolver.SearchDelay,
		ProviderAttempts: cfg.Matching.ProviderAttempts,
	}, logger)

	svc.recommender = usecase.NewRecommendationService(suggester, reconciler, usecase.RecommendationConfig{
		MinQuestionLength: cfg.Recommend.MinQuestionLength,
		ProviderAttempts:  cfg.Matching.ProviderAttempts,
		Concurrency:       cfg.Recommend.Concurrency,
	}, logger)

	tieBreak := cfg.Image.TieBreakCandidates
	if !cfg.Image.Enabled {
		tieBreak = -1
	}
	svc.identifier = usecase.NewIdentificationService(resolver, extractor, fetcher, comparer, usecase.IdentificationConfig{
		TieBreakCandidates: tieBreak,
	}, logger)

	logger.Info("services ready",
		logging.String("catalog", cfg.Catalog.Provider),
		logging.String("cache", cfg.Cache.Type),
		logging.String("llm", cfg.LLM.Provider),
		logging.Bool("image_tie_break", cfg.Image.Enabled),
	)

	return svc, nil
}

// buildCatalog creates the catalog search client, wrapped in the configured cache
func buildCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger, svc *services) (domain.CatalogSearchClient, error) {
	var client domain.CatalogSearchClient
	switch cfg.Catalog.Provider {
	case "openlibrary":
		client = openlibrary.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.RequestsPerSecond, logger)
	case "googlebooks", "":
		if cfg.Catalog.APIKey == "" {
			logger.Warn("catalog API key not configured; Google Books quota will be shared")
		}
		client = googlebooks.NewClient(cfg.Catalog.APIKey, cfg.Catalog.BaseURL, cfg.Catalog.RequestsPerSecond, logger)
	default:
		return nil, fmt.Errorf("unsupported catalog provider: %s", cfg.Catalog.Provider)
	}

	var repo domain.CacheRepository
	switch cfg.Cache.Type {
	case "none":
		return client, nil
	case "sqlite":
		store, err := cache.OpenSQLiteCache(ctx, cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, store)
		repo = store
	default:
		memory := cache.NewMemoryCache()
		svc.closers = append(svc.closers, memory)
		repo = memory
	}

	return cache.NewCachedSearchClient(client, repo, cfg.Cache.TTL, logger), nil
}
