package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

// defaultMaxRetries bounds the search/suggest loop of a single guess
const defaultMaxRetries = 3

// subtitleDividers split "Title: Subtitle" style guesses
const subtitleDividers = ":|-"

// ReconcilerConfig holds configuration for candidate reconciliation
type ReconcilerConfig struct {
	MaxRetries       int
	SearchLimit      int
	SearchDelay      time.Duration // negative disables
	ProviderAttempts int
}

// ResolveContext carries what the suggestion provider needs to propose a
// replacement guess
type ResolveContext struct {
	Question string
	Previous []domain.RawGuess // guesses already tried outside this resolution
}

// CandidateReconciler resolves one title/author guess to a catalog record,
// asking the suggestion provider for alternatives while no candidate clears
// the thresholds
type CandidateReconciler struct {
	client           domain.CatalogSearchClient
	suggester        domain.SuggestionProvider
	matcher          *MatchingService
	maxRetries       int
	searchLimit      int
	searchDelay      time.Duration
	providerAttempts int
	logger           *slog.Logger
}

// NewCandidateReconciler creates a reconciler; suggester may be nil, in which
// case no alternatives are requested
func NewCandidateReconciler(
	client domain.CatalogSearchClient,
	suggester domain.SuggestionProvider,
	matcher *MatchingService,
	config ReconcilerConfig,
	logger *slog.Logger,
) *CandidateReconciler {
	retries := config.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	limit := config.SearchLimit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	delay := config.SearchDelay
	if delay == 0 {
		delay = defaultSearchDelay
	}

	attempts := config.ProviderAttempts
	if attempts <= 0 {
		attempts = defaultProviderAttempts
	}

	if matcher == nil {
		matcher = NewMatchingService(MatchConfig{}, logger)
	}

	return &CandidateReconciler{
		client:           client,
		suggester:        suggester,
		matcher:          matcher,
		maxRetries:       retries,
		searchLimit:      limit,
		searchDelay:      delay,
		providerAttempts: attempts,
		logger:           logging.NewComponentLogger(logger, "reconciler"),
	}
}

// searchThrottles holds one throttle per search call site of a resolution
type searchThrottles struct {
	title  *throttle
	author *throttle
}

// Resolve searches for the guess and scores every record returned.
//
//   - No record found (or the search failed): unmatched with no record, at once.
//   - Best record clears both thresholds: matched.
//   - Otherwise the candidate is kept and the provider is asked for a
//     replacement guess, up to maxRetries searches in total. When retries run
//     out, or the provider fails, the best candidate so far is returned
//     unmatched.
//
// The only error returned is a cancellation wrapping domain.ErrCancelled.
func (r *CandidateReconciler) Resolve(
	ctx context.Context,
	guess domain.RawGuess,
	rc ResolveContext,
) (*domain.ReconciliationResult, error) {
	throttles := searchThrottles{
		title:  newThrottle(r.searchDelay),
		author: newThrottle(r.searchDelay),
	}

	tried := make([]domain.RawGuess, 0, len(rc.Previous)+r.maxRetries)
	tried = append(tried, rc.Previous...)

	var candidates []domain.Candidate
	current := guess
	attempts := 0

	for attempts < r.maxRetries {
		attempts++

		best, matched, err := r.searchAndScore(ctx, current, throttles)
		if err != nil {
			if cerr := cancellationError(ctx, err); cerr != nil {
				return nil, cerr
			}
			r.logger.Warn("search failed; guess left unresolved",
				logging.String("title", current.Title),
				logging.String("author", current.Author),
				logging.Error(err),
			)
			return unresolved(current, attempts), nil
		}

		if best == nil {
			r.logger.Debug("no catalog records for guess",
				logging.String("title", current.Title),
				logging.String("author", current.Author),
			)
			return unresolved(current, attempts), nil
		}

		if matched {
			return &domain.ReconciliationResult{
				Matched:    true,
				Record:     &best.Record,
				Similarity: best.Similarity,
				Vector:     best.Vector,
				Outcome:    domain.OutcomeMatched,
				Attempts:   attempts,
				Guess:      current,
			}, nil
		}

		candidates = append(candidates, *best)
		tried = append(tried, current)

		if attempts == r.maxRetries {
			break
		}

		next, err := r.requestAlternative(ctx, rc.Question, tried)
		if err != nil {
			if cerr := cancellationError(ctx, err); cerr != nil {
				return nil, cerr
			}
			r.logger.Warn("alternative suggestion failed; returning best candidate",
				logging.String("title", current.Title),
				logging.Int("attempts", attempts),
				logging.Error(err),
			)
			break
		}

		r.logger.Debug("retrying with alternative guess",
			logging.String("previous_title", current.Title),
			logging.String("title", next.Title),
			logging.String("author", next.Author),
			logging.Float64("previous_similarity", best.Similarity),
		)
		current = next
	}

	return bestEffort(candidates, current, attempts), nil
}

// searchAndScore runs the title and author searches, falls back to the part
// of the title before a subtitle divider when both come back empty, and
// scores the union. A nil candidate means no record was found.
func (r *CandidateReconciler) searchAndScore(
	ctx context.Context,
	guess domain.RawGuess,
	throttles searchThrottles,
) (*domain.Candidate, bool, error) {
	records, err := r.searchTitleAndAuthor(ctx, guess, throttles)
	if err != nil {
		return nil, false, err
	}

	if len(records) == 0 {
		if prefix, ok := subtitlePrefix(guess.Title); ok {
			if err := throttles.title.Wait(ctx); err != nil {
				return nil, false, err
			}
			records, err = r.client.Search(ctx, prefix, r.searchLimit)
			if err != nil {
				return nil, false, fmt.Errorf("search title prefix %q: %w", prefix, err)
			}
		}
	}

	best, err := r.matcher.FindBestMatch(ctx, guess, records)
	switch {
	case err == nil:
		return best, true, nil
	case errors.Is(err, domain.ErrLowConfidence):
		return best, false, nil
	case errors.Is(err, domain.ErrNoEvidence):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// searchTitleAndAuthor issues both searches concurrently and waits for both.
// Title results come first; duplicates are kept.
func (r *CandidateReconciler) searchTitleAndAuthor(
	ctx context.Context,
	guess domain.RawGuess,
	throttles searchThrottles,
) ([]domain.CatalogRecord, error) {
	var byTitle, byAuthor []domain.CatalogRecord

	g, gctx := errgroup.WithContext(ctx)
	if title := strings.TrimSpace(guess.Title); title != "" {
		g.Go(func() error {
			if err := throttles.title.Wait(gctx); err != nil {
				return err
			}
			results, err := r.client.Search(gctx, title, r.searchLimit)
			if err != nil {
				return fmt.Errorf("search title %q: %w", title, err)
			}
			byTitle = results
			return nil
		})
	}
	if author := strings.TrimSpace(guess.Author); author != "" {
		g.Go(func() error {
			if err := throttles.author.Wait(gctx); err != nil {
				return err
			}
			results, err := r.client.Search(gctx, author, r.searchLimit)
			if err != nil {
				return fmt.Errorf("search author %q: %w", author, err)
			}
			byAuthor = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]domain.CatalogRecord, 0, len(byTitle)+len(byAuthor))
	records = append(records, byTitle...)
	records = append(records, byAuthor...)
	return records, nil
}

func (r *CandidateReconciler) requestAlternative(
	ctx context.Context,
	question string,
	tried []domain.RawGuess,
) (domain.RawGuess, error) {
	if r.suggester == nil {
		return domain.RawGuess{}, errors.New("no suggestion provider configured")
	}

	return callWithRetry(ctx, r.logger, "suggest alternative", r.providerAttempts,
		func(ctx context.Context) (domain.RawGuess, error) {
			next, err := r.suggester.SuggestAlternative(ctx, question, tried)
			if err != nil {
				return domain.RawGuess{}, err
			}
			if strings.TrimSpace(next.Title) == "" {
				return domain.RawGuess{}, fmt.Errorf("%w: alternative has no title", domain.ErrProviderMalformedResponse)
			}
			return next, nil
		})
}

// subtitlePrefix returns the trimmed text before the first subtitle divider
func subtitlePrefix(title string) (string, bool) {
	idx := strings.IndexAny(title, subtitleDividers)
	if idx < 0 {
		return "", false
	}
	prefix := strings.TrimSpace(title[:idx])
	return prefix, prefix != ""
}

func unresolved(guess domain.RawGuess, attempts int) *domain.ReconciliationResult {
	return &domain.ReconciliationResult{
		Matched:  false,
		Outcome:  domain.OutcomeUnresolved,
		Attempts: attempts,
		Guess:    guess,
	}
}

// bestEffort returns the highest-similarity candidate, unmatched. The sort is
// stable so the earliest candidate wins ties.
func bestEffort(candidates []domain.Candidate, last domain.RawGuess, attempts int) *domain.ReconciliationResult {
	if len(candidates) == 0 {
		return unresolved(last, attempts)
	}

	sorted := make([]domain.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Similarity > sorted[j].Similarity
	})

	best := sorted[0]
	return &domain.ReconciliationResult{
		Matched:    false,
		Record:     &best.Record,
		Similarity: best.Similarity,
		Vector:     best.Vector,
		Outcome:    domain.OutcomeBestEffort,
		Attempts:   attempts,
		Guess:      last,
	}
}
