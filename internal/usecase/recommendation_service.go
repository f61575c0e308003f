package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

// defaultMinQuestionLength rejects questions too short to carry intent
const defaultMinQuestionLength = 4

// GuessResolver resolves a single guess to a catalog record.
// CandidateReconciler is the production implementation.
type GuessResolver interface {
	Resolve(ctx context.Context, guess domain.RawGuess, rc ResolveContext) (*domain.ReconciliationResult, error)
}

// RecommendationConfig holds configuration for the recommendation service
type RecommendationConfig struct {
	MinQuestionLength int
	ProviderAttempts  int
	Concurrency       int // guesses reconciled in parallel
}

// RecommendationService turns a question or a list of owned books into
// verified catalog records plus an explanation
type RecommendationService struct {
	suggester         domain.SuggestionProvider
	resolver          GuessResolver
	minQuestionLength int
	providerAttempts  int
	concurrency       int
	logger            *slog.Logger
}

// NewRecommendationService creates a new recommendation service with dependencies
func NewRecommendationService(
	suggester domain.SuggestionProvider,
	resolver GuessResolver,
	config RecommendationConfig,
	logger *slog.Logger,
) *RecommendationService {
	minLength := config.MinQuestionLength
	if minLength <= 0 {
		minLength = defaultMinQuestionLength
	}

	attempts := config.ProviderAttempts
	if attempts <= 0 {
		attempts = defaultProviderAttempts
	}

	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &RecommendationService{
		suggester:         suggester,
		resolver:          resolver,
		minQuestionLength: minLength,
		providerAttempts:  attempts,
		concurrency:       concurrency,
		logger:            logging.NewComponentLogger(logger, "recommend"),
	}
}

// Recommend runs the reconciliation pipeline.
// Flow: suggest guesses -> reconcile each guess -> dedupe -> explain.
//
// A structured result is always returned. Provider and catalog failures
// degrade the result and set its Error message; only validation failures
// (returned alongside the degraded result) and cancellation are errors.
func (s *RecommendationService) Recommend(
	ctx context.Context,
	request domain.RecommendationRequest,
) (*domain.Recommendation, error) {
	request.Question = strings.TrimSpace(request.Question)

	result := &domain.Recommendation{
		Question:     request.Question,
		OwnedMatches: []domain.OwnedBook{},
		NewBooks:     []domain.CatalogRecord{},
	}

	if err := s.validate(request); err != nil {
		result.Error = err.Error()
		return result, err
	}

	ownedMatches, guesses, err := s.initialGuesses(ctx, request)
	if err != nil {
		if cerr := cancellationError(ctx, err); cerr != nil {
			return nil, cerr
		}
		s.logger.Warn("initial suggestion failed", logging.Error(err))
		result.Error = "Could not get book suggestions right now. Please try again."
		return result, nil
	}
	result.OwnedMatches = filterOwned(ownedMatches, request.OwnedBooks)

	s.logger.Info("reconciling suggestions",
		logging.Bool("question_mode", request.QuestionMode()),
		logging.Int("guesses", len(guesses)),
		logging.Int("owned_matches", len(result.OwnedMatches)),
	)

	outcomes, err := s.reconcileAll(ctx, request.Question, guesses)
	if err != nil {
		if cerr := cancellationError(ctx, err); cerr != nil {
			return nil, cerr
		}
		s.logger.Warn("reconciliation failed", logging.Error(err))
		result.Error = "Could not look up the suggested books. Please try again."
		return result, nil
	}

	// Matched records first, then best-effort fallbacks so every guess that
	// reached the catalog contributes a record
	var matched, fallbacks []domain.CatalogRecord
	for i, outcome := range outcomes {
		if outcome == nil {
			continue
		}
		trace := domain.GuessTrace{
			Guess:      guesses[i],
			Outcome:    outcome.Outcome,
			Attempts:   outcome.Attempts,
			Similarity: outcome.Similarity,
		}
		if outcome.Record != nil {
			trace.RecordID = outcome.Record.Key()
			if outcome.Matched {
				matched = append(matched, *outcome.Record)
			} else {
				fallbacks = append(fallbacks, *outcome.Record)
			}
		}
		result.Traces = append(result.Traces, trace)
	}

	result.NewBooks = dedupeRecords(append(matched, fallbacks...), ownedKeys(request.OwnedBooks))

	if !request.QuestionMode() {
		return result, nil
	}

	books := explanationInput(result.OwnedMatches, result.NewBooks)
	if len(books) == 0 {
		result.Error = "No matching books were found for your question."
		return result, nil
	}

	explanation, err := callWithRetry(ctx, s.logger, "explain", s.providerAttempts,
		func(ctx context.Context) (string, error) {
			return s.suggester.Explain(ctx, request.Question, books)
		})
	if err != nil {
		if cerr := cancellationError(ctx, err); cerr != nil {
			return nil, cerr
		}
		s.logger.Warn("explanation failed", logging.Error(err))
		result.Error = "Found books for your question but could not explain the picks."
		return result, nil
	}
	result.Explanation = explanation

	return result, nil
}

func (s *RecommendationService) validate(request domain.RecommendationRequest) error {
	if request.Question == "" && len(request.OwnedBooks) == 0 {
		return fmt.Errorf("%w: a question or at least one owned book is required", domain.ErrValidation)
	}
	if request.Question != "" && utf8.RuneCountInString(request.Question) < s.minQuestionLength {
		return fmt.Errorf("%w: question must be at least %d characters", domain.ErrValidation, s.minQuestionLength)
	}
	return nil
}

// initialGuesses asks the provider for owned matches and new guesses,
// depending on the request mode
func (s *RecommendationService) initialGuesses(
	ctx context.Context,
	request domain.RecommendationRequest,
) ([]domain.OwnedBook, []domain.RawGuess, error) {
	if request.QuestionMode() {
		suggestion, err := callWithRetry(ctx, s.logger, "suggest for question", s.providerAttempts,
			func(ctx context.Context) (*domain.QuestionSuggestion, error) {
				return s.suggester.SuggestForQuestion(ctx, request.Question, request.OwnedBooks)
			})
		if err != nil {
			return nil, nil, err
		}
		if suggestion == nil {
			return nil, nil, nil
		}
		return suggestion.OwnedMatches, suggestion.NewGuesses, nil
	}

	suggestion, err := callWithRetry(ctx, s.logger, "suggest from owned", s.providerAttempts,
		func(ctx context.Context) (*domain.OwnedSuggestion, error) {
			return s.suggester.SuggestFromOwned(ctx, request.OwnedBooks)
		})
	if err != nil {
		return nil, nil, err
	}
	if suggestion == nil {
		return nil, nil, nil
	}
	return nil, suggestion.NewGuesses, nil
}

// reconcileAll resolves every guess, at most s.concurrency at a time.
// Outcomes are indexed like guesses.
func (s *RecommendationService) reconcileAll(
	ctx context.Context,
	question string,
	guesses []domain.RawGuess,
) ([]*domain.ReconciliationResult, error) {
	outcomes := make([]*domain.ReconciliationResult, len(guesses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, guess := range guesses {
		g.Go(func() error {
			outcome, err := s.resolver.Resolve(gctx, guess, ResolveContext{
				Question: question,
				Previous: guesses,
			})
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return outcomes, nil
}

// filterOwned keeps only provider-reported owned books that the caller
// actually listed, using the caller's copy of each
func filterOwned(reported, owned []domain.OwnedBook) []domain.OwnedBook {
	byID := make(map[string]domain.OwnedBook, len(owned))
	byTitle := make(map[string]domain.OwnedBook, len(owned))
	for _, book := range owned {
		if book.ID != "" {
			byID[book.ID] = book
		}
		byTitle[normalizeTitle(book.Title)] = book
	}

	kept := []domain.OwnedBook{}
	seen := make(map[string]bool)
	for _, book := range reported {
		match, ok := byID[book.ID]
		if !ok || book.ID == "" {
			match, ok = byTitle[normalizeTitle(book.Title)]
		}
		if !ok {
			continue
		}
		key := match.ID + "|" + normalizeTitle(match.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, match)
	}
	return kept
}

func ownedKeys(owned []domain.OwnedBook) map[string]bool {
	keys := make(map[string]bool, len(owned))
	for _, book := range owned {
		if book.ID != "" {
			keys[book.ID] = true
		}
	}
	return keys
}

// dedupeRecords keeps the first record per identity key, skipping excluded keys
func dedupeRecords(records []domain.CatalogRecord, exclude map[string]bool) []domain.CatalogRecord {
	kept := []domain.CatalogRecord{}
	seen := make(map[string]bool, len(records))
	for _, record := range records {
		key := record.Key()
		if seen[key] || exclude[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, record)
	}
	return kept
}

func explanationInput(owned []domain.OwnedBook, records []domain.CatalogRecord) []domain.RawGuess {
	books := make([]domain.RawGuess, 0, len(owned)+len(records))
	for _, book := range owned {
		books = append(books, domain.RawGuess{Title: book.Title, Author: book.Author})
	}
	for _, record := range records {
		books = append(books, domain.RawGuess{Title: record.Title, Author: record.Author})
	}
	return books
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
