package usecase

import (
	"context"
	"log/slog"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

// Matching defaults
const (
	defaultTitleWeight     = 0.8
	defaultTitleThreshold  = 0.7
	defaultAuthorThreshold = 0.5
)

// MatchConfig holds configuration for the matching service
type MatchConfig struct {
	TitleWeight     float64 // author weight is 1 - TitleWeight
	TitleThreshold  float64
	AuthorThreshold float64
}

// MatchingService scores catalog records against a title/author guess.
// Ranking uses the weighted combination; acceptance uses the per-field
// thresholds. The two are intentionally separate.
type MatchingService struct {
	titleWeight     float64
	titleThreshold  float64
	authorThreshold float64
	logger          *slog.Logger
}

// NewMatchingService creates a new matching service with the given configuration
func NewMatchingService(config MatchConfig, logger *slog.Logger) *MatchingService {
	weight := config.TitleWeight
	if weight <= 0 || weight > 1 {
		weight = defaultTitleWeight
	}

	titleThreshold := config.TitleThreshold
	if titleThreshold <= 0 {
		titleThreshold = defaultTitleThreshold
	}

	authorThreshold := config.AuthorThreshold
	if authorThreshold <= 0 {
		authorThreshold = defaultAuthorThreshold
	}

	return &MatchingService{
		titleWeight:     weight,
		titleThreshold:  titleThreshold,
		authorThreshold: authorThreshold,
		logger:          logging.NewComponentLogger(logger, "matcher"),
	}
}

// Score compares one record with a guess. The record title is compared with
// parenthesized annotations removed; the author is compared as-is.
func (s *MatchingService) Score(record domain.CatalogRecord, guess domain.RawGuess) domain.Candidate {
	vector := domain.SimilarityVector{
		TitleScore:  SimilarityIgnoringParens(record.Title, guess.Title),
		AuthorScore: Similarity(record.Author, guess.Author),
	}
	return domain.Candidate{
		Record:     record,
		Vector:     vector,
		Similarity: s.Combine(vector),
	}
}

// Combine returns the weighted similarity used for ranking
func (s *MatchingService) Combine(v domain.SimilarityVector) float64 {
	return s.titleWeight*v.TitleScore + (1-s.titleWeight)*v.AuthorScore
}

// Accepts reports whether both per-field thresholds are met
func (s *MatchingService) Accepts(v domain.SimilarityVector) bool {
	return v.TitleScore >= s.titleThreshold && v.AuthorScore >= s.authorThreshold
}

// FindBestMatch returns the record with the highest combined similarity; the
// first occurrence wins ties. When the best record fails a threshold it is
// still returned together with domain.ErrLowConfidence.
func (s *MatchingService) FindBestMatch(
	ctx context.Context,
	guess domain.RawGuess,
	records []domain.CatalogRecord,
) (*domain.Candidate, error) {
	if len(records) == 0 {
		return nil, domain.ErrNoEvidence
	}

	var best *domain.Candidate
	highestScore := -1.0 // any score, including 0, beats the initial value

	for _, record := range records {
		select {
		case <-ctx.Done():
			return nil, cancelled(ctx)
		default:
		}

		candidate := s.Score(record, guess)
		if candidate.Similarity > highestScore {
			highestScore = candidate.Similarity
			best = &candidate
		}
	}

	s.logger.Debug("best match",
		logging.String("guess_title", guess.Title),
		logging.String("guess_author", guess.Author),
		logging.String("record_title", best.Record.Title),
		logging.String("record_author", best.Record.Author),
		logging.Float64("title_score", best.Vector.TitleScore),
		logging.Float64("author_score", best.Vector.AuthorScore),
		logging.Float64("similarity", best.Similarity),
	)

	if !s.Accepts(best.Vector) {
		return best, domain.ErrLowConfidence
	}

	return best, nil
}
