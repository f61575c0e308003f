package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

// defaultTieBreakCandidates is how many top records get a cover comparison
const defaultTieBreakCandidates = 3

// TokenResolver turns OCR tokens into candidate catalog records.
// ProgressiveQueryResolver is the production implementation.
type TokenResolver interface {
	Resolve(ctx context.Context, tokens []string) ([]domain.CatalogRecord, error)
}

// IdentificationConfig holds configuration for the identification service
type IdentificationConfig struct {
	TieBreakCandidates int // 0 uses the default; negative disables visual tie-breaking
}

// IdentificationService identifies a book from cover text, optionally using
// the cover photo to pick between close candidates
type IdentificationService struct {
	resolver           TokenResolver
	extractor          domain.TextTokenExtractor
	fetcher            domain.ImageFetcher
	comparer           domain.ImageComparer
	tieBreakCandidates int
	logger             *slog.Logger
}

// NewIdentificationService creates a new identification service.
// extractor, fetcher and comparer are optional.
func NewIdentificationService(
	resolver TokenResolver,
	extractor domain.TextTokenExtractor,
	fetcher domain.ImageFetcher,
	comparer domain.ImageComparer,
	config IdentificationConfig,
	logger *slog.Logger,
) *IdentificationService {
	candidates := config.TieBreakCandidates
	if candidates == 0 {
		candidates = defaultTieBreakCandidates
	}

	return &IdentificationService{
		resolver:           resolver,
		extractor:          extractor,
		fetcher:            fetcher,
		comparer:           comparer,
		tieBreakCandidates: candidates,
		logger:             logging.NewComponentLogger(logger, "identify"),
	}
}

// IdentifyFromTokens resolves ordered OCR tokens to a catalog record. When a
// reference image is supplied and cover comparison is available, the top
// candidates are re-ranked by visual similarity.
func (s *IdentificationService) IdentifyFromTokens(
	ctx context.Context,
	tokens []string,
	reference *domain.ImageHandle,
) (*domain.Identification, error) {
	records, err := s.resolver.Resolve(ctx, tokens)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no catalog record for %d tokens", domain.ErrNoEvidence, len(tokens))
	}

	identification := &domain.Identification{
		Record:      records[0],
		Candidates:  records,
		Tokens:      tokens,
		VisualScore: -1,
	}

	if reference != nil && !reference.Empty() && s.visualEnabled() {
		if err := s.visualTieBreak(ctx, *reference, identification); err != nil {
			return nil, err
		}
	}

	s.logger.Info("book identified",
		logging.String("title", identification.Record.Title),
		logging.String("author", identification.Record.Author),
		logging.Int("candidates", len(records)),
		logging.Float64("visual_score", identification.VisualScore),
	)

	return identification, nil
}

// IdentifyFromImage extracts text tokens from a cover photo, falling back to a
// full-image OCR pass when structured extraction finds nothing, then
// identifies the book using the photo as the visual reference.
func (s *IdentificationService) IdentifyFromImage(
	ctx context.Context,
	img domain.ImageHandle,
) (*domain.Identification, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: image is empty", domain.ErrValidation)
	}
	if s.extractor == nil {
		return nil, errors.New("text extraction is not configured")
	}

	fullText := false
	tokens, err := s.extractor.ExtractTokens(ctx, img)
	if errors.Is(err, domain.ErrNoTokens) {
		s.logger.Debug("no structured tokens; falling back to full-image OCR")
		fullText = true
		tokens, err = s.extractor.ExtractFullText(ctx, img)
	}
	if err != nil {
		if cerr := cancellationError(ctx, err); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("extract cover text: %w", err)
	}

	identification, err := s.IdentifyFromTokens(ctx, tokens, &img)
	if err != nil {
		return nil, err
	}
	identification.FullTextOCR = fullText
	return identification, nil
}

func (s *IdentificationService) visualEnabled() bool {
	return s.fetcher != nil && s.comparer != nil && s.tieBreakCandidates > 0
}

// visualTieBreak compares the reference with the covers of the top
// candidates and promotes the closest one. Missing or unreadable covers
// score -1 and never win.
func (s *IdentificationService) visualTieBreak(
	ctx context.Context,
	reference domain.ImageHandle,
	identification *domain.Identification,
) error {
	top := identification.Candidates
	if len(top) > s.tieBreakCandidates {
		top = top[:s.tieBreakCandidates]
	}

	prepared := s.comparer.Prepare(ctx, reference)

	scores := make([]float64, len(top))
	var wg sync.WaitGroup
	for i, record := range top {
		scores[i] = -1
		if record.CoverImageRef == "" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			cover, err := s.fetcher.Fetch(ctx, record.CoverImageRef)
			if err != nil {
				s.logger.Debug("cover fetch failed",
					logging.String("record_id", record.ID),
					logging.Error(err),
				)
				return
			}
			scores[i] = prepared.Similarity(ctx, cover)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return cancelled(ctx)
	}

	bestIdx := -1
	bestScore := 0.0
	for i, score := range scores {
		if score >= 0 {
			identification.VisualChecked++
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx >= 0 {
		identification.Record = top[bestIdx]
		identification.VisualScore = bestScore
	}
	return nil
}
