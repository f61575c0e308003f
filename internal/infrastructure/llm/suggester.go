package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/booklens/backend/internal/domain"
	"github.com/booklens/backend/internal/logging"
)

const defaultMaxSuggestions = 5

// Suggester implements domain.SuggestionProvider on top of a Completer.
// It makes exactly one completion call per operation; retries belong to the
// caller.
type Suggester struct {
	completer      Completer
	maxSuggestions int
	logger         *slog.Logger
}

// NewSuggester creates a suggestion provider. maxSuggestions <= 0 uses 5.
func NewSuggester(completer Completer, maxSuggestions int, logger *slog.Logger) *Suggester {
	if maxSuggestions <= 0 {
		maxSuggestions = defaultMaxSuggestions
	}
	return &Suggester{
		completer:      completer,
		maxSuggestions: maxSuggestions,
		logger:         logging.NewComponentLogger(logger, "suggester"),
	}
}

type guessReply struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

type ownedReply struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// NewBooks is a pointer so a missing key can be told apart from an empty list
type questionReply struct {
	OwnedMatches []ownedReply  `json:"owned_matches"`
	NewBooks     *[]guessReply `json:"new_books"`
}

func (r *questionReply) check() error {
	if r.NewBooks == nil {
		return errors.New("reply has no new_books")
	}
	return nil
}

type ownedModeReply struct {
	NewBooks *[]guessReply `json:"new_books"`
}

func (r *ownedModeReply) check() error {
	if r.NewBooks == nil {
		return errors.New("reply has no new_books")
	}
	return nil
}

type alternativeReply struct {
	guessReply
}

func (r *alternativeReply) check() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("alternative has no title")
	}
	return nil
}

// SuggestForQuestion asks for owned books relevant to the question plus new guesses
func (s *Suggester) SuggestForQuestion(ctx context.Context, question string, owned []domain.OwnedBook) (*domain.QuestionSuggestion, error) {
	content, err := s.completer.Complete(ctx, Request{
		System: librarianSystemPrompt,
		Prompt: questionPrompt(question, owned, s.maxSuggestions),
		JSON:   true,
	})
	if err != nil {
		return nil, err
	}

	reply, err := decodeReply[questionReply](content)
	if err != nil {
		return nil, err
	}

	suggestion := &domain.QuestionSuggestion{
		OwnedMatches: make([]domain.OwnedBook, 0, len(reply.OwnedMatches)),
		NewGuesses:   toGuesses(*reply.NewBooks, s.maxSuggestions),
	}
	for _, match := range reply.OwnedMatches {
		if strings.TrimSpace(match.ID) == "" && strings.TrimSpace(match.Title) == "" {
			continue
		}
		suggestion.OwnedMatches = append(suggestion.OwnedMatches, domain.OwnedBook{
			ID:     strings.TrimSpace(match.ID),
			Title:  strings.TrimSpace(match.Title),
			Author: strings.TrimSpace(match.Author),
		})
	}

	s.logger.Debug("question suggestions",
		logging.Int("owned_matches", len(suggestion.OwnedMatches)),
		logging.Int("new_guesses", len(suggestion.NewGuesses)),
	)
	return suggestion, nil
}

// SuggestFromOwned asks for new guesses based on the owned books alone
func (s *Suggester) SuggestFromOwned(ctx context.Context, owned []domain.OwnedBook) (*domain.OwnedSuggestion, error) {
	content, err := s.completer.Complete(ctx, Request{
		System: librarianSystemPrompt,
		Prompt: ownedPrompt(owned, s.maxSuggestions),
		JSON:   true,
	})
	if err != nil {
		return nil, err
	}

	reply, err := decodeReply[ownedModeReply](content)
	if err != nil {
		return nil, err
	}

	return &domain.OwnedSuggestion{NewGuesses: toGuesses(*reply.NewBooks, s.maxSuggestions)}, nil
}

// SuggestAlternative asks for one replacement guess avoiding previous ones
func (s *Suggester) SuggestAlternative(ctx context.Context, question string, previous []domain.RawGuess) (domain.RawGuess, error) {
	content, err := s.completer.Complete(ctx, Request{
		System: librarianSystemPrompt,
		Prompt: alternativePrompt(question, previous),
		JSON:   true,
	})
	if err != nil {
		return domain.RawGuess{}, err
	}

	reply, err := decodeReply[alternativeReply](content)
	if err != nil {
		return domain.RawGuess{}, err
	}

	return domain.RawGuess{Title: strings.TrimSpace(reply.Title), Author: strings.TrimSpace(reply.Author)}, nil
}

// Explain returns a short plain-text explanation of the selection
func (s *Suggester) Explain(ctx context.Context, question string, books []domain.RawGuess) (string, error) {
	content, err := s.completer.Complete(ctx, Request{
		System: librarianSystemPrompt,
		Prompt: explainPrompt(question, books),
	})
	if err != nil {
		return "", err
	}

	explanation := strings.TrimSpace(stripCodeFenceBlock(content))
	if explanation == "" {
		return "", fmt.Errorf("%w: empty explanation", domain.ErrProviderMalformedResponse)
	}
	return explanation, nil
}

// toGuesses drops untitled entries and caps the list
func toGuesses(replies []guessReply, limit int) []domain.RawGuess {
	guesses := make([]domain.RawGuess, 0, len(replies))
	for _, reply := range replies {
		title := strings.TrimSpace(reply.Title)
		if title == "" {
			continue
		}
		guesses = append(guesses, domain.RawGuess{Title: title, Author: strings.TrimSpace(reply.Author)})
		if len(guesses) == limit {
			break
		}
	}
	return guesses
}
