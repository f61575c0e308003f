package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/booklens/backend/internal/domain"
)

// MockCatalogSearchClient is a mock implementation of domain.CatalogSearchClient.
// Responses are keyed by exact query; unknown queries return no records.
type MockCatalogSearchClient struct {
	mu        sync.Mutex
	responses map[string][]domain.CatalogRecord
	errors    map[string]error
	queries   []string
	callTimes []time.Time
	block     chan struct{} // when set, Search waits for close or ctx
}

func NewMockCatalogSearchClient() *MockCatalogSearchClient {
	return &MockCatalogSearchClient{
		responses: make(map[string][]domain.CatalogRecord),
		errors:    make(map[string]error),
	}
}

func (m *MockCatalogSearchClient) On(query string, records ...domain.CatalogRecord) *MockCatalogSearchClient {
	m.responses[query] = records
	return m
}

func (m *MockCatalogSearchClient) Fail(query string, err error) *MockCatalogSearchClient {
	m.errors[query] = err
	return m
}

func (m *MockCatalogSearchClient) Search(ctx context.Context, query string, limit int) ([]domain.CatalogRecord, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.callTimes = append(m.callTimes, time.Now())
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errors[query]; ok {
		return nil, err
	}
	records := m.responses[query]
	if len(records) > limit {
		records = records[:limit]
	}
	return append([]domain.CatalogRecord{}, records...), nil
}

func (m *MockCatalogSearchClient) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.queries...)
}

func (m *MockCatalogSearchClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

// MockSuggestionProvider is a mock implementation of domain.SuggestionProvider
type MockSuggestionProvider struct {
	mu sync.Mutex

	questionResult *domain.QuestionSuggestion
	questionErrors []error // consumed one per call before questionResult is returned
	ownedResult    *domain.OwnedSuggestion
	ownedError     error

	alternatives     []domain.RawGuess // returned in order
	alternativeError error
	alternativeCalls int
	lastPrevious     []domain.RawGuess

	explanation  string
	explainError error
	explainCalls int
	explainBooks []domain.RawGuess

	questionCalls int
}

func (m *MockSuggestionProvider) SuggestForQuestion(ctx context.Context, question string, owned []domain.OwnedBook) (*domain.QuestionSuggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questionCalls++
	if len(m.questionErrors) > 0 {
		err := m.questionErrors[0]
		m.questionErrors = m.questionErrors[1:]
		return nil, err
	}
	if m.questionResult == nil {
		return nil, errors.New("no question result configured")
	}
	return m.questionResult, nil
}

func (m *MockSuggestionProvider) SuggestFromOwned(ctx context.Context, owned []domain.OwnedBook) (*domain.OwnedSuggestion, error) {
	if m.ownedError != nil {
		return nil, m.ownedError
	}
	return m.ownedResult, nil
}

func (m *MockSuggestionProvider) SuggestAlternative(ctx context.Context, question string, previous []domain.RawGuess) (domain.RawGuess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alternativeCalls++
	m.lastPrevious = append([]domain.RawGuess{}, previous...)
	if m.alternativeError != nil {
		return domain.RawGuess{}, m.alternativeError
	}
	if len(m.alternatives) == 0 {
		return domain.RawGuess{}, errors.New("no alternatives left")
	}
	next := m.alternatives[0]
	m.alternatives = m.alternatives[1:]
	return next, nil
}

func (m *MockSuggestionProvider) Explain(ctx context.Context, question string, books []domain.RawGuess) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.explainCalls++
	m.explainBooks = books
	if m.explainError != nil {
		return "", m.explainError
	}
	return m.explanation, nil
}

// MockTokenExtractor is a mock implementation of domain.TextTokenExtractor
type MockTokenExtractor struct {
	tokens        []string
	tokensErr     error
	fullText      []string
	fullTextErr   error
	fullTextCalls int
}

func (m *MockTokenExtractor) ExtractTokens(ctx context.Context, img domain.ImageHandle) ([]string, error) {
	return m.tokens, m.tokensErr
}

func (m *MockTokenExtractor) ExtractFullText(ctx context.Context, img domain.ImageHandle) ([]string, error) {
	m.fullTextCalls++
	return m.fullText, m.fullTextErr
}

// MockImageFetcher returns covers keyed by reference
type MockImageFetcher struct {
	covers map[string]domain.ImageHandle
}

func (m *MockImageFetcher) Fetch(ctx context.Context, ref string) (domain.ImageHandle, error) {
	cover, ok := m.covers[ref]
	if !ok {
		return domain.ImageHandle{}, errors.New("cover not found")
	}
	return cover, nil
}

// MockImageComparer scores by the cover's Format field, which tests use as a label
type MockImageComparer struct {
	scores   map[string]float64
	prepared int
}

func (m *MockImageComparer) Similarity(ctx context.Context, a, b domain.ImageHandle) float64 {
	score, ok := m.scores[b.Format]
	if !ok {
		return -1
	}
	return score
}

func (m *MockImageComparer) Prepare(ctx context.Context, reference domain.ImageHandle) domain.ImageReference {
	m.prepared++
	return mockReference{comparer: m, reference: reference}
}

type mockReference struct {
	comparer  *MockImageComparer
	reference domain.ImageHandle
}

func (r mockReference) Similarity(ctx context.Context, candidate domain.ImageHandle) float64 {
	return r.comparer.Similarity(ctx, r.reference, candidate)
}

// resolverFunc adapts a function to GuessResolver
type resolverFunc func(ctx context.Context, guess domain.RawGuess, rc ResolveContext) (*domain.ReconciliationResult, error)

func (f resolverFunc) Resolve(ctx context.Context, guess domain.RawGuess, rc ResolveContext) (*domain.ReconciliationResult, error) {
	return f(ctx, guess, rc)
}

func book(id, title, author string) domain.CatalogRecord {
	return domain.CatalogRecord{ID: id, Title: title, Author: author, ISBN: id}
}
