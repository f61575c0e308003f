package domain

import "strings"

// RawGuess is an unverified title/author hypothesis from OCR or a language model
type RawGuess struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

// CatalogRecord is a book record returned by the external catalog search index
type CatalogRecord struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	Publisher     string `json:"publisher,omitempty"`
	CoverImageRef string `json:"coverImageRef,omitempty"`
	ISBN          string `json:"isbn,omitempty"`
	Description   string `json:"description,omitempty"`
	LinkURL       string `json:"linkUrl,omitempty"`
}

// Key returns the identity used for deduplication: ISBN when present, otherwise ID.
func (r CatalogRecord) Key() string {
	if isbn := strings.TrimSpace(r.ISBN); isbn != "" {
		return isbn
	}
	return r.ID
}

// SimilarityVector holds the per-field similarities of a record against a guess
type SimilarityVector struct {
	TitleScore  float64 `json:"titleScore"`
	AuthorScore float64 `json:"authorScore"`
}

// Candidate is a scored record kept while resolving a guess
type Candidate struct {
	Record     CatalogRecord    `json:"record"`
	Vector     SimilarityVector `json:"vector"`
	Similarity float64          `json:"similarity"` // weighted combination of Vector
}

// Outcome is the terminal state of a single guess resolution
type Outcome string

const (
	// OutcomeMatched means a record met both per-field thresholds
	OutcomeMatched Outcome = "matched"
	// OutcomeUnresolved means no catalog record was found at all
	OutcomeUnresolved Outcome = "unresolved"
	// OutcomeBestEffort means retries ran out and the best candidate is returned unmatched
	OutcomeBestEffort Outcome = "best_effort"
)

// ReconciliationResult is the outcome of resolving one guess against the catalog
type ReconciliationResult struct {
	Matched    bool             `json:"matched"`
	Record     *CatalogRecord   `json:"record,omitempty"`
	Similarity float64          `json:"similarity"`
	Vector     SimilarityVector `json:"vector"`
	Outcome    Outcome          `json:"outcome"`
	Attempts   int              `json:"attempts"`
	Guess      RawGuess         `json:"guess"` // last guess tried
}

// OwnedBook is a book the caller already has; the ID is usually the ISBN
type OwnedBook struct {
	ID     string `json:"id" yaml:"id"`
	Title  string `json:"title" yaml:"title"`
	Author string `json:"author" yaml:"author"`
}

// ImageHandle is an opaque in-memory image
type ImageHandle struct {
	Data   []byte `json:"-"`
	Format string `json:"format"` // "jpeg", "png", "webp", ...
}

// Empty reports whether the handle carries no image data
func (h ImageHandle) Empty() bool {
	return len(h.Data) == 0
}
