package domain

// RecommendationRequest asks for recommendations either for a question
// (question mode) or from the caller's owned books alone (owned-only mode)
type RecommendationRequest struct {
	Question   string      `json:"question,omitempty"`
	OwnedBooks []OwnedBook `json:"ownedBooks,omitempty"`
}

// QuestionMode reports whether the request carries a question
func (r RecommendationRequest) QuestionMode() bool {
	return r.Question != ""
}

// QuestionSuggestion is the provider's answer to a question: owned books it
// considers relevant plus new title/author guesses
type QuestionSuggestion struct {
	OwnedMatches []OwnedBook
	NewGuesses   []RawGuess
}

// OwnedSuggestion is the provider's answer in owned-only mode
type OwnedSuggestion struct {
	NewGuesses []RawGuess
}

// GuessTrace records how a single suggested guess was resolved
type GuessTrace struct {
	Guess      RawGuess `json:"guess"`
	Outcome    Outcome  `json:"outcome"`
	Attempts   int      `json:"attempts"`
	Similarity float64  `json:"similarity"`
	RecordID   string   `json:"recordId,omitempty"`
}

// Recommendation is the structured result of the recommendation pipeline.
// NewBooks holds matched records followed by best-effort fallbacks; Traces
// tells them apart. Error is set on degraded results and is meant for display.
type Recommendation struct {
	Question     string          `json:"question,omitempty"`
	OwnedMatches []OwnedBook     `json:"ownedMatches"`
	NewBooks     []CatalogRecord `json:"newBooks"`
	Explanation  string          `json:"explanation,omitempty"`
	Error        string          `json:"error,omitempty"`
	Traces       []GuessTrace    `json:"traces,omitempty"`
}

// Identification is the result of identifying a book from OCR evidence
type Identification struct {
	Record        CatalogRecord   `json:"record"`
	Candidates    []CatalogRecord `json:"candidates"`
	Tokens        []string        `json:"tokens"`
	VisualScore   float64         `json:"visualScore"` // -1 when no visual comparison ran
	FullTextOCR   bool            `json:"fullTextOcr"` // token extraction fell back to the full-image pass
	VisualChecked int             `json:"visualChecked"`
}
