package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalogRecordKey(t *testing.T) {
	assert.Equal(t, "9780132350884", CatalogRecord{ID: "abc", ISBN: "9780132350884"}.Key())
	assert.Equal(t, "abc", CatalogRecord{ID: "abc", ISBN: "  "}.Key())
}

func TestRecommendationRequestQuestionMode(t *testing.T) {
	assert.True(t, RecommendationRequest{Question: "books like dune"}.QuestionMode())
	assert.False(t, RecommendationRequest{OwnedBooks: []OwnedBook{{ID: "1"}}}.QuestionMode())
}
