package llm

import (
	"fmt"
	"strings"

	"github.com/booklens/backend/internal/domain"
)

const librarianSystemPrompt = `You are a well-read librarian. You only recommend books that really exist, ` +
	`with their exact published title and the author's full name. You answer with JSON only when asked for JSON.`

const questionPromptTemplate = `A reader asks: %q

Books the reader already owns:
%s

1. From the owned books, pick the ones that answer the question (copy their id and title exactly).
2. Suggest up to %d further books the reader does not own that answer the question.

Respond with JSON only:
{"owned_matches": [{"id": "...", "title": "...", "author": "..."}], "new_books": [{"title": "...", "author": "..."}]}`

const ownedPromptTemplate = `A reader owns these books:
%s

Suggest up to %d further books this reader would enjoy. Do not repeat any owned book.

Respond with JSON only:
{"new_books": [{"title": "...", "author": "..."}]}`

const alternativePromptTemplate = `%sThe following suggestions could not be found in the book catalog:
%s

Suggest ONE different real book%s. Use the exact published title and the author's full name.

Respond with JSON only:
{"title": "...", "author": "..."}`

const explainPromptTemplate = `A reader asked: %q

These books were selected for them:
%s

In a short paragraph, explain why these books answer the question. Plain text only.`

const coverTokensPrompt = `This is a photo of a book cover or spine.
List every distinct line of printed text, most prominent first: the title first, then the author, ` +
	`then any other text. Do not include prices, barcodes or ISBN numbers.

Respond with JSON only:
{"lines": ["...", "..."]}`

// fullTextOCRPrompt is the fallback pass, a plain transcription
const fullTextOCRPrompt = `You are performing OCR on a photo of a book cover.
Transcribe ALL visible text exactly as it appears, one line of text per line of output, top to bottom.
Do not add interpretation, commentary or explanations. Output only the transcribed text.`

func formatOwned(owned []domain.OwnedBook) string {
	if len(owned) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, book := range owned {
		fmt.Fprintf(&b, "- %s by %s", book.Title, orUnknown(book.Author))
		if book.ID != "" {
			fmt.Fprintf(&b, " (id: %s)", book.ID)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatGuesses(guesses []domain.RawGuess) string {
	if len(guesses) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, guess := range guesses {
		fmt.Fprintf(&b, "- %s by %s\n", guess.Title, orUnknown(guess.Author))
	}
	return strings.TrimRight(b.String(), "\n")
}

func orUnknown(author string) string {
	if strings.TrimSpace(author) == "" {
		return "unknown author"
	}
	return author
}

func questionPrompt(question string, owned []domain.OwnedBook, maxBooks int) string {
	return fmt.Sprintf(questionPromptTemplate, question, formatOwned(owned), maxBooks)
}

func ownedPrompt(owned []domain.OwnedBook, maxBooks int) string {
	return fmt.Sprintf(ownedPromptTemplate, formatOwned(owned), maxBooks)
}

func alternativePrompt(question string, previous []domain.RawGuess) string {
	intro, scope := "", ""
	if question != "" {
		intro = fmt.Sprintf("A reader asks: %q\n\n", question)
		scope = " that answers the question"
	}
	return fmt.Sprintf(alternativePromptTemplate, intro, formatGuesses(previous), scope)
}

func explainPrompt(question string, books []domain.RawGuess) string {
	return fmt.Sprintf(explainPromptTemplate, question, formatGuesses(books))
}
