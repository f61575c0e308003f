package usecase

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/booklens/backend/internal/logging"
)

// QueryPreprocessor cleans OCR text tokens before they are used as search terms
type QueryPreprocessor struct {
	logger *slog.Logger
}

// Compiled regex patterns for token cleanup
var (
	// Prices like "$16.99", "US $18.00", "₩15,000", "£9.99"
	pricePattern = regexp.MustCompile(`(?i)^(us|cad?|aud?)?\s*[$€£¥₩]\s*\d[\d,.]*$|^\d[\d,.]*\s*[$€£¥₩원]$`)

	// Barcode digit runs with optional separators
	barcodePattern = regexp.MustCompile(`^[\d\s-]{8,}$`)

	// "ISBN 978-0-13-235088-4", "ISBN-10: 0132350882", "9 780132 350884"
	isbnPattern = regexp.MustCompile(`(?i)^(?:isbn(?:-?1[03])?:?\s*)?([\dx][\dx\s-]{8,20})$`)

	// Punctuation hanging off either end of a token
	edgePunctuationPattern = regexp.MustCompile(`^[\s,;:|/\\\-–—·•*]+|[\s,;:|/\\\-–—·•*]+$`)

	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// coverNoise are whole cover lines that never belong to a title or author
var coverNoise = map[string]bool{
	"bestseller":                    true,
	"a novel":                       true,
	"a memoir":                      true,
	"national bestseller":           true,
	"international bestseller":      true,
	"new york times bestseller":     true,
	"the new york times bestseller": true,
	"#1 new york times bestseller":  true,
	"now a major motion picture":    true,
	"paperback":                     true,
	"hardcover":                     true,
	"isbn":                          true,
}

// maxTokenLength caps a single token so one runaway OCR line cannot dominate a query
const maxTokenLength = 100

// NewQueryPreprocessor creates a new query preprocessor
func NewQueryPreprocessor(logger *slog.Logger) *QueryPreprocessor {
	return &QueryPreprocessor{
		logger: logging.NewComponentLogger(logger, "preprocess"),
	}
}

// CleanTokens normalizes OCR tokens and drops the ones that carry no title
// or author evidence. Order is preserved.
func (p *QueryPreprocessor) CleanTokens(tokens []string) []string {
	cleaned := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token = p.CleanToken(token); token != "" {
			cleaned = append(cleaned, token)
		}
	}

	if len(cleaned) != len(tokens) {
		p.logger.Debug("dropped noisy tokens",
			logging.Strings("input", tokens),
			logging.Strings("output", cleaned),
		)
	}
	return cleaned
}

// CleanToken normalizes a single token, returning "" when it should be dropped
func (p *QueryPreprocessor) CleanToken(token string) string {
	// Step 1: fold compatibility forms (full-width letters, ligatures)
	token = norm.NFKC.String(token)

	// Step 2: normalize whitespace
	token = multiSpacePattern.ReplaceAllString(token, " ")
	token = strings.TrimSpace(token)

	// Step 3: strip orphaned punctuation on the edges
	token = edgePunctuationPattern.ReplaceAllString(token, "")

	if token == "" || !hasLetterOrDigit(token) {
		return ""
	}

	// Step 4: keep checksum-valid ISBNs as fielded search hints, drop prices,
	// other barcodes and cover blurbs
	if isbn, ok := isbnHint(token); ok {
		return "isbn:" + isbn
	}
	if pricePattern.MatchString(token) || barcodePattern.MatchString(token) {
		return ""
	}
	if coverNoise[strings.ToLower(token)] {
		return ""
	}

	// Step 5: limit length, cutting at a word boundary when possible
	if len(token) > maxTokenLength {
		cut := token[:maxTokenLength]
		if lastSpace := strings.LastIndex(cut, " "); lastSpace > maxTokenLength/2 {
			cut = cut[:lastSpace]
		}
		token = strings.ToValidUTF8(cut, "")
	}

	return token
}

// isbnHint returns the compact ISBN-10 or ISBN-13 in token when its
// checksum is valid
func isbnHint(token string) (string, bool) {
	m := isbnPattern.FindStringSubmatch(token)
	if m == nil {
		return "", false
	}
	compact := strings.ToUpper(strings.NewReplacer(" ", "", "-", "").Replace(m[1]))

	switch len(compact) {
	case 10:
		return compact, validISBN10(compact)
	case 13:
		return compact, validISBN13(compact)
	default:
		return "", false
	}
}

func validISBN10(isbn string) bool {
	sum := 0
	for i, r := range isbn {
		var digit int
		switch {
		case r >= '0' && r <= '9':
			digit = int(r - '0')
		case r == 'X' && i == 9:
			digit = 10
		default:
			return false
		}
		sum += digit * (10 - i)
	}
	return sum%11 == 0
}

func validISBN13(isbn string) bool {
	if !strings.HasPrefix(isbn, "978") && !strings.HasPrefix(isbn, "979") {
		return false
	}
	sum := 0
	for i, r := range isbn {
		if r < '0' || r > '9' {
			return false
		}
		digit := int(r - '0')
		if i%2 == 1 {
			digit *= 3
		}
		sum += digit
	}
	return sum%10 == 0
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
