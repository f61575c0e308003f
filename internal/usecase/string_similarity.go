package usecase

import (
	"strings"

	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"
)

// Similarity returns a normalized edit similarity in [0,1]:
// 1 - levenshtein(a, b) / max(len(a), len(b)), measured in grapheme clusters.
// Two empty strings are identical (1.0); an empty string against a
// non-empty one scores 0.0.
func Similarity(a, b string) float64 {
	ga := graphemes(a)
	gb := graphemes(b)

	longest := max(len(ga), len(gb))
	if longest == 0 {
		return 1.0
	}
	if len(ga) == 0 || len(gb) == 0 {
		return 0.0
	}

	return 1.0 - float64(levenshteinDistance(ga, gb))/float64(longest)
}

// SimilarityIgnoringParens scores a against b after removing parenthesized
// annotations from a only, so "Dune (Deluxe Edition)" matches "Dune".
// The argument order matters: catalog titles go first, guesses second.
func SimilarityIgnoringParens(a, b string) float64 {
	return Similarity(StripParenthesized(a), b)
}

// StripParenthesized removes every balanced, possibly nested "( ... )" group
// and collapses the whitespace left behind. An unmatched ")" is dropped.
func StripParenthesized(s string) string {
	if !strings.ContainsAny(s, "()") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	depth := 0
	for _, r := range s {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// graphemes splits s into user-perceived characters after NFC composition
func graphemes(s string) []string {
	if s == "" {
		return nil
	}
	s = norm.NFC.String(s)

	clusters := make([]string, 0, len(s))
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		clusters = append(clusters, g.Str())
	}
	return clusters
}

// levenshteinDistance computes the edit distance between two grapheme
// sequences with unit costs using the full dynamic-programming matrix
func levenshteinDistance(a, b []string) int {
	m := len(a)
	n := len(b)
	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	d := make([][]int, m+1)
	for i := range d {
		d[i] = make([]int, n+1)
		d[i][0] = i
	}
	for j := 0; j <= n; j++ {
		d[0][j] = j
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			d[i][j] = min(
				d[i-1][j]+1,      // deletion
				d[i][j-1]+1,      // insertion
				d[i-1][j-1]+cost, // substitution
			)
		}
	}

	return d[m][n]
}
