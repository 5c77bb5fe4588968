// Package tokenize implements the minimal, language-agnostic-by-default
// text pipeline component E needs for full-text indexes (spec.md §4.5):
// word splitting, lowercasing, per-language stop-word removal, and an
// English stemmer. No NLP library appears anywhere in the retrieved
// example pack's go.mod files, so this is carried as a small,
// table-driven piece of the project's own code in the teacher's idiom
// (see DESIGN.md's stdlib-adjacent-exception entry) rather than a
// dependency substitution.
package tokenize

import (
	"strings"
	"unicode"
)

// Stemmer reduces a lowercased word to its stem. Search-side tokenization
// of a query must run the identical pipeline so stemmed tokens match
// (spec.md §4.5).
type Stemmer interface {
	Stem(word string) string
}

// NoopStemmer returns words unchanged, for languages with no stemmer.
type NoopStemmer struct{}

// Stem implements Stemmer.
func (NoopStemmer) Stem(word string) string { return word }

// Tokenize splits text into lowercased words, drops stop-words for the
// detected language, and stems what remains.
func Tokenize(text string, stemmer Stemmer) []string {
	lang := DetectLanguage(text)
	stop := StopWords[lang]

	var tokens []string
	for _, word := range splitWords(text) {
		word = strings.ToLower(word)
		if word == "" || stop[word] {
			continue
		}
		tokens = append(tokens, stemmer.Stem(word))
	}
	return tokens
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// DetectLanguage is a minimal heuristic: count stop-word hits per
// language's table against the raw lowercased word stream and pick the
// best match, defaulting to English. A production façade would swap this
// for a real language-id model; the core only needs the seam.
func DetectLanguage(text string) string {
	lower := strings.ToLower(text)
	best := "en"
	bestScore := 0
	for lang, stop := range StopWords {
		score := 0
		for _, w := range splitWords(lower) {
			if stop[w] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = lang
		}
	}
	return best
}
