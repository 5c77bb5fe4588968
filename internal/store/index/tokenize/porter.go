package tokenize

import "strings"

// PorterStemmer implements a reduced form of the Porter stemming
// algorithm for English: the common suffix-stripping steps (plurals,
// -ed/-ing, -ational/-ization family, and a final -y cleanup), each a
// small ordered table of (suffix, replacement, minimum-stem-length)
// rules. It does not implement every measure-based condition of the
// original paper; it is the pragmatic subset most mail/search indexes
// actually rely on.
type PorterStemmer struct{}

type suffixRule struct {
	suffix      string
	replacement string
	minStemLen  int
}

var step1aRules = []suffixRule{
	{"sses", "ss", 0},
	{"ies", "i", 0},
	{"ss", "ss", 0},
	{"s", "", 0},
}

var step1bRules = []suffixRule{
	{"eed", "ee", 1},
	{"ed", "", 0},
	{"ing", "", 0},
}

var step2Rules = []suffixRule{
	{"ational", "ate", 0},
	{"tional", "tion", 0},
	{"enci", "ence", 0},
	{"anci", "ance", 0},
	{"izer", "ize", 0},
	{"abli", "able", 0},
	{"alli", "al", 0},
	{"entli", "ent", 0},
	{"eli", "e", 0},
	{"ousli", "ous", 0},
	{"ization", "ize", 0},
	{"ation", "ate", 0},
	{"ator", "ate", 0},
	{"alism", "al", 0},
	{"iveness", "ive", 0},
	{"fulness", "ful", 0},
	{"ousness", "ous", 0},
	{"aliti", "al", 0},
	{"iviti", "ive", 0},
	{"biliti", "ble", 0},
}

var step3Rules = []suffixRule{
	{"icate", "ic", 0},
	{"ative", "", 0},
	{"alize", "al", 0},
	{"iciti", "ic", 0},
	{"ical", "ic", 0},
	{"ful", "", 0},
	{"ness", "", 0},
}

// Stem implements Stemmer.
func (PorterStemmer) Stem(word string) string {
	if len(word) <= 2 {
		return word
	}
	w := applyFirstMatch(word, step1aRules)
	w = applyFirstMatch(w, step1bRules)
	w = applyFirstMatch(w, step2Rules)
	w = applyFirstMatch(w, step3Rules)
	w = trimTrailingY(w)
	return w
}

func applyFirstMatch(word string, rules []suffixRule) string {
	for _, r := range rules {
		if strings.HasSuffix(word, r.suffix) {
			stem := strings.TrimSuffix(word, r.suffix)
			if len(stem) < r.minStemLen+1 {
				continue
			}
			if stem == "" {
				return word
			}
			return stem + r.replacement
		}
	}
	return word
}

func trimTrailingY(word string) string {
	if len(word) > 2 && strings.HasSuffix(word, "y") && isConsonant(rune(word[len(word)-2])) {
		return strings.TrimSuffix(word, "y") + "i"
	}
	return word
}

func isConsonant(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return false
	default:
		return true
	}
}
