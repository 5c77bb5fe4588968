package tokenize

// StopWords is a small per-language stop-word table, deliberately not
// exhaustive: it exists to keep common function words out of the index,
// not to be a linguistic reference.
var StopWords = map[string]map[string]bool{
	"en": wordSet("a", "an", "and", "are", "as", "at", "be", "but", "by",
		"for", "if", "in", "into", "is", "it", "no", "not", "of", "on",
		"or", "such", "that", "the", "their", "then", "there", "these",
		"they", "this", "to", "was", "will", "with"),
	"es": wordSet("el", "la", "los", "las", "de", "que", "y", "a", "en",
		"un", "una", "es", "por", "con", "no", "su", "para"),
	"fr": wordSet("le", "la", "les", "de", "et", "un", "une", "est", "en",
		"que", "pour", "dans", "sur", "ne", "pas"),
	"de": wordSet("der", "die", "das", "und", "ist", "ein", "eine", "zu",
		"mit", "nicht", "auf", "für", "von"),
}

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
