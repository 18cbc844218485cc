package repository

// stopWords is the closed, multilingual list of articles, prepositions,
// and coordinating/correlative/subordinating conjunctions filtered out of
// track metadata before keyword generation. It is fixed and reproducible:
// two peers normalizing the same tag must always agree on its keyword set
// (see the generateKeywords stability invariant).
//
// It is an unexported package variable; this package provides no API for
// extending or replacing it from outside.
var stopWords = buildStopWords()

func buildStopWords() map[string]struct{} {
	words := []string{
		// English: articles, prepositions, conjunctions.
		"a", "an", "the",
		"and", "or", "but", "nor", "so", "yet", "for",
		"of", "in", "on", "at", "by", "to", "with", "from", "into", "onto",
		"over", "under", "about", "against", "between", "through", "during",
		"before", "after", "above", "below", "up", "down", "off", "out",
		"if", "although", "because", "since", "unless", "while", "whereas",

		// Italian: articoli, preposizioni, congiunzioni.
		"il", "lo", "la", "i", "gli", "le", "un", "uno", "una",
		"di", "a", "da", "in", "con", "su", "per", "tra", "fra",
		"e", "ed", "o", "ma", "però", "quindi", "dunque", "se", "perché",
		"mentre", "benché", "affinché",

		// French: articles, prépositions, conjonctions.
		"le", "la", "les", "un", "une", "des",
		"de", "du", "des", "à", "en", "dans", "sur", "sous", "par", "pour",
		"avec", "sans", "entre", "chez", "vers",
		"et", "ou", "mais", "donc", "or", "ni", "car",
		"si", "quand", "comme", "bien", "que", "puisque",
	}

	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// IsStopWord reports whether the lowercased token is in the stop-word list.
func IsStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}
