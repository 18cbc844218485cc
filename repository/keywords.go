package repository

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxKeywordLen is the truncation length applied to every normalized
// keyword before it becomes part of a KeywordEntry id.
const maxKeywordLen = 32

// keywordPrefix namespaces keyword ids within the repository's id space,
// as spec'd: KeywordEntry.id = "keyword/" + normalized-keyword.
const keywordPrefix = "keyword/"

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// asciiFold strips combining diacritical marks (e.g. é -> e) via Unicode
// normalization, giving a stable ASCII-ish form independent of the
// reader's font or input method.
func asciiFold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return s
	}
	return out
}

// normalizeKeyword lower-cases, ASCII-folds, and truncates a single token
// to maxKeywordLen characters. It does not add the keywordPrefix.
func normalizeKeyword(token string) string {
	folded := asciiFold(strings.ToLower(token))
	if r := []rune(folded); len(r) > maxKeywordLen {
		folded = string(r[:maxKeywordLen])
	}
	return folded
}

// generateKeywords derives the deduplicated set of keyword ids for a
// track's metadata: concatenate title+artist+album, strip stop-words,
// collapse whitespace, split, normalize each token, and prefix with
// "keyword/". Applying this twice to the same tag always yields the same
// set (the stability invariant tests rely on).
func generateKeywords(tag CompleteTag) []string {
	combined := tag.Title + " " + tag.Artist + " " + tag.Album
	fields := strings.Fields(combined)

	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		lower := strings.ToLower(f)
		if IsStopWord(lower) {
			continue
		}
		kw := keywordPrefix + normalizeKeyword(f)
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// queryTokens splits and lowercases a search query; used by SearchFor for
// substring containment against normalized keyword ids.
func queryTokens(query string) []string {
	fields := strings.Fields(query)
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.ToLower(f)
	}
	return out
}
