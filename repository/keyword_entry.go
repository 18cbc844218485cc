package repository

// KeywordEntry is the inverted-index row mapping a normalized keyword id
// (e.g. "keyword/imagine") to the set of resource ids whose metadata
// produced that keyword.
type KeywordEntry struct {
	ID   string          `json:"id"`
	Tags map[string]bool `json:"tags"` // resourceId (hex) -> true
}

func newKeywordEntry(keywordID string) *KeywordEntry {
	return &KeywordEntry{ID: keywordID, Tags: make(map[string]bool)}
}

// Empty reports whether this entry references no resources.
func (k *KeywordEntry) Empty() bool {
	return len(k.Tags) == 0
}
