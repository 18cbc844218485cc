package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/tracklore/tracklore/id"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repo.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func imagineTag() CompleteTag {
	return CompleteTag{
		Title:   "Imagine",
		Artist:  "John Lennon",
		Album:   "Imagine",
		TagHash: id.Derive([]byte("Imagine|John Lennon|Imagine")),
	}
}

func TestStopWordFilteringS3(t *testing.T) {
	tag := CompleteTag{
		Title:   "The Wall",
		Artist:  "Pink Floyd",
		Album:   "The Wall",
		TagHash: id.Derive([]byte("wall")),
	}

	keywords := generateKeywords(tag)

	assert.ElementsMatch(t, []string{"keyword/wall", "keyword/pink", "keyword/floyd"}, keywords)
}

func TestGenerateKeywordsIsStable(t *testing.T) {
	tag := imagineTag()
	first := generateKeywords(tag)
	second := generateKeywords(tag)
	assert.Equal(t, first, second)
}

func TestStoreResourceAndSearchRoundTrip(t *testing.T) {
	s := openTestStore(t)
	tag := imagineTag()

	require.NoError(t, s.StoreResource(tag, "udp://peerA:9997/kademlia"))

	results, err := s.SearchFor("imagine")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, tag.TagHash, results[0].ID)
	assert.True(t, results[0].ContainsURL("udp://peerA:9997/kademlia"))
}

func TestSearchSubstringContainment(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.StoreResource(imagineTag(), "udp://peerA:9997/kademlia"))

	results, err := s.SearchFor("lenn")
	require.NoError(t, err)
	require.Len(t, results, 1, "substring containment should match a partial token")
}

func TestStoreResourceIdempotentURLs(t *testing.T) {
	s := openTestStore(t)
	tag := imagineTag()

	require.NoError(t, s.StoreResource(tag, "udp://peerA:9997/kademlia"))
	require.NoError(t, s.StoreResource(tag, "udp://peerA:9997/kademlia"))

	rec, exists, err := s.Get(tag.TagHash)
	require.NoError(t, err)
	require.True(t, exists)
	assert.Len(t, rec.URLs, 1)
}

func TestDeleteTagRemovesKeywordReferences(t *testing.T) {
	s := openTestStore(t)
	tag := imagineTag()
	require.NoError(t, s.StoreResource(tag, "udp://peerA:9997/kademlia"))

	require.NoError(t, s.DeleteTag(tag.TagHash))

	results, err := s.SearchFor("imagine")
	require.NoError(t, err)
	assert.Empty(t, results)

	_, exists, err := s.Get(tag.TagHash)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExpireRemovesStaleEndpointsAndEmptyResources(t *testing.T) {
	s := openTestStore(t)
	tag := imagineTag()
	require.NoError(t, s.StoreResourceAt(tag, "udp://stale:9997/kademlia", time.Now().Add(-48*time.Hour)))

	require.NoError(t, s.Expire(24*time.Hour))

	_, exists, err := s.Get(tag.TagHash)
	require.NoError(t, err)
	assert.False(t, exists, "resource with only expired endpoints should be removed")
}

func TestGCEmptyKeywordsReclaimsPrunedEntries(t *testing.T) {
	s := openTestStore(t)
	tag := imagineTag()
	require.NoError(t, s.StoreResource(tag, "udp://peerA:9997/kademlia"))

	require.NoError(t, s.DeleteTag(tag.TagHash))

	var markedEmpty, keywordStillPresent bool
	require.NoError(t, s.db.View(func(tx *bolt.Tx) error {
		markedEmpty = tx.Bucket(bucketEmptyKeys).Get([]byte("keyword/imagine")) != nil
		keywordStillPresent = tx.Bucket(bucketKeywords).Get([]byte("keyword/imagine")) != nil
		return nil
	}))
	assert.True(t, markedEmpty, "an emptied keyword must be marked in emptyKeys pending GC")
	assert.True(t, keywordStillPresent, "GCEmptyKeywords, not DeleteTag, reclaims the keyword entry")

	require.NoError(t, s.GCEmptyKeywords())

	require.NoError(t, s.db.View(func(tx *bolt.Tx) error {
		markedEmpty = tx.Bucket(bucketEmptyKeys).Get([]byte("keyword/imagine")) != nil
		keywordStillPresent = tx.Bucket(bucketKeywords).Get([]byte("keyword/imagine")) != nil
		return nil
	}))
	assert.False(t, markedEmpty)
	assert.False(t, keywordStillPresent)
}

func TestGCEmptyKeywordsSparesEntriesReusedBeforeSweep(t *testing.T) {
	s := openTestStore(t)
	tag := imagineTag()
	require.NoError(t, s.StoreResource(tag, "udp://peerA:9997/kademlia"))
	require.NoError(t, s.DeleteTag(tag.TagHash))

	// Re-publish before the sweep runs; the keyword entry is reused rather
	// than recreated, and GC must not delete it out from under the new tag.
	require.NoError(t, s.StoreResource(tag, "udp://peerB:9997/kademlia"))
	require.NoError(t, s.GCEmptyKeywords())

	results, err := s.SearchFor("imagine")
	require.NoError(t, err)
	require.Len(t, results, 1, "GC must not reclaim a keyword entry that was reused before the sweep")
}

func TestClockSkewRejectionScenarioS4(t *testing.T) {
	// STORE_DATA with publicationTime = now+2h should be rejected before
	// ever reaching the repository; this is asserted at the dht layer
	// (see dht package's clock-skew test) — here we only confirm the
	// repository itself stores whatever publication time it's given,
	// placing the rejection responsibility squarely on the caller.
	s := openTestStore(t)
	tag := imagineTag()
	future := time.Now().Add(2 * time.Hour)
	require.NoError(t, s.StoreResourceAt(tag, "udp://peerA:9997/kademlia", future))

	rec, exists, err := s.Get(tag.TagHash)
	require.NoError(t, err)
	require.True(t, exists)
	pt, ok := rec.PublicationTime("udp://peerA:9997/kademlia")
	require.True(t, ok)
	assert.WithinDuration(t, future, pt, time.Second)
}
