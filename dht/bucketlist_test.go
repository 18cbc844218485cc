package dht

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklore/tracklore/id"
)

func mustID(t *testing.T) id.ID {
	t.Helper()
	nodeID, err := id.New()
	require.NoError(t, err)
	return nodeID
}

func TestBucketIndexMatchesCommonPrefixLength(t *testing.T) {
	self := mustID(t)
	bl := NewBucketList(self)

	// K contacts in total, so no bucket can fill up and every Put succeeds.
	for i := 0; i < K; i++ {
		other := mustID(t)
		require.True(t, bl.Put(NewContact(other, "udp://peer/kademlia")))
		assert.Equal(t, self.CommonPrefixLen(other), bl.BucketIndexOf(other))
	}
}

func TestBucketNeverExceedsK(t *testing.T) {
	self := mustID(t)
	self[0] |= 0x80
	bl := NewBucketList(self)

	// Force every contact into the same bucket by clearing the leading
	// bit self has set, so every contact differs from self in its first bit
	// (common prefix length 0) and lands in bucket 0.
	var inserted int
	for i := 0; i < K+5; i++ {
		other := mustID(t)
		other[0] &^= 0x80
		if bl.Put(NewContact(other, "udp://peer/kademlia")) {
			inserted++
		}
	}
	assert.LessOrEqual(t, inserted, K)
	assert.LessOrEqual(t, len(bl.All()), K)
}

func TestCloseContactsSortedByDistanceAndDeduped(t *testing.T) {
	self := mustID(t)
	bl := NewBucketList(self)

	for i := 0; i < 10; i++ {
		other := mustID(t)
		require.True(t, bl.Put(NewContact(other, "udp://peer/kademlia")))
	}

	target := mustID(t)
	closest := bl.CloseContacts(5, target, id.Zero)
	require.LessOrEqual(t, len(closest), 5)

	seen := make(map[id.ID]bool)
	for i, c := range closest {
		assert.False(t, seen[c.ID], "duplicate contact in CloseContacts result")
		seen[c.ID] = true
		if i > 0 {
			prevDist := closest[i-1].Distance(target)
			currDist := c.Distance(target)
			assert.False(t, currDist.Less(prevDist), "CloseContacts must be sorted ascending by distance")
		}
	}
}

func TestPromoteMovesContactToMostRecent(t *testing.T) {
	self := mustID(t)
	self[0] |= 0x80
	bl := NewBucketList(self)
	other := mustID(t)
	other[0] &^= 0x80
	second := mustID(t)
	second[0] &^= 0x80
	require.True(t, bl.Put(NewContact(other, "udp://peer/kademlia")))
	require.True(t, bl.Put(NewContact(second, "udp://peer/kademlia")))

	time.Sleep(time.Millisecond)
	require.True(t, bl.Promote(other))

	c, ok := bl.Get(other)
	require.True(t, ok)
	assert.Equal(t, StatusGood, c.Status)

	// Both contacts share bucket 0; the promoted one is now at its tail.
	all := bl.All()
	require.Len(t, all, 2)
	assert.Equal(t, other, all[len(all)-1].ID, "a promoted contact must move to the most-recently-seen end")
}

func TestBlockerReportsStalestWhenFull(t *testing.T) {
	self := mustID(t)
	self[0] |= 0x80
	bl := NewBucketList(self)

	var first Contact
	for i := 0; i < K; i++ {
		other := mustID(t)
		other[0] &^= 0x80
		c := NewContact(other, "udp://peer/kademlia")
		if i == 0 {
			first = c
		}
		require.True(t, bl.Put(c))
		time.Sleep(time.Microsecond)
	}

	applicant := mustID(t)
	applicant[0] &^= 0x80
	assert.False(t, bl.Put(NewContact(applicant, "udp://applicant/kademlia")))

	blocker, hasBlocker := bl.Blocker(applicant)
	require.True(t, hasBlocker)
	assert.Equal(t, first.ID, blocker.ID)

	require.True(t, bl.EvictAndInsert(blocker.ID, NewContact(applicant, "udp://applicant/kademlia")))
	assert.True(t, bl.Contains(applicant))
	assert.False(t, bl.Contains(first.ID))
}

func TestIDsForRefreshSkipsRecentlyTouchedBuckets(t *testing.T) {
	self := mustID(t)
	bl := NewBucketList(self)
	other := mustID(t)
	require.True(t, bl.Put(NewContact(other, "udp://peer/kademlia")))

	bl.Touch(other)

	ids, err := bl.IDsForRefresh(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	for _, refreshID := range ids {
		assert.NotEqual(t, bl.BucketIndexOf(other), bl.BucketIndexOf(refreshID))
	}
}
