package dht

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklore/tracklore/dhterrors"
	"github.com/tracklore/tracklore/id"
	"github.com/tracklore/tracklore/repository"
	"github.com/tracklore/tracklore/transport"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()

	selfID, err := id.New()
	require.NoError(t, err)

	store, err := repository.Open(filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)

	tr, err := transport.NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)

	endpoint := transport.EndpointFor(tr.LocalAddr().String())
	n := NewNode(selfID, endpoint, tr, store, "test")
	n.Start()

	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func TestBootstrapSeedsBothRoutingTables(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	ok := b.Bootstrap(a.Endpoint())
	require.True(t, ok, "bootstrap should succeed against a live peer")

	// Give A's async admission (queued by its handlers for B's PING and
	// any FIND_NODE that followed) a moment to register B.
	assert.Eventually(t, func() bool {
		return a.Buckets().Contains(b.SelfID())
	}, time.Second, 10*time.Millisecond)

	assert.True(t, b.Buckets().Contains(a.SelfID()))
}

func TestPutGetSingleHopRoundTrip(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	require.True(t, b.Bootstrap(a.Endpoint()))
	require.Eventually(t, func() bool {
		return a.Buckets().Contains(b.SelfID())
	}, time.Second, 10*time.Millisecond)

	tag := repository.CompleteTag{
		Title:   "Imagine",
		Artist:  "John Lennon",
		Album:   "Imagine",
		TagHash: id.Derive([]byte("Imagine|John Lennon|Imagine")),
	}
	a.Put(tag)

	var results []repository.ResourceRecord
	require.Eventually(t, func() bool {
		results = b.Get("imagine")
		return len(results) > 0
	}, time.Second, 20*time.Millisecond)

	require.Len(t, results, 1)
	assert.Equal(t, "Imagine", results[0].Tag.Title)
	assert.True(t, results[0].ContainsURL(a.Endpoint()))
}

func TestStoreDataRejectedOutsideClockSkew(t *testing.T) {
	a := newTestNode(t)

	tag := repository.CompleteTag{Title: "Future Track", TagHash: id.Derive([]byte("future"))}

	convID, err := id.New()
	require.NoError(t, err)
	a.pending.GrantAcceptance(convID.Bytes(), "udp://originator:9997/kademlia")

	future := time.Now().Add(2 * time.Hour)
	msg, err := transport.NewMessage(transport.KindStoreData, id.Zero.Bytes(), "udp://originator:9997/kademlia", convID.Bytes(),
		storeDataRequest{Tag: tag, OriginalPublicationTime: future})
	require.NoError(t, err)

	err = a.handleStoreData(msg, a.tr.LocalAddr())
	assert.ErrorIs(t, err, dhterrors.ErrClockSkewRejection)

	_, exists, err := a.store.Get(tag.TagHash)
	require.NoError(t, err)
	assert.False(t, exists, "STORE_DATA with a publication time beyond MaxClockSkew must not be persisted")
}

// bucketZeroContact builds a contact guaranteed to land in self's bucket 0
// by forcing the two IDs to differ in their leading bit, matching the
// technique bucketlist_test.go uses to fill a bucket deterministically.
func bucketZeroContact(t *testing.T, self id.ID, endpoint string) Contact {
	t.Helper()
	other := mustID(t)
	if self[0]&0x80 != 0 {
		other[0] &^= 0x80
	} else {
		other[0] |= 0x80
	}
	return NewContact(other, endpoint)
}

func fillBucketZero(t *testing.T, n *Node) {
	t.Helper()
	self := n.SelfID()
	for i := 0; i < K; i++ {
		c := bucketZeroContact(t, self, "udp://127.0.0.1:1/kademlia")
		require.True(t, n.Buckets().Put(c))
		time.Sleep(time.Microsecond)
	}
}

// TestAdmissionConflictKeepsLiveBlocker drives applyAdmission through a full
// bucket whose stalest contact (the blocker) is a genuinely live, responding
// peer. The applicant must be rejected and the blocker kept.
func TestAdmissionConflictKeepsLiveBlocker(t *testing.T) {
	a := newTestNode(t)
	blockerNode := newTestNode(t)

	self := a.SelfID()
	blockerContact := bucketZeroContact(t, self, blockerNode.Endpoint())
	require.True(t, a.Buckets().Put(blockerContact))
	time.Sleep(time.Microsecond)

	for i := 0; i < K-1; i++ {
		c := bucketZeroContact(t, self, "udp://127.0.0.1:1/kademlia")
		require.True(t, a.Buckets().Put(c))
		time.Sleep(time.Microsecond)
	}

	applicant := bucketZeroContact(t, self, "udp://applicant:9997/kademlia")

	err := a.applyAdmission(applicant)
	assert.ErrorIs(t, err, dhterrors.ErrAdmissionConflict)

	assert.True(t, a.Buckets().Contains(blockerContact.ID), "a live blocker must be kept")
	assert.False(t, a.Buckets().Contains(applicant.ID), "the applicant must be rejected when the blocker answers")
}

// TestAdmissionEvictsDeadBlocker drives applyAdmission through a full bucket
// whose stalest contact is unreachable. The blocker must be evicted and the
// applicant admitted in its place.
func TestAdmissionEvictsDeadBlocker(t *testing.T) {
	a := newTestNode(t)

	self := a.SelfID()
	fillBucketZero(t, a)

	applicant := bucketZeroContact(t, self, "udp://applicant:9997/kademlia")

	blocker, hasBlocker := a.Buckets().Blocker(applicant.ID)
	require.True(t, hasBlocker)

	err := a.applyAdmission(applicant)
	require.NoError(t, err)

	assert.True(t, a.Buckets().Contains(applicant.ID), "the applicant must be admitted once the blocker fails to respond")
	assert.False(t, a.Buckets().Contains(blocker.ID), "an unresponsive blocker must be evicted")
}

func TestIterativeFindNodeSurvivesAnUnresponsivePeer(t *testing.T) {
	a := newTestNode(t)

	liveTarget := mustID(t)
	liveContact := NewContact(liveTarget, "udp://127.0.0.1:1/kademlia")

	deadTarget := mustID(t)
	deadContact := NewContact(deadTarget, "udp://127.0.0.1:2/kademlia")

	require.True(t, a.Buckets().Put(liveContact))
	require.True(t, a.Buckets().Put(deadContact))

	// Neither address is a real listener, so both "peers" will time out —
	// this exercises the shortlist-removal path without depending on a
	// genuinely responsive second node.
	start := time.Now()
	results := a.IterativeFindNode(mustID(t))
	elapsed := time.Since(start)

	assert.Empty(t, results)
	assert.Less(t, elapsed, 3*time.Second, "an unresponsive shortlist must not stall the lookup indefinitely")
}
