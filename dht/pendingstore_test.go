package dht

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklore/tracklore/id"
	"github.com/tracklore/tracklore/repository"
)

func TestPendingStoreOfferRoundTrip(t *testing.T) {
	p := NewPendingStore()
	convID := []byte("conv-1")
	tag := repository.CompleteTag{Title: "Imagine", TagHash: id.Derive([]byte("imagine"))}
	publishedAt := time.Now()

	p.RecordOffer(convID, tag, publishedAt)

	gotTag, gotTime, ok := p.TakeOffer(convID)
	require.True(t, ok)
	assert.Equal(t, tag, gotTag)
	assert.WithinDuration(t, publishedAt, gotTime, time.Millisecond)

	_, _, ok = p.TakeOffer(convID)
	assert.False(t, ok, "an offer may only be taken once")
}

func TestPendingStoreAcceptanceRoundTrip(t *testing.T) {
	p := NewPendingStore()
	convID := []byte("conv-2")

	p.GrantAcceptance(convID, "udp://originator:9997/kademlia")

	endpoint, ok := p.ConsumeAcceptance(convID)
	require.True(t, ok)
	assert.Equal(t, "udp://originator:9997/kademlia", endpoint)

	_, ok = p.ConsumeAcceptance(convID)
	assert.False(t, ok, "an acceptance may only be consumed once")
}

func TestPendingStorePruneDiscardsAbandonedHandshakes(t *testing.T) {
	p := NewPendingStore()
	p.RecordOffer([]byte("conv-3"), repository.CompleteTag{}, time.Now())
	p.GrantAcceptance([]byte("conv-4"), "udp://originator:9997/kademlia")

	p.Prune(time.Now().Add(StorePendingTimeout + time.Second))

	_, _, ok := p.TakeOffer([]byte("conv-3"))
	assert.False(t, ok)
	_, ok = p.ConsumeAcceptance([]byte("conv-4"))
	assert.False(t, ok)
}
