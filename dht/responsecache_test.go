package dht

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklore/tracklore/transport"
)

func TestResponseCacheDeliversToLateArrivingAwaiter(t *testing.T) {
	rc := NewResponseCache()
	convID := []byte("conversation-a")

	done := make(chan *transport.Message, 1)
	go func() {
		done <- rc.Await(convID, time.Second, transport.KindPingResponse)
	}()

	time.Sleep(10 * time.Millisecond)
	msg := &transport.Message{Kind: transport.KindPingResponse, ConversationID: convID}
	rc.Put(msg)

	got := <-done
	require.NotNil(t, got)
	assert.Equal(t, transport.KindPingResponse, got.Kind)
}

func TestResponseCacheDeliversResponseThatArrivedFirst(t *testing.T) {
	rc := NewResponseCache()
	convID := []byte("conversation-b")

	rc.Put(&transport.Message{Kind: transport.KindPingResponse, ConversationID: convID})

	got := rc.Await(convID, time.Second, transport.KindPingResponse)
	require.NotNil(t, got)

	// A second Await for the same, now-consumed conversation id must not
	// see the same response again (atomic get-and-remove, invariant 7).
	second := rc.Await(convID, 20*time.Millisecond, transport.KindPingResponse)
	assert.Nil(t, second)
}

func TestResponseCacheTimesOutWithNoResponse(t *testing.T) {
	rc := NewResponseCache()
	got := rc.Await([]byte("conversation-c"), 20*time.Millisecond, transport.KindPingResponse)
	assert.Nil(t, got)
}

func TestResponseCacheDiscriminantMustMatch(t *testing.T) {
	rc := NewResponseCache()
	convID := []byte("conversation-d")

	rc.Put(&transport.Message{Kind: transport.KindFindNodeResponse, ConversationID: convID})

	got := rc.Await(convID, 20*time.Millisecond, transport.KindPingResponse)
	assert.Nil(t, got, "a response with the wrong discriminant must not satisfy the waiter")
}

func TestResponseCachePruneEvictsStaleUnclaimedEntries(t *testing.T) {
	rc := NewResponseCache()
	convID := []byte("conversation-e")
	rc.Put(&transport.Message{Kind: transport.KindPingResponse, ConversationID: convID})

	rc.Prune(time.Now().Add(MaxCacheTime + time.Second))

	got := rc.Await(convID, 20*time.Millisecond, transport.KindPingResponse)
	assert.Nil(t, got, "Prune should have evicted the unclaimed entry")
}
