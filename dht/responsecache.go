package dht

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/tracklore/tracklore/transport"
)

// MaxCacheTime bounds how long an unclaimed response may sit in the cache
// before MindCaches prunes it.
const MaxCacheTime = 30 * time.Second

// responseSlot holds either a response that arrived before anyone awaited
// it (msg set, waiter nil) or a waiter registered before any response
// arrived (waiter set, msg nil). Put and Await each resolve the slot and
// remove it — at most one waiter per conversation id, resolved by
// response arrival or timeout, never both.
type responseSlot struct {
	msg     *transport.Message
	arrived time.Time
	waiter  chan *transport.Message
}

// ResponseCache correlates asynchronous inbound responses back to waiting
// callers via conversation id, using a single-shot channel per conversation
// rather than a polling loop: at most one waiter per conversation id,
// resolved by response arrival or timeout.
type ResponseCache struct {
	mu   sync.Mutex
	slot map[string]*responseSlot
}

// NewResponseCache creates an empty cache.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{slot: make(map[string]*responseSlot)}
}

func keyOf(conversationID []byte) string {
	return hex.EncodeToString(conversationID)
}

// Put records an inbound response. If a caller is already awaiting this
// conversation id, the response is delivered to them immediately and the
// entry is cleared; otherwise it waits in the cache until claimed by
// Await or pruned by Prune.
func (rc *ResponseCache) Put(msg *transport.Message) {
	key := keyOf(msg.ConversationID)

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if existing, ok := rc.slot[key]; ok && existing.waiter != nil {
		existing.waiter <- msg
		delete(rc.slot, key)
		return
	}

	rc.slot[key] = &responseSlot{msg: msg, arrived: time.Now()}
}

// Await blocks for a response to conversationID whose Kind is one of
// expected (any kind, if expected is empty), up to timeout. It returns nil
// if the wait times out or a response arrives with a non-matching Kind
// (treated as a non-match, per the "discriminant must match" contract —
// the entry is still consumed either way).
func (rc *ResponseCache) Await(conversationID []byte, timeout time.Duration, expected ...transport.Kind) *transport.Message {
	key := keyOf(conversationID)

	rc.mu.Lock()
	if existing, ok := rc.slot[key]; ok && existing.msg != nil {
		delete(rc.slot, key)
		rc.mu.Unlock()
		if !kindMatches(existing.msg.Kind, expected) {
			return nil
		}
		return existing.msg
	}

	ch := make(chan *transport.Message, 1)
	rc.slot[key] = &responseSlot{waiter: ch}
	rc.mu.Unlock()

	select {
	case msg := <-ch:
		if !kindMatches(msg.Kind, expected) {
			return nil
		}
		return msg
	case <-time.After(timeout):
		rc.mu.Lock()
		delete(rc.slot, key)
		rc.mu.Unlock()
		return nil
	}
}

func kindMatches(kind transport.Kind, expected []transport.Kind) bool {
	if len(expected) == 0 {
		return true
	}
	for _, k := range expected {
		if k == kind {
			return true
		}
	}
	return false
}

// Prune removes cached-but-unclaimed responses older than MaxCacheTime.
// Waiters (no msg yet) are never pruned here; their own timeout governs.
func (rc *ResponseCache) Prune(now time.Time) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for key, s := range rc.slot {
		if s.msg != nil && now.Sub(s.arrived) > MaxCacheTime {
			delete(rc.slot, key)
		}
	}
}
