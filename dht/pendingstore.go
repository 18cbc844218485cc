package dht

import (
	"sync"
	"time"

	"github.com/tracklore/tracklore/repository"
)

// StorePendingTimeout bounds how long a half-finished STORE exchange is
// kept before MindCaches discards it as abandoned.
const StorePendingTimeout = 30 * time.Second

// offer is what the sender of a STORE_QUERY remembers while waiting for
// the STORE_RESPONSE: the tag and publication time it will send as
// STORE_DATA if the remote peer asks for it.
type offer struct {
	tag             repository.CompleteTag
	publicationTime time.Time
	recorded        time.Time
}

// acceptance is what the receiver of a STORE_QUERY remembers, between
// replying ShouldSendData=true and the STORE_DATA that should follow: the
// originator endpoint the eventual STORE_DATA's tag should be filed under.
type acceptance struct {
	originatorEndpoint string
	recorded           time.Time
}

// PendingStore tracks both halves of the two-phase STORE handshake: the
// offers this node has sent out awaiting a response, and the acceptances
// this node has granted awaiting the promised data.
type PendingStore struct {
	mu          sync.Mutex
	offers      map[string]offer
	acceptances map[string]acceptance
}

// NewPendingStore creates empty offer/acceptance tables.
func NewPendingStore() *PendingStore {
	return &PendingStore{
		offers:      make(map[string]offer),
		acceptances: make(map[string]acceptance),
	}
}

// RecordOffer remembers what to send as STORE_DATA if conversationID is
// accepted.
func (p *PendingStore) RecordOffer(conversationID []byte, tag repository.CompleteTag, publicationTime time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers[keyOf(conversationID)] = offer{tag: tag, publicationTime: publicationTime, recorded: time.Now()}
}

// TakeOffer retrieves and removes a previously recorded offer, for use
// once a STORE_RESPONSE with ShouldSendData=true arrives.
func (p *PendingStore) TakeOffer(conversationID []byte) (repository.CompleteTag, time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := keyOf(conversationID)
	o, ok := p.offers[key]
	if !ok {
		return repository.CompleteTag{}, time.Time{}, false
	}
	delete(p.offers, key)
	return o.tag, o.publicationTime, true
}

// GrantAcceptance remembers that this node has told a peer to go ahead
// and send STORE_DATA for conversationID, and which originator endpoint
// that data should be filed under.
func (p *PendingStore) GrantAcceptance(conversationID []byte, originatorEndpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acceptances[keyOf(conversationID)] = acceptance{originatorEndpoint: originatorEndpoint, recorded: time.Now()}
}

// ConsumeAcceptance retrieves and removes a previously granted acceptance,
// so a STORE_DATA can only ever be consumed once.
func (p *PendingStore) ConsumeAcceptance(conversationID []byte) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := keyOf(conversationID)
	a, ok := p.acceptances[key]
	delete(p.acceptances, key)
	return a.originatorEndpoint, ok
}

// Prune discards offers and acceptances older than StorePendingTimeout,
// treating an abandoned handshake the same as one that never happened.
func (p *PendingStore) Prune(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, o := range p.offers {
		if now.Sub(o.recorded) > StorePendingTimeout {
			delete(p.offers, key)
		}
	}
	for key, a := range p.acceptances {
		if now.Sub(a.recorded) > StorePendingTimeout {
			delete(p.acceptances, key)
		}
	}
}
