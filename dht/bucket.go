package dht

import (
	"sync"
	"time"

	"github.com/tracklore/tracklore/id"
)

// K is the maximum number of contacts a single bucket may hold.
const K = 20

// bucket holds up to K contacts that share a given common-prefix length
// with the local node's ID. Contacts are ordered least-recently-seen
// first, so the head of the slice is always the eviction candidate
// (the "blocker") when the bucket is full.
type bucket struct {
	mu         sync.Mutex
	contacts   []Contact
	lastLookup time.Time
}

func newBucket() *bucket {
	return &bucket{contacts: make([]Contact, 0, K)}
}

// find returns the index of nodeID in the bucket, or -1.
func (b *bucket) find(nodeID id.ID) int {
	for i, c := range b.contacts {
		if c.ID.Equal(nodeID) {
			return i
		}
	}
	return -1
}

// promoteAt moves the contact at index i to the most-recently-seen end.
func (b *bucket) promoteAt(i int, endpoint string) {
	c := b.contacts[i]
	c.LastSeen = time.Now()
	c.Status = StatusGood
	if endpoint != "" {
		c.Endpoint = endpoint
	}
	b.contacts = append(append(b.contacts[:i], b.contacts[i+1:]...), c)
}

// put inserts or promotes a contact. Returns true if the bucket had room
// or the contact already existed; false if the bucket is full and the
// contact is new (the caller must consult blocker()).
func (b *bucket) put(c Contact) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i := b.find(c.ID); i >= 0 {
		b.promoteAt(i, c.Endpoint)
		return true
	}

	if len(b.contacts) < K {
		c.LastSeen = time.Now()
		b.contacts = append(b.contacts, c)
		return true
	}

	return false
}

// promote moves nodeID to the most-recently-seen position in the bucket,
// without changing its endpoint unless endpoint is non-empty. Returns false
// if nodeID is not resident.
func (b *bucket) promote(nodeID id.ID, endpoint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.find(nodeID)
	if i < 0 {
		return false
	}
	b.promoteAt(i, endpoint)
	return true
}

// blocker returns the stalest contact in a full bucket — the one that
// would be evicted to make room for a new applicant — or false if the
// bucket has spare capacity.
func (b *bucket) blocker() (Contact, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.contacts) < K {
		return Contact{}, false
	}
	return b.contacts[0], true
}

// evictAndInsert replaces the stalest contact with the applicant. It is
// the caller's responsibility to have confirmed the blocker is actually
// unresponsive first.
func (b *bucket) evictAndInsert(blockerID id.ID, applicant Contact) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.contacts) == 0 || !b.contacts[0].ID.Equal(blockerID) {
		return false
	}
	applicant.LastSeen = time.Now()
	b.contacts = append(b.contacts[1:], applicant)
	return true
}

func (b *bucket) remove(nodeID id.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.find(nodeID)
	if i < 0 {
		return false
	}
	b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
	return true
}

func (b *bucket) all() []Contact {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Contact, len(b.contacts))
	copy(out, b.contacts)
	return out
}

func (b *bucket) touch() {
	b.mu.Lock()
	b.lastLookup = time.Now()
	b.mu.Unlock()
}

func (b *bucket) staleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastLookup
}

func (b *bucket) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.contacts)
}
