// Package dht: BucketList is the k-bucket routing table keyed on the local
// node's ID. See bucket.go for the per-bucket container this type manages.
package dht

import (
	"sort"
	"time"

	"github.com/tracklore/tracklore/id"
)

// numBuckets covers every possible common-prefix length with a 160-bit ID
// except a full match (which never occurs for a distinct contact).
const numBuckets = id.Size * 8

// BucketList is the Kademlia routing table: 160 buckets, one per possible
// common-prefix length with the local ID. A Contact belongs to bucket
// CommonPrefixLen(localID, contact.ID); never to more than one bucket; the
// local ID itself is never a member.
type BucketList struct {
	self    id.ID
	buckets [numBuckets]*bucket
}

// NewBucketList creates an empty routing table for the given local ID.
func NewBucketList(self id.ID) *BucketList {
	bl := &BucketList{self: self}
	for i := range bl.buckets {
		bl.buckets[i] = newBucket()
	}
	return bl
}

func (bl *BucketList) indexFor(target id.ID) int {
	idx := bl.self.CommonPrefixLen(target)
	if idx >= numBuckets {
		idx = numBuckets - 1
	}
	return idx
}

// Put inserts or promotes a contact. It returns true if the contact is now
// resident in the table (inserted, promoted, or re-bound), false if the
// bucket is full of other contacts and the caller must consult Blocker to
// decide whether to evict.
func (bl *BucketList) Put(c Contact) bool {
	if c.ID.Equal(bl.self) {
		return false
	}
	return bl.buckets[bl.indexFor(c.ID)].put(c)
}

// Promote moves id's contact to the most-recently-seen position in its
// bucket, without changing its endpoint.
func (bl *BucketList) Promote(nodeID id.ID) bool {
	if nodeID.Equal(bl.self) {
		return false
	}
	return bl.buckets[bl.indexFor(nodeID)].promote(nodeID, "")
}

// Blocker reports the stalest contact in the bucket that would receive id,
// if that bucket is currently full; ok is false if there is spare capacity.
func (bl *BucketList) Blocker(nodeID id.ID) (Contact, bool) {
	return bl.buckets[bl.indexFor(nodeID)].blocker()
}

// EvictAndInsert replaces blockerID with applicant in the bucket applicant
// would occupy, provided blockerID is still the bucket's stalest entry.
func (bl *BucketList) EvictAndInsert(blockerID id.ID, applicant Contact) bool {
	return bl.buckets[bl.indexFor(applicant.ID)].evictAndInsert(blockerID, applicant)
}

// Remove deletes nodeID from the table, if present.
func (bl *BucketList) Remove(nodeID id.ID) bool {
	return bl.buckets[bl.indexFor(nodeID)].remove(nodeID)
}

// Contains reports whether nodeID is currently resident in the table.
func (bl *BucketList) Contains(nodeID id.ID) bool {
	_, ok := bl.Get(nodeID)
	return ok
}

// Get returns the stored contact for nodeID, if any.
func (bl *BucketList) Get(nodeID id.ID) (Contact, bool) {
	for _, c := range bl.buckets[bl.indexFor(nodeID)].all() {
		if c.ID.Equal(nodeID) {
			return c, true
		}
	}
	return Contact{}, false
}

// Touch updates the lastLookup timestamp of the bucket that would contain
// target, recording that a lookup passed through that distance range.
func (bl *BucketList) Touch(target id.ID) {
	bl.buckets[bl.indexFor(target)].touch()
}

// CloseContacts returns up to n contacts closest to target by XOR
// distance, excluding excludeID (if non-zero) and the local ID.
func (bl *BucketList) CloseContacts(n int, target id.ID, excludeID id.ID) []Contact {
	all := bl.All()

	sort.Slice(all, func(i, j int) bool {
		return all[i].Distance(target).Less(all[j].Distance(target))
	})

	out := make([]Contact, 0, n)
	for _, c := range all {
		if c.ID.Equal(excludeID) {
			continue
		}
		out = append(out, c)
		if len(out) == n {
			break
		}
	}
	return out
}

// CloseK is CloseContacts bounded to the standard bucket size K.
func (bl *BucketList) CloseK(target id.ID, excludeID id.ID) []Contact {
	return bl.CloseContacts(K, target, excludeID)
}

// All returns every contact known across every bucket.
func (bl *BucketList) All() []Contact {
	out := make([]Contact, 0, numBuckets*K)
	for _, b := range bl.buckets {
		out = append(out, b.all()...)
	}
	return out
}

// BucketIndexOf exposes the bucket index a given ID would occupy; used by
// property tests to verify the routing invariant bucketIndexOf(c.id) ==
// commonPrefixLength(localId, c.id).
func (bl *BucketList) BucketIndexOf(nodeID id.ID) int {
	return bl.indexFor(nodeID)
}

// IDsForRefresh returns, for each bucket whose lastLookup predates
// threshold, a random ID within that bucket's distance range — the seed
// for RefreshBuckets in the maintenance loop.
func (bl *BucketList) IDsForRefresh(threshold time.Time) ([]id.ID, error) {
	var out []id.ID
	for i, b := range bl.buckets {
		if b.staleSince().After(threshold) {
			continue
		}
		candidate, err := id.RandomWithPrefix(bl.self, i)
		if err != nil {
			return nil, err
		}
		out = append(out, candidate)
	}
	return out, nil
}
