package dht

import (
	"time"

	"github.com/tracklore/tracklore/id"
)

// NodeStatus tracks whether a contact has been responsive recently enough
// to trust for routing decisions.
type NodeStatus uint8

const (
	StatusUnknown NodeStatus = iota
	StatusGood
	StatusBad
)

// Contact is a peer's (ID, endpoint) pair as known locally. Equality is by
// ID alone — the endpoint may change for a given ID across a re-bind, in
// which case BucketList.Put replaces the stored endpoint rather than
// treating it as a new contact.
type Contact struct {
	ID       id.ID
	Endpoint string
	LastSeen time.Time
	Status   NodeStatus
}

// NewContact builds a Contact freshly seen at the current time.
func NewContact(nodeID id.ID, endpoint string) Contact {
	return Contact{
		ID:       nodeID,
		Endpoint: endpoint,
		LastSeen: time.Now(),
		Status:   StatusUnknown,
	}
}

// Distance is the XOR distance between this contact and the given target.
func (c Contact) Distance(target id.ID) id.ID {
	return c.ID.XOR(target)
}
