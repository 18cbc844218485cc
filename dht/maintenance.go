package dht

import (
	"time"

	"github.com/tracklore/tracklore/dhterrors"
	"github.com/tracklore/tracklore/transport"
)

// mindBuckets drains contactQueue and applies the routing table's admission
// rules. It ranges directly over the channel rather than polling it on a
// ticker — contactQueue is already the synchronization point between
// handler goroutines and this single admission worker.
func (n *Node) mindBuckets() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		case c := <-n.contactQueue:
			if err := n.applyAdmission(c); err != nil {
				n.log.WithError(err).Debug("admission did not seat applicant")
			}
		}
	}
}

// applyAdmission implements SawContact → routing-table admission:
//   - skip the local id
//   - promote (or replace on endpoint change) an already-known contact
//   - insert directly if the owning bucket has room
//   - otherwise ping the bucket's stalest contact (the blocker); if it
//     answers, the applicant is dropped and ErrAdmissionConflict is
//     returned; if not, it is evicted in favor of the applicant.
func (n *Node) applyAdmission(c Contact) error {
	if c.ID.Equal(n.self) {
		return nil
	}

	if existing, ok := n.buckets.Get(c.ID); ok {
		if existing.Endpoint != c.Endpoint {
			n.buckets.Remove(c.ID)
			n.buckets.Put(c)
			return nil
		}
		n.buckets.Promote(c.ID)
		return nil
	}

	if n.buckets.Put(c) {
		return nil
	}

	blocker, hasBlocker := n.buckets.Blocker(c.ID)
	if !hasBlocker {
		// Bucket emptied between Put's rejection and this check; retry.
		n.buckets.Put(c)
		return nil
	}

	resp, err := n.call(blocker.Endpoint, transport.KindPingRequest, pingRequest{}, transport.KindPingResponse)
	if err == nil && resp != nil {
		n.log.WithFields(map[string]interface{}{
			"blocker":   blocker.ID.String(),
			"applicant": c.ID.String(),
		}).Debug("admission conflict, blocker is live")
		return dhterrors.ErrAdmissionConflict
	}

	n.buckets.EvictAndInsert(blocker.ID, c)
	return nil
}

// mindCaches ticks at CacheSweepInterval, evicting stale response-cache
// and pending-store entries.
func (n *Node) mindCaches() {
	defer n.wg.Done()
	ticker := time.NewTicker(CacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case now := <-ticker.C:
			n.responses.Prune(now)
			n.pending.Prune(now)
		}
	}
}

// mindMaintenance ticks at MaintenanceInterval: expires stale resource
// endpoints, republishes locally held resources once per ReplicateTime,
// and refreshes buckets that have gone unqueried for RefreshTime.
func (n *Node) mindMaintenance() {
	defer n.wg.Done()
	ticker := time.NewTicker(MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.runMaintenanceTick()
		}
	}
}

func (n *Node) runMaintenanceTick() {
	if err := n.store.Expire(ExpireTime); err != nil {
		n.log.WithError(err).Warn("expiring stale resources")
	}

	if err := n.store.GCEmptyKeywords(); err != nil {
		n.log.WithError(err).Warn("garbage-collecting empty keyword entries")
	}

	n.replicationMu.Lock()
	due := time.Since(n.lastReplication) > ReplicateTime
	if due {
		n.lastReplication = time.Now()
	}
	n.replicationMu.Unlock()

	if due {
		n.republishAll()
	}

	n.refreshBuckets()
}

func (n *Node) republishAll() {
	resources, err := n.store.GetAllElements()
	if err != nil {
		n.log.WithError(err).Warn("loading resources for republication")
		return
	}
	for _, rec := range resources {
		for endpoint, entry := range rec.URLs {
			n.IterativeStore(rec.Tag, entry.PublicationTime, endpoint)
		}
	}
}

// refreshBuckets runs IterativeFindNode on a random id within each bucket
// that has gone unqueried for longer than RefreshTime.
func (n *Node) refreshBuckets() {
	ids, err := n.buckets.IDsForRefresh(time.Now().Add(-RefreshTime))
	if err != nil {
		n.log.WithError(err).Warn("generating bucket refresh ids")
		return
	}
	for _, target := range ids {
		n.IterativeFindNode(target)
	}
}
