package dht

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tracklore/tracklore/dhterrors"
	"github.com/tracklore/tracklore/id"
	"github.com/tracklore/tracklore/repository"
	"github.com/tracklore/tracklore/transport"
)

// Protocol constants governing lookup parallelism and background timing.
const (
	// Alpha is the parallelism of iterative lookups.
	Alpha = 3

	// MaxSyncWait bounds how long an outbound RPC waits for its response.
	MaxSyncWait = 500 * time.Millisecond

	// MaxClockSkew is the acceptable future offset for incoming
	// publication times.
	MaxClockSkew = 1 * time.Hour

	// ExpireTime is how long an endpoint may go un-refreshed before
	// MindMaintenance removes it.
	ExpireTime = 24 * time.Hour

	// ReplicateTime is how often locally held resources are
	// re-advertised to the network.
	ReplicateTime = 1 * time.Hour

	// RefreshTime is how long a bucket may go un-queried before
	// MindMaintenance refreshes it.
	RefreshTime = 1 * time.Hour

	// MaintenanceInterval is the tick of the MindMaintenance loop.
	MaintenanceInterval = 10 * time.Minute

	// CacheSweepInterval is the tick of the MindCaches loop.
	CacheSweepInterval = 5 * time.Second

	// ContactQueueSize bounds the admission queue MindBuckets drains;
	// writes are dropped, not blocked, once it is full.
	ContactQueueSize = 10
)

// Node orchestrates the routing table, the repository, the response and
// pending-store caches, and the three maintenance loops behind a single
// Kademlia peer.
type Node struct {
	self         id.ID
	selfEndpoint string

	tr    transport.Transport
	store *repository.Store

	buckets   *BucketList
	responses *ResponseCache
	pending   *PendingStore

	contactQueue chan Contact

	replicationMu   sync.Mutex
	lastReplication time.Time

	log *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNode builds a node bound to self/selfEndpoint, registers RPC handlers
// on tr, and backs resource storage with store. instanceID tags every log
// line emitted by this node so aggregated logs can distinguish peers
// across process restarts.
func NewNode(self id.ID, selfEndpoint string, tr transport.Transport, store *repository.Store, instanceID string) *Node {
	n := &Node{
		self:         self,
		selfEndpoint: selfEndpoint,
		tr:           tr,
		store:        store,
		buckets:      NewBucketList(self),
		responses:    NewResponseCache(),
		pending:      NewPendingStore(),
		contactQueue: make(chan Contact, ContactQueueSize),
		log: logrus.WithFields(logrus.Fields{
			"component":   "dht.Node",
			"instance_id": instanceID,
			"self":        self.String(),
		}),
	}

	tr.RegisterHandler(transport.KindPingRequest, n.handlePing)
	tr.RegisterHandler(transport.KindPingResponse, n.handlePong)
	tr.RegisterHandler(transport.KindFindNode, n.handleFindNode)
	tr.RegisterHandler(transport.KindFindNodeResponse, n.handleFindNodeResponse)
	tr.RegisterHandler(transport.KindFindValue, n.handleFindValue)
	tr.RegisterHandler(transport.KindFindValueContactResponse, n.handleFindValueResponse)
	tr.RegisterHandler(transport.KindFindValueDataResponse, n.handleFindValueResponse)
	tr.RegisterHandler(transport.KindStoreQuery, n.handleStoreQuery)
	tr.RegisterHandler(transport.KindStoreResponse, n.handleStoreResponse)
	tr.RegisterHandler(transport.KindStoreData, n.handleStoreData)

	return n
}

// Start launches the three maintenance loops. It is safe to call once per
// Node; calling it twice is a programming error left undetected.
func (n *Node) Start() {
	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.replicationMu.Lock()
	n.lastReplication = time.Now()
	n.replicationMu.Unlock()

	n.wg.Add(3)
	go n.mindBuckets()
	go n.mindCaches()
	go n.mindMaintenance()
}

// Stop cancels the maintenance loops, waits for them to exit, then closes
// the transport and disposes the repository.
func (n *Node) Stop() error {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()

	if err := n.tr.Close(); err != nil {
		n.log.WithError(err).Warn("closing transport")
	}
	return n.store.Close()
}

// SelfID returns the local node identifier.
func (n *Node) SelfID() id.ID { return n.self }

// Endpoint returns the local node's advertised endpoint.
func (n *Node) Endpoint() string { return n.selfEndpoint }

// Buckets exposes the routing table, mainly for tests and diagnostics.
func (n *Node) Buckets() *BucketList { return n.buckets }

// Put computes the resource's id from tag.TagHash and runs an iterative
// store so up to K peers closest to that id learn this node serves it.
// Best-effort: errors are logged, never returned.
func (n *Node) Put(tag repository.CompleteTag) {
	n.IterativeStore(tag, time.Now(), n.selfEndpoint)
}

// Get searches the local repository for query first and, only if nothing
// matches there, runs an iterative value lookup and returns whatever
// resources the swarm reports; an empty slice, never an error, signals no
// matches.
func (n *Node) Get(query string) []repository.ResourceRecord {
	if local, err := n.store.SearchFor(query); err != nil {
		n.log.WithError(err).Warn("local search failed")
	} else if len(local) > 0 {
		return local
	}
	return n.IterativeFindValue(query)
}

// Bootstrap seeds the routing table from a single known peer by asking it
// (via PING, to learn its id) and then running IterativeFindNode on our
// own id so the wider network learns about us. It reports whether the
// bootstrap peer answered.
func (n *Node) Bootstrap(peerEndpoint string) bool {
	resp, err := n.call(peerEndpoint, transport.KindPingRequest, pingRequest{})
	if err != nil || resp == nil {
		n.log.WithField("peer", peerEndpoint).Warn("bootstrap peer unreachable")
		return false
	}

	peerID, ok := senderIDOf(resp)
	if !ok {
		n.log.WithField("peer", peerEndpoint).Warn("bootstrap peer sent malformed sender id")
		return false
	}
	n.SawContact(peerID, peerEndpoint)
	n.IterativeFindNode(n.self)
	return true
}

// SawContact is the single entrypoint admission runs through: every
// inbound message, before being type-dispatched, reports its sender here.
// Queueing is best-effort — a full queue drops the applicant, matching
// the bounded contactQueue in the maintenance design.
func (n *Node) SawContact(senderID id.ID, senderEndpoint string) {
	if senderID.Equal(n.self) {
		return
	}
	select {
	case n.contactQueue <- NewContact(senderID, senderEndpoint):
	default:
		n.log.WithField("sender", senderID.String()).Debug("contact queue full, dropping admission")
	}
}

// call performs one outbound synchronous RPC: allocate a conversation id,
// dispatch kind/payload to endpoint, and wait up to MaxSyncWait for a
// response of one of acceptedResponses (any kind, if none given).
func (n *Node) call(endpoint string, kind transport.Kind, payload interface{}, acceptedResponses ...transport.Kind) (*transport.Message, error) {
	conversationID, err := id.New()
	if err != nil {
		return nil, err
	}

	msg, err := transport.NewMessage(kind, n.self.Bytes(), n.selfEndpoint, conversationID.Bytes(), payload)
	if err != nil {
		return nil, err
	}

	addr, err := transport.ResolveEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	if err := n.tr.Send(msg, addr); err != nil {
		return nil, dhterrors.NewPeerUnreachable(endpoint, err)
	}

	resp := n.responses.Await(conversationID.Bytes(), MaxSyncWait, acceptedResponses...)
	if resp == nil {
		return nil, dhterrors.NewPeerUnreachable(endpoint, nil)
	}
	return resp, nil
}

// senderIDOf parses the sender id carried on every inbound message.
func senderIDOf(msg *transport.Message) (id.ID, bool) {
	if len(msg.SenderID) != id.Size {
		return id.ID{}, false
	}
	var out id.ID
	copy(out[:], msg.SenderID)
	return out, true
}
