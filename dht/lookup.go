package dht

import (
	"sort"
	"sync"
	"time"

	"github.com/tracklore/tracklore/id"
	"github.com/tracklore/tracklore/repository"
	"github.com/tracklore/tracklore/transport"
)

// shortlist tracks the candidate set an iterative lookup is converging on:
// contacts merged in from responses, each marked queried once asked.
type shortlist struct {
	target id.ID

	mu       sync.Mutex
	contacts map[id.ID]Contact
	queried  map[id.ID]bool
}

func newShortlist(target id.ID, seed []Contact) *shortlist {
	s := &shortlist{
		target:   target,
		contacts: make(map[id.ID]Contact),
		queried:  make(map[id.ID]bool),
	}
	for _, c := range seed {
		s.contacts[c.ID] = c
	}
	return s
}

func (s *shortlist) merge(contacts []Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range contacts {
		if _, already := s.contacts[c.ID]; !already {
			s.contacts[c.ID] = c
		}
	}
}

func (s *shortlist) remove(nodeID id.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contacts, nodeID)
}

func (s *shortlist) markQueried(nodeID id.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queried[nodeID] = true
}

// nextUnqueried returns up to n contacts, closest to target first, that
// have not yet been queried.
func (s *shortlist) nextUnqueried(n int) []Contact {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]Contact, 0, len(s.contacts))
	for nodeID, c := range s.contacts {
		if !s.queried[nodeID] {
			candidates = append(candidates, c)
		}
	}
	sortByDistance(candidates, s.target)
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// closestK returns up to k contacts currently held, closest to target first.
func (s *shortlist) closestK(k int) []Contact {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		all = append(all, c)
	}
	sortByDistance(all, s.target)
	if len(all) > k {
		all = all[:k]
	}
	return all
}

func sortByDistance(contacts []Contact, target id.ID) {
	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].Distance(target).Less(contacts[j].Distance(target))
	})
}

// lookupOutcome is what a single RPC against one shortlist candidate
// produces: either more contacts to merge in, or — for FIND_VALUE — a hit
// of resources that ends the lookup immediately.
type lookupOutcome struct {
	contacts  []Contact
	resources []repository.ResourceRecord
	hit       bool
}

type queryFn func(Contact) (lookupOutcome, error)

// runLookup drives the iterative α-parallel convergence shared by
// IterativeFindNode and IterativeFindValue: seed from the local routing
// table, fan out to the closest unqueried contacts each round, merge
// responses in, drop non-responders, and stop once either a value hit
// arrives or K contacts have answered / no further candidates remain.
func (n *Node) runLookup(target id.ID, query queryFn) (closest []Contact, resources []repository.ResourceRecord) {
	n.buckets.Touch(target)
	seed := n.buckets.CloseContacts(Alpha, target, n.self)
	sl := newShortlist(target, seed)

	queried := 0
	for {
		batch := sl.nextUnqueried(Alpha)
		if len(batch) == 0 {
			break
		}

		type result struct {
			contact Contact
			outcome lookupOutcome
			err     error
		}
		results := make(chan result, len(batch))

		for _, c := range batch {
			c := c
			sl.markQueried(c.ID)
			go func() {
				outcome, err := query(c)
				results <- result{contact: c, outcome: outcome, err: err}
			}()
		}

		for i := 0; i < len(batch); i++ {
			r := <-results
			if r.err != nil {
				sl.remove(r.contact.ID)
				continue
			}
			queried++
			if r.outcome.hit {
				return nil, r.outcome.resources
			}
			sl.merge(r.outcome.contacts)
		}

		if queried >= K {
			break
		}
	}

	return sl.closestK(K), nil
}

// IterativeFindNode returns up to K contacts closest to target. Termination
// follows a "truncate to K queried" rule rather than the stricter
// no-closer-round optimisation from the Kademlia paper.
func (n *Node) IterativeFindNode(target id.ID) []Contact {
	closest, _ := n.runLookup(target, func(c Contact) (lookupOutcome, error) {
		resp, err := n.call(c.Endpoint, transport.KindFindNode, findNodeRequest{Target: target}, transport.KindFindNodeResponse)
		if err != nil {
			return lookupOutcome{}, err
		}
		var payload findNodeResponse
		if err := resp.Decode(&payload); err != nil {
			return lookupOutcome{}, err
		}
		return lookupOutcome{contacts: fromWireContacts(payload.Contacts)}, nil
	})
	return closest
}

// IterativeFindValue runs the same shape of lookup as IterativeFindNode but
// sends FIND_VALUE; it returns immediately with whatever resources the
// first responding peer with a match reports, or nil if the lookup
// exhausts without any peer matching.
func (n *Node) IterativeFindValue(query string) []repository.ResourceRecord {
	target := id.Derive([]byte(query))
	_, resources := n.runLookup(target, func(c Contact) (lookupOutcome, error) {
		resp, err := n.call(c.Endpoint, transport.KindFindValue, findValueRequest{Query: query},
			transport.KindFindValueDataResponse, transport.KindFindValueContactResponse)
		if err != nil {
			return lookupOutcome{}, err
		}
		if resp.Kind == transport.KindFindValueDataResponse {
			var payload findValueDataResponse
			if err := resp.Decode(&payload); err != nil {
				return lookupOutcome{}, err
			}
			return lookupOutcome{hit: true, resources: payload.Resources}, nil
		}
		var payload findValueContactResponse
		if err := resp.Decode(&payload); err != nil {
			return lookupOutcome{}, err
		}
		return lookupOutcome{contacts: fromWireContacts(payload.Contacts)}, nil
	})
	return resources
}

// IterativeStore publishes tag at publicationTime, crediting
// originatorEndpoint as the serving peer (the local node's own endpoint,
// unless this call replicates a resource this node merely holds on
// another peer's behalf). It runs IterativeFindNode on the tag's hash and
// offers STORE_QUERY to each of the resulting contacts; best-effort, no
// return value.
func (n *Node) IterativeStore(tag repository.CompleteTag, publicationTime time.Time, originatorEndpoint string) {
	contacts := n.IterativeFindNode(tag.TagHash)

	for _, c := range contacts {
		n.offerStore(c, tag, publicationTime, originatorEndpoint)
	}
}

func (n *Node) offerStore(c Contact, tag repository.CompleteTag, publicationTime time.Time, originatorEndpoint string) {
	conversationID, err := id.New()
	if err != nil {
		n.log.WithError(err).Warn("generating STORE conversation id")
		return
	}

	n.pending.RecordOffer(conversationID.Bytes(), tag, publicationTime)

	msg, err := transport.NewMessage(transport.KindStoreQuery, n.self.Bytes(), n.selfEndpoint, conversationID.Bytes(),
		storeQueryRequest{TagHash: tag.TagHash, PublicationTime: publicationTime, OriginatorEndpoint: originatorEndpoint})
	if err != nil {
		n.log.WithError(err).Warn("building STORE_QUERY")
		return
	}

	addr, err := transport.ResolveEndpoint(c.Endpoint)
	if err != nil {
		n.log.WithError(err).WithField("endpoint", c.Endpoint).Warn("resolving STORE_QUERY endpoint")
		return
	}

	if err := n.tr.Send(msg, addr); err != nil {
		n.log.WithError(err).WithField("endpoint", c.Endpoint).Debug("STORE_QUERY delivery failed")
	}
}
