package dht

import (
	"net"
	"time"

	"github.com/tracklore/tracklore/dhterrors"
	"github.com/tracklore/tracklore/id"
	"github.com/tracklore/tracklore/transport"
)

// Every handler below first runs SawContact admission, matching the
// "every inbound message, before being type-dispatched" rule; response
// handlers additionally populate the ResponseCache.

func (n *Node) handlePing(msg *transport.Message, addr net.Addr) error {
	senderID, ok := senderIDOf(msg)
	if !ok {
		return nil
	}
	n.SawContact(senderID, msg.SenderEndpoint)

	reply, err := transport.NewMessage(transport.KindPingResponse, n.self.Bytes(), n.selfEndpoint, msg.ConversationID, pongResponse{})
	if err != nil {
		return err
	}
	return n.tr.Send(reply, addr)
}

func (n *Node) handlePong(msg *transport.Message, addr net.Addr) error {
	senderID, ok := senderIDOf(msg)
	if !ok {
		return nil
	}
	n.SawContact(senderID, msg.SenderEndpoint)
	n.responses.Put(msg)
	return nil
}

func (n *Node) handleFindNode(msg *transport.Message, addr net.Addr) error {
	senderID, ok := senderIDOf(msg)
	if !ok {
		return nil
	}
	n.SawContact(senderID, msg.SenderEndpoint)

	var req findNodeRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}

	contacts := n.buckets.CloseK(req.Target, senderID)
	reply, err := transport.NewMessage(transport.KindFindNodeResponse, n.self.Bytes(), n.selfEndpoint, msg.ConversationID,
		findNodeResponse{Contacts: toWireContacts(contacts)})
	if err != nil {
		return err
	}
	return n.tr.Send(reply, addr)
}

func (n *Node) handleFindNodeResponse(msg *transport.Message, addr net.Addr) error {
	senderID, ok := senderIDOf(msg)
	if !ok {
		return nil
	}
	n.SawContact(senderID, msg.SenderEndpoint)
	n.responses.Put(msg)
	return nil
}

func (n *Node) handleFindValue(msg *transport.Message, addr net.Addr) error {
	senderID, ok := senderIDOf(msg)
	if !ok {
		return nil
	}
	n.SawContact(senderID, msg.SenderEndpoint)

	var req findValueRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}

	resources, err := n.store.SearchFor(req.Query)
	if err != nil {
		n.log.WithError(err).Warn("search failed while answering FIND_VALUE")
		resources = nil
	}

	if len(resources) > 0 {
		reply, err := transport.NewMessage(transport.KindFindValueDataResponse, n.self.Bytes(), n.selfEndpoint, msg.ConversationID,
			findValueDataResponse{Resources: resources})
		if err != nil {
			return err
		}
		return n.tr.Send(reply, addr)
	}

	contacts := n.buckets.CloseK(id.Derive([]byte(req.Query)), senderID)
	reply, err := transport.NewMessage(transport.KindFindValueContactResponse, n.self.Bytes(), n.selfEndpoint, msg.ConversationID,
		findValueContactResponse{Contacts: toWireContacts(contacts)})
	if err != nil {
		return err
	}
	return n.tr.Send(reply, addr)
}

func (n *Node) handleFindValueResponse(msg *transport.Message, addr net.Addr) error {
	senderID, ok := senderIDOf(msg)
	if !ok {
		return nil
	}
	n.SawContact(senderID, msg.SenderEndpoint)
	n.responses.Put(msg)
	return nil
}

func (n *Node) handleStoreQuery(msg *transport.Message, addr net.Addr) error {
	senderID, ok := senderIDOf(msg)
	if !ok {
		return nil
	}
	n.SawContact(senderID, msg.SenderEndpoint)

	var req storeQueryRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}

	existing, has, err := n.store.GetPublicationTime(req.TagHash, req.OriginatorEndpoint)
	if err != nil {
		n.log.WithError(err).Warn("repository lookup failed handling STORE_QUERY")
		return nil
	}

	if !has {
		n.pending.GrantAcceptance(msg.ConversationID, req.OriginatorEndpoint)
		reply, err := transport.NewMessage(transport.KindStoreResponse, n.self.Bytes(), n.selfEndpoint, msg.ConversationID,
			storeResponse{ShouldSendData: true})
		if err != nil {
			return err
		}
		return n.tr.Send(reply, addr)
	}

	if !req.PublicationTime.Before(time.Now().Add(MaxClockSkew)) {
		// No STORE_RESPONSE is sent back for a rejected offer; the error is
		// only for the caller's own observability/tests.
		return dhterrors.ErrClockSkewRejection
	}

	if req.PublicationTime.After(existing) {
		if err := n.store.RefreshResource(req.TagHash, req.OriginatorEndpoint, req.PublicationTime); err != nil {
			n.log.WithError(err).Warn("refreshing resource failed")
		}
	}
	// Silence is intentional in both the refresh and the stale branches; no
	// STORE_RESPONSE is sent once a record already exists.
	return nil
}

func (n *Node) handleStoreResponse(msg *transport.Message, addr net.Addr) error {
	senderID, ok := senderIDOf(msg)
	if !ok {
		return nil
	}
	n.SawContact(senderID, msg.SenderEndpoint)
	n.responses.Put(msg)

	var resp storeResponse
	if err := msg.Decode(&resp); err != nil {
		return err
	}
	if !resp.ShouldSendData {
		return nil
	}

	tag, publicationTime, ok := n.pending.TakeOffer(msg.ConversationID)
	if !ok {
		return nil
	}

	dataMsg, err := transport.NewMessage(transport.KindStoreData, n.self.Bytes(), n.selfEndpoint, msg.ConversationID,
		storeDataRequest{Tag: tag, OriginalPublicationTime: publicationTime})
	if err != nil {
		return err
	}
	return n.tr.Send(dataMsg, addr)
}

func (n *Node) handleStoreData(msg *transport.Message, addr net.Addr) error {
	senderID, ok := senderIDOf(msg)
	if !ok {
		return nil
	}
	n.SawContact(senderID, msg.SenderEndpoint)

	originatorEndpoint, accepted := n.pending.ConsumeAcceptance(msg.ConversationID)
	if !accepted {
		return nil
	}

	var req storeDataRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}

	if req.OriginalPublicationTime.After(time.Now().Add(MaxClockSkew)) {
		n.log.WithField("endpoint", originatorEndpoint).Debug("dropping STORE_DATA outside clock skew tolerance")
		return dhterrors.ErrClockSkewRejection
	}

	if err := n.store.StoreResourceAt(req.Tag, originatorEndpoint, req.OriginalPublicationTime); err != nil {
		n.log.WithError(err).Warn("persisting STORE_DATA failed")
	}
	return nil
}
