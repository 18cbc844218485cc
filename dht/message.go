package dht

import (
	"time"

	"github.com/tracklore/tracklore/id"
	"github.com/tracklore/tracklore/repository"
)

// wireContact is the wire-format representation of a Contact.
type wireContact struct {
	ID       id.ID  `json:"id"`
	Endpoint string `json:"endpoint"`
}

func toWireContacts(contacts []Contact) []wireContact {
	out := make([]wireContact, len(contacts))
	for i, c := range contacts {
		out[i] = wireContact{ID: c.ID, Endpoint: c.Endpoint}
	}
	return out
}

func fromWireContacts(wire []wireContact) []Contact {
	out := make([]Contact, len(wire))
	for i, w := range wire {
		out[i] = NewContact(w.ID, w.Endpoint)
	}
	return out
}

// Request payloads.

type pingRequest struct{}

type findNodeRequest struct {
	Target id.ID `json:"target"`
}

type findValueRequest struct {
	Query string `json:"query"`
}

type storeQueryRequest struct {
	TagHash            id.ID     `json:"tag_hash"`
	PublicationTime    time.Time `json:"publication_time"`
	OriginatorEndpoint string    `json:"originator_endpoint"`
}

// Response payloads.

type pongResponse struct{}

type findNodeResponse struct {
	Contacts []wireContact `json:"contacts"`
}

type findValueContactResponse struct {
	Contacts []wireContact `json:"contacts"`
}

type findValueDataResponse struct {
	Resources []repository.ResourceRecord `json:"resources"`
}

type storeResponse struct {
	ShouldSendData bool `json:"should_send_data"`
}

type storeDataRequest struct {
	Tag                     repository.CompleteTag `json:"tag"`
	OriginalPublicationTime time.Time              `json:"original_publication_time"`
}
