package transport

import (
	"encoding/json"
	"errors"
)

// Kind identifies the RPC this message carries, per the protocol's message
// set (PING/PONG, FIND_NODE, FIND_VALUE, STORE_QUERY, STORE_DATA, and their
// responses). Keeping an explicit Name alongside the numeric Kind keeps the
// wire format self-describing for logging and debugging, per the protocol's
// "message polymorphism" design note.
type Kind byte

const (
	KindPingRequest Kind = iota + 1
	KindPingResponse
	KindFindNode
	KindFindNodeResponse
	KindFindValue
	KindFindValueContactResponse
	KindFindValueDataResponse
	KindStoreQuery
	KindStoreResponse
	KindStoreData
)

// Name returns the human-readable name of the message kind, used in logs
// and in the self-describing wire envelope.
func (k Kind) Name() string {
	switch k {
	case KindPingRequest:
		return "PING"
	case KindPingResponse:
		return "PONG"
	case KindFindNode:
		return "FIND_NODE"
	case KindFindNodeResponse:
		return "FIND_NODE_RESPONSE"
	case KindFindValue:
		return "FIND_VALUE"
	case KindFindValueContactResponse:
		return "FIND_VALUE_CONTACT_RESPONSE"
	case KindFindValueDataResponse:
		return "FIND_VALUE_DATA_RESPONSE"
	case KindStoreQuery:
		return "STORE_QUERY"
	case KindStoreResponse:
		return "STORE_RESPONSE"
	case KindStoreData:
		return "STORE_DATA"
	default:
		return "UNKNOWN"
	}
}

// Message is the envelope every request and response travels in. Every
// RPC inherits senderID, senderEndpoint and conversationID; the payload
// carries the kind-specific fields (a FindNodeRequest, a PongResponse, and
// so on), JSON-encoded so the dht package owns the concrete struct
// definitions without this package needing to import it.
type Message struct {
	Kind           Kind            `json:"kind"`
	Name           string          `json:"name"`
	SenderID       []byte          `json:"sender_id"`
	SenderEndpoint string          `json:"sender_endpoint"`
	ConversationID []byte          `json:"conversation_id"`
	Payload        json.RawMessage `json:"payload"`
}

// NewMessage builds an envelope around a JSON-marshalable payload.
func NewMessage(kind Kind, senderID []byte, senderEndpoint string, conversationID []byte, payload interface{}) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Kind:           kind,
		Name:           kind.Name(),
		SenderID:       senderID,
		SenderEndpoint: senderEndpoint,
		ConversationID: conversationID,
		Payload:        raw,
	}, nil
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v interface{}) error {
	if m == nil {
		return errors.New("transport: nil message")
	}
	return json.Unmarshal(m.Payload, v)
}

// Serialize encodes the message for network transmission.
func (m *Message) Serialize() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage decodes a message received from the network.
func ParseMessage(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, errors.New("transport: empty message")
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
