// Package transport implements the wire channel the Kademlia overlay node
// sends and receives RPC messages over.
//
// # Architecture
//
// The core Transport interface abstracts network I/O for the dht package:
//
//	type Transport interface {
//	    Send(msg *Message, addr net.Addr) error
//	    Close() error
//	    LocalAddr() net.Addr
//	    RegisterHandler(kind Kind, handler MessageHandler)
//	}
//
// # UDP Transport
//
//	tr, err := NewUDPTransport(":9997")
//	// Connectionless, low-latency, the default binding described in the
//	// peer's configuration (see the config package).
//
// # Message Envelope
//
// Every message shares the same envelope (see message.go): a Kind
// discriminant, the sender's ID and endpoint, a conversation ID, and an
// opaque JSON payload specific to that Kind. Handlers registered per-Kind
// receive the envelope already parsed; they unmarshal Payload into the
// concrete request/response struct they expect.
//
// # Handler Registration
//
//	tr.RegisterHandler(KindPingRequest, func(m *Message, addr net.Addr) error {
//	    // handle ping
//	    return nil
//	})
//
// # Thread Safety
//
// UDPTransport guards its handler map with a sync.RWMutex; handlers are
// invoked concurrently, one goroutine per received datagram, matching the
// "one handler thread per inbound RPC" model described for the overlay.
package transport
