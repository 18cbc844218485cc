// Package transport implements the wire channel for the Kademlia overlay.
// This file provides the default UDP-based Transport: non-blocking reads
// with a poll timeout so Close can interrupt the read loop, concurrent
// dispatch of inbound messages to per-Kind handlers, and best-effort send.
package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// UDPTransport is the default Transport implementation: one UDP socket,
// one read loop, handlers dispatched by Kind.
type UDPTransport struct {
	conn       net.PacketConn
	listenAddr net.Addr
	handlers   map[Kind]MessageHandler
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewUDPTransport binds listenAddr (e.g. ":9997") and starts the read loop.
func NewUDPTransport(listenAddr string) (Transport, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	t := &UDPTransport{
		conn:       conn,
		listenAddr: conn.LocalAddr(),
		handlers:   make(map[Kind]MessageHandler),
		ctx:        ctx,
		cancel:     cancel,
	}

	go t.processMessages()

	return t, nil
}

// RegisterHandler associates handler with kind. Safe for concurrent use.
func (t *UDPTransport) RegisterHandler(kind Kind, handler MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[kind] = handler
}

// Send serializes msg and writes it to addr. Best effort: a dropped
// datagram surfaces to the caller only as a later RPC timeout.
func (t *UDPTransport) Send(msg *Message, addr net.Addr) error {
	data, err := msg.Serialize()
	if err != nil {
		return err
	}

	_, err = t.conn.WriteTo(data, addr)
	return err
}

// Close stops the read loop and releases the socket.
func (t *UDPTransport) Close() error {
	t.cancel()
	return t.conn.Close()
}

// LocalAddr reports the bound address.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// processMessages is the read loop: poll with a short deadline so Close
// can unblock it, parse each datagram, and fan out to the registered
// handler for its Kind in its own goroutine.
func (t *UDPTransport) processMessages() {
	buffer := make([]byte, 8192)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
			_ = t.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, addr, err := t.conn.ReadFrom(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				continue
			}

			msg, err := ParseMessage(buffer[:n])
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "processMessages",
					"addr":     addr.String(),
					"error":    err.Error(),
				}).Debug("dropping unparseable datagram")
				continue
			}

			t.mu.RLock()
			handler, exists := t.handlers[msg.Kind]
			t.mu.RUnlock()

			if exists {
				go func(m *Message, a net.Addr) {
					if err := handler(m, a); err != nil {
						logrus.WithFields(logrus.Fields{
							"function": "processMessages",
							"kind":     m.Name,
							"addr":     a.String(),
							"error":    err.Error(),
						}).Warn("handler returned error")
					}
				}(msg, addr)
			}
		}
	}
}
