package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"pulsebridge/internal/domain"
	"pulsebridge/internal/metrics"
)

const (
	sendBufferSize = 16
	writeTimeout   = 5 * time.Second
)

// errSendBufferFull marks a slow consumer. Transient: the connection stays
// attached and the next broadcast tries again.
var errSendBufferFull = errors.New("send buffer full")

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdAttach struct {
	connectionID string
	conn         *websocket.Conn
	errCh        chan error
}

func (cmdAttach) hubCmd() {}

type cmdDetach struct {
	connectionID string
}

func (cmdDetach) hubCmd() {}

type cmdPush struct {
	connectionID string
	data         []byte
	errCh        chan error
}

func (cmdPush) hubCmd() {}

type cmdCount struct {
	replyCh chan int
}

func (cmdCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// --- Per-connection writer ---

type clientWriter struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
	onDead func()
}

func newClientWriter(conn *websocket.Conn, onDead func()) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		sendCh: make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		onDead: onDead,
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				return
			}
			cw.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				cw.onDead()
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	close(cw.done)
	cw.conn.Close()
}

// --- Hub ---

// Hub tracks live connections by identifier. All state is owned by the actor
// goroutine; commands are the only access path.
type Hub struct {
	cmdCh   chan hubCmd
	clients map[string]*clientWriter
}

var _ domain.Pusher = (*Hub)(nil)

func NewHub() *Hub {
	h := &Hub{
		cmdCh:   make(chan hubCmd, 256),
		clients: make(map[string]*clientWriter),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdAttach:
			h.handleAttach(c)
		case cmdDetach:
			h.handleDetach(c.connectionID)
		case cmdPush:
			h.handlePush(c)
		case cmdCount:
			c.replyCh <- len(h.clients)
		case cmdStop:
			h.handleStop()
			return
		}
	}
}

func (h *Hub) handleAttach(c cmdAttach) {
	// A reconnect can reuse an identifier while the old endpoint is still
	// being torn down; the newer connection wins.
	if old, exists := h.clients[c.connectionID]; exists {
		old.stop()
		metrics.ActiveConnections.Dec()
	}

	connectionID := c.connectionID
	onDead := func() { h.Detach(connectionID) }
	h.clients[connectionID] = newClientWriter(c.conn, onDead)
	metrics.ActiveConnections.Inc()
	slog.Info("Connection attached", "connection_id", connectionID, "total", len(h.clients))
	c.errCh <- nil
}

func (h *Hub) handleDetach(connectionID string) {
	cw, exists := h.clients[connectionID]
	if !exists {
		return
	}

	cw.stop()
	delete(h.clients, connectionID)
	metrics.ActiveConnections.Dec()
	slog.Info("Connection detached", "connection_id", connectionID, "remaining", len(h.clients))
}

func (h *Hub) handlePush(c cmdPush) {
	cw, exists := h.clients[c.connectionID]
	if !exists {
		// No live endpoint behind this identifier: the canonical gone
		// signal, which lets fanout evict the registration.
		c.errCh <- domain.ErrConnectionGone
		return
	}

	select {
	case cw.sendCh <- c.data:
		c.errCh <- nil
	default:
		c.errCh <- fmt.Errorf("connection %s: %w", c.connectionID, errSendBufferFull)
	}
}

func (h *Hub) handleStop() {
	for connectionID, cw := range h.clients {
		cw.stop()
		delete(h.clients, connectionID)
		metrics.ActiveConnections.Dec()
	}
}

// --- Public API ---

// Attach takes ownership of an upgraded connection under the given identifier.
func (h *Hub) Attach(connectionID string, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	h.cmdCh <- cmdAttach{connectionID: connectionID, conn: conn, errCh: errCh}
	return <-errCh
}

// Detach closes and forgets a connection. Unknown identifiers are a no-op.
func (h *Hub) Detach(connectionID string) {
	h.cmdCh <- cmdDetach{connectionID: connectionID}
}

// Push delivers payload to one connection. Returns domain.ErrConnectionGone
// when the identifier has no live endpoint; any other failure is transient.
func (h *Hub) Push(ctx context.Context, connectionID string, payload []byte) error {
	errCh := make(chan error, 1)

	select {
	case h.cmdCh <- cmdPush{connectionID: connectionID, data: payload, errCh: errCh}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count returns the number of attached connections.
func (h *Hub) Count() int {
	replyCh := make(chan int, 1)
	h.cmdCh <- cmdCount{replyCh: replyCh}
	return <-replyCh
}

// Stop closes every connection and shuts the hub down.
func (h *Hub) Stop() {
	h.cmdCh <- cmdStop{}
}
