// Package websocket implements the broadcast relay: every frame a connected party
// sends is re-emitted to every connected party, the sender included.
package websocket

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/taskboard/internal/adapter/metrics"
)

const (
	sendBufferSize = 16
	writeTimeout   = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongDeadline   = 60 * time.Second
)

var (
	ErrHubFull    = errors.New("relay connection limit reached")
	ErrHubStopped = errors.New("relay hub stopped")
)

// Message is one relayed frame. Type is a gorilla/websocket message type.
type Message struct {
	Type int    `json:"t"`
	Data []byte `json:"d"`
}

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	id    uuid.UUID
	conn  *websocket.Conn
	errCh chan error
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	id uuid.UUID
}

func (cmdUnregister) hubCmd() {}

type cmdBroadcast struct {
	msg Message
}

func (cmdBroadcast) hubCmd() {}

type cmdClientCount struct {
	replyCh chan int
}

func (cmdClientCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// --- Per-connection writer ---

// clientWriter owns every write to its connection: relayed frames and the
// keepalive pings. A client that stops answering pings hits its read deadline
// and the read loop in Handler unregisters it.
type clientWriter struct {
	conn   *websocket.Conn
	clock  clockwork.Clock
	sendCh chan Message
	done   chan struct{}
}

func newClientWriter(conn *websocket.Conn, clock clockwork.Clock) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		clock:  clock,
		sendCh: make(chan Message, sendBufferSize),
		done:   make(chan struct{}),
	}
	cw.configurePongHandler()
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-cw.sendCh:
			cw.updateWriteDeadline()
			if err := cw.conn.WriteMessage(msg.Type, msg.Data); err != nil {
				return
			}
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	close(cw.done)
	_ = cw.conn.Close()
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.conn.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.conn.SetWriteDeadline(cw.clock.Now().Add(writeTimeout))
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.conn.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}

// --- Hub ---

// Hub owns the connection registry. All state is confined to the run goroutine;
// the public methods send commands to it.
type Hub struct {
	cmdCh      chan hubCmd
	quit       chan struct{}
	clients    map[uuid.UUID]*clientWriter
	maxClients int
	metrics    *metrics.WebSocketMetrics
	clock      clockwork.Clock
}

// NewHub starts the hub loop. maxClients <= 0 means no limit; m may be nil.
func NewHub(maxClients int, m *metrics.WebSocketMetrics, clock clockwork.Clock) *Hub {
	hub := &Hub{
		cmdCh:      make(chan hubCmd, 256),
		quit:       make(chan struct{}),
		clients:    make(map[uuid.UUID]*clientWriter),
		maxClients: maxClients,
		metrics:    m,
		clock:      clock,
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.handleRegister(c)
		case cmdUnregister:
			h.handleUnregister(c.id, "closed")
		case cmdBroadcast:
			h.handleBroadcast(c.msg)
		case cmdClientCount:
			c.replyCh <- len(h.clients)
		case cmdStop:
			h.handleStop()
			close(h.quit)
			return
		}
	}
}

func (h *Hub) handleRegister(c cmdRegister) {
	if h.maxClients > 0 && len(h.clients) >= h.maxClients {
		slog.Warn("Rejecting relay client", "client_id", c.id, "max_clients", h.maxClients)
		_ = c.conn.Close()
		c.errCh <- fmt.Errorf("%w (%d)", ErrHubFull, h.maxClients)
		return
	}

	h.clients[c.id] = newClientWriter(c.conn, h.clock)
	if h.metrics != nil {
		h.metrics.ActiveConnections.Inc()
	}
	slog.Info("Relay client connected", "client_id", c.id, "clients", len(h.clients))
	c.errCh <- nil
}

func (h *Hub) handleUnregister(id uuid.UUID, reason string) {
	cw, exists := h.clients[id]
	if !exists {
		return
	}

	cw.stop()
	delete(h.clients, id)
	if h.metrics != nil {
		h.metrics.ActiveConnections.Dec()
	}
	slog.Info("Relay client disconnected", "client_id", id, "reason", reason, "clients", len(h.clients))
}

func (h *Hub) handleBroadcast(msg Message) {
	var slow []uuid.UUID
	for id, cw := range h.clients {
		select {
		case cw.sendCh <- msg:
		default:
			slow = append(slow, id)
		}
	}

	for _, id := range slow {
		if h.metrics != nil {
			h.metrics.ClientsDropped.Inc()
		}
		h.handleUnregister(id, "slow client")
	}
}

func (h *Hub) handleStop() {
	for id, cw := range h.clients {
		cw.stop()
		delete(h.clients, id)
		if h.metrics != nil {
			h.metrics.ActiveConnections.Dec()
		}
	}
}

// --- Public API ---

// send hands cmd to the loop. It reports false once the hub has stopped.
func (h *Hub) send(cmd hubCmd) bool {
	select {
	case h.cmdCh <- cmd:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) Register(id uuid.UUID, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	if !h.send(cmdRegister{id: id, conn: conn, errCh: errCh}) {
		_ = conn.Close()
		return ErrHubStopped
	}
	select {
	case err := <-errCh:
		return err
	case <-h.quit:
		_ = conn.Close()
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(id uuid.UUID) {
	h.send(cmdUnregister{id: id})
}

// Broadcast queues msg for every connected client of this instance.
func (h *Hub) Broadcast(msg Message) {
	h.send(cmdBroadcast{msg: msg})
}

func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	if !h.send(cmdClientCount{replyCh: replyCh}) {
		return 0
	}
	select {
	case n := <-replyCh:
		return n
	case <-h.quit:
		return 0
	}
}

// Stop closes every connection and waits for the loop to exit. It is safe to
// call more than once.
func (h *Hub) Stop() {
	h.send(cmdStop{})
	<-h.quit
}
