// Package websocket fans session events out to connected viewer clients.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/domain"
	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
)

type sessionClients map[*websocket.Conn]*clientWriter

// ViewerHook observes a viewer's first connection to or last disconnection
// from a session on this instance. A viewer with several tabs open fires each
// hook once, not per connection. Called off the hub goroutine.
type ViewerHook func(sessionID uuid.UUID, viewerID string)

type hubCmd interface{ hubCmd() }

type registerCmd struct {
	sessionID uuid.UUID
	viewerID  string
	conn      *websocket.Conn
	errCh     chan error
}

func (registerCmd) hubCmd() {}

type unregisterCmd struct {
	sessionID uuid.UUID
	conn      *websocket.Conn
}

func (unregisterCmd) hubCmd() {}

type broadcastCmd struct {
	sessionID uuid.UUID
	payload   []byte
}

func (broadcastCmd) hubCmd() {}

type clientCountCmd struct {
	sessionID uuid.UUID
	replyCh   chan int
}

func (clientCountCmd) hubCmd() {}

type hubStopCmd struct{}

func (hubStopCmd) hubCmd() {}

// Hub is the per-instance websocket fan-out actor. Each client gets its own
// writer goroutine; a client whose buffer fills is evicted rather than
// allowed to stall the rest of the session.
type Hub struct {
	cmdCh                chan hubCmd
	clock                clockwork.Clock
	clients              map[uuid.UUID]sessionClients
	viewers              map[*websocket.Conn]string
	viewerConns          map[uuid.UUID]map[string]int
	onViewerJoin         ViewerHook
	onViewerLeave        ViewerHook
	maxClientsPerSession int
	done                 chan struct{}
}

func NewHub(clock clockwork.Clock, maxClientsPerSession int, onViewerJoin, onViewerLeave ViewerHook) *Hub {
	h := &Hub{
		cmdCh:                make(chan hubCmd, 256),
		clock:                clock,
		clients:              make(map[uuid.UUID]sessionClients),
		viewers:              make(map[*websocket.Conn]string),
		viewerConns:          make(map[uuid.UUID]map[string]int),
		onViewerJoin:         onViewerJoin,
		onViewerLeave:        onViewerLeave,
		maxClientsPerSession: maxClientsPerSession,
		done:                 make(chan struct{}),
	}
	go h.run()
	return h
}

// Register attaches a viewer's connection to a session. Fails when the
// session is at its client cap.
func (h *Hub) Register(sessionID uuid.UUID, viewerID string, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	h.cmdCh <- registerCmd{sessionID: sessionID, viewerID: viewerID, conn: conn, errCh: errCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister detaches a connection from its session.
func (h *Hub) Unregister(sessionID uuid.UUID, conn *websocket.Conn) {
	h.cmdCh <- unregisterCmd{sessionID: sessionID, conn: conn}
}

// Broadcast delivers one event to every client of the session.
func (h *Hub) Broadcast(sessionID uuid.UUID, ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal broadcast event", "kind", string(ev.Kind), "error", err)
		return
	}
	h.cmdCh <- broadcastCmd{sessionID: sessionID, payload: payload}
}

// ClientCount returns connected clients for a session, -1 on timeout.
func (h *Hub) ClientCount(sessionID uuid.UUID) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- clientCountCmd{sessionID: sessionID, replyCh: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()
	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes all client connections and waits for the hub goroutine.
func (h *Hub) Stop() {
	h.cmdCh <- hubStopCmd{}

	timer := h.clock.NewTimer(stopTimeout)
	defer timer.Stop()
	select {
	case <-h.done:
	case <-timer.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) run() {
	defer close(h.done)

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			h.handleRegister(c)
		case unregisterCmd:
			h.handleUnregister(c)
		case broadcastCmd:
			h.handleBroadcast(c)
		case clientCountCmd:
			c.replyCh <- len(h.clients[c.sessionID])
		case hubStopCmd:
			h.handleStop()
			return
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	clients, exists := h.clients[c.sessionID]
	if !exists {
		clients = make(sessionClients)
		h.clients[c.sessionID] = clients
	}

	if len(clients) >= h.maxClientsPerSession {
		slog.Warn("Rejecting client: max clients reached",
			"session_id", c.sessionID.String(), "max_clients", h.maxClientsPerSession)
		_ = c.conn.Close()
		c.errCh <- fmt.Errorf("max clients per session (%d) reached", h.maxClientsPerSession)
		return
	}

	clients[c.conn] = newClientWriter(c.conn, h.clock)
	h.viewers[c.conn] = c.viewerID
	metrics.WSClientsConnected.Inc()

	if h.viewerAttach(c.sessionID, c.viewerID) && h.onViewerJoin != nil {
		go h.onViewerJoin(c.sessionID, c.viewerID)
	}

	slog.Debug("Client registered", "session_id", c.sessionID.String(), "viewer_id", c.viewerID, "total_clients", len(clients))
	c.errCh <- nil
}

func (h *Hub) handleUnregister(c unregisterCmd) {
	clients, exists := h.clients[c.sessionID]
	if !exists {
		return
	}
	cw, exists := clients[c.conn]
	if !exists {
		return
	}

	cw.stop()
	delete(clients, c.conn)
	viewerID := h.viewers[c.conn]
	delete(h.viewers, c.conn)
	metrics.WSClientsConnected.Dec()

	if len(clients) == 0 {
		delete(h.clients, c.sessionID)
	}
	if h.viewerDetach(c.sessionID, viewerID) && h.onViewerLeave != nil {
		go h.onViewerLeave(c.sessionID, viewerID)
	}
}

// viewerAttach counts one more connection for the viewer and reports whether
// it is the viewer's first on this session.
func (h *Hub) viewerAttach(sessionID uuid.UUID, viewerID string) bool {
	conns, ok := h.viewerConns[sessionID]
	if !ok {
		conns = make(map[string]int)
		h.viewerConns[sessionID] = conns
	}
	conns[viewerID]++
	return conns[viewerID] == 1
}

// viewerDetach counts one connection down and reports whether it was the
// viewer's last on this session.
func (h *Hub) viewerDetach(sessionID uuid.UUID, viewerID string) bool {
	conns, ok := h.viewerConns[sessionID]
	if !ok {
		return false
	}
	conns[viewerID]--
	if conns[viewerID] > 0 {
		return false
	}
	delete(conns, viewerID)
	if len(conns) == 0 {
		delete(h.viewerConns, sessionID)
	}
	return true
}

func (h *Hub) handleBroadcast(c broadcastCmd) {
	clients := h.clients[c.sessionID]
	var evicted []*websocket.Conn
	for conn, cw := range clients {
		if !cw.enqueue(c.payload) {
			evicted = append(evicted, conn)
		}
	}

	for _, conn := range evicted {
		slog.Warn("Evicting slow websocket client", "session_id", c.sessionID.String(), "viewer_id", h.viewers[conn])
		metrics.WSClientsEvicted.Inc()
		h.handleUnregister(unregisterCmd{sessionID: c.sessionID, conn: conn})
	}
}

func (h *Hub) handleStop() {
	for sessionID, clients := range h.clients {
		for conn, cw := range clients {
			cw.stopGraceful("server shutting down")
			viewerID := h.viewers[conn]
			delete(h.viewers, conn)
			metrics.WSClientsConnected.Dec()
			if h.viewerDetach(sessionID, viewerID) && h.onViewerLeave != nil {
				go h.onViewerLeave(sessionID, viewerID)
			}
		}
		delete(h.clients, sessionID)
	}
}
