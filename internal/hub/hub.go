// Package hub provides connection and room management for socket clients.
package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mxaviersmp/rasa-voice-interface/internal/protocol"
)

// ConnState tracks where a connection is in its session lifecycle.
type ConnState int

const (
	StateConnected ConnState = iota
	StateSessionPending
	StateSessionActive
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSessionPending:
		return "session_pending"
	case StateSessionActive:
		return "session_active"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Connection represents a single socket connection.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	mu    sync.Mutex
	state ConnState
}

// State returns the connection's lifecycle state.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState moves the connection to a new lifecycle state. Disconnected is
// terminal; later transitions are ignored.
func (c *Connection) SetState(s ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected {
		return
	}
	c.state = s
}

// WriteMessage writes a message to the underlying socket with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// Hub manages all socket connections and their room memberships. It is the
// single live transport handle shared by every connection handler and every
// output channel; all room mutation goes through its lock.
type Hub struct {
	namespace string

	// Connections indexed by connection ID
	connections map[string]*Connection

	// Rooms maps a room name (session id) to the set of member connection IDs
	rooms map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection

	mu sync.RWMutex
}

// NewHub creates a new Hub. The namespace, when not empty, is stamped on
// every outbound event envelope.
func NewHub(namespace string) *Hub {
	return &Hub{
		namespace:   namespace,
		connections: make(map[string]*Connection),
		rooms:       make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
	}
}

// Run starts the hub's registration loop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			conn.SetState(StateConnected)
			log.Printf("hub: connection registered: %s", conn.ID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				for room, members := range h.rooms {
					delete(members, conn.ID)
					if len(members) == 0 {
						delete(h.rooms, room)
					}
				}
				close(conn.Send)
			}
			h.mu.Unlock()
			conn.SetState(StateDisconnected)
			log.Printf("hub: connection unregistered: %s", conn.ID)
		}
	}
}

// NewConnection creates a new connection for the given socket.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, 256),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister unregisters a connection from the hub and removes it from all
// of its rooms.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// EnterRoom adds a connection to a room. Membership is additive: a
// connection keeps its previous rooms, and joining the same room twice is a
// no-op.
func (h *Hub) EnterRoom(conn *Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]bool)
	}
	h.rooms[room][conn.ID] = true
}

// Emit sends an event to a recipient. The recipient is resolved as a room
// first and as a single connection second, so a session room and a bare
// connection ID are addressed the same way.
func (h *Hub) Emit(recipientID, event string, payload any) error {
	data, err := h.marshal(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if members, ok := h.rooms[recipientID]; ok {
		for id := range members {
			if conn, exists := h.connections[id]; exists {
				h.send(conn, data)
			}
		}
		return nil
	}
	if conn, ok := h.connections[recipientID]; ok {
		h.send(conn, data)
	}
	return nil
}

// EmitTo sends an event directly to one connection.
func (h *Hub) EmitTo(conn *Connection, event string, payload any) error {
	data, err := h.marshal(event, payload)
	if err != nil {
		return err
	}
	h.send(conn, data)
	return nil
}

func (h *Hub) marshal(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(protocol.Envelope{
		Type:      event,
		Namespace: h.namespace,
		Data:      data,
	})
}

func (h *Hub) send(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
		// Buffer full, drop the connection
		log.Printf("hub: connection %s buffer full, closing", conn.ID)
		go h.Unregister(conn)
	}
}

// HasMembers checks if a room has any member connections.
func (h *Hub) HasMembers(room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members, ok := h.rooms[room]
	return ok && len(members) > 0
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// RoomCount returns the number of rooms with at least one member.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
