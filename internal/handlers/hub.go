// internal/handlers/hub.go
package handlers

import (
	"sync"

	"github.com/google/uuid"
	"github.com/showguessr/server/internal/game"
	"github.com/sirupsen/logrus"
)

// Client is one websocket connection's outbound side.
type Client struct {
	ID      string
	OutChan chan game.Event
	log     *logrus.Logger
	closing chan struct{} // closed when the server asks the client to go away
	once    sync.Once
}

// Write queues ev without blocking. A full queue drops the event.
func (c *Client) Write(ev game.Event) {
	select {
	case c.OutChan <- ev:
	default:
		c.log.WithFields(logrus.Fields{"conn": c.ID, "type": ev.Type}).Warn("client queue full, dropped event")
	}
}

// Hub tracks connected clients and the rooms they are in. It implements
// game.Transport.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[uuid.UUID]map[string]*Client
	log     *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[uuid.UUID]map[string]*Client),
		log:     logger,
	}
}

// Register creates a client with an outbound queue of size buf.
func (h *Hub) Register(buf int) *Client {
	c := &Client{
		ID:      uuid.NewString(),
		OutChan: make(chan game.Event, buf),
		log:     h.log,
		closing: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	return c
}

// Unregister removes the client from the hub and from every room.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, connID)
	for room, members := range h.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) Send(connID string, ev game.Event) {
	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()
	if c != nil {
		c.Write(ev)
	}
}

func (h *Hub) Broadcast(room uuid.UUID, ev game.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[room] {
		c.Write(ev)
	}
}

func (h *Hub) JoinRoom(connID string, room uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.clients[connID]
	if c == nil {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Client)
	}
	h.rooms[room][connID] = c
}

func (h *Hub) LeaveRoom(connID string, room uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members := h.rooms[room]; members != nil {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// RoomSize returns the number of connections in room.
func (h *Hub) RoomSize(room uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Connections returns the number of registered clients.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll asks every connected client to disconnect.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.once.Do(func() { close(c.closing) })
	}
}
