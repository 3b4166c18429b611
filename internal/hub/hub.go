// internal/hub/hub.go
package hub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coderoom/internal/room"
	"github.com/sirupsen/logrus"
)

// OutQueueSize is the per-connection buffer of pending outbound events.
const OutQueueSize = 32

// Conn is one live websocket of a user.
type Conn struct {
	ID      string
	UserID  uuid.UUID
	OutChan chan room.Event
	Cancel  func()
}

// NewConn allocates a connection with a buffered out queue.
func NewConn(id string, userID uuid.UUID, cancel func()) *Conn {
	return &Conn{
		ID:      id,
		UserID:  userID,
		OutChan: make(chan room.Event, OutQueueSize),
		Cancel:  cancel,
	}
}

// Write queues ev without blocking. It returns false when the queue is full.
func (c *Conn) Write(ev room.Event) bool {
	select {
	case c.OutChan <- ev:
		return true
	default:
		return false
	}
}

// Hub maps users to their live connection and rooms to their subscribers.
// It implements room.Broadcaster.
type Hub struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]*Conn
	rooms  map[uuid.UUID]map[uuid.UUID]struct{}
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *Hub {
	return &Hub{
		conns:  make(map[uuid.UUID]*Conn),
		rooms:  make(map[uuid.UUID]map[uuid.UUID]struct{}),
		logger: logger,
	}
}

// Register makes c the user's live connection and returns the one it
// replaced, if any. The caller is responsible for shutting that one down.
func (h *Hub) Register(c *Conn) *Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.conns[c.UserID]
	h.conns[c.UserID] = c
	if prev == c {
		return nil
	}
	return prev
}

// Unregister drops c unless the user has already reconnected.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[c.UserID] == c {
		delete(h.conns, c.UserID)
	}
}

func (h *Hub) Subscribe(roomID, userID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[uuid.UUID]struct{})
		h.rooms[roomID] = subs
	}
	subs[userID] = struct{}{}
}

func (h *Hub) Unsubscribe(roomID, userID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(subs, userID)
	if len(subs) == 0 {
		delete(h.rooms, roomID)
	}
}

// BroadcastRoom queues ev on every subscriber's connection.
func (h *Hub) BroadcastRoom(roomID uuid.UUID, ev room.Event) {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.rooms[roomID]))
	for userID := range h.rooms[roomID] {
		if c, ok := h.conns[userID]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, ev)
	}
}

// SendToUser queues ev on the user's live connection, if any.
func (h *Hub) SendToUser(userID uuid.UUID, ev room.Event) {
	h.mu.RLock()
	c, ok := h.conns[userID]
	h.mu.RUnlock()
	if !ok {
		h.logger.WithFields(logrus.Fields{"user": userID, "event": ev.Type()}).Debug("no live connection, event dropped")
		return
	}
	h.deliver(c, ev)
}

func (h *Hub) deliver(c *Conn, ev room.Event) {
	if !c.Write(ev) {
		h.logger.WithFields(logrus.Fields{"user": c.UserID, "conn": c.ID, "event": ev.Type()}).Warn("out queue full, event dropped")
	}
}

// Subscribers returns the number of users listening on roomID.
func (h *Hub) Subscribers(roomID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
