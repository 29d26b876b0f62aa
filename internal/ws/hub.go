package ws

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat-realtime/internal/logging"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/protocol"
)

type set map[string]struct{}

// Hub tracks which connections belong to which rooms. Every connection is a
// member of its user's identity room from registration until it leaves.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	rooms     map[string]set
	connRooms map[string]set
	userConns map[string]set
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		rooms:     make(map[string]set),
		connRooms: make(map[string]set),
		userConns: make(map[string]set),
	}
}

// Register admits a connection and joins it to its identity room. It
// returns how many connections the user has open, this one included.
func (h *Hub) Register(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := c.info.ConnID
	h.clients[id] = c
	h.connRooms[id] = make(set)
	if _, ok := h.userConns[c.info.UserID]; !ok {
		h.userConns[c.info.UserID] = make(set)
	}
	h.userConns[c.info.UserID][id] = struct{}{}
	h.joinLocked(id, c.info.UserID)
	return len(h.userConns[c.info.UserID])
}

// Join adds a registered connection to room. Joining twice is a no-op.
func (h *Hub) Join(connID, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[connID]; !ok {
		return false
	}
	h.joinLocked(connID, room)
	return true
}

func (h *Hub) joinLocked(connID, room string) {
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(set)
	}
	h.rooms[room][connID] = struct{}{}
	h.connRooms[connID][room] = struct{}{}
}

func (h *Hub) InRoom(connID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][connID]
	return ok
}

// Rooms lists the rooms a connection belongs to, sorted.
func (h *Hub) Rooms(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]string, 0, len(h.connRooms[connID]))
	for room := range h.connRooms[connID] {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Members lists the connection ids in room, sorted.
func (h *Hub) Members(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		members = append(members, id)
	}
	sort.Strings(members)
	return members
}

// ConnectionCount is the number of open connections for a user.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns[userID])
}

// Unregister tells every room the connection was in that its user stopped
// typing, then drops all of its memberships. It returns the rooms left and
// how many connections the user still has open.
func (h *Hub) Unregister(connID string) ([]string, int) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return nil, 0
	}

	rooms := h.Rooms(connID)
	for _, room := range rooms {
		h.Emit(room, protocol.EventTypingStop, protocol.UserPayload{UserID: c.info.UserID}, connID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.connRooms[connID] {
		if members, ok := h.rooms[room]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.connRooms, connID)
	delete(h.clients, connID)
	if conns, ok := h.userConns[c.info.UserID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.userConns, c.info.UserID)
		}
	}
	return rooms, len(h.userConns[c.info.UserID])
}

// Emit sends an event to every member of room except exceptConnID and
// returns how many connections it was queued for.
func (h *Hub) Emit(room string, event protocol.Event, payload any, exceptConnID string) int {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		logging.Error().Err(err).Str("event", string(event)).Msg("encode frame failed")
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		if id == exceptConnID {
			continue
		}
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if h.deliver(c, event, frame) {
			sent++
		}
	}
	return sent
}

// EmitToConn sends an event to a single connection.
func (h *Hub) EmitToConn(connID string, event protocol.Event, payload any) bool {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	frame, err := protocol.Encode(event, payload)
	if err != nil {
		logging.Error().Err(err).Str("event", string(event)).Msg("encode frame failed")
		return false
	}
	return h.deliver(c, event, frame)
}

func (h *Hub) deliver(c *Client, event protocol.Event, frame []byte) bool {
	if c.enqueue(frame) {
		observability.IncWSEvent("out", string(event))
		return true
	}
	logging.Warn().Str("conn_id", c.info.ConnID).Str("user_id", c.info.UserID).Msg("send buffer full, dropping connection")
	h.publishWSError(c.info, "send buffer full")
	c.close()
	return false
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) publishWSError(info ConnInfo, reason string) {
	env := observability.NewWSEnvelope(observability.WSLifecycle{
		Event:      "ws_error",
		ConnID:     info.ConnID,
		UserID:     info.UserID,
		DeviceID:   info.DeviceID,
		IP:         info.IP,
		DurationMS: time.Since(info.ConnectedAt).Milliseconds(),
		Reason:     reason,
	})
	_ = observability.PublishEvent(context.Background(), observability.WSRoutingKey, env,
		observability.BuildHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent("lifecycle", "ws_error")
}
