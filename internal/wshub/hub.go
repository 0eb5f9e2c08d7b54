package wshub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"cardparty/internal/protocol"
)

// Client represents a single WebSocket connection. Its ID doubles as the
// player id inside whichever room the connection has joined.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
}

// WritePump reads from the Send channel and writes to the WebSocket
// connection. Runs as one goroutine per connection.
func (c *Client) WritePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.Conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}

// Hub tracks every connection and its room membership, and fans out
// room-wide broadcasts. Fire-and-forget: a client with a full send buffer
// misses the message and catches up on the next reconciliation sync.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	inRoom  map[string]string
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		inRoom:  make(map[string]string),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Unregister removes a connection, its room membership, and closes its
// send channel.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	h.leaveRoomLocked(id)
	close(c.Send)
	delete(h.clients, id)
}

// JoinRoom subscribes a connection to a room's broadcasts. A connection is
// in at most one room; joining another moves it.
func (h *Hub) JoinRoom(id, roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	h.leaveRoomLocked(id)
	members := h.rooms[roomCode]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[roomCode] = members
	}
	members[id] = c
	h.inRoom[id] = roomCode
}

// LeaveRoom unsubscribes a connection from its room, if any.
func (h *Hub) LeaveRoom(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(id)
}

func (h *Hub) leaveRoomLocked(id string) {
	code, ok := h.inRoom[id]
	if !ok {
		return
	}
	delete(h.inRoom, id)
	if members := h.rooms[code]; members != nil {
		delete(members, id)
		if len(members) == 0 {
			delete(h.rooms, code)
		}
	}
}

// RoomMembers returns the connection ids subscribed to a room.
func (h *Hub) RoomMembers(roomCode string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms[roomCode]))
	for id := range h.rooms[roomCode] {
		ids = append(ids, id)
	}
	return ids
}

// RoomOf returns the room a connection is subscribed to, or "".
func (h *Hub) RoomOf(id string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.inRoom[id]
}

// Broadcast sends an event to every connection subscribed to a room.
func (h *Hub) Broadcast(roomCode, event string, data any) {
	payload, ok := marshal(event, data)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[roomCode] {
		select {
		case c.Send <- payload:
		default:
			// Drop; reconciliation sync will repair the mirror.
		}
	}
}

// BroadcastAll sends an event to every connection, in or out of rooms.
// Used for traffic_status.
func (h *Hub) BroadcastAll(event string, data any) {
	payload, ok := marshal(event, data)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.Send <- payload:
		default:
		}
	}
}

// SendEvent targets one connection with a named event.
func (h *Hub) SendEvent(id, event string, data any) {
	payload, ok := marshal(event, data)
	if !ok {
		return
	}
	h.send(id, payload)
}

// SendAck replies to a request, echoing its sequence number.
func (h *Hub) SendAck(id string, seq uint64, resp protocol.Response) {
	data, err := json.Marshal(protocol.ServerMessage{Type: protocol.EventAck, Seq: seq, Data: resp})
	if err != nil {
		log.Error().Err(err).Msg("marshal ack")
		return
	}
	h.send(id, data)
}

func (h *Hub) send(id string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	if !ok {
		return
	}
	select {
	case c.Send <- payload:
	default:
	}
}

func marshal(event string, data any) ([]byte, bool) {
	payload, err := json.Marshal(protocol.ServerMessage{Type: event, Data: data})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal broadcast")
		return nil, false
	}
	return payload, true
}
