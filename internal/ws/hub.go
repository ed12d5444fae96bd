package ws

import (
	"log"
	"sync"

	"birthday-chat-service/internal/models"
	"birthday-chat-service/internal/observability"
)

// Hub tracks which connections are subscribed to which conversation's event
// stream. Membership is ephemeral: it exists only for the lifetime of the
// connection and is dropped wholesale on disconnect. Authorization happens
// before Join is called; the hub itself only fans out.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[int64]map[*Client]struct{}
	joined map[*Client]map[int64]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[int64]map[*Client]struct{}),
		joined: make(map[*Client]map[int64]struct{}),
	}
}

// Join subscribes a connection to a conversation's event stream.
func (h *Hub) Join(conversationID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*Client]struct{})
	}
	h.rooms[conversationID][c] = struct{}{}
	if _, ok := h.joined[c]; !ok {
		h.joined[c] = make(map[int64]struct{})
	}
	h.joined[c][conversationID] = struct{}{}
}

// Leave unsubscribes a connection from one conversation.
func (h *Hub) Leave(conversationID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(conversationID, c)
}

// DropClient removes every membership the connection holds. Called on close;
// no explicit leave is required.
func (h *Hub) DropClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conversationID := range h.joined[c] {
		h.removeLocked(conversationID, c)
	}
}

// DropRoom forgets a conversation's channel entirely, after the conversation
// itself has been deleted.
func (h *Hub) DropRoom(conversationID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[conversationID] {
		h.removeLocked(conversationID, c)
	}
}

// IsJoined reports whether the connection is subscribed to the conversation.
func (h *Hub) IsJoined(conversationID int64, c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][c]
	return ok
}

// Broadcast delivers the event to every connection in the conversation's
// channel, including the originator. The echo is the client's confirmation.
func (h *Hub) Broadcast(conversationID int64, event models.ServerEvent) {
	h.sendToRoom(conversationID, event, nil)
}

// BroadcastExceptUser delivers the event to everyone in the channel except the
// given user's connections, for events the originator does not need echoed
// back (typing, read-receipts). Excluding by user rather than by connection
// keeps the originator's other open tabs out too, and lets the REST surface
// emit the same stream without holding a *Client.
func (h *Hub) BroadcastExceptUser(conversationID, userID int64, event models.ServerEvent) {
	h.sendToRoom(conversationID, event, func(c *Client) bool {
		return c.UserID() == userID
	})
}

func (h *Hub) sendToRoom(conversationID int64, event models.ServerEvent, skip func(*Client) bool) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[conversationID]))
	for c := range h.rooms[conversationID] {
		if skip == nil || !skip(c) {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range members {
		if err := c.Send(event); err != nil {
			log.Printf("websocket write error: %v", err)
			c.Close()
			h.Leave(conversationID, c)
			observability.IncWSEvent("chat", "ws_error")
		}
	}
}

func (h *Hub) removeLocked(conversationID int64, c *Client) {
	if members, ok := h.rooms[conversationID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	if convs, ok := h.joined[c]; ok {
		delete(convs, conversationID)
		if len(convs) == 0 {
			delete(h.joined, c)
		}
	}
}
