// Package websocket pushes unread-count updates to connected clients.
package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// UnreadNotification is pushed whenever an account's unread count changes.
type UnreadNotification struct {
	Type        string `json:"type"`
	AccountID   string `json:"accountId"`
	UnreadCount int    `json:"unreadCount"`
}

// Client wraps one WebSocket connection.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes; gorilla allows one concurrent writer
}

// Conn returns the underlying connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

func (c *Client) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub manages active connections per session user. A user may hold several
// connections at once (multiple tabs).
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	maxPerUser int
}

// NewHub creates a Hub with a per-user connection limit.
func NewHub(maxPerUser int) *Hub {
	if maxPerUser <= 0 {
		maxPerUser = 10
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxPerUser: maxPerUser,
	}
}

// Register adds a connection for the user. When the per-user limit is
// exceeded the new connection is closed and nil is returned.
func (h *Hub) Register(username string, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	userClients, ok := h.clients[username]
	if !ok {
		userClients = make(map[*Client]struct{})
		h.clients[username] = userClients
	}

	if len(userClients) >= h.maxPerUser {
		log.Printf("Hub: user %s exceeded max connections (%d), closing new connection", username, h.maxPerUser)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn}
	userClients[client] = struct{}{}
	return client
}

// Unregister removes a client and closes its connection.
func (h *Hub) Unregister(username string, client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	userClients, ok := h.clients[username]
	if !ok {
		_ = client.conn.Close()
		return
	}

	delete(userClients, client)
	if len(userClients) == 0 {
		delete(h.clients, username)
	}
	_ = client.conn.Close()
}

// NotifyUnread broadcasts an unread-count update to every connected client.
// Every session user sees every account, so there is no per-user routing.
func (h *Hub) NotifyUnread(accountID string, unreadCount int) {
	msg, err := json.Marshal(UnreadNotification{
		Type:        "unread",
		AccountID:   accountID,
		UnreadCount: unreadCount,
	})
	if err != nil {
		log.Printf("Hub: failed to encode notification: %v", err)
		return
	}
	h.broadcast(msg)
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.RLock()
	var targets []struct {
		username string
		client   *Client
	}
	for username, userClients := range h.clients {
		for client := range userClients {
			targets = append(targets, struct {
				username string
				client   *Client
			}{username, client})
		}
	}
	h.mu.RUnlock()

	for _, target := range targets {
		if err := target.client.write(msg); err != nil {
			log.Printf("Hub: failed to write to client of %s: %v", target.username, err)
			go h.Unregister(target.username, target.client)
		}
	}
}

// ActiveConnections returns how many connections a user currently holds.
func (h *Hub) ActiveConnections(username string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[username])
}
