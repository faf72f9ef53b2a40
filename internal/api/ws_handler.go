package api

import (
	"log"
	"net/http"

	gorillaws "github.com/gorilla/websocket"

	"github.com/mailboxhq/mailbox/internal/auth"
	"github.com/mailboxhq/mailbox/internal/websocket"
)

// WSHandler upgrades authenticated requests and registers them with the
// notification hub. The session middleware runs before this handler, so the
// username is already in context.
type WSHandler struct {
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
}

// NewWSHandler creates a new WSHandler instance.
func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cookie auth already ran; the frontend origin is same-site.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve upgrades the connection and holds it open until the client leaves.
// Clients only receive; inbound frames are read and discarded to keep
// control-frame handling alive.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WSHandler: upgrade failed for %s: %v", username, err)
		return
	}

	client := h.hub.Register(username, conn)
	if client == nil {
		return
	}

	go func() {
		defer h.hub.Unregister(username, client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
