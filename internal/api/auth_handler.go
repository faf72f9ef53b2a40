package api

import (
	"log"
	"net/http"

	"github.com/mailboxhq/mailbox/internal/auth"
)

// AuthHandler handles login, session lookup, and logout.
type AuthHandler struct {
	users    *auth.UserStore
	sessions *auth.SessionManager
}

// NewAuthHandler creates a new AuthHandler instance.
func NewAuthHandler(users *auth.UserStore, sessions *auth.SessionManager) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		WriteError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if err := h.users.Authenticate(req.Username, req.Password); err != nil {
		WriteError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := h.sessions.CreateToken(req.Username)
	if err != nil {
		log.Printf("AuthHandler: failed to create session token: %v", err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.sessions.SetCookie(w, token)
	WriteSuccess(w, map[string]string{"username": req.Username})
}

// Session reports the currently authenticated user.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	WriteSuccess(w, map[string]string{"username": username})
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.sessions.ClearCookie(w)
	WriteSuccess(w, map[string]bool{"loggedOut": true})
}
