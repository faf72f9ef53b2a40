package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mailboxhq/mailbox/internal/db"
	"github.com/mailboxhq/mailbox/internal/models"
	"github.com/mailboxhq/mailbox/internal/thread"
)

// MailboxStore is the persistence surface the mailbox handlers need.
type MailboxStore interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	ListReceived(ctx context.Context, accountID string, page, limit int, includeArchived bool) ([]models.Message, int, error)
	ListSent(ctx context.Context, accountID string, page, limit int) ([]models.Message, int, error)
	CountUnread(ctx context.Context, accountID string) (int, error)
	UpdateReadState(ctx context.Context, accountID string, ids []string, isRead bool) (int, error)
}

// MailboxHandler serves per-account inbox, sent, thread, and unread views.
type MailboxHandler struct {
	store    MailboxStore
	resolver *thread.Resolver
}

// NewMailboxHandler creates a new MailboxHandler instance.
func NewMailboxHandler(store MailboxStore, resolver *thread.Resolver) *MailboxHandler {
	return &MailboxHandler{store: store, resolver: resolver}
}

// GetInbox returns a page of received messages plus the unread count.
func (h *MailboxHandler) GetInbox(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountIDFromPath(w, r)
	if !ok {
		return
	}

	page, limit := ParsePaginationParams(r, 50)
	includeArchived := r.URL.Query().Get("archived") == "true"

	messages, total, err := h.store.ListReceived(r.Context(), accountID, page, limit, includeArchived)
	if err != nil {
		log.Printf("MailboxHandler: failed to list inbox for %s: %v", accountID, err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	unread, err := h.store.CountUnread(r.Context(), accountID)
	if err != nil {
		log.Printf("MailboxHandler: failed to count unread for %s: %v", accountID, err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"emails":      messages,
		"unreadCount": unread,
		"pagination":  Pagination{Page: page, Limit: limit, TotalCount: total},
	})
}

type readStateRequest struct {
	EmailIDs []string `json:"emailIds"`
	IsRead   bool     `json:"isRead"`
}

// UpdateInbox bulk-updates the read flag on received messages.
func (h *MailboxHandler) UpdateInbox(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountIDFromPath(w, r)
	if !ok {
		return
	}

	var req readStateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.EmailIDs) == 0 {
		WriteError(w, http.StatusBadRequest, "emailIds is required")
		return
	}
	for _, id := range req.EmailIDs {
		if uuid.Validate(id) != nil {
			WriteError(w, http.StatusBadRequest, "invalid email id")
			return
		}
	}

	updated, err := h.store.UpdateReadState(r.Context(), accountID, req.EmailIDs, req.IsRead)
	if err != nil {
		log.Printf("MailboxHandler: failed to update read state for %s: %v", accountID, err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	WriteSuccess(w, map[string]int{"updatedCount": updated})
}

// GetSent returns a page of sent messages.
func (h *MailboxHandler) GetSent(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountIDFromPath(w, r)
	if !ok {
		return
	}

	page, limit := ParsePaginationParams(r, 50)
	messages, total, err := h.store.ListSent(r.Context(), accountID, page, limit)
	if err != nil {
		log.Printf("MailboxHandler: failed to list sent for %s: %v", accountID, err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"emails":     messages,
		"pagination": Pagination{Page: page, Limit: limit, TotalCount: total},
	})
}

// GetThreads returns the account's thread summaries, most recent first.
func (h *MailboxHandler) GetThreads(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountIDFromPath(w, r)
	if !ok {
		return
	}

	threads, err := h.resolver.ListThreads(r.Context(), accountID)
	if err != nil {
		log.Printf("MailboxHandler: failed to list threads for %s: %v", accountID, err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	WriteSuccess(w, map[string]interface{}{"threads": threads})
}

// GetThread returns one conversation in ascending date order.
func (h *MailboxHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountIDFromPath(w, r)
	if !ok {
		return
	}
	threadID := mux.Vars(r)["threadId"]
	if threadID == "" {
		WriteError(w, http.StatusBadRequest, "thread id is required")
		return
	}

	messages, err := h.resolver.GetThread(r.Context(), accountID, threadID)
	if err != nil {
		if errors.Is(err, thread.ErrThreadNotFound) {
			WriteError(w, http.StatusNotFound, "thread not found")
			return
		}
		log.Printf("MailboxHandler: failed to get thread %q for %s: %v", threadID, accountID, err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"threadId": threadID,
		"emails":   messages,
	})
}

// GetUnread returns per-account and total unread counts across all active
// accounts.
func (h *MailboxHandler) GetUnread(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.ListAccounts(r.Context())
	if err != nil {
		log.Printf("MailboxHandler: failed to list accounts: %v", err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	counts := make(map[string]int)
	total := 0
	for _, account := range accounts {
		if !account.IsActive {
			continue
		}
		unread, err := h.store.CountUnread(r.Context(), account.ID)
		if err != nil {
			log.Printf("MailboxHandler: failed to count unread for %s: %v", account.ID, err)
			WriteError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		counts[account.ID] = unread
		total += unread
	}

	WriteSuccess(w, map[string]interface{}{
		"accounts": counts,
		"total":    total,
	})
}

// accountIDFromPath validates the account id path variable and checks the
// account exists, writing the error response itself on failure.
func (h *MailboxHandler) accountIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if uuid.Validate(id) != nil {
		WriteError(w, http.StatusBadRequest, "invalid account id")
		return "", false
	}

	if _, err := h.store.GetAccount(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrAccountNotFound) {
			WriteError(w, http.StatusNotFound, "account not found")
			return "", false
		}
		log.Printf("MailboxHandler: failed to get account %s: %v", id, err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return "", false
	}
	return id, true
}
