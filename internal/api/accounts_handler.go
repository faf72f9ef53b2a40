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
)

// AccountStore is the persistence surface the account handlers need.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	UpdateAccount(ctx context.Context, account *models.Account) error
	DeactivateAccount(ctx context.Context, id string) error
}

// AccountsHandler handles account CRUD. Deletion deactivates; messages of a
// deactivated account stay readable.
type AccountsHandler struct {
	store AccountStore
}

// NewAccountsHandler creates a new AccountsHandler instance.
func NewAccountsHandler(store AccountStore) *AccountsHandler {
	return &AccountsHandler{store: store}
}

type accountRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// List returns every account, active and deactivated.
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.ListAccounts(r.Context())
	if err != nil {
		log.Printf("AccountsHandler: failed to list accounts: %v", err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	WriteSuccess(w, map[string]interface{}{"accounts": accounts})
}

// Create adds a new active account.
func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.Email == "" {
		WriteError(w, http.StatusBadRequest, "name and email are required")
		return
	}

	account := &models.Account{
		Name:        req.Name,
		Email:       req.Email,
		Description: req.Description,
		Color:       req.Color,
		IsActive:    true,
	}
	if err := h.store.CreateAccount(r.Context(), account); err != nil {
		if errors.Is(err, db.ErrDuplicateAccount) {
			WriteError(w, http.StatusBadRequest, "account with this email already exists")
			return
		}
		log.Printf("AccountsHandler: failed to create account: %v", err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	WriteCreated(w, account)
}

// Get returns one account by id.
func (h *AccountsHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, ok := h.lookupAccount(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, account)
}

// Update modifies an account's display fields.
func (h *AccountsHandler) Update(w http.ResponseWriter, r *http.Request) {
	account, ok := h.lookupAccount(w, r)
	if !ok {
		return
	}

	var req accountRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Name != "" {
		account.Name = req.Name
	}
	if req.Description != "" {
		account.Description = req.Description
	}
	if req.Color != "" {
		account.Color = req.Color
	}

	if err := h.store.UpdateAccount(r.Context(), account); err != nil {
		log.Printf("AccountsHandler: failed to update account: %v", err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	WriteSuccess(w, account)
}

// Deactivate soft-deletes an account.
func (h *AccountsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	account, ok := h.lookupAccount(w, r)
	if !ok {
		return
	}

	if err := h.store.DeactivateAccount(r.Context(), account.ID); err != nil {
		log.Printf("AccountsHandler: failed to deactivate account: %v", err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	account.IsActive = false
	WriteSuccess(w, account)
}

// lookupAccount validates the path id and loads the account, writing the
// error response itself on failure.
func (h *AccountsHandler) lookupAccount(w http.ResponseWriter, r *http.Request) (*models.Account, bool) {
	id := mux.Vars(r)["id"]
	if uuid.Validate(id) != nil {
		WriteError(w, http.StatusBadRequest, "invalid account id")
		return nil, false
	}

	account, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrAccountNotFound) {
			WriteError(w, http.StatusNotFound, "account not found")
			return nil, false
		}
		log.Printf("AccountsHandler: failed to get account %s: %v", id, err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return account, true
}
