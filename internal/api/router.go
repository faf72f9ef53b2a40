package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mailboxhq/mailbox/internal/auth"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth     *AuthHandler
	Accounts *AccountsHandler
	Mailbox  *MailboxHandler
	Emails   *EmailsHandler
	Webhook  *WebhookHandler
	WS       *WSHandler
}

// NewRouter mounts the full HTTP surface. Login and the provider webhook are
// open; everything else sits behind the session middleware.
func NewRouter(handlers Handlers, sessions *auth.SessionManager) *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/login", handlers.Auth.Login).Methods(http.MethodPost)
	api.HandleFunc("/webhooks/resend", handlers.Webhook.Handle).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(func(next http.Handler) http.Handler {
		return auth.RequireSession(sessions, next)
	})

	protected.HandleFunc("/auth/session", handlers.Auth.Session).Methods(http.MethodGet)
	protected.HandleFunc("/auth/logout", handlers.Auth.Logout).Methods(http.MethodPost)

	protected.HandleFunc("/accounts", handlers.Accounts.List).Methods(http.MethodGet)
	protected.HandleFunc("/accounts", handlers.Accounts.Create).Methods(http.MethodPost)
	protected.HandleFunc("/accounts/{id}", handlers.Accounts.Get).Methods(http.MethodGet)
	protected.HandleFunc("/accounts/{id}", handlers.Accounts.Update).Methods(http.MethodPut)
	protected.HandleFunc("/accounts/{id}", handlers.Accounts.Deactivate).Methods(http.MethodDelete)

	protected.HandleFunc("/accounts/{id}/inbox", handlers.Mailbox.GetInbox).Methods(http.MethodGet)
	protected.HandleFunc("/accounts/{id}/inbox", handlers.Mailbox.UpdateInbox).Methods(http.MethodPatch)
	protected.HandleFunc("/accounts/{id}/sent", handlers.Mailbox.GetSent).Methods(http.MethodGet)
	protected.HandleFunc("/accounts/{id}/threads", handlers.Mailbox.GetThreads).Methods(http.MethodGet)
	protected.HandleFunc("/accounts/{id}/threads/{threadId}", handlers.Mailbox.GetThread).Methods(http.MethodGet)

	protected.HandleFunc("/emails/send", handlers.Emails.Send).Methods(http.MethodPost)
	protected.HandleFunc("/emails/schedule", handlers.Emails.Schedule).Methods(http.MethodPost)
	protected.HandleFunc("/emails/schedule", handlers.Emails.ListScheduled).Methods(http.MethodGet)
	protected.HandleFunc("/emails/scheduled/{id}", handlers.Emails.GetScheduled).Methods(http.MethodGet)
	protected.HandleFunc("/emails/scheduled/{id}", handlers.Emails.Reschedule).Methods(http.MethodPatch)
	protected.HandleFunc("/emails/scheduled/{id}", handlers.Emails.Cancel).Methods(http.MethodDelete)

	protected.HandleFunc("/notifications/unread", handlers.Mailbox.GetUnread).Methods(http.MethodGet)
	protected.HandleFunc("/ws", handlers.WS.Serve).Methods(http.MethodGet)

	return router
}
