package main

import (
	"context"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailboxhq/mailbox/internal/api"
	"github.com/mailboxhq/mailbox/internal/auth"
	"github.com/mailboxhq/mailbox/internal/compose"
	"github.com/mailboxhq/mailbox/internal/config"
	"github.com/mailboxhq/mailbox/internal/db"
	"github.com/mailboxhq/mailbox/internal/ingest"
	"github.com/mailboxhq/mailbox/internal/provider"
	"github.com/mailboxhq/mailbox/internal/thread"
	ws "github.com/mailboxhq/mailbox/internal/websocket"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseConnection(pool)

	store := db.NewStore(pool)
	if err := store.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	log.Printf("Successfully connected to database")

	server := NewServer(cfg, pool)

	address := ":" + cfg.Port
	log.Printf("Mailbox backend server starting on %s (environment: %s)", address, cfg.Environment)

	if err := http.ListenAndServe(address, server); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// NewServer wires the store, gateway, resolver, and handlers into the HTTP
// handler for the Mailbox API server.
func NewServer(cfg *config.Config, pool *pgxpool.Pool) http.Handler {
	store := db.NewStore(pool)
	gateway := provider.NewGateway(cfg.ResendAPIKey)
	resolver := thread.NewResolver(store)

	hub := ws.NewHub(10)
	composer := compose.NewComposer(store, gateway, resolver)
	scheduler := compose.NewScheduler(store, gateway)
	ingestor := ingest.NewIngestor(store, gateway, resolver, hub)

	users := auth.NewUserStore(cfg.Users)
	sessions := auth.NewSessionManager(cfg.SessionSecret)
	log.Printf("Loaded %d user(s) from configuration", users.Count())

	return api.NewRouter(api.Handlers{
		Auth:     api.NewAuthHandler(users, sessions),
		Accounts: api.NewAccountsHandler(store),
		Mailbox:  api.NewMailboxHandler(store, resolver),
		Emails:   api.NewEmailsHandler(composer, scheduler, store),
		Webhook:  api.NewWebhookHandler(ingestor),
		WS:       api.NewWSHandler(hub),
	}, sessions)
}
