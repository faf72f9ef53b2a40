package api

import (
	"log"
	"net/http"

	"github.com/mailboxhq/mailbox/internal/ingest"
)

// WebhookHandler receives provider events. It always acknowledges with a
// success-shaped response so the provider does not retry; processing
// failures are logged.
type WebhookHandler struct {
	ingestor *ingest.Ingestor
}

// NewWebhookHandler creates a new WebhookHandler instance.
func NewWebhookHandler(ingestor *ingest.Ingestor) *WebhookHandler {
	return &WebhookHandler{ingestor: ingestor}
}

// Handle processes one provider webhook delivery.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var event ingest.Event
	if !DecodeJSON(w, r, &event) {
		return
	}

	if err := h.ingestor.HandleEvent(r.Context(), event); err != nil {
		log.Printf("WebhookHandler: failed to process %s event: %v", event.Type, err)
	}
	WriteSuccess(w, map[string]bool{"received": true})
}
