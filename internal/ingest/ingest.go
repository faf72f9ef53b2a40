// Package ingest turns provider webhook events into stored messages. Inbound
// mail is matched to an account, threaded, and persisted; delivery-status
// events only update scheduled records. Processing failures are logged, never
// propagated as a failed acknowledgment, so the provider does not retry-storm.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/mailboxhq/mailbox/internal/models"
	"github.com/mailboxhq/mailbox/internal/provider"
	"github.com/mailboxhq/mailbox/internal/thread"
)

// Webhook event types.
const (
	EventReceived  = "email.received"
	EventDelivered = "email.delivered"
	EventBounced   = "email.bounced"
)

// Store is the persistence surface ingestion needs.
type Store interface {
	GetActiveAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	InsertReceived(ctx context.Context, msg *models.Message) error
	CountUnread(ctx context.Context, accountID string) (int, error)
	FindScheduledByProviderID(ctx context.Context, providerID string) (*models.ScheduledEmail, error)
	UpdateScheduledProgress(ctx context.Context, id, status string, sentCount int, failedRecipients []string) error
}

// Notifier is told about new unread mail. The websocket hub implements it.
type Notifier interface {
	NotifyUnread(accountID string, unreadCount int)
}

// Event is the provider webhook envelope.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ReceivedData is the email.received payload. The provider sends `to` as
// either a string or an array, so it gets a tolerant type.
type ReceivedData struct {
	EmailID     string       `json:"email_id"`
	From        string       `json:"from"`
	To          AddressList  `json:"to"`
	Subject     string       `json:"subject"`
	Text        string       `json:"text"`
	HTML        string       `json:"html"`
	MessageID   string       `json:"message_id"`
	InReplyTo   string       `json:"in_reply_to"`
	References  string       `json:"references"`
	CreatedAt   string       `json:"created_at"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
}

// StatusData is the email.delivered / email.bounced payload.
type StatusData struct {
	EmailID string `json:"email_id"`
}

// AddressList unmarshals both "a@b.c" and ["a@b.c", "d@e.f"].
type AddressList []string

func (a *AddressList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = AddressList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("addresses must be a string or array of strings")
	}
	*a = AddressList(many)
	return nil
}

// Ingestor processes webhook events.
type Ingestor struct {
	store    Store
	gateway  provider.Sender
	resolver *thread.Resolver
	notifier Notifier
	now      func() time.Time
}

// NewIngestor wires an Ingestor. notifier may be nil.
func NewIngestor(store Store, gateway provider.Sender, resolver *thread.Resolver, notifier Notifier) *Ingestor {
	return &Ingestor{store: store, gateway: gateway, resolver: resolver, notifier: notifier, now: time.Now}
}

// HandleEvent dispatches one webhook event. Unknown event types are ignored.
func (i *Ingestor) HandleEvent(ctx context.Context, event Event) error {
	switch event.Type {
	case EventReceived:
		var data ReceivedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("failed to decode received event: %w", err)
		}
		return i.handleReceived(ctx, data)
	case EventDelivered, EventBounced:
		var data StatusData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("failed to decode status event: %w", err)
		}
		return i.handleStatus(ctx, event.Type, data)
	default:
		log.Printf("Ingest: ignoring webhook event type %q", event.Type)
		return nil
	}
}

// handleReceived persists one inbound message. A message addressed to no
// known active account is dropped: not ours, not an error.
func (i *Ingestor) handleReceived(ctx context.Context, data ReceivedData) error {
	account, matched := i.matchAccount(ctx, data.To)
	if account == nil {
		log.Printf("Ingest: no account found for recipients %v, dropping", data.To)
		return nil
	}

	// Some notifications carry only metadata; fetch the rest by id.
	if data.Text == "" && data.HTML == "" && data.EmailID != "" {
		full, err := i.gateway.Fetch(ctx, data.EmailID)
		if err != nil {
			return fmt.Errorf("failed to fetch message %s: %w", data.EmailID, err)
		}
		data.Text = full.Text
		data.HTML = full.HTML
		if data.Subject == "" {
			data.Subject = full.Subject
		}
		if data.From == "" {
			data.From = full.From
		}
	}

	fromName, fromAddress := SplitAddress(data.From)

	resolution, err := i.resolver.Resolve(ctx, account.ID, thread.Request{
		Subject:    data.Subject,
		InReplyTo:  data.InReplyTo,
		References: splitReferences(data.References),
	})
	if err != nil {
		return fmt.Errorf("failed to resolve thread: %w", err)
	}

	subject := data.Subject
	if subject == "" {
		subject = models.PlaceholderSubject
	}

	msg := &models.Message{
		AccountID:   account.ID,
		Direction:   models.DirectionReceived,
		ProviderID:  data.EmailID,
		MessageID:   data.MessageID,
		ThreadID:    resolution.ThreadID,
		InReplyTo:   resolution.InReplyTo,
		References:  resolution.References,
		From:        fromAddress,
		FromName:    fromName,
		To:          []string{matched},
		Subject:     subject,
		Body:        data.Text,
		HTML:        data.HTML,
		Attachments: mapAttachments(data.Attachments),
		Date:        parseTimestamp(data.CreatedAt, i.now),
		IsRead:      false,
	}
	if err := i.store.InsertReceived(ctx, msg); err != nil {
		return fmt.Errorf("failed to persist received message: %w", err)
	}

	log.Printf("Ingest: stored message for account %s in thread %q", account.Name, msg.ThreadID)

	if i.notifier != nil {
		unread, err := i.store.CountUnread(ctx, account.ID)
		if err != nil {
			log.Printf("Ingest: failed to count unread for %s: %v", account.ID, err)
		} else {
			i.notifier.NotifyUnread(account.ID, unread)
		}
	}
	return nil
}

// handleStatus updates the scheduled record owning the provider id. Sent and
// received records are never touched by status events.
func (i *Ingestor) handleStatus(ctx context.Context, eventType string, data StatusData) error {
	if data.EmailID == "" {
		return nil
	}

	scheduled, err := i.store.FindScheduledByProviderID(ctx, data.EmailID)
	if err != nil {
		// Status events for immediate sends have no scheduled record.
		log.Printf("Ingest: %s for %s matched no scheduled email", eventType, data.EmailID)
		return nil
	}
	if scheduled.Status != models.SchedulePending && scheduled.Status != models.SchedulePartiallySent {
		return nil
	}

	sentCount := scheduled.SentCount
	failed := scheduled.FailedRecipients
	switch eventType {
	case EventDelivered:
		sentCount++
	case EventBounced:
		if recipient := recipientForProviderID(scheduled, data.EmailID); recipient != "" {
			failed = append(failed, recipient)
		}
	}

	status := scheduled.Status
	switch {
	case sentCount >= len(scheduled.ProviderIDs) && len(failed) == 0:
		status = models.ScheduleSent
	case sentCount > 0 && len(failed) > 0:
		status = models.SchedulePartiallySent
	case sentCount == 0 && len(failed) >= len(scheduled.Recipients):
		status = models.ScheduleFailed
	}

	return i.store.UpdateScheduledProgress(ctx, scheduled.ID, status, sentCount, failed)
}

// recipientForProviderID maps a provider delivery id back to its recipient.
// The fan-out scheduled provider ids in recipient order, skipping recipients
// that already failed at schedule time.
func recipientForProviderID(scheduled *models.ScheduledEmail, providerID string) string {
	index := -1
	for i, id := range scheduled.ProviderIDs {
		if id == providerID {
			index = i
			break
		}
	}
	if index < 0 {
		return ""
	}

	// Recipients that failed at schedule time got no provider id; they are
	// the first entries of FailedRecipients (bounces get appended later).
	scheduleFailures := len(scheduled.Recipients) - len(scheduled.ProviderIDs)
	if scheduleFailures < 0 {
		scheduleFailures = 0
	}
	if scheduleFailures > len(scheduled.FailedRecipients) {
		scheduleFailures = len(scheduled.FailedRecipients)
	}
	failedAtSchedule := make(map[string]struct{}, scheduleFailures)
	for _, r := range scheduled.FailedRecipients[:scheduleFailures] {
		failedAtSchedule[r] = struct{}{}
	}
	var scheduledRecipients []string
	for _, r := range scheduled.Recipients {
		if _, ok := failedAtSchedule[r]; !ok {
			scheduledRecipients = append(scheduledRecipients, r)
		}
	}
	if index >= len(scheduledRecipients) {
		return ""
	}
	return scheduledRecipients[index]
}

// matchAccount checks every recipient address in order; the first one owned
// by an active account wins. Returns the account and the matched address.
func (i *Ingestor) matchAccount(ctx context.Context, recipients []string) (*models.Account, string) {
	for _, recipient := range recipients {
		_, address := SplitAddress(recipient)
		account, err := i.store.GetActiveAccountByEmail(ctx, address)
		if err == nil {
			return account, address
		}
	}
	return nil, ""
}

// SplitAddress extracts display name and address from a combined header
// value such as `"Ada Lovelace" <ada@example.com>`. A bare address comes
// back with an empty name.
func SplitAddress(combined string) (name, address string) {
	combined = strings.TrimSpace(combined)
	if combined == "" {
		return "", ""
	}
	parsed, err := mail.ParseAddress(combined)
	if err != nil {
		return "", strings.ToLower(combined)
	}
	return parsed.Name, strings.ToLower(parsed.Address)
}

// splitReferences parses a References header value into its Message-IDs.
func splitReferences(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Fields(raw)
}

func mapAttachments(in []attachment) []models.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Attachment, 0, len(in))
	for _, att := range in {
		out = append(out, models.Attachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        att.Size,
			URL:         att.DownloadURL,
		})
	}
	return out
}

func parseTimestamp(raw string, now func() time.Time) time.Time {
	if raw == "" {
		return now()
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return now()
	}
	return parsed
}
