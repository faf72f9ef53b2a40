// Package compose validates and executes outbound mail: immediate sends with
// threading continuation, and scheduled fan-out sends. A message is persisted
// only after the provider accepted it; there is no partial state.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailboxhq/mailbox/internal/models"
	"github.com/mailboxhq/mailbox/internal/provider"
	"github.com/mailboxhq/mailbox/internal/thread"
)

// Validation errors, rejected before any store or provider call.
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountInactive  = errors.New("account is not active")
	ErrNoRecipients     = errors.New("at least one recipient is required")
	ErrEmptyBody        = errors.New("body or html is required")
	ErrScheduleInPast   = errors.New("scheduled time must be in the future")
	ErrScheduleTooFar   = errors.New("cannot schedule emails more than 30 days in advance")
	ErrNotPending       = errors.New("only pending scheduled emails can be changed")
	ErrScheduleNotFound = errors.New("scheduled email not found")
)

// maxScheduleAhead is the provider's future-scheduling ceiling.
const maxScheduleAhead = 30 * 24 * time.Hour

// Store is the persistence surface composition needs.
type Store interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetMessage(ctx context.Context, accountID, id string) (*models.Message, error)
	InsertSent(ctx context.Context, msg *models.Message) error
	InsertScheduled(ctx context.Context, email *models.ScheduledEmail) error
	GetScheduled(ctx context.Context, id string) (*models.ScheduledEmail, error)
	UpdateScheduledTime(ctx context.Context, id string, scheduledAt time.Time) error
	UpdateScheduledStatus(ctx context.Context, id, status string) error
}

// Composer sends immediate mail with resolved threading.
type Composer struct {
	store    Store
	gateway  provider.Sender
	resolver *thread.Resolver
	now      func() time.Time
}

// NewComposer wires a Composer.
func NewComposer(store Store, gateway provider.Sender, resolver *thread.Resolver) *Composer {
	return &Composer{store: store, gateway: gateway, resolver: resolver, now: time.Now}
}

// SendInput is one compose/reply/forward request.
type SendInput struct {
	AccountID string
	To        []string
	CC        []string
	BCC       []string
	Subject   string
	Body      string
	HTML      string

	// Threading: either the id of the message being replied to, or
	// caller-supplied header values, or a known thread id.
	ReplyToEmailID string
	InReplyTo      string
	References     []string
	ThreadID       string
}

// SendResult reports a successful send.
type SendResult struct {
	ID         string `json:"id"`
	ProviderID string `json:"resendId"`
	MessageID  string `json:"messageId"`
	ThreadID   string `json:"threadId"`
}

// Send validates the request, resolves threading, delivers through the
// provider, and persists the sent record. On provider failure nothing is
// persisted.
func (c *Composer) Send(ctx context.Context, input SendInput) (*SendResult, error) {
	account, err := c.lookupActiveAccount(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}

	if len(input.To) == 0 {
		return nil, ErrNoRecipients
	}
	if input.Body == "" && input.HTML == "" {
		return nil, ErrEmptyBody
	}

	resolution, err := c.resolveThreading(ctx, account.ID, input)
	if err != nil {
		return nil, err
	}

	messageID := NewMessageID(account.Email)
	from := FormatAddress(account.Name, account.Email)

	headers := map[string]string{"Message-ID": messageID}
	if resolution.InReplyTo != "" {
		headers["In-Reply-To"] = resolution.InReplyTo
	}
	if len(resolution.References) > 0 {
		headers["References"] = strings.Join(resolution.References, " ")
	}

	providerID, err := c.gateway.Send(ctx, provider.SendRequest{
		From:    from,
		To:      input.To,
		CC:      input.CC,
		BCC:     input.BCC,
		Subject: input.Subject,
		Text:    input.Body,
		HTML:    input.HTML,
		Headers: headers,
	})
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		AccountID:  account.ID,
		Direction:  models.DirectionSent,
		ProviderID: providerID,
		MessageID:  messageID,
		ThreadID:   resolution.ThreadID,
		InReplyTo:  resolution.InReplyTo,
		References: resolution.References,
		From:       from,
		To:         input.To,
		CC:         input.CC,
		BCC:        input.BCC,
		Subject:    input.Subject,
		Body:       input.Body,
		HTML:       input.HTML,
		Status:     models.StatusSent,
		Date:       c.now(),
	}
	if err := c.store.InsertSent(ctx, msg); err != nil {
		return nil, err
	}

	return &SendResult{
		ID:         msg.ID,
		ProviderID: providerID,
		MessageID:  messageID,
		ThreadID:   resolution.ThreadID,
	}, nil
}

// resolveThreading prefers the ancestor message named by ReplyToEmailID;
// otherwise the caller's headers and subject go through the resolver.
func (c *Composer) resolveThreading(ctx context.Context, accountID string, input SendInput) (thread.Resolution, error) {
	if input.ReplyToEmailID != "" {
		ancestor, err := c.store.GetMessage(ctx, accountID, input.ReplyToEmailID)
		if err == nil {
			return thread.Continue(ancestor, input.Subject), nil
		}
		// An unknown ancestor id is not fatal: fall through to header and
		// subject resolution.
		log.Printf("Compose: reply ancestor %s not found, falling back to headers", input.ReplyToEmailID)
	}

	return c.resolver.Resolve(ctx, accountID, thread.Request{
		Subject:    input.Subject,
		ThreadID:   input.ThreadID,
		InReplyTo:  input.InReplyTo,
		References: input.References,
	})
}

func (c *Composer) lookupActiveAccount(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := c.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}
	return account, nil
}

// NewMessageID generates a globally unique RFC 5322 style Message-ID using
// the sending account's domain as the host part.
func NewMessageID(accountEmail string) string {
	domain := "localhost"
	if _, after, found := strings.Cut(accountEmail, "@"); found && after != "" {
		domain = after
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("<%s@%s>", token, domain)
}

// FormatAddress renders `Name <address>`, or the bare address when the
// account has no display name.
func FormatAddress(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}
