// Package provider wraps the Resend transactional-email API: immediate and
// scheduled sends, cancel/reschedule of future deliveries, and fetching full
// message content for webhook events that only carry metadata. Provider
// errors are wrapped and surfaced to the caller; nothing is retried here.
package provider

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// SendRequest is one outbound delivery, immediate or scheduled.
type SendRequest struct {
	From    string
	To      []string
	CC      []string
	BCC     []string
	Subject string
	Text    string
	HTML    string
	// Headers carries the threading headers (In-Reply-To, References).
	Headers map[string]string
	// ScheduledAt, when non-empty (RFC 3339), defers delivery.
	ScheduledAt string
}

// InboundMessage is the normalized full-content view of a provider-held
// message, used when a webhook payload lacks body fields.
type InboundMessage struct {
	ProviderID string
	From       string
	To         []string
	CC         []string
	Subject    string
	Text       string
	HTML       string
}

// Sender is the gateway surface the composition and ingestion handlers
// depend on. Gateway implements it against the live API; tests use fakes.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (string, error)
	Reschedule(ctx context.Context, providerID, scheduledAt string) error
	Cancel(ctx context.Context, providerID string) error
	Fetch(ctx context.Context, providerID string) (*InboundMessage, error)
}

// Gateway is the live Resend adapter.
type Gateway struct {
	client *resend.Client
}

// NewGateway creates a Gateway authenticated with the given API key.
func NewGateway(apiKey string) *Gateway {
	return &Gateway{client: resend.NewClient(apiKey)}
}

// Send delivers (or schedules) one email and returns the provider delivery id.
func (g *Gateway) Send(ctx context.Context, req SendRequest) (string, error) {
	sent, err := g.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:        req.From,
		To:          req.To,
		Cc:          req.CC,
		Bcc:         req.BCC,
		Subject:     req.Subject,
		Text:        req.Text,
		Html:        req.HTML,
		Headers:     req.Headers,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		return "", fmt.Errorf("provider send failed: %w", err)
	}
	return sent.Id, nil
}

// Reschedule moves a scheduled delivery to a new RFC 3339 time. Only future
// deliveries are affected; mail already in flight cannot be recalled.
func (g *Gateway) Reschedule(ctx context.Context, providerID, scheduledAt string) error {
	_, err := g.client.Emails.UpdateWithContext(ctx, &resend.UpdateEmailRequest{
		Id:          providerID,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		return fmt.Errorf("provider reschedule failed: %w", err)
	}
	return nil
}

// Cancel revokes a scheduled delivery.
func (g *Gateway) Cancel(ctx context.Context, providerID string) error {
	_, err := g.client.Emails.CancelWithContext(ctx, providerID)
	if err != nil {
		return fmt.Errorf("provider cancel failed: %w", err)
	}
	return nil
}

// Fetch retrieves the full message for a provider delivery id.
func (g *Gateway) Fetch(ctx context.Context, providerID string) (*InboundMessage, error) {
	email, err := g.client.Emails.GetWithContext(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("provider fetch failed: %w", err)
	}

	return &InboundMessage{
		ProviderID: email.Id,
		From:       email.From,
		To:         email.To,
		CC:         email.Cc,
		Subject:    email.Subject,
		Text:       email.Text,
		HTML:       email.Html,
	}, nil
}
