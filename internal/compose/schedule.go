package compose

import (
	"context"
	"log"
	"time"

	"github.com/mailboxhq/mailbox/internal/models"
	"github.com/mailboxhq/mailbox/internal/provider"
)

// Scheduler handles deferred fan-out sends: one independent provider call per
// recipient, partial failure reported per recipient, never rolled back.
type Scheduler struct {
	store   Store
	gateway provider.Sender
	now     func() time.Time
}

// NewScheduler wires a Scheduler.
func NewScheduler(store Store, gateway provider.Sender) *Scheduler {
	return &Scheduler{store: store, gateway: gateway, now: time.Now}
}

// ScheduleInput is one schedule request for one or more recipients.
type ScheduleInput struct {
	AccountID   string
	Recipients  []string
	Subject     string
	Body        string
	HTML        string
	ScheduledAt time.Time
}

// ScheduleResult reports the fan-out outcome.
type ScheduleResult struct {
	ID               string    `json:"id"`
	ScheduledCount   int       `json:"scheduledCount"`
	FailedCount      int       `json:"failedCount"`
	ScheduledAt      time.Time `json:"scheduledAt"`
	FailedRecipients []string  `json:"failedRecipients,omitempty"`
}

// Schedule validates the window (future, at most 30 days out — exactly 30 is
// accepted), fans out one provider call per recipient, and persists a single
// scheduled record. Failed recipients do not block the ones that succeeded;
// the record is marked failed only when every recipient failed.
func (s *Scheduler) Schedule(ctx context.Context, input ScheduleInput) (*ScheduleResult, error) {
	account, err := s.lookupActiveAccount(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}

	if len(input.Recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if input.Body == "" && input.HTML == "" {
		return nil, ErrEmptyBody
	}

	now := s.now()
	if !input.ScheduledAt.After(now) {
		return nil, ErrScheduleInPast
	}
	if input.ScheduledAt.After(now.Add(maxScheduleAhead)) {
		return nil, ErrScheduleTooFar
	}

	from := FormatAddress(account.Name, account.Email)
	scheduledAt := input.ScheduledAt.UTC().Format(time.RFC3339)

	var providerIDs []string
	var failedRecipients []string
	for _, recipient := range input.Recipients {
		providerID, err := s.gateway.Send(ctx, provider.SendRequest{
			From:        from,
			To:          []string{recipient},
			Subject:     input.Subject,
			Text:        input.Body,
			HTML:        input.HTML,
			ScheduledAt: scheduledAt,
		})
		if err != nil {
			log.Printf("Scheduler: failed to schedule email to %s: %v", recipient, err)
			failedRecipients = append(failedRecipients, recipient)
			continue
		}
		providerIDs = append(providerIDs, providerID)
	}

	status := models.SchedulePending
	if len(failedRecipients) == len(input.Recipients) {
		status = models.ScheduleFailed
	}

	email := &models.ScheduledEmail{
		AccountID:        account.ID,
		ProviderIDs:      providerIDs,
		From:             from,
		Recipients:       input.Recipients,
		Subject:          input.Subject,
		Body:             input.Body,
		HTML:             input.HTML,
		ScheduledAt:      input.ScheduledAt,
		Status:           status,
		FailedRecipients: failedRecipients,
	}
	if err := s.store.InsertScheduled(ctx, email); err != nil {
		return nil, err
	}

	return &ScheduleResult{
		ID:               email.ID,
		ScheduledCount:   len(providerIDs),
		FailedCount:      len(failedRecipients),
		ScheduledAt:      input.ScheduledAt,
		FailedRecipients: failedRecipients,
	}, nil
}

// Reschedule moves a pending schedule to a new delivery time, at the provider
// first, then in the store. Per-delivery provider failures are logged and do
// not abort the remaining deliveries.
func (s *Scheduler) Reschedule(ctx context.Context, id string, scheduledAt time.Time) (*models.ScheduledEmail, error) {
	email, err := s.store.GetScheduled(ctx, id)
	if err != nil {
		return nil, ErrScheduleNotFound
	}
	if email.Status != models.SchedulePending {
		return nil, ErrNotPending
	}

	now := s.now()
	if !scheduledAt.After(now) {
		return nil, ErrScheduleInPast
	}
	if scheduledAt.After(now.Add(maxScheduleAhead)) {
		return nil, ErrScheduleTooFar
	}

	formatted := scheduledAt.UTC().Format(time.RFC3339)
	for _, providerID := range email.ProviderIDs {
		if err := s.gateway.Reschedule(ctx, providerID, formatted); err != nil {
			log.Printf("Scheduler: failed to reschedule %s: %v", providerID, err)
		}
	}

	if err := s.store.UpdateScheduledTime(ctx, id, scheduledAt); err != nil {
		return nil, err
	}
	email.ScheduledAt = scheduledAt
	return email, nil
}

// Cancel revokes a pending schedule at the provider and marks the record
// cancelled.
func (s *Scheduler) Cancel(ctx context.Context, id string) (*models.ScheduledEmail, error) {
	email, err := s.store.GetScheduled(ctx, id)
	if err != nil {
		return nil, ErrScheduleNotFound
	}
	if email.Status != models.SchedulePending {
		return nil, ErrNotPending
	}

	for _, providerID := range email.ProviderIDs {
		if err := s.gateway.Cancel(ctx, providerID); err != nil {
			log.Printf("Scheduler: failed to cancel %s: %v", providerID, err)
		}
	}

	if err := s.store.UpdateScheduledStatus(ctx, id, models.ScheduleCancelled); err != nil {
		return nil, err
	}
	email.Status = models.ScheduleCancelled
	return email, nil
}

func (s *Scheduler) lookupActiveAccount(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}
	return account, nil
}
