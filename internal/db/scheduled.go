package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mailboxhq/mailbox/internal/models"
)

// ErrScheduledNotFound is returned when a requested scheduled email cannot be
// found.
var ErrScheduledNotFound = errors.New("scheduled email not found")

const scheduledColumns = `id, account_id, provider_ids, from_address, recipients,
	subject, body_text, body_html, scheduled_at, status, sent_count,
	failed_recipients, created_at, updated_at`

// InsertScheduled persists a schedule record and populates its id and
// timestamps.
func (s *Store) InsertScheduled(ctx context.Context, email *models.ScheduledEmail) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO scheduled_emails (
			account_id, provider_ids, from_address, recipients, subject,
			body_text, body_html, scheduled_at, status, sent_count, failed_recipients
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`,
		email.AccountID,
		textArray(email.ProviderIDs),
		email.From,
		textArray(email.Recipients),
		email.Subject,
		email.Body,
		email.HTML,
		email.ScheduledAt,
		email.Status,
		email.SentCount,
		textArray(email.FailedRecipients),
	).Scan(&email.ID, &email.CreatedAt, &email.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert scheduled email: %w", err)
	}
	return nil
}

// GetScheduled returns one scheduled email by id.
func (s *Store) GetScheduled(ctx context.Context, id string) (*models.ScheduledEmail, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+scheduledColumns+` FROM scheduled_emails WHERE id = $1
	`, id)
	return scanScheduled(row)
}

// FindScheduledByProviderID returns the scheduled email whose fan-out
// contains the given provider delivery id.
func (s *Store) FindScheduledByProviderID(ctx context.Context, providerID string) (*models.ScheduledEmail, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+scheduledColumns+` FROM scheduled_emails WHERE $1 = ANY(provider_ids)
	`, providerID)
	return scanScheduled(row)
}

// ListScheduled returns one page of scheduled emails, soonest first, plus the
// total matching count. An empty status matches every record.
func (s *Store) ListScheduled(ctx context.Context, status string, page, limit int) ([]models.ScheduledEmail, int, error) {
	offset := (page - 1) * limit

	rows, err := s.pool.Query(ctx, `
		SELECT `+scheduledColumns+` FROM scheduled_emails
		WHERE ($1 = '' OR status = $1)
		ORDER BY scheduled_at ASC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list scheduled emails: %w", err)
	}
	defer rows.Close()

	var emails []models.ScheduledEmail
	for rows.Next() {
		email, err := scanScheduled(rows)
		if err != nil {
			return nil, 0, err
		}
		emails = append(emails, *email)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating scheduled emails: %w", err)
	}

	var total int
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM scheduled_emails WHERE ($1 = '' OR status = $1)
	`, status).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count scheduled emails: %w", err)
	}

	return emails, total, nil
}

// UpdateScheduledTime moves a pending schedule to a new delivery time.
func (s *Store) UpdateScheduledTime(ctx context.Context, id string, scheduledAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_emails
		SET scheduled_at = $2, updated_at = now()
		WHERE id = $1
	`, id, scheduledAt)
	if err != nil {
		return fmt.Errorf("failed to reschedule email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduledNotFound
	}
	return nil
}

// UpdateScheduledProgress stores delivery progress: status, how many fan-out
// sends have been delivered, and which recipients failed.
func (s *Store) UpdateScheduledProgress(ctx context.Context, id, status string, sentCount int, failedRecipients []string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_emails
		SET status = $2, sent_count = $3, failed_recipients = $4, updated_at = now()
		WHERE id = $1
	`, id, status, sentCount, textArray(failedRecipients))
	if err != nil {
		return fmt.Errorf("failed to update scheduled email progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduledNotFound
	}
	return nil
}

// UpdateScheduledStatus sets only the status.
func (s *Store) UpdateScheduledStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_emails
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update scheduled email status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduledNotFound
	}
	return nil
}

func scanScheduled(row pgx.Row) (*models.ScheduledEmail, error) {
	var email models.ScheduledEmail
	err := row.Scan(
		&email.ID,
		&email.AccountID,
		&email.ProviderIDs,
		&email.From,
		&email.Recipients,
		&email.Subject,
		&email.Body,
		&email.HTML,
		&email.ScheduledAt,
		&email.Status,
		&email.SentCount,
		&email.FailedRecipients,
		&email.CreatedAt,
		&email.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrScheduledNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan scheduled email: %w", err)
	}

	return &email, nil
}
