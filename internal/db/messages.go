package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mailboxhq/mailbox/internal/models"
)

// ErrMessageNotFound is returned when a requested message cannot be found.
var ErrMessageNotFound = errors.New("message not found")

// The two message collections are structurally different in storage but are
// read through one normalized column list, so every reader scans the same
// shape regardless of direction.
const (
	sentColumns = `id, account_id, 'sent', provider_id, message_id, thread_id,
		in_reply_to, references_ids, from_address, '', to_addresses, cc_addresses,
		bcc_addresses, subject, body_text, body_html, '[]'::jsonb, sent_at, status,
		FALSE, FALSE, FALSE`

	receivedColumns = `id, account_id, 'received', provider_id, message_id, thread_id,
		in_reply_to, references_ids, from_address, from_name, ARRAY[to_address],
		'{}'::text[], '{}'::text[], subject, body_text, body_html, attachments,
		received_at, '', is_read, is_starred, is_archived`
)

// InsertSent persists an outbound message. Threading fields must already be
// resolved; they are immutable afterwards.
func (s *Store) InsertSent(ctx context.Context, msg *models.Message) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sent_emails (
			account_id, provider_id, message_id, thread_id, in_reply_to,
			references_ids, from_address, to_addresses, cc_addresses, bcc_addresses,
			subject, body_text, body_html, status, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`,
		msg.AccountID,
		msg.ProviderID,
		msg.MessageID,
		msg.ThreadID,
		msg.InReplyTo,
		textArray(msg.References),
		msg.From,
		textArray(msg.To),
		textArray(msg.CC),
		textArray(msg.BCC),
		msg.Subject,
		msg.Body,
		msg.HTML,
		msg.Status,
		msg.Date,
	).Scan(&msg.ID)

	if err != nil {
		return fmt.Errorf("failed to insert sent message: %w", err)
	}

	msg.Direction = models.DirectionSent
	return nil
}

// InsertReceived persists an inbound message. Threading fields must already be
// resolved; only the read-state flags mutate afterwards.
func (s *Store) InsertReceived(ctx context.Context, msg *models.Message) error {
	attachments, err := json.Marshal(attachmentsOrEmpty(msg.Attachments))
	if err != nil {
		return fmt.Errorf("failed to encode attachments: %w", err)
	}

	to := ""
	if len(msg.To) > 0 {
		to = msg.To[0]
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO received_emails (
			account_id, provider_id, message_id, thread_id, in_reply_to,
			references_ids, from_address, from_name, to_address, subject,
			body_text, body_html, attachments, received_at, is_read
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`,
		msg.AccountID,
		msg.ProviderID,
		msg.MessageID,
		msg.ThreadID,
		msg.InReplyTo,
		textArray(msg.References),
		msg.From,
		msg.FromName,
		to,
		msg.Subject,
		msg.Body,
		msg.HTML,
		attachments,
		msg.Date,
		msg.IsRead,
	).Scan(&msg.ID)

	if err != nil {
		return fmt.Errorf("failed to insert received message: %w", err)
	}

	msg.Direction = models.DirectionReceived
	return nil
}

// GetMessage returns one message by store id, searching both collections.
func (s *Store) GetMessage(ctx context.Context, accountID, id string) (*models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sentColumns+` FROM sent_emails WHERE account_id = $1 AND id = $2
		UNION ALL
		SELECT `+receivedColumns+` FROM received_emails WHERE account_id = $1 AND id = $2
	`, accountID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, ErrMessageNotFound
	}
	return &messages[0], nil
}

// FindByMessageID returns every message in the account whose Message-ID
// header equals one of the candidates.
func (s *Store) FindByMessageID(ctx context.Context, accountID string, messageIDs []string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sentColumns+` FROM sent_emails
		WHERE account_id = $1 AND message_id <> '' AND message_id = ANY($2)
		UNION ALL
		SELECT `+receivedColumns+` FROM received_emails
		WHERE account_id = $1 AND message_id <> '' AND message_id = ANY($2)
	`, accountID, textArray(messageIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to find messages by message id: %w", err)
	}
	return collectMessages(rows)
}

// HasThread reports whether any message in the account carries the thread id.
func (s *Store) HasThread(ctx context.Context, accountID, threadID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM sent_emails WHERE account_id = $1 AND thread_id = $2
			UNION ALL
			SELECT 1 FROM received_emails WHERE account_id = $1 AND thread_id = $2
		)
	`, accountID, threadID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check thread existence: %w", err)
	}
	return exists, nil
}

// MessagesByThread returns both directions of one thread, unordered.
func (s *Store) MessagesByThread(ctx context.Context, accountID, threadID string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sentColumns+` FROM sent_emails WHERE account_id = $1 AND thread_id = $2
		UNION ALL
		SELECT `+receivedColumns+` FROM received_emails WHERE account_id = $1 AND thread_id = $2
	`, accountID, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to get thread messages: %w", err)
	}
	return collectMessages(rows)
}

// MessagesByAccount returns every message in the account, both directions.
func (s *Store) MessagesByAccount(ctx context.Context, accountID string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sentColumns+` FROM sent_emails WHERE account_id = $1
		UNION ALL
		SELECT `+receivedColumns+` FROM received_emails WHERE account_id = $1
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account messages: %w", err)
	}
	return collectMessages(rows)
}

// ListReceived returns one inbox page, newest first, plus the total matching
// count. Archived messages are excluded unless requested.
func (s *Store) ListReceived(ctx context.Context, accountID string, page, limit int, includeArchived bool) ([]models.Message, int, error) {
	offset := (page - 1) * limit

	rows, err := s.pool.Query(ctx, `
		SELECT `+receivedColumns+` FROM received_emails
		WHERE account_id = $1 AND (is_archived = FALSE OR $2)
		ORDER BY received_at DESC
		LIMIT $3 OFFSET $4
	`, accountID, includeArchived, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list received messages: %w", err)
	}

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM received_emails
		WHERE account_id = $1 AND (is_archived = FALSE OR $2)
	`, accountID, includeArchived).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count received messages: %w", err)
	}

	return messages, total, nil
}

// ListSent returns one sent-mail page, newest first, plus the total count.
func (s *Store) ListSent(ctx context.Context, accountID string, page, limit int) ([]models.Message, int, error) {
	offset := (page - 1) * limit

	rows, err := s.pool.Query(ctx, `
		SELECT `+sentColumns+` FROM sent_emails
		WHERE account_id = $1
		ORDER BY sent_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sent messages: %w", err)
	}

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM sent_emails WHERE account_id = $1
	`, accountID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count sent messages: %w", err)
	}

	return messages, total, nil
}

// CountUnread returns the number of unread, unarchived received messages.
func (s *Store) CountUnread(ctx context.Context, accountID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM received_emails
		WHERE account_id = $1 AND is_read = FALSE AND is_archived = FALSE
	`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// UpdateReadState bulk-updates the read flag on received messages and returns
// the number of messages touched.
func (s *Store) UpdateReadState(ctx context.Context, accountID string, ids []string, isRead bool) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE received_emails
		SET is_read = $3
		WHERE account_id = $1 AND id = ANY($2::uuid[])
	`, accountID, textArray(ids), isRead)
	if err != nil {
		return 0, fmt.Errorf("failed to update read state: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// collectMessages drains rows into messages, closing the rows.
func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var (
			msg         models.Message
			direction   string
			attachments []byte
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.AccountID,
			&direction,
			&msg.ProviderID,
			&msg.MessageID,
			&msg.ThreadID,
			&msg.InReplyTo,
			&msg.References,
			&msg.From,
			&msg.FromName,
			&msg.To,
			&msg.CC,
			&msg.BCC,
			&msg.Subject,
			&msg.Body,
			&msg.HTML,
			&attachments,
			&msg.Date,
			&msg.Status,
			&msg.IsRead,
			&msg.IsStarred,
			&msg.IsArchived,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg.Direction = models.Direction(direction)
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
				return nil, fmt.Errorf("failed to decode attachments: %w", err)
			}
		}
		if len(msg.Attachments) == 0 {
			msg.Attachments = nil
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// textArray never sends NULL for an absent list.
func textArray(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func attachmentsOrEmpty(attachments []models.Attachment) []models.Attachment {
	if attachments == nil {
		return []models.Attachment{}
	}
	return attachments
}
