package db

import (
	"context"
	"fmt"
)

// schema creates the four collections on first start. Statements are
// idempotent so restarts are safe.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	color TEXT NOT NULL DEFAULT '#6366f1',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sent_emails (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	account_id UUID NOT NULL REFERENCES accounts(id),
	provider_id TEXT NOT NULL DEFAULT '',
	message_id TEXT NOT NULL DEFAULT '',
	thread_id TEXT NOT NULL,
	in_reply_to TEXT NOT NULL DEFAULT '',
	references_ids TEXT[] NOT NULL DEFAULT '{}',
	from_address TEXT NOT NULL,
	to_addresses TEXT[] NOT NULL,
	cc_addresses TEXT[] NOT NULL DEFAULT '{}',
	bcc_addresses TEXT[] NOT NULL DEFAULT '{}',
	subject TEXT NOT NULL DEFAULT '',
	body_text TEXT NOT NULL DEFAULT '',
	body_html TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'sent',
	sent_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sent_emails_account_sent_at ON sent_emails (account_id, sent_at DESC);
CREATE INDEX IF NOT EXISTS idx_sent_emails_account_thread ON sent_emails (account_id, thread_id);
CREATE INDEX IF NOT EXISTS idx_sent_emails_account_message_id ON sent_emails (account_id, message_id);

CREATE TABLE IF NOT EXISTS received_emails (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	account_id UUID NOT NULL REFERENCES accounts(id),
	provider_id TEXT NOT NULL DEFAULT '',
	message_id TEXT NOT NULL DEFAULT '',
	thread_id TEXT NOT NULL,
	in_reply_to TEXT NOT NULL DEFAULT '',
	references_ids TEXT[] NOT NULL DEFAULT '{}',
	from_address TEXT NOT NULL,
	from_name TEXT NOT NULL DEFAULT '',
	to_address TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '(No Subject)',
	body_text TEXT NOT NULL DEFAULT '',
	body_html TEXT NOT NULL DEFAULT '',
	attachments JSONB NOT NULL DEFAULT '[]',
	received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	is_starred BOOLEAN NOT NULL DEFAULT FALSE,
	is_archived BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_received_emails_account_received_at ON received_emails (account_id, received_at DESC);
CREATE INDEX IF NOT EXISTS idx_received_emails_account_thread ON received_emails (account_id, thread_id);
CREATE INDEX IF NOT EXISTS idx_received_emails_account_message_id ON received_emails (account_id, message_id);
CREATE INDEX IF NOT EXISTS idx_received_emails_account_read ON received_emails (account_id, is_read);

CREATE TABLE IF NOT EXISTS scheduled_emails (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	account_id UUID NOT NULL REFERENCES accounts(id),
	provider_ids TEXT[] NOT NULL DEFAULT '{}',
	from_address TEXT NOT NULL,
	recipients TEXT[] NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	body_text TEXT NOT NULL DEFAULT '',
	body_html TEXT NOT NULL DEFAULT '',
	scheduled_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	sent_count INTEGER NOT NULL DEFAULT 0,
	failed_recipients TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scheduled_emails_status_scheduled_at ON scheduled_emails (status, scheduled_at);
`

// InitSchema creates the tables and indexes if they do not exist yet.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
