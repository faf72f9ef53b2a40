package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mailboxhq/mailbox/internal/models"
)

// ErrAccountNotFound is returned when a requested account cannot be found.
var ErrAccountNotFound = errors.New("account not found")

// ErrDuplicateAccount is returned when an account with the same address
// already exists.
var ErrDuplicateAccount = errors.New("account with this email already exists")

const accountColumns = "id, name, email, description, color, is_active, created_at, updated_at"

// CreateAccount inserts a new account and populates its id and timestamps.
// The email address is normalized to lower case.
func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	if account.Color == "" {
		account.Color = models.DefaultAccountColor
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (name, email, description, color, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id, created_at, updated_at
	`, account.Name, account.Email, account.Description, account.Color).Scan(
		&account.ID,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	account.IsActive = true
	return nil
}

// GetAccount returns one account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetActiveAccountByEmail returns the active account owning the address, or
// ErrAccountNotFound. Matching is case-insensitive.
func (s *Store) GetActiveAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1 AND is_active = TRUE
	`, strings.ToLower(strings.TrimSpace(email)))
	return scanAccount(row)
}

// ListAccounts returns every account, active first, then by creation time.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY is_active DESC, created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// UpdateAccount updates the mutable account fields (name, description, color).
func (s *Store) UpdateAccount(ctx context.Context, account *models.Account) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET name = $2, description = $3, color = $4, updated_at = now()
		WHERE id = $1
	`, account.ID, account.Name, account.Description, account.Color)

	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DeactivateAccount soft-deletes an account. Its messages stay in place.
func (s *Store) DeactivateAccount(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET is_active = FALSE, updated_at = now()
		WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.Email,
		&account.Description,
		&account.Color,
		&account.IsActive,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	return &account, nil
}
