package models

import "time"

// Account is one mailbox identity. Accounts are soft-deleted: deactivated,
// never purged, so their messages stay reachable.
type Account struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DefaultAccountColor is applied when an account is created without a color tag.
const DefaultAccountColor = "#6366f1"
