package models

import "time"

// Direction tags a message as outbound or inbound. The thread resolver treats
// both directions uniformly through this tag.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Sent-message delivery statuses.
const (
	StatusQueued    = "queued"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusBounced   = "bounced"
	StatusFailed    = "failed"
)

// Scheduled-email statuses.
const (
	SchedulePending       = "pending"
	ScheduleSent          = "sent"
	ScheduleCancelled     = "cancelled"
	SchedulePartiallySent = "partially_sent"
	ScheduleFailed        = "failed"
)

// PlaceholderSubject is used when a subject is empty or reduces to nothing
// after stripping reply markers.
const PlaceholderSubject = "(No Subject)"

// Message is one email, sent or received, in one account's mailbox.
// The threading fields (ThreadID, InReplyTo, References) are computed once at
// creation time and never change afterward; only the read-state flags on
// received messages mutate.
type Message struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"accountId"`
	Direction  Direction `json:"type"`
	ProviderID string    `json:"resendId,omitempty"`
	MessageID  string    `json:"messageId,omitempty"`

	ThreadID   string   `json:"threadId"`
	InReplyTo  string   `json:"inReplyTo,omitempty"`
	References []string `json:"references,omitempty"`

	From     string   `json:"from"`
	FromName string   `json:"fromName,omitempty"`
	To       []string `json:"to"`
	CC       []string `json:"cc,omitempty"`
	BCC      []string `json:"bcc,omitempty"`

	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	HTML        string       `json:"html,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// Date is the message's sentAt or receivedAt, depending on direction.
	Date time.Time `json:"date"`

	// Sent-only.
	Status string `json:"status,omitempty"`

	// Received-only, mutable by the reader.
	IsRead     bool `json:"isRead"`
	IsStarred  bool `json:"isStarred"`
	IsArchived bool `json:"isArchived"`
}

// Attachment describes a file attached to a received message. Content stays
// with the provider; only metadata and a download URL are stored.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
}

// ScheduledEmail is one schedule request fanned out to one or more recipients.
// ProviderIDs holds one provider delivery id per successfully scheduled
// recipient.
type ScheduledEmail struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"accountId"`
	ProviderIDs      []string  `json:"resendIds"`
	From             string    `json:"from"`
	Recipients       []string  `json:"recipients"`
	Subject          string    `json:"subject"`
	Body             string    `json:"body"`
	HTML             string    `json:"html,omitempty"`
	ScheduledAt      time.Time `json:"scheduledAt"`
	Status           string    `json:"status"`
	SentCount        int       `json:"sentCount"`
	FailedRecipients []string  `json:"failedRecipients"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
