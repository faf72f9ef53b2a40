package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mailboxhq/mailbox/internal/compose"
	"github.com/mailboxhq/mailbox/internal/models"
)

// ScheduleStore reads scheduled records for the list and detail endpoints.
// Mutations go through the Scheduler.
type ScheduleStore interface {
	GetScheduled(ctx context.Context, id string) (*models.ScheduledEmail, error)
	ListScheduled(ctx context.Context, status string, page, limit int) ([]models.ScheduledEmail, int, error)
}

// EmailsHandler handles immediate sends and the scheduled-email lifecycle.
type EmailsHandler struct {
	composer  *compose.Composer
	scheduler *compose.Scheduler
	store     ScheduleStore
}

// NewEmailsHandler creates a new EmailsHandler instance.
func NewEmailsHandler(composer *compose.Composer, scheduler *compose.Scheduler, store ScheduleStore) *EmailsHandler {
	return &EmailsHandler{composer: composer, scheduler: scheduler, store: store}
}

type sendRequest struct {
	AccountID      string   `json:"accountId"`
	To             []string `json:"to"`
	CC             []string `json:"cc"`
	BCC            []string `json:"bcc"`
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
	HTML           string   `json:"html"`
	ReplyToEmailID string   `json:"replyToEmailId"`
	InReplyTo      string   `json:"inReplyTo"`
	References     []string `json:"references"`
	ThreadID       string   `json:"threadId"`
}

// Send delivers one message immediately.
func (h *EmailsHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.composer.Send(r.Context(), compose.SendInput{
		AccountID:      req.AccountID,
		To:             req.To,
		CC:             req.CC,
		BCC:            req.BCC,
		Subject:        req.Subject,
		Body:           req.Body,
		HTML:           req.HTML,
		ReplyToEmailID: req.ReplyToEmailID,
		InReplyTo:      req.InReplyTo,
		References:     req.References,
		ThreadID:       req.ThreadID,
	})
	if err != nil {
		h.writeComposeError(w, err)
		return
	}
	WriteSuccess(w, result)
}

type scheduleRequest struct {
	AccountID   string   `json:"accountId"`
	Recipients  []string `json:"recipients"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	HTML        string   `json:"html"`
	ScheduledAt string   `json:"scheduledAt"`
}

// Schedule fans out a deferred send to one or more recipients.
func (h *EmailsHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	scheduledAt, ok := parseScheduledAt(w, req.ScheduledAt)
	if !ok {
		return
	}

	result, err := h.scheduler.Schedule(r.Context(), compose.ScheduleInput{
		AccountID:   req.AccountID,
		Recipients:  req.Recipients,
		Subject:     req.Subject,
		Body:        req.Body,
		HTML:        req.HTML,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		h.writeComposeError(w, err)
		return
	}
	WriteSuccess(w, result)
}

// ListScheduled returns a page of scheduled records, optionally filtered by
// status.
func (h *EmailsHandler) ListScheduled(w http.ResponseWriter, r *http.Request) {
	page, limit := ParsePaginationParams(r, 50)
	status := r.URL.Query().Get("status")

	emails, total, err := h.store.ListScheduled(r.Context(), status, page, limit)
	if err != nil {
		log.Printf("EmailsHandler: failed to list scheduled emails: %v", err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"emails":     emails,
		"pagination": Pagination{Page: page, Limit: limit, TotalCount: total},
	})
}

// GetScheduled returns one scheduled record.
func (h *EmailsHandler) GetScheduled(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduledIDFromPath(w, r)
	if !ok {
		return
	}

	email, err := h.store.GetScheduled(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "scheduled email not found")
		return
	}
	WriteSuccess(w, email)
}

type rescheduleRequest struct {
	ScheduledAt string `json:"scheduledAt"`
}

// Reschedule moves a pending scheduled email to a new delivery time.
func (h *EmailsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduledIDFromPath(w, r)
	if !ok {
		return
	}

	var req rescheduleRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	scheduledAt, ok := parseScheduledAt(w, req.ScheduledAt)
	if !ok {
		return
	}

	email, err := h.scheduler.Reschedule(r.Context(), id, scheduledAt)
	if err != nil {
		h.writeComposeError(w, err)
		return
	}
	WriteSuccess(w, email)
}

// Cancel revokes a pending scheduled email.
func (h *EmailsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduledIDFromPath(w, r)
	if !ok {
		return
	}

	email, err := h.scheduler.Cancel(r.Context(), id)
	if err != nil {
		h.writeComposeError(w, err)
		return
	}
	WriteSuccess(w, email)
}

// writeComposeError maps compose sentinel errors onto HTTP statuses.
func (h *EmailsHandler) writeComposeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, compose.ErrAccountNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, compose.ErrScheduleNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, compose.ErrAccountInactive),
		errors.Is(err, compose.ErrNoRecipients),
		errors.Is(err, compose.ErrEmptyBody),
		errors.Is(err, compose.ErrScheduleInPast),
		errors.Is(err, compose.ErrScheduleTooFar),
		errors.Is(err, compose.ErrNotPending):
		WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("EmailsHandler: request failed: %v", err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

func scheduledIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if uuid.Validate(id) != nil {
		WriteError(w, http.StatusBadRequest, "invalid scheduled email id")
		return "", false
	}
	return id, true
}

func parseScheduledAt(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		WriteError(w, http.StatusBadRequest, "scheduledAt is required")
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "scheduledAt must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return parsed, true
}
