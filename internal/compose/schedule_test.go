package compose

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailboxhq/mailbox/internal/models"
)

var scheduleNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newScheduler(store *fakeStore, gateway *fakeGateway) *Scheduler {
	scheduler := NewScheduler(store, gateway)
	scheduler.now = func() time.Time { return scheduleNow }
	return scheduler
}

func validScheduleInput() ScheduleInput {
	return ScheduleInput{
		AccountID:   "acc1",
		Recipients:  []string{"bob@example.com", "carol@example.com"},
		Subject:     "Reminder",
		Body:        "Don't forget.",
		ScheduledAt: scheduleNow.Add(24 * time.Hour),
	}
}

func TestScheduleFansOutPerRecipient(t *testing.T) {
	store := newFakeStore()
	store.addAccount("acc1", "Work", "work@example.com", true)
	gateway := newFakeGateway()
	scheduler := newScheduler(store, gateway)

	result, err := scheduler.Schedule(context.Background(), validScheduleInput())
	require.NoError(t, err)

	assert.Equal(t, 2, result.ScheduledCount)
	assert.Equal(t, 0, result.FailedCount)
	require.Len(t, gateway.sends, 2)
	// One independent call per recipient.
	assert.Equal(t, []string{"bob@example.com"}, gateway.sends[0].To)
	assert.Equal(t, []string{"carol@example.com"}, gateway.sends[1].To)
	assert.NotEmpty(t, gateway.sends[0].ScheduledAt)

	saved := store.scheduled[result.ID]
	require.NotNil(t, saved)
	assert.Equal(t, models.SchedulePending, saved.Status)
	assert.Len(t, saved.ProviderIDs, 2)
}

func TestSchedulePartialFailureDoesNotAbort(t *testing.T) {
	store := newFakeStore()
	store.addAccount("acc1", "Work", "work@example.com", true)
	gateway := newFakeGateway()
	gateway.failFor["bob@example.com"] = true
	scheduler := newScheduler(store, gateway)

	result, err := scheduler.Schedule(context.Background(), validScheduleInput())
	require.NoError(t, err)

	assert.Equal(t, 1, result.ScheduledCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, []string{"bob@example.com"}, result.FailedRecipients)

	saved := store.scheduled[result.ID]
	assert.Equal(t, models.SchedulePending, saved.Status)
	assert.Equal(t, []string{"bob@example.com"}, saved.FailedRecipients)
}

func TestScheduleAllRecipientsFailed(t *testing.T) {
	store := newFakeStore()
	store.addAccount("acc1", "Work", "work@example.com", true)
	gateway := newFakeGateway()
	gateway.failAll = true
	scheduler := newScheduler(store, gateway)

	result, err := scheduler.Schedule(context.Background(), validScheduleInput())
	require.NoError(t, err)

	assert.Equal(t, 0, result.ScheduledCount)
	assert.Equal(t, 2, result.FailedCount)
	assert.Equal(t, models.ScheduleFailed, store.scheduled[result.ID].Status)
}

func TestScheduleWindowBoundaries(t *testing.T) {
	store := newFakeStore()
	store.addAccount("acc1", "Work", "work@example.com", true)
	scheduler := newScheduler(store, newFakeGateway())

	tests := []struct {
		name        string
		scheduledAt time.Time
		wantErr     error
	}{
		{name: "in the past", scheduledAt: scheduleNow.Add(-time.Minute), wantErr: ErrScheduleInPast},
		{name: "exactly now", scheduledAt: scheduleNow, wantErr: ErrScheduleInPast},
		{name: "just past 30 days", scheduledAt: scheduleNow.Add(30*24*time.Hour + time.Second), wantErr: ErrScheduleTooFar},
		{name: "exactly 30 days accepted", scheduledAt: scheduleNow.Add(30 * 24 * time.Hour), wantErr: nil},
		{name: "one hour ahead accepted", scheduledAt: scheduleNow.Add(time.Hour), wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validScheduleInput()
			input.ScheduledAt = tt.scheduledAt
			_, err := scheduler.Schedule(context.Background(), input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScheduleValidation(t *testing.T) {
	store := newFakeStore()
	store.addAccount("acc1", "Work", "work@example.com", true)
	scheduler := newScheduler(store, newFakeGateway())

	input := validScheduleInput()
	input.Recipients = nil
	_, err := scheduler.Schedule(context.Background(), input)
	assert.ErrorIs(t, err, ErrNoRecipients)

	input = validScheduleInput()
	input.Body = ""
	input.HTML = ""
	_, err = scheduler.Schedule(context.Background(), input)
	assert.ErrorIs(t, err, ErrEmptyBody)

	input = validScheduleInput()
	input.AccountID = "missing"
	_, err = scheduler.Schedule(context.Background(), input)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRescheduleUpdatesProviderAndStore(t *testing.T) {
	store := newFakeStore()
	store.addAccount("acc1", "Work", "work@example.com", true)
	gateway := newFakeGateway()
	scheduler := newScheduler(store, gateway)

	result, err := scheduler.Schedule(context.Background(), validScheduleInput())
	require.NoError(t, err)

	newTime := scheduleNow.Add(48 * time.Hour)
	email, err := scheduler.Reschedule(context.Background(), result.ID, newTime)
	require.NoError(t, err)

	assert.Equal(t, newTime, email.ScheduledAt)
	assert.Equal(t, newTime, store.scheduled[result.ID].ScheduledAt)
	assert.Len(t, gateway.rescheduled, 2)
}

func TestRescheduleRejectsNonPending(t *testing.T) {
	store := newFakeStore()
	store.addAccount("acc1", "Work", "work@example.com", true)
	scheduler := newScheduler(store, newFakeGateway())

	result, err := scheduler.Schedule(context.Background(), validScheduleInput())
	require.NoError(t, err)
	store.scheduled[result.ID].Status = models.ScheduleCancelled

	_, err = scheduler.Reschedule(context.Background(), result.ID, scheduleNow.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestRescheduleWindowChecks(t *testing.T) {
	store := newFakeStore()
	store.addAccount("acc1", "Work", "work@example.com", true)
	scheduler := newScheduler(store, newFakeGateway())

	result, err := scheduler.Schedule(context.Background(), validScheduleInput())
	require.NoError(t, err)

	_, err = scheduler.Reschedule(context.Background(), result.ID, scheduleNow.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrScheduleInPast)

	_, err = scheduler.Reschedule(context.Background(), result.ID, scheduleNow.Add(31*24*time.Hour))
	assert.ErrorIs(t, err, ErrScheduleTooFar)
}

func TestCancelPendingSchedule(t *testing.T) {
	store := newFakeStore()
	store.addAccount("acc1", "Work", "work@example.com", true)
	gateway := newFakeGateway()
	scheduler := newScheduler(store, gateway)

	result, err := scheduler.Schedule(context.Background(), validScheduleInput())
	require.NoError(t, err)

	email, err := scheduler.Cancel(context.Background(), result.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ScheduleCancelled, email.Status)
	assert.Equal(t, models.ScheduleCancelled, store.scheduled[result.ID].Status)
	assert.Len(t, gateway.cancelled, 2)
}

func TestCancelRejectsNonPending(t *testing.T) {
	store := newFakeStore()
	store.addAccount("acc1", "Work", "work@example.com", true)
	scheduler := newScheduler(store, newFakeGateway())

	result, err := scheduler.Schedule(context.Background(), validScheduleInput())
	require.NoError(t, err)
	store.scheduled[result.ID].Status = models.ScheduleSent

	_, err = scheduler.Cancel(context.Background(), result.ID)
	assert.ErrorIs(t, err, ErrNotPending)

	_, err = scheduler.Cancel(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}
