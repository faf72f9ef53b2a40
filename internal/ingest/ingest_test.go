package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailboxhq/mailbox/internal/models"
	"github.com/mailboxhq/mailbox/internal/provider"
	"github.com/mailboxhq/mailbox/internal/thread"
)

// fakeStore is an in-memory Store and thread.MessageSource for ingest tests.
type fakeStore struct {
	accounts  []*models.Account
	received  []models.Message
	scheduled map[string]*models.ScheduledEmail
}

func newFakeStore() *fakeStore {
	return &fakeStore{scheduled: make(map[string]*models.ScheduledEmail)}
}

func (f *fakeStore) GetActiveAccountByEmail(_ context.Context, email string) (*models.Account, error) {
	for _, account := range f.accounts {
		if account.Email == email && account.IsActive {
			return account, nil
		}
	}
	return nil, errors.New("account not found")
}

func (f *fakeStore) InsertReceived(_ context.Context, msg *models.Message) error {
	msg.ID = "rcv-1"
	f.received = append(f.received, *msg)
	return nil
}

func (f *fakeStore) CountUnread(_ context.Context, accountID string) (int, error) {
	count := 0
	for _, msg := range f.received {
		if msg.AccountID == accountID && !msg.IsRead && !msg.IsArchived {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) FindScheduledByProviderID(_ context.Context, providerID string) (*models.ScheduledEmail, error) {
	for _, email := range f.scheduled {
		for _, id := range email.ProviderIDs {
			if id == providerID {
				copied := *email
				return &copied, nil
			}
		}
	}
	return nil, errors.New("scheduled email not found")
}

func (f *fakeStore) UpdateScheduledProgress(_ context.Context, id, status string, sentCount int, failedRecipients []string) error {
	email, ok := f.scheduled[id]
	if !ok {
		return errors.New("scheduled email not found")
	}
	email.Status = status
	email.SentCount = sentCount
	email.FailedRecipients = failedRecipients
	return nil
}

func (f *fakeStore) FindByMessageID(_ context.Context, accountID string, messageIDs []string) ([]models.Message, error) {
	wanted := make(map[string]struct{})
	for _, id := range messageIDs {
		wanted[id] = struct{}{}
	}
	var out []models.Message
	for _, msg := range f.received {
		if msg.AccountID != accountID || msg.MessageID == "" {
			continue
		}
		if _, ok := wanted[msg.MessageID]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeStore) HasThread(_ context.Context, accountID, threadID string) (bool, error) {
	for _, msg := range f.received {
		if msg.AccountID == accountID && msg.ThreadID == threadID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) MessagesByThread(_ context.Context, accountID, threadID string) ([]models.Message, error) {
	var out []models.Message
	for _, msg := range f.received {
		if msg.AccountID == accountID && msg.ThreadID == threadID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeStore) MessagesByAccount(_ context.Context, accountID string) ([]models.Message, error) {
	var out []models.Message
	for _, msg := range f.received {
		if msg.AccountID == accountID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type fakeFetcher struct {
	message *provider.InboundMessage
	fetched []string
}

func (f *fakeFetcher) Send(context.Context, provider.SendRequest) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeFetcher) Reschedule(context.Context, string, string) error { return nil }
func (f *fakeFetcher) Cancel(context.Context, string) error             { return nil }

func (f *fakeFetcher) Fetch(_ context.Context, providerID string) (*provider.InboundMessage, error) {
	f.fetched = append(f.fetched, providerID)
	if f.message == nil {
		return nil, errors.New("message not found")
	}
	return f.message, nil
}

type fakeNotifier struct {
	accountID string
	unread    int
	calls     int
}

func (f *fakeNotifier) NotifyUnread(accountID string, unread int) {
	f.accountID = accountID
	f.unread = unread
	f.calls++
}

func newIngestor(store *fakeStore, gateway *fakeFetcher, notifier Notifier) *Ingestor {
	ingestor := NewIngestor(store, gateway, thread.NewResolver(store), notifier)
	ingestor.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return ingestor
}

func receivedEvent(t *testing.T, data ReceivedData) Event {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return Event{Type: EventReceived, Data: raw}
}

func TestHandleReceivedStoresMessage(t *testing.T) {
	store := newFakeStore()
	store.accounts = append(store.accounts, &models.Account{ID: "acc1", Name: "Work", Email: "work@example.com", IsActive: true})
	notifier := &fakeNotifier{}
	ingestor := newIngestor(store, &fakeFetcher{}, notifier)

	err := ingestor.HandleEvent(context.Background(), receivedEvent(t, ReceivedData{
		EmailID:   "re_123",
		From:      "Ada Lovelace <ada@example.org>",
		To:        AddressList{"work@example.com"},
		Subject:   "Hello",
		Text:      "Hi there",
		MessageID: "<m1@example.org>",
		CreatedAt: "2025-06-01T10:30:00Z",
	}))
	require.NoError(t, err)

	require.Len(t, store.received, 1)
	msg := store.received[0]
	assert.Equal(t, "acc1", msg.AccountID)
	assert.Equal(t, models.DirectionReceived, msg.Direction)
	assert.Equal(t, "ada@example.org", msg.From)
	assert.Equal(t, "Ada Lovelace", msg.FromName)
	assert.Equal(t, "Hello", msg.ThreadID)
	assert.False(t, msg.IsRead)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC), msg.Date)

	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, "acc1", notifier.accountID)
	assert.Equal(t, 1, notifier.unread)
}

func TestHandleReceivedDropsUnknownRecipient(t *testing.T) {
	store := newFakeStore()
	ingestor := newIngestor(store, &fakeFetcher{}, nil)

	err := ingestor.HandleEvent(context.Background(), receivedEvent(t, ReceivedData{
		From:    "someone@example.org",
		To:      AddressList{"stranger@example.com"},
		Subject: "Hello",
		Text:    "Hi",
	}))
	require.NoError(t, err, "a message for nobody is dropped, not an error")
	assert.Empty(t, store.received)
}

func TestHandleReceivedMatchesFirstRecipient(t *testing.T) {
	store := newFakeStore()
	store.accounts = append(store.accounts,
		&models.Account{ID: "acc1", Email: "first@example.com", IsActive: true},
		&models.Account{ID: "acc2", Email: "second@example.com", IsActive: true},
	)
	ingestor := newIngestor(store, &fakeFetcher{}, nil)

	err := ingestor.HandleEvent(context.Background(), receivedEvent(t, ReceivedData{
		From:    "someone@example.org",
		To:      AddressList{"unknown@example.com", "second@example.com", "first@example.com"},
		Subject: "Hello",
		Text:    "Hi",
	}))
	require.NoError(t, err)
	require.Len(t, store.received, 1)
	assert.Equal(t, "acc2", store.received[0].AccountID, "first matching recipient wins")
}

func TestHandleReceivedIgnoresInactiveAccount(t *testing.T) {
	store := newFakeStore()
	store.accounts = append(store.accounts, &models.Account{ID: "acc1", Email: "work@example.com", IsActive: false})
	ingestor := newIngestor(store, &fakeFetcher{}, nil)

	err := ingestor.HandleEvent(context.Background(), receivedEvent(t, ReceivedData{
		From: "a@b.c", To: AddressList{"work@example.com"}, Subject: "x", Text: "y",
	}))
	require.NoError(t, err)
	assert.Empty(t, store.received)
}

func TestHandleReceivedThreadsByHeader(t *testing.T) {
	store := newFakeStore()
	store.accounts = append(store.accounts, &models.Account{ID: "acc1", Email: "work@example.com", IsActive: true})
	store.received = append(store.received, models.Message{
		AccountID: "acc1",
		Direction: models.DirectionReceived,
		MessageID: "<root@example.org>",
		ThreadID:  "Project Kickoff",
		Date:      time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	})
	ingestor := newIngestor(store, &fakeFetcher{}, nil)

	err := ingestor.HandleEvent(context.Background(), receivedEvent(t, ReceivedData{
		From:       "someone@example.org",
		To:         AddressList{"work@example.com"},
		Subject:    "Totally renamed",
		Text:       "reply",
		InReplyTo:  "<root@example.org>",
		References: "<ancient@example.org> <root@example.org>",
	}))
	require.NoError(t, err)

	msg := store.received[len(store.received)-1]
	assert.Equal(t, "Project Kickoff", msg.ThreadID)
	assert.Equal(t, "<root@example.org>", msg.InReplyTo)
	assert.Equal(t, []string{"<ancient@example.org>", "<root@example.org>"}, msg.References)
}

func TestHandleReceivedFetchesMissingContent(t *testing.T) {
	store := newFakeStore()
	store.accounts = append(store.accounts, &models.Account{ID: "acc1", Email: "work@example.com", IsActive: true})
	fetcher := &fakeFetcher{message: &provider.InboundMessage{
		ProviderID: "re_456",
		Text:       "fetched body",
		Subject:    "Fetched Subject",
	}}
	ingestor := newIngestor(store, fetcher, nil)

	err := ingestor.HandleEvent(context.Background(), receivedEvent(t, ReceivedData{
		EmailID: "re_456",
		From:    "someone@example.org",
		To:      AddressList{"work@example.com"},
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"re_456"}, fetcher.fetched)
	require.Len(t, store.received, 1)
	assert.Equal(t, "fetched body", store.received[0].Body)
	assert.Equal(t, "Fetched Subject", store.received[0].Subject)
}

func TestHandleReceivedEmptySubjectPlaceholder(t *testing.T) {
	store := newFakeStore()
	store.accounts = append(store.accounts, &models.Account{ID: "acc1", Email: "work@example.com", IsActive: true})
	ingestor := newIngestor(store, &fakeFetcher{}, nil)

	err := ingestor.HandleEvent(context.Background(), receivedEvent(t, ReceivedData{
		From: "a@b.c", To: AddressList{"work@example.com"}, Text: "body only",
	}))
	require.NoError(t, err)
	assert.Equal(t, models.PlaceholderSubject, store.received[0].Subject)
	assert.Equal(t, models.PlaceholderSubject, store.received[0].ThreadID)
}

func TestStatusEventsUpdateScheduledOnly(t *testing.T) {
	store := newFakeStore()
	store.scheduled["sched-1"] = &models.ScheduledEmail{
		ID:          "sched-1",
		Recipients:  []string{"a@b.c", "d@e.f"},
		ProviderIDs: []string{"re_1", "re_2"},
		Status:      models.SchedulePending,
	}
	ingestor := newIngestor(store, &fakeFetcher{}, nil)

	deliver := func(id string) {
		raw, _ := json.Marshal(StatusData{EmailID: id})
		require.NoError(t, ingestor.HandleEvent(context.Background(), Event{Type: EventDelivered, Data: raw}))
	}

	deliver("re_1")
	assert.Equal(t, 1, store.scheduled["sched-1"].SentCount)
	assert.Equal(t, models.SchedulePending, store.scheduled["sched-1"].Status)

	deliver("re_2")
	assert.Equal(t, 2, store.scheduled["sched-1"].SentCount)
	assert.Equal(t, models.ScheduleSent, store.scheduled["sched-1"].Status)
}

func TestBounceRecordsFailedRecipient(t *testing.T) {
	store := newFakeStore()
	store.scheduled["sched-1"] = &models.ScheduledEmail{
		ID:          "sched-1",
		Recipients:  []string{"a@b.c", "d@e.f"},
		ProviderIDs: []string{"re_1", "re_2"},
		Status:      models.SchedulePending,
	}
	ingestor := newIngestor(store, &fakeFetcher{}, nil)

	raw, _ := json.Marshal(StatusData{EmailID: "re_2"})
	require.NoError(t, ingestor.HandleEvent(context.Background(), Event{Type: EventBounced, Data: raw}))
	assert.Equal(t, []string{"d@e.f"}, store.scheduled["sched-1"].FailedRecipients)

	raw, _ = json.Marshal(StatusData{EmailID: "re_1"})
	require.NoError(t, ingestor.HandleEvent(context.Background(), Event{Type: EventBounced, Data: raw}))
	assert.Equal(t, models.ScheduleFailed, store.scheduled["sched-1"].Status)
}

func TestStatusEventForUnknownProviderIDIsIgnored(t *testing.T) {
	store := newFakeStore()
	ingestor := newIngestor(store, &fakeFetcher{}, nil)

	raw, _ := json.Marshal(StatusData{EmailID: "re_unknown"})
	err := ingestor.HandleEvent(context.Background(), Event{Type: EventDelivered, Data: raw})
	assert.NoError(t, err)
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	ingestor := newIngestor(newFakeStore(), &fakeFetcher{}, nil)
	err := ingestor.HandleEvent(context.Background(), Event{Type: "email.opened", Data: json.RawMessage(`{}`)})
	assert.NoError(t, err)
}

func TestSplitAddress(t *testing.T) {
	tests := []struct {
		name     string
		combined string
		wantName string
		wantAddr string
	}{
		{name: "name and address", combined: "Ada Lovelace <Ada@Example.org>", wantName: "Ada Lovelace", wantAddr: "ada@example.org"},
		{name: "bare address", combined: "ada@example.org", wantName: "", wantAddr: "ada@example.org"},
		{name: "quoted name", combined: `"Lovelace, Ada" <ada@example.org>`, wantName: "Lovelace, Ada", wantAddr: "ada@example.org"},
		{name: "empty", combined: "", wantName: "", wantAddr: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, addr := SplitAddress(tt.combined)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantAddr, addr)
		})
	}
}

func TestAddressListUnmarshal(t *testing.T) {
	var single AddressList
	require.NoError(t, json.Unmarshal([]byte(`"a@b.c"`), &single))
	assert.Equal(t, AddressList{"a@b.c"}, single)

	var many AddressList
	require.NoError(t, json.Unmarshal([]byte(`["a@b.c","d@e.f"]`), &many))
	assert.Equal(t, AddressList{"a@b.c", "d@e.f"}, many)

	var bad AddressList
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
}
