package thread

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailboxhq/mailbox/internal/models"
)

// fakeSource is an in-memory MessageSource for resolver tests.
type fakeSource struct {
	messages []models.Message
}

func (f *fakeSource) FindByMessageID(_ context.Context, accountID string, messageIDs []string) ([]models.Message, error) {
	wanted := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = struct{}{}
	}
	var matches []models.Message
	for _, msg := range f.messages {
		if msg.AccountID != accountID || msg.MessageID == "" {
			continue
		}
		if _, ok := wanted[msg.MessageID]; ok {
			matches = append(matches, msg)
		}
	}
	return matches, nil
}

func (f *fakeSource) HasThread(_ context.Context, accountID, threadID string) (bool, error) {
	for _, msg := range f.messages {
		if msg.AccountID == accountID && msg.ThreadID == threadID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSource) MessagesByThread(_ context.Context, accountID, threadID string) ([]models.Message, error) {
	var out []models.Message
	for _, msg := range f.messages {
		if msg.AccountID == accountID && msg.ThreadID == threadID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeSource) MessagesByAccount(_ context.Context, accountID string) ([]models.Message, error) {
	var out []models.Message
	for _, msg := range f.messages {
		if msg.AccountID == accountID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func dateAt(hour int) time.Time {
	return time.Date(2025, 6, 1, hour, 0, 0, 0, time.UTC)
}

func TestResolveSeedsNewThreadFromSubject(t *testing.T) {
	resolver := NewResolver(&fakeSource{})

	res, err := resolver.Resolve(context.Background(), "acc1", Request{Subject: "Project Kickoff"})
	require.NoError(t, err)
	assert.Equal(t, "Project Kickoff", res.ThreadID)
	assert.Empty(t, res.InReplyTo)
	assert.Empty(t, res.References)
}

func TestResolveUsesExplicitThreadID(t *testing.T) {
	resolver := NewResolver(&fakeSource{})

	res, err := resolver.Resolve(context.Background(), "acc1", Request{
		Subject:   "Re: Anything",
		ThreadID:  "existing-thread",
		InReplyTo: "<abc@example.com>",
	})
	require.NoError(t, err)
	assert.Equal(t, "existing-thread", res.ThreadID)
	assert.Equal(t, "<abc@example.com>", res.InReplyTo)
	assert.Equal(t, []string{"<abc@example.com>"}, res.References)
}

func TestResolveCorrelatesByInReplyToHeader(t *testing.T) {
	source := &fakeSource{messages: []models.Message{{
		AccountID: "acc1",
		Direction: models.DirectionSent,
		MessageID: "<abc@domain>",
		ThreadID:  "Project Kickoff",
		Date:      dateAt(9),
	}}}
	resolver := NewResolver(source)

	// The reply arrives with a different subject; the header still wins.
	res, err := resolver.Resolve(context.Background(), "acc1", Request{
		Subject:   "Completely different subject",
		InReplyTo: "<abc@domain>",
	})
	require.NoError(t, err)
	assert.Equal(t, "Project Kickoff", res.ThreadID)
}

func TestResolveCorrelatesByReferencesChain(t *testing.T) {
	source := &fakeSource{messages: []models.Message{{
		AccountID: "acc1",
		Direction: models.DirectionReceived,
		MessageID: "<root@domain>",
		ThreadID:  "Long Thread",
		Date:      dateAt(9),
	}}}
	resolver := NewResolver(source)

	// Only a distant ancestor is still resolvable.
	res, err := resolver.Resolve(context.Background(), "acc1", Request{
		Subject:    "Re: Long Thread (edited)",
		InReplyTo:  "<lost@domain>",
		References: []string{"<root@domain>", "<also-lost@domain>"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Long Thread", res.ThreadID)
}

func TestResolveHeaderMatchBeatsSubjectMatch(t *testing.T) {
	source := &fakeSource{messages: []models.Message{
		{
			AccountID: "acc1",
			Direction: models.DirectionSent,
			MessageID: "<abc@domain>",
			ThreadID:  "Thread A",
			Date:      dateAt(9),
		},
		{
			AccountID: "acc1",
			Direction: models.DirectionReceived,
			ThreadID:  "Budget Review",
			Subject:   "Budget Review",
			Date:      dateAt(10),
		},
	}}
	resolver := NewResolver(source)

	res, err := resolver.Resolve(context.Background(), "acc1", Request{
		Subject:   "Re: Budget Review",
		InReplyTo: "<abc@domain>",
	})
	require.NoError(t, err)
	assert.Equal(t, "Thread A", res.ThreadID)
}

func TestResolveDivergentMatchesPickMostRecent(t *testing.T) {
	source := &fakeSource{messages: []models.Message{
		{
			AccountID: "acc1",
			Direction: models.DirectionSent,
			MessageID: "<old@domain>",
			ThreadID:  "Thread Old",
			Date:      dateAt(8),
		},
		{
			AccountID: "acc1",
			Direction: models.DirectionReceived,
			MessageID: "<new@domain>",
			ThreadID:  "Thread New",
			Date:      dateAt(12),
		},
	}}
	resolver := NewResolver(source)

	res, err := resolver.Resolve(context.Background(), "acc1", Request{
		Subject:    "Re: whatever",
		InReplyTo:  "<old@domain>",
		References: []string{"<new@domain>"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Thread New", res.ThreadID)
}

func TestResolveSubjectFallbackRequiresReplyMarker(t *testing.T) {
	source := &fakeSource{messages: []models.Message{{
		AccountID: "acc1",
		Direction: models.DirectionReceived,
		ThreadID:  "Budget Review",
		Subject:   "Budget Review",
		Date:      dateAt(9),
	}}}
	resolver := NewResolver(source)

	// A reply by subject joins the existing thread.
	res, err := resolver.Resolve(context.Background(), "acc1", Request{Subject: "Re: Budget Review"})
	require.NoError(t, err)
	assert.Equal(t, "Budget Review", res.ThreadID)

	// A fresh message with the same subject also keys to the same thread id
	// string: that is the designed fallback, not a merge.
	res, err = resolver.Resolve(context.Background(), "acc1", Request{Subject: "Budget Review"})
	require.NoError(t, err)
	assert.Equal(t, "Budget Review", res.ThreadID)
}

func TestResolveSubjectFallbackWithoutExistingThread(t *testing.T) {
	resolver := NewResolver(&fakeSource{})

	// Reply markers with no thread to join still seed a thread by base subject.
	res, err := resolver.Resolve(context.Background(), "acc1", Request{Subject: "Re: Orphan Reply"})
	require.NoError(t, err)
	assert.Equal(t, "Orphan Reply", res.ThreadID)
}

func TestResolveIsScopedPerAccount(t *testing.T) {
	source := &fakeSource{messages: []models.Message{{
		AccountID: "acc2",
		Direction: models.DirectionSent,
		MessageID: "<abc@domain>",
		ThreadID:  "Other Account Thread",
		Date:      dateAt(9),
	}}}
	resolver := NewResolver(source)

	// acc2's message must not be visible from acc1.
	res, err := resolver.Resolve(context.Background(), "acc1", Request{
		Subject:   "Re: Hello",
		InReplyTo: "<abc@domain>",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.ThreadID)
}

func TestResolveIsDeterministic(t *testing.T) {
	source := &fakeSource{messages: []models.Message{
		{AccountID: "acc1", MessageID: "<a@d>", ThreadID: "T1", Direction: models.DirectionSent, Date: dateAt(8)},
		{AccountID: "acc1", MessageID: "<b@d>", ThreadID: "T2", Direction: models.DirectionReceived, Date: dateAt(9)},
	}}
	resolver := NewResolver(source)
	req := Request{Subject: "Re: x", InReplyTo: "<a@d>", References: []string{"<b@d>", "<a@d>"}}

	first, err := resolver.Resolve(context.Background(), "acc1", req)
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), "acc1", req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveEmptySubjectUsesPlaceholder(t *testing.T) {
	resolver := NewResolver(&fakeSource{})

	res, err := resolver.Resolve(context.Background(), "acc1", Request{Subject: "Re:"})
	require.NoError(t, err)
	assert.Equal(t, models.PlaceholderSubject, res.ThreadID)
}

func TestResolveFinalizesReferencesChain(t *testing.T) {
	resolver := NewResolver(&fakeSource{})

	res, err := resolver.Resolve(context.Background(), "acc1", Request{
		Subject:    "Hello",
		InReplyTo:  "<b@d>",
		References: []string{"<a@d>", "<b@d>", "<a@d>"},
	})
	require.NoError(t, err)
	// Deduplicated, order preserved, inReplyTo last.
	assert.Equal(t, []string{"<a@d>", "<b@d>"}, res.References)
}

func TestContinueBuildsAncestorChain(t *testing.T) {
	ancestor := &models.Message{
		ThreadID:   "Project Kickoff",
		MessageID:  "<m2@d>",
		References: []string{"<m1@d>"},
	}

	res := Continue(ancestor, "Re: Project Kickoff")
	assert.Equal(t, "Project Kickoff", res.ThreadID)
	assert.Equal(t, "<m2@d>", res.InReplyTo)
	assert.Equal(t, []string{"<m1@d>", "<m2@d>"}, res.References)
}

func TestContinueWithoutAncestorMessageID(t *testing.T) {
	ancestor := &models.Message{ThreadID: "", MessageID: ""}

	res := Continue(ancestor, "Re: Fallback Subject")
	assert.Equal(t, "Fallback Subject", res.ThreadID)
	assert.Empty(t, res.InReplyTo)
	assert.Empty(t, res.References)
}
