// Package thread derives conversation threads from independently stored sent
// and received messages. A thread is never persisted as its own record: it is
// recomputed from the two message collections on every read, and a message's
// thread id is decided exactly once, when the message is created.
package thread

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mailboxhq/mailbox/internal/models"
)

// ErrThreadNotFound is returned when a thread has no messages in the account.
var ErrThreadNotFound = errors.New("thread not found")

// MessageSource is the read surface the resolver needs from the store. It is
// satisfied by db.Store.
type MessageSource interface {
	// FindByMessageID returns every message in the account (sent or received)
	// whose Message-ID header equals one of the given candidates.
	FindByMessageID(ctx context.Context, accountID string, messageIDs []string) ([]models.Message, error)
	// HasThread reports whether any message in the account carries the thread id.
	HasThread(ctx context.Context, accountID, threadID string) (bool, error)
	// MessagesByThread returns all messages in the account with the thread id,
	// in no particular order.
	MessagesByThread(ctx context.Context, accountID, threadID string) ([]models.Message, error)
	// MessagesByAccount returns every message in the account, both directions.
	MessagesByAccount(ctx context.Context, accountID string) ([]models.Message, error)
}

// Request carries the headers and subject of a message about to be created.
// ThreadID is set only when the caller already knows the thread (replying
// within a running session).
type Request struct {
	Subject    string
	ThreadID   string
	InReplyTo  string
	References []string
}

// Resolution is the finalized threading state to store with the new message.
type Resolution struct {
	ThreadID   string
	InReplyTo  string
	References []string
}

// Resolver assigns thread ids and assembles thread views. It holds no state of
// its own; all durable state lives behind the MessageSource.
type Resolver struct {
	source MessageSource
}

// NewResolver creates a Resolver reading from the given source.
func NewResolver(source MessageSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve determines the thread id for a new message. Rules, first match wins:
//
//  1. The caller already knows the thread: use it.
//  2. Any candidate header id (inReplyTo, then references) matches an existing
//     message's Message-ID: adopt that message's thread id. When candidates
//     match messages in different threads, the most recently dated match wins.
//  3. The subject marks a reply/forward and a thread keyed by the base subject
//     already exists: adopt it.
//  4. Otherwise the base subject seeds a new thread.
//
// Resolution never fails on input: every subject/header combination maps to
// some thread id. Only store I/O can produce an error.
func (r *Resolver) Resolve(ctx context.Context, accountID string, req Request) (Resolution, error) {
	res := Resolution{
		ThreadID:   req.ThreadID,
		InReplyTo:  req.InReplyTo,
		References: finalizeReferences(req.References, req.InReplyTo),
	}

	if res.ThreadID != "" {
		return res, nil
	}

	candidates := candidateIDs(req.InReplyTo, req.References)
	if len(candidates) > 0 {
		matches, err := r.source.FindByMessageID(ctx, accountID, candidates)
		if err != nil {
			return Resolution{}, fmt.Errorf("failed to look up ancestor messages: %w", err)
		}
		if match := latestMessage(matches); match != nil {
			res.ThreadID = match.ThreadID
			return res, nil
		}
	}

	base := BaseSubject(req.Subject)
	if IsReplySubject(req.Subject) {
		exists, err := r.source.HasThread(ctx, accountID, base)
		if err != nil {
			return Resolution{}, fmt.Errorf("failed to look up thread by subject: %w", err)
		}
		if exists {
			res.ThreadID = base
			return res, nil
		}
	}

	res.ThreadID = base
	return res, nil
}

// Continue builds the threading state for a reply to a known ancestor message:
// the ancestor's thread id is inherited, inReplyTo becomes the ancestor's
// Message-ID, and the references chain is the ancestor's chain with its own id
// appended last.
func Continue(ancestor *models.Message, subject string) Resolution {
	res := Resolution{ThreadID: ancestor.ThreadID}
	if res.ThreadID == "" {
		res.ThreadID = BaseSubject(subject)
	}
	if ancestor.MessageID != "" {
		res.InReplyTo = ancestor.MessageID
		res.References = finalizeReferences(ancestor.References, ancestor.MessageID)
	} else {
		res.References = finalizeReferences(ancestor.References, "")
	}
	return res
}

// candidateIDs builds the ancestor candidate set: inReplyTo first, then the
// references chain, empty entries and duplicates dropped.
func candidateIDs(inReplyTo string, references []string) []string {
	seen := make(map[string]struct{}, len(references)+1)
	var ids []string
	for _, id := range append([]string{inReplyTo}, references...) {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// finalizeReferences deduplicates the chain preserving order and guarantees
// that inReplyTo, when known, is its last element.
func finalizeReferences(references []string, inReplyTo string) []string {
	seen := make(map[string]struct{}, len(references)+1)
	var chain []string
	for _, id := range references {
		if id == "" || id == inReplyTo {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		chain = append(chain, id)
	}
	if inReplyTo != "" {
		chain = append(chain, inReplyTo)
	}
	return chain
}

// latestMessage returns the most recently dated message, or nil for an empty
// slice. Ties keep the earlier element, which makes the choice deterministic
// for a fixed store ordering.
func latestMessage(messages []models.Message) *models.Message {
	if len(messages) == 0 {
		return nil
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Date.After(messages[j].Date)
	})
	return &messages[0]
}
