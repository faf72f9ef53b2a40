package thread

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mailboxhq/mailbox/internal/models"
)

// excerptLength caps the lastMessage preview in thread listings.
const excerptLength = 100

// Summary is the aggregated view of one thread for the listing screen.
type Summary struct {
	ThreadID      string    `json:"threadId"`
	Subject       string    `json:"subject"`
	LastMessage   string    `json:"lastMessage"`
	LastDate      time.Time `json:"lastDate"`
	SentCount     int       `json:"sentCount"`
	ReceivedCount int       `json:"receivedCount"`
	UnreadCount   int       `json:"unreadCount"`
	Participants  []string  `json:"participants"`
}

// ListThreads aggregates every message in the account into thread summaries,
// sorted by last activity, newest first. A thread exists only as a byproduct
// of having at least one message.
func (r *Resolver) ListThreads(ctx context.Context, accountID string) ([]Summary, error) {
	messages, err := r.source.MessagesByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account messages: %w", err)
	}

	// Participants are collected in message order, so sort ascending first.
	sortByDateAscending(messages)

	groups := make(map[string][]models.Message)
	var order []string
	for _, msg := range messages {
		if _, ok := groups[msg.ThreadID]; !ok {
			order = append(order, msg.ThreadID)
		}
		groups[msg.ThreadID] = append(groups[msg.ThreadID], msg)
	}

	summaries := make([]Summary, 0, len(order))
	for _, threadID := range order {
		summaries = append(summaries, summarize(threadID, groups[threadID]))
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastDate.After(summaries[j].LastDate)
	})
	return summaries, nil
}

// GetThread returns the thread's messages in conversation reading order,
// oldest first. An unknown thread id yields ErrThreadNotFound.
func (r *Resolver) GetThread(ctx context.Context, accountID, threadID string) ([]models.Message, error) {
	messages, err := r.source.MessagesByThread(ctx, accountID, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread messages: %w", err)
	}
	if len(messages) == 0 {
		return nil, ErrThreadNotFound
	}
	sortByDateAscending(messages)
	return messages, nil
}

// summarize folds one thread's messages (ascending by date) into a Summary.
func summarize(threadID string, messages []models.Message) Summary {
	s := Summary{ThreadID: threadID}
	seen := make(map[string]struct{})

	for _, msg := range messages {
		switch msg.Direction {
		case models.DirectionSent:
			s.SentCount++
			for _, addr := range msg.To {
				addParticipant(&s, seen, addr)
			}
		case models.DirectionReceived:
			s.ReceivedCount++
			if !msg.IsRead && !msg.IsArchived {
				s.UnreadCount++
			}
			addParticipant(&s, seen, msg.From)
		}
	}

	last := messages[len(messages)-1]
	s.Subject = last.Subject
	s.LastDate = last.Date
	s.LastMessage = excerpt(last.Body)
	return s
}

func addParticipant(s *Summary, seen map[string]struct{}, addr string) {
	if addr == "" {
		return
	}
	if _, ok := seen[addr]; ok {
		return
	}
	seen[addr] = struct{}{}
	s.Participants = append(s.Participants, addr)
}

func excerpt(body string) string {
	runes := []rune(body)
	if len(runes) <= excerptLength {
		return body
	}
	return string(runes[:excerptLength])
}

func sortByDateAscending(messages []models.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Date.Before(messages[j].Date)
	})
}
