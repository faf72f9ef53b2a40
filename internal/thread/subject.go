package thread

import (
	"strings"

	"github.com/mailboxhq/mailbox/internal/models"
)

// replyMarkers are the subject prefixes that mark a message as a reply or
// forward. Matching is case-insensitive and repeated markers are all stripped.
var replyMarkers = []string{"re:", "fwd:", "fw:"}

// BaseSubject strips leading reply/forward markers and surrounding whitespace
// from a subject. Stripping is idempotent. A subject that is empty after
// stripping becomes the placeholder "(No Subject)".
func BaseSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		stripped := stripOneMarker(s)
		if stripped == s {
			break
		}
		s = stripped
	}
	if s == "" {
		return models.PlaceholderSubject
	}
	return s
}

// IsReplySubject reports whether the subject carries at least one
// reply/forward marker.
func IsReplySubject(subject string) bool {
	return stripOneMarker(strings.TrimSpace(subject)) != strings.TrimSpace(subject)
}

func stripOneMarker(s string) string {
	lower := strings.ToLower(s)
	for _, marker := range replyMarkers {
		if strings.HasPrefix(lower, marker) {
			return strings.TrimSpace(s[len(marker):])
		}
	}
	return s
}
