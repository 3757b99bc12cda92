// Package domain owns task-scoped conversations: the canonical-chat
// resolver and the append-only message log.
package domain

import (
	"sort"
	"strings"
	"time"
)

// Chat is one conversation scoped to exactly one task with at most two
// participants. The participant list is fixed after creation.
type Chat struct {
	ID           string
	TaskID       string
	Participants []string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasParticipant reports whether userID belongs to this chat.
func (c Chat) HasParticipant(userID string) bool {
	for _, participant := range c.Participants {
		if participant == userID {
			return true
		}
	}
	return false
}

// ParticipantKey is the canonical identity of a participant set within a
// task: sorted, deduplicated, pipe-joined. The storage layer holds a
// uniqueness constraint on (task, key) to arbitrate concurrent creation.
func ParticipantKey(participants []string) string {
	sorted := append([]string(nil), participants...)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}

// Message is one chat entry. Seq and CreatedAt are server-assigned;
// CreatedAt is monotonic within a chat.
type Message struct {
	ID        string
	ChatID    string
	SenderID  string
	Content   string
	Seq       int64
	CreatedAt time.Time
}
