// Package domain owns the task lifecycle: the status state machine, its
// actor rules, and the conditional-update contract that arbitrates races.
package domain

import "time"

// Status is a task lifecycle state.
type Status string

const (
	StatusPosted     Status = "posted"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus validates a client-provided status value.
func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusPosted, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return Status(value), true
	}
	return "", false
}

// IsTerminal reports whether no further transition can leave this status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Location is a task place of work. Address may carry coordinates once
// geocoded; coordinates alone are also valid.
type Location struct {
	Address string
	Lat     *float64
	Lng     *float64
}

// Task is one unit of requested work.
//
// Invariant: AssignedTo is non-empty exactly when Status is accepted,
// in_progress, or completed.
type Task struct {
	ID          string
	Title       string
	Description string
	MinBudget   float64
	MaxBudget   float64
	Date        time.Time
	Category    string
	Priority    string
	Status      Status
	CreatedBy   string
	AssignedTo  string
	Location    Location
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsParticipant reports whether userID is the requester or the fulfiller.
func (t Task) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return userID == t.CreatedBy || userID == t.AssignedTo
}
