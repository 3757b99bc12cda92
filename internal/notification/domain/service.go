// Package domain owns the durable notification inbox. Rows are written as a
// best-effort side effect of task transitions; their lifecycle is
// independent of any live connection.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/gigboard/gigboard/internal/platform/errors"
	"github.com/gigboard/gigboard/internal/platform/id"
)

var (
	// ErrNotFound indicates a notification record was not found.
	ErrNotFound = errors.New("notification not found")
	// ErrConflict indicates a write conflicted with the dedupe constraint.
	ErrConflict = errors.New("notification conflict")
)

// listLimit caps how many inbox rows one listing returns, newest first.
const listLimit = 100

// Notification captures one user-targeted notification item.
type Notification struct {
	ID        string
	UserID    string
	Message   string
	DedupeKey string
	CreatedAt time.Time
	ReadAt    *time.Time
}

// Read reports whether the notification was acknowledged.
func (n Notification) Read() bool {
	return n.ReadAt != nil
}

// CreateInput describes one notification write.
type CreateInput struct {
	UserID    string
	Message   string
	DedupeKey string
}

// Store is the persistence boundary for notifications.
type Store interface {
	PutNotification(ctx context.Context, notification Notification) error
	GetNotificationByUserAndDedupeKey(ctx context.Context, userID string, dedupeKey string) (Notification, error)
	ListNotificationsByUser(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, userID string, notificationID string, readAt time.Time) (Notification, error)
}

// Service orchestrates the inbox lifecycle.
type Service struct {
	store Store
	clock func() time.Time
	newID func() (string, error)
}

// NewService constructs notification use-cases.
func NewService(store Store, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store: store,
		clock: clock,
		newID: newID,
	}
}

// Create stores one notification, de-duplicating by user+dedupe key so a
// retried transition cannot double-notify.
func (s *Service) Create(ctx context.Context, input CreateInput) (Notification, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return Notification{}, apperrors.New(apperrors.CodeRequestMalformed, "notification recipient is required")
	}
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return Notification{}, apperrors.New(apperrors.CodeRequestMalformed, "notification message is required")
	}

	dedupeKey := strings.TrimSpace(input.DedupeKey)
	if dedupeKey != "" {
		existing, err := s.store.GetNotificationByUserAndDedupeKey(ctx, userID, dedupeKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Notification{}, apperrors.Wrap(apperrors.CodeStorageFailure, "check notification dedupe", err)
		}
	}

	notificationID, err := s.newID()
	if err != nil {
		return Notification{}, apperrors.Wrap(apperrors.CodeStorageFailure, "generate notification id", err)
	}
	notification := Notification{
		ID:        notificationID,
		UserID:    userID,
		Message:   message,
		DedupeKey: dedupeKey,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.store.PutNotification(ctx, notification); err != nil {
		if dedupeKey != "" && errors.Is(err, ErrConflict) {
			existing, lookupErr := s.store.GetNotificationByUserAndDedupeKey(ctx, userID, dedupeKey)
			if lookupErr == nil {
				return existing, nil
			}
		}
		return Notification{}, apperrors.Wrap(apperrors.CodeStorageFailure, "put notification", err)
	}
	return notification, nil
}

// List returns a user's notifications newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.New(apperrors.CodeRequestMalformed, "user is required")
	}
	notifications, err := s.store.ListNotificationsByUser(ctx, userID, listLimit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "list notifications", err)
	}
	return notifications, nil
}

// MarkRead acknowledges one notification owned by userID.
func (s *Service) MarkRead(ctx context.Context, userID string, notificationID string) (Notification, error) {
	userID = strings.TrimSpace(userID)
	notificationID = strings.TrimSpace(notificationID)
	if userID == "" || notificationID == "" {
		return Notification{}, apperrors.New(apperrors.CodeRequestMalformed, "user and notification id are required")
	}
	notification, err := s.store.MarkNotificationRead(ctx, userID, notificationID, s.clock().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Notification{}, apperrors.New(apperrors.CodeNotificationNotFound, "notification not found")
		}
		return Notification{}, apperrors.Wrap(apperrors.CodeStorageFailure, "mark notification read", err)
	}
	return notification, nil
}
