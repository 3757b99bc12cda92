// Package sqlite provides SQLite-backed notification persistence. A partial
// unique index on (user_id, dedupe_key) arbitrates concurrent writes of the
// same logical notification.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gigboard/gigboard/internal/notification/domain"
	"github.com/gigboard/gigboard/internal/notification/storage/sqlite/migrations"
	"github.com/gigboard/gigboard/internal/platform/storage/sqlmigrate"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for notifications.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a notification store at the provided path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	store, err := OpenDB(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// OpenDB wraps an existing database handle, applying notification migrations.
func OpenDB(sqlDB *sql.DB) (*Store, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	if err := sqlmigrate.Apply(sqlDB, migrations.FS); err != nil {
		return nil, fmt.Errorf("run notification migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// PutNotification inserts one notification row. A duplicate dedupe key for
// the same user surfaces as ErrConflict.
func (s *Store) PutNotification(ctx context.Context, notification domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var readAt any
	if notification.ReadAt != nil {
		readAt = toMillis(*notification.ReadAt)
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notifications (id, user_id, message, dedupe_key, created_at, read_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		notification.ID,
		notification.UserID,
		notification.Message,
		notification.DedupeKey,
		toMillis(notification.CreatedAt),
		readAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetNotificationByUserAndDedupeKey finds a prior write with the same key.
func (s *Store) GetNotificationByUserAndDedupeKey(ctx context.Context, userID string, dedupeKey string) (domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Notification{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, user_id, message, dedupe_key, created_at, read_at
FROM notifications
WHERE user_id = ? AND dedupe_key = ? AND dedupe_key <> ''
`, userID, dedupeKey)
	notification, err := scanNotification(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Notification{}, domain.ErrNotFound
		}
		return domain.Notification{}, fmt.Errorf("get notification by dedupe key: %w", err)
	}
	return notification, nil
}

// ListNotificationsByUser returns a user's notifications newest first.
func (s *Store) ListNotificationsByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_id, message, dedupe_key, created_at, read_at
FROM notifications
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		notification, scanErr := scanNotification(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan notification row: %w", scanErr)
		}
		notifications = append(notifications, notification)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification rows: %w", err)
	}
	return notifications, nil
}

// MarkNotificationRead stamps read_at once; re-reading keeps the first stamp.
func (s *Store) MarkNotificationRead(ctx context.Context, userID string, notificationID string, readAt time.Time) (domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Notification{}, err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
UPDATE notifications
SET read_at = ?
WHERE id = ? AND user_id = ? AND read_at IS NULL
`, toMillis(readAt), notificationID, userID)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("mark notification read: %w", err)
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, user_id, message, dedupe_key, created_at, read_at
FROM notifications
WHERE id = ? AND user_id = ?
`, notificationID, userID)
	notification, err := scanNotification(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Notification{}, domain.ErrNotFound
		}
		return domain.Notification{}, fmt.Errorf("get notification: %w", err)
	}
	return notification, nil
}

func scanNotification(scan func(dest ...any) error) (domain.Notification, error) {
	var notification domain.Notification
	var createdAt int64
	var readAt sql.NullInt64
	if err := scan(
		&notification.ID,
		&notification.UserID,
		&notification.Message,
		&notification.DedupeKey,
		&createdAt,
		&readAt,
	); err != nil {
		return domain.Notification{}, err
	}
	notification.CreatedAt = fromMillis(createdAt)
	if readAt.Valid {
		at := fromMillis(readAt.Int64)
		notification.ReadAt = &at
	}
	return notification, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
