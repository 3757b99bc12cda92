// Package sqlite provides SQLite-backed chat persistence. The
// (task, participant-key) uniqueness constraint arbitrates concurrent chat
// creation; message appends take a per-chat sequence slot and retry when a
// concurrent append claims the same slot first.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gigboard/gigboard/internal/chat/domain"
	"github.com/gigboard/gigboard/internal/chat/storage/sqlite/migrations"
	"github.com/gigboard/gigboard/internal/platform/storage/sqlmigrate"
	_ "modernc.org/sqlite"
)

const participantSeparator = "|"

// appendRetries bounds the seq-slot retry loop under concurrent appends.
const appendRetries = 10

// Store provides SQLite-backed persistence for chats and messages.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

// Open opens a chat store at the provided path and applies migrations.
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

// OpenDB wraps an existing database handle, applying chat migrations.
func OpenDB(sqlDB *sql.DB) (*Store, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := sqlmigrate.Apply(sqlDB, migrations.FS); err != nil {
		return nil, fmt.Errorf("run chat migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
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

// CreateChat inserts one chat row; the unique (task_id, participant_key)
// index turns a concurrent duplicate into ErrConflict.
func (s *Store) CreateChat(ctx context.Context, chat domain.Chat) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	isActive := 0
	if chat.IsActive {
		isActive = 1
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO chats (id, task_id, participant_key, participants, is_active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		chat.ID,
		chat.TaskID,
		domain.ParticipantKey(chat.Participants),
		strings.Join(chat.Participants, participantSeparator),
		isActive,
		toMillis(chat.CreatedAt),
		toMillis(chat.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

// FindChatByTaskAndUser returns the task chat containing userID.
func (s *Store) FindChatByTaskAndUser(ctx context.Context, taskID string, userID string) (domain.Chat, error) {
	if err := ctx.Err(); err != nil {
		return domain.Chat{}, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, task_id, participants, is_active, created_at, updated_at
FROM chats
WHERE task_id = ?
ORDER BY created_at ASC, id ASC
`, taskID)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("find chat by task: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		chat, scanErr := scanChat(rows.Scan)
		if scanErr != nil {
			return domain.Chat{}, fmt.Errorf("scan chat row: %w", scanErr)
		}
		if chat.HasParticipant(userID) {
			return chat, nil
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Chat{}, fmt.Errorf("iterate chat rows: %w", err)
	}
	return domain.Chat{}, domain.ErrNotFound
}

// FindChatByTaskAndKey returns the chat with an exact participant key.
func (s *Store) FindChatByTaskAndKey(ctx context.Context, taskID string, key string) (domain.Chat, error) {
	if err := ctx.Err(); err != nil {
		return domain.Chat{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, task_id, participants, is_active, created_at, updated_at
FROM chats
WHERE task_id = ? AND participant_key = ?
`, taskID, key)
	chat, err := scanChat(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Chat{}, domain.ErrNotFound
		}
		return domain.Chat{}, fmt.Errorf("find chat by key: %w", err)
	}
	return chat, nil
}

// GetChat loads one chat by id.
func (s *Store) GetChat(ctx context.Context, chatID string) (domain.Chat, error) {
	if err := ctx.Err(); err != nil {
		return domain.Chat{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, task_id, participants, is_active, created_at, updated_at
FROM chats
WHERE id = ?
`, chatID)
	chat, err := scanChat(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Chat{}, domain.ErrNotFound
		}
		return domain.Chat{}, fmt.Errorf("get chat: %w", err)
	}
	return chat, nil
}

// AppendMessage persists one message with a server-assigned sequence and a
// timestamp clamped to never run backwards within the chat. Losing a race
// for the next sequence slot surfaces as a unique violation; the append
// recomputes and retries.
func (s *Store) AppendMessage(ctx context.Context, message domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	for attempt := 0; attempt < appendRetries; attempt++ {
		var lastSeq int64
		var lastCreatedAt int64
		err := s.sqlDB.QueryRowContext(ctx, `
SELECT COALESCE(MAX(seq), 0), COALESCE(MAX(created_at), 0)
FROM messages
WHERE chat_id = ?
`, message.ChatID).Scan(&lastSeq, &lastCreatedAt)
		if err != nil {
			return domain.Message{}, fmt.Errorf("read message cursor: %w", err)
		}

		createdAt := toMillis(s.clock())
		if createdAt < lastCreatedAt {
			createdAt = lastCreatedAt
		}
		seq := lastSeq + 1

		_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO messages (id, chat_id, sender_id, content, seq, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, message.ID, message.ChatID, message.SenderID, message.Content, seq, createdAt)
		if err != nil {
			if isUniqueConstraintError(err) {
				continue
			}
			return domain.Message{}, fmt.Errorf("insert message: %w", err)
		}

		message.Seq = seq
		message.CreatedAt = fromMillis(createdAt)
		return message, nil
	}
	return domain.Message{}, fmt.Errorf("append message: retries exhausted for chat %s", message.ChatID)
}

// ListMessages returns every chat message ascending by creation order.
func (s *Store) ListMessages(ctx context.Context, chatID string) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, chat_id, sender_id, content, seq, created_at
FROM messages
WHERE chat_id = ?
ORDER BY seq ASC
`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.Seq, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.CreatedAt = fromMillis(createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return messages, nil
}

// DeleteChat removes one chat; the foreign key cascade removes its messages
// in the same operation so no orphaned messages remain.
func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete chat rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanChat(scan func(dest ...any) error) (domain.Chat, error) {
	var chat domain.Chat
	var participants string
	var isActive int
	var createdAt, updatedAt int64
	if err := scan(&chat.ID, &chat.TaskID, &participants, &isActive, &createdAt, &updatedAt); err != nil {
		return domain.Chat{}, err
	}
	if participants != "" {
		chat.Participants = strings.Split(participants, participantSeparator)
	}
	chat.IsActive = isActive == 1
	chat.CreatedAt = fromMillis(createdAt)
	chat.UpdatedAt = fromMillis(updatedAt)
	return chat, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
