// Package sqlite provides SQLite-backed task persistence. The accept and
// status-update writes are single conditional UPDATE statements so the
// database row, not an in-process lock, arbitrates concurrent transitions.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gigboard/gigboard/internal/platform/storage/sqlmigrate"
	"github.com/gigboard/gigboard/internal/task/domain"
	"github.com/gigboard/gigboard/internal/task/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for tasks.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a task store at the provided path and applies migrations.
func Open(path string) (*Store, error) {
	sqlDB, err := openDB(path)
	if err != nil {
		return nil, err
	}
	store := &Store{sqlDB: sqlDB}
	if err := sqlmigrate.Apply(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run task migrations: %w", err)
	}
	return store, nil
}

// OpenDB wraps an existing database handle, applying task migrations.
// Callers sharing one SQLite file across stores use this form.
func OpenDB(sqlDB *sql.DB) (*Store, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	if err := sqlmigrate.Apply(sqlDB, migrations.FS); err != nil {
		return nil, fmt.Errorf("run task migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func openDB(path string) (*sql.DB, error) {
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
	return sqlDB, nil
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

// CreateTask inserts one new task row.
func (s *Store) CreateTask(ctx context.Context, task domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var dueDate sql.NullInt64
	if !task.Date.IsZero() {
		dueDate = sql.NullInt64{Int64: toMillis(task.Date), Valid: true}
	}
	var assignedTo sql.NullString
	if task.AssignedTo != "" {
		assignedTo = sql.NullString{String: task.AssignedTo, Valid: true}
	}
	var lat, lng sql.NullFloat64
	if task.Location.Lat != nil {
		lat = sql.NullFloat64{Float64: *task.Location.Lat, Valid: true}
	}
	if task.Location.Lng != nil {
		lng = sql.NullFloat64{Float64: *task.Location.Lng, Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO tasks (
    id, title, description, min_budget, max_budget, due_date, category,
    priority, status, created_by, assigned_to, location_address,
    location_lat, location_lng, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		task.ID,
		task.Title,
		task.Description,
		task.MinBudget,
		task.MaxBudget,
		dueDate,
		task.Category,
		task.Priority,
		string(task.Status),
		task.CreatedBy,
		assignedTo,
		task.Location.Address,
		lat,
		lng,
		toMillis(task.CreatedAt),
		toMillis(task.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

const taskColumns = `id, title, description, min_budget, max_budget, due_date, category,
priority, status, created_by, assigned_to, location_address, location_lat,
location_lng, created_at, updated_at`

// GetTask loads one task by id.
func (s *Store) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return domain.Task{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	task, err := scanTask(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *Store) ListTasks(ctx context.Context, filter domain.Filter) ([]domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	var clauses []string
	var args []any
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.UserID != "" {
		clauses = append(clauses, "(created_by = ? OR assigned_to = ?)")
		args = append(args, filter.UserID, filter.UserID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, scanErr := scanTask(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan task row: %w", scanErr)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return tasks, nil
}

// AcceptTask performs the posted → accepted conditional update. The WHERE
// clause is the entire race arbitration: zero affected rows means another
// accept already won (or the task is gone).
func (s *Store) AcceptTask(ctx context.Context, taskID string, actorID string, now time.Time) (domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return domain.Task{}, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE tasks
SET status = ?, assigned_to = ?, updated_at = ?
WHERE id = ? AND status = ? AND assigned_to IS NULL
`, string(domain.StatusAccepted), actorID, toMillis(now), taskID, string(domain.StatusPosted))
	if err != nil {
		return domain.Task{}, fmt.Errorf("accept task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Task{}, fmt.Errorf("accept task rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetTask(ctx, taskID); getErr != nil {
			return domain.Task{}, getErr
		}
		return domain.Task{}, domain.ErrConflict
	}
	return s.GetTask(ctx, taskID)
}

// UpdateTaskStatus performs a from → to conditional update.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, from domain.Status, to domain.Status, now time.Time) (domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return domain.Task{}, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE tasks
SET status = ?, updated_at = ?
WHERE id = ? AND status = ?
`, string(to), toMillis(now), taskID, string(from))
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task status rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetTask(ctx, taskID); getErr != nil {
			return domain.Task{}, getErr
		}
		return domain.Task{}, domain.ErrConflict
	}
	return s.GetTask(ctx, taskID)
}

type scanner func(dest ...any) error

func scanTask(scan scanner) (domain.Task, error) {
	var task domain.Task
	var status string
	var dueDate sql.NullInt64
	var assignedTo sql.NullString
	var lat, lng sql.NullFloat64
	var createdAt, updatedAt int64
	if err := scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.MinBudget,
		&task.MaxBudget,
		&dueDate,
		&task.Category,
		&task.Priority,
		&status,
		&task.CreatedBy,
		&assignedTo,
		&task.Location.Address,
		&lat,
		&lng,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Task{}, err
	}
	task.Status = domain.Status(status)
	if dueDate.Valid {
		task.Date = fromMillis(dueDate.Int64)
	}
	if assignedTo.Valid {
		task.AssignedTo = assignedTo.String
	}
	if lat.Valid {
		value := lat.Float64
		task.Location.Lat = &value
	}
	if lng.Valid {
		value := lng.Float64
		task.Location.Lng = &value
	}
	task.CreatedAt = fromMillis(createdAt)
	task.UpdatedAt = fromMillis(updatedAt)
	return task, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
