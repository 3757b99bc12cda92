package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gigboard/gigboard/internal/task/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func postedTask(id string, createdBy string, at time.Time) domain.Task {
	return domain.Task{
		ID:        id,
		Title:     "Fix sink",
		MinBudget: 50,
		MaxBudget: 80,
		Category:  "plumbing",
		Priority:  "normal",
		Status:    domain.StatusPosted,
		CreatedBy: createdBy,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestCreateAndGetTaskRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	lat := 43.65
	lng := -79.38
	task := postedTask("task-1", "u1", now)
	task.Location = domain.Location{Address: "100 Main St", Lat: &lat, Lng: &lng}
	task.Date = now.Add(48 * time.Hour)

	if err := store.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetTask(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Fix sink" || got.Status != domain.StatusPosted || got.AssignedTo != "" {
		t.Fatalf("unexpected task: %+v", got)
	}
	if got.Location.Lat == nil || *got.Location.Lat != lat {
		t.Fatalf("lost coordinates: %+v", got.Location)
	}
	if !got.Date.Equal(task.Date) {
		t.Fatalf("date = %s, want %s", got.Date, task.Date)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	_, err := store.GetTask(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAcceptTaskConditionalUpdate(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := store.CreateTask(context.Background(), postedTask("task-1", "u1", now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	accepted, err := store.AcceptTask(context.Background(), "task-1", "u2", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.StatusAccepted || accepted.AssignedTo != "u2" {
		t.Fatalf("unexpected accept result: %+v", accepted)
	}

	// Precondition no longer holds: second accept observes a conflict.
	_, err = store.AcceptTask(context.Background(), "task-1", "u3", now.Add(2*time.Minute))
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	_, err = store.AcceptTask(context.Background(), "missing", "u3", now)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing task, got %v", err)
	}
}

func TestAcceptTaskRace(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	now := time.Now().UTC()
	if err := store.CreateTask(context.Background(), postedTask("task-1", "u1", now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	const contenders = 8
	results := make(chan error, contenders)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < contenders; i++ {
		actor := fmt.Sprintf("u%d", i+2)
		go func() {
			start.Wait()
			_, err := store.AcceptTask(context.Background(), "task-1", actor, time.Now().UTC())
			results <- err
		}()
	}
	start.Done()

	winners := 0
	for i := 0; i < contenders; i++ {
		err := <-results
		switch {
		case err == nil:
			winners++
		case errors.Is(err, domain.ErrConflict):
		default:
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}

	final, err := store.GetTask(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != domain.StatusAccepted || final.AssignedTo == "" {
		t.Fatalf("final task violates invariant: %+v", final)
	}
}

func TestUpdateTaskStatusConditionalUpdate(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := store.CreateTask(context.Background(), postedTask("task-1", "u1", now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.AcceptTask(context.Background(), "task-1", "u2", now); err != nil {
		t.Fatalf("accept: %v", err)
	}

	started, err := store.UpdateTaskStatus(context.Background(), "task-1", domain.StatusAccepted, domain.StatusInProgress, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != domain.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", started.Status)
	}

	// Stale precondition: the task already left accepted.
	_, err = store.UpdateTaskStatus(context.Background(), "task-1", domain.StatusAccepted, domain.StatusCancelled, now.Add(time.Minute))
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// Cancelling from in_progress keeps the assignee.
	cancelled, err := store.UpdateTaskStatus(context.Background(), "task-1", domain.StatusInProgress, domain.StatusCancelled, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.AssignedTo != "u2" {
		t.Fatalf("cancel cleared assignee: %+v", cancelled)
	}
}

func TestListTasksFilters(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, creator := range []string{"u1", "u1", "u2"} {
		task := postedTask(fmt.Sprintf("task-%d", i+1), creator, base.Add(time.Duration(i)*time.Minute))
		if err := store.CreateTask(context.Background(), task); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := store.AcceptTask(context.Background(), "task-3", "u1", base.Add(time.Hour)); err != nil {
		t.Fatalf("accept: %v", err)
	}

	posted, err := store.ListTasks(context.Background(), domain.Filter{Status: domain.StatusPosted})
	if err != nil {
		t.Fatalf("list posted: %v", err)
	}
	if len(posted) != 2 {
		t.Fatalf("posted tasks = %d, want 2", len(posted))
	}

	mine, err := store.ListTasks(context.Background(), domain.Filter{UserID: "u1"})
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(mine) != 3 {
		t.Fatalf("tasks involving u1 = %d, want 3", len(mine))
	}

	// Newest first.
	all, err := store.ListTasks(context.Background(), domain.Filter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatalf("list not newest-first at index %d", i)
		}
	}
}
