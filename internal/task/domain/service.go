package domain

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	apperrors "github.com/gigboard/gigboard/internal/platform/errors"
	"github.com/gigboard/gigboard/internal/platform/id"
	"github.com/gigboard/gigboard/internal/platform/timeouts"
)

var (
	// ErrNotFound indicates a task record was not found.
	ErrNotFound = errors.New("task not found")
	// ErrConflict indicates a conditional write lost to a concurrent update.
	ErrConflict = errors.New("task conflict")
)

// Store is the persistence boundary for tasks.
//
// AcceptTask and UpdateTaskStatus must be atomic conditional updates: the
// write succeeds only while the stated precondition still holds, because
// multiple server instances may race on the same row and in-process locks
// cannot arbitrate that.
type Store interface {
	CreateTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, taskID string) (Task, error)
	ListTasks(ctx context.Context, filter Filter) ([]Task, error)
	// AcceptTask assigns actorID and moves posted → accepted, conditional on
	// status still being posted with no assignee. Returns ErrConflict when
	// the precondition no longer holds.
	AcceptTask(ctx context.Context, taskID string, actorID string, now time.Time) (Task, error)
	// UpdateTaskStatus moves from → to, conditional on status still being
	// from. Returns ErrConflict when the precondition no longer holds.
	UpdateTaskStatus(ctx context.Context, taskID string, from Status, to Status, now time.Time) (Task, error)
}

// Filter narrows task listings.
type Filter struct {
	Status Status // zero value matches all statuses
	UserID string // when set, only tasks the user created or was assigned
}

// Geocoder resolves a street address to coordinates, best-effort.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat float64, lng float64, ok bool, err error)
}

// TransitionEvent describes one committed status change.
type TransitionEvent struct {
	Task  Task
	From  Status
	To    Status
	Actor string
}

// TransitionSink consumes committed transitions for best-effort side
// effects: realtime broadcast, durable notifications, email/SMS.
// Implementations log their own failures; nothing propagates back.
type TransitionSink interface {
	TaskTransitioned(ctx context.Context, event TransitionEvent)
}

// Service enforces the task state machine.
type Service struct {
	store    Store
	geocoder Geocoder
	sink     TransitionSink
	clock    func() time.Time
	newID    func() (string, error)
}

// NewService constructs the task lifecycle use-cases. geocoder and sink may
// be nil; the service degrades to no side effects.
func NewService(store Store, geocoder Geocoder, sink TransitionSink, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store:    store,
		geocoder: geocoder,
		sink:     sink,
		clock:    clock,
		newID:    newID,
	}
}

// CreateTaskInput is the normalized task creation request.
type CreateTaskInput struct {
	Title       string
	Description string
	MinBudget   float64
	MaxBudget   float64
	Date        time.Time
	Category    string
	Priority    string
	Location    Location
	CreatedBy   string
}

// Create validates and persists a new posted task.
func (s *Service) Create(ctx context.Context, input CreateTaskInput) (Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Task{}, apperrors.New(apperrors.CodeTaskTitleRequired, "title is required")
	}
	if input.MinBudget < 0 || input.MaxBudget < 0 || input.MinBudget > input.MaxBudget {
		return Task{}, apperrors.New(apperrors.CodeTaskBudgetInvalid, "budget bounds must satisfy 0 <= min <= max")
	}
	createdBy := strings.TrimSpace(input.CreatedBy)
	if createdBy == "" {
		return Task{}, apperrors.New(apperrors.CodeRequestMalformed, "creator is required")
	}
	priority := strings.TrimSpace(input.Priority)
	if priority == "" {
		priority = "normal"
	}

	location := input.Location
	location.Address = strings.TrimSpace(location.Address)
	if location.Address != "" && location.Lat == nil && s.geocoder != nil {
		geoCtx, cancel := context.WithTimeout(ctx, timeouts.SideChannel)
		lat, lng, ok, err := s.geocoder.Geocode(geoCtx, location.Address)
		cancel()
		switch {
		case err != nil:
			log.Printf("task: geocode %q failed: %v", location.Address, err)
		case ok:
			location.Lat = &lat
			location.Lng = &lng
		}
	}

	taskID, err := s.newID()
	if err != nil {
		return Task{}, apperrors.Wrap(apperrors.CodeStorageFailure, "generate task id", err)
	}
	now := s.clock().UTC()
	task := Task{
		ID:          taskID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		MinBudget:   input.MinBudget,
		MaxBudget:   input.MaxBudget,
		Date:        input.Date,
		Category:    strings.TrimSpace(input.Category),
		Priority:    priority,
		Status:      StatusPosted,
		CreatedBy:   createdBy,
		Location:    location,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return Task{}, apperrors.Wrap(apperrors.CodeStorageFailure, "create task", err)
	}
	return task, nil
}

// Get loads one task.
func (s *Service) Get(ctx context.Context, taskID string) (Task, error) {
	task, err := s.store.GetTask(ctx, strings.TrimSpace(taskID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Task{}, apperrors.New(apperrors.CodeTaskNotFound, "task not found")
		}
		return Task{}, apperrors.Wrap(apperrors.CodeStorageFailure, "get task", err)
	}
	return task, nil
}

// List returns tasks matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Task, error) {
	tasks, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "list tasks", err)
	}
	return tasks, nil
}

// dispatch hands a committed transition to the side-effect sink without
// delaying the originating request. Once scheduled it cannot be recalled.
func (s *Service) dispatch(event TransitionEvent) {
	if s.sink == nil {
		return
	}
	go s.sink.TaskTransitioned(context.Background(), event)
}
