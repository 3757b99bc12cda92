package domain

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/gigboard/gigboard/internal/platform/errors"
)

// Transition is the single enforcement path for every status change. The
// direct status endpoint, the accept endpoint, and the feedback submission
// flow all land here.
//
// Authorization and precondition failures are detected before any write, so
// a rejection has zero side effects. The write itself is a conditional
// update, so a stale snapshot read here can only turn into a conflict, never
// a lost update.
func (s *Service) Transition(ctx context.Context, taskID string, target Status, actorID string) (Task, error) {
	taskID = strings.TrimSpace(taskID)
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return Task{}, apperrors.New(apperrors.CodeRequestMalformed, "actor is required")
	}

	task, err := s.Get(ctx, taskID)
	if err != nil {
		return Task{}, err
	}

	switch target {
	case StatusAccepted:
		return s.accept(ctx, task, actorID)
	case StatusInProgress:
		if actorID != task.AssignedTo || task.AssignedTo == "" {
			return Task{}, apperrors.New(apperrors.CodeTaskActorNotAllowed, "only the assigned user can start this task")
		}
		if task.Status != StatusAccepted {
			return Task{}, apperrors.New(apperrors.CodeTaskInvalidTransition, "task must be accepted before it can start")
		}
	case StatusCompleted:
		if actorID != task.AssignedTo || task.AssignedTo == "" {
			return Task{}, apperrors.New(apperrors.CodeTaskActorNotAllowed, "only the assigned user can complete this task")
		}
		if task.Status != StatusInProgress {
			return Task{}, apperrors.New(apperrors.CodeTaskInvalidTransition, "task must be in progress before completion")
		}
	case StatusCancelled:
		if !task.IsParticipant(actorID) {
			return Task{}, apperrors.New(apperrors.CodeTaskActorNotAllowed, "only the requester or the assigned user can cancel")
		}
		if task.Status.IsTerminal() {
			return Task{}, apperrors.New(apperrors.CodeTaskInvalidTransition, "task already reached a terminal status")
		}
	default:
		return Task{}, apperrors.New(apperrors.CodeTaskStatusInvalid, "unsupported target status")
	}

	from := task.Status
	updated, err := s.store.UpdateTaskStatus(ctx, task.ID, from, target, s.clock().UTC())
	if err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			return Task{}, apperrors.New(apperrors.CodeTaskUnavailable, "task changed concurrently, re-fetch and retry")
		case errors.Is(err, ErrNotFound):
			return Task{}, apperrors.New(apperrors.CodeTaskNotFound, "task not found")
		default:
			return Task{}, apperrors.Wrap(apperrors.CodeStorageFailure, "update task status", err)
		}
	}

	s.dispatch(TransitionEvent{Task: updated, From: from, To: target, Actor: actorID})
	return updated, nil
}

// Accept moves a posted task to accepted with the actor as assignee.
func (s *Service) Accept(ctx context.Context, taskID string, actorID string) (Task, error) {
	return s.Transition(ctx, taskID, StatusAccepted, actorID)
}

// accept resolves the posted → accepted race. The storage layer performs one
// conditional update keyed on "still posted and unassigned"; under N
// simultaneous attempts exactly one succeeds and the rest observe a conflict.
func (s *Service) accept(ctx context.Context, task Task, actorID string) (Task, error) {
	if actorID == task.CreatedBy {
		return Task{}, apperrors.New(apperrors.CodeTaskSelfAccept, "cannot accept your own task")
	}
	if task.Status != StatusPosted || task.AssignedTo != "" {
		return Task{}, apperrors.New(apperrors.CodeTaskUnavailable, "task is no longer available")
	}

	updated, err := s.store.AcceptTask(ctx, task.ID, actorID, s.clock().UTC())
	if err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			return Task{}, apperrors.New(apperrors.CodeTaskUnavailable, "task is no longer available")
		case errors.Is(err, ErrNotFound):
			return Task{}, apperrors.New(apperrors.CodeTaskNotFound, "task not found")
		default:
			return Task{}, apperrors.Wrap(apperrors.CodeStorageFailure, "accept task", err)
		}
	}

	s.dispatch(TransitionEvent{Task: updated, From: StatusPosted, To: StatusAccepted, Actor: actorID})
	return updated, nil
}
