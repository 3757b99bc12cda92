package domain

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/gigboard/gigboard/internal/platform/errors"
	"github.com/gigboard/gigboard/internal/platform/id"
	taskdomain "github.com/gigboard/gigboard/internal/task/domain"
)

// maxMessageRunes caps message content length after trimming.
const maxMessageRunes = 1000

var (
	// ErrNotFound indicates a chat or message record was not found.
	ErrNotFound = errors.New("chat not found")
	// ErrConflict indicates a create hit the (task, participant-key)
	// uniqueness constraint.
	ErrConflict = errors.New("chat conflict")
)

// Store is the persistence boundary for chats and messages.
//
// CreateChat must fail with ErrConflict when a chat with the same task and
// participant key already exists; that constraint is what keeps the chat
// canonical under concurrent first access. AppendMessage assigns Seq and a
// CreatedAt that never decreases within the chat. Deleting a chat removes
// its messages in the same logical operation.
type Store interface {
	CreateChat(ctx context.Context, chat Chat) error
	FindChatByTaskAndUser(ctx context.Context, taskID string, userID string) (Chat, error)
	FindChatByTaskAndKey(ctx context.Context, taskID string, key string) (Chat, error)
	GetChat(ctx context.Context, chatID string) (Chat, error)
	AppendMessage(ctx context.Context, message Message) (Message, error)
	ListMessages(ctx context.Context, chatID string) ([]Message, error)
	DeleteChat(ctx context.Context, chatID string) error
}

// TaskSource supplies the task context a chat is scoped to.
type TaskSource interface {
	Get(ctx context.Context, taskID string) (taskdomain.Task, error)
}

// Service resolves canonical chats and appends messages.
type Service struct {
	store Store
	tasks TaskSource
	clock func() time.Time
	newID func() (string, error)
}

// NewService constructs chat use-cases.
func NewService(store Store, tasks TaskSource, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store: store,
		tasks: tasks,
		clock: clock,
		newID: newID,
	}
}

// Resolve finds or creates the canonical chat for (task, requesting user).
// Concurrent first access never produces duplicates: creation races are
// settled by the storage uniqueness constraint and the loser re-fetches the
// winner instead of erroring.
func (s *Service) Resolve(ctx context.Context, taskID string, userID string) (Chat, error) {
	taskID = strings.TrimSpace(taskID)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Chat{}, apperrors.New(apperrors.CodeRequestMalformed, "user is required")
	}

	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return Chat{}, err
	}

	participants := chatParticipants(task, userID)
	if len(participants) == 0 {
		return Chat{}, apperrors.New(apperrors.CodeChatParticipantsEmpty, "chat requires at least one participant")
	}

	existing, err := s.store.FindChatByTaskAndUser(ctx, taskID, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Chat{}, apperrors.Wrap(apperrors.CodeStorageFailure, "find chat", err)
	}

	chatID, err := s.newID()
	if err != nil {
		return Chat{}, apperrors.Wrap(apperrors.CodeStorageFailure, "generate chat id", err)
	}
	now := s.clock().UTC()
	chat := Chat{
		ID:           chatID,
		TaskID:       taskID,
		Participants: participants,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		if errors.Is(err, ErrConflict) {
			winner, findErr := s.store.FindChatByTaskAndKey(ctx, taskID, ParticipantKey(participants))
			if findErr != nil {
				return Chat{}, apperrors.Wrap(apperrors.CodeStorageFailure, "fetch winning chat", findErr)
			}
			return winner, nil
		}
		return Chat{}, apperrors.Wrap(apperrors.CodeStorageFailure, "create chat", err)
	}
	return chat, nil
}

// chatParticipants builds the deduplicated participant set for a task chat.
// When the requester is a third party next to an assigned task, the set
// collapses to {creator, requester}: the assignee is dropped. That fallback
// is a documented product decision, not an accident.
func chatParticipants(task taskdomain.Task, userID string) []string {
	seen := make(map[string]struct{}, 3)
	var participants []string
	add := func(value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if _, ok := seen[value]; ok {
			return
		}
		seen[value] = struct{}{}
		participants = append(participants, value)
	}
	add(task.CreatedBy)
	add(task.AssignedTo)
	add(userID)

	if len(participants) > 2 {
		participants = nil
		seen = map[string]struct{}{}
		add(task.CreatedBy)
		add(userID)
	}
	return participants
}

// Append validates and persists one message on an existing chat.
func (s *Service) Append(ctx context.Context, chatID string, senderID string, content string) (Message, error) {
	chat, err := s.store.GetChat(ctx, strings.TrimSpace(chatID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Message{}, apperrors.New(apperrors.CodeChatNotFound, "chat not found")
		}
		return Message{}, apperrors.Wrap(apperrors.CodeStorageFailure, "get chat", err)
	}

	senderID = strings.TrimSpace(senderID)
	if !chat.HasParticipant(senderID) {
		return Message{}, apperrors.New(apperrors.CodeChatSenderNotMember, "sender is not a chat participant")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, apperrors.New(apperrors.CodeMessageEmpty, "message content is required")
	}
	if utf8.RuneCountInString(content) > maxMessageRunes {
		return Message{}, apperrors.New(apperrors.CodeMessageTooLong, "message content must be at most 1000 characters")
	}

	messageID, err := s.newID()
	if err != nil {
		return Message{}, apperrors.Wrap(apperrors.CodeStorageFailure, "generate message id", err)
	}
	stored, err := s.store.AppendMessage(ctx, Message{
		ID:       messageID,
		ChatID:   chat.ID,
		SenderID: senderID,
		Content:  content,
	})
	if err != nil {
		return Message{}, apperrors.Wrap(apperrors.CodeStorageFailure, "append message", err)
	}
	return stored, nil
}

// Messages returns every chat message ascending by creation time.
func (s *Service) Messages(ctx context.Context, chatID string) ([]Message, error) {
	messages, err := s.store.ListMessages(ctx, strings.TrimSpace(chatID))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, "list messages", err)
	}
	return messages, nil
}
