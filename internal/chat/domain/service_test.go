package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/gigboard/gigboard/internal/platform/errors"
	taskdomain "github.com/gigboard/gigboard/internal/task/domain"
)

// fakeStore enforces the (task, participant-key) uniqueness constraint and
// assigns monotonic message sequence/timestamps, mirroring the SQLite store.
type fakeStore struct {
	mu       sync.Mutex
	chats    map[string]Chat
	byKey    map[string]string // taskID|key → chatID
	messages map[string][]Message
	now      time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chats:    make(map[string]Chat),
		byKey:    make(map[string]string),
		messages: make(map[string][]Message),
		now:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) CreateChat(_ context.Context, chat Chat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := chat.TaskID + "|" + ParticipantKey(chat.Participants)
	if _, ok := f.byKey[key]; ok {
		return ErrConflict
	}
	f.byKey[key] = chat.ID
	f.chats[chat.ID] = chat
	return nil
}

func (f *fakeStore) FindChatByTaskAndUser(_ context.Context, taskID string, userID string) (Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, chat := range f.chats {
		if chat.TaskID == taskID && chat.HasParticipant(userID) {
			return chat, nil
		}
	}
	return Chat{}, ErrNotFound
}

func (f *fakeStore) FindChatByTaskAndKey(_ context.Context, taskID string, key string) (Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chatID, ok := f.byKey[taskID+"|"+key]
	if !ok {
		return Chat{}, ErrNotFound
	}
	return f.chats[chatID], nil
}

func (f *fakeStore) GetChat(_ context.Context, chatID string) (Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.chats[chatID]
	if !ok {
		return Chat{}, ErrNotFound
	}
	return chat, nil
}

func (f *fakeStore) AppendMessage(_ context.Context, message Message) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing := f.messages[message.ChatID]
	message.Seq = int64(len(existing)) + 1
	f.now = f.now.Add(time.Millisecond)
	message.CreatedAt = f.now
	f.messages[message.ChatID] = append(existing, message)
	return message, nil
}

func (f *fakeStore) ListMessages(_ context.Context, chatID string) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages[chatID]...), nil
}

func (f *fakeStore) DeleteChat(_ context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.chats[chatID]
	if !ok {
		return ErrNotFound
	}
	delete(f.chats, chatID)
	delete(f.byKey, chat.TaskID+"|"+ParticipantKey(chat.Participants))
	delete(f.messages, chatID)
	return nil
}

type fakeTasks struct {
	tasks map[string]taskdomain.Task
}

func (f *fakeTasks) Get(_ context.Context, taskID string) (taskdomain.Task, error) {
	task, ok := f.tasks[taskID]
	if !ok {
		return taskdomain.Task{}, apperrors.New(apperrors.CodeTaskNotFound, "task not found")
	}
	return task, nil
}

func testTasks() *fakeTasks {
	return &fakeTasks{tasks: map[string]taskdomain.Task{
		"task-1": {ID: "task-1", CreatedBy: "u1", AssignedTo: "u2", Status: taskdomain.StatusAccepted},
		"task-2": {ID: "task-2", CreatedBy: "u1", Status: taskdomain.StatusPosted},
	}}
}

func countingIDs(prefix string) func() (string, error) {
	var mu sync.Mutex
	index := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		index++
		return fmt.Sprintf("%s-%d", prefix, index), nil
	}
}

func assertCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperrors.Error with code %s, got %T: %v", code, err, err)
	}
	if appErr.Code != code {
		t.Fatalf("error code = %s, want %s", appErr.Code, code)
	}
}

func TestResolveCreatesCanonicalChat(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, testTasks(), nil, countingIDs("chat"))

	chat, err := svc.Resolve(context.Background(), "task-1", "u2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ParticipantKey(chat.Participants) != "u1|u2" {
		t.Fatalf("participants = %v", chat.Participants)
	}
	if !chat.IsActive {
		t.Fatal("new chat must be active")
	}

	// Both participants resolve to the same chat.
	again, err := svc.Resolve(context.Background(), "task-1", "u1")
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if again.ID != chat.ID {
		t.Fatalf("resolved %q, want existing %q", again.ID, chat.ID)
	}
}

func TestResolveUnknownTask(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), testTasks(), nil, countingIDs("chat"))
	_, err := svc.Resolve(context.Background(), "missing", "u1")
	assertCode(t, err, apperrors.CodeTaskNotFound)
}

func TestResolveThirdPartyCollapsesToCreatorAndRequester(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, testTasks(), nil, countingIDs("chat"))

	// task-1 already has creator u1 and assignee u2; u3 asking for the chat
	// drops the assignee, keeping {creator, requester}.
	chat, err := svc.Resolve(context.Background(), "task-1", "u3")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ParticipantKey(chat.Participants) != "u1|u3" {
		t.Fatalf("participants = %v, want creator+requester", chat.Participants)
	}
}

func TestResolveCreatorOnlyChat(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, testTasks(), nil, countingIDs("chat"))

	// Unassigned task, requester is the creator: a single-participant chat.
	chat, err := svc.Resolve(context.Background(), "task-2", "u1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(chat.Participants) != 1 || chat.Participants[0] != "u1" {
		t.Fatalf("participants = %v", chat.Participants)
	}
}

func TestResolveConcurrentFirstAccess(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, testTasks(), nil, countingIDs("chat"))

	const callers = 12
	ids := make(chan string, callers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < callers; i++ {
		go func() {
			start.Wait()
			chat, err := svc.Resolve(context.Background(), "task-1", "u2")
			if err != nil {
				ids <- "error: " + err.Error()
				return
			}
			ids <- chat.ID
		}()
	}
	start.Done()

	first := <-ids
	if strings.HasPrefix(first, "error") {
		t.Fatalf("resolve failed: %s", first)
	}
	for i := 1; i < callers; i++ {
		got := <-ids
		if got != first {
			t.Fatalf("resolve returned %q and %q, want one canonical chat", first, got)
		}
	}
	if len(store.chats) != 1 {
		t.Fatalf("persisted chats = %d, want 1", len(store.chats))
	}
}

func TestAppendValidation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, testTasks(), nil, countingIDs("chat"))
	chat, err := svc.Resolve(context.Background(), "task-1", "u2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	_, err = svc.Append(context.Background(), chat.ID, "u9", "hello")
	assertCode(t, err, apperrors.CodeChatSenderNotMember)

	_, err = svc.Append(context.Background(), chat.ID, "u2", "   ")
	assertCode(t, err, apperrors.CodeMessageEmpty)

	_, err = svc.Append(context.Background(), chat.ID, "u2", strings.Repeat("x", 1001))
	assertCode(t, err, apperrors.CodeMessageTooLong)

	_, err = svc.Append(context.Background(), "missing", "u2", "hello")
	assertCode(t, err, apperrors.CodeChatNotFound)

	// Rejections persist nothing.
	messages, err := svc.Messages(context.Background(), chat.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("rejected appends persisted %d messages", len(messages))
	}
}

func TestAppendTrimsAndOrders(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, testTasks(), nil, countingIDs("chat"))
	chat, err := svc.Resolve(context.Background(), "task-1", "u2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := svc.Append(context.Background(), chat.ID, "u2", fmt.Sprintf("  message %d  ", i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	messages, err := svc.Messages(context.Background(), chat.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(messages) != 5 {
		t.Fatalf("messages = %d, want 5", len(messages))
	}
	for i, msg := range messages {
		if msg.Content != fmt.Sprintf("message %d", i) {
			t.Fatalf("message %d content = %q", i, msg.Content)
		}
		if i > 0 && messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatalf("createdAt not monotonic at index %d", i)
		}
	}
}
