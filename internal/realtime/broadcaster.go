package realtime

import (
	"encoding/json"
	"log"
	"time"

	chatdomain "github.com/gigboard/gigboard/internal/chat/domain"
	taskdomain "github.com/gigboard/gigboard/internal/task/domain"
)

// Broadcaster fans events out to the live connections of interested users.
// Write failures are logged and swallowed; a slow or dead socket must not
// block or fail the producing operation.
type Broadcaster struct {
	registry Registry
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

type messageView struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
	Seq      int64  `json:"seq"`
	SentAt   string `json:"sent_at"`
}

type receiveMessagePayload struct {
	ChatID  string      `json:"chat_id"`
	TaskID  string      `json:"task_id"`
	Message messageView `json:"message"`
}

type taskView struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	CreatedBy  string `json:"created_by"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

type taskUpdatedPayload struct {
	Task           taskView `json:"task"`
	PreviousStatus string   `json:"previous_status"`
	ActorID        string   `json:"actor_id"`
}

// MessageCreated pushes a new chat message to every participant except the
// sender.
func (b *Broadcaster) MessageCreated(chat chatdomain.Chat, message chatdomain.Message) {
	frame := Frame{
		Type: "receive_message",
		Payload: mustJSON(receiveMessagePayload{
			ChatID: chat.ID,
			TaskID: chat.TaskID,
			Message: messageView{
				ID:       message.ID,
				SenderID: message.SenderID,
				Content:  message.Content,
				Seq:      message.Seq,
				SentAt:   message.CreatedAt.UTC().Format(time.RFC3339),
			},
		}),
	}
	for _, participant := range chat.Participants {
		if participant == message.SenderID {
			continue
		}
		b.send(participant, frame)
	}
}

// TaskUpdated pushes a status change to the task's creator and assignee.
func (b *Broadcaster) TaskUpdated(event taskdomain.TransitionEvent) {
	frame := Frame{
		Type: "task_updated",
		Payload: mustJSON(taskUpdatedPayload{
			Task: taskView{
				ID:         event.Task.ID,
				Title:      event.Task.Title,
				Status:     string(event.To),
				CreatedBy:  event.Task.CreatedBy,
				AssignedTo: event.Task.AssignedTo,
			},
			PreviousStatus: string(event.From),
			ActorID:        event.Actor,
		}),
	}
	seen := make(map[string]struct{}, 2)
	for _, recipient := range []string{event.Task.CreatedBy, event.Task.AssignedTo} {
		if recipient == "" {
			continue
		}
		if _, ok := seen[recipient]; ok {
			continue
		}
		seen[recipient] = struct{}{}
		b.send(recipient, frame)
	}
}

func (b *Broadcaster) send(userID string, frame Frame) {
	for _, peer := range b.registry.Peers(userID) {
		if err := peer.WriteFrame(frame); err != nil {
			log.Printf("realtime: dropped %s frame for user=%q: %v", frame.Type, userID, err)
		}
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("realtime: failed to marshal frame payload: %v", err)
		return nil
	}
	return b
}
