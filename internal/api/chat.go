package api

import (
	"encoding/json"
	"net/http"
	"time"

	chatdomain "github.com/gigboard/gigboard/internal/chat/domain"
	apperrors "github.com/gigboard/gigboard/internal/platform/errors"
)

type chatMessageView struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
	Seq      int64  `json:"seq"`
	SentAt   string `json:"sent_at"`
}

func toChatMessageView(message chatdomain.Message) chatMessageView {
	return chatMessageView{
		ID:       message.ID,
		SenderID: message.SenderID,
		Content:  message.Content,
		Seq:      message.Seq,
		SentAt:   message.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type chatMessagesResponse struct {
	Success      bool              `json:"success"`
	ChatID       string            `json:"chat_id"`
	Participants []string          `json:"participants"`
	Messages     []chatMessageView `json:"messages"`
}

type sendMessageResponse struct {
	Success bool            `json:"success"`
	ChatID  string          `json:"chat_id"`
	Message chatMessageView `json:"message"`
}

// handleListChatMessages resolves the caller's canonical chat for the task,
// creating it on first access, and returns its full history.
func (s *Server) handleListChatMessages(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.actor(w, r)
	if !ok {
		return
	}

	chat, err := s.chats.Resolve(r.Context(), r.PathValue("taskID"), actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	messages, err := s.chats.Messages(r.Context(), chat.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]chatMessageView, 0, len(messages))
	for _, message := range messages {
		views = append(views, toChatMessageView(message))
	}
	writeJSON(w, http.StatusOK, chatMessagesResponse{
		Success:      true,
		ChatID:       chat.ID,
		Participants: chat.Participants,
		Messages:     views,
	})
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSendChatMessage(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeRequestMalformed, "invalid request body"))
		return
	}

	chat, err := s.chats.Resolve(r.Context(), r.PathValue("taskID"), actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	message, err := s.chats.Append(r.Context(), chat.ID, actorID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}

	// The row is durable; delivery to live peers happens off the request
	// path and may silently miss disconnected users.
	if s.broadcaster != nil {
		go s.broadcaster.MessageCreated(chat, message)
	}

	writeJSON(w, http.StatusCreated, sendMessageResponse{
		Success: true,
		ChatID:  chat.ID,
		Message: toChatMessageView(message),
	})
}
