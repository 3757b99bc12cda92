package api

import (
	"net/http"
	"time"

	notificationdomain "github.com/gigboard/gigboard/internal/notification/domain"
)

type notificationView struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
	ReadAt    string `json:"read_at,omitempty"`
}

func toNotificationView(notification notificationdomain.Notification) notificationView {
	view := notificationView{
		ID:        notification.ID,
		Message:   notification.Message,
		Read:      notification.Read(),
		CreatedAt: notification.CreatedAt.UTC().Format(time.RFC3339),
	}
	if notification.ReadAt != nil {
		view.ReadAt = notification.ReadAt.UTC().Format(time.RFC3339)
	}
	return view
}

type notificationListResponse struct {
	Success       bool               `json:"success"`
	Notifications []notificationView `json:"notifications"`
}

type notificationResponse struct {
	Success      bool             `json:"success"`
	Notification notificationView `json:"notification"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.actor(w, r)
	if !ok {
		return
	}

	notifications, err := s.notifications.List(r.Context(), actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]notificationView, 0, len(notifications))
	for _, notification := range notifications {
		views = append(views, toNotificationView(notification))
	}
	writeJSON(w, http.StatusOK, notificationListResponse{Success: true, Notifications: views})
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.actor(w, r)
	if !ok {
		return
	}

	notification, err := s.notifications.MarkRead(r.Context(), actorID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notificationResponse{Success: true, Notification: toNotificationView(notification)})
}
