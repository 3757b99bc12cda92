// Package api exposes the HTTP surface: task lifecycle, per-task chat,
// notification inbox, the websocket endpoint, and health.
package api

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"

	chatdomain "github.com/gigboard/gigboard/internal/chat/domain"
	notificationdomain "github.com/gigboard/gigboard/internal/notification/domain"
	taskdomain "github.com/gigboard/gigboard/internal/task/domain"
)

// ActorResolver turns an Authorization header into the acting user id.
type ActorResolver interface {
	ActorFromHeader(ctx context.Context, header string) (string, error)
}

// MessageBroadcaster pushes freshly appended chat messages to live
// connections.
type MessageBroadcaster interface {
	MessageCreated(chat chatdomain.Chat, message chatdomain.Message)
}

// Server holds the handler dependencies.
type Server struct {
	tasks         *taskdomain.Service
	chats         *chatdomain.Service
	notifications *notificationdomain.Service
	actors        ActorResolver
	broadcaster   MessageBroadcaster
	ws            http.Handler
}

// NewServer wires the HTTP surface. broadcaster and ws may be nil, which
// disables realtime delivery but keeps the REST surface intact.
func NewServer(
	tasks *taskdomain.Service,
	chats *chatdomain.Service,
	notifications *notificationdomain.Service,
	actors ActorResolver,
	broadcaster MessageBroadcaster,
	ws http.Handler,
) *Server {
	return &Server{
		tasks:         tasks,
		chats:         chats,
		notifications: notifications,
		actors:        actors,
		broadcaster:   broadcaster,
		ws:            ws,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /tasks", s.handleCreateTask)
	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PUT /tasks/{id}/accept", s.handleAcceptTask)
	mux.HandleFunc("PUT /tasks/{id}/status", s.handleUpdateTaskStatus)
	mux.HandleFunc("POST /tasks/{id}/feedback", s.handleTaskFeedback)

	mux.HandleFunc("GET /chat/{taskID}/messages", s.handleListChatMessages)
	mux.HandleFunc("POST /chat/{taskID}/messages", s.handleSendChatMessage)

	mux.HandleFunc("GET /notifications", s.handleListNotifications)
	mux.HandleFunc("PUT /notifications/{id}/read", s.handleMarkNotificationRead)

	if s.ws != nil {
		mux.Handle("/ws", s.ws)
	}

	return traceMiddleware(mux)
}

// actor authenticates the request, writing the error response on failure.
func (s *Server) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID, err := s.actors.ActorFromHeader(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, err)
		return "", false
	}
	return actorID, true
}

func traceMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer("gigboard/api")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
