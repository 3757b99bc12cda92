package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"
)

// maxDecodeErrorsPerConn bounds how many malformed frames a connection may
// send before the server hangs up.
const maxDecodeErrorsPerConn = 3

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

type wsUserIDContextKey struct{}

type joinedPayload struct {
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id"`
	ServerTime string `json:"server_time"`
}

type wsErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewHandler serves the websocket endpoint. Identity is established at
// upgrade time, but the connection only starts receiving events after the
// client sends an explicit join frame; it stays registered until disconnect.
func NewHandler(registry Registry, authenticator Authenticator) http.Handler {
	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleConn(conn, registry)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		token := tokenFromRequest(r)
		if token == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		userID, err := authenticator.Authenticate(r.Context(), token)
		if err != nil || strings.TrimSpace(userID) == "" {
			if err != nil {
				log.Printf("realtime: websocket unauthorized: remote=%s err=%v", r.RemoteAddr, err)
			}
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), wsUserIDContextKey{}, strings.TrimSpace(userID))
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tokenFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		if token := strings.TrimSpace(after); token != "" {
			return token
		}
	}
	// Browsers cannot set headers on websocket upgrades.
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func handleConn(conn *websocket.Conn, registry Registry) {
	defer func() {
		_ = conn.Close()
	}()

	userID := ""
	if request := conn.Request(); request != nil {
		if resolved, ok := request.Context().Value(wsUserIDContextKey{}).(string); ok {
			userID = resolved
		}
	}
	if userID == "" {
		return
	}

	peer := NewPeer(json.NewEncoder(conn))
	sessionID := ""
	defer func() {
		if sessionID != "" {
			registry.Unregister(userID, sessionID)
		}
	}()

	decoder := json.NewDecoder(conn)
	decodeErrors := 0
	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeError(peer, "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		switch frame.Type {
		case "join":
			if sessionID == "" {
				sessionID = registry.Register(userID, peer)
			}
			_ = peer.WriteFrame(Frame{
				Type:      "joined",
				RequestID: frame.RequestID,
				Payload: mustJSON(joinedPayload{
					SessionID:  sessionID,
					UserID:     userID,
					ServerTime: time.Now().UTC().Format(time.RFC3339),
				}),
			})
		case "ping":
			_ = peer.WriteFrame(Frame{Type: "pong", RequestID: frame.RequestID})
		default:
			_ = writeError(peer, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func writeError(peer *Peer, requestID string, code string, message string) error {
	return peer.WriteFrame(Frame{
		Type:      "error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorPayload{
			Code:    code,
			Message: message,
		}),
	})
}
