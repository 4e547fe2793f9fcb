package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/chat"
)

const (
	// StatusUnauthorized is the close code sent when the token is rejected.
	StatusUnauthorized websocket.StatusCode = 4001
	// StatusNotFound is sent when the chat does not exist or belongs to
	// another user.
	StatusNotFound websocket.StatusCode = 4004
)

// roadmapProgress streams curation progress for a session. The token comes
// from the query string since browsers cannot set headers on a websocket
// handshake.
func (s *Server) roadmapProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	claims, authErr := s.deps.Tokens.Validate(r.URL.Query().Get("token"))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Error("failed to accept websocket", "session_id", sessionID, "error", err)
		return
	}
	defer ws.CloseNow()

	if authErr != nil {
		s.logger.Warn("websocket unauthorized", "session_id", sessionID)
		ws.Close(StatusUnauthorized, "Unauthorized")
		return
	}

	logger := s.logger.With("session_id", sessionID, "user_id", claims.UserID)

	if code, reason := s.checkChatOwner(r.Context(), claims.UserID, sessionID); code != 0 {
		if code == websocket.StatusInternalError {
			logger.Error("progress ownership check failed", "reason", reason)
			reason = "Internal error"
		} else {
			logger.Warn("progress client rejected", "reason", reason)
		}
		ws.Close(code, reason)
		return
	}
	logger.Info("progress client connected")

	// Nothing is read from the client; CloseRead handles control frames and
	// cancels ctx when the peer goes away.
	ctx := ws.CloseRead(r.Context())

	err = s.deps.Progress.Stream(ctx, sessionID, func(msg json.RawMessage) error {
		return ws.Write(ctx, websocket.MessageText, msg)
	})
	switch {
	case err == nil:
		ws.Close(websocket.StatusNormalClosure, "completed")
	case errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 || ctx.Err() != nil:
		logger.Info("progress client disconnected")
	default:
		logger.Error("progress stream failed", "error", err)
		ws.Close(websocket.StatusInternalError, "Internal error")
	}
}

// checkChatOwner returns a close code and reason when userID may not follow
// the session, and 0 when it may.
func (s *Server) checkChatOwner(ctx context.Context, userID, sessionID string) (websocket.StatusCode, string) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return StatusUnauthorized, "Unauthorized"
	}
	sid, err := uuid.Parse(sessionID)
	if err != nil {
		return StatusNotFound, "Chat not found"
	}
	_, err = s.deps.Chats.History(ctx, uid, sid)
	switch {
	case err == nil:
		return 0, ""
	case errors.Is(err, chat.ErrNotFound):
		return StatusNotFound, "Chat not found"
	default:
		return websocket.StatusInternalError, err.Error()
	}
}
