package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/auth"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/chat"
)

type interactRequest struct {
	Message   string     `json:"message"`
	SessionID *uuid.UUID `json:"session_id"`
}

func (s *Server) interact(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req interactRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.deps.Chats.Interact(r.Context(), userID, req.SessionID, req.Message)
	if err != nil {
		s.chatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	chats, err := s.deps.Chats.List(r.Context(), userID)
	if err != nil {
		s.chatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	h, err := s.deps.Chats.History(r.Context(), userID, id)
	if err != nil {
		s.chatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) startRoadmap(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	st, err := s.deps.Chats.StartRoadmap(r.Context(), userID, id)
	if err != nil {
		s.chatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (s *Server) cancelRoadmap(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	st, err := s.deps.Chats.CancelRoadmap(r.Context(), userID, id)
	if err != nil {
		s.chatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (s *Server) getRoadmap(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	roadmap, err := s.deps.Chats.Roadmap(r.Context(), userID, id)
	if err != nil {
		s.chatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roadmap)
}

func (s *Server) chatError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeValidation(w, r, []FieldError{fieldError("body", "message", err.Error())})
	case errors.Is(err, chat.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "Chat not found")
	case errors.Is(err, chat.ErrSessionCompleted):
		writeError(w, r, http.StatusConflict, "Chat session already completed")
	case errors.Is(err, chat.ErrRoadmapNotReady):
		writeError(w, r, http.StatusNotFound, "Roadmap not generated yet")
	case errors.Is(err, chat.ErrNoActiveRun):
		writeError(w, r, http.StatusConflict, "No roadmap generation in progress")
	default:
		s.internalError(w, r, "chat request failed", err)
	}
}
