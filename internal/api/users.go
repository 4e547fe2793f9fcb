package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/auth"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/domain"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/store"
)

type createUserRequest struct {
	FullName string  `json:"full_name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Profile  *string `json:"profile"`
}

func (req createUserRequest) validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(req.FullName) == "" {
		errs = append(errs, fieldError("body", "full_name", "full name is required"))
	}
	if _, err := mail.ParseAddress(req.Email); err != nil || !strings.Contains(req.Email, "@") {
		errs = append(errs, fieldError("body", "email", "value is not a valid email address"))
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		errs = append(errs, fieldError("body", "password", err.Error()))
	}
	return errs
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	User      *domain.User `json:"user"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decode(w, r, &req) {
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		writeValidation(w, r, errs)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.internalError(w, r, "hash password", err)
		return
	}
	u := &domain.User{
		FullName:     strings.TrimSpace(req.FullName),
		Email:        req.Email,
		PasswordHash: hash,
		Profile:      req.Profile,
		IsActive:     true,
	}
	err = s.deps.Users.CreateUser(r.Context(), u)
	if errors.Is(err, store.ErrEmailTaken) {
		writeError(w, r, http.StatusBadRequest, "Email already registered")
		return
	}
	if err != nil {
		s.internalError(w, r, "create user", err)
		return
	}

	s.logger.Info("user registered", "user_id", u.ID)
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := s.deps.Users.GetUserByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.internalError(w, r, "get user", err)
		return
	}
	if u == nil || !auth.VerifyPassword(u.PasswordHash, req.Password) {
		writeError(w, r, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !u.IsActive {
		writeError(w, r, http.StatusForbidden, "User account is disabled")
		return
	}

	if err := s.deps.Users.UpdateLastLogin(r.Context(), u.ID); err != nil {
		s.logger.Warn("update last login", "user_id", u.ID, "error", err)
	}
	token, err := s.deps.Tokens.Issue(u.ID, u.Email)
	if err != nil {
		s.internalError(w, r, "issue token", err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, TokenType: "bearer", User: u})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	u, err := s.deps.Users.GetUserByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// pathUUID parses the {id} route parameter, writing a 422 when malformed.
func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeValidation(w, r, []FieldError{fieldError("path", "id", "value is not a valid uuid")})
		return uuid.Nil, false
	}
	return id, true
}
