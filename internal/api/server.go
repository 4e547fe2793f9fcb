package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/auth"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/chat"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/domain"
)

type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
}

// ChatService is the conversation surface. *chat.Service satisfies it.
type ChatService interface {
	Interact(ctx context.Context, userID uuid.UUID, sessionID *uuid.UUID, message string) (*chat.InteractionResponse, error)
	History(ctx context.Context, userID, sessionID uuid.UUID) (*chat.History, error)
	List(ctx context.Context, userID uuid.UUID) ([]domain.Session, error)
	StartRoadmap(ctx context.Context, userID, sessionID uuid.UUID) (*chat.RoadmapStatus, error)
	CancelRoadmap(ctx context.Context, userID, sessionID uuid.UUID) (*chat.RoadmapStatus, error)
	Roadmap(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Roadmap, error)
}

// ProgressStreamer delivers a session's progress events. *progress.Subscriber
// satisfies it.
type ProgressStreamer interface {
	Stream(ctx context.Context, sessionID string, send func(json.RawMessage) error) error
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Users       UserStore
	Chats       ChatService
	Progress    ProgressStreamer
	Tokens      *auth.Tokens
	CORSOrigins []string
	Checks      map[string]HealthCheck
	Logger      *slog.Logger
}

type Server struct {
	router *chi.Mux
	port   int
	deps   Deps
	logger *slog.Logger
	http   *http.Server
}

func NewServer(port int, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(CORS(deps.CORSOrigins))

	s := &Server{
		router: router,
		port:   port,
		deps:   deps,
		logger: deps.Logger,
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	requireAuth := auth.BearerAuth(deps.Tokens, s.unauthorized)

	router.Get("/health", s.health)

	router.Route("/users", func(r chi.Router) {
		r.Post("/", s.createUser)
		r.Post("/login", s.login)
		r.With(requireAuth).Get("/{id}", s.getUser)
	})

	router.Route("/chats", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", s.interact)
		r.Get("/", s.listChats)
		r.Get("/{id}/history", s.chatHistory)
		r.Post("/{id}/roadmap", s.startRoadmap)
		r.Get("/{id}/roadmap", s.getRoadmap)
		r.Delete("/{id}/roadmap", s.cancelRoadmap)
	})

	router.Get("/ws/roadmap/{id}", s.roadmapProgress)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Websocket
// connections are hijacked and are not waited for.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := check(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("health check failed", "check", name, "error", err)
			checks[name] = "unavailable"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	body := map[string]any{"status": status}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	writeJSON(w, code, body)
}
