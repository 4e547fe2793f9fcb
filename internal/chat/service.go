// Package chat drives the clarifying-question conversation that precedes
// roadmap curation.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/agents"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/anthropic"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/cache"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/curation"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/domain"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/store"
)

var (
	ErrNotFound         = errors.New("chat not found")
	ErrEmptyMessage     = errors.New("message cannot be empty")
	ErrSessionCompleted = errors.New("chat session already completed")
	ErrRoadmapNotReady  = errors.New("roadmap not generated yet")
	ErrNoActiveRun      = errors.New("no roadmap generation in progress")
)

const (
	titleMaxTokens    = 64
	questionMaxTokens = 512
	maxTitleLength    = 120
)

// Store is the persistence the conversation needs. *store.Store satisfies it.
type Store interface {
	CreateChat(ctx context.Context, c *domain.Session) error
	GetChat(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	ListChatsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Session, error)
	AppendTurn(ctx context.Context, chatID uuid.UUID, question string, answer *string, kind domain.QuestionType, options []string) (domain.Turn, error)
	AnswerLastTurn(ctx context.Context, chatID uuid.UUID, answer string) (domain.Turn, bool, error)
	UpdateChatStatus(ctx context.Context, chatID uuid.UUID, status domain.SessionStatus) error
	AddTokens(ctx context.Context, chatID uuid.UUID, n int, model string) error
}

type Curator interface {
	Start(sessionID string, data domain.ChatData) error
	Cancel(sessionID string) bool
}

// RoadmapCache reads finished roadmaps written by the curator.
type RoadmapCache interface {
	GetJSON(ctx context.Context, key string, v any) error
}

// InteractionResponse is returned for every chat message. Question is nil
// once Completed is true.
type InteractionResponse struct {
	SessionID    uuid.UUID           `json:"session_id"`
	Order        *int                `json:"order"`
	Question     *string             `json:"question"`
	Options      []string            `json:"options,omitempty"`
	QuestionType domain.QuestionType `json:"question_type,omitempty"`
	Completed    bool                `json:"completed"`
}

type History struct {
	SessionID uuid.UUID            `json:"session_id"`
	Title     string               `json:"title"`
	Status    domain.SessionStatus `json:"status"`
	History   []domain.Turn        `json:"history"`
}

type RoadmapStatus struct {
	SessionID uuid.UUID `json:"session_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
}

type Service struct {
	store        Store
	llm          agents.LLM
	model        string
	curator      Curator
	roadmaps     RoadmapCache
	maxQuestions int
	logger       *slog.Logger
}

func NewService(st Store, llm agents.LLM, model string, curator Curator, roadmaps RoadmapCache, maxQuestions int, logger *slog.Logger) *Service {
	if maxQuestions <= 0 {
		maxQuestions = 5
	}
	return &Service{
		store:        st,
		llm:          llm,
		model:        model,
		curator:      curator,
		roadmaps:     roadmaps,
		maxQuestions: maxQuestions,
		logger:       logger,
	}
}

// Interact handles one user message. Without a known session it opens a new
// chat with sessionID (or a fresh id) and asks the first question. For an
// existing chat the message answers the open question and the next one is
// asked, until the model reports completion or the question limit is hit.
func (s *Service) Interact(ctx context.Context, userID uuid.UUID, sessionID *uuid.UUID, message string) (*InteractionResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	if sessionID != nil {
		c, err := s.store.GetChat(ctx, *sessionID)
		switch {
		case err == nil:
			if c.UserID != userID {
				return nil, ErrNotFound
			}
			return s.continueChat(ctx, c, message)
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("get chat: %w", err)
		}
	}
	return s.startChat(ctx, userID, sessionID, message)
}

func (s *Service) startChat(ctx context.Context, userID uuid.UUID, sessionID *uuid.UUID, message string) (*InteractionResponse, error) {
	title, tokens, err := s.generateTitle(ctx, message)
	if err != nil {
		return nil, err
	}

	c := &domain.Session{
		UserID:         userID,
		Title:          title,
		InitialMessage: message,
		Status:         domain.SessionActive,
		ModelUsed:      s.model,
	}
	if sessionID != nil {
		c.ID = *sessionID
	}
	if err := s.store.CreateChat(ctx, c); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	s.addTokens(ctx, c.ID, tokens)
	s.logger.Info("chat started", "session_id", c.ID, "user_id", userID, "title", title)

	return s.nextQuestion(ctx, c, message)
}

func (s *Service) continueChat(ctx context.Context, c *domain.Session, message string) (*InteractionResponse, error) {
	if c.Status == domain.SessionCompleted {
		return nil, ErrSessionCompleted
	}

	_, answered, err := s.store.AnswerLastTurn(ctx, c.ID, message)
	if err != nil {
		return nil, fmt.Errorf("answer turn: %w", err)
	}
	if !answered {
		if _, err := s.store.AppendTurn(ctx, c.ID, "", &message, domain.QuestionText, nil); err != nil {
			return nil, fmt.Errorf("append turn: %w", err)
		}
	}

	c, err = s.store.GetChat(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("reload chat: %w", err)
	}
	if asked(c) >= s.maxQuestions {
		s.logger.Info("question limit reached", "session_id", c.ID, "limit", s.maxQuestions)
		return s.complete(ctx, c)
	}
	return s.nextQuestion(ctx, c, message)
}

func (s *Service) nextQuestion(ctx context.Context, c *domain.Session, message string) (*InteractionResponse, error) {
	q, tokens, err := s.generateQuestion(ctx, c, message)
	if err != nil {
		return nil, err
	}
	s.addTokens(ctx, c.ID, tokens)

	if q.Completed || q.Question == nil || strings.TrimSpace(*q.Question) == "" {
		return s.complete(ctx, c)
	}

	turn, err := s.store.AppendTurn(ctx, c.ID, *q.Question, nil, q.QuestionType, q.Options)
	if err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}
	return &InteractionResponse{
		SessionID:    c.ID,
		Order:        &turn.Order,
		Question:     &turn.Question,
		Options:      turn.Options,
		QuestionType: turn.QuestionType,
	}, nil
}

// complete marks the chat done and hands it to the curator in the
// background. A run already in flight is left alone.
func (s *Service) complete(ctx context.Context, c *domain.Session) (*InteractionResponse, error) {
	if err := s.store.UpdateChatStatus(ctx, c.ID, domain.SessionCompleted); err != nil {
		return nil, fmt.Errorf("complete chat: %w", err)
	}
	c.Status = domain.SessionCompleted

	if err := s.curator.Start(c.ID.String(), c.ChatData()); err != nil {
		if !errors.Is(err, curation.ErrRunInProgress) {
			return nil, fmt.Errorf("start curation: %w", err)
		}
		s.logger.Info("curation already running", "session_id", c.ID)
	}
	s.logger.Info("chat completed", "session_id", c.ID, "turns", len(c.Turns))
	return &InteractionResponse{SessionID: c.ID, Completed: true}, nil
}

// History returns the ordered turns of a chat owned by userID.
func (s *Service) History(ctx context.Context, userID, sessionID uuid.UUID) (*History, error) {
	c, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	turns := c.Turns
	if turns == nil {
		turns = []domain.Turn{}
	}
	return &History{SessionID: c.ID, Title: c.Title, Status: c.Status, History: turns}, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	chats, err := s.store.ListChatsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	if chats == nil {
		chats = []domain.Session{}
	}
	return chats, nil
}

// StartRoadmap triggers curation for a chat by hand, e.g. after a failed run.
func (s *Service) StartRoadmap(ctx context.Context, userID, sessionID uuid.UUID) (*RoadmapStatus, error) {
	c, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	err = s.curator.Start(c.ID.String(), c.ChatData())
	if errors.Is(err, curation.ErrRunInProgress) {
		return &RoadmapStatus{
			SessionID: c.ID,
			Status:    "in_progress",
			Message:   "Roadmap generation is already running.",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("start curation: %w", err)
	}
	return &RoadmapStatus{
		SessionID: c.ID,
		Status:    "pending",
		Message:   "Roadmap generation started. Follow progress on the websocket.",
	}, nil
}

// CancelRoadmap stops the curation run for a chat. The run reports
// error/cancelled on the progress stream.
func (s *Service) CancelRoadmap(ctx context.Context, userID, sessionID uuid.UUID) (*RoadmapStatus, error) {
	c, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.curator.Cancel(c.ID.String()) {
		return nil, ErrNoActiveRun
	}
	s.logger.Info("roadmap curation cancel requested", "session_id", c.ID, "user_id", userID)
	return &RoadmapStatus{
		SessionID: c.ID,
		Status:    "cancelled",
		Message:   "Roadmap generation is being cancelled.",
	}, nil
}

// Roadmap returns the finished roadmap for a chat owned by userID.
func (s *Service) Roadmap(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Roadmap, error) {
	if _, err := s.owned(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	var r domain.Roadmap
	err := s.roadmaps.GetJSON(ctx, curation.RoadmapKey(sessionID.String()), &r)
	if errors.Is(err, cache.ErrMiss) {
		return nil, ErrRoadmapNotReady
	}
	if err != nil {
		return nil, fmt.Errorf("load roadmap: %w", err)
	}
	return &r, nil
}

func (s *Service) owned(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Session, error) {
	c, err := s.store.GetChat(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	if c.UserID != userID {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *Service) addTokens(ctx context.Context, id uuid.UUID, n int) {
	if n <= 0 {
		return
	}
	if err := s.store.AddTokens(ctx, id, n, s.model); err != nil {
		s.logger.Warn("record token usage", "session_id", id, "error", err)
	}
}

// asked counts turns that carry a question.
func asked(c *domain.Session) int {
	n := 0
	for _, t := range c.Turns {
		if t.Question != "" {
			n++
		}
	}
	return n
}

func (s *Service) generateTitle(ctx context.Context, message string) (string, int, error) {
	completion, err := s.llm.Complete(ctx, titlePrompt, []anthropic.Message{{Role: "user", Content: message}}, titleMaxTokens)
	if err != nil {
		return "", 0, fmt.Errorf("generate title: %w", err)
	}
	var out struct {
		Title string `json:"title"`
	}
	_, err = anthropic.ExtractJSON(completion.Text, func(raw string) error {
		out.Title = ""
		return json.Unmarshal([]byte(raw), &out)
	})
	title := strings.TrimSpace(out.Title)
	if err != nil || title == "" {
		s.logger.Warn("title response unusable, falling back to message", "error", err)
		title = message
	}
	if r := []rune(title); len(r) > maxTitleLength {
		title = string(r[:maxTitleLength])
	}
	return title, completion.Tokens(), nil
}

type question struct {
	Question     *string             `json:"question"`
	QuestionType domain.QuestionType `json:"question_type"`
	Options      []string            `json:"options"`
	Completed    bool                `json:"completed"`
}

type questionInput struct {
	InitialMessage string        `json:"initial_message"`
	ChatHistory    []domain.Turn `json:"chat_history"`
	UserMessage    string        `json:"user_message"`
	QuestionsLeft  int           `json:"questions_left"`
}

func (s *Service) generateQuestion(ctx context.Context, c *domain.Session, message string) (question, int, error) {
	in := questionInput{
		InitialMessage: c.InitialMessage,
		ChatHistory:    c.Turns,
		UserMessage:    message,
		QuestionsLeft:  s.maxQuestions - asked(c),
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return question{}, 0, fmt.Errorf("marshal question input: %w", err)
	}

	completion, err := s.llm.Complete(ctx, questionPrompt, []anthropic.Message{{Role: "user", Content: string(payload)}}, questionMaxTokens)
	if err != nil {
		return question{}, 0, fmt.Errorf("generate question: %w", err)
	}
	var q question
	_, err = anthropic.ExtractJSON(completion.Text, func(raw string) error {
		q = question{}
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return err
		}
		if q.Question == nil && !q.Completed {
			return errors.New("response has neither a question nor completion")
		}
		return nil
	})
	if err != nil {
		return question{}, 0, fmt.Errorf("parse question: %w", err)
	}

	switch q.QuestionType {
	case domain.QuestionSingleChoice, domain.QuestionMultipleChoice:
		if len(q.Options) == 0 {
			q.QuestionType = domain.QuestionText
		}
	default:
		q.QuestionType = domain.QuestionText
		q.Options = nil
	}
	return q, completion.Tokens(), nil
}
