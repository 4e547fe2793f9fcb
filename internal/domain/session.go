// Package domain holds the records shared by the store, the chat flow and the
// curation pipeline.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionInactive  SessionStatus = "inactive"
	SessionCompleted SessionStatus = "completed"
)

// Valid reports whether s is one of the known session statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionInactive, SessionCompleted:
		return true
	}
	return false
}

type QuestionType string

const (
	QuestionText           QuestionType = "text"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionSingleChoice   QuestionType = "single_choice"
)

// Turn is one clarifying question and the user's answer. Answer stays nil
// until the user responds. Order starts at 1 and is never reused.
type Turn struct {
	Order        int          `json:"order"`
	Question     string       `json:"question"`
	Answer       *string      `json:"answer"`
	QuestionType QuestionType `json:"question_type,omitempty"`
	Options      []string     `json:"options,omitempty"`
}

// Session is one chat-to-roadmap lifecycle.
type Session struct {
	ID             uuid.UUID         `json:"id"`
	UserID         uuid.UUID         `json:"user_id"`
	Title          string            `json:"title"`
	InitialMessage string            `json:"initial_message"`
	Turns          []Turn            `json:"question_answers"`
	Status         SessionStatus     `json:"status"`
	TokensConsumed int               `json:"token_consumed"`
	ModelUsed      string            `json:"model_used"`
	Metadata       map[string]string `json:"chat_metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// AppendTurn adds a turn at the next position and returns it. Existing turns
// are never rewritten.
func (s *Session) AppendTurn(question string, answer *string, kind QuestionType, options []string) Turn {
	if kind == "" {
		kind = QuestionText
	}
	t := Turn{
		Order:        len(s.Turns) + 1,
		Question:     question,
		Answer:       answer,
		QuestionType: kind,
		Options:      options,
	}
	s.Turns = append(s.Turns, t)
	return t
}

// OpenTurn returns the last turn if it is still waiting for an answer.
func (s *Session) OpenTurn() (*Turn, bool) {
	if len(s.Turns) == 0 {
		return nil, false
	}
	last := &s.Turns[len(s.Turns)-1]
	if last.Answer != nil {
		return nil, false
	}
	return last, true
}

// ChatData is the conversation snapshot handed to the curation pipeline.
type ChatData struct {
	Title           string `json:"title"`
	InitialMessage  string `json:"initial_message"`
	QuestionAnswers []Turn `json:"question_answers"`
}

// ChatData extracts the pipeline input from the session.
func (s *Session) ChatData() ChatData {
	turns := make([]Turn, len(s.Turns))
	copy(turns, s.Turns)
	return ChatData{
		Title:           s.Title,
		InitialMessage:  s.InitialMessage,
		QuestionAnswers: turns,
	}
}
