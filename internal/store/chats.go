package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/domain"
)

const chatColumns = `id, user_id, title, initial_message, question_answers, status, token_consumed, model_used, chat_metadata, created_at, updated_at`

// CreateChat inserts a new session, filling in its id, status and timestamps.
func (s *Store) CreateChat(ctx context.Context, c *domain.Session) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = domain.SessionActive
	}
	if c.Turns == nil {
		c.Turns = []domain.Turn{}
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO chats (`+chatColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.UserID, c.Title, c.InitialMessage, c.Turns, c.Status,
		c.TokensConsumed, c.ModelUsed, c.Metadata, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

func (s *Store) GetChat(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = $1`, id)
	return scanChat(row)
}

// ListChatsByUser returns the user's chats, most recently updated first.
func (s *Store) ListChatsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+chatColumns+` FROM chats
		WHERE user_id = $1
		ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// AppendTurn adds a turn at the next position. The chat row is locked for
// the read-modify-write so concurrent appends get distinct positions.
func (s *Store) AppendTurn(ctx context.Context, chatID uuid.UUID, question string, answer *string, kind domain.QuestionType, options []string) (domain.Turn, error) {
	var turn domain.Turn
	err := s.mutateTurns(ctx, chatID, func(c *domain.Session) bool {
		turn = c.AppendTurn(question, answer, kind, options)
		return true
	})
	return turn, err
}

// AnswerLastTurn fills in the answer of the trailing unanswered turn. ok is
// false when there is no such turn.
func (s *Store) AnswerLastTurn(ctx context.Context, chatID uuid.UUID, answer string) (turn domain.Turn, ok bool, err error) {
	err = s.mutateTurns(ctx, chatID, func(c *domain.Session) bool {
		open, found := c.OpenTurn()
		if !found {
			return false
		}
		open.Answer = &answer
		turn, ok = *open, true
		return true
	})
	return turn, ok, err
}

func (s *Store) mutateTurns(ctx context.Context, chatID uuid.UUID, fn func(*domain.Session) bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var c domain.Session
	err = tx.QueryRow(ctx, `SELECT question_answers FROM chats WHERE id = $1 FOR UPDATE`, chatID).Scan(&c.Turns)
	if err != nil {
		return notFound(err)
	}

	if !fn(&c) {
		return nil
	}

	_, err = tx.Exec(ctx, `UPDATE chats SET question_answers = $1, updated_at = now() WHERE id = $2`, c.Turns, chatID)
	if err != nil {
		return fmt.Errorf("update turns: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) UpdateChatStatus(ctx context.Context, chatID uuid.UUID, status domain.SessionStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE chats SET status = $1, updated_at = now() WHERE id = $2`, status, chatID)
	if err != nil {
		return fmt.Errorf("update chat status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTokens adds n to the chat's token count and records the model used.
func (s *Store) AddTokens(ctx context.Context, chatID uuid.UUID, n int, model string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chats SET token_consumed = token_consumed + $1, model_used = $2, updated_at = now()
		WHERE id = $3`, n, model, chatID)
	if err != nil {
		return fmt.Errorf("add tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanChat(row rowScanner) (*domain.Session, error) {
	var c domain.Session
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.InitialMessage, &c.Turns, &c.Status,
		&c.TokensConsumed, &c.ModelUsed, &c.Metadata, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}
