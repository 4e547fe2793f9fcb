package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	full_name     TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	profile       TEXT,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	last_login    TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chats (
	id               UUID PRIMARY KEY,
	user_id          UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title            TEXT NOT NULL,
	initial_message  TEXT NOT NULL,
	question_answers JSONB NOT NULL DEFAULT '[]',
	status           TEXT NOT NULL DEFAULT 'active',
	token_consumed   INTEGER NOT NULL DEFAULT 0,
	model_used       TEXT NOT NULL DEFAULT '',
	chat_metadata    JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_chats_user_updated ON chats (user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS policy_chunks (
	id              UUID PRIMARY KEY,
	source_document TEXT NOT NULL,
	section         TEXT NOT NULL DEFAULT '',
	chunk_index     INTEGER NOT NULL,
	content         TEXT NOT NULL,
	metadata        JSONB,
	search          TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', section || ' ' || content)) STORED,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_document, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_policy_chunks_search ON policy_chunks USING GIN (search);
`

// Migrate creates the tables the service needs if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
