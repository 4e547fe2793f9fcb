package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// SnapshotStore keeps the latest event per session.
type SnapshotStore interface {
	Save(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	// Load returns ok=false when no snapshot exists.
	Load(ctx context.Context, key string) (payload []byte, ok bool, err error)
}

// Broadcaster fans events out to live subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription delivers raw payloads until closed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

type Publisher struct {
	store  SnapshotStore
	bus    Broadcaster
	logger *slog.Logger
}

func NewPublisher(store SnapshotStore, bus Broadcaster, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, bus: bus, logger: logger}
}

// Publish overwrites the session snapshot and then broadcasts the same
// payload. Errors from either step are returned to the caller.
func (p *Publisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}

	if err := p.store.Save(ctx, StateKey(e.SessionID), payload, SnapshotTTL); err != nil {
		return fmt.Errorf("save progress snapshot: %w", err)
	}
	if err := p.bus.Broadcast(ctx, Channel(e.SessionID), payload); err != nil {
		return fmt.Errorf("broadcast progress: %w", err)
	}

	p.logger.Debug("progress published",
		"session_id", e.SessionID,
		"status", e.Status,
		"step", e.Step,
		"progress_pct", e.ProgressPct,
	)
	return nil
}
