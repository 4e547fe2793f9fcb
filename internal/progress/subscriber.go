package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrSubscriptionClosed is returned when the broadcast side goes away before
// the run completes.
var ErrSubscriptionClosed = errors.New("progress subscription closed")

type Subscriber struct {
	store  SnapshotStore
	bus    Broadcaster
	logger *slog.Logger
}

func NewSubscriber(store SnapshotStore, bus Broadcaster, logger *slog.Logger) *Subscriber {
	return &Subscriber{store: store, bus: bus, logger: logger}
}

// Stream sends the session's current snapshot, if any, and then every
// broadcast event until one reports completion. The subscription is opened
// before the snapshot is read so no event published in between is lost; a
// client may therefore see the same event twice. Stream returns nil after a
// completed event, ctx.Err() when ctx ends, and the send error if delivery
// fails. The subscription is always released.
func (s *Subscriber) Stream(ctx context.Context, sessionID string, send func(json.RawMessage) error) error {
	sub, err := s.bus.Subscribe(ctx, Channel(sessionID))
	if err != nil {
		return fmt.Errorf("subscribe progress: %w", err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			s.logger.Warn("close progress subscription", "session_id", sessionID, "error", err)
		}
	}()

	snapshot, ok, err := s.store.Load(ctx, StateKey(sessionID))
	if err != nil {
		return fmt.Errorf("load progress snapshot: %w", err)
	}
	if ok {
		payload := wrap(snapshot)
		if err := send(payload); err != nil {
			return err
		}
		if isCompleted(payload) {
			return nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, open := <-sub.Messages():
			if !open {
				return ErrSubscriptionClosed
			}
			payload := wrap(msg)
			if err := send(payload); err != nil {
				return err
			}
			if isCompleted(payload) {
				s.logger.Debug("progress stream completed", "session_id", sessionID)
				return nil
			}
		}
	}
}

// wrap forwards JSON payloads verbatim and wraps anything else as
// {"message": raw}.
func wrap(raw []byte) json.RawMessage {
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	b, _ := json.Marshal(map[string]string{"message": string(raw)})
	return b
}
