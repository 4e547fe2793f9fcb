package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/domain"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/progress"
)

const (
	SubjectRoadmapCompleted  = "onboarding.roadmap.completed"
	SubjectRoadmapFailed     = "onboarding.roadmap.failed"
	SubjectServiceRegistered = "onboarding.service.registered"

	subjectPrefix = "onboarding."
)

// RoadmapCompleted is emitted after a curation run publishes its roadmap.
type RoadmapCompleted struct {
	SessionID string    `json:"session_id"`
	RoadmapID string    `json:"roadmap_id"`
	Title     string    `json:"title"`
	Level     string    `json:"level"`
	Sections  int       `json:"sections"`
	Topics    int       `json:"topics"`
	Timestamp time.Time `json:"timestamp"`
}

// RoadmapFailed is emitted when a curation run ends in error or is cancelled.
type RoadmapFailed struct {
	SessionID string    `json:"session_id"`
	Step      string    `json:"step"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

type ServiceRegistered struct {
	Service   string    `json:"service"`
	Broker    string    `json:"broker"`
	StartedAt time.Time `json:"started_at"`
}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("onboarding"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// Subject maps a progress topic such as roadmap:progress:<id> onto the
// service's NATS subject space.
func Subject(topic string) string {
	return subjectPrefix + strings.ReplaceAll(topic, ":", ".")
}

// Broadcast implements progress.Broadcaster.
func (c *Client) Broadcast(_ context.Context, topic string, payload []byte) error {
	if err := c.conn.Publish(Subject(topic), payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe implements progress.Broadcaster. The subscription is flushed to
// the server before returning.
func (c *Client) Subscribe(ctx context.Context, topic string) (progress.Subscription, error) {
	subject := Subject(topic)
	msgs := make(chan *nats.Msg, 64)
	ns, err := c.conn.ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	if err := c.conn.FlushWithContext(ctx); err != nil {
		_ = ns.Unsubscribe()
		return nil, fmt.Errorf("flush subscription %s: %w", subject, err)
	}
	c.logger.Debug("subscribed", "subject", subject)

	sub := &subscription{
		ns:   ns,
		in:   msgs,
		out:  make(chan []byte),
		done: make(chan struct{}),
	}
	go sub.forward()
	return sub, nil
}

type subscription struct {
	ns   *nats.Subscription
	in   chan *nats.Msg
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (s *subscription) forward() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.in:
			select {
			case s.out <- msg.Data:
			case <-s.done:
				return
			}
		}
	}
}

func (s *subscription) Messages() <-chan []byte { return s.out }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.ns.Unsubscribe()
		close(s.done)
	})
	return err
}

// RoadmapCompleted publishes the completion lifecycle event.
func (c *Client) RoadmapCompleted(_ context.Context, sessionID string, r *domain.Roadmap) error {
	return c.Publish(SubjectRoadmapCompleted, NewRoadmapCompleted(sessionID, r))
}

// RoadmapFailed publishes the failure lifecycle event.
func (c *Client) RoadmapFailed(_ context.Context, sessionID, step, reason string) error {
	return c.Publish(SubjectRoadmapFailed, RoadmapFailed{
		SessionID: sessionID,
		Step:      step,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
}

// Register announces the service on startup.
func (c *Client) Register(broker string) error {
	return c.Publish(SubjectServiceRegistered, ServiceRegistered{
		Service:   "onboarding",
		Broker:    broker,
		StartedAt: time.Now().UTC(),
	})
}

func NewRoadmapCompleted(sessionID string, r *domain.Roadmap) RoadmapCompleted {
	ev := RoadmapCompleted{SessionID: sessionID, Timestamp: time.Now().UTC()}
	if r == nil {
		return ev
	}
	ev.RoadmapID = r.ID
	ev.Title = r.Title
	ev.Level = string(r.Level)
	ev.Sections = len(r.Sections)
	for _, s := range r.Sections {
		ev.Topics += len(s.Topics)
	}
	return ev
}

func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("nats drain", "error", err)
		c.conn.Close()
	}
}
