// Package curation runs the roadmap pipeline for a completed chat session:
// planner, optional policy research, researcher and roadmap builder, with a
// progress event published before each stage.
package curation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/agents"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/cache"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/domain"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/progress"
)

const (
	// ResultTTL is how long intermediate stage outputs are kept.
	ResultTTL = time.Hour
	// RunLockTTL bounds how long a crashed run can block a retry.
	RunLockTTL = 15 * time.Minute

	terminalPublishTimeout = 5 * time.Second
)

var ErrRunInProgress = errors.New("roadmap curation already running for this session")

func ChatDataKey(id string) string       { return "chat_data:" + id }
func PlannerResultKey(id string) string  { return "planner_result:" + id }
func PolicyResultKey(id string) string   { return "policy_result:" + id }
func ResearchResultKey(id string) string { return "researcher_result:" + id }
func RoadmapKey(id string) string        { return "roadmap:" + id }
func LockKey(id string) string           { return "roadmap:lock:" + id }

// RunCache stores stage outputs and guards against concurrent runs for the
// same session.
type RunCache interface {
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

type Publisher interface {
	Publish(ctx context.Context, e progress.Event) error
}

// Notifier receives lifecycle events after a run's terminal progress event.
type Notifier interface {
	RoadmapCompleted(ctx context.Context, sessionID string, r *domain.Roadmap) error
	RoadmapFailed(ctx context.Context, sessionID, step, reason string) error
}

// Agents are the pipeline stages. Policy may be nil, which disables the
// policy research branch.
type Agents struct {
	Planner    agents.Agent
	Policy     agents.Agent
	Researcher agents.Agent
	Roadmap    agents.Agent
}

type Curator struct {
	agents    Agents
	publisher Publisher
	cache     RunCache
	notifier  Notifier
	sem       *semaphore.Weighted
	logger    *slog.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*runHandle
}

// runHandle identifies one run so a run that outlived its lock cannot remove
// the entry of the run that replaced it.
type runHandle struct {
	cancel context.CancelFunc
}

// New builds a curator. At most workers agent calls run at once.
func New(a Agents, pub Publisher, rc RunCache, workers int, logger *slog.Logger) *Curator {
	if workers <= 0 {
		workers = 1
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Curator{
		agents:    a,
		publisher: pub,
		cache:     rc,
		sem:       semaphore.NewWeighted(int64(workers)),
		logger:    logger,
		baseCtx:   ctx,
		stop:      stop,
		runs:      make(map[string]*runHandle),
	}
}

func (c *Curator) WithNotifier(n Notifier) *Curator {
	c.notifier = n
	return c
}

// Start publishes the pending event for the session, which replaces any
// snapshot left by an earlier run, and then launches a background run and
// returns. It returns ErrRunInProgress if a run for the session holds the
// lock.
func (c *Curator) Start(sessionID string, data domain.ChatData) error {
	if c.baseCtx.Err() != nil {
		return fmt.Errorf("curator stopped: %w", c.baseCtx.Err())
	}

	token, err := c.cache.AcquireLock(c.baseCtx, LockKey(sessionID), RunLockTTL)
	if errors.Is(err, cache.ErrLockHeld) {
		return ErrRunInProgress
	}
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}

	if err := c.stage(c.baseCtx, sessionID, progress.StepPending); err != nil {
		c.releaseLock(c.baseCtx, sessionID, token)
		return err
	}

	ctx, cancel := context.WithCancel(c.baseCtx)
	h := &runHandle{cancel: cancel}
	c.mu.Lock()
	c.runs[sessionID] = h
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			if c.runs[sessionID] == h {
				delete(c.runs, sessionID)
			}
			c.mu.Unlock()
			cancel()
			c.releaseLock(ctx, sessionID, token)
		}()
		_ = c.Run(ctx, sessionID, data)
	}()
	return nil
}

func (c *Curator) releaseLock(ctx context.Context, sessionID, token string) {
	releaseCtx, done := context.WithTimeout(context.WithoutCancel(ctx), terminalPublishTimeout)
	defer done()
	if err := c.cache.ReleaseLock(releaseCtx, LockKey(sessionID), token); err != nil {
		c.logger.Warn("release run lock", "session_id", sessionID, "error", err)
	}
}

// Cancel stops the running curation for a session. It reports whether a run
// was found.
func (c *Curator) Cancel(sessionID string) bool {
	c.mu.Lock()
	h, ok := c.runs[sessionID]
	c.mu.Unlock()
	if ok {
		h.cancel()
	}
	return ok
}

// Shutdown cancels every running curation and waits for their terminal
// events, or for ctx to end.
func (c *Curator) Shutdown(ctx context.Context) error {
	c.stop()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the pipeline synchronously. Whatever happens, exactly one
// terminal event is published: completed, cancelled or failed.
func (c *Curator) Run(ctx context.Context, sessionID string, data domain.ChatData) error {
	c.logger.Info("roadmap curation started", "session_id", sessionID)
	start := time.Now()

	roadmap, err := c.run(ctx, sessionID, data)
	if err == nil {
		c.logger.Info("roadmap curation completed",
			"session_id", sessionID,
			"roadmap_id", roadmap.ID,
			"duration", time.Since(start).String(),
		)
		if c.notifier != nil {
			if nerr := c.notifier.RoadmapCompleted(ctx, sessionID, roadmap); nerr != nil {
				c.logger.Warn("notify roadmap completed", "session_id", sessionID, "error", nerr)
			}
		}
		return nil
	}

	termCtx, done := context.WithTimeout(context.WithoutCancel(ctx), terminalPublishTimeout)
	defer done()

	var ev progress.Event
	if ctx.Err() != nil {
		c.logger.Warn("roadmap curation cancelled", "session_id", sessionID, "error", err)
		ev = progress.StageEvent(sessionID, progress.StepCancelled)
	} else {
		c.logger.Error("roadmap curation failed", "session_id", sessionID, "error", err)
		ev = progress.FailedEvent(sessionID, err)
	}
	if perr := c.publisher.Publish(termCtx, ev); perr != nil {
		c.logger.Error("publish terminal event", "session_id", sessionID, "step", ev.Step, "error", perr)
	}
	if c.notifier != nil {
		if nerr := c.notifier.RoadmapFailed(termCtx, sessionID, ev.Step, err.Error()); nerr != nil {
			c.logger.Warn("notify roadmap failed", "session_id", sessionID, "error", nerr)
		}
	}
	return err
}

func (c *Curator) run(ctx context.Context, id string, data domain.ChatData) (*domain.Roadmap, error) {
	if err := c.stage(ctx, id, progress.StepAnalysingAnswers); err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, ChatDataKey(id), data, ResultTTL); err != nil {
		return nil, fmt.Errorf("cache chat data: %w", err)
	}

	if err := c.stage(ctx, id, progress.StepResearching); err != nil {
		return nil, err
	}
	plan, err := c.invoke(ctx, "planner", c.agents.Planner, data)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, PlannerResultKey(id), plan, ResultTTL); err != nil {
		return nil, fmt.Errorf("cache planner result: %w", err)
	}

	policy, err := c.policyResearch(ctx, id, data, plan)
	if err != nil {
		return nil, err
	}

	if err := c.stage(ctx, id, progress.StepPlanning); err != nil {
		return nil, err
	}
	research, err := c.invoke(ctx, "researcher", c.agents.Researcher, plan)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, ResearchResultKey(id), research, ResultTTL); err != nil {
		return nil, fmt.Errorf("cache researcher result: %w", err)
	}

	if err := c.stage(ctx, id, progress.StepGeneratingRoadmap); err != nil {
		return nil, err
	}
	input := agents.RoadmapInput{ChatData: data, ResearcherOutput: research}
	if policy != nil {
		input.PolicyResearch = policy
	}
	built, err := c.invoke(ctx, "roadmap_builder", c.agents.Roadmap, input)
	if err != nil {
		return nil, err
	}
	roadmap, err := agents.StructuredRoadmap(built)
	if err != nil {
		return nil, fmt.Errorf("roadmap builder: %w", err)
	}
	agents.PostProcess(roadmap)
	if err := c.cache.SetJSON(ctx, RoadmapKey(id), roadmap, ResultTTL); err != nil {
		return nil, fmt.Errorf("cache roadmap: %w", err)
	}

	if err := c.publisher.Publish(ctx, progress.CompletedEvent(id, roadmap)); err != nil {
		return nil, err
	}
	return roadmap, nil
}

// policyResearch runs the optional policy branch. Failures are logged and
// yield a nil result; only cancellation is returned as an error.
func (c *Curator) policyResearch(ctx context.Context, id string, data domain.ChatData, plan map[string]any) (map[string]any, error) {
	items := agents.DecodeWorkItems(plan[agents.KeyStructured])
	policyItems := items.PolicyItems()
	if len(policyItems) == 0 {
		return nil, nil
	}
	if c.agents.Policy == nil {
		c.logger.Info("policy research disabled, skipping", "session_id", id, "items", len(policyItems))
		return nil, nil
	}

	res, err := func() (map[string]any, error) {
		if err := c.stage(ctx, id, progress.StepPolicyResearch); err != nil {
			return nil, err
		}
		res, err := c.invoke(ctx, "policy_researcher", c.agents.Policy, agents.PolicyInput{
			ChatData:    data,
			PolicyItems: policyItems,
		})
		if err != nil {
			return nil, err
		}
		if err := c.cache.SetJSON(ctx, PolicyResultKey(id), res, ResultTTL); err != nil {
			return nil, fmt.Errorf("cache policy result: %w", err)
		}
		return res, nil
	}()
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn("policy research skipped", "session_id", id, "reason", err.Error())
		return nil, nil
	}
	return res, nil
}

func (c *Curator) stage(ctx context.Context, id, step string) error {
	if err := c.publisher.Publish(ctx, progress.StageEvent(id, step)); err != nil {
		return fmt.Errorf("publish %s: %w", step, err)
	}
	return nil
}

type outcome struct {
	res agents.Result
	err error
}

// invoke runs an agent on a worker slot and normalizes its result. It returns
// as soon as ctx ends even if the agent call is still in flight.
func (c *Curator) invoke(ctx context.Context, name string, a agents.Agent, input any) (map[string]any, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	done := make(chan outcome, 1)
	go func() {
		defer c.sem.Release(1)
		res, err := a.Invoke(ctx, input)
		done <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		if o.err != nil {
			return nil, fmt.Errorf("%s: %w", name, o.err)
		}
		normalized := agents.Normalize(o.res)
		c.logger.Debug("agent result", "agent", name, "keys", len(normalized))
		return normalized, nil
	}
}
