// Package progress publishes curation progress snapshots and streams them to
// connected clients.
package progress

import (
	"encoding/json"
	"time"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/domain"
)

// SnapshotTTL is how long the last event of a session is retained.
const SnapshotTTL = time.Hour

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Pipeline steps.
const (
	StepPending           = "pending"
	StepAnalysingAnswers  = "analysing_answers"
	StepResearching       = "researching"
	StepPolicyResearch    = "policy_research"
	StepPlanning          = "planning"
	StepGeneratingRoadmap = "generating_roadmap"
	StepDone              = "done"
	StepCancelled         = "cancelled"
	StepFailed            = "failed"
)

// Event is one progress snapshot. Roadmap is only set on completion.
type Event struct {
	SessionID   string          `json:"session_id"`
	Status      Status          `json:"status"`
	Step        string          `json:"step"`
	Detail      string          `json:"detail"`
	ProgressPct int             `json:"progress_pct"`
	Roadmap     *domain.Roadmap `json:"roadmap,omitempty"`
}

type stage struct {
	status Status
	pct    int
	detail string
}

var stages = map[string]stage{
	StepPending:           {StatusPending, 0, "Waiting to start…"},
	StepAnalysingAnswers:  {StatusInProgress, 10, "Analysing your answers to understand your needs…"},
	StepResearching:       {StatusInProgress, 30, "Researching the best resources for you…"},
	StepPolicyResearch:    {StatusInProgress, 40, "Searching company policy documents…"},
	StepPlanning:          {StatusInProgress, 60, "Building your personalised learning roadmap…"},
	StepGeneratingRoadmap: {StatusInProgress, 85, "Generating the roadmap structure…"},
	StepDone:              {StatusCompleted, 100, "Your roadmap is ready!"},
	StepCancelled:         {StatusError, 0, "Roadmap generation was cancelled."},
	StepFailed:            {StatusError, 0, "Something went wrong while creating your roadmap"},
}

// StageEvent builds the event for a known step with its status, percentage
// and detail text filled in.
func StageEvent(sessionID, step string) Event {
	s := stages[step]
	return Event{
		SessionID:   sessionID,
		Status:      s.status,
		Step:        step,
		Detail:      s.detail,
		ProgressPct: s.pct,
	}
}

// FailedEvent is the terminal event for a run that broke with err.
func FailedEvent(sessionID string, err error) Event {
	e := StageEvent(sessionID, StepFailed)
	if err != nil {
		e.Detail += ": " + err.Error()
	}
	return e
}

// CompletedEvent is the terminal event carrying the finished roadmap.
func CompletedEvent(sessionID string, roadmap *domain.Roadmap) Event {
	e := StageEvent(sessionID, StepDone)
	e.Roadmap = roadmap
	return e
}

// StateKey is the snapshot store key for a session.
func StateKey(sessionID string) string {
	return "roadmap:state:" + sessionID
}

// Channel is the broadcast topic for a session.
func Channel(sessionID string) string {
	return "roadmap:progress:" + sessionID
}

// isCompleted reports whether payload is an event with status completed.
func isCompleted(payload []byte) bool {
	var probe struct {
		Status Status `json:"status"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return probe.Status == StatusCompleted
}
