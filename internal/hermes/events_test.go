package hermes

import (
	"encoding/json"
	"testing"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/domain"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/progress"
)

func TestSubject(t *testing.T) {
	got := Subject(progress.Channel("abc-123"))
	if got != "onboarding.roadmap.progress.abc-123" {
		t.Errorf("unexpected subject %q", got)
	}
}

func TestNewRoadmapCompleted_CountsTopics(t *testing.T) {
	r := &domain.Roadmap{
		ID:    "r1",
		Title: "Learn Go",
		Level: domain.LevelBeginner,
		Sections: []domain.Section{
			{Topics: []domain.Topic{{}, {}}},
			{Topics: []domain.Topic{{}}},
		},
	}

	ev := NewRoadmapCompleted("s1", r)

	if ev.RoadmapID != "r1" || ev.Title != "Learn Go" || ev.Level != "beginner" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Sections != 2 || ev.Topics != 3 {
		t.Errorf("expected 2 sections and 3 topics, got %d and %d", ev.Sections, ev.Topics)
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestNewRoadmapCompleted_NilRoadmap(t *testing.T) {
	ev := NewRoadmapCompleted("s1", nil)
	if ev.SessionID != "s1" || ev.Sections != 0 {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestRoadmapFailedJSON(t *testing.T) {
	raw := `{"session_id":"s1","step":"failed","reason":"planner exploded","timestamp":"2026-01-02T03:04:05Z"}`

	var ev RoadmapFailed
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("failed to parse RoadmapFailed: %v", err)
	}
	if ev.SessionID != "s1" {
		t.Errorf("expected session_id 's1', got '%s'", ev.SessionID)
	}
	if ev.Step != "failed" {
		t.Errorf("expected step 'failed', got '%s'", ev.Step)
	}
	if ev.Reason != "planner exploded" {
		t.Errorf("expected reason 'planner exploded', got '%s'", ev.Reason)
	}
}
