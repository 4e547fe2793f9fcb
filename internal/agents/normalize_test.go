package agents

import (
	"encoding/json"
	"testing"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/domain"
)

type opaque struct{ n int }

func TestNormalize_DumpsMessagesAndStructured(t *testing.T) {
	raw := Result{
		KeyMessages: []any{
			Message{Role: "human", Content: "hi"},
			map[string]any{"type": "ai", "content": "hello"},
			opaque{n: 1},
		},
		KeyStructured: TodoList{{Description: "d", Agent: DelegateInternetSearch}},
		"usage":       map[string]any{"total_tokens": 30},
	}

	out := Normalize(raw)

	msgs := out[KeyMessages].([]any)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	first := msgs[0].(map[string]any)
	if first["type"] != "human" || first["content"] != "hi" {
		t.Errorf("unexpected dumped message: %v", first)
	}
	if _, ok := msgs[2].(string); !ok {
		t.Errorf("expected string fallback, got %T", msgs[2])
	}

	list, ok := out[KeyStructured].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("expected plain list, got %#v", out[KeyStructured])
	}
	if list[0].(map[string]any)["agent"] != DelegateInternetSearch {
		t.Errorf("unexpected item: %v", list[0])
	}

	if out["usage"].(map[string]any)["total_tokens"] != 30 {
		t.Error("other keys should pass through unchanged")
	}

	if _, err := json.Marshal(out); err != nil {
		t.Errorf("normalized result should be serializable: %v", err)
	}
}

func TestNormalize_TypedMessageSlice(t *testing.T) {
	out := Normalize(Result{KeyMessages: []Message{{Role: "ai", Content: "x"}}})
	msgs := out[KeyMessages].([]any)
	if msgs[0].(map[string]any)["content"] != "x" {
		t.Errorf("unexpected: %v", msgs)
	}
}

func TestNormalize_PlainStructuredPassesThrough(t *testing.T) {
	plain := map[string]any{"items": []any{}}
	out := Normalize(Result{KeyStructured: plain})
	if _, ok := out[KeyStructured].(map[string]any); !ok {
		t.Errorf("expected passthrough, got %T", out[KeyStructured])
	}
}

func TestDecodeWorkItems_Variants(t *testing.T) {
	item := map[string]any{"description": "leave policy", "agent": "company_policy_search"}
	tests := []struct {
		name  string
		in    any
		kind  ShapeKind
		items int
	}{
		{"list", []any{item, "junk"}, ItemList, 1},
		{"keyed", map[string]any{"items": []any{item}}, KeyedItems, 1},
		{"typed", TodoList{{Description: "x", Agent: "video_search"}}, ItemList, 1},
		{"unrecognized map", map[string]any{"todo": []any{item}}, Unrecognized, 0},
		{"nil", nil, Unrecognized, 0},
		{"string", "nope", Unrecognized, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeWorkItems(tt.in)
			if got.Kind != tt.kind {
				t.Errorf("expected kind %v, got %v", tt.kind, got.Kind)
			}
			if len(got.Items) != tt.items {
				t.Errorf("expected %d items, got %d", tt.items, len(got.Items))
			}
		})
	}
}

func TestPolicyItems_FiltersPolicyDelegates(t *testing.T) {
	w := WorkItems{Kind: ItemList, Items: []WorkItem{
		{Description: "a", Agent: DelegateInternetSearch},
		{Description: "b", Agent: DelegatePolicySearch},
		{Description: "c", Agent: "policy_search"},
		{Description: "d", Agent: "carrier_pigeon"},
	}}
	got := w.PolicyItems()
	if len(got) != 2 || got[0].Description != "b" || got[1].Description != "c" {
		t.Errorf("unexpected policy items: %+v", got)
	}
}

func TestCanonicalDelegate(t *testing.T) {
	if CanonicalDelegate(" video_search ") != DelegateVideoSearch {
		t.Error("expected alias to resolve")
	}
	if CanonicalDelegate("unknown") != "unknown" {
		t.Error("unknown tags should be returned unchanged")
	}
}

func TestStructuredRoadmap(t *testing.T) {
	draft := &RoadmapDraft{
		Title: "Go", Level: "expert",
		Sections: []domain.Section{{Title: "Basics", Topics: []domain.Topic{{Title: "Syntax"}}}},
	}
	r, err := StructuredRoadmap(Normalize(Result{KeyStructured: draft}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Level != domain.LevelBeginner {
		t.Errorf("expected invalid level to default to beginner, got %q", r.Level)
	}
	if len(r.Sections) != 1 || r.Sections[0].Topics[0].Title != "Syntax" {
		t.Errorf("unexpected roadmap: %+v", r)
	}

	if _, err := StructuredRoadmap(map[string]any{}); err != ErrNoStructuredResponse {
		t.Errorf("expected ErrNoStructuredResponse, got %v", err)
	}
}

func TestPostProcess_AssignsUniqueIDsAndStatus(t *testing.T) {
	r := &domain.Roadmap{
		Title: "Go",
		Sections: []domain.Section{
			{Title: "A", Topics: []domain.Topic{{Title: "a1"}, {Title: "a2", Status: domain.TopicCompleted}}},
			{Title: "B", Topics: []domain.Topic{{Title: "b1"}}},
		},
	}

	PostProcess(r)

	seen := map[string]bool{r.ID: true}
	if r.ID == "" {
		t.Fatal("roadmap id not assigned")
	}
	for _, s := range r.Sections {
		if s.ID == "" || seen[s.ID] {
			t.Errorf("section id missing or duplicate: %q", s.ID)
		}
		seen[s.ID] = true
		for _, tp := range s.Topics {
			if tp.ID == "" || seen[tp.ID] {
				t.Errorf("topic id missing or duplicate: %q", tp.ID)
			}
			seen[tp.ID] = true
			if tp.Links == nil {
				t.Error("links should default to empty list")
			}
		}
	}
	if r.Sections[0].Topics[0].Status != domain.TopicNotStarted {
		t.Errorf("expected not_started, got %q", r.Sections[0].Topics[0].Status)
	}
	if r.Sections[0].Topics[1].Status != domain.TopicCompleted {
		t.Error("explicit status must be kept")
	}
}

func TestPostProcess_RerunAssignsNewIDs(t *testing.T) {
	r := &domain.Roadmap{Sections: []domain.Section{{Topics: []domain.Topic{{}}}}}
	PostProcess(r)
	first := r.Sections[0].Topics[0].ID
	PostProcess(r)
	if r.Sections[0].Topics[0].ID == first {
		t.Error("expected new ids on second run")
	}
}
