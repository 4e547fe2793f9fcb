package agents

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/anthropic"
	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLLM struct {
	text     string
	err      error
	system   string
	messages []anthropic.Message
}

func (f *fakeLLM) Complete(_ context.Context, system string, messages []anthropic.Message, _ int) (anthropic.Completion, error) {
	f.system = system
	f.messages = messages
	if f.err != nil {
		return anthropic.Completion{}, f.err
	}
	return anthropic.Completion{Text: f.text, InputTokens: 10, OutputTokens: 20}, nil
}

type fakeSearcher struct {
	hits    []domain.PolicyHit
	err     error
	queries []string
}

func (f *fakeSearcher) SearchPolicies(_ context.Context, query string, _ int) ([]domain.PolicyHit, error) {
	f.queries = append(f.queries, query)
	return f.hits, f.err
}

var learnGo = domain.ChatData{
	Title:          "Learn Go",
	InitialMessage: "I want to learn Go",
}

func TestPlanner_ThroughAnthropicClient(t *testing.T) {
	items := `[{"description":"Find the Go tour","agent":"internet_search_agent"}]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "```json\n" + items + "\n```"},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 7, "output_tokens": 3},
		})
	}))
	defer server.Close()

	llm := anthropic.NewClient("test-key", "test-model").WithBaseURL(server.URL)
	res, err := NewPlanner(llm, discardLogger()).Invoke(context.Background(), learnGo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	list, ok := res[KeyStructured].(TodoList)
	if !ok {
		t.Fatalf("expected TodoList, got %T", res[KeyStructured])
	}
	if len(list) != 1 || list[0].Agent != DelegateInternetSearch {
		t.Errorf("unexpected items: %+v", list)
	}
}

func TestPlanner_TruncatesToFiveItems(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"items":[`)
	for i := 0; i < 8; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"description":"step","agent":"search_youtube_videos"}`)
	}
	b.WriteString("]}")

	res, err := NewPlanner(&fakeLLM{text: b.String()}, discardLogger()).Invoke(context.Background(), learnGo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(res[KeyStructured].(TodoList)); got != MaxWorkItems {
		t.Errorf("expected %d items, got %d", MaxWorkItems, got)
	}
}

func TestPlanner_SendsChatDataAsUserMessage(t *testing.T) {
	llm := &fakeLLM{text: "[]"}
	if _, err := NewPlanner(llm, discardLogger()).Invoke(context.Background(), learnGo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(llm.messages) != 1 || llm.messages[0].Role != "user" {
		t.Fatalf("unexpected messages: %+v", llm.messages)
	}
	if !strings.Contains(llm.messages[0].Content, `"initial_message":"I want to learn Go"`) {
		t.Errorf("chat data missing from prompt: %s", llm.messages[0].Content)
	}
	if llm.system != plannerPrompt {
		t.Error("planner should use the planner prompt")
	}
}

func TestPlanner_LLMErrorPropagates(t *testing.T) {
	boom := errors.New("overloaded")
	_, err := NewPlanner(&fakeLLM{err: boom}, discardLogger()).Invoke(context.Background(), learnGo)
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped llm error, got %v", err)
	}
}

func TestPlanner_NonJSONResponse(t *testing.T) {
	_, err := NewPlanner(&fakeLLM{text: "I cannot help with that"}, discardLogger()).Invoke(context.Background(), learnGo)
	if err == nil {
		t.Fatal("expected error for non-json response")
	}
}

func TestPolicyResearcher_SearchesEachItemAndCitesHits(t *testing.T) {
	search := &fakeSearcher{hits: []domain.PolicyHit{
		{Content: "New hires get 20 days of leave.", SourceDocument: "leaves_and_benefits.md", Section: "Annual leave", RelevanceScore: 0.8},
	}}
	llm := &fakeLLM{text: `{"query":"leave","answer":"20 days [Source: leaves_and_benefits.md]","sources":[{"document":"leaves_and_benefits.md","section":"Annual leave","relevance":"direct"}]}`}

	in := PolicyInput{
		ChatData: learnGo,
		PolicyItems: []WorkItem{
			{Description: "How much leave do new hires get?", Agent: DelegatePolicySearch},
			{Description: "Which onboarding steps are mandatory?", Agent: "policy_search"},
		},
	}
	res, err := NewPolicyResearcher(llm, search, 3, discardLogger()).Invoke(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(search.queries) != 2 {
		t.Errorf("expected 2 searches, got %d", len(search.queries))
	}
	prompt := llm.messages[0].Content
	if strings.Count(prompt, "leaves_and_benefits.md") != 1 {
		t.Errorf("duplicate hits should be collapsed: %s", prompt)
	}

	research, ok := res[KeyStructured].(*PolicyResearch)
	if !ok {
		t.Fatalf("expected *PolicyResearch, got %T", res[KeyStructured])
	}
	if len(research.Sources) != 1 || research.Sources[0].Document != "leaves_and_benefits.md" {
		t.Errorf("unexpected sources: %+v", research.Sources)
	}
}

func TestPolicyResearcher_AcceptsPlainMapInput(t *testing.T) {
	search := &fakeSearcher{}
	llm := &fakeLLM{text: `{"query":"q","answer":"No relevant policy found.","sources":[]}`}
	in := map[string]any{
		"chat_data":    map[string]any{"initial_message": "security rules"},
		"policy_items": []any{},
	}
	if _, err := NewPolicyResearcher(llm, search, 0, discardLogger()).Invoke(context.Background(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(search.queries) != 1 || search.queries[0] != "security rules" {
		t.Errorf("expected fallback query from initial message, got %v", search.queries)
	}
	if !strings.Contains(llm.messages[0].Content, "none found") {
		t.Error("expected empty-excerpt marker in prompt")
	}
}

func TestPolicyResearcher_SearchError(t *testing.T) {
	search := &fakeSearcher{err: errors.New("db down")}
	in := PolicyInput{PolicyItems: []WorkItem{{Description: "leave", Agent: DelegatePolicySearch}}}
	_, err := NewPolicyResearcher(&fakeLLM{}, search, 5, discardLogger()).Invoke(context.Background(), in)
	if err == nil || !strings.Contains(err.Error(), "search policies") {
		t.Errorf("expected search error, got %v", err)
	}
}

func TestResearcher_ParsesShapes(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		modules int
	}{
		{"array", `[{"module":"1","title":"Basics","content":"c","resources":[]},{"module":2,"title":"Concurrency","content":"c","resources":[]}]`, 2},
		{"wrapped", `{"modules":[{"title":"Basics","content":"c","resources":[]}]}`, 1},
		{"single", `{"module":"1","title":"Basics","content":"c","resources":[{"resource_type":"video","link":"https://go.dev","title":"Tour"}]}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewResearcher(&fakeLLM{text: tt.text}, discardLogger()).Invoke(context.Background(), map[string]any{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			report := res[KeyStructured].(ResearchReport)
			if len(report) != tt.modules {
				t.Fatalf("expected %d modules, got %d", tt.modules, len(report))
			}
			for i, m := range report {
				if m.Module == "" {
					t.Errorf("module %d has no number", i)
				}
			}
		})
	}
}

func TestResearcher_NumericModuleNumber(t *testing.T) {
	res, err := NewResearcher(&fakeLLM{text: `[{"module":3,"title":"T","content":"c","resources":[]}]`}, discardLogger()).Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := res[KeyStructured].(ResearchReport)[0].Module; got != "3" {
		t.Errorf("expected module 3, got %q", got)
	}
}

func TestRoadmapBuilder_RequiresTitle(t *testing.T) {
	_, err := NewRoadmapBuilder(&fakeLLM{text: `{"sections":[]}`}, discardLogger()).Invoke(context.Background(), RoadmapInput{})
	if err == nil {
		t.Fatal("expected error for roadmap without title")
	}
}

func TestRoadmapBuilder_OmitsMissingPolicyResearch(t *testing.T) {
	llm := &fakeLLM{text: `{"title":"Go","objective":"o","description":"d","level":"beginner","totalEstimatedDuration":"2 hours","sections":[]}`}
	in := RoadmapInput{ChatData: learnGo, ResearcherOutput: []any{}}
	if _, err := NewRoadmapBuilder(llm, discardLogger()).Invoke(context.Background(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(llm.messages[0].Content, "policy_research") {
		t.Error("policy_research should be omitted when absent")
	}
}

func TestRoadmapBuilder_SkipsCitationBeforeObject(t *testing.T) {
	llm := &fakeLLM{text: "Based on the research [1] and {your goals}, here it is:\n" +
		`{"title":"Go from zero","level":"beginner","sections":[{"title":"Basics","topics":[]}]}`}
	res, err := NewRoadmapBuilder(llm, discardLogger()).Invoke(context.Background(), RoadmapInput{ChatData: learnGo})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	draft := res[KeyStructured].(*RoadmapDraft)
	if draft.Title != "Go from zero" || len(draft.Sections) != 1 {
		t.Errorf("unexpected draft %+v", draft)
	}
}

func TestPlanner_PrefersFencedBlock(t *testing.T) {
	llm := &fakeLLM{text: `Draft: {"items":[]}` + "\n```json\n" +
		`[{"description":"Read the tour","agent":"internet_search_agent"}]` + "\n```"}
	res, err := NewPlanner(llm, discardLogger()).Invoke(context.Background(), learnGo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := res[KeyStructured].(TodoList)
	if len(items) != 1 || items[0].Description != "Read the tour" {
		t.Errorf("unexpected items %+v", items)
	}
}
