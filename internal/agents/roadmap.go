package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// RoadmapInput is what the curation run hands the roadmap builder.
// PolicyResearch is omitted when the policy branch did not run or failed.
type RoadmapInput struct {
	ChatData         any `json:"chat_data"`
	ResearcherOutput any `json:"researcher_output"`
	PolicyResearch   any `json:"policy_research,omitempty"`
}

type RoadmapBuilder struct {
	base
}

func NewRoadmapBuilder(llm LLM, logger *slog.Logger) *RoadmapBuilder {
	return &RoadmapBuilder{base{name: "roadmap_builder", llm: llm, system: roadmapPrompt, maxTokens: 8192, logger: logger}}
}

func (b *RoadmapBuilder) Invoke(ctx context.Context, input any) (Result, error) {
	var draft RoadmapDraft
	messages, tokens, err := b.call(ctx, input, "", func(raw string) error {
		draft = RoadmapDraft{}
		if err := json.Unmarshal([]byte(raw), &draft); err != nil {
			return err
		}
		if draft.Title == "" {
			return fmt.Errorf("roadmap response has no title")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.Info("roadmap drafted", "title", draft.Title, "sections", len(draft.Sections))
	return result(messages, &draft, tokens), nil
}
