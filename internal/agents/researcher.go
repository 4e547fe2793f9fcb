package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

type Researcher struct {
	base
}

func NewResearcher(llm LLM, logger *slog.Logger) *Researcher {
	return &Researcher{base{name: "researcher", llm: llm, system: researchPrompt, maxTokens: 4096, logger: logger}}
}

// Invoke turns the planner's to-do list into research modules.
func (r *Researcher) Invoke(ctx context.Context, input any) (Result, error) {
	var report ResearchReport
	messages, tokens, err := r.call(ctx, input, "", func(raw string) (err error) {
		report, err = parseReport(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	report.number()

	r.logger.Info("research complete", "modules", len(report))
	return result(messages, report, tokens), nil
}

// parseReport accepts an array of modules, an object wrapping one under
// "modules", or a single module object.
func parseReport(raw string) (ResearchReport, error) {
	var list []ResearchModule
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return ResearchReport(list), nil
	}

	var wrapped struct {
		Modules []ResearchModule `json:"modules"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && len(wrapped.Modules) > 0 {
		return ResearchReport(wrapped.Modules), nil
	}

	var single ResearchModule
	if err := json.Unmarshal([]byte(raw), &single); err != nil {
		return nil, err
	}
	if single.Title == "" && len(single.Resources) == 0 {
		return nil, fmt.Errorf("no research modules in response")
	}
	return ResearchReport{single}, nil
}
