package agents

import (
	"context"
	"encoding/json"
	"log/slog"
)

// MaxWorkItems caps the planner's to-do list.
const MaxWorkItems = 5

type Planner struct {
	base
}

func NewPlanner(llm LLM, logger *slog.Logger) *Planner {
	return &Planner{base{name: "planner", llm: llm, system: plannerPrompt, maxTokens: 2048, logger: logger}}
}

// Invoke asks the model for a to-do list. Input is the chat data.
func (p *Planner) Invoke(ctx context.Context, input any) (Result, error) {
	var items TodoList
	messages, tokens, err := p.call(ctx, input, "", func(raw string) (err error) {
		items, err = parseTodoList(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(items) > MaxWorkItems {
		p.logger.Warn("planner returned too many items", "items", len(items), "kept", MaxWorkItems)
		items = items[:MaxWorkItems]
	}

	p.logger.Info("planner complete", "items", len(items))
	return result(messages, items, tokens), nil
}

// parseTodoList accepts a bare array or an object with an items array.
func parseTodoList(raw string) (TodoList, error) {
	var list []WorkItem
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return TodoList(list), nil
	}
	var wrapped struct {
		Items []WorkItem `json:"items"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil, err
	}
	return TodoList(wrapped.Items), nil
}
