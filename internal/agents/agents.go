// Package agents wraps the LLM calls that make up roadmap curation. Each agent
// returns a Result shaped like a conversational agent transcript: the message
// list plus a typed structured_response.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/anthropic"
)

// LLM is the completion surface the agents need. *anthropic.Client
// satisfies it.
type LLM interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (anthropic.Completion, error)
}

// Agent is one pipeline stage. Input must be JSON-encodable; it becomes the
// user message.
type Agent interface {
	Invoke(ctx context.Context, input any) (Result, error)
}

// Result keys.
const (
	KeyMessages   = "messages"
	KeyStructured = "structured_response"
	KeyUsage      = "usage"
)

// Result is the raw return of an agent invocation.
type Result map[string]any

// Dumper is implemented by values that can render themselves as plain
// JSON-compatible records.
type Dumper interface {
	Dump() any
}

// Message is one entry of an agent transcript.
type Message struct {
	Role    string
	Content string
}

func (m Message) Dump() any {
	return map[string]any{"type": m.Role, "content": m.Content}
}

// dump converts a typed value to its plain form through a JSON round trip.
func dump(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Sprint(v)
	}
	return out
}

type base struct {
	name      string
	llm       LLM
	system    string
	maxTokens int
	logger    *slog.Logger
}

// call sends input to the model and hands the first JSON value in the reply
// that parse accepts to parse. It returns the transcript and the token usage.
func (b *base) call(ctx context.Context, input any, extra string, parse func(raw string) error) ([]Message, int, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal %s input: %w", b.name, err)
	}
	content := string(payload)
	if extra != "" {
		content += "\n\n" + extra
	}

	b.logger.Info("invoking agent", "agent", b.name, "input_len", len(content))

	completion, err := b.llm.Complete(ctx, b.system, []anthropic.Message{{Role: "user", Content: content}}, b.maxTokens)
	if err != nil {
		return nil, 0, fmt.Errorf("%s completion: %w", b.name, err)
	}

	if _, err := anthropic.ExtractJSON(completion.Text, parse); err != nil {
		b.logger.Error("agent returned no usable json", "agent", b.name, "error", err, "raw", completion.Text)
		return nil, 0, fmt.Errorf("parse %s response: %w", b.name, err)
	}

	messages := []Message{
		{Role: "human", Content: content},
		{Role: "ai", Content: completion.Text},
	}
	return messages, completion.Tokens(), nil
}

func result(messages []Message, structured Dumper, tokens int) Result {
	return Result{
		KeyMessages:   messages,
		KeyStructured: structured,
		KeyUsage:      map[string]any{"total_tokens": tokens},
	}
}
