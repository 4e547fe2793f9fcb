package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/domain"
)

// PolicySearcher looks up excerpts from the company policy documents.
type PolicySearcher interface {
	SearchPolicies(ctx context.Context, query string, limit int) ([]domain.PolicyHit, error)
}

// PolicyInput is what the curation run hands the policy researcher.
type PolicyInput struct {
	ChatData    domain.ChatData `json:"chat_data"`
	PolicyItems []WorkItem      `json:"policy_items"`
}

type PolicyResearcher struct {
	base
	search PolicySearcher
	limit  int
}

func NewPolicyResearcher(llm LLM, search PolicySearcher, limit int, logger *slog.Logger) *PolicyResearcher {
	if limit <= 0 {
		limit = 5
	}
	return &PolicyResearcher{
		base:   base{name: "policy_researcher", llm: llm, system: policyPrompt, maxTokens: 2048, logger: logger},
		search: search,
		limit:  limit,
	}
}

// Invoke searches the policy documents for every policy work item and asks
// the model to answer from the hits.
func (p *PolicyResearcher) Invoke(ctx context.Context, input any) (Result, error) {
	in, err := decodePolicyInput(input)
	if err != nil {
		return nil, err
	}

	queries := make([]string, 0, len(in.PolicyItems))
	for _, item := range in.PolicyItems {
		if q := strings.TrimSpace(item.Description); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 && in.ChatData.InitialMessage != "" {
		queries = append(queries, in.ChatData.InitialMessage)
	}

	seen := make(map[string]bool)
	var hits []domain.PolicyHit
	for _, q := range queries {
		found, err := p.search.SearchPolicies(ctx, q, p.limit)
		if err != nil {
			return nil, fmt.Errorf("search policies: %w", err)
		}
		for _, h := range found {
			key := h.SourceDocument + "\x00" + h.Content
			if seen[key] {
				continue
			}
			seen[key] = true
			hits = append(hits, h)
		}
	}

	p.logger.Info("policy search complete", "queries", len(queries), "hits", len(hits))

	var research PolicyResearch
	messages, tokens, err := p.call(ctx, in, formatExcerpts(hits), func(raw string) error {
		research = PolicyResearch{}
		return json.Unmarshal([]byte(raw), &research)
	})
	if err != nil {
		return nil, err
	}
	if research.Query == "" {
		research.Query = strings.Join(queries, "; ")
	}
	return result(messages, &research, tokens), nil
}

func decodePolicyInput(input any) (PolicyInput, error) {
	if in, ok := input.(PolicyInput); ok {
		return in, nil
	}
	b, err := json.Marshal(input)
	if err != nil {
		return PolicyInput{}, fmt.Errorf("marshal policy input: %w", err)
	}
	var in PolicyInput
	if err := json.Unmarshal(b, &in); err != nil {
		return PolicyInput{}, fmt.Errorf("decode policy input: %w", err)
	}
	return in, nil
}

func formatExcerpts(hits []domain.PolicyHit) string {
	if len(hits) == 0 {
		return "Policy excerpts: none found."
	}
	var b strings.Builder
	b.WriteString("Policy excerpts:\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "\n[%d] source: %s | section: %s | score: %.3f\n%s\n", i+1, h.SourceDocument, h.Section, h.RelevanceScore, h.Content)
	}
	return b.String()
}
