package agents

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/domain"
)

// Delegate tags a planner work item can carry.
const (
	DelegateInternetSearch = "internet_search_agent"
	DelegateVideoSearch    = "search_youtube_videos"
	DelegatePolicySearch   = "company_policy_search"
)

var delegateAliases = map[string]string{
	"internet_search": DelegateInternetSearch,
	"video_search":    DelegateVideoSearch,
	"policy_search":   DelegatePolicySearch,
}

// CanonicalDelegate maps short delegate names to their canonical tag.
// Unknown tags are returned unchanged.
func CanonicalDelegate(tag string) string {
	tag = strings.TrimSpace(tag)
	if c, ok := delegateAliases[tag]; ok {
		return c
	}
	return tag
}

func IsPolicyDelegate(tag string) bool {
	return CanonicalDelegate(tag) == DelegatePolicySearch
}

type WorkItem struct {
	Description string `json:"description"`
	Agent       string `json:"agent"`
}

// TodoList is the planner's structured output.
type TodoList []WorkItem

func (t TodoList) Dump() any { return dump([]WorkItem(t)) }

type PolicySource struct {
	Document  string `json:"document"`
	Section   string `json:"section"`
	Relevance string `json:"relevance"`
}

type PolicyResearch struct {
	Query   string         `json:"query"`
	Answer  string         `json:"answer"`
	Sources []PolicySource `json:"sources"`
}

func (p *PolicyResearch) Dump() any { return dump(p) }

type ResourceType string

const (
	ResourceArticle  ResourceType = "article"
	ResourceVideo    ResourceType = "video"
	ResourceTutorial ResourceType = "tutorial"
	ResourceOther    ResourceType = "other"
)

type Resource struct {
	ResourceType ResourceType `json:"resource_type"`
	Link         string       `json:"link"`
	Title        string       `json:"title"`
}

// ModuleNumber accepts either a JSON string or number.
type ModuleNumber string

func (m *ModuleNumber) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*m = ModuleNumber(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*m = ModuleNumber(n.String())
	return nil
}

type ResearchModule struct {
	Module    ModuleNumber `json:"module"`
	Title     string       `json:"title"`
	Content   string       `json:"content"`
	Resources []Resource   `json:"resources"`
}

// ResearchReport is the researcher's structured output.
type ResearchReport []ResearchModule

func (r ResearchReport) Dump() any { return dump([]ResearchModule(r)) }

// number the modules that came back without one.
func (r ResearchReport) number() {
	for i := range r {
		if r[i].Module == "" {
			r[i].Module = ModuleNumber(strconv.Itoa(i + 1))
		}
	}
}

// RoadmapDraft is the roadmap builder's structured output, before ids are
// assigned.
type RoadmapDraft domain.Roadmap

func (r *RoadmapDraft) Dump() any { return dump(r) }
