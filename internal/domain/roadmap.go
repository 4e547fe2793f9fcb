package domain

type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

type TopicStatus string

const (
	TopicNotStarted TopicStatus = "not_started"
	TopicInProgress TopicStatus = "in_progress"
	TopicCompleted  TopicStatus = "completed"
)

// Roadmap is the learning plan produced by curation. JSON names match the
// frontend CourseRoadmap shape.
type Roadmap struct {
	ID                     string    `json:"id,omitempty"`
	Title                  string    `json:"title"`
	Objective              string    `json:"objective"`
	Description            string    `json:"description"`
	Level                  Level     `json:"level"`
	TotalEstimatedDuration string    `json:"totalEstimatedDuration"`
	Sections               []Section `json:"sections"`
}

type Section struct {
	ID          string  `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Topics      []Topic `json:"topics"`
}

type Topic struct {
	ID                string      `json:"id,omitempty"`
	Title             string      `json:"title"`
	Description       string      `json:"description"`
	EstimatedDuration string      `json:"estimatedDuration"`
	Links             []string    `json:"links"`
	Status            TopicStatus `json:"status,omitempty"`
}

// PolicyHit is one excerpt returned by the policy document search.
type PolicyHit struct {
	Content        string  `json:"content"`
	SourceDocument string  `json:"source_document"`
	Section        string  `json:"section"`
	RelevanceScore float64 `json:"relevance_score"`
}
