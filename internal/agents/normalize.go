package agents

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/kevalrajpalknight/proactive-onboarding-engine/internal/domain"
)

// Normalize converts a raw agent result into plain JSON-compatible records.
// Messages are dumped one by one, the structured response is dumped when it
// knows how, and every other key passes through.
func Normalize(r Result) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		switch k {
		case KeyMessages:
			if list, ok := asList(v); ok {
				msgs := make([]any, len(list))
				for i, m := range list {
					msgs[i] = dumpMessage(m)
				}
				out[k] = msgs
				continue
			}
			out[k] = v
		case KeyStructured:
			if d, ok := v.(Dumper); ok {
				out[k] = d.Dump()
				continue
			}
			out[k] = v
		default:
			out[k] = v
		}
	}
	return out
}

func asList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, false
	}
	list := make([]any, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list, true
}

func dumpMessage(m any) any {
	switch msg := m.(type) {
	case Dumper:
		return msg.Dump()
	case map[string]any:
		return msg
	case string:
		return msg
	default:
		return fmt.Sprint(msg)
	}
}

// ShapeKind names the form a planner's structured response arrived in.
type ShapeKind int

const (
	Unrecognized ShapeKind = iota
	ItemList
	KeyedItems
)

func (k ShapeKind) String() string {
	switch k {
	case ItemList:
		return "item_list"
	case KeyedItems:
		return "keyed_items"
	}
	return "unrecognized"
}

// WorkItems is the decoded planner output together with the shape it came in.
type WorkItems struct {
	Kind  ShapeKind
	Items []WorkItem
}

// DecodeWorkItems reads work items from a normalized structured response,
// which may be a bare list or an object with an "items" list. Entries that
// are not objects are skipped.
func DecodeWorkItems(structured any) WorkItems {
	if d, ok := structured.(Dumper); ok {
		structured = d.Dump()
	}
	switch v := structured.(type) {
	case []any:
		return WorkItems{Kind: ItemList, Items: decodeItems(v)}
	case map[string]any:
		if list, ok := v["items"].([]any); ok {
			return WorkItems{Kind: KeyedItems, Items: decodeItems(list)}
		}
	}
	return WorkItems{Kind: Unrecognized}
}

func decodeItems(list []any) []WorkItem {
	items := make([]WorkItem, 0, len(list))
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		desc, _ := m["description"].(string)
		agent, _ := m["agent"].(string)
		items = append(items, WorkItem{Description: desc, Agent: agent})
	}
	return items
}

// PolicyItems returns the items delegated to the company policy search.
func (w WorkItems) PolicyItems() []WorkItem {
	var out []WorkItem
	for _, item := range w.Items {
		if IsPolicyDelegate(item.Agent) {
			out = append(out, item)
		}
	}
	return out
}

var ErrNoStructuredResponse = errors.New("no structured_response returned")

// StructuredRoadmap decodes the roadmap from a normalized roadmap builder
// result.
func StructuredRoadmap(normalized map[string]any) (*domain.Roadmap, error) {
	v, ok := normalized[KeyStructured]
	if !ok || v == nil {
		return nil, ErrNoStructuredResponse
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal roadmap: %w", err)
	}
	var r domain.Roadmap
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode roadmap: %w", err)
	}
	if !r.Level.Valid() {
		r.Level = domain.LevelBeginner
	}
	return &r, nil
}

// PostProcess assigns a fresh id to the roadmap and to each section and
// topic, and marks topics without a status as not started. Running it twice
// assigns new ids.
func PostProcess(r *domain.Roadmap) *domain.Roadmap {
	r.ID = uuid.NewString()
	for i := range r.Sections {
		s := &r.Sections[i]
		s.ID = uuid.NewString()
		for j := range s.Topics {
			t := &s.Topics[j]
			t.ID = uuid.NewString()
			if t.Status == "" {
				t.Status = domain.TopicNotStarted
			}
			if t.Links == nil {
				t.Links = []string{}
			}
		}
		if s.Topics == nil {
			s.Topics = []domain.Topic{}
		}
	}
	if r.Sections == nil {
		r.Sections = []domain.Section{}
	}
	return r
}
