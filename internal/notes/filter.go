package notes

import (
	"fmt"
	"strings"
)

// FilterAll selects notes of every topic.
const FilterAll = "All"

// Filter narrows a newest-first note listing the way the dashboard does.
type Filter struct {
	// Topic is FilterAll or a topic label; empty means FilterAll.
	Topic string
	// Search is matched case-insensitively against transcription and summary.
	Search string
}

// NewFilter validates the topic selector.
func NewFilter(topic, search string) (Filter, error) {
	selector := strings.TrimSpace(topic)
	if selector == "" || strings.EqualFold(selector, FilterAll) {
		return Filter{Topic: FilterAll, Search: search}, nil
	}
	parsed, err := ParseTopic(selector)
	if err != nil {
		return Filter{}, fmt.Errorf("filter: %w", err)
	}
	return Filter{Topic: parsed.String(), Search: search}, nil
}

// Apply returns the matching notes in their original order.
func (f Filter) Apply(all []Note) []Note {
	term := strings.ToLower(f.Search)
	matched := make([]Note, 0, len(all))
	for _, note := range all {
		if f.Topic != "" && f.Topic != FilterAll && note.Topic.String() != f.Topic {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(note.Transcription), term) &&
			!strings.Contains(strings.ToLower(note.Summary), term) {
			continue
		}
		matched = append(matched, note)
	}
	return matched
}

// PresentTopics lists the distinct topics in order of first appearance.
func PresentTopics(all []Note) []Topic {
	seen := make(map[Topic]struct{}, len(Topics))
	topics := make([]Topic, 0, len(Topics))
	for _, note := range all {
		if _, ok := seen[note.Topic]; ok {
			continue
		}
		seen[note.Topic] = struct{}{}
		topics = append(topics, note.Topic)
	}
	return topics
}
