package notes

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTopic indicates a topic label outside the closed enumeration.
var ErrUnknownTopic = errors.New("notes: unknown topic")

// Topic classifies a voice note.
type Topic string

const (
	TopicWork     Topic = "Work"
	TopicPersonal Topic = "Personal"
	TopicStudy    Topic = "Study"
	TopicOther    Topic = "Other"
)

// Topics lists every valid topic in display order.
var Topics = []Topic{TopicWork, TopicPersonal, TopicStudy, TopicOther}

// ParseTopic maps a label onto the enumeration. Surrounding whitespace and
// letter case are ignored; any other deviation is rejected.
func ParseTopic(raw string) (Topic, error) {
	trimmed := strings.TrimSpace(raw)
	for _, topic := range Topics {
		if strings.EqualFold(trimmed, string(topic)) {
			return topic, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTopic, raw)
}

// WantsNextSteps reports whether notes of this topic carry next steps and references.
func (t Topic) WantsNextSteps() bool {
	return t == TopicStudy || t == TopicWork
}

// String returns the topic label.
func (t Topic) String() string {
	return string(t)
}
