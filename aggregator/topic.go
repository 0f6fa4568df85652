package aggregator

import (
	"fmt"
	"regexp"
)

var topicRegex = regexp.MustCompile(`^([\w-]+)(?:\.(\w+))?(?:\..*)?$`)

// Topic represents an AMQP topic of the form <station>.<measurement type>
type Topic struct {
	topicRegex *regexp.Regexp

	Value string
}

func (t *Topic) match() ([]string, error) {
	matches := t.topicRegex.FindStringSubmatch(t.Value)

	if matches == nil {
		return nil, fmt.Errorf("Topic: '%s' does not match topic regex", t.Value)
	}

	return matches, nil
}

// GetStationID returns the StationID from the Topic value
func (t *Topic) GetStationID() (string, error) {
	matches, err := t.match()
	if err != nil {
		return "", err
	}

	return matches[1], nil
}

// GetMeasurementType returns the measurement type from the Topic value
func (t *Topic) GetMeasurementType() (string, error) {
	matches, err := t.match()
	if err != nil {
		return "", err
	}

	if matches[2] == "" {
		return "", fmt.Errorf("Topic: measurement type not found in '%s'", t.Value)
	}

	return matches[2], nil
}

// NewTopic constructs a new Topic
func NewTopic(value string) *Topic {
	return &Topic{
		topicRegex: topicRegex,
		Value:      value,
	}
}
