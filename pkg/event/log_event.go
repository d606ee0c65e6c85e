package event

import (
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
)

// LogEvent is a dispatch-ready request wrapping one serialized batch.
type LogEvent struct {
	URL      string `json:"url"`
	HTTPVerb string `json:"httpVerb"`
	Params   Batch  `json:"params"`
}

// NewLogEvent builds a POST request for the batch of events.
func NewLogEvent(url string, events []Event) LogEvent {
	return LogEvent{
		URL:      url,
		HTTPVerb: http.MethodPost,
		Params:   BuildBatch(events),
	}
}

// Body returns the JSON-encoded batch.
func (l LogEvent) Body() ([]byte, error) {
	body, err := json.Marshal(l.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}
	return body, nil
}

// Partition splits events into runs of equal context. Relative order within each
// partition is preserved; partitions are ordered by first appearance.
func Partition(events []Event) [][]Event {
	var (
		parts [][]Event
		index = make(map[Context]int)
	)
	for _, ev := range events {
		i, ok := index[ev.Context]
		if !ok {
			i = len(parts)
			index[ev.Context] = i
			parts = append(parts, nil)
		}
		parts[i] = append(parts[i], ev)
	}
	return parts
}
