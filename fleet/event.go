package fleet

import (
	json "github.com/goccy/go-json"
)

// Event is the unit carried by subscriber queues. Payload is encoded
// once at publish so every subscriber observes the same bytes
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEvent encode payload and wrap it with the event type
func NewEvent(eventType string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Data: data}, nil
}
