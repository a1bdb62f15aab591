package events

import "encoding/json"

// Event name constants
const (
	StateUpdated  = "state.updated"
	FrameReceived = "frame.received"
)

// Event is a generic event published by the daemon.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// StateUpdatedEvent is the typed payload for state.updated.
type StateUpdatedEvent struct {
	ID    string `json:"id"`
	Value string `json:"value"`
	Ts    int64  `json:"ts"`
}

// FrameReceivedEvent is the typed payload for frame.received.
type FrameReceivedEvent struct {
	Topic string `json:"topic"`
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
	Ts    int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.StateUpdatedEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.ID, payload.Value)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
