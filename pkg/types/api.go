// Package types holds the bodies exchanged between the daemon and its
// clients.
package types

// Status is returned by GET /status.
type Status struct {
	Transport     string `json:"transport"`
	Pattern       string `json:"pattern"`
	Inbound       string `json:"inbound"`
	Outbound      string `json:"outbound"`
	Bridge        string `json:"bridge"`
	TickerRunning bool   `json:"tickerRunning"`
	States        int    `json:"states"`
	Listeners     int    `json:"listeners"`
}

// FrameRequest is the body of POST /frames.
type FrameRequest struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// FrameResponse is returned by POST /frames.
type FrameResponse struct {
	Reply   string `json:"reply"`
	StateID string `json:"stateId,omitempty"`
	Value   string `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

// LockLabels is the body of PUT /lock-labels.
type LockLabels struct {
	True  string `json:"true"`
	False string `json:"false"`
}
