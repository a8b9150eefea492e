package publishers

import (
	"encoding/json"
	"time"
)

// Event represents the outcome of one dispatched call, published downstream.
type Event struct {
	CallID       string          `json:"call_id"`
	CallName     string          `json:"call_name"`
	URL          string          `json:"url"`
	Mode         string          `json:"mode"`
	Success      bool            `json:"success"`
	StatusCode   int             `json:"status_code,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	DispatchedAt time.Time       `json:"dispatched_at"`
}

// NewEvent constructs an Event for the given call.
func NewEvent(callID, callName, url, mode string) Event {
	return Event{
		CallID:       callID,
		CallName:     callName,
		URL:          url,
		Mode:         mode,
		DispatchedAt: time.Now().UTC(),
	}
}
