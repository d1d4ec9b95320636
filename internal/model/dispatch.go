package model

import "time"

// Dispatch kinds.
const (
	DispatchAutomatic = "automatic"
	DispatchManual    = "manual"
	DispatchInitial   = "initial"
)

// Dispatch states.
const (
	DispatchSending = "sending"
	DispatchSent    = "sent"
	DispatchFailed  = "failed"
)

// Dispatch is one attempt to email a shopper about a cart record.
type Dispatch struct {
	ID          string     `json:"id"`
	RecordID    int64      `json:"record_id"`
	Kind        string     `json:"kind"`
	State       string     `json:"state"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}
