package db

import "time"

// CallEntry is a row in the call_journal table.
type CallEntry struct {
	ID         int64     `json:"id"`
	CallID     string    `json:"call_id"`
	Operation  string    `json:"operation"`
	Outcome    string    `json:"outcome"`
	Error      *string   `json:"error,omitempty"`
	DurationMs float64   `json:"duration_ms"`
	Originator string    `json:"originator"`
	StartedAt  time.Time `json:"started_at"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RecentCallsParams holds parameters for RecentCalls.
type RecentCallsParams struct {
	// Operation filters by operation name when set.
	Operation string
	Limit     int
}
