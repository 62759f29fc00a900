package domain

import "time"

// Execution — запись журнала об одном обработанном envelope.
type Execution struct {
	ID         string         `json:"id"`
	EnvelopeID string         `json:"envelope_id"`
	Task       string         `json:"task"`
	Queue      string         `json:"queue"`
	Args       []any          `json:"args"`
	Kwargs     map[string]any `json:"kwargs"`
	Outcome    Outcome        `json:"outcome"`
	Action     string         `json:"action"`
	Error      string         `json:"error,omitempty"`
	Worker     string         `json:"worker"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration_ns"`
}
