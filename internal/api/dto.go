package api

import (
	"time"

	"github.com/shaiso/Taskq/internal/domain"
)

// WorkerResponse — ответ со снимком состояния worker'а.
type WorkerResponse struct {
	Queue         string          `json:"queue"`
	Hostname      string          `json:"hostname"`
	Running       bool            `json:"running"`
	StopRequested bool            `json:"stop_requested"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	Uptime        string          `json:"uptime,omitempty"`
	Processed     int64           `json:"processed"`
	Overloaded    bool            `json:"overloaded"`
	Load          float64         `json:"load"`
	Limits        LimitsResponse  `json:"limits"`
	Current       *CurrentResponse `json:"current,omitempty"`
}

// LimitsResponse — пороги допуска (0 — без ограничения).
type LimitsResponse struct {
	MaxRunTimeSec float64 `json:"max_run_time_sec"`
	MaxTasks      int64   `json:"max_tasks"`
	MaxLoad       float64 `json:"max_load"`
}

// CurrentResponse — выполняемый сейчас envelope.
type CurrentResponse struct {
	EnvelopeID string    `json:"envelope_id"`
	Task       string    `json:"task"`
	StartedAt  time.Time `json:"started_at"`
}

// ExecutionResponse — запись журнала.
type ExecutionResponse struct {
	ID         string         `json:"id"`
	EnvelopeID string         `json:"envelope_id"`
	Task       string         `json:"task"`
	Queue      string         `json:"queue"`
	Args       []any          `json:"args"`
	Kwargs     map[string]any `json:"kwargs"`
	Outcome    string         `json:"outcome"`
	Action     string         `json:"action"`
	Error      string         `json:"error,omitempty"`
	Worker     string         `json:"worker"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
}

// ExecutionFromDomain конвертирует domain.Execution в ответ API.
func ExecutionFromDomain(e domain.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:         e.ID,
		EnvelopeID: e.EnvelopeID,
		Task:       e.Task,
		Queue:      e.Queue,
		Args:       e.Args,
		Kwargs:     e.Kwargs,
		Outcome:    e.Outcome.String(),
		Action:     e.Action,
		Error:      e.Error,
		Worker:     e.Worker,
		StartedAt:  e.StartedAt,
		DurationMS: e.Duration.Milliseconds(),
	}
}

// SendTaskRequest — запрос на отправку task.
type SendTaskRequest struct {
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
	Queue  string         `json:"queue,omitempty"`
}

// SendTaskResponse — ответ об отправленном envelope.
type SendTaskResponse struct {
	EnvelopeID string `json:"envelope_id"`
	Task       string `json:"task"`
	Queue      string `json:"queue"`
}
