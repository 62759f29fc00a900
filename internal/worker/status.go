package worker

import (
	"math"
	"time"
)

// Current — envelope, который сейчас выполняется.
type Current struct {
	EnvelopeID string    `json:"envelope_id"`
	Task       string    `json:"task"`
	StartedAt  time.Time `json:"started_at"`
}

// Status — снимок состояния worker'а.
type Status struct {
	Queue         string    `json:"queue"`
	Hostname      string    `json:"hostname"`
	Running       bool      `json:"running"`
	StopRequested bool      `json:"stop_requested"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	Uptime        string    `json:"uptime,omitempty"`
	Processed     int64     `json:"processed"`
	Overloaded    bool      `json:"overloaded"`
	Load          float64   `json:"load"`
	Limits        Limits    `json:"limits"`
	Current       *Current  `json:"current,omitempty"`
}

// Status возвращает снимок состояния. Безопасен из любой горутины.
func (w *Worker) Status() Status {
	s := Status{
		Queue:         w.queueName,
		Hostname:      w.hostname,
		Running:       w.running.Load(),
		StopRequested: w.stopRequested.Load(),
		Processed:     w.processed.Load(),
		Overloaded:    w.overloaded.Load(),
		Load:          math.Float64frombits(w.lastLoad.Load()),
		Limits:        w.limits,
		Current:       w.current.Load(),
	}

	if ns := w.startedAt.Load(); ns != 0 {
		s.StartedAt = time.Unix(0, ns).UTC()
		s.Uptime = w.now().Sub(s.StartedAt).Truncate(time.Second).String()
	}
	return s
}
