package api

import (
	"net/http"

	"github.com/shaiso/Taskq/internal/worker"
)

// GetWorker возвращает снимок состояния worker'а.
// GET /api/v1/worker
func (h *Handler) GetWorker(w http.ResponseWriter, _ *http.Request) {
	if h.worker == nil {
		Unavailable(w, "worker is not attached")
		return
	}
	Success(w, WorkerFromStatus(h.worker.Status()))
}

// StopWorker просит worker остановиться на границе цикла.
// Текущее выполнение не прерывается.
// POST /api/v1/worker/stop
func (h *Handler) StopWorker(w http.ResponseWriter, _ *http.Request) {
	if h.worker == nil {
		Unavailable(w, "worker is not attached")
		return
	}

	st := h.worker.Status()
	if !st.Running {
		Conflict(w, "worker is not running")
		return
	}

	h.worker.Stop()
	h.logger.Warn("worker stop requested via api")

	Accepted(w, WorkerFromStatus(h.worker.Status()))
}

// WorkerFromStatus конвертирует worker.Status в ответ API.
func WorkerFromStatus(s worker.Status) WorkerResponse {
	resp := WorkerResponse{
		Queue:         s.Queue,
		Hostname:      s.Hostname,
		Running:       s.Running,
		StopRequested: s.StopRequested,
		Uptime:        s.Uptime,
		Processed:     s.Processed,
		Overloaded:    s.Overloaded,
		Load:          s.Load,
		Limits: LimitsResponse{
			MaxRunTimeSec: s.Limits.MaxRunTime.Seconds(),
			MaxTasks:      s.Limits.MaxTasks,
			MaxLoad:       s.Limits.MaxLoad,
		},
	}
	if !s.StartedAt.IsZero() {
		startedAt := s.StartedAt
		resp.StartedAt = &startedAt
	}
	if s.Current != nil {
		resp.Current = &CurrentResponse{
			EnvelopeID: s.Current.EnvelopeID,
			Task:       s.Current.Task,
			StartedAt:  s.Current.StartedAt,
		}
	}
	return resp
}
