package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/shaiso/Taskq/internal/client"
)

// ListTasks возвращает имена зарегистрированных task.
// GET /api/v1/tasks
func (h *Handler) ListTasks(w http.ResponseWriter, _ *http.Request) {
	names := []string{}
	if h.tasks != nil {
		names = h.tasks()
	}
	List(w, names, len(names))
}

// SendTask отправляет task в очередь.
// POST /api/v1/tasks/{name}/send
func (h *Handler) SendTask(w http.ResponseWriter, r *http.Request) {
	if h.sender == nil {
		NotFound(w, "sending is disabled")
		return
	}

	name := r.PathValue("name")

	var req SendTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid JSON body")
		return
	}

	var opts []client.SendOption
	if req.Queue != "" {
		opts = append(opts, client.ToQueue(req.Queue))
	}

	env, err := h.sender.Send(r.Context(), name, req.Args, req.Kwargs, opts...)
	if HandleError(w, h.logger, err) {
		return
	}

	Accepted(w, SendTaskResponse{
		EnvelopeID: env.ID,
		Task:       env.Task,
		Queue:      h.sender.QueueFor(name, opts...),
	})
}
