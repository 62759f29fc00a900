package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shaiso/Taskq/internal/repo"
)

// ListExecutions возвращает последние записи журнала.
// GET /api/v1/executions?task=...&outcome=...&limit=...
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	if h.executions == nil {
		NotFound(w, "execution journal is disabled")
		return
	}

	q := r.URL.Query()
	filter := repo.ExecutionFilter{
		Task:    q.Get("task"),
		Outcome: strings.ToUpper(q.Get("outcome")),
		Limit:   50,
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	executions, err := h.executions.ListRecent(r.Context(), filter)
	if HandleError(w, h.logger, err) {
		return
	}

	result := make([]ExecutionResponse, len(executions))
	for i, e := range executions {
		result[i] = ExecutionFromDomain(e)
	}

	List(w, result, len(result))
}
