package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Probes и метрики без логирования запросов
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// Worker
	mux.Handle("GET /api/v1/worker", chain(http.HandlerFunc(h.GetWorker)))
	mux.Handle("POST /api/v1/worker/stop", chain(http.HandlerFunc(h.StopWorker)))

	// Executions
	mux.Handle("GET /api/v1/executions", chain(http.HandlerFunc(h.ListExecutions)))

	// Tasks
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))
	mux.Handle("POST /api/v1/tasks/{name}/send", chain(http.HandlerFunc(h.SendTask)))
}

// NewMux создаёт ServeMux со всеми маршрутами.
func (h *Handler) NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}
