package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Taskq/internal/client"
	"github.com/shaiso/Taskq/internal/domain"
	"github.com/shaiso/Taskq/internal/repo"
	"github.com/shaiso/Taskq/internal/worker"
)

// WorkerControl — управление запущенным worker'ом.
type WorkerControl interface {
	Status() worker.Status
	Stop()
}

// ExecutionLister — чтение журнала выполнений.
type ExecutionLister interface {
	ListRecent(ctx context.Context, filter repo.ExecutionFilter) ([]domain.Execution, error)
}

// TaskSender — регистрация и отправка task.
type TaskSender interface {
	Send(ctx context.Context, name string, args []any, kwargs map[string]any, opts ...client.SendOption) (domain.Envelope, error)
	QueueFor(name string, opts ...client.SendOption) string
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	worker     WorkerControl
	executions ExecutionLister
	sender     TaskSender
	tasks      func() []string
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Worker WorkerControl

	// Executions — журнал (nil — журнал выключен).
	Executions ExecutionLister

	// Sender — отправка task через API (nil — endpoint выключен).
	Sender TaskSender

	// Tasks — имена зарегистрированных task.
	Tasks func() []string

	// Gatherer — источник /metrics (default: prometheus.DefaultGatherer).
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Handler{
		worker:     cfg.Worker,
		executions: cfg.Executions,
		sender:     cfg.Sender,
		tasks:      cfg.Tasks,
		gatherer:   cfg.Gatherer,
		logger:     cfg.Logger,
	}
}

// Healthz — liveness probe.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
