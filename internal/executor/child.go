package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/shaiso/Taskq/internal/task"
)

// ChildEnv — переменная окружения, по которой бинарник понимает, что он
// запущен как дочерний процесс executor'а.
const ChildEnv = "TASKQ_EXECUTOR_CHILD"

const (
	requestFD  = 3
	responseFD = 4
)

// IsChild сообщает, запущен ли текущий процесс как единица executor'а.
//
// main должен проверить это до разбора флагов и подключения к брокеру.
func IsChild() bool {
	return os.Getenv(ChildEnv) == "1"
}

// ServeChild обслуживает запросы родителя до закрытия канала запросов.
//
// Реестр должен совпадать с реестром родителя: task ищутся по имени.
func ServeChild(ctx context.Context, reg *task.Registry, logger *slog.Logger) error {
	in := os.NewFile(requestFD, "taskq-requests")
	out := os.NewFile(responseFD, "taskq-responses")
	if in == nil || out == nil {
		return fmt.Errorf("%w: handoff descriptors are missing", ErrUnitNotStarted)
	}
	defer in.Close()
	defer out.Close()

	return serve(ctx, reg, in, out, logger)
}

func serve(ctx context.Context, reg *task.Registry, r io.Reader, w io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("pid", os.Getpid())

	unit := NewInProcess(reg, logger, DefaultGrace)
	if err := unit.Start(ctx); err != nil {
		return err
	}
	defer unit.Close()

	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	logger.Debug("executor child ready")

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("executor child: request channel closed")
				return nil
			}
			return fmt.Errorf("decode request: %w", err)
		}

		limit := time.Duration(req.LimitMS) * time.Millisecond
		rep, unitErr := unit.Run(ctx, req.Envelope, limit)

		resp := response{
			ID:      req.Envelope.ID,
			Outcome: rep.Outcome,
		}
		if rep.Err != nil {
			resp.Error = rep.Err.Error()
		}
		if unitErr != nil {
			resp.Timeout = errors.Is(unitErr, task.ErrTimeout)
			resp.Broken = !resp.Timeout
		}

		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	}
}
