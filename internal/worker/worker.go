package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Taskq/internal/domain"
	"github.com/shaiso/Taskq/internal/executor"
	"github.com/shaiso/Taskq/internal/telemetry"
)

// Queue — адаптер брокера, которым владеет worker.
type Queue interface {
	FetchOne(ctx context.Context, queue string) (domain.Delivery, bool, error)
	Ack(ctx context.Context, token domain.AckToken) error
	Reject(ctx context.Context, token domain.AckToken) error
	Discard(ctx context.Context, token domain.AckToken) error
	IdleSleep(ctx context.Context, d time.Duration)
}

// Executor выполняет один envelope и возвращает исход.
type Executor interface {
	Execute(ctx context.Context, token domain.AckToken, env domain.Envelope) (executor.Result, error)
}

// Journal сохраняет запись об обработанном envelope.
type Journal interface {
	Record(ctx context.Context, e domain.Execution) error
}

// Config — конфигурация Worker.
type Config struct {
	// Queue — адаптер брокера (обязательно).
	Queue Queue

	// QueueName — очередь, из которой забираются сообщения.
	QueueName string

	// Executor — изолированный исполнитель (обязательно).
	Executor Executor

	// Limits — пороги допуска.
	Limits Limits

	// Load — источник load average (nil — перегрузка не проверяется).
	Load LoadSampler

	// Journal — журнал выполнений (опционально).
	Journal Journal

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Worker — главный цикл: допуск → fetch → выполнение → ack.
//
// Цикл строго последовательный: между fetch и settle находится не более
// одного сообщения. Поля счётчиков пишет только цикл; Status читает их
// атомарно из любых горутин.
type Worker struct {
	queue     Queue
	queueName string
	exec      Executor
	limits    Limits
	load      LoadSampler
	journal   Journal
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	hostname  string

	now func() time.Time

	running       atomic.Bool
	stopRequested atomic.Bool
	startedAt     atomic.Int64
	processed     atomic.Int64
	overloaded    atomic.Bool
	lastLoad      atomic.Uint64
	current       atomic.Pointer[Current]

	overloadStreak int
}

// New создаёт Worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Queue == nil {
		return nil, ErrNoQueue
	}
	if cfg.Executor == nil {
		return nil, ErrNoExecutor
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "taskq"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hostname, _ := os.Hostname()

	return &Worker{
		queue:     cfg.Queue,
		queueName: cfg.QueueName,
		exec:      cfg.Executor,
		limits:    cfg.Limits.resolved(),
		load:      cfg.Load,
		journal:   cfg.Journal,
		metrics:   cfg.Metrics,
		logger:    telemetry.WithQueue(logger, cfg.QueueName),
		hostname:  hostname,
		now:       time.Now,
	}, nil
}

// Run выполняет главный цикл до остановки.
//
// Возвращает nil при штатной остановке (Stop, лимиты, отмена ctx) и
// ошибку адаптера брокера или executor'а, которая фатальна для worker'а.
// Stop и лимиты срабатывают только на границе итерации. Отмена ctx
// прерывает текущую task: её сообщение не подтверждается и остаётся
// брокеру для передоставки.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.running.Store(false)

	w.startedAt.Store(w.now().UnixNano())
	w.logger.Info("worker started",
		"max_run_time", w.limits.MaxRunTime.String(),
		"max_tasks", w.limits.MaxTasks,
		"max_load", w.limits.MaxLoad,
	)

	for w.runnable(ctx) {
		if w.checkOverload() {
			w.queue.IdleSleep(ctx, OverloadSleep)
			continue
		}

		d, ok, err := w.queue.FetchOne(ctx, w.queueName)
		if err != nil {
			return fmt.Errorf("fetch from %s: %w", w.queueName, err)
		}
		if !ok {
			w.metrics.EmptyPoll()
			w.queue.IdleSleep(ctx, EmptySleep)
			continue
		}

		if err := w.process(ctx, d); err != nil {
			return err
		}
	}

	w.logger.Info("worker stopped", "processed", w.processed.Load())
	return nil
}

// Stop просит цикл завершиться на следующей границе итерации.
// Безопасен из любой горутины и обработчика сигналов, идемпотентен.
func (w *Worker) Stop() {
	w.requestStop("stop requested")
}

func (w *Worker) requestStop(reason string) {
	if w.stopRequested.CompareAndSwap(false, true) {
		w.logger.Info("worker stopping", "reason", reason)
	}
}

// runnable проверяет лимиты и возвращает false, если запрошена остановка.
func (w *Worker) runnable(ctx context.Context) bool {
	switch {
	case ctx.Err() != nil:
		w.requestStop("context cancelled")
	case w.limits.runTimeExceeded(w.elapsed()):
		w.requestStop("max_run_time reached")
	case w.limits.tasksExhausted(w.processed.Load()):
		w.requestStop("max_tasks reached")
	}
	return !w.stopRequested.Load()
}

// checkOverload сравнивает load average с MaxLoad.
// Ошибка чтения не считается перегрузкой.
func (w *Worker) checkOverload() bool {
	if w.load == nil {
		return false
	}

	load, err := w.load.Load1()
	if err != nil {
		w.logger.Warn("load average unavailable, overload check skipped", "error", err)
		return false
	}

	over := load > w.limits.MaxLoad
	w.lastLoad.Store(math.Float64bits(load))
	w.overloaded.Store(over)
	w.metrics.LoadSampled(load, over)

	if !over {
		if w.overloadStreak >= OverloadAlertAfter {
			w.logger.Info("load back below max_load", "load", load, "max_load", w.limits.MaxLoad)
		}
		w.overloadStreak = 0
		return false
	}

	w.overloadStreak++
	if w.overloadStreak == OverloadAlertAfter {
		w.logger.Warn("worker overloaded, not fetching",
			"load", load,
			"max_load", w.limits.MaxLoad,
			"samples", w.overloadStreak,
		)
	} else {
		w.logger.Debug("load above max_load, sleeping", "load", load, "max_load", w.limits.MaxLoad)
	}
	return true
}

// process выполняет одно сообщение и применяет действие из таблицы.
func (w *Worker) process(ctx context.Context, d domain.Delivery) error {
	startedAt := w.now()
	w.current.Store(&Current{
		EnvelopeID: d.Envelope.ID,
		Task:       d.Envelope.Task,
		StartedAt:  startedAt,
	})
	defer w.current.Store(nil)

	res, execErr := w.exec.Execute(ctx, d.Token, d.Envelope)
	if execErr != nil && res.Token == "" {
		// Исхода нет: сообщение остаётся у брокера и будет передоставлено.
		if errors.Is(execErr, executor.ErrInterrupted) && ctx.Err() != nil {
			w.logger.Warn("task interrupted by shutdown, message not settled",
				"task", d.Envelope.Task,
				"envelope_id", d.Envelope.ID,
			)
			return nil
		}
		return fmt.Errorf("execute %s: %w", d.Envelope.Task, execErr)
	}

	action := ActionFor(res.Outcome)
	if err := settle(ctx, w.queue, action, d.Token); err != nil {
		return fmt.Errorf("%s %s: %w", action, d.Envelope.Task, err)
	}
	w.processed.Add(1)

	w.logger.Debug("envelope settled",
		"task", d.Envelope.Task,
		"envelope_id", d.Envelope.ID,
		"outcome", res.Outcome.String(),
		"action", string(action),
		"duration", res.Duration.String(),
	)

	w.record(ctx, d, res, action, startedAt)

	if execErr != nil {
		return fmt.Errorf("executor: %w", execErr)
	}
	return nil
}

// record пишет запись в журнал. Ошибки журнала не фатальны.
func (w *Worker) record(ctx context.Context, d domain.Delivery, res executor.Result, action Action, startedAt time.Time) {
	if w.journal == nil {
		return
	}

	e := domain.Execution{
		ID:         uuid.New().String(),
		EnvelopeID: d.Envelope.ID,
		Task:       d.Envelope.Task,
		Queue:      w.queueName,
		Args:       d.Envelope.Args,
		Kwargs:     d.Envelope.Kwargs,
		Outcome:    res.Outcome,
		Action:     string(action),
		Worker:     w.hostname,
		StartedAt:  startedAt,
		Duration:   res.Duration,
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}

	if err := w.journal.Record(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Warn("failed to record execution",
			"envelope_id", d.Envelope.ID,
			"error", err,
		)
	}
}

func (w *Worker) elapsed() time.Duration {
	return w.now().Sub(time.Unix(0, w.startedAt.Load()))
}
