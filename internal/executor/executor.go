package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaiso/Taskq/internal/domain"
	"github.com/shaiso/Taskq/internal/task"
	"github.com/shaiso/Taskq/internal/telemetry"
)

// Report — отчёт изоляционной единицы об одном выполнении.
type Report struct {
	Outcome domain.Outcome
	Err     error
}

// Backend — изоляционная единица, в которой выполняется тело task.
type Backend interface {
	// Start поднимает единицу.
	Start(ctx context.Context) error

	// Run выполняет envelope с потолком limit (0 — без ограничения).
	// Report возвращается всегда. Ошибка означает, что единица больше
	// непригодна (крах или принудительный таймаут) и должна быть
	// перезапущена через Restart.
	Run(ctx context.Context, env domain.Envelope, limit time.Duration) (Report, error)

	// Restart заменяет сломанную единицу новой.
	Restart(ctx context.Context) error

	// Close останавливает единицу.
	Close() error
}

// Result — исход одного envelope, возвращаемый планировщику.
type Result struct {
	Token    domain.AckToken
	Outcome  domain.Outcome
	Err      error
	Duration time.Duration
}

// Config — конфигурация Executor.
type Config struct {
	// Registry — реестр task (для потолка времени выполнения).
	Registry *task.Registry

	// Backend — изоляционная единица.
	Backend Backend

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

type job struct {
	ctx   context.Context
	token domain.AckToken
	env   domain.Envelope
}

type reply struct {
	res Result
	err error
}

// Executor — актор, выполняющий по одному envelope за раз.
type Executor struct {
	reg     *task.Registry
	backend Backend
	logger  *slog.Logger
	metrics *telemetry.Metrics

	in   chan job
	out  chan reply
	done chan struct{}

	ctx       context.Context
	started   atomic.Bool
	busy      atomic.Bool
	restarts  atomic.Int64
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New создаёт Executor.
func New(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = task.NewRegistry()
	}

	return &Executor{
		reg:     cfg.Registry,
		backend: cfg.Backend,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		in:      make(chan job, 1),
		out:     make(chan reply, 1),
		done:    make(chan struct{}),
	}
}

// Start запускает изоляционную единицу и цикл актора.
func (e *Executor) Start(ctx context.Context) error {
	if e.backend == nil {
		return fmt.Errorf("%w: no backend configured", ErrUnitNotStarted)
	}
	if err := e.backend.Start(ctx); err != nil {
		return fmt.Errorf("start executor unit: %w", err)
	}

	e.ctx = ctx
	e.started.Store(true)

	e.wg.Add(1)
	go e.loop()

	e.logger.Info("executor started")
	return nil
}

// Execute передаёт envelope в единицу и ждёт исход.
//
// Result валиден всегда, кроме ErrBusy, ErrUnitNotStarted, ErrClosed и
// ErrInterrupted (пустой Token). Ненулевая ошибка с валидным Result
// означает, что envelope получил исход, но единицу не удалось
// перезапустить.
func (e *Executor) Execute(ctx context.Context, token domain.AckToken, env domain.Envelope) (Result, error) {
	if !e.started.Load() {
		return Result{}, ErrUnitNotStarted
	}
	if !e.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer e.busy.Store(false)

	// Закрытый executor не даёт исхода: сообщение остаётся у брокера.
	closed := Result{Outcome: domain.OutcomeFailed, Err: ErrClosed}

	select {
	case e.in <- job{ctx: ctx, token: token, env: env}:
	case <-e.done:
		return closed, ErrClosed
	}

	select {
	case r := <-e.out:
		return r.res, r.err
	case <-e.done:
		return closed, ErrClosed
	}
}

// InFlight возвращает количество envelope внутри executor'а (0 или 1).
func (e *Executor) InFlight() int {
	if e.busy.Load() {
		return 1
	}
	return 0
}

// Restarts возвращает количество перезапусков единицы.
func (e *Executor) Restarts() int64 {
	return e.restarts.Load()
}

// Close останавливает актор и единицу. Повторный вызов безопасен.
func (e *Executor) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)
		if e.backend != nil {
			err = e.backend.Close()
		}
		e.wg.Wait()
		e.logger.Info("executor stopped")
	})
	return err
}

func (e *Executor) loop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			return
		case j := <-e.in:
			res, err := e.process(j)
			e.out <- reply{res: res, err: err}
		}
	}
}

// process выполняет один job и при необходимости перезапускает единицу.
func (e *Executor) process(j job) (Result, error) {
	var limit time.Duration
	if t, err := e.reg.Resolve(j.env.Task); err == nil {
		limit = t.MaxRunTime
	}

	start := time.Now()
	rep, unitErr := e.backend.Run(j.ctx, j.env, limit)

	if interrupted(j.ctx, rep) {
		return e.interrupt(j, unitErr)
	}

	res := Result{
		Token:    j.token,
		Outcome:  rep.Outcome,
		Err:      rep.Err,
		Duration: time.Since(start),
	}
	e.metrics.ObserveTask(j.env.Task, res.Outcome.String(), res.Duration)

	if unitErr == nil {
		return res, nil
	}

	res.Outcome = domain.OutcomeFailed
	if res.Err == nil {
		res.Err = unitErr
	}

	reason := "crash"
	log := e.logger.With(
		"task", j.env.Task,
		"envelope_id", j.env.ID,
		"args", j.env.Args,
		"kwargs", j.env.Kwargs,
		"outcome", res.Outcome.String(),
	)
	if errors.Is(unitErr, task.ErrTimeout) {
		reason = "timeout"
		log.Error("task exceeded max run time, restarting executor unit",
			"limit", limit.String(),
			"error", unitErr,
		)
	} else {
		log.Error("executor unit crashed, restarting",
			"error", unitErr,
		)
	}

	if err := e.restart(reason); err != nil {
		return res, err
	}
	return res, nil
}

// interrupted сообщает, что неуспешный исход вызван отменой ctx
// вызывающего, а не самой task. SUCCESS и REJECTED остаются в силе:
// их действия не теряют сообщение.
func interrupted(ctx context.Context, rep Report) bool {
	return ctx.Err() != nil && rep.Outcome == domain.OutcomeFailed
}

// interrupt возвращает Result без токена: worker не трогает сообщение.
// Убитую единицу перезапускаем, если executor ещё работает.
func (e *Executor) interrupt(j job, unitErr error) (Result, error) {
	e.logger.Warn("task interrupted, message left for redelivery",
		"task", j.env.Task,
		"envelope_id", j.env.ID,
		"cause", context.Cause(j.ctx),
	)

	if unitErr != nil {
		if err := e.restart("interrupt"); err != nil {
			return Result{}, err
		}
	}
	return Result{}, fmt.Errorf("%w: %s: %w", ErrInterrupted, j.env.Task, context.Cause(j.ctx))
}

// restart перезапускает единицу. При закрытии executor'а ничего не делает.
func (e *Executor) restart(reason string) error {
	if e.ctx.Err() != nil {
		e.logger.Info("executor unit restart skipped, shutting down", "reason", reason)
		return nil
	}

	e.restarts.Add(1)
	e.metrics.ExecutorRestarted(reason)

	if err := e.backend.Restart(e.ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRestartFailed, err)
	}
	e.logger.Warn("executor unit restarted",
		"reason", reason,
		"restarts", e.restarts.Load(),
	)
	return nil
}
