// Taskq Worker — выполняет task из очереди.
//
// Worker:
//   - Забирает по одному сообщению из RabbitMQ или Redis
//   - Выполняет task в изолированной единице (дочерний процесс или горутина)
//   - Подтверждает, возвращает или отбрасывает сообщение по исходу
//   - Останавливается по лимитам (max_run_time, max_tasks) или сигналу
//
// Workers масштабируются горизонтально: один процесс — одна task за раз.
//
// Тот же бинарник служит образом дочернего процесса executor'а.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/shaiso/Taskq/internal/api"
	"github.com/shaiso/Taskq/internal/broker"
	"github.com/shaiso/Taskq/internal/client"
	"github.com/shaiso/Taskq/internal/config"
	"github.com/shaiso/Taskq/internal/domain"
	"github.com/shaiso/Taskq/internal/executor"
	"github.com/shaiso/Taskq/internal/repo"
	"github.com/shaiso/Taskq/internal/task"
	"github.com/shaiso/Taskq/internal/tasks"
	"github.com/shaiso/Taskq/internal/telemetry"
	"github.com/shaiso/Taskq/internal/worker"
)

// version задаётся через ldflags при сборке.
var version = "dev"

// registry возвращает реестр task. Родитель и дочерний процесс
// должны строить его одинаково.
func registry() *task.Registry {
	reg := task.NewRegistry()
	tasks.Register(reg)
	return reg
}

func main() {
	if executor.IsChild() {
		os.Exit(runChild())
	}

	var cfgPath string

	rootCmd := &cobra.Command{
		Use:           "taskq-worker",
		Short:         "Taskq worker — executes queued tasks",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	f := rootCmd.Flags()
	f.StringVarP(&cfgPath, "config", "c", os.Getenv("TASKQ_CONFIG"), "Config file")
	f.String("broker", "", "Broker: amqp, redis or memory")
	f.String("queue", "", "Queue to consume")
	f.Bool("local", false, "Consume the host-local queue")
	f.String("isolation", "", "Executor isolation: process or inproc")
	f.Float64("max-run-time", 0, "Stop after this many seconds (0 = unlimited)")
	f.Int64("max-tasks", 0, "Stop after this many tasks (0 = unlimited)")
	f.Float64("max-load", 0, "Pause while load average exceeds this (0 = CPU count)")
	f.String("http-addr", "", "Admin API and metrics address")
	f.String("log-level", "", "DEBUG, INFO, WARN or ERROR")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// runChild обслуживает родительский executor до закрытия канала запросов.
func runChild() int {
	logger := telemetry.SetupLogger(os.Getenv("TASKQ_LOG_LEVEL"), os.Getenv("TASKQ_LOG_FORMAT"))

	// Ctrl-C приходит всей группе процессов; останавливает нас родитель.
	signal.Ignore(syscall.SIGINT)

	if err := executor.ServeChild(context.Background(), registry(), logger); err != nil {
		logger.Error("executor child failed", "error", err)
		return 1
	}
	return 0
}

func run(cfg *config.Config) error {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting taskq-worker", "version", version, "broker", cfg.Broker)

	// Отмена ctx — принудительная остановка (второй сигнал)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry()
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	queueName := cfg.Queue
	if cfg.Local {
		queueName = domain.LocalQueueName(queueName)
	}

	// Broker
	b, err := broker.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.Prepare(ctx, queueName); err != nil {
		return err
	}
	logger.Info("broker connected", "broker", b.Kind(), "queue", queueName)

	// Executor
	exec := executor.New(executor.Config{
		Registry: reg,
		Backend:  newBackend(cfg, reg, logger),
		Logger:   logger,
		Metrics:  metrics,
	})
	if err := exec.Start(ctx); err != nil {
		return err
	}
	defer exec.Close()

	// Журнал выполнений (опционально)
	var journal worker.Journal
	var executions api.ExecutionLister
	if cfg.DatabaseURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		execRepo := repo.NewExecutionRepo(pool)
		if err := execRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		journal = execRepo
		executions = execRepo
		logger.Info("execution journal enabled")
	}

	// Load average
	var load worker.LoadSampler
	if pl, err := worker.NewProcLoad(); err != nil {
		logger.Warn("load average is not available, overload check disabled", "error", err)
	} else {
		load = pl
	}

	w, err := worker.New(worker.Config{
		Queue:     b,
		QueueName: queueName,
		Executor:  exec,
		Limits: worker.Limits{
			MaxRunTime: cfg.MaxRunTimeDuration(),
			MaxTasks:   cfg.MaxTasks,
			MaxLoad:    cfg.MaxLoad,
		},
		Load:    load,
		Journal: journal,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	// HTTP: /healthz, /metrics, admin API
	sender := client.New(client.Config{
		Registry: reg,
		Sender:   b,
		Queue:    cfg.Queue,
		Local:    cfg.Local,
		Logger:   logger,
		Metrics:  metrics,
	})
	handler := api.NewHandler(api.Config{
		Worker:     w,
		Executions: executions,
		Sender:     sender,
		Tasks:      reg.Names,
		Logger:     logger,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.NewMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer shutdownServer(srv, logger)

	go handleSignals(ctx, w, cancel, logger)

	if err := w.Run(ctx); err != nil {
		logger.Error("worker failed", "error", err)
		return err
	}

	logger.Info("taskq-worker stopped", "processed", w.Status().Processed)
	return nil
}

// newBackend создаёт изоляционную единицу по cfg.Isolation.
func newBackend(cfg *config.Config, reg *task.Registry, logger *slog.Logger) executor.Backend {
	if cfg.Isolation == config.IsolationInProc {
		return executor.NewInProcess(reg, logger, executor.DefaultGrace)
	}
	return executor.NewProcess(executor.ProcessConfig{
		Env: []string{
			"TASKQ_LOG_LEVEL=" + cfg.Log.Level,
			"TASKQ_LOG_FORMAT=" + cfg.Log.Format,
		},
		Logger: logger,
	})
}

// handleSignals: первый SIGINT/SIGTERM — мягкая остановка на границе
// цикла, второй — отмена ctx.
func handleSignals(ctx context.Context, w *worker.Worker, cancel context.CancelFunc, logger *slog.Logger) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		logger.Warn("signal received, stopping after the current task", "signal", sig.String())
		w.Stop()
	case <-ctx.Done():
		return
	}

	select {
	case sig := <-sigs:
		logger.Warn("second signal received, exiting now", "signal", sig.String())
		cancel()
	case <-ctx.Done():
	}
}

func shutdownServer(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
}
